package services

import (
	"context"
	"strings"
	"testing"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
)

func (e *testEnv) submitWork(t *testing.T, member *models.User, subtaskID string, progress float64) *models.WorkUpload {
	t.Helper()
	work, err := e.work.Submit(context.Background(), member.ID, models.SubmitWorkRequest{
		SubtaskID:   subtaskID,
		Description: "done",
		Progress:    progress,
	}, []FileUpload{
		{Name: "report.txt", Size: 5, Reader: strings.NewReader("hello")},
	})
	if err != nil {
		t.Fatalf("submit work: %v", err)
	}
	return work
}

func TestSubmitWorkMovesSubtaskToSubmitted(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{100})

	work := env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)
	if work.ApprovalStatus != models.ApprovalPending {
		t.Fatalf("new upload approval status %s, want pending", work.ApprovalStatus)
	}
	if len(work.Files) != 1 || work.Files[0].OriginalName != "report.txt" {
		t.Fatalf("file refs wrong: %+v", work.Files)
	}

	ctx := context.Background()
	st, err := env.store.SubtaskByID(ctx, subtasks[0].ID)
	if err != nil {
		t.Fatalf("load subtask: %v", err)
	}
	if st.Status != models.SubtaskSubmitted {
		t.Fatalf("subtask status %s, want submitted", st.Status)
	}

	// Manager is notified of the submission.
	found := false
	for _, n := range env.notificationsFor(t, env.manager.ID) {
		if n.Type == models.NotifyWorkSubmitted {
			found = true
		}
	}
	if !found {
		t.Fatal("manager got no work_submitted notification")
	}
}

func TestSubmitWorkOnlyAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{100})

	_, err := env.work.Submit(context.Background(), env.members[1].ID, models.SubmitWorkRequest{
		SubtaskID: subtasks[0].ID.Hex(),
	}, nil)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("non-assignee submission must be forbidden, got %v", err)
	}
}

func TestSubmitWorkRequiresExactlyOneTarget(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.work.Submit(context.Background(), env.members[0].ID, models.SubmitWorkRequest{}, nil)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("missing target must fail validation, got %v", err)
	}
}

func TestReviewApprovalPropagatesAndEscalates(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{100})
	work := env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)

	ctx := context.Background()
	reviewed, err := env.work.Review(ctx, env.manager.ID, work.ID, models.ReviewApprove, "nice")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.ApprovalStatus != models.ApprovalApproved {
		t.Fatalf("approval status %s, want approved", reviewed.ApprovalStatus)
	}

	st, err := env.store.SubtaskByID(ctx, subtasks[0].ID)
	if err != nil {
		t.Fatalf("load subtask: %v", err)
	}
	if st.Status != models.SubtaskApproved {
		t.Fatalf("subtask status %s, want approved", st.Status)
	}
	// The only subtask is approved, so the work review escalates the
	// task to admin approval.
	if env.taskStatus(t, task.ID) != models.TaskReadyForAdmin {
		t.Fatal("task not escalated after work-review approval")
	}
}

func TestReviewEmailsSubmitter(t *testing.T) {
	env, mailer := newEmailTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{60, 40})

	ctx := context.Background()
	work := env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)
	if _, err := env.work.Review(ctx, env.manager.ID, work.ID, models.ReviewApprove, ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	env.fanout.Drain()
	if got := mailer.sentSubject(env.members[0].Email, "Work Approved"); got != 1 {
		t.Fatalf("submitter got %d approval emails, want 1", got)
	}

	work = env.submitWork(t, env.members[1], subtasks[1].ID.Hex(), 50)
	if _, err := env.work.Review(ctx, env.manager.ID, work.ID, models.ReviewReject, "needs detail"); err != nil {
		t.Fatalf("review: %v", err)
	}
	env.fanout.Drain()
	if got := mailer.sentSubject(env.members[1].Email, "Work Needs Revision"); got != 1 {
		t.Fatalf("submitter got %d revision emails, want 1", got)
	}
}

func TestReviewRejectImmutableSubmission(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{100})
	work := env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 80)

	ctx := context.Background()
	// Rejection without feedback refused before mutation.
	if _, err := env.work.Review(ctx, env.manager.ID, work.ID, models.ReviewReject, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("rejection without feedback must fail validation, got %v", err)
	}

	reviewed, err := env.work.Review(ctx, env.manager.ID, work.ID, models.ReviewReject, "needs the appendix")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	// Review appends decision fields, the submission itself is intact.
	if reviewed.Description != "done" || reviewed.Progress != 80 || len(reviewed.Files) != 1 {
		t.Fatalf("submission fields rewritten by review: %+v", reviewed)
	}
	if reviewed.ReviewFeedback != "needs the appendix" {
		t.Fatalf("review feedback %q", reviewed.ReviewFeedback)
	}

	// A second review of the same upload loses the CAS.
	if _, err := env.work.Review(ctx, env.admin.ID, work.ID, models.ReviewApprove, ""); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Fatalf("double review must conflict, got %v", err)
	}

	st, err := env.store.SubtaskByID(ctx, subtasks[0].ID)
	if err != nil {
		t.Fatalf("load subtask: %v", err)
	}
	if st.Status != models.SubtaskRejected {
		t.Fatalf("subtask status %s, want rejected", st.Status)
	}

	// Resubmission after rejection is allowed.
	env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)
}

func TestWorkListingsByRole(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{60, 40})
	env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)
	env.submitWork(t, env.members[1], subtasks[1].ID.Hex(), 100)

	ctx := context.Background()
	mine, err := env.work.List(ctx, env.members[0].ID)
	if err != nil {
		t.Fatalf("member list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("member sees %d uploads, want 1", len(mine))
	}

	all, err := env.work.List(ctx, env.manager.ID)
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager sees %d uploads, want 2", len(all))
	}

	pending, err := env.work.Pending(ctx, env.admin.ID)
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending queue has %d entries, want 2", len(pending))
	}

	if _, err := env.work.Pending(ctx, env.members[0].ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("member must not see the pending queue, got %v", err)
	}
}

func TestOpenWorkFileAccess(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{100})
	work := env.submitWork(t, env.members[0], subtasks[0].ID.Hex(), 100)

	ctx := context.Background()
	rc, contentType, name, err := env.work.OpenFile(ctx, env.members[0].ID, work.ID, 0)
	if err != nil {
		t.Fatalf("uploader open: %v", err)
	}
	rc.Close()
	if contentType != "text/plain" || name != "report.txt" {
		t.Fatalf("got %q %q", contentType, name)
	}

	// Another member may not read it.
	if _, _, _, err := env.work.OpenFile(ctx, env.members[1].ID, work.ID, 0); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("foreign member access must be forbidden, got %v", err)
	}
	// Managers may.
	if rc, _, _, err := env.work.OpenFile(ctx, env.manager.ID, work.ID, 0); err != nil {
		t.Fatalf("manager open: %v", err)
	} else {
		rc.Close()
	}
	// Out-of-range index.
	if _, _, _, err := env.work.OpenFile(ctx, env.members[0].ID, work.ID, 5); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("bad index must be not found, got %v", err)
	}
}
