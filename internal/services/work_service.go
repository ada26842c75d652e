package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// FileUpload is an incoming attachment before it reaches storage.
type FileUpload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// WorkService handles work submissions and their reviews. A submission
// is an immutable historical record; reviews only append decision
// fields.
type WorkService struct {
	store    store.Store
	storage  FileStorage
	fanout   *Fanout
	approval *ApprovalService
	email    config.EmailConfig
}

// NewWorkService creates a new work service.
func NewWorkService(st store.Store, storage FileStorage, fanout *Fanout, approval *ApprovalService, email config.EmailConfig) *WorkService {
	return &WorkService{store: st, storage: storage, fanout: fanout, approval: approval, email: email}
}

// Submit uploads work against a subtask or a task. Only the assignee
// may submit; the subtask moves to submitted and the manager is
// notified. Resubmission after a rejection follows the same path.
func (s *WorkService) Submit(ctx context.Context, actorID primitive.ObjectID, req models.SubmitWorkRequest, files []FileUpload) (*models.WorkUpload, error) {
	actor, err := requireUser(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	if (req.TaskID == "") == (req.SubtaskID == "") {
		return nil, apperr.Validation("exactly one of task_id and subtask_id is required")
	}
	if req.Progress < 0 || req.Progress > 100 {
		return nil, apperr.Validation("progress must be between 0 and 100")
	}

	now := time.Now().UTC()
	work := &models.WorkUpload{
		UserID:         actor.ID,
		Description:    req.Description,
		Progress:       req.Progress,
		Status:         "submitted",
		ApprovalStatus: models.ApprovalPending,
		SubmittedAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var subtask *models.Subtask
	var task *models.Task
	if req.SubtaskID != "" {
		subtaskID, err := primitive.ObjectIDFromHex(req.SubtaskID)
		if err != nil {
			return nil, apperr.Validation("invalid subtask_id")
		}
		subtask, err = s.store.SubtaskByID(ctx, subtaskID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("subtask")
			}
			return nil, err
		}
		if subtask.AssignedTo != actor.ID {
			return nil, apperr.Forbidden("subtask assignee")
		}
		work.SubtaskID = &subtask.ID
		work.TaskID = &subtask.TaskID
		task, err = s.store.TaskByID(ctx, subtask.TaskID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	} else {
		taskID, err := primitive.ObjectIDFromHex(req.TaskID)
		if err != nil {
			return nil, apperr.Validation("invalid task_id")
		}
		task, err = s.store.TaskByID(ctx, taskID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("task")
			}
			return nil, err
		}
		if task.AssignedTo == nil || *task.AssignedTo != actor.ID {
			return nil, apperr.Forbidden("task assignee")
		}
		work.TaskID = &task.ID
	}

	for _, f := range files {
		key, err := s.storage.Save(ctx, f.Name, f.Reader)
		if err != nil {
			return nil, apperr.Dependency("file storage", err)
		}
		work.Files = append(work.Files, models.FileRef{
			OriginalName: f.Name,
			StoredKey:    key,
			Size:         f.Size,
			UploadedAt:   now,
		})
	}

	if err := s.store.CreateWorkUpload(ctx, work); err != nil {
		return nil, err
	}

	if subtask != nil {
		submitted := models.SubtaskSubmitted
		updated, err := s.store.UpdateSubtaskStatus(ctx, subtask.ID,
			[]models.SubtaskStatus{
				models.SubtaskAssigned,
				models.SubtaskInProgress,
				models.SubtaskRejected,
				models.SubtaskNeedsRevision,
			},
			store.SubtaskUpdate{Status: &submitted, Progress: &req.Progress})
		if err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				return nil, apperr.InvalidTransition("in_progress", string(subtask.Status))
			}
			return nil, err
		}
		subtask = updated
		s.updateTaskProgress(ctx, subtask.TaskID)
	}

	event := s.fanout.NewEvent()
	title := "Work Submitted"
	var targetTitle string
	if subtask != nil {
		targetTitle = subtask.Title
	} else if task != nil {
		targetTitle = task.Title
	}
	message := fmt.Sprintf("%s submitted work for %q", actor.FullName(), targetTitle)
	if subtask != nil {
		event.Notify(&models.Notification{
			UserID:    subtask.AssignedBy,
			Type:      models.NotifyWorkSubmitted,
			Title:     title,
			Message:   message,
			TaskID:    work.TaskID,
			SubtaskID: work.SubtaskID,
			WorkID:    &work.ID,
		})
	}
	if task != nil {
		event.Notify(&models.Notification{
			UserID:  task.CreatedBy,
			Type:    models.NotifyWorkSubmitted,
			Title:   title,
			Message: message,
			TaskID:  work.TaskID,
			WorkID:  &work.ID,
		})
	}
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "work_submitted",
		Description: message,
		TaskID:      work.TaskID,
		SubtaskID:   work.SubtaskID,
	})
	return work, nil
}

// updateTaskProgress recomputes the parent task's progress as the
// percentage-weighted sum of approved and submitted subtask work.
func (s *WorkService) updateTaskProgress(ctx context.Context, taskID primitive.ObjectID) {
	subtasks, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{TaskID: &taskID})
	if err != nil || len(subtasks) == 0 {
		return
	}
	var progress float64
	for _, st := range subtasks {
		switch st.Status {
		case models.SubtaskApproved:
			progress += st.Percentage
		case models.SubtaskSubmitted:
			progress += st.Percentage * st.Progress / 100
		}
	}
	if progress > 100 {
		progress = 100
	}
	if _, err := s.store.UpdateTask(ctx, taskID, store.TaskUpdate{Progress: &progress}); err != nil && !errors.Is(err, store.ErrNotFound) {
		return
	}
}

// Review approves or rejects a pending submission. Rejection requires
// feedback, validated before any mutation. The decision propagates to
// the target subtask, and an approval re-runs the all-approved check
// on the parent task.
func (s *WorkService) Review(ctx context.Context, actorID, workID primitive.ObjectID, action models.ReviewAction, feedback string) (*models.WorkUpload, error) {
	if action != models.ReviewApprove && action != models.ReviewReject {
		return nil, apperr.Validation("action must be approve or reject")
	}
	if action == models.ReviewReject && strings.TrimSpace(feedback) == "" {
		return nil, apperr.Validation("feedback is required when rejecting")
	}
	actor, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	work, err := s.store.WorkUploadByID(ctx, workID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("work upload")
		}
		return nil, err
	}

	decision := models.ApprovalApproved
	if action == models.ReviewReject {
		decision = models.ApprovalRejected
	}
	reviewed, err := s.store.ReviewWorkUpload(ctx, workID, store.ReviewUpdate{
		ApprovalStatus: decision,
		ReviewedBy:     actor.ID,
		Feedback:       feedback,
		ReviewedAt:     time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition(string(models.ApprovalPending), string(work.ApprovalStatus))
		}
		return nil, err
	}

	event := s.fanout.NewEvent()
	if reviewed.SubtaskID != nil {
		s.propagateToSubtask(ctx, actor, reviewed, decision, feedback, event)
	}

	var title string
	approved := decision == models.ApprovalApproved
	if approved {
		title = "Work Approved"
	} else {
		title = "Work Needs Revision"
	}
	message := fmt.Sprintf("%s reviewed your submission: %s", actor.FullName(), strings.ToLower(title))
	if feedback != "" {
		message += ". Feedback: " + feedback
	}
	first := event.Notify(&models.Notification{
		UserID:    reviewed.UserID,
		Type:      models.NotifyWorkReviewed,
		Title:     title,
		Message:   message,
		TaskID:    reviewed.TaskID,
		SubtaskID: reviewed.SubtaskID,
		WorkID:    &reviewed.ID,
	})
	if first && s.email.Enabled {
		if submitter, err := s.store.UserByID(ctx, reviewed.UserID); err == nil {
			content := workReviewedEmail(s.email.AppURL, s.reviewTargetTitle(ctx, reviewed), approved, feedback)
			event.Email(submitter.Email, content.Subject, content.PlainText, content.HTML)
		}
	}
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "work_reviewed",
		Description: fmt.Sprintf("Reviewed a work submission (%s)", decision),
		TaskID:      reviewed.TaskID,
		SubtaskID:   reviewed.SubtaskID,
	})
	return reviewed, nil
}

// reviewTargetTitle resolves the title of the submission's target for
// the outcome email, falling back to the generic word when the target
// is gone.
func (s *WorkService) reviewTargetTitle(ctx context.Context, work *models.WorkUpload) string {
	if work.SubtaskID != nil {
		if st, err := s.store.SubtaskByID(ctx, *work.SubtaskID); err == nil {
			return st.Title
		}
	}
	if work.TaskID != nil {
		if task, err := s.store.TaskByID(ctx, *work.TaskID); err == nil {
			return task.Title
		}
	}
	return "your assignment"
}

// propagateToSubtask mirrors the review decision onto the target
// subtask. An approval re-triggers the parent task escalation check.
func (s *WorkService) propagateToSubtask(ctx context.Context, actor *models.User, work *models.WorkUpload, decision models.ApprovalStatus, feedback string, event *Event) {
	now := time.Now().UTC()
	if decision == models.ApprovalApproved {
		approved := models.SubtaskApproved
		updated, err := s.store.UpdateSubtaskStatus(ctx, *work.SubtaskID,
			[]models.SubtaskStatus{models.SubtaskSubmitted},
			store.SubtaskUpdate{Status: &approved, ApprovedBy: &actor.ID, ApprovedAt: &now})
		if err != nil {
			return
		}
		s.updateTaskProgress(ctx, updated.TaskID)
		s.approval.escalateIfAllApproved(ctx, updated.TaskID, event)
		return
	}

	rejected := models.SubtaskRejected
	upd := store.SubtaskUpdate{Status: &rejected, RejectedBy: &actor.ID, RejectedAt: &now}
	if feedback != "" {
		upd.ManagerFeedback = &feedback
	}
	if updated, err := s.store.UpdateSubtaskStatus(ctx, *work.SubtaskID,
		[]models.SubtaskStatus{models.SubtaskSubmitted}, upd); err == nil {
		s.updateTaskProgress(ctx, updated.TaskID)
	}
}

// List returns the actor's role-scoped view: members see their own
// uploads, managers and admins see all of them.
func (s *WorkService) List(ctx context.Context, actorID primitive.ObjectID) ([]models.WorkUpload, error) {
	actor, err := requireUser(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	filter := store.WorkFilter{}
	if actor.Role == models.RoleTeamMember {
		filter.UserID = &actor.ID
	}
	return s.store.ListWorkUploads(ctx, filter)
}

// Pending returns the submissions awaiting review.
func (s *WorkService) Pending(ctx context.Context, actorID primitive.ObjectID) ([]models.WorkUpload, error) {
	if _, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListWorkUploads(ctx, store.WorkFilter{ApprovalStatus: models.ApprovalPending})
}

// OpenFile streams a stored attachment. Only the uploader, managers,
// and admins may read it.
func (s *WorkService) OpenFile(ctx context.Context, actorID, workID primitive.ObjectID, index int) (io.ReadCloser, string, string, error) {
	actor, err := requireUser(ctx, s.store, actorID)
	if err != nil {
		return nil, "", "", err
	}
	work, err := s.store.WorkUploadByID(ctx, workID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", "", apperr.NotFound("work upload")
		}
		return nil, "", "", err
	}
	if actor.Role == models.RoleTeamMember && work.UserID != actor.ID {
		return nil, "", "", apperr.Forbidden("uploader, manager, or admin")
	}
	if index < 0 || index >= len(work.Files) {
		return nil, "", "", apperr.NotFound("file")
	}

	ref := work.Files[index]
	rc, contentType, err := s.storage.Open(ctx, ref.StoredKey)
	if err != nil {
		return nil, "", "", apperr.Dependency("file storage", err)
	}
	return rc, contentType, ref.OriginalName, nil
}
