package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// ApprovalService drives the bottom-up approval chain: subtask
// approvals escalate the parent task to admin review, and the admin
// decision completes or reverts the whole tree. Every transition is a
// compare-and-swap against the expected pre-state, so a concurrent
// double approval has exactly one winner.
type ApprovalService struct {
	store  store.Store
	fanout *Fanout
	email  config.EmailConfig
}

// NewApprovalService creates a new approval service.
func NewApprovalService(st store.Store, fanout *Fanout, email config.EmailConfig) *ApprovalService {
	return &ApprovalService{store: st, fanout: fanout, email: email}
}

// ApproveSubtask moves a submitted subtask to approved, then promotes
// the parent task to ready_for_admin_approval once every sibling is
// approved.
func (s *ApprovalService) ApproveSubtask(ctx context.Context, actorID, subtaskID primitive.ObjectID, feedback string) (*models.Subtask, error) {
	actor, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	subtask, err := s.store.SubtaskByID(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("subtask")
		}
		return nil, err
	}

	approved := models.SubtaskApproved
	now := time.Now().UTC()
	upd := store.SubtaskUpdate{
		Status:     &approved,
		ApprovedBy: &actor.ID,
		ApprovedAt: &now,
	}
	if feedback != "" {
		upd.ManagerFeedback = &feedback
	}
	updated, err := s.store.UpdateSubtaskStatus(ctx, subtaskID,
		[]models.SubtaskStatus{models.SubtaskSubmitted}, upd)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition(string(models.SubtaskSubmitted), string(subtask.Status))
		}
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Notify(&models.Notification{
		UserID:    updated.AssignedTo,
		Type:      models.NotifySubtaskApproved,
		Title:     "Subtask Approved",
		Message:   fmt.Sprintf("%s approved your subtask: %s", actor.FullName(), updated.Title),
		TaskID:    &updated.TaskID,
		SubtaskID: &updated.ID,
	})
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "subtask_approved",
		Description: fmt.Sprintf("Approved subtask %q", updated.Title),
		TaskID:      &updated.TaskID,
		SubtaskID:   &updated.ID,
	})

	s.escalateIfAllApproved(ctx, updated.TaskID, event)
	return updated, nil
}

// escalateIfAllApproved re-reads the whole sibling set and promotes
// the parent task when every subtask is approved. The CAS on the task
// makes the promotion idempotent when two approvals race: only the
// approval that observes the full set AND wins the swap notifies
// admins.
func (s *ApprovalService) escalateIfAllApproved(ctx context.Context, taskID primitive.ObjectID, event *Event) {
	siblings, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{TaskID: &taskID})
	if err != nil {
		log.Printf("WARNING: failed to list subtasks of task %s for escalation: %v", taskID.Hex(), err)
		return
	}
	if len(siblings) == 0 {
		return
	}
	for _, st := range siblings {
		if st.Status != models.SubtaskApproved {
			return
		}
	}

	ready := models.TaskReadyForAdmin
	allApproved := true
	upd := store.TaskUpdate{
		Status:              &ready,
		AllSubtasksApproved: &allApproved,
	}
	// A re-approval after an admin rejection promotes from
	// needs_revision instead of in_progress.
	var task *models.Task
	for _, from := range []models.TaskStatus{models.TaskInProgress, models.TaskNeedsRevision} {
		task, err = s.store.UpdateTaskStatus(ctx, taskID, from, upd)
		if err == nil {
			break
		}
	}
	if err != nil {
		// A concurrent approval already promoted the task; nothing to do.
		if !errors.Is(err, store.ErrStaleStatus) {
			log.Printf("WARNING: failed to promote task %s for admin approval: %v", taskID.Hex(), err)
		}
		return
	}

	admins, err := s.store.UsersByRole(ctx, models.RoleAdmin, true)
	if err != nil {
		log.Printf("WARNING: failed to list admins for task %s: %v", taskID.Hex(), err)
		return
	}
	for i := range admins {
		event.Notify(&models.Notification{
			UserID:  admins[i].ID,
			Type:    models.NotifyTaskReady,
			Title:   "Task Ready for Approval",
			Message: fmt.Sprintf("All subtasks of %q are approved. The task awaits your review.", task.Title),
			TaskID:  &task.ID,
		})
	}
}

// RejectSubtask moves a submitted subtask to rejected. Feedback is
// mandatory and is validated before any state changes. Siblings and
// the parent task are untouched.
func (s *ApprovalService) RejectSubtask(ctx context.Context, actorID, subtaskID primitive.ObjectID, feedback string) (*models.Subtask, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, apperr.Validation("feedback is required when rejecting")
	}
	actor, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	subtask, err := s.store.SubtaskByID(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("subtask")
		}
		return nil, err
	}

	rejected := models.SubtaskRejected
	now := time.Now().UTC()
	updated, err := s.store.UpdateSubtaskStatus(ctx, subtaskID,
		[]models.SubtaskStatus{models.SubtaskSubmitted},
		store.SubtaskUpdate{
			Status:          &rejected,
			ManagerFeedback: &feedback,
			RejectedBy:      &actor.ID,
			RejectedAt:      &now,
		})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition(string(models.SubtaskSubmitted), string(subtask.Status))
		}
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Notify(&models.Notification{
		UserID:    updated.AssignedTo,
		Type:      models.NotifySubtaskRejected,
		Title:     "Subtask Needs Revision",
		Message:   fmt.Sprintf("%s rejected your subtask %q. Feedback: %s", actor.FullName(), updated.Title, feedback),
		TaskID:    &updated.TaskID,
		SubtaskID: &updated.ID,
	})
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "subtask_rejected",
		Description: fmt.Sprintf("Rejected subtask %q", updated.Title),
		TaskID:      &updated.TaskID,
		SubtaskID:   &updated.ID,
	})
	return updated, nil
}

// ApproveTask completes a task that is ready for admin approval.
// Every involved team member and manager is notified exactly once.
func (s *ApprovalService) ApproveTask(ctx context.Context, actorID, taskID primitive.ObjectID, feedback string) (*models.Task, error) {
	actor, err := requireRole(ctx, s.store, actorID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	task, err := s.store.TaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}

	completed := models.TaskCompleted
	progress := 100.0
	now := time.Now().UTC()
	upd := store.TaskUpdate{
		Status:          &completed,
		Progress:        &progress,
		ApprovedByAdmin: &actor.ID,
		AdminApprovedAt: &now,
	}
	if feedback != "" {
		upd.AdminFeedback = &feedback
	}
	updated, err := s.store.UpdateTaskStatus(ctx, taskID, models.TaskReadyForAdmin, upd)
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition(string(models.TaskReadyForAdmin), string(task.Status))
		}
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "task_completed",
		Description: fmt.Sprintf("Approved and completed task %q", updated.Title),
		TaskID:      &updated.ID,
	})
	s.notifyTaskAudience(ctx, updated, event,
		models.NotifyTaskCompleted,
		"Task Completed",
		fmt.Sprintf("Task %q has been approved by %s and is now complete.", updated.Title, actor.FullName()),
		taskCompletedEmail(s.email.AppURL, updated.Title))
	return updated, nil
}

// RejectTask sends a ready task back for revision: the task becomes
// needs_revision, every approved subtask reverts to needs_revision,
// and the all-approved flag is cleared. Feedback is validated before
// any mutation.
func (s *ApprovalService) RejectTask(ctx context.Context, actorID, taskID primitive.ObjectID, feedback string) (*models.Task, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, apperr.Validation("feedback is required when rejecting")
	}
	actor, err := requireRole(ctx, s.store, actorID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	task, err := s.store.TaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}

	needsRevision := models.TaskNeedsRevision
	cleared := false
	now := time.Now().UTC()
	updated, err := s.store.UpdateTaskStatus(ctx, taskID, models.TaskReadyForAdmin, store.TaskUpdate{
		Status:              &needsRevision,
		AllSubtasksApproved: &cleared,
		AdminFeedback:       &feedback,
		RejectedByAdmin:     &actor.ID,
		AdminRejectedAt:     &now,
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition(string(models.TaskReadyForAdmin), string(task.Status))
		}
		return nil, err
	}

	if _, err := s.store.RevertApprovedSubtasks(ctx, taskID); err != nil {
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "task_rejected",
		Description: fmt.Sprintf("Rejected task %q, subtasks sent back for revision", updated.Title),
		TaskID:      &updated.ID,
	})
	s.notifyTaskAudience(ctx, updated, event,
		models.NotifyTaskRejected,
		"Task Needs Revision",
		fmt.Sprintf("Task %q was rejected by %s. Feedback: %s", updated.Title, actor.FullName(), feedback),
		EmailContent{})
	return updated, nil
}

// notifyTaskAudience notifies everyone involved in the task: subtask
// assignees, subtask assigners, the direct assignee, and the creator.
// The event's dedup set keeps it to one notification and one email
// per user.
func (s *ApprovalService) notifyTaskAudience(ctx context.Context, task *models.Task, event *Event, notifType models.NotificationType, title, message string, email EmailContent) {
	var audience []primitive.ObjectID
	subtasks, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{TaskID: &task.ID})
	if err != nil {
		log.Printf("WARNING: failed to list subtasks of task %s for notification: %v", task.ID.Hex(), err)
	}
	for _, st := range subtasks {
		audience = append(audience, st.AssignedTo, st.AssignedBy)
	}
	if task.AssignedTo != nil {
		audience = append(audience, *task.AssignedTo)
	}
	audience = append(audience, task.CreatedBy)

	for _, userID := range audience {
		first := event.Notify(&models.Notification{
			UserID:  userID,
			Type:    notifType,
			Title:   title,
			Message: message,
			TaskID:  &task.ID,
		})
		// A user appearing under several subtasks gets one email, not
		// one per appearance.
		if !first || !s.email.Enabled || email.Subject == "" {
			continue
		}
		if user, err := s.store.UserByID(ctx, userID); err == nil {
			event.Email(user.Email, email.Subject, email.PlainText, email.HTML)
		}
	}
}

// PendingSubtasks returns the submitted subtasks awaiting the
// manager's decision. Admins see all submitted subtasks.
func (s *ApprovalService) PendingSubtasks(ctx context.Context, actorID primitive.ObjectID) ([]models.Subtask, error) {
	actor, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	filter := store.SubtaskFilter{Statuses: []models.SubtaskStatus{models.SubtaskSubmitted}}
	if actor.Role == models.RoleProjectManager {
		filter.AssignedBy = &actor.ID
	}
	return s.store.ListSubtasks(ctx, filter)
}

// PendingTasks returns the tasks awaiting admin approval.
func (s *ApprovalService) PendingTasks(ctx context.Context, actorID primitive.ObjectID) ([]models.Task, error) {
	if _, err := requireRole(ctx, s.store, actorID, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, store.TaskFilter{
		Statuses: []models.TaskStatus{models.TaskReadyForAdmin},
	})
}
