package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// SubtaskService splits tasks into percentage-weighted subtasks.
type SubtaskService struct {
	store  store.Store
	fanout *Fanout
	email  config.EmailConfig
}

// NewSubtaskService creates a new subtask service.
func NewSubtaskService(st store.Store, fanout *Fanout, email config.EmailConfig) *SubtaskService {
	return &SubtaskService{store: st, fanout: fanout, email: email}
}

// CreateBatch splits a task into subtasks. Everything is validated
// before any insert, and the batch commits all-or-nothing: a rejected
// batch leaves zero subtasks behind.
func (s *SubtaskService) CreateBatch(ctx context.Context, actorID primitive.ObjectID, req models.CreateSubtasksRequest) ([]models.Subtask, error) {
	actor, err := requireRole(ctx, s.store, actorID, models.RoleProjectManager, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	taskID, err := primitive.ObjectIDFromHex(req.TaskID)
	if err != nil {
		return nil, apperr.Validation("invalid task_id")
	}
	task, err := s.store.TaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}
	if task.Archived {
		return nil, apperr.Validation("task is archived")
	}

	percentages := make([]float64, len(req.Subtasks))
	assignees := make([]*models.User, len(req.Subtasks))
	for i, in := range req.Subtasks {
		if strings.TrimSpace(in.Title) == "" {
			return nil, apperr.Validation("subtask title is required")
		}
		assigneeID, err := primitive.ObjectIDFromHex(in.AssignedTo)
		if err != nil {
			return nil, apperr.Validation("invalid assigned_to")
		}
		assignee, err := s.store.UserByID(ctx, assigneeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("assignee")
			}
			return nil, err
		}
		if !assignee.IsActive {
			return nil, apperr.Validation(fmt.Sprintf("assignee %s is inactive", assignee.Username))
		}
		assignees[i] = assignee
		percentages[i] = in.Percentage
	}
	if err := ValidateAllocation(percentages); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := make([]*models.Subtask, len(req.Subtasks))
	for i, in := range req.Subtasks {
		batch[i] = &models.Subtask{
			TaskID:      task.ID,
			Title:       in.Title,
			Description: in.Description,
			AssignedTo:  assignees[i].ID,
			AssignedBy:  actor.ID,
			Percentage:  in.Percentage,
			Status:      models.SubtaskAssigned,
			Priority:    in.Priority,
			StartDate:   in.StartDate,
			DueDate:     in.DueDate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if err := s.store.CreateSubtasks(ctx, batch); err != nil {
		return nil, err
	}

	inProgress := models.TaskInProgress
	hasSubtasks := true
	count := task.SubtasksCount + len(batch)
	if _, err := s.store.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:        &inProgress,
		HasSubtasks:   &hasSubtasks,
		SubtasksCount: &count,
	}); err != nil {
		return nil, err
	}

	event := s.fanout.NewEvent()
	for i, st := range batch {
		assignee := assignees[i]
		event.Notify(&models.Notification{
			UserID:    assignee.ID,
			Type:      models.NotifySubtaskAssigned,
			Title:     "New Subtask Assigned",
			Message:   fmt.Sprintf("%s assigned you a subtask (%g%% of %q): %s", actor.FullName(), st.Percentage, task.Title, st.Title),
			TaskID:    &task.ID,
			SubtaskID: &st.ID,
		})
		event.Record(&models.TimelineEntry{
			UserID:      actor.ID,
			ActionType:  "subtask_created",
			Description: fmt.Sprintf("Assigned subtask %q to %s", st.Title, assignee.FullName()),
			TaskID:      &task.ID,
			SubtaskID:   &st.ID,
			Metadata: map[string]any{
				"percentage":  st.Percentage,
				"assigned_to": assignee.ID.Hex(),
			},
		})
		if s.email.Enabled {
			content := subtaskAssignedEmail(s.email.AppURL, st.Title, actor.FullName(), st.Percentage)
			event.Email(assignee.Email, content.Subject, content.PlainText, content.HTML)
		}
	}

	out := make([]models.Subtask, len(batch))
	for i, st := range batch {
		out[i] = *st
	}
	return out, nil
}

// ListForTask returns the subtasks of a task, for callers who can see
// the task.
func (s *SubtaskService) ListForTask(ctx context.Context, actorID, taskID primitive.ObjectID) ([]models.Subtask, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	if _, err := s.store.TaskByID(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("task")
		}
		return nil, err
	}
	return s.store.ListSubtasks(ctx, store.SubtaskFilter{TaskID: &taskID})
}

// ListMine returns the subtasks assigned to the caller.
func (s *SubtaskService) ListMine(ctx context.Context, actorID primitive.ObjectID) ([]models.Subtask, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	return s.store.ListSubtasks(ctx, store.SubtaskFilter{AssignedTo: &actorID})
}

// Start moves an assigned subtask to in_progress. Only the assignee
// may start their own subtask.
func (s *SubtaskService) Start(ctx context.Context, actorID, subtaskID primitive.ObjectID) (*models.Subtask, error) {
	if _, err := requireUser(ctx, s.store, actorID); err != nil {
		return nil, err
	}
	subtask, err := s.store.SubtaskByID(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("subtask")
		}
		return nil, err
	}
	if subtask.AssignedTo != actorID {
		return nil, apperr.Forbidden("subtask assignee")
	}

	inProgress := models.SubtaskInProgress
	updated, err := s.store.UpdateSubtaskStatus(ctx, subtaskID,
		[]models.SubtaskStatus{models.SubtaskAssigned, models.SubtaskNeedsRevision, models.SubtaskRejected},
		store.SubtaskUpdate{Status: &inProgress})
	if err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, apperr.InvalidTransition("assigned", string(subtask.Status))
		}
		return nil, err
	}
	return updated, nil
}
