package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// TaskService manages main tasks: creation, role-scoped listing,
// updates, and soft archival.
type TaskService struct {
	store  store.Store
	fanout *Fanout
	email  config.EmailConfig
}

// NewTaskService creates a new task service.
func NewTaskService(st store.Store, fanout *Fanout, email config.EmailConfig) *TaskService {
	return &TaskService{store: st, fanout: fanout, email: email}
}

// Create creates a main task. An admin caller who leaves assigned_to
// empty broadcasts the task to every active project manager.
func (s *TaskService) Create(ctx context.Context, actorID primitive.ObjectID, req models.CreateTaskRequest) (*models.Task, error) {
	actor, err := requireRole(ctx, s.store, actorID, models.RoleAdmin, models.RoleProjectManager)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &models.Task{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      models.TaskTodo,
		CreatedBy:   actor.ID,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ProjectID != "" {
		projectID, err := primitive.ObjectIDFromHex(req.ProjectID)
		if err != nil {
			return nil, apperr.Validation("invalid project_id")
		}
		if _, err := s.store.ProjectByID(ctx, projectID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("project")
			}
			return nil, err
		}
		task.ProjectID = &projectID
	}

	var assignee *models.User
	switch {
	case req.AssignedTo != "":
		assigneeID, err := primitive.ObjectIDFromHex(req.AssignedTo)
		if err != nil {
			return nil, apperr.Validation("invalid assigned_to")
		}
		assignee, err = requireUser(ctx, s.store, assigneeID)
		if err != nil {
			return nil, err
		}
		task.AssignedTo = &assignee.ID
		task.Status = models.TaskAssigned
	case actor.Role == models.RoleAdmin:
		// Admin with no assignee: broadcast to all project managers.
		task.AssignedToAllManagers = true
		task.Status = models.TaskAssigned
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "task_created",
		Description: fmt.Sprintf("Created task %q", task.Title),
		TaskID:      &task.ID,
	})
	switch {
	case assignee != nil:
		notifType := models.NotifyTaskAssigned
		if actor.Role == models.RoleAdmin {
			notifType = models.NotifyAdminTaskAssigned
		}
		event.Notify(&models.Notification{
			UserID:  assignee.ID,
			Type:    notifType,
			Title:   "New Task Assigned",
			Message: fmt.Sprintf("%s assigned you a new task: %s", actor.FullName(), task.Title),
			TaskID:  &task.ID,
		})
		if s.email.Enabled {
			content := taskAssignedEmail(s.email.AppURL, task.Title, actor.FullName())
			event.Email(assignee.Email, content.Subject, content.PlainText, content.HTML)
		}
	case task.AssignedToAllManagers:
		managers, err := s.store.UsersByRole(ctx, models.RoleProjectManager, true)
		if err != nil {
			return nil, err
		}
		for i := range managers {
			m := managers[i]
			event.Notify(&models.Notification{
				UserID:  m.ID,
				Type:    models.NotifyAdminTaskAssigned,
				Title:   "New Task Assigned",
				Message: fmt.Sprintf("%s assigned a task to all project managers: %s", actor.FullName(), task.Title),
				TaskID:  &task.ID,
			})
			if s.email.Enabled {
				content := taskAssignedEmail(s.email.AppURL, task.Title, actor.FullName())
				event.Email(m.Email, content.Subject, content.PlainText, content.HTML)
			}
		}
	}
	return task, nil
}

// Get returns a task the actor is allowed to see.
func (s *TaskService) Get(ctx context.Context, actorID, taskID primitive.ObjectID) (*models.Task, error) {
	actor, err := requireUser(ctx, s.store, actorID)
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
	if !s.canSee(ctx, actor, task) {
		return nil, apperr.NotFound("task")
	}
	return task, nil
}

func (s *TaskService) canSee(ctx context.Context, actor *models.User, task *models.Task) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleProjectManager:
		if task.CreatedBy == actor.ID || task.AssignedToAllManagers {
			return true
		}
		return task.AssignedTo != nil && *task.AssignedTo == actor.ID
	default:
		if task.AssignedTo != nil && *task.AssignedTo == actor.ID {
			return true
		}
		subtasks, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{
			TaskID:     &task.ID,
			AssignedTo: &actor.ID,
		})
		return err == nil && len(subtasks) > 0
	}
}

// List returns the actor's role-scoped task view: admins see all,
// managers see their own plus broadcasts, members see tasks they are
// assigned to directly or through a subtask.
func (s *TaskService) List(ctx context.Context, actorID primitive.ObjectID) ([]models.Task, error) {
	actor, err := requireUser(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case models.RoleAdmin:
		return s.store.ListTasks(ctx, store.TaskFilter{})

	case models.RoleProjectManager:
		created, err := s.store.ListTasks(ctx, store.TaskFilter{CreatedBy: &actor.ID})
		if err != nil {
			return nil, err
		}
		assigned, err := s.store.ListTasks(ctx, store.TaskFilter{AssignedTo: &actor.ID})
		if err != nil {
			return nil, err
		}
		broadcast, err := s.store.ListTasks(ctx, store.TaskFilter{BroadcastOnly: true})
		if err != nil {
			return nil, err
		}
		return dedupTasks(created, assigned, broadcast), nil

	default:
		assigned, err := s.store.ListTasks(ctx, store.TaskFilter{AssignedTo: &actor.ID})
		if err != nil {
			return nil, err
		}
		subtasks, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{AssignedTo: &actor.ID})
		if err != nil {
			return nil, err
		}
		var parents []models.Task
		for _, st := range subtasks {
			parent, err := s.store.TaskByID(ctx, st.TaskID)
			if err != nil {
				continue
			}
			parents = append(parents, *parent)
		}
		return dedupTasks(assigned, parents), nil
	}
}

func dedupTasks(lists ...[]models.Task) []models.Task {
	seen := make(map[primitive.ObjectID]bool)
	var out []models.Task
	for _, list := range lists {
		for _, t := range list {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out
}

// Update patches mutable fields. Only the creator or an admin may
// update; approval-chain status changes go through ApprovalService.
func (s *TaskService) Update(ctx context.Context, actorID, taskID primitive.ObjectID, req models.UpdateTaskRequest) (*models.Task, error) {
	actor, err := requireUser(ctx, s.store, actorID)
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
	if actor.Role != models.RoleAdmin && task.CreatedBy != actor.ID {
		return nil, apperr.Forbidden("task creator or admin")
	}
	if task.Archived {
		return nil, apperr.Validation("task is archived")
	}
	if req.Progress != nil && (*req.Progress < 0 || *req.Progress > 100) {
		return nil, apperr.Validation("progress must be between 0 and 100")
	}

	updated, err := s.store.UpdateTask(ctx, taskID, store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Progress:    req.Progress,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return nil, err
	}

	event := s.fanout.NewEvent()
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "task_updated",
		Description: fmt.Sprintf("Updated task %q", updated.Title),
		TaskID:      &updated.ID,
	})
	return updated, nil
}

// Archive soft-deletes a task. Archived tasks disappear from queries
// but subtasks and work uploads are retained for audit.
func (s *TaskService) Archive(ctx context.Context, actorID, taskID primitive.ObjectID) error {
	actor, err := requireUser(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	task, err := s.store.TaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("task")
		}
		return err
	}
	if actor.Role != models.RoleAdmin && task.CreatedBy != actor.ID {
		return apperr.Forbidden("task creator or admin")
	}

	archived := true
	if _, err := s.store.UpdateTask(ctx, taskID, store.TaskUpdate{Archived: &archived}); err != nil {
		return err
	}

	event := s.fanout.NewEvent()
	event.Record(&models.TimelineEntry{
		UserID:      actor.ID,
		ActionType:  "task_archived",
		Description: fmt.Sprintf("Archived task %q", task.Title),
		TaskID:      &task.ID,
	})
	return nil
}
