package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskgrid/internal/models"
)

func seedTask(t *testing.T, s *Memory, status models.TaskStatus) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:     "Audit",
		Status:    status,
		Priority:  "high",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestUpdateTaskStatusCAS(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	task := seedTask(t, s, models.TaskInProgress)

	ready := models.TaskReadyForAdmin
	updated, err := s.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, TaskUpdate{Status: &ready})
	if err != nil {
		t.Fatalf("first swap: %v", err)
	}
	if updated.Status != models.TaskReadyForAdmin {
		t.Fatalf("status %s after swap", updated.Status)
	}

	// Second swap against the stale pre-state fails.
	if _, err := s.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress, TaskUpdate{Status: &ready}); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("want ErrStaleStatus, got %v", err)
	}

	// Missing task reports not found, not a stale status.
	bogus := seedTask(t, s, models.TaskTodo)
	s2 := NewMemory()
	if _, err := s2.UpdateTaskStatus(ctx, bogus.ID, models.TaskTodo, TaskUpdate{Status: &ready}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateSubtaskStatusMultiExpected(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	task := seedTask(t, s, models.TaskInProgress)

	subtask := &models.Subtask{TaskID: task.ID, Title: "Part", Status: models.SubtaskRejected}
	if err := s.CreateSubtasks(ctx, []*models.Subtask{subtask}); err != nil {
		t.Fatalf("create subtask: %v", err)
	}

	submitted := models.SubtaskSubmitted
	if _, err := s.UpdateSubtaskStatus(ctx, subtask.ID,
		[]models.SubtaskStatus{models.SubtaskAssigned, models.SubtaskRejected},
		SubtaskUpdate{Status: &submitted}); err != nil {
		t.Fatalf("swap from rejected: %v", err)
	}
	if _, err := s.UpdateSubtaskStatus(ctx, subtask.ID,
		[]models.SubtaskStatus{models.SubtaskAssigned},
		SubtaskUpdate{Status: &submitted}); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("want ErrStaleStatus, got %v", err)
	}
}

func TestRevertApprovedSubtasks(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	task := seedTask(t, s, models.TaskReadyForAdmin)

	batch := []*models.Subtask{
		{TaskID: task.ID, Title: "A", Status: models.SubtaskApproved},
		{TaskID: task.ID, Title: "B", Status: models.SubtaskApproved},
		{TaskID: task.ID, Title: "C", Status: models.SubtaskRejected},
	}
	if err := s.CreateSubtasks(ctx, batch); err != nil {
		t.Fatalf("create subtasks: %v", err)
	}

	n, err := s.RevertApprovedSubtasks(ctx, task.ID)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if n != 2 {
		t.Fatalf("reverted %d subtasks, want 2", n)
	}
	got, err := s.SubtaskByID(ctx, batch[2].ID)
	if err != nil {
		t.Fatalf("load subtask: %v", err)
	}
	if got.Status != models.SubtaskRejected {
		t.Fatalf("rejected subtask touched by revert: %s", got.Status)
	}
}

func TestCreateDeadlineNotificationDedup(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	task := seedTask(t, s, models.TaskAssigned)

	user := &models.User{Username: "u", Email: "u@example.com", IsActive: true}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	at := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	mk := func(created time.Time) *models.Notification {
		return &models.Notification{
			UserID:    user.ID,
			Type:      models.NotifyDeadline,
			Title:     "Task Deadline Approaching",
			TaskID:    &task.ID,
			CreatedAt: created,
		}
	}

	inserted, err := s.CreateDeadlineNotification(ctx, mk(at), 12*time.Hour)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	// Same window: suppressed.
	inserted, err = s.CreateDeadlineNotification(ctx, mk(at.Add(time.Hour)), 12*time.Hour)
	if err != nil || inserted {
		t.Fatalf("same-window insert: inserted=%v err=%v", inserted, err)
	}
	// Next window: allowed again.
	inserted, err = s.CreateDeadlineNotification(ctx, mk(at.Add(13*time.Hour)), 12*time.Hour)
	if err != nil || !inserted {
		t.Fatalf("next-window insert: inserted=%v err=%v", inserted, err)
	}
}

func TestTaskFilterArchived(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	open := seedTask(t, s, models.TaskAssigned)
	archived := seedTask(t, s, models.TaskAssigned)
	on := true
	if _, err := s.UpdateTask(ctx, archived.ID, TaskUpdate{Archived: &on}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	tasks, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != open.ID {
		t.Fatalf("default listing returned %d tasks", len(tasks))
	}

	all, err := s.ListTasks(ctx, TaskFilter{IncludeArchived: true})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("IncludeArchived returned %d tasks, want 2", len(all))
	}
}

func TestMarkNotificationReadOwnership(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	owner := &models.User{Username: "owner", Email: "owner@example.com", IsActive: true}
	other := &models.User{Username: "other", Email: "other@example.com", IsActive: true}
	for _, u := range []*models.User{owner, other} {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	n := &models.Notification{UserID: owner.ID, Type: models.NotifyTaskAssigned, CreatedAt: time.Now().UTC()}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	if err := s.MarkNotificationRead(ctx, n.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign mark-read must be not found, got %v", err)
	}
	if err := s.MarkNotificationRead(ctx, n.ID, owner.ID); err != nil {
		t.Fatalf("owner mark-read: %v", err)
	}
	count, err := s.CountUnreadNotifications(ctx, owner.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("unread count %d after mark-read, want 0", count)
	}
}
