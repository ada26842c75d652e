package services

import (
	"context"
	"testing"
	"time"

	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

func taskDueDateUpdate(due string) store.TaskUpdate {
	return store.TaskUpdate{DueDate: &due}
}

func taskStatusUpdate(status models.TaskStatus) store.TaskUpdate {
	return store.TaskUpdate{Status: &status}
}

func newDeadlineEnv(t *testing.T) (*testEnv, *DeadlineService) {
	t.Helper()
	env := newTestEnv(t)
	svc, err := NewDeadlineService(env.store, env.fanout, config.EmailConfig{}, "@every 1m")
	if err != nil {
		t.Fatalf("new deadline service: %v", err)
	}
	return env, svc
}

func (e *testEnv) createDueTask(t *testing.T, due string) *models.Task {
	t.Helper()
	task := e.createTask(t, models.TaskAssigned)
	ctx := context.Background()
	updated, err := e.store.UpdateTask(ctx, task.ID, taskDueDateUpdate(due))
	if err != nil {
		t.Fatalf("set due date: %v", err)
	}
	return updated
}

func TestScanRemindsOncePerWindow(t *testing.T) {
	env, svc := newDeadlineEnv(t)
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	env.createDueTask(t, now.Add(12*time.Hour).Format("2006-01-02 15:04:05"))

	ctx := context.Background()
	created, err := svc.Scan(ctx, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if created != 1 {
		t.Fatalf("first scan created %d reminders, want 1", created)
	}

	// Immediate re-run creates nothing new.
	created, err = svc.Scan(ctx, now)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if created != 0 {
		t.Fatalf("rescan created %d reminders, want 0", created)
	}

	// The responsible user is the assignee.
	count := 0
	for _, n := range env.notificationsFor(t, env.manager.ID) {
		if n.Type == models.NotifyDeadline {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("assignee got %d deadline notifications, want 1", count)
	}
}

func TestScanIgnoresFarAndCompletedTasks(t *testing.T) {
	env, svc := newDeadlineEnv(t)
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	// Far in the future: outside the horizon.
	env.createDueTask(t, now.Add(72*time.Hour).Format("2006-01-02 15:04:05"))

	// Due soon but completed.
	done := env.createDueTask(t, now.Add(6*time.Hour).Format("2006-01-02 15:04:05"))
	ctx := context.Background()
	completed := models.TaskCompleted
	if _, err := env.store.UpdateTask(ctx, done.ID, taskStatusUpdate(completed)); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	created, err := svc.Scan(ctx, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if created != 0 {
		t.Fatalf("scan created %d reminders, want 0", created)
	}
}

func TestScanSkipsUnparsableDueDate(t *testing.T) {
	env, svc := newDeadlineEnv(t)
	env.createDueTask(t, "next tuesday-ish")

	created, err := svc.Scan(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("scan must not fail on bad dates: %v", err)
	}
	if created != 0 {
		t.Fatalf("scan created %d reminders for an unparsable date, want 0", created)
	}
}

func TestScanOverdueFallsBackToCreator(t *testing.T) {
	env, svc := newDeadlineEnv(t)
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	// A broadcast task has no single assignee; the creator is
	// responsible.
	ctx := context.Background()
	task := &models.Task{
		Title:                 "Org-wide audit",
		Priority:              "high",
		Status:                models.TaskAssigned,
		CreatedBy:             env.admin.ID,
		AssignedToAllManagers: true,
		DueDate:               now.Add(-6 * time.Hour).Format("2006-01-02 15:04:05"),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := env.store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	created, err := svc.Scan(ctx, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if created != 1 {
		t.Fatalf("scan created %d reminders, want 1", created)
	}

	found := false
	for _, n := range env.notificationsFor(t, env.admin.ID) {
		if n.Type == models.NotifyDeadline {
			found = true
		}
	}
	if !found {
		t.Fatal("creator got no overdue notification")
	}
}
