package services

import (
	"context"
	"testing"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
)

func TestAdminBroadcastNotifiesAllManagers(t *testing.T) {
	env := newTestEnv(t)
	second := env.createUser(t, "manager2", models.RoleProjectManager)

	ctx := context.Background()
	task, err := env.tasks.Create(ctx, env.admin.ID, models.CreateTaskRequest{
		Title:     "Quarterly audit",
		Priority:  "high",
		StartDate: "2026-08-01",
		DueDate:   "2026-09-01",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !task.AssignedToAllManagers {
		t.Fatal("admin task without assignee must broadcast to all managers")
	}
	if task.Status != models.TaskAssigned {
		t.Fatalf("broadcast task status %s, want assigned", task.Status)
	}

	for _, m := range []*models.User{env.manager, second} {
		found := false
		for _, n := range env.notificationsFor(t, m.ID) {
			if n.Type == models.NotifyAdminTaskAssigned {
				found = true
			}
		}
		if !found {
			t.Fatalf("manager %s got no broadcast notification", m.Username)
		}
	}
}

func TestManagerTaskNotBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task, err := env.tasks.Create(ctx, env.manager.ID, models.CreateTaskRequest{
		Title:     "Small fix",
		Priority:  "low",
		StartDate: "2026-08-01",
		DueDate:   "2026-09-01",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.AssignedToAllManagers {
		t.Fatal("manager task must not broadcast")
	}
	if task.Status != models.TaskTodo {
		t.Fatalf("unassigned manager task status %s, want todo", task.Status)
	}
}

func TestCreateTaskForbiddenForMember(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tasks.Create(context.Background(), env.members[0].ID, models.CreateTaskRequest{
		Title: "x", Priority: "low", StartDate: "2026-08-01", DueDate: "2026-09-01",
	})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("member task creation must be forbidden, got %v", err)
	}
}

func TestListTasksByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Broadcast from the admin, one direct to the manager, and a split
	// one so a member shows up through a subtask.
	if _, err := env.tasks.Create(ctx, env.admin.ID, models.CreateTaskRequest{
		Title: "Broadcast", Priority: "high", StartDate: "2026-08-01", DueDate: "2026-09-01",
	}); err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	direct := env.createTask(t, models.TaskAssigned)
	env.splitTask(t, direct, []float64{100})

	adminView, err := env.tasks.List(ctx, env.admin.ID)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(adminView) != 2 {
		t.Fatalf("admin sees %d tasks, want 2", len(adminView))
	}

	managerView, err := env.tasks.List(ctx, env.manager.ID)
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if len(managerView) != 2 {
		t.Fatalf("manager sees %d tasks, want 2 (direct + broadcast)", len(managerView))
	}

	memberView, err := env.tasks.List(ctx, env.members[0].ID)
	if err != nil {
		t.Fatalf("member list: %v", err)
	}
	if len(memberView) != 1 || memberView[0].ID != direct.ID {
		t.Fatalf("member sees %d tasks, want the subtask parent only", len(memberView))
	}
}

func TestArchiveHidesTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	task := env.createTask(t, models.TaskAssigned)

	// Only the creator or an admin may archive.
	if err := env.tasks.Archive(ctx, env.members[0].ID, task.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("member archive must be forbidden, got %v", err)
	}
	if err := env.tasks.Archive(ctx, env.admin.ID, task.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	adminView, err := env.tasks.List(ctx, env.admin.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(adminView) != 0 {
		t.Fatalf("archived task still listed (%d entries)", len(adminView))
	}

	// Updates against an archived task are refused.
	title := "renamed"
	if _, err := env.tasks.Update(ctx, env.admin.ID, task.ID, models.UpdateTaskRequest{Title: &title}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("update of archived task must fail validation, got %v", err)
	}
}
