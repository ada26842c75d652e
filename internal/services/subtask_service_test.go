package services

import (
	"context"
	"testing"

	"taskgrid/internal/apperr"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

func TestCreateBatchRejectedBatchPersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)

	req := models.CreateSubtasksRequest{
		TaskID: task.ID.Hex(),
		Subtasks: []models.SubtaskInput{
			{Title: "Part 1", AssignedTo: env.members[0].ID.Hex(), Percentage: 40},
			{Title: "Part 2", AssignedTo: env.members[1].ID.Hex(), Percentage: 35},
			{Title: "Part 3", AssignedTo: env.members[2].ID.Hex(), Percentage: 20},
		},
	}
	ctx := context.Background()
	_, err := env.subtasks.CreateBatch(ctx, env.manager.ID, req)
	if apperr.KindOf(err) != apperr.KindAllocation {
		t.Fatalf("want allocation error, got %v", err)
	}

	persisted, err := env.store.ListSubtasks(ctx, store.SubtaskFilter{TaskID: &task.ID})
	if err != nil {
		t.Fatalf("list subtasks: %v", err)
	}
	if len(persisted) != 0 {
		t.Fatalf("rejected batch persisted %d subtasks, want 0", len(persisted))
	}
	if env.taskStatus(t, task.ID) != models.TaskAssigned {
		t.Fatal("rejected batch mutated the task")
	}
}

func TestCreateBatchUpdatesParentAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{40, 35, 25})

	if len(subtasks) != 3 {
		t.Fatalf("created %d subtasks, want 3", len(subtasks))
	}
	ctx := context.Background()
	parent, err := env.store.TaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	if parent.Status != models.TaskInProgress {
		t.Fatalf("parent status %s, want in_progress", parent.Status)
	}
	if !parent.HasSubtasks || parent.SubtasksCount != 3 {
		t.Fatalf("parent subtask bookkeeping wrong: has=%v count=%d", parent.HasSubtasks, parent.SubtasksCount)
	}

	for _, m := range env.members {
		found := false
		for _, n := range env.notificationsFor(t, m.ID) {
			if n.Type == models.NotifySubtaskAssigned {
				found = true
			}
		}
		if !found {
			t.Fatalf("member %s got no assignment notification", m.Username)
		}
	}
}

func TestCreateBatchRecordsTimelineMetadata(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	subtasks := env.splitTask(t, task, []float64{70, 30})
	env.fanout.Drain()

	ctx := context.Background()
	entries, err := env.store.ListTimeline(ctx, store.TimelineFilter{ActionType: "subtask_created"})
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if len(entries) != len(subtasks) {
		t.Fatalf("got %d timeline entries, want %d", len(entries), len(subtasks))
	}
	want := map[float64]bool{70: false, 30: false}
	for _, entry := range entries {
		pct, ok := entry.Metadata["percentage"].(float64)
		if !ok {
			t.Fatalf("entry %q has no percentage metadata: %+v", entry.Description, entry.Metadata)
		}
		if id, _ := entry.Metadata["assigned_to"].(string); id == "" {
			t.Fatalf("entry %q has no assigned_to metadata", entry.Description)
		}
		want[pct] = true
	}
	for pct, seen := range want {
		if !seen {
			t.Fatalf("no timeline entry recorded percentage %g", pct)
		}
	}
}

func TestCreateBatchForbiddenForMember(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)

	req := models.CreateSubtasksRequest{
		TaskID: task.ID.Hex(),
		Subtasks: []models.SubtaskInput{
			{Title: "Part 1", AssignedTo: env.members[0].ID.Hex(), Percentage: 100},
		},
	}
	_, err := env.subtasks.CreateBatch(context.Background(), env.members[0].ID, req)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("member split must be forbidden, got %v", err)
	}
}

func TestCreateBatchRejectsInactiveAssignee(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)

	ctx := context.Background()
	inactive := &models.User{
		Username: "ghost",
		Email:    "ghost@example.com",
		Role:     models.RoleTeamMember,
		IsActive: false,
	}
	if err := env.store.CreateUser(ctx, inactive); err != nil {
		t.Fatalf("create user: %v", err)
	}

	req := models.CreateSubtasksRequest{
		TaskID: task.ID.Hex(),
		Subtasks: []models.SubtaskInput{
			{Title: "Part 1", AssignedTo: inactive.ID.Hex(), Percentage: 100},
		},
	}
	_, err := env.subtasks.CreateBatch(ctx, env.manager.ID, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("inactive assignee must fail validation, got %v", err)
	}
}

func TestCreateBatchArchivedTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, models.TaskAssigned)
	ctx := context.Background()
	archived := true
	if _, err := env.store.UpdateTask(ctx, task.ID, store.TaskUpdate{Archived: &archived}); err != nil {
		t.Fatalf("archive task: %v", err)
	}

	req := models.CreateSubtasksRequest{
		TaskID: task.ID.Hex(),
		Subtasks: []models.SubtaskInput{
			{Title: "Part 1", AssignedTo: env.members[0].ID.Hex(), Percentage: 100},
		},
	}
	_, err := env.subtasks.CreateBatch(ctx, env.manager.ID, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("splitting an archived task must fail validation, got %v", err)
	}
}
