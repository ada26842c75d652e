package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// testEnv wires the full service stack against the in-memory store.
type testEnv struct {
	store    *store.Memory
	fanout   *Fanout
	tasks    *TaskService
	subtasks *SubtaskService
	approval *ApprovalService
	work     *WorkService

	admin   *models.User
	manager *models.User
	members []*models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return buildTestEnv(t, config.EmailConfig{Enabled: false}, nil)
}

// newEmailTestEnv enables email delivery through a capturing mailer.
func newEmailTestEnv(t *testing.T) (*testEnv, *captureMailer) {
	t.Helper()
	mailer := &captureMailer{}
	email := config.EmailConfig{
		Enabled:   true,
		FromEmail: "noreply@example.com",
		AppURL:    "http://localhost:3000",
	}
	return buildTestEnv(t, email, mailer), mailer
}

func buildTestEnv(t *testing.T, email config.EmailConfig, mailer Mailer) *testEnv {
	t.Helper()

	st := store.NewMemory()
	fanout := NewFanout(st, mailer)
	t.Cleanup(fanout.Close)

	approval := NewApprovalService(st, fanout, email)
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("create local storage: %v", err)
	}

	env := &testEnv{
		store:    st,
		fanout:   fanout,
		tasks:    NewTaskService(st, fanout, email),
		subtasks: NewSubtaskService(st, fanout, email),
		approval: approval,
		work:     NewWorkService(st, storage, fanout, approval, email),
	}

	env.admin = env.createUser(t, "admin1", models.RoleAdmin)
	env.manager = env.createUser(t, "manager1", models.RoleProjectManager)
	for i := 0; i < 3; i++ {
		env.members = append(env.members, env.createUser(t, fmt.Sprintf("member%d", i+1), models.RoleTeamMember))
	}
	return env
}

// captureMailer records deliveries instead of sending them.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedEmail
}

type capturedEmail struct {
	To      string
	Subject string
}

func (m *captureMailer) Send(_ context.Context, to, subject, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedEmail{To: to, Subject: subject})
	return nil
}

// sentSubject counts the deliveries of one subject to one recipient.
func (m *captureMailer) sentSubject(to, subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sent {
		if e.To == to && e.Subject == subject {
			n++
		}
	}
	return n
}

func (e *testEnv) createUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		FirstName:    username,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// createTask creates an admin-to-manager task directly in the store.
func (e *testEnv) createTask(t *testing.T, status models.TaskStatus) *models.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &models.Task{
		Title:      "Quarterly report",
		Priority:   "high",
		Status:     status,
		CreatedBy:  e.admin.ID,
		AssignedTo: &e.manager.ID,
		StartDate:  "2026-08-01",
		DueDate:    "2026-09-01",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// splitTask creates one subtask per member with the given percentages
// through the service, then returns the created subtasks.
func (e *testEnv) splitTask(t *testing.T, task *models.Task, percentages []float64) []models.Subtask {
	t.Helper()
	req := models.CreateSubtasksRequest{TaskID: task.ID.Hex()}
	for i, pct := range percentages {
		req.Subtasks = append(req.Subtasks, models.SubtaskInput{
			Title:      fmt.Sprintf("Part %d", i+1),
			AssignedTo: e.members[i%len(e.members)].ID.Hex(),
			Percentage: pct,
		})
	}
	subtasks, err := e.subtasks.CreateBatch(context.Background(), e.manager.ID, req)
	if err != nil {
		t.Fatalf("create subtasks: %v", err)
	}
	return subtasks
}

// submitAll moves every subtask to submitted, as if each member had
// uploaded work.
func (e *testEnv) submitAll(t *testing.T, subtasks []models.Subtask) {
	t.Helper()
	submitted := models.SubtaskSubmitted
	for _, st := range subtasks {
		if _, err := e.store.UpdateSubtaskStatus(context.Background(), st.ID,
			[]models.SubtaskStatus{
				models.SubtaskAssigned,
				models.SubtaskInProgress,
				models.SubtaskRejected,
				models.SubtaskNeedsRevision,
			},
			store.SubtaskUpdate{Status: &submitted}); err != nil {
			t.Fatalf("submit subtask %s: %v", st.ID.Hex(), err)
		}
	}
}

func (e *testEnv) taskStatus(t *testing.T, id primitive.ObjectID) models.TaskStatus {
	t.Helper()
	task, err := e.store.TaskByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	return task.Status
}

func (e *testEnv) notificationsFor(t *testing.T, userID primitive.ObjectID) []models.Notification {
	t.Helper()
	e.fanout.Drain()
	out, err := e.store.NotificationsByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return out
}
