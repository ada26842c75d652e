package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/models"
)

// Memory is an in-process Store used by tests and local development.
// It mirrors the Mongo implementation's semantics, including the
// compare-and-swap status updates and deadline deduplication.
type Memory struct {
	mu            sync.Mutex
	users         map[primitive.ObjectID]*models.User
	projects      map[primitive.ObjectID]*models.Project
	tasks         map[primitive.ObjectID]*models.Task
	subtasks      map[primitive.ObjectID]*models.Subtask
	workUploads   map[primitive.ObjectID]*models.WorkUpload
	notifications map[primitive.ObjectID]*models.Notification
	timeline      []*models.TimelineEntry
	deadlineSeen  map[string]bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[primitive.ObjectID]*models.User),
		projects:      make(map[primitive.ObjectID]*models.Project),
		tasks:         make(map[primitive.ObjectID]*models.Task),
		subtasks:      make(map[primitive.ObjectID]*models.Subtask),
		workUploads:   make(map[primitive.ObjectID]*models.WorkUpload),
		notifications: make(map[primitive.ObjectID]*models.Notification),
		deadlineSeen:  make(map[string]bool),
	}
}

// ---- Users ----

func (s *Memory) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Memory) UserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) UserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) UsersByRole(_ context.Context, role models.Role, activeOnly bool) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.User
	for _, u := range s.users {
		if u.Role != role {
			continue
		}
		if activeOnly && !u.IsActive {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) UpdateUserProfile(_ context.Context, id primitive.ObjectID, firstName, lastName, email *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if email != nil {
		for _, other := range s.users {
			if other.ID != id && other.Email == *email {
				return nil, ErrDuplicate
			}
		}
		u.Email = *email
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

// ---- Projects ----

func (s *Memory) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Memory) ProjectByID(_ context.Context, id primitive.ObjectID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Memory) ListProjects(_ context.Context) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- Tasks ----

func (s *Memory) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Memory) TaskByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func matchTask(t *models.Task, f TaskFilter) bool {
	if !f.IncludeArchived && t.Archived {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if t.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, st := range f.ExcludeStatuses {
		if t.Status == st {
			return false
		}
	}
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
		return false
	}
	if f.BroadcastOnly && !t.AssignedToAllManagers {
		return false
	}
	if f.HasDueDate && t.DueDate == "" {
		return false
	}
	return true
}

func (s *Memory) ListTasks(_ context.Context, f TaskFilter) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Task
	for _, t := range s.tasks {
		if matchTask(t, f) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func applyTaskUpdate(t *models.Task, upd TaskUpdate) {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Progress != nil {
		t.Progress = *upd.Progress
	}
	if upd.HasSubtasks != nil {
		t.HasSubtasks = *upd.HasSubtasks
	}
	if upd.SubtasksCount != nil {
		t.SubtasksCount = *upd.SubtasksCount
	}
	if upd.AllSubtasksApproved != nil {
		t.AllSubtasksApproved = *upd.AllSubtasksApproved
	}
	if upd.StartDate != nil {
		t.StartDate = *upd.StartDate
	}
	if upd.DueDate != nil {
		t.DueDate = *upd.DueDate
	}
	if upd.AdminFeedback != nil {
		t.AdminFeedback = *upd.AdminFeedback
	}
	if upd.ApprovedByAdmin != nil {
		t.ApprovedByAdmin = upd.ApprovedByAdmin
	}
	if upd.AdminApprovedAt != nil {
		t.AdminApprovedAt = upd.AdminApprovedAt
	}
	if upd.RejectedByAdmin != nil {
		t.RejectedByAdmin = upd.RejectedByAdmin
	}
	if upd.AdminRejectedAt != nil {
		t.AdminRejectedAt = upd.AdminRejectedAt
	}
	if upd.Archived != nil {
		t.Archived = *upd.Archived
	}
	t.UpdatedAt = time.Now().UTC()
}

func (s *Memory) UpdateTask(_ context.Context, id primitive.ObjectID, upd TaskUpdate) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	applyTaskUpdate(t, upd)
	cp := *t
	return &cp, nil
}

func (s *Memory) UpdateTaskStatus(_ context.Context, id primitive.ObjectID, expected models.TaskStatus, upd TaskUpdate) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != expected {
		return nil, ErrStaleStatus
	}
	applyTaskUpdate(t, upd)
	cp := *t
	return &cp, nil
}

// ---- Subtasks ----

func (s *Memory) CreateSubtasks(_ context.Context, subtasks []*models.Subtask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Holding the lock for the whole batch gives the same all-or-nothing
	// visibility as the Mongo transaction.
	for _, st := range subtasks {
		if st.ID.IsZero() {
			st.ID = primitive.NewObjectID()
		}
	}
	for _, st := range subtasks {
		cp := *st
		s.subtasks[st.ID] = &cp
	}
	return nil
}

func (s *Memory) SubtaskByID(_ context.Context, id primitive.ObjectID) (*models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subtasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Memory) ListSubtasks(_ context.Context, f SubtaskFilter) ([]models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Subtask
	for _, st := range s.subtasks {
		if f.TaskID != nil && st.TaskID != *f.TaskID {
			continue
		}
		if f.AssignedTo != nil && st.AssignedTo != *f.AssignedTo {
			continue
		}
		if f.AssignedBy != nil && st.AssignedBy != *f.AssignedBy {
			continue
		}
		if len(f.Statuses) > 0 {
			found := false
			for _, want := range f.Statuses {
				if st.Status == want {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func applySubtaskUpdate(st *models.Subtask, upd SubtaskUpdate) {
	if upd.Status != nil {
		st.Status = *upd.Status
	}
	if upd.Progress != nil {
		st.Progress = *upd.Progress
	}
	if upd.Description != nil {
		st.Description = *upd.Description
	}
	if upd.ManagerFeedback != nil {
		st.ManagerFeedback = *upd.ManagerFeedback
	}
	if upd.ApprovedBy != nil {
		st.ApprovedBy = upd.ApprovedBy
	}
	if upd.ApprovedAt != nil {
		st.ApprovedAt = upd.ApprovedAt
	}
	if upd.RejectedBy != nil {
		st.RejectedBy = upd.RejectedBy
	}
	if upd.RejectedAt != nil {
		st.RejectedAt = upd.RejectedAt
	}
	st.UpdatedAt = time.Now().UTC()
}

func (s *Memory) UpdateSubtaskStatus(_ context.Context, id primitive.ObjectID, expected []models.SubtaskStatus, upd SubtaskUpdate) (*models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subtasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	match := false
	for _, want := range expected {
		if st.Status == want {
			match = true
			break
		}
	}
	if !match {
		return nil, ErrStaleStatus
	}
	applySubtaskUpdate(st, upd)
	cp := *st
	return &cp, nil
}

func (s *Memory) RevertApprovedSubtasks(_ context.Context, taskID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, st := range s.subtasks {
		if st.TaskID == taskID && st.Status == models.SubtaskApproved {
			st.Status = models.SubtaskNeedsRevision
			st.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// ---- Work uploads ----

func (s *Memory) CreateWorkUpload(_ context.Context, w *models.WorkUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	cp := *w
	s.workUploads[w.ID] = &cp
	return nil
}

func (s *Memory) WorkUploadByID(_ context.Context, id primitive.ObjectID) (*models.WorkUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workUploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Memory) ListWorkUploads(_ context.Context, f WorkFilter) ([]models.WorkUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.WorkUpload
	for _, w := range s.workUploads {
		if f.UserID != nil && w.UserID != *f.UserID {
			continue
		}
		if f.TaskID != nil && (w.TaskID == nil || *w.TaskID != *f.TaskID) {
			continue
		}
		if f.SubtaskID != nil && (w.SubtaskID == nil || *w.SubtaskID != *f.SubtaskID) {
			continue
		}
		if f.ApprovalStatus != "" && w.ApprovalStatus != f.ApprovalStatus {
			continue
		}
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *Memory) ReviewWorkUpload(_ context.Context, id primitive.ObjectID, upd ReviewUpdate) (*models.WorkUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workUploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	if w.ApprovalStatus != models.ApprovalPending {
		return nil, ErrStaleStatus
	}
	w.ApprovalStatus = upd.ApprovalStatus
	reviewer := upd.ReviewedBy
	w.ReviewedBy = &reviewer
	w.ReviewFeedback = upd.Feedback
	reviewedAt := upd.ReviewedAt
	w.ReviewedAt = &reviewedAt
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

// ---- Notifications ----

func (s *Memory) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *Memory) NotificationsByUser(_ context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) MarkNotificationRead(_ context.Context, id, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *Memory) CountUnreadNotifications(_ context.Context, userID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *Memory) CreateDeadlineNotification(_ context.Context, n *models.Notification, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.TaskID == nil {
		return false, ErrNotFound
	}
	key := DeadlineDedupKey(*n.TaskID, n.CreatedAt, window)
	if s.deadlineSeen[key] {
		return false, nil
	}
	s.deadlineSeen[key] = true
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return true, nil
}

// ---- Timeline ----

func (s *Memory) CreateTimelineEntry(_ context.Context, e *models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	cp := *e
	s.timeline = append(s.timeline, &cp)
	return nil
}

func (s *Memory) ListTimeline(_ context.Context, f TimelineFilter) ([]models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TimelineEntry
	for _, e := range s.timeline {
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.ActionType != "" && e.ActionType != f.ActionType {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
