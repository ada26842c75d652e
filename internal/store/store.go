// Package store is the persistence boundary. Services receive a Store
// rather than reaching for collection handles, so the Mongo-backed
// implementation and the in-memory test double are interchangeable.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/models"
)

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("store: not found")

	// ErrStaleStatus is returned by compare-and-swap updates when the
	// persisted status no longer matches the expected pre-state.
	ErrStaleStatus = errors.New("store: status precondition failed")

	// ErrDuplicate is returned on unique-constraint violations.
	ErrDuplicate = errors.New("store: duplicate")
)

// TaskFilter narrows ListTasks. Zero values match everything except
// archived tasks, which are excluded unless IncludeArchived is set.
type TaskFilter struct {
	Statuses        []models.TaskStatus
	ExcludeStatuses []models.TaskStatus
	CreatedBy       *primitive.ObjectID
	AssignedTo      *primitive.ObjectID
	BroadcastOnly   bool
	HasDueDate      bool
	IncludeArchived bool
}

// TaskUpdate patches task fields. Nil pointers are left untouched;
// the store stamps updated_at on every write.
type TaskUpdate struct {
	Title               *string
	Description         *string
	Priority            *string
	Status              *models.TaskStatus
	Progress            *float64
	HasSubtasks         *bool
	SubtasksCount       *int
	AllSubtasksApproved *bool
	StartDate           *string
	DueDate             *string
	AdminFeedback       *string
	ApprovedByAdmin     *primitive.ObjectID
	AdminApprovedAt     *time.Time
	RejectedByAdmin     *primitive.ObjectID
	AdminRejectedAt     *time.Time
	Archived            *bool
}

// SubtaskFilter narrows ListSubtasks.
type SubtaskFilter struct {
	TaskID     *primitive.ObjectID
	AssignedTo *primitive.ObjectID
	AssignedBy *primitive.ObjectID
	Statuses   []models.SubtaskStatus
}

// SubtaskUpdate patches subtask fields.
type SubtaskUpdate struct {
	Status          *models.SubtaskStatus
	Progress        *float64
	Description     *string
	ManagerFeedback *string
	ApprovedBy      *primitive.ObjectID
	ApprovedAt      *time.Time
	RejectedBy      *primitive.ObjectID
	RejectedAt      *time.Time
}

// WorkFilter narrows ListWorkUploads.
type WorkFilter struct {
	UserID         *primitive.ObjectID
	TaskID         *primitive.ObjectID
	SubtaskID      *primitive.ObjectID
	ApprovalStatus models.ApprovalStatus
}

// ReviewUpdate appends review fields to a pending work upload. The
// original submission record is never rewritten.
type ReviewUpdate struct {
	ApprovalStatus models.ApprovalStatus
	ReviewedBy     primitive.ObjectID
	Feedback       string
	ReviewedAt     time.Time
}

// TimelineFilter narrows ListTimeline.
type TimelineFilter struct {
	UserID     *primitive.ObjectID
	ActionType string
	Since      time.Time
	Limit      int
}

// Store is the entity store consumed by every service.
//
// Status-transition methods take an expected pre-state and fail with
// ErrStaleStatus when the persisted document has moved on; that guard
// is what serializes concurrent transitions on the same entity.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UsersByRole(ctx context.Context, role models.Role, activeOnly bool) ([]models.User, error)
	UpdateUserProfile(ctx context.Context, id primitive.ObjectID, firstName, lastName, email *string) (*models.User, error)

	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	ProjectByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	TaskByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, id primitive.ObjectID, upd TaskUpdate) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id primitive.ObjectID, expected models.TaskStatus, upd TaskUpdate) (*models.Task, error)

	// Subtasks
	CreateSubtasks(ctx context.Context, subtasks []*models.Subtask) error
	SubtaskByID(ctx context.Context, id primitive.ObjectID) (*models.Subtask, error)
	ListSubtasks(ctx context.Context, f SubtaskFilter) ([]models.Subtask, error)
	UpdateSubtaskStatus(ctx context.Context, id primitive.ObjectID, expected []models.SubtaskStatus, upd SubtaskUpdate) (*models.Subtask, error)
	RevertApprovedSubtasks(ctx context.Context, taskID primitive.ObjectID) (int64, error)

	// Work uploads
	CreateWorkUpload(ctx context.Context, w *models.WorkUpload) error
	WorkUploadByID(ctx context.Context, id primitive.ObjectID) (*models.WorkUpload, error)
	ListWorkUploads(ctx context.Context, f WorkFilter) ([]models.WorkUpload, error)
	ReviewWorkUpload(ctx context.Context, id primitive.ObjectID, upd ReviewUpdate) (*models.WorkUpload, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	NotificationsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) error
	CountUnreadNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error)
	// CreateDeadlineNotification inserts n unless a deadline
	// notification for the same task already exists within the window
	// ending at n.CreatedAt. The check and the insert are one atomic
	// step; it reports whether the insert happened.
	CreateDeadlineNotification(ctx context.Context, n *models.Notification, window time.Duration) (bool, error)

	// Timeline
	CreateTimelineEntry(ctx context.Context, e *models.TimelineEntry) error
	ListTimeline(ctx context.Context, f TimelineFilter) ([]models.TimelineEntry, error)
}
