package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role identifies a user's position in the delegation chain.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleTeamMember     Role = "team_member"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleTeamMember:
		return true
	}
	return false
}

// User represents an account in any of the three roles.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	Role         Role               `bson:"role" json:"role"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// FullName returns "First Last", falling back to the username.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Project groups related tasks under an owning manager.
type Project struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Status      ProjectStatus      `bson:"status" json:"status"`
	OwnerID     primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// TaskStatus is the approval-chain state of a main task.
type TaskStatus string

const (
	TaskTodo          TaskStatus = "todo"
	TaskAssigned      TaskStatus = "assigned"
	TaskInProgress    TaskStatus = "in_progress"
	TaskReadyForAdmin TaskStatus = "ready_for_admin_approval"
	TaskCompleted     TaskStatus = "completed"
	TaskNeedsRevision TaskStatus = "needs_revision"
)

// FileRef points at a stored attachment. The stored key is opaque to
// the domain; the storage backend resolves it.
type FileRef struct {
	OriginalName string    `bson:"original_name" json:"original_name"`
	StoredKey    string    `bson:"stored_key" json:"stored_key"`
	Size         int64     `bson:"size" json:"size"`
	UploadedAt   time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// Task is a top-level unit of work. A task created by an admin with
// AssignedToAllManagers set is visible to every project manager rather
// than a single assignee.
type Task struct {
	ID                    primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title                 string              `bson:"title" json:"title"`
	Description           string              `bson:"description" json:"description"`
	Priority              string              `bson:"priority" json:"priority"`
	Status                TaskStatus          `bson:"status" json:"status"`
	Progress              float64             `bson:"progress" json:"progress"`
	ProjectID             *primitive.ObjectID `bson:"project_id,omitempty" json:"project_id,omitempty"`
	CreatedBy             primitive.ObjectID  `bson:"created_by" json:"created_by"`
	AssignedTo            *primitive.ObjectID `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	AssignedToAllManagers bool                `bson:"assigned_to_all_managers" json:"assigned_to_all_managers"`
	HasSubtasks           bool                `bson:"has_subtasks" json:"has_subtasks"`
	SubtasksCount         int                 `bson:"subtasks_count" json:"subtasks_count"`
	AllSubtasksApproved   bool                `bson:"all_subtasks_approved" json:"all_subtasks_approved"`
	StartDate             string              `bson:"start_date" json:"start_date"`
	DueDate               string              `bson:"due_date" json:"due_date"`
	Attachments           []FileRef           `bson:"attachments,omitempty" json:"attachments,omitempty"`
	AdminFeedback         string              `bson:"admin_feedback,omitempty" json:"admin_feedback,omitempty"`
	ApprovedByAdmin       *primitive.ObjectID `bson:"approved_by_admin,omitempty" json:"approved_by_admin,omitempty"`
	AdminApprovedAt       *time.Time          `bson:"admin_approved_at,omitempty" json:"admin_approved_at,omitempty"`
	RejectedByAdmin       *primitive.ObjectID `bson:"rejected_by_admin,omitempty" json:"rejected_by_admin,omitempty"`
	AdminRejectedAt       *time.Time          `bson:"admin_rejected_at,omitempty" json:"admin_rejected_at,omitempty"`
	Archived              bool                `bson:"archived" json:"archived"`
	CreatedAt             time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `bson:"updated_at" json:"updated_at"`
}

// SubtaskStatus is the approval-chain state of a subtask.
type SubtaskStatus string

const (
	SubtaskAssigned      SubtaskStatus = "assigned"
	SubtaskInProgress    SubtaskStatus = "in_progress"
	SubtaskSubmitted     SubtaskStatus = "submitted"
	SubtaskApproved      SubtaskStatus = "approved"
	SubtaskRejected      SubtaskStatus = "rejected"
	SubtaskNeedsRevision SubtaskStatus = "needs_revision"
)

// Subtask is a percentage-weighted share of a task assigned to a team
// member by a manager. Percentages of all subtasks under one task sum
// to exactly 100 at creation time.
type Subtask struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TaskID          primitive.ObjectID  `bson:"task_id" json:"task_id"`
	Title           string              `bson:"title" json:"title"`
	Description     string              `bson:"description" json:"description"`
	AssignedTo      primitive.ObjectID  `bson:"assigned_to" json:"assigned_to"`
	AssignedBy      primitive.ObjectID  `bson:"assigned_by" json:"assigned_by"`
	Percentage      float64             `bson:"percentage" json:"percentage"`
	Status          SubtaskStatus       `bson:"status" json:"status"`
	Progress        float64             `bson:"progress" json:"progress"`
	Priority        string              `bson:"priority" json:"priority"`
	StartDate       string              `bson:"start_date" json:"start_date"`
	DueDate         string              `bson:"due_date" json:"due_date"`
	ManagerFeedback string              `bson:"manager_feedback,omitempty" json:"manager_feedback,omitempty"`
	ApprovedBy      *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedBy      *primitive.ObjectID `bson:"rejected_by,omitempty" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time          `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
}

// ApprovalStatus is the review state of a work upload.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// WorkUpload is a dated submission of files and progress against a
// task or a subtask. The submission itself is an immutable historical
// record; only the review fields change afterwards.
type WorkUpload struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID  `bson:"user_id" json:"user_id"`
	TaskID         *primitive.ObjectID `bson:"task_id,omitempty" json:"task_id,omitempty"`
	SubtaskID      *primitive.ObjectID `bson:"subtask_id,omitempty" json:"subtask_id,omitempty"`
	Description    string              `bson:"description" json:"description"`
	Progress       float64             `bson:"progress" json:"progress"`
	Files          []FileRef           `bson:"files" json:"files"`
	Status         string              `bson:"status" json:"status"`
	ApprovalStatus ApprovalStatus      `bson:"approval_status" json:"approval_status"`
	ReviewedBy     *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewFeedback string              `bson:"review_feedback,omitempty" json:"review_feedback,omitempty"`
	ReviewedAt     *time.Time          `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	SubmittedAt    time.Time           `bson:"submitted_at" json:"submitted_at"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// NotificationType is the event kind a notification reports.
type NotificationType string

const (
	NotifyTaskAssigned      NotificationType = "task_assigned"
	NotifyAdminTaskAssigned NotificationType = "admin_task_assigned"
	NotifySubtaskAssigned   NotificationType = "subtask_assigned"
	NotifySubtaskApproved   NotificationType = "subtask_approved"
	NotifySubtaskRejected   NotificationType = "subtask_rejected"
	NotifyWorkSubmitted     NotificationType = "work_submitted"
	NotifyWorkReviewed      NotificationType = "work_reviewed"
	NotifyTaskReady         NotificationType = "task_ready_for_approval"
	NotifyTaskCompleted     NotificationType = "task_completed"
	NotifyTaskRejected      NotificationType = "task_rejected"
	NotifyDeadline          NotificationType = "deadline"
)

// Notification is an in-app message to a single recipient. Only the
// read flag is ever mutated, by the recipient.
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Type      NotificationType    `bson:"type" json:"type"`
	Title     string              `bson:"title" json:"title"`
	Message   string              `bson:"message" json:"message"`
	TaskID    *primitive.ObjectID `bson:"task_id,omitempty" json:"task_id,omitempty"`
	SubtaskID *primitive.ObjectID `bson:"subtask_id,omitempty" json:"subtask_id,omitempty"`
	WorkID    *primitive.ObjectID `bson:"work_id,omitempty" json:"work_id,omitempty"`
	Read      bool                `bson:"read" json:"read"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}

// TimelineEntry is one line of the append-only audit log.
type TimelineEntry struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID  `bson:"user_id" json:"user_id"`
	ActionType  string              `bson:"action_type" json:"action_type"`
	Description string              `bson:"description" json:"description"`
	TaskID      *primitive.ObjectID `bson:"task_id,omitempty" json:"task_id,omitempty"`
	SubtaskID   *primitive.ObjectID `bson:"subtask_id,omitempty" json:"subtask_id,omitempty"`
	Metadata    map[string]any      `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
}
