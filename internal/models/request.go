package models

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Role      Role   `json:"role"` // Optional, defaults to team_member
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token and the public user record.
type LoginResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// CreateTaskRequest creates a main task. An admin caller may omit
// assigned_to to broadcast the task to all project managers.
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Priority    string `json:"priority" binding:"required"`
	ProjectID   string `json:"project_id"`
	AssignedTo  string `json:"assigned_to"`
	StartDate   string `json:"start_date" binding:"required"`
	DueDate     string `json:"due_date" binding:"required"` // YYYY-MM-DD or RFC 3339
}

// UpdateTaskRequest patches mutable task fields. Nil pointers are
// left untouched.
type UpdateTaskRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Priority    *string  `json:"priority"`
	Progress    *float64 `json:"progress"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
}

// SubtaskInput is one entry of a subtask creation batch.
type SubtaskInput struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	AssignedTo  string  `json:"assigned_to" binding:"required"`
	Percentage  float64 `json:"percentage"`
	Priority    string  `json:"priority"`
	StartDate   string  `json:"start_date"`
	DueDate     string  `json:"due_date"`
}

// CreateSubtasksRequest splits a task into percentage-weighted
// subtasks. The percentages of the whole batch must sum to exactly
// 100; the batch commits all-or-nothing.
type CreateSubtasksRequest struct {
	TaskID   string         `json:"task_id" binding:"required"`
	Subtasks []SubtaskInput `json:"subtasks"`
}

// SubmitWorkRequest uploads work against a task or a subtask. Exactly
// one of TaskID and SubtaskID must be set.
type SubmitWorkRequest struct {
	TaskID      string  `json:"task_id"`
	SubtaskID   string  `json:"subtask_id"`
	Description string  `json:"description"`
	Progress    float64 `json:"progress"`
}

// ReviewAction is a work review decision.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// ReviewWorkRequest approves or rejects a submitted work upload.
// Feedback is mandatory for rejections.
type ReviewWorkRequest struct {
	Action   ReviewAction `json:"action" binding:"required"`
	Feedback string       `json:"feedback"`
}

// FeedbackRequest carries the reviewer's feedback for approval-chain
// decisions (subtask approve/reject, admin task approve/reject).
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}
