package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/apperr"
	"taskgrid/internal/middleware"
	"taskgrid/internal/models"
	"taskgrid/internal/services"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	authService         *services.AuthService
	taskService         *services.TaskService
	subtaskService      *services.SubtaskService
	approvalService     *services.ApprovalService
	workService         *services.WorkService
	notificationService *services.NotificationService
	dashboardService    *services.DashboardService
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	authService *services.AuthService,
	taskService *services.TaskService,
	subtaskService *services.SubtaskService,
	approvalService *services.ApprovalService,
	workService *services.WorkService,
	notificationService *services.NotificationService,
	dashboardService *services.DashboardService,
) *Handlers {
	return &Handlers{
		authService:         authService,
		taskService:         taskService,
		subtaskService:      subtaskService,
		approvalService:     approvalService,
		workService:         workService,
		notificationService: notificationService,
		dashboardService:    dashboardService,
	}
}

// fail maps a domain error to its HTTP status.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": apperr.KindOf(err)})
}

func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return primitive.NilObjectID, false
	}
	return id, true
}

// ---- Auth ----

// RegisterHandler handles POST /auth/register
func (h *Handlers) RegisterHandler(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
}

// LoginHandler handles POST /auth/login
func (h *Handlers) LoginHandler(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// MeHandler handles GET /auth/me
func (h *Handlers) MeHandler(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfileHandler handles PUT /auth/profile
func (h *Handlers) UpdateProfileHandler(c *gin.Context) {
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.authService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req.FirstName, req.LastName, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ---- Tasks ----

// CreateTaskHandler handles POST /data/tasks
func (h *Handlers) CreateTaskHandler(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.taskService.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// ListTasksHandler handles GET /data/tasks
func (h *Handlers) ListTasksHandler(c *gin.Context) {
	tasks, err := h.taskService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// GetTaskHandler handles GET /data/tasks/:id
func (h *Handlers) GetTaskHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	task, err := h.taskService.Get(c.Request.Context(), middleware.GetUserID(c), taskID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTaskHandler handles PUT /data/tasks/:id
func (h *Handlers) UpdateTaskHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.taskService.Update(c.Request.Context(), middleware.GetUserID(c), taskID, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ArchiveTaskHandler handles DELETE /data/tasks/:id (soft archive)
func (h *Handlers) ArchiveTaskHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.taskService.Archive(c.Request.Context(), middleware.GetUserID(c), taskID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task archived"})
}

// ---- Subtasks ----

// CreateSubtasksHandler handles POST /subtasks
func (h *Handlers) CreateSubtasksHandler(c *gin.Context) {
	var req models.CreateSubtasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subtasks, err := h.subtaskService.CreateBatch(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subtasks": subtasks})
}

// ListTaskSubtasksHandler handles GET /tasks/:id/subtasks
func (h *Handlers) ListTaskSubtasksHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	subtasks, err := h.subtaskService.ListForTask(c.Request.Context(), middleware.GetUserID(c), taskID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})
}

// ListMySubtasksHandler handles GET /my-subtasks
func (h *Handlers) ListMySubtasksHandler(c *gin.Context) {
	subtasks, err := h.subtaskService.ListMine(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})
}

// StartSubtaskHandler handles POST /subtasks/:id/start
func (h *Handlers) StartSubtaskHandler(c *gin.Context) {
	subtaskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	subtask, err := h.subtaskService.Start(c.Request.Context(), middleware.GetUserID(c), subtaskID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subtask)
}

// ---- Approvals ----

// ApproveSubtaskHandler handles POST /manager/subtasks/:id/approve
func (h *Handlers) ApproveSubtaskHandler(c *gin.Context) {
	subtaskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	_ = c.ShouldBindJSON(&req) // feedback optional on approval
	subtask, err := h.approvalService.ApproveSubtask(c.Request.Context(), middleware.GetUserID(c), subtaskID, req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subtask)
}

// RejectSubtaskHandler handles POST /manager/subtasks/:id/reject
func (h *Handlers) RejectSubtaskHandler(c *gin.Context) {
	subtaskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subtask, err := h.approvalService.RejectSubtask(c.Request.Context(), middleware.GetUserID(c), subtaskID, req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subtask)
}

// PendingSubtasksHandler handles GET /manager/pending-approvals
func (h *Handlers) PendingSubtasksHandler(c *gin.Context) {
	subtasks, err := h.approvalService.PendingSubtasks(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})
}

// ApproveTaskHandler handles POST /admin/tasks/:id/approve
func (h *Handlers) ApproveTaskHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	_ = c.ShouldBindJSON(&req)
	task, err := h.approvalService.ApproveTask(c.Request.Context(), middleware.GetUserID(c), taskID, req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// RejectTaskHandler handles POST /admin/tasks/:id/reject
func (h *Handlers) RejectTaskHandler(c *gin.Context) {
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.approvalService.RejectTask(c.Request.Context(), middleware.GetUserID(c), taskID, req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// PendingTasksHandler handles GET /admin/pending-approvals
func (h *Handlers) PendingTasksHandler(c *gin.Context) {
	tasks, err := h.approvalService.PendingTasks(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ---- Work uploads ----

// SubmitWorkHandler handles POST /work-uploads (multipart form)
func (h *Handlers) SubmitWorkHandler(c *gin.Context) {
	progress := 0.0
	if p := c.PostForm("progress"); p != "" {
		parsed, err := strconv.ParseFloat(p, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid progress"})
			return
		}
		progress = parsed
	}
	req := models.SubmitWorkRequest{
		TaskID:      c.PostForm("task_id"),
		SubtaskID:   c.PostForm("subtask_id"),
		Description: c.PostForm("description"),
		Progress:    progress,
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	var files []services.FileUpload
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
			return
		}
		defer f.Close()
		files = append(files, services.FileUpload{Name: fh.Filename, Size: fh.Size, Reader: f})
	}

	work, err := h.workService.Submit(c.Request.Context(), middleware.GetUserID(c), req, files)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, work)
}

// ListWorkUploadsHandler handles GET /work-uploads
func (h *Handlers) ListWorkUploadsHandler(c *gin.Context) {
	uploads, err := h.workService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"work_uploads": uploads})
}

// PendingWorkHandler handles GET /work-uploads/pending
func (h *Handlers) PendingWorkHandler(c *gin.Context) {
	uploads, err := h.workService.Pending(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"work_uploads": uploads})
}

// ReviewWorkHandler handles POST /work-uploads/:id/review
func (h *Handlers) ReviewWorkHandler(c *gin.Context) {
	workID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.ReviewWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	work, err := h.workService.Review(c.Request.Context(), middleware.GetUserID(c), workID, req.Action, req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, work)
}

// OpenWorkFileHandler handles GET /work-uploads/:id/files/:index
func (h *Handlers) OpenWorkFileHandler(c *gin.Context) {
	workID, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file index"})
		return
	}
	rc, contentType, name, err := h.workService.OpenFile(c.Request.Context(), middleware.GetUserID(c), workID, index)
	if err != nil {
		fail(c, err)
		return
	}
	defer rc.Close()
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

// ---- Notifications & timeline ----

// ListNotificationsHandler handles GET /notifications
func (h *Handlers) ListNotificationsHandler(c *gin.Context) {
	notifications, err := h.notificationService.ListMine(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkNotificationReadHandler handles POST /notifications/:id/read
func (h *Handlers) MarkNotificationReadHandler(c *gin.Context) {
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(c.Request.Context(), middleware.GetUserID(c), notificationID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// UnreadCountHandler handles GET /notifications/unread-count
func (h *Handlers) UnreadCountHandler(c *gin.Context) {
	count, err := h.notificationService.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func timelineQuery(c *gin.Context) (int, string) {
	days := 7
	if d := c.Query("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil {
			days = parsed
		}
	}
	return days, c.Query("action_type")
}

// MyTimelineHandler handles GET /timeline/my
func (h *Handlers) MyTimelineHandler(c *gin.Context) {
	days, actionType := timelineQuery(c)
	entries, err := h.notificationService.MyTimeline(c.Request.Context(), middleware.GetUserID(c), days, actionType)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

// TeamTimelineHandler handles GET /timeline/team
func (h *Handlers) TeamTimelineHandler(c *gin.Context) {
	days, actionType := timelineQuery(c)
	entries, err := h.notificationService.TeamTimeline(c.Request.Context(), middleware.GetUserID(c), days, actionType)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

// ---- Admin ----

// DashboardHandler handles GET /admin/dashboard
func (h *Handlers) DashboardHandler(c *gin.Context) {
	stats, err := h.dashboardService.Stats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
