package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskgrid/internal/models"
	"taskgrid/internal/store"
)

// DashboardStats is the admin overview: counts by status and role,
// the pending review queue, and recent activity volume.
type DashboardStats struct {
	TasksByStatus        map[models.TaskStatus]int    `json:"tasks_by_status"`
	SubtasksByStatus     map[models.SubtaskStatus]int `json:"subtasks_by_status"`
	PendingWorkApprovals int                          `json:"pending_work_approvals"`
	UsersByRole          map[models.Role]int          `json:"users_by_role"`
	RecentActivityCount  int                          `json:"recent_activity_count"`
}

// DashboardService aggregates counts for the admin dashboard.
type DashboardService struct {
	store store.Store
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(st store.Store) *DashboardService {
	return &DashboardService{store: st}
}

// Stats computes the dashboard aggregates. Admin only.
func (s *DashboardService) Stats(ctx context.Context, actorID primitive.ObjectID) (*DashboardStats, error) {
	if _, err := requireRole(ctx, s.store, actorID, models.RoleAdmin); err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TasksByStatus:    make(map[models.TaskStatus]int),
		SubtasksByStatus: make(map[models.SubtaskStatus]int),
		UsersByRole:      make(map[models.Role]int),
	}

	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		stats.TasksByStatus[t.Status]++
	}

	subtasks, err := s.store.ListSubtasks(ctx, store.SubtaskFilter{})
	if err != nil {
		return nil, err
	}
	for _, st := range subtasks {
		stats.SubtasksByStatus[st.Status]++
	}

	pending, err := s.store.ListWorkUploads(ctx, store.WorkFilter{ApprovalStatus: models.ApprovalPending})
	if err != nil {
		return nil, err
	}
	stats.PendingWorkApprovals = len(pending)

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		stats.UsersByRole[u.Role]++
	}

	recent, err := s.store.ListTimeline(ctx, store.TimelineFilter{
		Since: time.Now().UTC().AddDate(0, 0, -7),
	})
	if err != nil {
		return nil, err
	}
	stats.RecentActivityCount = len(recent)
	return stats, nil
}
