package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"taskgrid/internal/config"
	"taskgrid/internal/models"
	"taskgrid/internal/store"
	"taskgrid/internal/utils"
)

// dedupWindow limits each task to one deadline reminder per window.
const dedupWindow = 12 * time.Hour

// horizon bounds the scan to due dates near now, in both directions.
const horizon = 24 * time.Hour

// DeadlineService periodically scans for tasks that are due soon or
// recently overdue and reminds the responsible user. Scans are
// idempotent per window: running twice in a row creates nothing new.
type DeadlineService struct {
	store  store.Store
	fanout *Fanout
	email  config.EmailConfig
	cron   *cron.Cron
}

// NewDeadlineService creates a new deadline service.
func NewDeadlineService(st store.Store, fanout *Fanout, email config.EmailConfig, schedule string) (*DeadlineService, error) {
	s := &DeadlineService{
		store:  st,
		fanout: fanout,
		email:  email,
		cron:   cron.New(),
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Scan(ctx, time.Now().UTC()); err != nil {
			log.Printf("ERROR: deadline scan failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule deadline scan: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *DeadlineService) Start() {
	s.cron.Start()
	log.Println("Deadline scanner started")
}

// Stop stops the cron scheduler.
func (s *DeadlineService) Stop() {
	s.cron.Stop()
	log.Println("Deadline scanner stopped")
}

// Scan examines every open task with a due date within the horizon of
// now and notifies the responsible user: the assignee when the task
// has one, otherwise the creator. Returns the number of new reminders
// created. Unparsable due dates are logged and skipped.
func (s *DeadlineService) Scan(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{
		ExcludeStatuses: []models.TaskStatus{models.TaskCompleted},
		HasDueDate:      true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks for deadline scan: %w", err)
	}

	created := 0
	for i := range tasks {
		task := &tasks[i]
		due, ok := utils.ParseDueDate(task.DueDate)
		if !ok {
			log.Printf("WARNING: task %s has unparsable due date %q, skipping", task.ID.Hex(), task.DueDate)
			continue
		}
		delta := due.Sub(now)
		if delta > horizon || delta < -horizon {
			continue
		}

		responsible := task.CreatedBy
		if task.AssignedTo != nil {
			responsible = *task.AssignedTo
		}

		overdue := delta < 0
		var title, message string
		if overdue {
			title = "Task Overdue"
			message = fmt.Sprintf("Task %q was due on %s and is overdue.", task.Title, task.DueDate)
		} else {
			title = "Task Deadline Approaching"
			message = fmt.Sprintf("Task %q is due on %s.", task.Title, task.DueDate)
		}

		inserted, err := s.store.CreateDeadlineNotification(ctx, &models.Notification{
			UserID:    responsible,
			Type:      models.NotifyDeadline,
			Title:     title,
			Message:   message,
			TaskID:    &task.ID,
			CreatedAt: now,
		}, dedupWindow)
		if err != nil {
			log.Printf("WARNING: failed to create deadline notification for task %s: %v", task.ID.Hex(), err)
			continue
		}
		if !inserted {
			continue
		}
		created++

		if s.email.Enabled {
			if user, err := s.store.UserByID(ctx, responsible); err == nil {
				content := deadlineEmail(s.email.AppURL, task.Title, task.DueDate, overdue)
				event := s.fanout.NewEvent()
				event.Email(user.Email, content.Subject, content.PlainText, content.HTML)
			}
		}
	}
	return created, nil
}
