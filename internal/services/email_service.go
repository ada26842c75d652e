package services

import (
	"bytes"
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"taskgrid/internal/config"
)

// Mailer sends transactional email. A nil Mailer disables email
// delivery without touching call sites.
type Mailer interface {
	Send(ctx context.Context, to, subject, plainText, htmlContent string) error
}

// SendGridMailer sends email via the SendGrid API.
type SendGridMailer struct {
	fromEmail string
	client    *sendgrid.Client
}

// NewMailer returns a SendGrid-backed mailer, or nil when email
// delivery is disabled in configuration.
func NewMailer(cfg config.EmailConfig) Mailer {
	if !cfg.Enabled {
		return nil
	}
	return &SendGridMailer{
		fromEmail: cfg.FromEmail,
		client:    sendgrid.NewSendClient(cfg.APIKey),
	}
}

// Send delivers one email.
func (s *SendGridMailer) Send(_ context.Context, to, subject, plainText, htmlContent string) error {
	from := mail.NewEmail("TaskGrid", s.fromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// EmailContent is a rendered subject/body triple ready for delivery.
type EmailContent struct {
	Subject   string
	PlainText string
	HTML      string
}

// buildNotificationEmail renders the shared notification email layout:
// a heading, a free-form message, and a link back into the app.
func buildNotificationEmail(appURL, heading, message, linkPath string) EmailContent {
	var htmlBody bytes.Buffer
	htmlBody.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
`)
	htmlBody.WriteString(fmt.Sprintf("    <h2>%s</h2>\n", html.EscapeString(heading)))
	htmlBody.WriteString(fmt.Sprintf("    <p>%s</p>\n", html.EscapeString(message)))
	if linkPath != "" {
		htmlBody.WriteString(fmt.Sprintf("    <p><a href=\"%s%s\">Open in TaskGrid</a></p>\n", appURL, linkPath))
	}
	htmlBody.WriteString("</body>\n</html>")

	plain := heading + "\n\n" + message
	if linkPath != "" {
		plain += "\n\n" + appURL + linkPath
	}

	return EmailContent{
		Subject:   heading,
		PlainText: plain,
		HTML:      htmlBody.String(),
	}
}

func taskAssignedEmail(appURL, taskTitle, assignerName string) EmailContent {
	return buildNotificationEmail(appURL,
		"New Task Assigned",
		fmt.Sprintf("%s assigned you a new task: %s", assignerName, taskTitle),
		"/tasks")
}

func subtaskAssignedEmail(appURL, subtaskTitle, managerName string, percentage float64) EmailContent {
	return buildNotificationEmail(appURL,
		"New Subtask Assigned",
		fmt.Sprintf("%s assigned you a subtask (%g%% of the task): %s", managerName, percentage, subtaskTitle),
		"/my-subtasks")
}

func workReviewedEmail(appURL, title string, approved bool, feedback string) EmailContent {
	if approved {
		return buildNotificationEmail(appURL,
			"Work Approved",
			fmt.Sprintf("Your submission for %q was approved.", title),
			"/work-uploads")
	}
	msg := fmt.Sprintf("Your submission for %q was rejected and needs revision.", title)
	if feedback != "" {
		msg += " Feedback: " + feedback
	}
	return buildNotificationEmail(appURL, "Work Needs Revision", msg, "/work-uploads")
}

func taskCompletedEmail(appURL, taskTitle string) EmailContent {
	return buildNotificationEmail(appURL,
		"Task Completed",
		fmt.Sprintf("Task %q has been approved by an admin and is now complete.", taskTitle),
		"/tasks")
}

func deadlineEmail(appURL, taskTitle, dueDate string, overdue bool) EmailContent {
	if overdue {
		return buildNotificationEmail(appURL,
			"Task Overdue",
			fmt.Sprintf("Task %q was due on %s and is overdue.", taskTitle, dueDate),
			"/tasks")
	}
	return buildNotificationEmail(appURL,
		"Task Deadline Approaching",
		fmt.Sprintf("Task %q is due on %s.", taskTitle, dueDate),
		"/tasks")
}
