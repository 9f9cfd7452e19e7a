// Package services provides business logic services for the feedback application.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"strings"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// EmailServiceInterface defines the interface for email functionality
type EmailServiceInterface interface {
	SendFeedbackOpenedNotification(ctx context.Context, user *models.User, feedback *models.Feedback) error
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error
	RecordSentNotification(ctx context.Context, userID int, notificationType, subject, templateName, status, errorMessage string) error
	IsEnabled() bool
}

// EmailService implements EmailServiceInterface using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
	db     *sql.DB
}

// Ensure EmailService implements the EmailServiceInterface
var _ EmailServiceInterface = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// NewEmailServiceWithDB creates a new EmailService instance with database connection
func NewEmailServiceWithDB(cfg *config.Config, logger *observability.Logger, db *sql.DB) *EmailService {
	if db == nil {
		panic("EmailService requires a non-nil database connection")
	}

	svc := NewEmailService(cfg, logger)
	svc.db = db
	return svc
}

// SendFeedbackOpenedNotification tells a targeted user that a feedback round
// has opened for them.
func (e *EmailService) SendFeedbackOpenedNotification(ctx context.Context, user *models.User, feedback *models.Feedback) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendFeedbackOpenedNotification",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("feedback.id", feedback.ID),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping feedback notification", map[string]interface{}{
			"user_id":     user.ID,
			"feedback_id": feedback.ID,
		})
		return nil
	}

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping feedback notification", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	deadline := "no deadline"
	if feedback.EndDate.Valid {
		deadline = feedback.EndDate.Time.Format("January 2, 2006")
	}

	data := map[string]interface{}{
		"Username":      user.Username,
		"FeedbackTitle": feedback.Title,
		"Deadline":      deadline,
		"FeedbackURL":   fmt.Sprintf("%s/feedbacks/%d", e.cfg.Server.AppBaseURL, feedback.ID),
	}

	subject := fmt.Sprintf("Feedback requested: %s", feedback.Title)

	err = e.SendEmail(ctx, user.Email.String, subject, "feedback_opened", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send feedback notification")
	}

	e.logger.Info(ctx, "Feedback notification sent successfully", map[string]interface{}{
		"user_id":     user.ID,
		"feedback_id": feedback.ID,
		"email":       user.Email.String,
	})

	return nil
}

// SendEmail sends a generic email with the given parameters
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	content, err := e.generateEmailContent(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
		"subject":  subject,
	})

	return nil
}

// RecordSentNotification records a sent notification in the database
func (e *EmailService) RecordSentNotification(ctx context.Context, userID int, notificationType, subject, templateName, status, errorMessage string) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "RecordSentNotification",
		trace.WithAttributes(
			attribute.Int("user.id", userID),
			attribute.String("notification.type", notificationType),
			attribute.String("notification.status", status),
		),
	)
	defer observability.FinishSpan(span, &err)

	if e.db == nil {
		e.logger.Error(ctx, "Database connection is nil, cannot record notification", nil, map[string]interface{}{
			"user_id":           userID,
			"notification_type": notificationType,
		})
		return contextutils.ErrorWithContextf("EmailService database connection is nil")
	}

	query := `
		INSERT INTO sent_notifications (user_id, notification_type, subject, template_name, sent_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = e.db.ExecContext(ctx, query, userID, notificationType, subject, templateName, time.Now(), status, errorMessage)
	if err != nil {
		e.logger.Error(ctx, "Failed to record sent notification", err, map[string]interface{}{
			"user_id":           userID,
			"notification_type": notificationType,
			"status":            status,
		})
		return contextutils.WrapError(err, "failed to record sent notification")
	}

	e.logger.Info(ctx, "Recorded sent notification", map[string]interface{}{
		"user_id":           userID,
		"notification_type": notificationType,
		"status":            status,
	})

	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

// generateEmailContent generates email content from templates
func (e *EmailService) generateEmailContent(templateName string, data map[string]interface{}) (string, error) {
	switch templateName {
	case "feedback_opened":
		return e.generateFeedbackOpenedTemplate(data)
	case "test_email":
		return e.generateTestEmailTemplate(data)
	default:
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}
}

// generateFeedbackOpenedTemplate generates the feedback-opened email template
func (e *EmailService) generateFeedbackOpenedTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Feedback Requested</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #4CAF50; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Feedback Requested</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>A new feedback round has opened for you: <strong>{{.FeedbackTitle}}</strong></p>
            <p>Deadline: <strong>{{.Deadline}}</strong></p>
            <p>Your input helps the team improve. It only takes a few minutes.</p>
            <div style="text-align: center;">
                <a href="{{.FeedbackURL}}" class="button">Give Feedback</a>
            </div>
        </div>
        <div class="footer">
            <p>This email was sent by the Feedback App.</p>
        </div>
    </div>
</body>
</html>`

	tmpl, err := template.New("feedback_opened").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}

// generateTestEmailTemplate generates the test email template
func (e *EmailService) generateTestEmailTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Test Email</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2196F3; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Test Email</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>This is a test email to verify that your email settings are working correctly.</p>
            <p><strong>Test Time:</strong> {{.TestTime}}</p>
            <p><strong>Message:</strong> {{.Message}}</p>
            <p>If you received this email, your email configuration is working properly!</p>
        </div>
        <div class="footer">
            <p>This is a test email from the Feedback App. No action is required.</p>
        </div>
    </div>
</body>
</html>
`

	tmpl, err := template.New("test_email").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}
