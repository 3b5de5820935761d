package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Template names known to the renderer
const (
	TemplateReminder = "reminder"
	TemplateOutreach = "outreach"
)

// ReminderService emails subscribers about their upcoming filing deadlines
type ReminderService struct {
	subscribers SubscriberStore
	deadlines   DeadlineSource
	governor    *Governor
	renderer    Renderer
	windowDays  int
	logger      *zap.Logger
	now         func() time.Time
}

// NewReminderService creates a new reminder service
func NewReminderService(
	subscribers SubscriberStore,
	deadlines DeadlineSource,
	governor *Governor,
	renderer Renderer,
	windowDays int,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{
		subscribers: subscribers,
		deadlines:   deadlines,
		governor:    governor,
		renderer:    renderer,
		windowDays:  windowDays,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock replaces the clock used for the reminder window
func (s *ReminderService) SetClock(now func() time.Time) {
	s.now = now
}

// Run checks every subscriber's company and sends a reminder for each
// deadline inside the window. It stops sending once a cap is reached and
// returns every reminder found up to that point.
func (s *ReminderService) Run(ctx context.Context) ([]Reminder, error) {
	subscribers, err := s.subscribers.LoadSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	run := s.governor.NewRun()
	reminders := make([]Reminder, 0)

	for _, sub := range subscribers {
		logger := s.logger.With(zap.String("company", sub.CompanyNumber), zap.String("email", sub.Email))

		deadlines, err := s.deadlines.CompanyDeadlines(ctx, sub.CompanyNumber)
		if err != nil {
			if errors.Is(err, ErrMissingCredentials) {
				return reminders, err
			}
			logger.Warn("Failed to fetch deadlines", zap.Error(err))
			continue
		}
		if len(deadlines) == 0 {
			logger.Info("No deadlines returned")
			continue
		}

		for _, deadlineType := range deadlines.Types() {
			date := deadlines[deadlineType]
			if !DeadlineInRange(date, s.windowDays, s.now()) {
				logger.Debug("Deadline outside window",
					zap.String("deadline_type", string(deadlineType)),
					zap.String("deadline_date", date))
				continue
			}

			reminder := Reminder{
				Email:        sub.Email,
				Company:      sub.CompanyNumber,
				DeadlineType: deadlineType,
				DeadlineDate: date,
			}

			if s.governor.IsSuppressed(ctx, sub.Email) {
				logger.Info("Skipping suppressed email")
				reminders = append(reminders, reminder)
				continue
			}

			if !run.CanSendMore(ctx) {
				logger.Warn("Send cap reached, stopping reminder run", zap.Int("sent", run.Sent()))
				return append(reminders, reminder), nil
			}

			subject, body, err := s.renderer.Render(TemplateReminder, deadlineData(sub.CompanyNumber, deadlineType, date))
			if err != nil {
				return reminders, fmt.Errorf("failed to render reminder: %w", err)
			}

			reminder.Sent, err = run.Send(ctx, sub.Email, subject, body)
			if err != nil {
				return reminders, err
			}
			reminders = append(reminders, reminder)
		}
	}

	s.logger.Info("Reminder run complete", zap.Int("reminders", len(reminders)), zap.Int("sent", run.Sent()))
	return reminders, nil
}

func deadlineData(company string, deadlineType DeadlineType, date string) map[string]interface{} {
	return map[string]interface{}{
		"company_number": company,
		"deadline_type":  string(deadlineType),
		"deadline_label": strings.ReplaceAll(string(deadlineType), "_", " "),
		"deadline_date":  date,
	}
}
