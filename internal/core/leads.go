package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LeadConfig controls the cold lead scan
type LeadConfig struct {
	PoolSize   int
	MaxEmails  int
	WindowDays int
	Recipient  string
}

// LeadScanner finds established companies with a filing due soon and sends
// the outreach message for each to the review inbox
type LeadScanner struct {
	registry DeadlineSource
	leads    LeadStore
	governor *Governor
	renderer Renderer
	cfg      LeadConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewLeadScanner creates a new lead scanner
func NewLeadScanner(
	registry DeadlineSource,
	leads LeadStore,
	governor *Governor,
	renderer Renderer,
	cfg LeadConfig,
	logger *zap.Logger,
) *LeadScanner {
	return &LeadScanner{
		registry: registry,
		leads:    leads,
		governor: governor,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for the search range and deadline window
func (s *LeadScanner) SetClock(now func() time.Time) {
	s.now = now
}

// Pool returns active companies incorporated two to five years ago,
// excluding Northern Ireland registrations
func (s *LeadScanner) Pool(ctx context.Context) ([]Company, error) {
	now := s.now().UTC()
	companies, err := s.registry.SearchCompanies(ctx, CompanySearch{
		IncorporatedFrom: now.AddDate(0, 0, -5*365),
		IncorporatedTo:   now.AddDate(0, 0, -2*365),
		Status:           "active",
		Size:             s.cfg.PoolSize,
	})
	if err != nil {
		return nil, err
	}

	pool := make([]Company, 0, len(companies))
	for _, c := range companies {
		if c.Number == "" || strings.HasPrefix(c.Number, "NI") {
			continue
		}
		pool = append(pool, c)
	}
	return pool, nil
}

// Scan contacts at most MaxEmails companies that have not been contacted
// before, one message per company, and records each delivered lead
func (s *LeadScanner) Scan(ctx context.Context) ([]Lead, error) {
	if s.cfg.Recipient == "" {
		return nil, fmt.Errorf("leads.recipient is not set: %w", ErrMissingRecipient)
	}

	pool, err := s.Pool(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build company pool: %w", err)
	}

	sent, err := s.leads.LoadSentLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent leads: %w", err)
	}

	run := s.governor.NewRun()
	leads := make([]Lead, 0, s.cfg.MaxEmails)

	for _, company := range pool {
		if len(leads) >= s.cfg.MaxEmails {
			break
		}
		if _, done := sent[company.Number]; done {
			continue
		}

		logger := s.logger.With(zap.String("company", company.Number))
		logger.Debug("Scanning company")

		deadlines, err := s.registry.CompanyDeadlines(ctx, company.Number)
		if err != nil {
			if errors.Is(err, ErrMissingCredentials) {
				return leads, err
			}
			logger.Warn("Failed to fetch deadlines", zap.Error(err))
			continue
		}

		for _, deadlineType := range deadlines.Types() {
			date := deadlines[deadlineType]
			if !DeadlineInRange(date, s.cfg.WindowDays, s.now()) {
				continue
			}

			if !run.CanSendMore(ctx) {
				logger.Warn("Send cap reached, stopping lead scan", zap.Int("sent", run.Sent()))
				return leads, nil
			}

			subject, body, err := s.renderer.Render(TemplateOutreach, deadlineData(company.Number, deadlineType, date))
			if err != nil {
				return leads, fmt.Errorf("failed to render outreach: %w", err)
			}

			ok, err := run.Send(ctx, s.cfg.Recipient, subject, body)
			if err != nil {
				return leads, err
			}
			if ok {
				if err := s.leads.MarkLeadSent(ctx, company.Number); err != nil {
					return leads, fmt.Errorf("failed to record lead %s: %w", company.Number, err)
				}
				leads = append(leads, Lead{Company: company.Number, DeadlineType: deadlineType, DeadlineDate: date})
				logger.Info("Lead contacted",
					zap.String("deadline_type", string(deadlineType)),
					zap.String("deadline_date", date))
			}
			break
		}
	}

	return leads, nil
}
