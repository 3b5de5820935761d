package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PetrosWatts/regdeadline/internal/suppression"
	"go.uber.org/zap"
)

// SendPolicy holds the send governance settings, read once at startup
type SendPolicy struct {
	DailyCap          int
	PerRunCap         int
	Sleep             time.Duration
	SafetyMode        bool
	SafeTestInbox     string
	FromAddress       string
	FromName          string
	CampaignHeader    string
	CampaignID        string
	UnsubscribeMailto string
}

// DefaultSendPolicy returns the documented defaults
func DefaultSendPolicy() SendPolicy {
	return SendPolicy{
		DailyCap:       25,
		PerRunCap:      25,
		Sleep:          6 * time.Second,
		SafetyMode:     true,
		CampaignHeader: "X-Campaign-ID",
		CampaignID:     "regdeadline",
	}
}

// Governor approves, routes and records outbound mail
type Governor struct {
	suppressions SuppressionStore
	sendLog      SendLogStore
	sender       Sender
	policy       SendPolicy
	logger       *zap.Logger
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// GovernorOption customises a Governor
type GovernorOption func(*Governor)

// WithClock replaces the wall clock used to pick the send log day
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) {
		g.now = now
	}
}

// WithSleeper replaces the inter-send delay
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) GovernorOption {
	return func(g *Governor) {
		g.sleep = sleep
	}
}

// NewGovernor creates a new send governor
func NewGovernor(
	suppressions SuppressionStore,
	sendLog SendLogStore,
	sender Sender,
	policy SendPolicy,
	logger *zap.Logger,
	opts ...GovernorOption,
) *Governor {
	g := &Governor{
		suppressions: suppressions,
		sendLog:      sendLog,
		sender:       sender,
		policy:       policy,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the policy the governor was built with
func (g *Governor) Policy() SendPolicy {
	return g.policy
}

// IsSuppressed checks email against the persisted suppression record.
// An unreadable store blocks the address.
func (g *Governor) IsSuppressed(ctx context.Context, email string) bool {
	record, err := g.suppressions.LoadSuppression(ctx)
	if err != nil {
		g.logger.Error("Failed to load suppression record, treating address as suppressed",
			zap.String("email", email),
			zap.Error(err))
		return true
	}
	return record.Checker().IsSuppressed(email)
}

// CanSendMore reports whether another message fits within the per-run and daily caps
func (g *Governor) CanSendMore(ctx context.Context, perRunSent int) bool {
	return g.checkCaps(ctx, perRunSent) == ReasonOK
}

func (g *Governor) checkCaps(ctx context.Context, perRunSent int) Reason {
	if perRunSent >= g.policy.PerRunCap {
		return ReasonPerRunCap
	}

	day := Day(g.now())
	sent, err := g.sendLog.SentOn(ctx, day)
	if err != nil {
		g.logger.Error("Failed to read send log, refusing to send", zap.String("day", day), zap.Error(err))
		return ReasonDailyCap
	}
	if sent >= g.policy.DailyCap {
		return ReasonDailyCap
	}
	return ReasonOK
}

// RecordSend adds one delivery to today's UTC counter
func (g *Governor) RecordSend(ctx context.Context) error {
	day := Day(g.now())
	count, err := g.sendLog.IncrementSent(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to record send for %s: %w", day, err)
	}
	g.logger.Debug("Recorded send", zap.String("day", day), zap.Int("count", count))
	return nil
}

// Evaluate runs every gate for a prospective send: address, suppression,
// caps and the dry-run target. SendGoverned does not call it.
func (g *Governor) Evaluate(ctx context.Context, to string, perRunSent int, dryRun bool) SendDecision {
	if reason := g.checkRecipient(ctx, to); reason != ReasonOK {
		return SendDecision{Reason: reason}
	}
	if reason := g.checkCaps(ctx, perRunSent); reason != ReasonOK {
		return SendDecision{Reason: reason}
	}
	if dryRun && g.policy.SafeTestInbox == "" {
		return SendDecision{Reason: ReasonSafetyModeNoTarget}
	}
	return SendDecision{Allowed: true, Reason: ReasonOK}
}

func (g *Governor) checkRecipient(ctx context.Context, to string) Reason {
	if !(Recipient{Email: to}).Valid() {
		return ReasonInvalidAddress
	}
	if g.IsSuppressed(ctx, to) {
		return ReasonSuppressed
	}
	return ReasonOK
}

type sendOptions struct {
	dryRun bool
}

// SendOption customises a single governed send
type SendOption func(*sendOptions)

// WithDryRun overrides the safety mode default for one send
func WithDryRun(dryRun bool) SendOption {
	return func(o *sendOptions) {
		o.dryRun = dryRun
	}
}

// SendGoverned delivers one message unless the recipient is suppressed or a
// dry run has no safe inbox. It reports whether the message was delivered,
// including deliveries redirected to the safe inbox. Transport failures are
// logged and reported as false; only ErrMissingCredentials is returned.
// Caps are not checked here: callers call CanSendMore first.
func (g *Governor) SendGoverned(ctx context.Context, to, subject, body string, opts ...SendOption) (bool, error) {
	options := sendOptions{dryRun: g.policy.SafetyMode}
	for _, opt := range opts {
		opt(&options)
	}

	recipient := suppression.Normalize(to)
	logger := g.logger.With(zap.String("to", recipient), zap.Bool("dry_run", options.dryRun))

	if reason := g.checkRecipient(ctx, recipient); reason != ReasonOK {
		logger.Info("Send blocked", zap.String("reason", string(reason)))
		return false, nil
	}

	target := recipient
	if options.dryRun {
		if g.policy.SafeTestInbox == "" {
			logger.Warn("Send blocked, safety mode is on and no safe test inbox is configured",
				zap.String("reason", string(ReasonSafetyModeNoTarget)))
			return false, nil
		}
		target = g.policy.SafeTestInbox
	}

	msg := g.compose(target, subject, body)
	if options.dryRun {
		msg.Headers["X-Intended-Recipient"] = recipient
	}

	if err := g.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return false, err
		}
		logger.Error("Failed to send email", zap.String("delivered_to", target), zap.Error(err))
		return false, nil
	}

	if err := g.RecordSend(ctx); err != nil {
		logger.Error("Email sent but send log was not updated", zap.Error(err))
	}

	logger.Info("Email sent", zap.String("delivered_to", target), zap.String("subject", subject))

	if g.policy.Sleep > 0 {
		if err := g.sleep(ctx, g.policy.Sleep); err != nil {
			logger.Warn("Inter-send delay interrupted", zap.Error(err))
		}
	}

	return true, nil
}

func (g *Governor) compose(to, subject, body string) *OutboundEmail {
	headers := make(map[string]string, 3)
	if g.policy.CampaignHeader != "" && g.policy.CampaignID != "" {
		headers[g.policy.CampaignHeader] = g.policy.CampaignID
	}

	mailto := g.policy.UnsubscribeMailto
	if mailto == "" {
		mailto = g.policy.FromAddress
	}
	if mailto != "" {
		headers["List-Unsubscribe"] = fmt.Sprintf("<mailto:%s?subject=unsubscribe>", mailto)
	}

	return &OutboundEmail{
		From:     g.policy.FromAddress,
		FromName: g.policy.FromName,
		To:       to,
		Subject:  subject,
		Body:     body,
		Headers:  headers,
	}
}

// Run counts the sends of one execution against the per-run cap
type Run struct {
	governor *Governor
	sent     int
	opts     []SendOption
}

// NewRun starts a new per-run counter. opts apply to every send of the run.
func (g *Governor) NewRun(opts ...SendOption) *Run {
	return &Run{governor: g, opts: opts}
}

// Sent returns the number of messages delivered in this run
func (r *Run) Sent() int {
	return r.sent
}

// CanSendMore checks the caps for the next send of this run
func (r *Run) CanSendMore(ctx context.Context) bool {
	return r.governor.CanSendMore(ctx, r.sent)
}

// Check evaluates every gate for to without sending
func (r *Run) Check(ctx context.Context, to string) SendDecision {
	options := sendOptions{dryRun: r.governor.policy.SafetyMode}
	for _, opt := range r.opts {
		opt(&options)
	}
	return r.governor.Evaluate(ctx, to, r.sent, options.dryRun)
}

// Send performs a governed send and counts it when delivered
func (r *Run) Send(ctx context.Context, to, subject, body string) (bool, error) {
	sent, err := r.governor.SendGoverned(ctx, to, subject, body, r.opts...)
	if sent {
		r.sent++
	}
	return sent, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
