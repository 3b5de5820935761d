package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultOptOutKeywords are the phrases that mark a reply as an opt-out request
var DefaultOptOutKeywords = []string{
	"unsubscribe",
	"opt out",
	"stop",
	"remove me",
	"do not contact",
}

var addressPattern = regexp.MustCompile(`[\p{L}\p{N}\p{M}_.+\-]+@[\p{L}\p{N}\p{M}_.\-]+\.[\p{L}\p{N}\p{M}_]+`)

// ExtractAddress finds the first email address in a From header value. It
// returns "" when none is found.
func ExtractAddress(from string) string {
	return strings.ToLower(strings.TrimSpace(addressPattern.FindString(from)))
}

// senderAddress prefers the address parsed from the header and falls back to
// scanning the raw From text
func senderAddress(email *InboundEmail) string {
	if addr := strings.ToLower(strings.TrimSpace(email.FromAddress)); strings.Contains(addr, "@") {
		return addr
	}
	return ExtractAddress(email.From)
}

// KeywordClassifier flags replies whose subject or body contains an opt-out keyword
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier creates a keyword classifier. Empty keywords fall back
// to DefaultOptOutKeywords.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultOptOutKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			normalized = append(normalized, k)
		}
	}
	return &KeywordClassifier{keywords: normalized}
}

// Match returns the first keyword found in the lower-cased subject and body
func (k *KeywordClassifier) Match(email *InboundEmail) (string, bool) {
	text := strings.ToLower(email.Subject) + "\n" + strings.ToLower(email.Body)
	for _, keyword := range k.keywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// IsOptOut implements ReplyClassifier
func (k *KeywordClassifier) IsOptOut(_ context.Context, email *InboundEmail) (bool, error) {
	_, ok := k.Match(email)
	return ok, nil
}

// UnsubscribeService turns opt-out replies into suppression entries
type UnsubscribeService struct {
	opener     MailboxOpener
	store      SuppressionStore
	parser     MessageParser
	classifier ReplyClassifier
	keywords   *KeywordClassifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewUnsubscribeService creates a new unsubscribe service. When classifier
// fails on a message the keyword classifier decides instead.
func NewUnsubscribeService(
	opener MailboxOpener,
	store SuppressionStore,
	parser MessageParser,
	classifier ReplyClassifier,
	keywords *KeywordClassifier,
	logger *zap.Logger,
) *UnsubscribeService {
	if classifier == nil {
		classifier = keywords
	}
	return &UnsubscribeService{
		opener:     opener,
		store:      store,
		parser:     parser,
		classifier: classifier,
		keywords:   keywords,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the clock used for note timestamps
func (s *UnsubscribeService) SetClock(now func() time.Time) {
	s.now = now
}

// ProcessUnsubscribes reads every unseen message once, marks it seen and adds
// the sender of each opt-out request to the unsubscribed set. The record is
// saved once, after the last message, and only when an address was added. It
// returns the number of new addresses.
func (s *UnsubscribeService) ProcessUnsubscribes(ctx context.Context) (int, error) {
	record, err := s.store.LoadSuppression(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load suppression record: %w", err)
	}

	mailbox, err := s.opener.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open mailbox: %w", err)
	}
	defer func() {
		if err := mailbox.Close(); err != nil {
			s.logger.Warn("Failed to close mailbox", zap.Error(err))
		}
	}()

	ids, err := mailbox.ListUnseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unseen messages: %w", err)
	}
	s.logger.Info("Scanning mailbox for opt-out requests", zap.Int("unseen", len(ids)))

	added := 0
	for _, id := range ids {
		raw, err := mailbox.Fetch(ctx, id)
		if err != nil {
			s.logger.Warn("Failed to fetch message", zap.Uint32("id", id), zap.Error(err))
			continue
		}

		if err := mailbox.MarkSeen(ctx, id); err != nil {
			s.logger.Warn("Failed to mark message seen", zap.Uint32("id", id), zap.Error(err))
		}

		if s.consider(ctx, id, raw, record) {
			added++
		}
	}

	if added > 0 {
		if err := s.store.SaveSuppression(ctx, record); err != nil {
			return added, fmt.Errorf("failed to save suppression record: %w", err)
		}
	}

	s.logger.Info("Processed opt-out requests", zap.Int("added", added))
	return added, nil
}

func (s *UnsubscribeService) consider(ctx context.Context, id uint32, raw []byte, record *SuppressionRecord) bool {
	email, err := s.parser.Parse(raw)
	if err != nil {
		s.logger.Warn("Failed to parse message", zap.Uint32("id", id), zap.Error(err))
		return false
	}

	optOut, err := s.classifier.IsOptOut(ctx, email)
	if err != nil {
		s.logger.Warn("Classifier failed, using keywords", zap.Uint32("id", id), zap.Error(err))
		optOut, _ = s.keywords.IsOptOut(ctx, email)
	}
	if !optOut {
		return false
	}

	from := senderAddress(email)
	if from == "" {
		s.logger.Warn("Opt-out request without a sender address", zap.Uint32("id", id))
		return false
	}

	if !record.AddUnsubscribed(from, NoteReasonUnsubscribe, s.now()) {
		s.logger.Debug("Sender already unsubscribed", zap.String("email", from))
		return false
	}

	s.logger.Info("Added unsubscribed address", zap.String("email", from))
	return true
}
