// Package state holds the persistent stores for suppression, send log,
// subscribers and sent leads.
package state

import (
	"context"
	"sync"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of core.StateStore. State lives
// for the lifetime of the process only.
type MemoryStore struct {
	mu          sync.RWMutex
	suppression *core.SuppressionRecord
	sendLog     core.SendLog
	subscribers []core.Subscriber
	sentLeads   map[string]struct{}
	logger      *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		suppression: core.NewSuppressionRecord(),
		sendLog:     core.SendLog{},
		sentLeads:   map[string]struct{}{},
		logger:      logger,
	}
}

// LoadSuppression returns a copy of the stored record
func (s *MemoryStore) LoadSuppression(_ context.Context) (*core.SuppressionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppression.Clone(), nil
}

// SaveSuppression replaces the stored record
func (s *MemoryStore) SaveSuppression(_ context.Context, record *core.SuppressionRecord) error {
	c := record.Clone()
	c.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppression = c
	return nil
}

// SentOn returns the counter for day
func (s *MemoryStore) SentOn(_ context.Context, day string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sendLog[day], nil
}

// IncrementSent adds one to the counter for day
func (s *MemoryStore) IncrementSent(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLog[day]++
	return s.sendLog[day], nil
}

// LoadSendLog returns a copy of every counter
func (s *MemoryStore) LoadSendLog(_ context.Context) (core.SendLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(core.SendLog, len(s.sendLog))
	for day, count := range s.sendLog {
		out[day] = count
	}
	return out, nil
}

// LoadSubscribers returns a copy of the subscriber list
func (s *MemoryStore) LoadSubscribers(_ context.Context) ([]core.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Subscriber{}, s.subscribers...), nil
}

// SaveSubscribers replaces the subscriber list
func (s *MemoryStore) SaveSubscribers(_ context.Context, subscribers []core.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append([]core.Subscriber{}, subscribers...)
	return nil
}

// LoadSentLeads returns a copy of the contacted company numbers
func (s *MemoryStore) LoadSentLeads(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.sentLeads))
	for k := range s.sentLeads {
		out[k] = struct{}{}
	}
	return out, nil
}

// MarkLeadSent records a contacted company number
func (s *MemoryStore) MarkLeadSent(_ context.Context, companyNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentLeads[companyNumber] = struct{}{}
	return nil
}

// Stop is a no-op for the memory store
func (s *MemoryStore) Stop() {}
