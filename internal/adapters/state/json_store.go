package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"go.uber.org/zap"
)

// File names inside the state directory
const (
	SuppressionFile = "suppression.json"
	SendLogFile     = "send_log.json"
	SubscribersFile = "subscribers.json"
	SentLeadsFile   = "sent_leads.json"
)

// JSONStore keeps each part of the state in its own pretty-printed JSON file.
// Writes go to a temporary file that is renamed over the target, so a file is
// never seen half-written. Missing or malformed files read as empty state.
// There is no locking between processes.
type JSONStore struct {
	dir    string
	logger *zap.Logger
}

// NewJSONStore creates a JSON store rooted at dir, creating dir if needed
func NewJSONStore(dir string, logger *zap.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &JSONStore{dir: dir, logger: logger}, nil
}

// Path returns the full path of a state file
func (s *JSONStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// LoadSuppression reads suppression.json
func (s *JSONStore) LoadSuppression(_ context.Context) (*core.SuppressionRecord, error) {
	record := core.NewSuppressionRecord()
	if err := s.read(SuppressionFile, record); err != nil {
		return nil, err
	}
	record.Normalize()
	return record, nil
}

// SaveSuppression writes suppression.json
func (s *JSONStore) SaveSuppression(_ context.Context, record *core.SuppressionRecord) error {
	c := record.Clone()
	c.Normalize()
	return s.write(SuppressionFile, c)
}

// SentOn returns the counter for day from send_log.json
func (s *JSONStore) SentOn(ctx context.Context, day string) (int, error) {
	log, err := s.LoadSendLog(ctx)
	if err != nil {
		return 0, err
	}
	return log[day], nil
}

// IncrementSent reads send_log.json, adds one to day and writes it back
func (s *JSONStore) IncrementSent(ctx context.Context, day string) (int, error) {
	log, err := s.LoadSendLog(ctx)
	if err != nil {
		return 0, err
	}
	log[day]++
	if err := s.write(SendLogFile, log); err != nil {
		return 0, err
	}
	return log[day], nil
}

// LoadSendLog reads send_log.json
func (s *JSONStore) LoadSendLog(_ context.Context) (core.SendLog, error) {
	log := core.SendLog{}
	if err := s.read(SendLogFile, &log); err != nil {
		return nil, err
	}
	if log == nil {
		log = core.SendLog{}
	}
	return log, nil
}

// LoadSubscribers reads subscribers.json
func (s *JSONStore) LoadSubscribers(_ context.Context) ([]core.Subscriber, error) {
	subscribers := []core.Subscriber{}
	if err := s.read(SubscribersFile, &subscribers); err != nil {
		return nil, err
	}
	return subscribers, nil
}

// SaveSubscribers writes subscribers.json
func (s *JSONStore) SaveSubscribers(_ context.Context, subscribers []core.Subscriber) error {
	if subscribers == nil {
		subscribers = []core.Subscriber{}
	}
	return s.write(SubscribersFile, subscribers)
}

// LoadSentLeads reads sent_leads.json, a sorted array of company numbers
func (s *JSONStore) LoadSentLeads(_ context.Context) (map[string]struct{}, error) {
	var numbers []string
	if err := s.read(SentLeadsFile, &numbers); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		out[n] = struct{}{}
	}
	return out, nil
}

// MarkLeadSent adds companyNumber to sent_leads.json
func (s *JSONStore) MarkLeadSent(ctx context.Context, companyNumber string) error {
	sent, err := s.LoadSentLeads(ctx)
	if err != nil {
		return err
	}
	sent[companyNumber] = struct{}{}

	numbers := make([]string, 0, len(sent))
	for n := range sent {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	return s.write(SentLeadsFile, numbers)
}

// Stop is a no-op for the JSON store
func (s *JSONStore) Stop() {}

// read decodes a state file into v. A missing file leaves v untouched; a
// malformed one is logged and also leaves v untouched.
func (s *JSONStore) read(name string, v interface{}) error {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("Ignoring malformed state file", zap.String("path", path), zap.Error(err))
		return resetTo(v)
	}
	return nil
}

func (s *JSONStore) write(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	path := s.Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// resetTo restores the zero state of a partially decoded target
func resetTo(v interface{}) error {
	switch t := v.(type) {
	case *core.SuppressionRecord:
		*t = *core.NewSuppressionRecord()
	case *core.SendLog:
		*t = core.SendLog{}
	case *[]core.Subscriber:
		*t = []core.Subscriber{}
	case *[]string:
		*t = nil
	}
	return nil
}
