package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps the state in Redis sets and hashes under a key prefix
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore connects to addr and checks the connection
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewRedisStoreFromClient(client, prefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "regdeadline"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

// LoadSuppression reads the suppression sets and notes
func (s *RedisStore) LoadSuppression(ctx context.Context) (*core.SuppressionRecord, error) {
	record := core.NewSuppressionRecord()

	var err error
	if record.SuppressedEmails, err = s.client.SMembers(ctx, s.key("suppressed_emails")).Result(); err != nil {
		return nil, fmt.Errorf("failed to read suppressed emails: %w", err)
	}
	if record.SuppressedDomains, err = s.client.SMembers(ctx, s.key("suppressed_domains")).Result(); err != nil {
		return nil, fmt.Errorf("failed to read suppressed domains: %w", err)
	}
	if record.UnsubscribedEmails, err = s.client.SMembers(ctx, s.key("unsubscribed_emails")).Result(); err != nil {
		return nil, fmt.Errorf("failed to read unsubscribed emails: %w", err)
	}

	notes, err := s.client.HGetAll(ctx, s.key("notes")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read suppression notes: %w", err)
	}
	for email, raw := range notes {
		var note core.SuppressionNote
		if err := json.Unmarshal([]byte(raw), &note); err != nil {
			s.logger.Warn("Ignoring malformed suppression note", zap.String("email", email), zap.Error(err))
			continue
		}
		record.Notes[email] = note
	}

	record.Normalize()
	return record, nil
}

// SaveSuppression replaces the suppression sets and notes atomically
func (s *RedisStore) SaveSuppression(ctx context.Context, record *core.SuppressionRecord) error {
	c := record.Clone()
	c.Normalize()

	notes := make(map[string]interface{}, len(c.Notes))
	for email, note := range c.Notes {
		data, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("failed to encode note for %s: %w", email, err)
		}
		notes[email] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		sets := map[string][]string{
			s.key("suppressed_emails"):   c.SuppressedEmails,
			s.key("suppressed_domains"):  c.SuppressedDomains,
			s.key("unsubscribed_emails"): c.UnsubscribedEmails,
		}
		for key, members := range sets {
			pipe.Del(ctx, key)
			if len(members) > 0 {
				pipe.SAdd(ctx, key, toArgs(members)...)
			}
		}
		pipe.Del(ctx, s.key("notes"))
		if len(notes) > 0 {
			pipe.HSet(ctx, s.key("notes"), notes)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save suppression record: %w", err)
	}
	return nil
}

// SentOn returns the counter for day
func (s *RedisStore) SentOn(ctx context.Context, day string) (int, error) {
	count, err := s.client.HGet(ctx, s.key("send_log"), day).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read send log: %w", err)
	}
	return count, nil
}

// IncrementSent adds one to the counter for day
func (s *RedisStore) IncrementSent(ctx context.Context, day string) (int, error) {
	count, err := s.client.HIncrBy(ctx, s.key("send_log"), day, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment send log: %w", err)
	}
	return int(count), nil
}

// LoadSendLog returns every stored day
func (s *RedisStore) LoadSendLog(ctx context.Context) (core.SendLog, error) {
	raw, err := s.client.HGetAll(ctx, s.key("send_log")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read send log: %w", err)
	}

	log := make(core.SendLog, len(raw))
	for day, v := range raw {
		count, err := strconv.Atoi(v)
		if err != nil {
			s.logger.Warn("Ignoring malformed send log entry", zap.String("day", day), zap.String("value", v))
			continue
		}
		log[day] = count
	}
	return log, nil
}

// LoadSubscribers reads the subscriber list
func (s *RedisStore) LoadSubscribers(ctx context.Context) ([]core.Subscriber, error) {
	data, err := s.client.Get(ctx, s.key("subscribers")).Bytes()
	if errors.Is(err, redis.Nil) {
		return []core.Subscriber{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribers: %w", err)
	}

	subscribers := []core.Subscriber{}
	if err := json.Unmarshal(data, &subscribers); err != nil {
		s.logger.Warn("Ignoring malformed subscriber list", zap.Error(err))
		return []core.Subscriber{}, nil
	}
	return subscribers, nil
}

// SaveSubscribers replaces the subscriber list
func (s *RedisStore) SaveSubscribers(ctx context.Context, subscribers []core.Subscriber) error {
	if subscribers == nil {
		subscribers = []core.Subscriber{}
	}
	data, err := json.Marshal(subscribers)
	if err != nil {
		return fmt.Errorf("failed to encode subscribers: %w", err)
	}
	if err := s.client.Set(ctx, s.key("subscribers"), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save subscribers: %w", err)
	}
	return nil
}

// LoadSentLeads returns the contacted company numbers
func (s *RedisStore) LoadSentLeads(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, s.key("sent_leads")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sent leads: %w", err)
	}
	sent := make(map[string]struct{}, len(members))
	for _, m := range members {
		sent[m] = struct{}{}
	}
	return sent, nil
}

// MarkLeadSent records a contacted company number
func (s *RedisStore) MarkLeadSent(ctx context.Context, companyNumber string) error {
	if err := s.client.SAdd(ctx, s.key("sent_leads"), companyNumber).Err(); err != nil {
		return fmt.Errorf("failed to mark lead %s: %w", companyNumber, err)
	}
	return nil
}

// Stop closes the client
func (s *RedisStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
