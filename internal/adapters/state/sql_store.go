package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/PetrosWatts/regdeadline/internal/core"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Suppression entry kinds stored in suppression_entries.kind
const (
	kindEmail        = "email"
	kindDomain       = "domain"
	kindUnsubscribed = "unsubscribed"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS suppression_entries (
		kind VARCHAR(16) NOT NULL,
		value VARCHAR(255) NOT NULL,
		PRIMARY KEY (kind, value)
	)`,
	`CREATE TABLE IF NOT EXISTS suppression_notes (
		email VARCHAR(255) NOT NULL PRIMARY KEY,
		reason VARCHAR(64) NOT NULL,
		ts VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS send_log (
		day VARCHAR(10) NOT NULL PRIMARY KEY,
		sent_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		email VARCHAR(255) NOT NULL PRIMARY KEY,
		company_number VARCHAR(16) NOT NULL,
		source VARCHAR(64) NOT NULL DEFAULT '',
		added_at VARCHAR(64) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sent_leads (
		company_number VARCHAR(16) NOT NULL PRIMARY KEY
	)`,
}

// SQLStore keeps the state in a SQL database. The same schema is used for
// SQLite, MySQL and PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// OpenSQLStore opens a database with driver and dsn and creates the schema
func OpenSQLStore(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	store, err := NewSQLStore(db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQL state store", zap.String("driver", driver))
	return store, nil
}

// NewSQLStore wraps an open database. It does not create the schema.
func NewSQLStore(db *sql.DB, driver string, logger *zap.Logger) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported SQL driver: %s", driver)
	}
	return &SQLStore{db: db, driver: driver, logger: logger}, nil
}

// Migrate creates any missing tables
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// LoadSuppression reads every suppression entry and note
func (s *SQLStore) LoadSuppression(ctx context.Context) (*core.SuppressionRecord, error) {
	record := core.NewSuppressionRecord()
	if err := s.loadEntries(ctx, record); err != nil {
		return nil, err
	}
	if err := s.loadNotes(ctx, record); err != nil {
		return nil, err
	}
	record.Normalize()
	return record, nil
}

func (s *SQLStore) loadEntries(ctx context.Context, record *core.SuppressionRecord) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, value FROM suppression_entries`)
	if err != nil {
		return fmt.Errorf("failed to query suppression entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return fmt.Errorf("failed to scan suppression entry: %w", err)
		}
		switch kind {
		case kindEmail:
			record.SuppressedEmails = append(record.SuppressedEmails, value)
		case kindDomain:
			record.SuppressedDomains = append(record.SuppressedDomains, value)
		case kindUnsubscribed:
			record.UnsubscribedEmails = append(record.UnsubscribedEmails, value)
		default:
			s.logger.Warn("Ignoring unknown suppression entry kind", zap.String("kind", kind))
		}
	}
	return rows.Err()
}

func (s *SQLStore) loadNotes(ctx context.Context, record *core.SuppressionRecord) error {
	rows, err := s.db.QueryContext(ctx, `SELECT email, reason, ts FROM suppression_notes`)
	if err != nil {
		return fmt.Errorf("failed to query suppression notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		var note core.SuppressionNote
		if err := rows.Scan(&email, &note.Reason, &note.Timestamp); err != nil {
			return fmt.Errorf("failed to scan suppression note: %w", err)
		}
		record.Notes[email] = note
	}
	return rows.Err()
}

// SaveSuppression replaces every suppression entry and note in one transaction
func (s *SQLStore) SaveSuppression(ctx context.Context, record *core.SuppressionRecord) error {
	c := record.Clone()
	c.Normalize()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM suppression_entries`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM suppression_notes`); err != nil {
			return err
		}

		insert := s.rebind(`INSERT INTO suppression_entries (kind, value) VALUES (?, ?)`)
		for kind, values := range map[string][]string{
			kindEmail:        c.SuppressedEmails,
			kindDomain:       c.SuppressedDomains,
			kindUnsubscribed: c.UnsubscribedEmails,
		} {
			for _, v := range values {
				if _, err := tx.ExecContext(ctx, insert, kind, v); err != nil {
					return fmt.Errorf("failed to insert %s %s: %w", kind, v, err)
				}
			}
		}

		insertNote := s.rebind(`INSERT INTO suppression_notes (email, reason, ts) VALUES (?, ?, ?)`)
		for email, note := range c.Notes {
			if _, err := tx.ExecContext(ctx, insertNote, email, note.Reason, note.Timestamp); err != nil {
				return fmt.Errorf("failed to insert note for %s: %w", email, err)
			}
		}
		return nil
	})
}

// SentOn returns the counter for day
func (s *SQLStore) SentOn(ctx context.Context, day string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT sent_count FROM send_log WHERE day = ?`), day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query send log: %w", err)
	}
	return count, nil
}

// IncrementSent upserts the counter for day and returns its new value
func (s *SQLStore) IncrementSent(ctx context.Context, day string) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(s.upsertSendLog()), day); err != nil {
			return fmt.Errorf("failed to increment send log: %w", err)
		}
		return tx.QueryRowContext(ctx, s.rebind(`SELECT sent_count FROM send_log WHERE day = ?`), day).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LoadSendLog returns every stored day
func (s *SQLStore) LoadSendLog(ctx context.Context) (core.SendLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, sent_count FROM send_log`)
	if err != nil {
		return nil, fmt.Errorf("failed to query send log: %w", err)
	}
	defer rows.Close()

	log := core.SendLog{}
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan send log: %w", err)
		}
		log[day] = count
	}
	return log, rows.Err()
}

// LoadSubscribers returns the subscribers ordered by email
func (s *SQLStore) LoadSubscribers(ctx context.Context) ([]core.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, company_number, source, added_at FROM subscribers ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []core.Subscriber{}
	for rows.Next() {
		var sub core.Subscriber
		if err := rows.Scan(&sub.Email, &sub.CompanyNumber, &sub.Source, &sub.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

// SaveSubscribers replaces the subscriber table
func (s *SQLStore) SaveSubscribers(ctx context.Context, subscribers []core.Subscriber) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers`); err != nil {
			return err
		}
		insert := s.rebind(`INSERT INTO subscribers (email, company_number, source, added_at) VALUES (?, ?, ?, ?)`)
		for _, sub := range subscribers {
			if _, err := tx.ExecContext(ctx, insert, sub.Email, sub.CompanyNumber, sub.Source, sub.AddedAt); err != nil {
				return fmt.Errorf("failed to insert subscriber %s: %w", sub.Email, err)
			}
		}
		return nil
	})
}

// LoadSentLeads returns the contacted company numbers
func (s *SQLStore) LoadSentLeads(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT company_number FROM sent_leads`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sent leads: %w", err)
	}
	defer rows.Close()

	sent := map[string]struct{}{}
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, fmt.Errorf("failed to scan sent lead: %w", err)
		}
		sent[number] = struct{}{}
	}
	return sent, rows.Err()
}

// MarkLeadSent records a contacted company number
func (s *SQLStore) MarkLeadSent(ctx context.Context, companyNumber string) error {
	stmt := `INSERT INTO sent_leads (company_number) VALUES (?) ON CONFLICT DO NOTHING`
	if s.driver == DriverMySQL {
		stmt = `INSERT IGNORE INTO sent_leads (company_number) VALUES (?)`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(stmt), companyNumber); err != nil {
		return fmt.Errorf("failed to mark lead %s: %w", companyNumber, err)
	}
	return nil
}

// Stop closes the database
func (s *SQLStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}

func (s *SQLStore) upsertSendLog() string {
	if s.driver == DriverMySQL {
		return `INSERT INTO send_log (day, sent_count) VALUES (?, 1)
			ON DUPLICATE KEY UPDATE sent_count = sent_count + 1`
	}
	return `INSERT INTO send_log (day, sent_count) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET sent_count = send_log.sent_count + 1`
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
