// Package audit persists the outcome of every evaluation pass so operators
// can see which rules fired and why a message was suppressed. Message text is
// never stored, only content hashes.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Store writes pass records to PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Entry is one recorded evaluation pass
type Entry struct {
	ID           int64          `db:"id" json:"id"`
	StreamID     string         `db:"stream_id" json:"stream_id"`
	Stage        string         `db:"stage" json:"stage"`
	Disposition  string         `db:"disposition" json:"disposition"`
	FiredRules   pq.StringArray `db:"fired_rules" json:"fired_rules"`
	OriginalHash string         `db:"original_hash" json:"original_hash"`
	FinalHash    string         `db:"final_hash" json:"final_hash"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// NewStore creates a new audit store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)

	return store, nil
}

// initialize checks the connection and ensures the audit table exists
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS message_audit (
			id            BIGSERIAL PRIMARY KEY,
			stream_id     TEXT NOT NULL,
			stage         TEXT NOT NULL,
			disposition   TEXT NOT NULL,
			fired_rules   TEXT[] NOT NULL DEFAULT '{}',
			original_hash TEXT NOT NULL,
			final_hash    TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_message_audit_created_at ON message_audit (created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_message_audit_stream_id ON message_audit (stream_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	return nil
}

// Record inserts one pass record
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO message_audit (stream_id, stage, disposition, fired_rules, original_hash, final_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	row := s.db.QueryRowContext(ctx, query,
		entry.StreamID, entry.Stage, entry.Disposition,
		entry.FiredRules, entry.OriginalHash, entry.FinalHash,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the most recent pass records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	query := `
		SELECT id, stream_id, stage, disposition, fired_rules, original_hash, final_hash, created_at
		FROM message_audit
		ORDER BY created_at DESC
		LIMIT $1
	`
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// TextHash returns the stable content hash stored in place of message text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// maskDatabaseURL hides credentials for logging
func maskDatabaseURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "postgres://***"
	}
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}
