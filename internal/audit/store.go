// Package audit provides PostgreSQL-backed storage for moderation decisions.
// Each row captures the message, the fused verdict and the contributing
// evidence (for moderator review and policy tuning). Writes are best-effort
// side effects of the request path; the moderation verdict never depends on
// them.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/whisper/moderation-api/internal/moderation"
)

// Store manages moderation decision records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle (used by tests).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies pending schema migrations from the given directory.
func Migrate(databaseURL, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("audit: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migrate up: %w", err)
	}
	return nil
}

// evidence is the JSONB snapshot of the verdicts that contributed to a
// decision.
type evidence struct {
	Reason      moderation.Reason            `json:"reason"`
	BlockReason string                       `json:"block_reason,omitempty"`
	Probability float64                      `json:"probability,omitempty"`
	Underage    bool                         `json:"underage"`
	General     moderation.ClassifierVerdict `json:"general"`
	Specialized moderation.ClassifierVerdict `json:"specialized"`
}

// Record inserts a decision record. The evidence column is JSONB so
// reviewers can query by contributing score or label.
func (s *Store) Record(ctx context.Context, rec moderation.DecisionRecord) error {
	ev, err := json.Marshal(evidence{
		Reason:      rec.Decision.Reason,
		BlockReason: rec.Decision.BlockReason,
		Probability: rec.Decision.Probability,
		Underage:    rec.Decision.Underage,
		General:     rec.Decision.General,
		Specialized: rec.Decision.Specialized,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal evidence: %w", err)
	}

	const query = `
		INSERT INTO moderation_decisions (id, message, blocked, reason, probability, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Message,
		rec.Decision.Blocked,
		string(rec.Decision.Reason),
		rec.Decision.Probability,
		ev,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountBlocked returns the number of blocked decisions within the given time
// window. Useful for alerting on block-rate spikes.
func (s *Store) CountBlocked(ctx context.Context, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_decisions
		WHERE blocked
		  AND created_at >= NOW() - $1::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count blocked: %w", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
