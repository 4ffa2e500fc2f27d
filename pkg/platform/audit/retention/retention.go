// Package retention prunes aged audit rows from the durable event tables.
// Compliance events are kept for seven years, security for one, operations
// for ninety days. The sweeper runs on a ticker and uses database/sql so it
// stays off the hot-path pgx pool.
package retention

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	audit "profilevault/pkg/platform/audit"
)

const (
	complianceRetention = 7 * 365 * 24 * time.Hour
	securityRetention   = 365 * 24 * time.Hour
	operationsRetention = 90 * 24 * time.Hour

	defaultSweepEvery = time.Hour
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Sweeper deletes audit records whose category retention has elapsed.
type Sweeper struct {
	db     *sql.DB
	logger *slog.Logger
	clock  Clock
	every  time.Duration
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithInterval overrides the sweep interval.
func WithInterval(every time.Duration) Option {
	return func(s *Sweeper) {
		if every > 0 {
			s.every = every
		}
	}
}

// Open connects to Postgres over database/sql for the sweeper.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open retention db: %w", err)
	}
	return db, nil
}

func NewSweeper(db *sql.DB, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		db:     db,
		logger: logger,
		clock:  time.Now,
		every:  defaultSweepEvery,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// retentionFor maps a category to how long its events are kept.
func retentionFor(category audit.EventCategory) time.Duration {
	switch category {
	case audit.CategoryCompliance:
		return complianceRetention
	case audit.CategorySecurity:
		return securityRetention
	default:
		return operationsRetention
	}
}

// SweepOnce deletes expired events for every category and returns the total
// number of rows removed. Events live in the records table as JSON documents,
// so the cutoff compares against the document's timestamp field.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var total int64
	now := s.clock().UTC()

	for _, category := range []audit.EventCategory{
		audit.CategoryCompliance,
		audit.CategorySecurity,
		audit.CategoryOperations,
	} {
		cutoff := now.Add(-retentionFor(category))
		query := `
			DELETE FROM records
			WHERE collection = $1
			  AND document ->> 'category' = $2
			  AND (document ->> 'timestamp')::timestamptz < $3
		`
		result, err := s.db.ExecContext(ctx, query, "isolation_events", string(category), cutoff)
		if err != nil {
			return total, fmt.Errorf("sweep %s events: %w", category, err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sweep %s events: %w", category, err)
		}
		total += removed
	}
	return total, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("audit retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("audit retention sweep complete", "removed", removed)
			}
		}
	}
}
