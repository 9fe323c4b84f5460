package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertSink records ingestion failure events and lists them back. Listing
// returns every recorded event, oldest first.
type AlertSink interface {
	NotifyFailure(ctx context.Context, event FailureEvent) error
	ListFailures(ctx context.Context) ([]FailureEvent, error)
}

// MemoryAlertSink keeps failure events in memory, in recording order.
type MemoryAlertSink struct {
	mu     sync.RWMutex
	events []FailureEvent
}

func NewMemoryAlertSink() *MemoryAlertSink {
	return &MemoryAlertSink{}
}

func (s *MemoryAlertSink) NotifyFailure(ctx context.Context, event FailureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryAlertSink) ListFailures(ctx context.Context) ([]FailureEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FailureEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

// PostgresAlertSink persists failure events for the operations feed.
type PostgresAlertSink struct {
	db *sql.DB
}

func NewPostgresAlertSink(db *sql.DB) *PostgresAlertSink {
	return &PostgresAlertSink{db: db}
}

func (s *PostgresAlertSink) NotifyFailure(ctx context.Context, event FailureEvent) error {
	query := `
		INSERT INTO ingestion_failures (id, source, error_type, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		string(event.Source),
		event.ErrorType,
		event.OccurredAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record failure event: %w", err)
	}

	return nil
}

func (s *PostgresAlertSink) ListFailures(ctx context.Context) ([]FailureEvent, error) {
	query := `
		SELECT source, error_type, occurred_at
		FROM ingestion_failures
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list failure events: %w", err)
	}
	defer rows.Close()

	var events []FailureEvent
	for rows.Next() {
		var source string
		var event FailureEvent
		if err := rows.Scan(&source, &event.ErrorType, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure event: %w", err)
		}
		event.Source = Source(source)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}
