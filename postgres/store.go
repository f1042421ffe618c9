// Package postgres persists event streams, snapshots and view rows with
// pgx. One events table serves every aggregate type; streams are keyed by
// (aggregate_type, aggregate_id) and the sequence primary key makes a
// concurrent append of the same sequence fail the whole transaction.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/cqrs"
)

// Connect builds a pool from the connection string and pings it with
// exponential backoff until the database answers or the retry budget is
// exhausted.
func Connect(ctx context.Context, connString string, maxConns int32, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err = backoff.RetryNotify(
		func() error { return pool.Ping(ctx) },
		policy,
		func(err error, next time.Duration) {
			logger.Warn("postgres not ready, retrying",
				zap.Error(err),
				zap.Duration("next_attempt_in", next),
			)
		},
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the event, snapshot and view tables.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			aggregate_type TEXT   NOT NULL,
			aggregate_id   TEXT   NOT NULL,
			sequence       BIGINT NOT NULL CHECK (sequence >= 1),
			event_type     TEXT   NOT NULL,
			event_version  TEXT   NOT NULL,
			payload        JSONB  NOT NULL,
			metadata       JSONB  NOT NULL,
			PRIMARY KEY (aggregate_type, aggregate_id, sequence)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_type TEXT   NOT NULL,
			aggregate_id   TEXT   NOT NULL,
			last_sequence  BIGINT NOT NULL,
			payload        JSONB  NOT NULL,
			PRIMARY KEY (aggregate_type, aggregate_id)
		)`,
		`CREATE TABLE IF NOT EXISTS views (
			view_name TEXT  NOT NULL,
			view_id   TEXT  NOT NULL,
			payload   JSONB NOT NULL,
			PRIMARY KEY (view_name, view_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// EventStore implements cqrs.EventStore on a pgx pool.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore wraps the pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string, fromSequence uint64) ([]cqrs.SerializedEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, event_type, event_version, payload, metadata
		 FROM events
		 WHERE aggregate_type = $1 AND aggregate_id = $2 AND sequence >= $3
		 ORDER BY sequence`,
		aggregateType, aggregateID, int64(fromSequence),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var events []cqrs.SerializedEvent
	for rows.Next() {
		event := cqrs.SerializedEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
		}
		var sequence int64
		if err := rows.Scan(&sequence, &event.EventType, &event.EventVersion, &event.Payload, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.Sequence = uint64(sequence)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event rows: %w", err)
	}
	return events, nil
}

func (s *EventStore) LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*cqrs.SerializedSnapshot, error) {
	snapshot := cqrs.SerializedSnapshot{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
	}
	var lastSequence int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_sequence, payload FROM snapshots
		 WHERE aggregate_type = $1 AND aggregate_id = $2`,
		aggregateType, aggregateID,
	).Scan(&lastSequence, &snapshot.State)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snapshot.LastSequence = uint64(lastSequence)
	return &snapshot, nil
}

func (s *EventStore) Append(ctx context.Context, events []cqrs.SerializedEvent, snapshot *cqrs.SerializedSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range events {
		_, err := tx.Exec(ctx,
			`INSERT INTO events (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.AggregateType, event.AggregateID, int64(event.Sequence),
			event.EventType, event.EventVersion, event.Payload, event.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s/%s#%d: %w",
				event.AggregateType, event.AggregateID, event.Sequence, err)
		}
	}
	if snapshot != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO snapshots (aggregate_type, aggregate_id, last_sequence, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (aggregate_type, aggregate_id)
			 DO UPDATE SET last_sequence = EXCLUDED.last_sequence, payload = EXCLUDED.payload`,
			snapshot.AggregateType, snapshot.AggregateID, int64(snapshot.LastSequence), snapshot.State,
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}
	return nil
}

// ViewRepository implements cqrs.ViewRepository on the same pool.
type ViewRepository struct {
	pool *pgxpool.Pool
}

// NewViewRepository wraps the pool.
func NewViewRepository(pool *pgxpool.Pool) *ViewRepository {
	return &ViewRepository{pool: pool}
}

func (r *ViewRepository) Load(ctx context.Context, viewName, viewID string) (json.RawMessage, error) {
	var payload json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM views WHERE view_name = $1 AND view_id = $2`,
		viewName, viewID,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load view %s/%s: %w", viewName, viewID, err)
	}
	return payload, nil
}

func (r *ViewRepository) Save(ctx context.Context, viewName, viewID string, payload json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO views (view_name, view_id, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (view_name, view_id) DO UPDATE SET payload = EXCLUDED.payload`,
		viewName, viewID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save view %s/%s: %w", viewName, viewID, err)
	}
	return nil
}
