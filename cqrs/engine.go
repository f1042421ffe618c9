package cqrs

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Engine drives one aggregate type through the event-sourced pipeline:
// serialize commands per aggregate id, rebuild state by replay, persist the
// resulting events atomically, and fan them out to the registered queries.
//
// Within a single aggregate id, command handlers run in a critical section;
// handlers for distinct ids run concurrently. A handler may submit nested
// commands to a different aggregate type's engine — those serialize
// independently.
type Engine[A Aggregate[C, E], C any, E DomainEvent] struct {
	store         EventStore
	newAggregate  func() A
	queries       []Query[E]
	snapshotEvery uint64
	logger        *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine builds an engine for the aggregate produced by newAggregate.
// The factory returns a fresh uninitialized aggregate; for saga aggregates
// it is also where the services handle is injected.
func NewEngine[A Aggregate[C, E], C any, E DomainEvent](
	store EventStore,
	newAggregate func() A,
) *Engine[A, C, E] {
	return &Engine[A, C, E]{
		store:        store,
		newAggregate: newAggregate,
		logger:       zap.NewNop(),
		locks:        make(map[string]*sync.Mutex),
	}
}

// WithQueries registers read-side projections, invoked in order after each
// successful append.
func (e *Engine[A, C, E]) WithQueries(queries ...Query[E]) *Engine[A, C, E] {
	e.queries = append(e.queries, queries...)
	return e
}

// WithSnapshots persists the aggregate state every interval events. Zero
// disables snapshotting.
func (e *Engine[A, C, E]) WithSnapshots(interval uint64) *Engine[A, C, E] {
	e.snapshotEvery = interval
	return e
}

// WithLogger sets the engine logger.
func (e *Engine[A, C, E]) WithLogger(logger *zap.Logger) *Engine[A, C, E] {
	e.logger = logger
	return e
}

// Execute runs one command against the aggregate identified by aggregateID.
// It returns nil on success, the aggregate's own error on domain rejection,
// or an *AggregateError on infrastructure failure.
func (e *Engine[A, C, E]) Execute(ctx context.Context, aggregateID string, cmd C) error {
	return e.ExecuteWithMetadata(ctx, aggregateID, cmd, nil)
}

// ExecuteWithMetadata is Execute with key-value metadata attached to every
// event the handler emits.
func (e *Engine[A, C, E]) ExecuteWithMetadata(ctx context.Context, aggregateID string, cmd C, metadata map[string]string) error {
	lock := e.lockFor(aggregateID)
	lock.Lock()
	defer lock.Unlock()

	aggregate := e.newAggregate()
	lastSequence, err := e.replay(ctx, aggregate, aggregateID)
	if err != nil {
		return err
	}

	events, err := aggregate.Handle(ctx, cmd)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return &AggregateError{Op: "encode metadata", Err: err}
	}

	aggregateType := aggregate.AggregateType()
	serialized := make([]SerializedEvent, len(events))
	envelopes := make([]EventEnvelope[E], len(events))
	for i, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return &AggregateError{Op: "encode event", Err: err}
		}
		sequence := lastSequence + uint64(i) + 1
		serialized[i] = SerializedEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Sequence:      sequence,
			EventType:     event.EventType(),
			EventVersion:  event.EventVersion(),
			Payload:       payload,
			Metadata:      metadataJSON,
		}
		envelopes[i] = EventEnvelope[E]{
			AggregateID: aggregateID,
			Sequence:    sequence,
			Payload:     event,
			Metadata:    metadata,
		}
		aggregate.Apply(event)
	}

	snapshot, err := e.snapshotIfDue(aggregate, aggregateType, aggregateID, lastSequence, uint64(len(events)))
	if err != nil {
		return err
	}
	if err := e.store.Append(ctx, serialized, snapshot); err != nil {
		return &AggregateError{Op: "append events", Err: err}
	}
	e.logger.Debug("events committed",
		zap.String("aggregate_type", aggregateType),
		zap.String("aggregate_id", aggregateID),
		zap.Int("count", len(events)),
		zap.Uint64("head_sequence", lastSequence+uint64(len(events))),
	)

	for _, query := range e.queries {
		query.Dispatch(ctx, aggregateID, envelopes)
	}
	return nil
}

// replay rebuilds the aggregate from its snapshot (if any) plus the event
// tail, returning the last applied sequence number.
func (e *Engine[A, C, E]) replay(ctx context.Context, aggregate A, aggregateID string) (uint64, error) {
	aggregateType := aggregate.AggregateType()

	var lastSequence uint64
	if e.snapshotEvery > 0 {
		snapshot, err := e.store.LoadSnapshot(ctx, aggregateType, aggregateID)
		if err != nil {
			return 0, &AggregateError{Op: "load snapshot", Err: err}
		}
		if snapshot != nil {
			if err := json.Unmarshal(snapshot.State, aggregate); err != nil {
				return 0, &AggregateError{Op: "decode snapshot", Err: err}
			}
			lastSequence = snapshot.LastSequence
		}
	}

	stored, err := e.store.LoadEvents(ctx, aggregateType, aggregateID, lastSequence+1)
	if err != nil {
		return 0, &AggregateError{Op: "load events", Err: err}
	}
	for _, row := range stored {
		var event E
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			return 0, &AggregateError{Op: "decode event", Err: err}
		}
		aggregate.Apply(event)
		lastSequence = row.Sequence
	}
	return lastSequence, nil
}

// snapshotIfDue serializes the post-apply aggregate state when the new head
// sequence crosses a snapshot boundary.
func (e *Engine[A, C, E]) snapshotIfDue(aggregate A, aggregateType, aggregateID string, lastSequence, appended uint64) (*SerializedSnapshot, error) {
	if e.snapshotEvery == 0 {
		return nil, nil
	}
	head := lastSequence + appended
	if head/e.snapshotEvery == lastSequence/e.snapshotEvery {
		return nil, nil
	}
	state, err := json.Marshal(aggregate)
	if err != nil {
		return nil, &AggregateError{Op: "encode snapshot", Err: err}
	}
	return &SerializedSnapshot{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		LastSequence:  head,
		State:         state,
	}, nil
}

func (e *Engine[A, C, E]) lockFor(aggregateID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[aggregateID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[aggregateID] = lock
	}
	return lock
}
