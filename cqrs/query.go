package cqrs

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// View is a read-optimized state derived incrementally from events.
// Implementations are pointer types updated in place.
type View[E DomainEvent] interface {
	Update(event EventEnvelope[E])
}

// GenericQuery folds committed events into a serialized view row: load the
// current row, apply every envelope, save it back. Errors are reported to
// the error handler and otherwise swallowed — a broken projection must not
// fail the command that produced the events.
type GenericQuery[E DomainEvent] struct {
	viewName string
	repo     ViewRepository
	newView  func() View[E]
	onError  func(error)
}

// NewGenericQuery builds a projection writing rows under viewName. newView
// returns an empty view instance to unmarshal into.
func NewGenericQuery[E DomainEvent](viewName string, repo ViewRepository, newView func() View[E]) *GenericQuery[E] {
	return &GenericQuery[E]{
		viewName: viewName,
		repo:     repo,
		newView:  newView,
		onError:  func(error) {},
	}
}

// UseErrorHandler installs a handler for load/save failures. Without one
// there is no indication that a view is falling behind.
func (q *GenericQuery[E]) UseErrorHandler(handler func(error)) {
	q.onError = handler
}

func (q *GenericQuery[E]) Dispatch(ctx context.Context, aggregateID string, events []EventEnvelope[E]) {
	view := q.newView()
	payload, err := q.repo.Load(ctx, q.viewName, aggregateID)
	if err != nil {
		q.onError(&AggregateError{Op: "load view " + q.viewName, Err: err})
		return
	}
	if payload != nil {
		if err := json.Unmarshal(payload, view); err != nil {
			q.onError(&AggregateError{Op: "decode view " + q.viewName, Err: err})
			return
		}
	}
	for _, event := range events {
		view.Update(event)
	}
	updated, err := json.Marshal(view)
	if err != nil {
		q.onError(&AggregateError{Op: "encode view " + q.viewName, Err: err})
		return
	}
	if err := q.repo.Save(ctx, q.viewName, aggregateID, updated); err != nil {
		q.onError(&AggregateError{Op: "save view " + q.viewName, Err: err})
	}
}

// SimpleLoggingQuery logs each committed event at debug level. Useful for
// tracing a stream, useless in production.
type SimpleLoggingQuery[E DomainEvent] struct {
	Logger *zap.Logger
}

func (q *SimpleLoggingQuery[E]) Dispatch(_ context.Context, aggregateID string, events []EventEnvelope[E]) {
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			continue
		}
		q.Logger.Debug("event committed",
			zap.String("aggregate_id", aggregateID),
			zap.Uint64("sequence", event.Sequence),
			zap.String("event_type", event.Payload.EventType()),
			zap.ByteString("payload", payload),
		)
	}
}
