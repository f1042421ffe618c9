package cqrs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFramework exercises aggregate logic without a store: replay a given
// event history onto a fresh aggregate, fire one command, assert on the
// resulting events or error. The simplicity of these tests is a good part
// of what makes an event-sourced system friendly to changing requirements.
type TestFramework[A Aggregate[C, E], C any, E DomainEvent] struct {
	newAggregate func() A
}

// NewTestFramework wraps the same factory the engine uses.
func NewTestFramework[A Aggregate[C, E], C any, E DomainEvent](newAggregate func() A) *TestFramework[A, C, E] {
	return &TestFramework[A, C, E]{newAggregate: newAggregate}
}

// Given seeds the aggregate with previously committed events.
func (f *TestFramework[A, C, E]) Given(events ...E) *TestExecutor[A, C, E] {
	return &TestExecutor[A, C, E]{framework: f, given: events}
}

// GivenNoPreviousEvents starts from the uninitialized aggregate.
func (f *TestFramework[A, C, E]) GivenNoPreviousEvents() *TestExecutor[A, C, E] {
	return &TestExecutor[A, C, E]{framework: f}
}

type TestExecutor[A Aggregate[C, E], C any, E DomainEvent] struct {
	framework *TestFramework[A, C, E]
	given     []E
}

// When fires the command against the replayed state.
func (e *TestExecutor[A, C, E]) When(cmd C) *TestValidator[A, C, E] {
	aggregate := e.framework.newAggregate()
	for _, event := range e.given {
		aggregate.Apply(event)
	}
	events, err := aggregate.Handle(context.Background(), cmd)
	return &TestValidator[A, C, E]{events: events, err: err}
}

type TestValidator[A Aggregate[C, E], C any, E DomainEvent] struct {
	events []E
	err    error
}

// ThenExpectEvents asserts the handler succeeded with exactly these events.
func (v *TestValidator[A, C, E]) ThenExpectEvents(t *testing.T, expected ...E) {
	t.Helper()
	require.NoError(t, v.err)
	require.Equal(t, expected, v.events)
}

// ThenExpectError asserts the handler rejected the command with an error
// matching target per errors.Is.
func (v *TestValidator[A, C, E]) ThenExpectError(t *testing.T, target error) {
	t.Helper()
	require.Error(t, v.err)
	require.ErrorIs(t, v.err, target)
}

// Events exposes the raw handler result for ad-hoc assertions.
func (v *TestValidator[A, C, E]) Events() []E { return v.events }

// Err exposes the raw handler error.
func (v *TestValidator[A, C, E]) Err() error { return v.err }
