package cqrs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process EventStore and ViewRepository. It backs the
// aggregate test harness and local runs without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string][]SerializedEvent
	snapshots map[string]SerializedSnapshot
	views     map[string]json.RawMessage
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string][]SerializedEvent),
		snapshots: make(map[string]SerializedSnapshot),
		views:     make(map[string]json.RawMessage),
	}
}

func streamKey(aggregateType, aggregateID string) string {
	return aggregateType + "\x00" + aggregateID
}

func (s *MemoryStore) LoadEvents(_ context.Context, aggregateType, aggregateID string, fromSequence uint64) ([]SerializedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SerializedEvent
	for _, event := range s.events[streamKey(aggregateType, aggregateID)] {
		if event.Sequence >= fromSequence {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, aggregateType, aggregateID string) (*SerializedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[streamKey(aggregateType, aggregateID)]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (s *MemoryStore) Append(_ context.Context, events []SerializedEvent, snapshot *SerializedSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		key := streamKey(event.AggregateType, event.AggregateID)
		stream := s.events[key]
		expected := uint64(len(stream)) + 1
		if event.Sequence != expected {
			return fmt.Errorf("sequence conflict on %s/%s: have %d, appending %d",
				event.AggregateType, event.AggregateID, expected-1, event.Sequence)
		}
		s.events[key] = append(stream, event)
	}
	if snapshot != nil {
		s.snapshots[streamKey(snapshot.AggregateType, snapshot.AggregateID)] = *snapshot
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, viewName, viewID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.views[streamKey(viewName, viewID)]
	if !ok {
		return nil, nil
	}
	return payload, nil
}

func (s *MemoryStore) Save(_ context.Context, viewName, viewID string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[streamKey(viewName, viewID)] = payload
	return nil
}
