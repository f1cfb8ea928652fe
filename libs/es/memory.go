package es

import (
	"context"
	"sync"
)

// MemoryStore keeps streams in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]Envelope
	unique  map[UniqueClaim]string
	appends int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: map[string][]Envelope{},
		unique:  map[UniqueClaim]string{},
	}
}

func (s *MemoryStore) Append(_ context.Context, aggregateID string, expectedVersion int, events []Envelope) (int, error) {
	if err := checkBatch(aggregateID, expectedVersion, events); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := len(s.streams[aggregateID])
	if current != expectedVersion {
		return 0, &VersionConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}

	claims := map[UniqueClaim]string{}
	for _, e := range events {
		for _, c := range e.Claims {
			key := UniqueClaim{Field: c.Field, Value: NormalizeValue(c.Value)}
			if owner, ok := s.unique[key]; ok && owner != aggregateID {
				return 0, DuplicateValue(c.Field, c.Value)
			}
			claims[key] = aggregateID
		}
	}

	for _, e := range events {
		stored := cloneEnvelope(e)
		stored.Claims = nil
		s.streams[aggregateID] = append(s.streams[aggregateID], stored)
	}
	for k, v := range claims {
		s.unique[k] = v
	}
	s.appends++
	return len(s.streams[aggregateID]), nil
}

func (s *MemoryStore) Load(_ context.Context, aggregateID string) ([]Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	out := make([]Envelope, 0, len(stream))
	for _, e := range stream {
		out = append(out, cloneEnvelope(e))
	}
	return out, nil
}

func (s *MemoryStore) ExistsByField(_ context.Context, field string, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.unique[UniqueClaim{Field: field, Value: NormalizeValue(value)}]
	return ok, nil
}

// Appends counts successful Append calls.
func (s *MemoryStore) Appends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}
