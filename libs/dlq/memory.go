package dlq

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	history  map[string][]Transition
	attempts map[string]int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  map[string]Record{},
		history:  map[string][]Transition{},
		attempts: map[string]int{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (bool, error) {
	if err := CheckTransition("", rec.Status); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[rec.MessageID]; ok {
		existing.ErrorMessage = rec.ErrorMessage
		existing.UpdatedAt = now
		s.records[rec.MessageID] = existing
		return false, nil
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Payload = append([]byte{}, rec.Payload...)
	s.records[rec.MessageID] = rec
	s.history[rec.MessageID] = append(s.history[rec.MessageID], Transition{
		MessageID: rec.MessageID, To: rec.Status, Reason: rec.Reason, RetryCount: rec.RetryCount, At: now,
	})
	return true, nil
}

func (s *MemoryStore) NextAttempt(_ context.Context, messageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.attempts[messageID]
	s.attempts[messageID] = prev + 1
	return prev, nil
}

func (s *MemoryStore) Transition(_ context.Context, t Transition) error {
	if err := CheckTransition(t.From, t.To); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[t.MessageID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != t.From {
		return ErrStaleTransition
	}
	now := s.now()
	rec.Status = t.To
	rec.RetryCount = t.RetryCount
	rec.Reason = t.Reason
	rec.UpdatedAt = now
	s.records[t.MessageID] = rec
	t.At = now
	s.history[t.MessageID] = append(s.history[t.MessageID], t)
	return nil
}

func (s *MemoryStore) FetchPending(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filter(StatusPendingRetry)
	sort.Slice(out, func(i, j int) bool { return olderFirst(out[i], out[j]) })
	return truncate(out, normalizeLimit(limit)), nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) History(_ context.Context, messageID string) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[messageID]; !ok {
		return nil, ErrNotFound
	}
	return append([]Transition(nil), s.history[messageID]...), nil
}

func (s *MemoryStore) List(_ context.Context, status Status, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filter(status)
	sort.Slice(out, func(i, j int) bool { return olderFirst(out[j], out[i]) })
	return truncate(out, normalizeLimit(limit)), nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[Status]int{}
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) filter(status Status) []Record {
	var out []Record
	for _, rec := range s.records {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

func truncate(records []Record, limit int) []Record {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}

func olderFirst(a Record, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.MessageID < b.MessageID
}
