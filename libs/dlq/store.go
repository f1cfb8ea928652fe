package dlq

import "context"

// Store persists records, their transition history and the per-message
// classification counter.
type Store interface {
	// Insert stores a newly classified record together with its first
	// transition. It returns false when the id is already tracked; the
	// existing record then only has its error message refreshed.
	Insert(ctx context.Context, rec Record) (bool, error)
	// NextAttempt increments the classification counter of id and returns
	// the count before the increment.
	NextAttempt(ctx context.Context, messageID string) (int, error)
	// Transition moves a record from t.From to t.To, failing with
	// ErrStaleTransition when the record is no longer in t.From.
	Transition(ctx context.Context, t Transition) error
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	Get(ctx context.Context, messageID string) (Record, error)
	History(ctx context.Context, messageID string) ([]Transition, error)
	// List returns records newest first; an empty status lists all.
	List(ctx context.Context, status Status, limit int) ([]Record, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 20
	}
	return limit
}
