package es_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountRepo(t *testing.T, store es.EventStore, pub es.Publisher) *es.Repository[*account] {
	t.Helper()
	repo, err := es.NewRepository[*account](store, replayAccount, es.RepositoryConfig{CacheSize: 16, Publisher: pub})
	require.NoError(t, err)
	return repo
}

func seedAccount(t *testing.T, repo *es.Repository[*account], id string, email string, deposits ...int) *account {
	t.Helper()
	ctx := context.Background()
	acct, err := openAccount(ctx, id, email)
	require.NoError(t, err)
	for _, d := range deposits {
		require.NoError(t, acct.Deposit(ctx, d))
	}
	acct, err = repo.Save(ctx, acct)
	require.NoError(t, err)
	return acct
}

func TestLoadMissingAggregate(t *testing.T) {
	repo := newAccountRepo(t, es.NewMemoryStore(), nil)
	_, err := repo.Load(context.Background(), "nope")
	require.ErrorIs(t, err, es.ErrNotFound)
}

func TestSaveWithoutChangesWritesNothing(t *testing.T) {
	store := &countingStore{EventStore: es.NewMemoryStore()}
	repo := newAccountRepo(t, store, nil)
	acct := seedAccount(t, repo, "acct-1", "a@b.com")
	require.Equal(t, 1, store.appends)

	again, err := repo.Save(context.Background(), acct)
	require.NoError(t, err)
	assert.Same(t, acct, again)
	assert.Equal(t, 1, store.appends)
}

func TestSaveClearsBufferAndCaches(t *testing.T) {
	store := &countingStore{EventStore: es.NewMemoryStore()}
	repo := newAccountRepo(t, store, nil)
	acct := seedAccount(t, repo, "acct-1", "a@b.com", 10)

	assert.Empty(t, acct.Uncommitted())
	assert.Equal(t, 2, acct.Version())
	version, ok := repo.Cached("acct-1")
	require.True(t, ok)
	assert.Equal(t, 2, version)

	loaded, err := repo.Load(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Balance)
	assert.NotSame(t, acct, loaded, "cache hands out copies")
}

func TestLoadReplaysWhenNotCached(t *testing.T) {
	store := es.NewMemoryStore()
	writer := newAccountRepo(t, store, nil)
	seedAccount(t, writer, "acct-1", "a@b.com", 3, 4)

	reader := newAccountRepo(t, store, nil)
	loaded, err := reader.Load(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Version())
	assert.Equal(t, 7, loaded.Balance)
	assert.Empty(t, loaded.Uncommitted())
}

func TestReplayIsDeterministic(t *testing.T) {
	store := es.NewMemoryStore()
	repo := newAccountRepo(t, store, nil)
	seedAccount(t, repo, "acct-1", "a@b.com", 1, 2, 3)

	history, err := store.Load(context.Background(), "acct-1")
	require.NoError(t, err)
	first, err := replayAccount("acct-1", history)
	require.NoError(t, err)
	second, err := replayAccount("acct-1", history)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayRejectsUnknownEventType(t *testing.T) {
	_, err := replayAccount("acct-1", []es.Envelope{{EventID: "e1", AggregateID: "acct-1", Version: 1, EventType: "Mystery", Payload: []byte(`{}`)}})
	require.ErrorIs(t, err, es.ErrUnknownEventType)
}

func TestReplayRejectsGap(t *testing.T) {
	_, err := replayAccount("acct-1", []es.Envelope{{EventID: "e2", AggregateID: "acct-1", Version: 2, EventType: "Deposited", Payload: []byte(`{"amount":1}`)}})
	require.ErrorIs(t, err, es.ErrSequenceGap)
}

func TestConcurrentCachedWritersOneConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newAccountRepo(t, es.NewMemoryStore(), nil)
	seedAccount(t, repo, "acct-1", "a@b.com", 1, 1)

	first, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	second, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	require.Equal(t, 3, first.Version())
	require.Equal(t, 3, second.Version())

	require.NoError(t, first.Deposit(ctx, 5))
	_, err = repo.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Version())

	require.NoError(t, second.Deposit(ctx, 9))
	_, err = repo.Save(ctx, second)
	require.ErrorIs(t, err, es.ErrVersionConflict)
	assert.Len(t, second.Uncommitted(), 1, "loser keeps its attempted events")

	fresh, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 4, fresh.Version())
	assert.Equal(t, 7, fresh.Balance)
}

func TestParallelSavesExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := newAccountRepo(t, es.NewMemoryStore(), nil)
	seedAccount(t, repo, "acct-1", "a@b.com")

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		acct, err := repo.Load(ctx, "acct-1")
		require.NoError(t, err)
		wg.Add(1)
		go func(a *account) {
			defer wg.Done()
			if err := a.Deposit(ctx, 1); err != nil {
				results <- err
				return
			}
			_, err := repo.Save(ctx, a)
			results <- err
		}(acct)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, es.ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestConflictEvictsStaleCacheEntry(t *testing.T) {
	ctx := context.Background()
	store := es.NewMemoryStore()
	repo := newAccountRepo(t, store, nil)
	seedAccount(t, repo, "acct-1", "a@b.com")

	// Another process writes behind this repository's cache.
	other := newAccountRepo(t, store, nil)
	remote, err := other.Load(ctx, "acct-1")
	require.NoError(t, err)
	require.NoError(t, remote.Deposit(ctx, 2))
	_, err = other.Save(ctx, remote)
	require.NoError(t, err)

	stale, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	require.NoError(t, stale.Deposit(ctx, 3))
	_, err = repo.Save(ctx, stale)
	require.ErrorIs(t, err, es.ErrVersionConflict)

	fresh, err := repo.Load(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Version())
}

func TestExistsByUniqueField(t *testing.T) {
	ctx := context.Background()
	store := es.NewMemoryStore()
	repo := newAccountRepo(t, store, nil)
	seedAccount(t, repo, "acct-1", "cached@b.com")

	exists, err := repo.ExistsByUniqueField(ctx, "email", "CACHED@b.com")
	require.NoError(t, err)
	assert.True(t, exists)

	cold := newAccountRepo(t, store, nil)
	exists, err = cold.ExistsByUniqueField(ctx, "email", "cached@b.com")
	require.NoError(t, err)
	assert.True(t, exists, "store index answers when the cache is cold")

	exists, err = cold.ExistsByUniqueField(ctx, "email", "new@b.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPublishAfterSaveIsBestEffort(t *testing.T) {
	ctx := context.Background()
	var published []es.Envelope
	pub := es.PublisherFunc(func(_ context.Context, events []es.Envelope) error {
		published = append(published, events...)
		return errors.New("broker down")
	})
	repo := newAccountRepo(t, es.NewMemoryStore(), pub)

	acct := seedAccount(t, repo, "acct-1", "a@b.com", 4)
	assert.Equal(t, 2, acct.Version())
	require.Len(t, published, 2)
	assert.Equal(t, "AccountOpened", published[0].EventType)
	assert.Equal(t, 2, published[1].Version)
}

func TestCacheIsBounded(t *testing.T) {
	repo, err := es.NewRepository[*account](es.NewMemoryStore(), replayAccount, es.RepositoryConfig{CacheSize: 2})
	require.NoError(t, err)
	seedAccount(t, repo, "a", "a@x.com")
	seedAccount(t, repo, "b", "b@x.com")
	seedAccount(t, repo, "c", "c@x.com")

	_, ok := repo.Cached("a")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = repo.Cached("c")
	assert.True(t, ok)
}
