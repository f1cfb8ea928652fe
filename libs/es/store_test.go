package es_test

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/storefront/libs/db"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeBackends(t *testing.T) map[string]es.EventStore {
	t.Helper()
	sqlDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	sqliteStore := es.NewSQLiteStore(sqlDB)
	require.NoError(t, sqliteStore.EnsureSchema(context.Background()))

	return map[string]es.EventStore{
		"memory": es.NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreVersionsAreContiguous(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			acct, err := openAccount(ctx, "acct-1", "a@b.com")
			require.NoError(t, err)
			require.NoError(t, acct.Deposit(ctx, 5))
			require.NoError(t, acct.Deposit(ctx, 7))

			version, err := store.Append(ctx, "acct-1", 0, acct.Uncommitted())
			require.NoError(t, err)
			assert.Equal(t, 3, version)

			stream, err := store.Load(ctx, "acct-1")
			require.NoError(t, err)
			require.Len(t, stream, 3)
			for i, e := range stream {
				assert.Equal(t, i+1, e.Version)
				assert.Empty(t, e.Claims)
			}

			empty, err := store.Load(ctx, "missing")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStoreRejectsStaleExpectedVersion(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			acct, err := openAccount(ctx, "acct-2", "c@d.com")
			require.NoError(t, err)
			_, err = store.Append(ctx, "acct-2", 0, acct.Uncommitted())
			require.NoError(t, err)

			again, err := openAccount(ctx, "acct-2", "other@d.com")
			require.NoError(t, err)
			_, err = store.Append(ctx, "acct-2", 0, again.Uncommitted())
			require.ErrorIs(t, err, es.ErrVersionConflict)

			var conflict *es.VersionConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, 0, conflict.Expected)

			exists, err := store.ExistsByField(ctx, "email", "other@d.com")
			require.NoError(t, err)
			assert.False(t, exists, "a rejected append must not claim unique values")
		})
	}
}

func TestStoreRejectsGappedBatch(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			acct, err := openAccount(ctx, "acct-3", "e@f.com")
			require.NoError(t, err)
			_, err = store.Append(ctx, "acct-3", 1, acct.Uncommitted())
			require.ErrorIs(t, err, es.ErrSequenceGap)
		})
	}
}

func TestStoreUniqueIndex(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := openAccount(ctx, "acct-4", "Same@Example.com")
			require.NoError(t, err)
			_, err = store.Append(ctx, "acct-4", 0, first.Uncommitted())
			require.NoError(t, err)

			exists, err := store.ExistsByField(ctx, "email", "same@example.COM ")
			require.NoError(t, err)
			assert.True(t, exists)

			second, err := openAccount(ctx, "acct-5", "same@example.com")
			require.NoError(t, err)
			_, err = store.Append(ctx, "acct-5", 0, second.Uncommitted())
			v, ok := es.AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, "duplicate-email", v.Rule)

			stream, err := store.Load(ctx, "acct-5")
			require.NoError(t, err)
			assert.Empty(t, stream)
		})
	}
}
