package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pr-reaction-bridge/internal/models"
)

const (
	pr42 = "https://github.com/acme/widgets/pull/42"
	pr43 = "https://github.com/acme/widgets/pull/43"
	pr44 = "https://github.com/acme/widgets/pull/44"
)

type storeFactory func(t *testing.T, opts ...StoreOption) TrackingStore

// sequenceIDs hands out the given IDs in order, then falls back to numbered ones.
func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= len(ids) {
			return ids[n-1]
		}
		return fmt.Sprintf("generated-%d", n)
	}
}

func urlsOf(records []*models.TrackingRecord) []string {
	urls := make([]string, 0, len(records))
	for _, r := range records {
		urls = append(urls, r.URL)
	}
	return urls
}

// runTrackingStoreSuite exercises the TrackingStore contract against one backend.
func runTrackingStoreSuite(t *testing.T, newStore storeFactory) {
	t.Helper()

	locA1 := models.ChatLocation{Channel: "A", Timestamp: "1"}
	locA2 := models.ChatLocation{Channel: "A", Timestamp: "2"}
	locB1 := models.ChatLocation{Channel: "B", Timestamp: "1"}
	insertedAt := time.Date(2023, 10, 3, 20, 0, 0, 0, time.UTC)

	t.Run("empty store", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("insert then find round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		urls := []string{pr42, pr43, pr44}

		require.NoError(t, store.InsertAll(ctx, urls, locA1, insertedAt))

		ids := map[string]struct{}{}
		for _, url := range urls {
			found, err := store.FindByURL(ctx, url)
			require.NoError(t, err)
			require.Len(t, found, 1, url)
			assert.Equal(t, url, found[0].URL)
			assert.Equal(t, locA1, found[0].Location())
			assert.NotEmpty(t, found[0].ID)
			assert.WithinDuration(t, insertedAt, found[0].InsertedAt, time.Millisecond)
			ids[found[0].ID] = struct{}{}
		}
		assert.Len(t, ids, len(urls))

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, urls, urlsOf(all))
	})

	t.Run("same url in two messages gives two records", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locB1, insertedAt.Add(time.Second)))

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.ElementsMatch(t, []models.ChatLocation{locA1, locB1},
			[]models.ChatLocation{found[0].Location(), found[1].Location()})
	})

	t.Run("duplicate mentions give one record each", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.InsertAll(ctx, []string{pr42, pr42}, locA1, insertedAt))

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("empty insert and delete are no-ops", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.InsertAll(ctx, nil, locA1, insertedAt))
		require.NoError(t, store.InsertAll(ctx, []string{}, models.ChatLocation{}, insertedAt))
		require.NoError(t, store.DeleteAll(ctx, nil, locA1))
		require.NoError(t, store.Reconcile(ctx, nil, nil))

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("delete requires channel and timestamp to match", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))

		require.NoError(t, store.DeleteAll(ctx, []string{pr42}, locA2))
		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Len(t, found, 1, "timestamp mismatch must not delete")

		require.NoError(t, store.DeleteAll(ctx, []string{pr42}, locB1))
		found, err = store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Len(t, found, 1, "channel mismatch must not delete")

		require.NoError(t, store.DeleteAll(ctx, []string{pr42}, locA1))
		found, err = store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("delete only removes named urls", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42, pr43}, locA1, insertedAt))

		require.NoError(t, store.DeleteAll(ctx, []string{pr42, pr44}, locA1))

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{pr43}, urlsOf(all))
	})

	t.Run("reconcile replaces urls for an edited message", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locB1, insertedAt))

		err := store.Reconcile(ctx,
			&Retraction{URLs: []string{pr42}, Location: locA1},
			&Assertion{URLs: []string{pr43}, Location: locA1, InsertedAt: insertedAt.Add(time.Minute)},
		)
		require.NoError(t, err)

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, locB1, found[0].Location())

		found, err = store.FindByURL(ctx, pr43)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, locA1, found[0].Location())
	})

	t.Run("reconcile keeps urls present before and after the edit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42, pr43}, locA1, insertedAt))

		err := store.Reconcile(ctx,
			&Retraction{URLs: []string{pr42, pr43}, Location: locA1},
			&Assertion{URLs: []string{pr43, pr44}, Location: locA1, InsertedAt: insertedAt},
		)
		require.NoError(t, err)

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{pr43, pr44}, urlsOf(all))
	})

	t.Run("reconcile with one side behaves like that operation", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Reconcile(ctx, nil,
			&Assertion{URLs: []string{pr42}, Location: locA1, InsertedAt: insertedAt}))
		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		require.Len(t, found, 1)

		require.NoError(t, store.Reconcile(ctx, &Retraction{URLs: []string{pr42}, Location: locA1}, nil))
		found, err = store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("invalid insert leaves store untouched", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))

		err := store.Reconcile(ctx,
			&Retraction{URLs: []string{pr42}, Location: locA1},
			&Assertion{URLs: []string{pr43, ""}, Location: locA1, InsertedAt: insertedAt},
		)
		require.ErrorIs(t, err, ErrEmptyURL)

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{pr42}, urlsOf(all))

		err = store.InsertAll(ctx, []string{pr43}, models.ChatLocation{Channel: "A"}, insertedAt)
		require.ErrorIs(t, err, models.ErrSlackMessageTSRequired)
	})

	t.Run("URLs that are not pull requests are rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, url := range []string{
			"https://github.com/acme/widgets/issues/42",
			"https://gitlab.com/acme/widgets/pull/42",
			"see " + pr42,
		} {
			err := store.InsertAll(ctx, []string{pr42, url}, locA1, insertedAt)
			require.ErrorIs(t, err, ErrInvalidURL, url)
		}

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		// Retractions are not pattern checked, so records from an older host can still go.
		require.NoError(t, store.DeleteAll(ctx, []string{"https://gitlab.com/acme/widgets/pull/42"}, locA1))
	})

	t.Run("failed insert rolls back the delete", func(t *testing.T) {
		// The third generated ID collides with the first record.
		store := newStore(t, WithIDGenerator(sequenceIDs("taken", "kept", "taken")))
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr44}, locB1, insertedAt))
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))

		err := store.Reconcile(ctx,
			&Retraction{URLs: []string{pr42}, Location: locA1},
			&Assertion{URLs: []string{pr43}, Location: locA1, InsertedAt: insertedAt},
		)
		require.Error(t, err)

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		require.Len(t, found, 1, "retracted record must survive a failed reconcile")
		assert.Equal(t, "kept", found[0].ID)

		found, err = store.FindByURL(ctx, pr43)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("concurrent edits of different messages", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			loc := models.ChatLocation{Channel: "C", Timestamp: fmt.Sprintf("%d", i)}
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.InsertAll(ctx, []string{pr42}, loc, insertedAt))
				assert.NoError(t, store.Reconcile(ctx,
					&Retraction{URLs: []string{pr42}, Location: loc},
					&Assertion{URLs: []string{pr43}, Location: loc, InsertedAt: insertedAt},
				))
			}()
		}
		wg.Wait()

		found, err := store.FindByURL(ctx, pr42)
		require.NoError(t, err)
		assert.Empty(t, found)

		found, err = store.FindByURL(ctx, pr43)
		require.NoError(t, err)
		assert.Len(t, found, 8)
	})

	t.Run("readers never see a half-applied edit of one message", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.InsertAll(ctx, []string{pr42}, locA1, insertedAt))

		done := make(chan struct{})
		go func() {
			defer close(done)
			from, to := pr42, pr43
			for i := 0; i < 100; i++ {
				if !assert.NoError(t, store.Reconcile(ctx,
					&Retraction{URLs: []string{from}, Location: locA1},
					&Assertion{URLs: []string{to}, Location: locA1, InsertedAt: insertedAt},
				)) {
					return
				}
				from, to = to, from
			}
		}()
		defer func() { <-done }()

		for reads := 0; ; reads++ {
			select {
			case <-done:
				all, err := store.ListAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{pr42}, urlsOf(all))
				return
			default:
			}
			all, err := store.ListAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1, "read %d saw %v", reads, urlsOf(all))
		}
	})
}
