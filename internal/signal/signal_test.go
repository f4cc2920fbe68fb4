package signal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/db"
	"internfunnel/internal/migrate"
	"internfunnel/internal/signal"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func stores(t *testing.T, c *clock) map[string]signal.Store {
	t.Helper()
	mem := signal.NewMemoryStore(time.Hour)
	mem.Now = c.Now

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	sqlStore := signal.NewSQLStore(conn, time.Hour)
	sqlStore.Now = c.Now

	return map[string]signal.Store{"memory": mem, "sql": sqlStore}
}

func TestConsumedExactlyOnce(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Record(ctx, "cand-1", "int-9")
			require.NoError(t, err)

			sig, ok, err := s.Poll(ctx, "cand-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, sig.Completed)
			assert.Equal(t, "int-9", sig.InterviewID)

			sig, ok, err = s.Poll(ctx, "cand-1")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.False(t, sig.Completed)
		})
	}
}

func TestPollUnknownCandidate(t *testing.T) {
	c := &clock{now: time.Now()}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Poll(context.Background(), "nobody")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRecordOverwrites(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Record(ctx, "cand-1", "first")
			require.NoError(t, err)
			_, err = s.Record(ctx, "cand-1", "second")
			require.NoError(t, err)
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			sig, ok, err := s.Poll(ctx, "cand-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "second", sig.InterviewID)
		})
	}
}

func TestStaleEntriesSweptOnAnyWrite(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Record(ctx, "stale", "")
			require.NoError(t, err)

			c.Advance(time.Hour + time.Second)
			// Not swept yet: sweeping only happens on write.
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = s.Record(ctx, "other", "")
			require.NoError(t, err)
			_, ok, err := s.Poll(ctx, "stale")
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = s.Poll(ctx, "other")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestFreshEntriesSurviveSweep(t *testing.T) {
	c := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Record(ctx, "recent", "")
			require.NoError(t, err)
			c.Advance(30 * time.Minute)
			_, err = s.Record(ctx, "other", "")
			require.NoError(t, err)
			_, ok, err := s.Poll(ctx, "recent")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCandidateRequired(t *testing.T) {
	c := &clock{now: time.Now()}
	for name, s := range stores(t, c) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Record(context.Background(), "", "x")
			assert.ErrorIs(t, err, signal.ErrCandidateRequired)
			_, _, err = s.Poll(context.Background(), "")
			assert.ErrorIs(t, err, signal.ErrCandidateRequired)
		})
	}
}
