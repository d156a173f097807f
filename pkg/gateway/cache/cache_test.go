package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
)

func answerOf(text string) *backend.Answer {
	return &backend.Answer{Decision: backend.DecisionAnswer, Text: text, Citations: []backend.Citation{}}
}

func TestKey_NormalizesQuery(t *testing.T) {
	require.Equal(t, Key("billing", "how do I pay?"), Key("billing", "  How Do I Pay?  "))
	require.NotEqual(t, Key("billing", "how do I pay?"), Key("support", "how do I pay?"))
}

func TestResolve_MissThenHit(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (*backend.Answer, error) {
		calls++
		return answerOf("first"), nil
	}

	got, cached, err := c.Resolve(ctx, "k", false, compute)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, "first", got.Text)

	got, cached, err = c.Resolve(ctx, "k", false, compute)
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, "first", got.Text)
	require.Equal(t, 1, calls)
}

func TestResolve_BypassSkipsCacheEntirely(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	ctx := context.Background()

	_, _, err := c.Resolve(ctx, "k", false, func(context.Context) (*backend.Answer, error) {
		return answerOf("cached"), nil
	})
	require.NoError(t, err)

	got, cached, err := c.Resolve(ctx, "k", true, func(context.Context) (*backend.Answer, error) {
		return answerOf("fresh"), nil
	})
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, "fresh", got.Text)

	// The bypass result does not replace the cached value.
	got, cached, err = c.Resolve(ctx, "k", false, func(context.Context) (*backend.Answer, error) {
		t.Fatal("compute should not run")
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, "cached", got.Text)
}

func TestResolve_TTLExpiryRecomputes(t *testing.T) {
	now := time.Now()
	c := New(Options{TTL: time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (*backend.Answer, error) {
		calls++
		return answerOf("v"), nil
	}

	_, _, err := c.Resolve(ctx, "k", false, compute)
	require.NoError(t, err)

	now = now.Add(61 * time.Second)
	_, cached, err := c.Resolve(ctx, "k", false, compute)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, 2, calls)
}

func TestResolve_HandoffAndErrorOutcomesNotCached(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	ctx := context.Background()

	_, _, err := c.Resolve(ctx, "handoff", false, func(context.Context) (*backend.Answer, error) {
		return &backend.Answer{Decision: backend.DecisionHandoff, Text: "sorry"}, nil
	})
	require.NoError(t, err)

	_, _, err = c.Resolve(ctx, "failed", false, func(context.Context) (*backend.Answer, error) {
		return nil, errors.New("backend down")
	})
	require.Error(t, err)

	require.Equal(t, 0, c.Len())
	require.Equal(t, 0, c.InflightLen())
}

func TestResolve_CoalescesConcurrentCallers(t *testing.T) {
	c := New(Options{TTL: time.Minute})
	ctx := context.Background()

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(context.Context) (*backend.Answer, error) {
		calls.Add(1)
		close(started)
		<-release
		return answerOf("shared"), nil
	}

	ownerDone := make(chan struct{})
	go func() {
		defer close(ownerDone)
		_, cached, err := c.Resolve(ctx, "k", false, compute)
		require.NoError(t, err)
		require.False(t, cached)
	}()

	<-started

	const joiners = 8
	var wg sync.WaitGroup
	results := make([]*backend.Answer, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, cached, err := c.Resolve(ctx, "k", false, func(context.Context) (*backend.Answer, error) {
				t.Error("joiner compute should not run")
				return nil, nil
			})
			require.NoError(t, err)
			require.True(t, cached)
			results[i] = got
		}(i)
	}

	// Give the joiners a moment to attach to the in-flight task.
	deadline := time.Now().Add(time.Second)
	for c.InflightLen() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()
	<-ownerDone

	require.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		require.Equal(t, "shared", r.Text)
	}
}

func TestResolve_JoinerHonorsContextCancellation(t *testing.T) {
	c := New(Options{TTL: time.Minute})

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_, _, _ = c.Resolve(context.Background(), "k", false, func(context.Context) (*backend.Answer, error) {
			close(started)
			<-release
			return answerOf("late"), nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Resolve(ctx, "k", false, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCache_EvictsOldestInsertionOrder(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 2})
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		key := key
		_, _, err := c.Resolve(ctx, key, false, func(context.Context) (*backend.Answer, error) {
			return answerOf(key), nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())

	// "a" was inserted first and must be gone.
	_, cached, err := c.Resolve(ctx, "a", false, func(context.Context) (*backend.Answer, error) {
		return answerOf("a2"), nil
	})
	require.NoError(t, err)
	require.False(t, cached)

	_, cached, err = c.Resolve(ctx, "c", false, func(context.Context) (*backend.Answer, error) {
		t.Fatal("c should still be cached")
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, cached)
}
