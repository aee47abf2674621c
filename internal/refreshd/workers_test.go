package refreshd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubRefresher counts refreshes and optionally fails the first n.
type stubRefresher struct {
	mu       sync.Mutex
	calls    []string
	failures int
}

func (s *stubRefresher) Refresh(_ context.Context, requestURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, requestURL)
	if s.failures > 0 {
		s.failures--
		return errors.New("provider unavailable")
	}
	return nil
}

func (s *stubRefresher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestResolvePoolSize(t *testing.T) {
	logger := zap.NewNop()

	assert.Equal(t, 16, ResolvePoolSize("16", logger))

	auto := ResolvePoolSize("auto", logger)
	assert.GreaterOrEqual(t, auto, 2)
	assert.LessOrEqual(t, auto, 64)

	assert.Equal(t, auto, ResolvePoolSize("", logger))
	assert.Equal(t, auto, ResolvePoolSize("plenty", logger))
}

func TestWorkerPoolProcessesEntries(t *testing.T) {
	fetcher := &stubRefresher{}
	q := NewInternalQueue(10)
	pool := NewWorkerPool(fetcher, q, nil, 2, 3, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Dispatch([]Entry{
		{RequestURL: "http://api.example.com/oembed?url=1"},
		{RequestURL: "http://api.example.com/oembed?url=2"},
	})

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPoolRetriesWithBackoff(t *testing.T) {
	fetcher := &stubRefresher{failures: 1}
	q := NewInternalQueue(10)
	pool := NewWorkerPool(fetcher, q, nil, 1, 3, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Dispatch([]Entry{{RequestURL: "http://api.example.com/oembed?url=1"}})

	// The failed entry comes back with a retry count and a backoff time.
	require.Eventually(t, func() bool {
		return q.Size() == 1
	}, 2*time.Second, 10*time.Millisecond)

	batch := q.Dequeue(1)
	require.Len(t, batch, 1)
	assert.Equal(t, 1, batch[0].RetryCount)
	assert.False(t, batch[0].NextRetryAfter.IsZero())
}

func TestWorkerPoolDiscardsAfterMaxRetries(t *testing.T) {
	fetcher := &stubRefresher{failures: 100}
	q := NewInternalQueue(10)
	pool := NewWorkerPool(fetcher, q, nil, 1, 1, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Dispatch([]Entry{{RequestURL: "http://api.example.com/oembed?url=1"}})

	require.Eventually(t, func() bool {
		return fetcher.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// max_retries of 1 means no second attempt and no re-enqueue.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 1, fetcher.callCount())
}

func TestWorkerPoolDefersNotYetDueRetries(t *testing.T) {
	fetcher := &stubRefresher{}
	q := NewInternalQueue(10)
	pool := NewWorkerPool(fetcher, q, nil, 1, 3, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Dispatch([]Entry{{
		RequestURL:     "http://api.example.com/oembed?url=1",
		RetryCount:     1,
		NextRetryAfter: time.Now().UTC().Add(time.Hour),
	}})

	// The entry goes back to the queue untouched instead of refreshing.
	require.Eventually(t, func() bool {
		return q.Size() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}
