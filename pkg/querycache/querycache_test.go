package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore() *Store {
	s := New()
	// retries must not actually sleep in tests
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestLoadFetchesOnFirstRequest(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	key := Key{Resource: "portfolio"}
	res, err := Load(context.Background(), s, key, func(ctx context.Context) (int, error) {
		return 42, nil
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.HasData || res.Data != 42 {
		t.Fatalf("expected data=42, got %+v", res)
	}
	if res.Status != StatusFresh {
		t.Fatalf("expected fresh, got %s", res.Status)
	}
}

func TestGetReturnsImmediatelyWhileFetching(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	release := make(chan struct{})
	key := Key{Resource: "positions"}
	res := Get(s, key, func(ctx context.Context) (string, error) {
		<-release
		return "data", nil
	}, Options{})
	if res.HasData {
		t.Fatalf("expected no data yet")
	}
	if res.Status != StatusFetching {
		t.Fatalf("expected fetching, got %s", res.Status)
	}
	close(release)
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	key := Key{Resource: "equity", Params: "limit=200"}
	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res, err := Load(context.Background(), s, key, fetch, Options{})
			if err != nil {
				t.Errorf("load err: %v", err)
			}
			if !res.HasData || res.Data != 7 {
				t.Errorf("bad result: %+v", res)
			}
		}()
	}
	// let all callers attach before the fetch settles
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", got)
	}
}

func TestRetryCountAndBackoffCurve(t *testing.T) {
	s := New()
	defer s.Close()

	var mu sync.Mutex
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("boom")
	}

	key := Key{Resource: "decisions"}
	res, err := Load(context.Background(), s, key, fetch, Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("unexpected ctx err: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if res.Err == nil {
		t.Fatalf("expected retained fetch error")
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("expected 1 initial + 3 retries = 4 attempts, got %d", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	mu.Lock()
	defer mu.Unlock()
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d]: expected %v got %v", i, want[i], delays[i])
		}
	}
}

func TestDefaultBackoffCap(t *testing.T) {
	cases := map[int]time.Duration{
		0:   time.Second,
		1:   2 * time.Second,
		4:   16 * time.Second,
		5:   30 * time.Second,
		10:  30 * time.Second,
		100: 30 * time.Second,
	}
	for retry, want := range cases {
		if got := DefaultBackoff(retry); got != want {
			t.Fatalf("DefaultBackoff(%d): expected %v got %v", retry, want, got)
		}
	}
}

func TestErrorKeepsLastGoodData(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	key := Key{Resource: "portfolio"}
	healthy := func(ctx context.Context) (int, error) { return 100, nil }
	if res, _ := Load(context.Background(), s, key, healthy, Options{MaxRetries: 1}); res.Data != 100 {
		t.Fatalf("seed fetch failed: %+v", res)
	}

	s.Invalidate(key)
	broken := func(ctx context.Context) (int, error) { return 0, errors.New("upstream down") }
	res, err := Load(context.Background(), s, key, broken, Options{MaxRetries: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// stale-while-revalidate-failed: Load returns the old data right
	// away; the failing refresh settles in the background.
	if !res.HasData || res.Data != 100 {
		t.Fatalf("expected last good data to remain visible, got %+v", res)
	}

	waitStatus(t, s, key, StatusError)
	res = Get[int](s, key, nil, Options{MaxRetries: 1})
	if !res.HasData || res.Data != 100 {
		t.Fatalf("expected data retained through error, got %+v", res)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	key := Key{Resource: "positions"}
	if res, _ := Load(context.Background(), s, key, fetch, Options{}); res.Data != 1 {
		t.Fatalf("seed fetch failed: %+v", res)
	}

	s.Invalidate(key)
	// stale data is returned immediately, the refetch runs behind it
	res := Get(s, key, fetch, Options{})
	if res.Status != StatusFetching {
		t.Fatalf("expected refetch after invalidate, got %s", res.Status)
	}
	waitStatus(t, s, key, StatusFresh)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected a second fetch after invalidate, got %d", got)
	}
}

func TestSupersededResultIsDiscarded(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	first := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			<-first
			return 111, nil
		}
		return 222, nil
	}

	key := Key{Resource: "equity"}
	Get(s, key, fetch, Options{})

	// supersede the blocked fetch; a pending in-flight request counts
	// as an active observation
	s.Invalidate(key)
	close(first)

	waitStatus(t, s, key, StatusFresh)
	// give the superseded result a chance to (wrongly) land
	time.Sleep(20 * time.Millisecond)
	res := Get[int](s, key, nil, Options{})
	if res.Data != 222 {
		t.Fatalf("expected superseded result discarded, got %+v", res)
	}
}

func TestStaleAfterTriggersBackgroundRefresh(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	clock := time.Now()
	s.now = func() time.Time { return clock }

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	key := Key{Resource: "portfolio"}
	opts := Options{StaleAfter: time.Minute}
	if res, _ := Load(context.Background(), s, key, fetch, opts); res.Data != 1 {
		t.Fatalf("seed fetch failed: %+v", res)
	}

	// within the freshness window nothing refetches
	res := Get(s, key, fetch, opts)
	if res.Status != StatusFresh || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected fresh cache hit, got %+v calls=%d", res, calls)
	}

	clock = clock.Add(2 * time.Minute)
	res = Get(s, key, fetch, opts)
	if !res.HasData || res.Data != 1 {
		t.Fatalf("expected stale data served while refreshing, got %+v", res)
	}
	waitStatus(t, s, key, StatusFresh)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected background refresh, got %d calls", got)
	}
}

func TestSweepEvictsIdleEntriesAndCancelsFetch(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	clock := time.Now()
	s.now = func() time.Time { return clock }

	cancelled := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	}

	key := Key{Resource: "decisions"}
	Get(s, key, fetch, Options{RetainFor: time.Minute})
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}

	clock = clock.Add(2 * time.Minute)
	s.sweep()
	if s.Len() != 0 {
		t.Fatalf("expected entry evicted, got %d", s.Len())
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("expected in-flight fetch cancelled on eviction")
	}
}

func TestLoadRespectsCallerContext(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	block := make(chan struct{})
	defer close(block)
	fetch := func(ctx context.Context) (int, error) {
		<-block
		return 1, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := Load(ctx, s, Key{Resource: "slow"}, fetch, Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func waitStatus(t *testing.T, s *Store, key Key, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, _ := s.peek(key)
		if snap.status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	snap, _ := s.peek(key)
	t.Fatalf("timed out waiting for %s, entry at %s (err=%v)", want, snap.status, snap.err)
}
