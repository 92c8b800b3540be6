// Package querycache is a keyed cache of remote query results with
// staleness tracking, bounded retry with capped exponential backoff,
// in-flight request de-duplication and inactivity eviction.
//
// Views ask for data by Key and never talk to the remote source
// directly; the cache decides whether the cached value can be served
// or a refresh has to run. Results of a fetch that was superseded by
// an Invalidate are discarded on arrival (matched by request ID).
package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Key addresses one logical remote resource plus its parameters.
// Two keys are equal iff resource and params match exactly.
type Key struct {
	Resource string
	Params   string
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Resource
	}
	return k.Resource + "?" + k.Params
}

// Status of a cache entry.
type Status int

const (
	StatusFresh Status = iota
	StatusStale
	StatusFetching
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusFetching:
		return "fetching"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Fetcher loads one resource from the remote source. It must be safe
// to retry (the cache retries it on transient failure).
type Fetcher[T any] func(ctx context.Context) (T, error)

// Result is the snapshot a caller observes for a key. Err is the last
// fetch error when Status is StatusError; previously fetched data, if
// any, stays visible alongside it.
type Result[T any] struct {
	Data      T
	HasData   bool
	FetchedAt time.Time
	Status    Status
	Err       error
}

// Options tune the per-key refresh behaviour. Zero values mean
// defaults.
type Options struct {
	// StaleAfter is how long fetched data counts as fresh.
	StaleAfter time.Duration
	// RetainFor is how long an unobserved entry survives before the
	// eviction sweep removes it.
	RetainFor time.Duration
	// MaxRetries is the number of retries after the first failed
	// attempt.
	MaxRetries int
	// Backoff returns the delay before retry n (n counts from 0).
	Backoff func(retry int) time.Duration
	// Timeout bounds a single fetch attempt. An attempt that exceeds
	// it fails and enters the retry path.
	Timeout time.Duration
	// AlwaysRevalidate triggers a background refresh on every
	// observation even while the entry is fresh. Off by default so an
	// operator reviewing the dashboard is not surprised by reloads.
	AlwaysRevalidate bool
}

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultRetainFor  = 10 * time.Minute
	DefaultMaxRetries = 2
	DefaultTimeout    = 30 * time.Second

	maxBackoff    = 30 * time.Second
	sweepInterval = time.Minute
)

// DefaultBackoff is min(1s << retry, 30s), retry counting from 0.
func DefaultBackoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	d := time.Second << uint(retry)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.RetainFor <= 0 {
		o.RetainFor = DefaultRetainFor
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Backoff == nil {
		o.Backoff = DefaultBackoff
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// entry is the single record kept per distinct key. All fields are
// guarded by Store.mu.
type entry struct {
	data      any
	hasData   bool
	fetchedAt time.Time
	status    Status
	err       error

	// inFlightID identifies the fetch whose result is still welcome.
	// A settling fetch with any other ID was superseded and is
	// discarded. Empty means no fetch in flight.
	inFlightID string
	cancel     context.CancelFunc
	done       chan struct{}

	fetch      func(ctx context.Context) (any, error)
	opts       Options
	lastAccess time.Time
	waiters    int
}

// Store owns the key -> entry table. It is the only mutable shared
// state; every mutation happens under mu in response to a get, a
// fetch settling, an invalidate or the eviction sweep.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		entries: make(map[Key]*entry),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// Close stops the eviction sweep and cancels every in-flight fetch.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get returns the current snapshot for key immediately and starts a
// background refresh if the entry is missing, stale or errored and no
// fetch is already in flight.
func Get[T any](s *Store, key Key, fetch Fetcher[T], opts Options) Result[T] {
	snap, _ := s.observe(key, wrapFetcher(fetch), opts)
	return toResult[T](snap)
}

// Load is Get that waits. When the entry has no data yet and a fetch
// is running (or was just started), Load attaches to the pending fetch
// instead of returning an empty snapshot. Data that is merely stale is
// returned immediately while the refresh runs in the background.
// The returned error is only ever ctx's error; fetch failures are
// reported through Result.Err.
func Load[T any](ctx context.Context, s *Store, key Key, fetch Fetcher[T], opts Options) (Result[T], error) {
	snap, done := s.observe(key, wrapFetcher(fetch), opts)
	for !snap.hasData && snap.status == StatusFetching {
		s.addWaiter(key, 1)
		select {
		case <-ctx.Done():
			s.addWaiter(key, -1)
			return toResult[T](snap), ctx.Err()
		case <-done:
		}
		s.addWaiter(key, -1)
		snap, done = s.peek(key)
	}
	return toResult[T](snap), nil
}

// Invalidate marks the entry stale immediately. If the key has an
// active observer or a fetch in flight, a new fetch starts right away
// and the superseded in-flight result will be discarded on arrival.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.hasData && e.status == StatusFresh {
		e.status = StatusStale
	}
	e.fetchedAt = time.Time{}
	if e.fetch == nil {
		return
	}
	if e.inFlightID != "" || e.waiters > 0 {
		s.startFetchLocked(key, e)
	}
}

// InvalidateAll marks every entry stale.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.Invalidate(k)
	}
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type snapshot struct {
	data      any
	hasData   bool
	fetchedAt time.Time
	status    Status
	err       error
}

func wrapFetcher[T any](fetch Fetcher[T]) func(ctx context.Context) (any, error) {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

func toResult[T any](snap snapshot) Result[T] {
	res := Result[T]{
		HasData:   snap.hasData,
		FetchedAt: snap.fetchedAt,
		Status:    snap.status,
		Err:       snap.err,
	}
	if snap.hasData {
		if v, ok := snap.data.(T); ok {
			res.Data = v
		} else {
			res.HasData = false
		}
	}
	return res
}

// observe records an access, refreshes staleness, starts a fetch when
// one is due, and returns the snapshot plus the channel that closes
// when the current fetch settles (nil when none is in flight).
func (s *Store) observe(key Key, fetch func(ctx context.Context) (any, error), opts Options) (snapshot, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.lastAccess = s.now()
	e.opts = opts.withDefaults()
	if fetch != nil {
		e.fetch = fetch
	}

	// fresh -> stale is time based; applied lazily on access.
	if e.status == StatusFresh && s.now().Sub(e.fetchedAt) > e.opts.StaleAfter {
		e.status = StatusStale
	}

	needFetch := e.inFlightID == "" && e.fetch != nil &&
		(!e.hasData && e.status != StatusError && e.status != StatusFetching ||
			e.status == StatusStale ||
			e.status == StatusError ||
			e.opts.AlwaysRevalidate)
	if needFetch {
		s.startFetchLocked(key, e)
	}
	return e.snapshot(), e.done
}

func (s *Store) peek(key Key) (snapshot, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return snapshot{}, nil
	}
	return e.snapshot(), e.done
}

func (s *Store) addWaiter(key Key, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.waiters += delta
		if e.waiters < 0 {
			e.waiters = 0
		}
	}
}

func (e *entry) snapshot() snapshot {
	return snapshot{
		data:      e.data,
		hasData:   e.hasData,
		fetchedAt: e.fetchedAt,
		status:    e.status,
		err:       e.err,
	}
}

// startFetchLocked launches the fetch goroutine for e. Caller holds
// s.mu. Any previous in-flight fetch is cancelled and its result will
// be rejected by the request-ID check in settle.
func (s *Store) startFetchLocked(key Key, e *entry) {
	if e.cancel != nil {
		e.cancel()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.ctx)
	e.inFlightID = id
	e.cancel = cancel
	e.status = StatusFetching
	e.done = make(chan struct{})

	fetch := e.fetch
	opts := e.opts
	done := e.done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		data, err := s.runAttempts(ctx, fetch, opts)
		s.settle(key, id, done, data, err)
	}()
}

// runAttempts runs the fetcher once plus up to MaxRetries retries,
// sleeping opts.Backoff(n) before retry n. Cancellation of ctx stops
// the sequence.
func (s *Store) runAttempts(ctx context.Context, fetch func(ctx context.Context) (any, error), opts Options) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, opts.Backoff(attempt-1)); err != nil {
				return nil, lastErr
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		data, err := fetch(attemptCtx)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// settle applies a finished fetch to the entry table. Last writer
// wins per key: a result whose request ID no longer matches the
// entry's in-flight ID belongs to a superseded fetch and is dropped.
func (s *Store) settle(key Key, id string, done chan struct{}, data any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	e, ok := s.entries[key]
	if !ok || e.inFlightID != id {
		return
	}
	e.inFlightID = ""
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if err != nil {
		e.status = StatusError
		e.err = err
		// previous good data, if any, stays visible.
		return
	}
	e.data = data
	e.hasData = true
	e.fetchedAt = s.now()
	e.status = StatusFresh
	e.err = nil
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

// sweep evicts entries nobody has observed within their RetainFor
// window. Evicting cancels the entry's in-flight fetch, so no further
// attempts run for keys with no active observer.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, e := range s.entries {
		if e.waiters > 0 {
			continue
		}
		if now.Sub(e.lastAccess) > e.opts.RetainFor {
			if e.cancel != nil {
				e.cancel()
			}
			delete(s.entries, key)
		}
	}
}
