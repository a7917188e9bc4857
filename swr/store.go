package swr

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-todo-sync/cache"
)

// DefaultNamespace prefixes cache keys written by a Store.
const DefaultNamespace = "swr"

const maxRevalidatePasses = 3

// Fetcher loads the authoritative value for key.
type Fetcher[T any] func(ctx context.Context, key string) (T, error)

// Source tells observers what produced an event.
type Source int

const (
	SourceFetch Source = iota + 1
	SourceRevalidate
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceFetch:
		return "fetch"
	case SourceRevalidate:
		return "revalidate"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Event is delivered to observers when an entry changes or a fetch fails.
// Value is only meaningful when Err is nil.
type Event[T any] struct {
	Key    string
	Value  T
	Err    error
	Source Source
}

// Observer receives store events. Observers run on the goroutine that caused
// the event and must not block.
type Observer[T any] func(Event[T])

// WriteOptions controls WriteLocal.
type WriteOptions struct {
	// Revalidate schedules a background refetch after the write.
	Revalidate bool
}

// Options configures a Store.
type Options struct {
	Namespace  string
	Serializer cache.KeySerializer
	// Timeout bounds each fetch. Zero means no store-imposed limit.
	Timeout time.Duration
	// RevalidateOnHit schedules a background refetch whenever Get is served
	// from the cache.
	RevalidateOnHit bool
	Logger          *slog.Logger
}

type entry struct {
	version uint64
	digest  uint64
	pending int
	// dropped is set when a revalidation was discarded during a mutation.
	dropped bool
	// local holds the last local write until a fetch settles the key.
	local []byte
	err   error
}

type subscription[T any] struct {
	key string
	all bool
	fn  Observer[T]
}

// Store is a stale-while-revalidate view over a CacheService.
type Store[T any] struct {
	cache  cache.CacheService
	fetch  Fetcher[T]
	opts   Options
	logger *slog.Logger

	entries   *xsync.MapOf[string, entry]
	observers *xsync.MapOf[uint64, subscription[T]]
	nextSubID atomic.Uint64

	// writeMu orders cache writes against version checks.
	writeMu sync.Mutex
	group   singleflight.Group

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New creates a Store reading through svc and fetching with fetch.
func New[T any](svc cache.CacheService, fetch Fetcher[T], opts Options) *Store[T] {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Serializer == nil {
		opts.Serializer = cache.NewDefaultKeySerializer()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Store[T]{
		cache:     svc,
		fetch:     fetch,
		opts:      opts,
		logger:    logger.With("component", "swr", "namespace", opts.Namespace),
		entries:   xsync.NewMapOf[string, entry](),
		observers: xsync.NewMapOf[uint64, subscription[T]](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Get returns the cached value for key, fetching it on a miss.
func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	if v, ok := s.Peek(key); ok {
		if s.opts.RevalidateOnHit {
			s.Revalidate(key)
		}
		return v, nil
	}

	start := s.version(key)
	var fetched atomic.Bool

	raw, err := cache.GetOrFetch(ctx, s.cache, s.cacheKey(key), func(ctx context.Context) ([]byte, error) {
		fetched.Store(true)
		v, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(v)
	})
	if err != nil {
		s.fail(key, err, SourceFetch)
		return zero, err
	}

	v, err := s.decode(raw)
	if err != nil {
		return zero, err
	}

	if fetched.Load() {
		s.writeMu.Lock()
		if e, _ := s.entries.Load(key); e.version != start && e.local != nil {
			// a local write landed while fetching and wins over the older result
			err := s.cache.Set(ctx, s.cacheKey(key), e.local)
			s.writeMu.Unlock()
			if err != nil {
				return zero, err
			}
			s.Revalidate(key)
			return s.decode(e.local)
		}
		changed := s.settle(key, raw)
		s.writeMu.Unlock()
		if changed {
			s.emit(key, raw, nil, SourceFetch)
		}
	} else if s.version(key) != start {
		// another writer won the race; serve what it stored
		if latest, ok := s.Peek(key); ok {
			return latest, nil
		}
	}

	return v, nil
}

// Peek returns the cached value for key without fetching.
func (s *Store[T]) Peek(key string) (T, bool) {
	var zero T

	raw, ok := cache.Get[[]byte](s.ctx, s.cache, s.cacheKey(key))
	if !ok || raw == nil {
		return zero, false
	}

	v, err := s.decode(raw)
	if err != nil {
		s.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		return zero, false
	}
	return v, true
}

// Err returns the error from the most recent failed fetch of key, cleared by
// the next successful fetch or local write.
func (s *Store[T]) Err(key string) error {
	e, _ := s.entries.Load(key)
	return e.err
}

// WriteLocal replaces the entry for key without a network call. Observers are
// notified before WriteLocal returns.
func (s *Store[T]) WriteLocal(ctx context.Context, key string, value T, opts WriteOptions) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "encode local write")
	}

	s.writeMu.Lock()
	if err := s.cache.Set(ctx, s.cacheKey(key), raw); err != nil {
		s.writeMu.Unlock()
		return err
	}
	digest := xxhash.Sum64(raw)
	s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
		old.version++
		old.digest = digest
		old.local = raw
		old.err = nil
		return old, false
	})
	s.writeMu.Unlock()

	s.emit(key, raw, nil, SourceLocal)

	if opts.Revalidate {
		s.Revalidate(key)
	}
	return nil
}

// BeginMutation marks key as having an in-flight mutation. Revalidation
// results for key are dropped until the returned func is called. Calls nest.
// When the last open mutation ends after a result was dropped, key is
// revalidated again.
func (s *Store[T]) BeginMutation(key string) (end func()) {
	s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
		old.pending++
		return old, false
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			refetch := false
			s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
				if old.pending > 0 {
					old.pending--
				}
				if old.pending == 0 && old.dropped {
					old.dropped = false
					refetch = true
				}
				return old, false
			})
			if refetch {
				s.Revalidate(key)
			}
		})
	}
}

// Revalidate refetches key in the background. Concurrent requests for the
// same key share one fetch.
func (s *Store[T]) Revalidate(key string) {
	if s.closed.Load() {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _, _ = s.group.Do(key, func() (any, error) {
			s.revalidate(key)
			return nil, nil
		})
	}()
}

func (s *Store[T]) revalidate(key string) {
	for pass := 0; pass < maxRevalidatePasses; pass++ {
		start := s.version(key)

		v, err := s.load(s.ctx, key)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(key, err, SourceRevalidate)
			return
		}

		raw, err := msgpack.Marshal(v)
		if err != nil {
			s.logger.Error("encode revalidated value", "key", key, "error", err)
			return
		}

		committed, retry, changed := s.commit(key, start, raw)
		if committed {
			if changed {
				s.emit(key, raw, nil, SourceRevalidate)
			}
			return
		}
		if !retry {
			s.logger.Debug("dropping revalidation during open mutation", "key", key)
			return
		}
		s.logger.Debug("local write landed during revalidation, refetching", "key", key, "pass", pass+1)
	}
}

// commit stores raw if no local write happened since start and no mutation is
// open. retry reports whether a new fetch would be useful.
func (s *Store[T]) commit(key string, start uint64, raw []byte) (committed, retry, changed bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, _ := s.entries.Load(key)
	if e.pending > 0 {
		s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
			old.dropped = true
			return old, false
		})
		return false, false, false
	}
	if e.version != start {
		return false, true, false
	}

	if err := s.cache.Set(s.ctx, s.cacheKey(key), raw); err != nil {
		s.logger.Error("store revalidated value", "key", key, "error", err)
		return false, false, false
	}
	return true, false, s.settle(key, raw)
}

// settle records raw as the current content of key. Callers hold writeMu.
func (s *Store[T]) settle(key string, raw []byte) bool {
	digest := xxhash.Sum64(raw)
	changed := false
	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		changed = !loaded || old.digest != digest || old.err != nil
		old.digest = digest
		old.local = nil
		old.err = nil
		return old, false
	})
	return changed
}

// Invalidate drops every cached entry whose key starts with prefix. The next
// Get for those keys fetches again; revalidations already in flight refetch.
func (s *Store[T]) Invalidate(ctx context.Context, prefix string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.cache.DeleteByPrefix(ctx, s.cacheKey(prefix)); err != nil {
		return err
	}

	s.entries.Range(func(key string, _ entry) bool {
		if strings.HasPrefix(key, prefix) {
			s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
				old.version++
				old.digest = 0
				old.local = nil
				return old, false
			})
		}
		return true
	})
	return nil
}

// Subscribe registers fn for events on key.
func (s *Store[T]) Subscribe(key string, fn Observer[T]) (unsubscribe func()) {
	return s.subscribe(subscription[T]{key: key, fn: fn})
}

// SubscribeAll registers fn for events on every key.
func (s *Store[T]) SubscribeAll(fn Observer[T]) (unsubscribe func()) {
	return s.subscribe(subscription[T]{all: true, fn: fn})
}

func (s *Store[T]) subscribe(sub subscription[T]) func() {
	id := s.nextSubID.Add(1)
	s.observers.Store(id, sub)
	return func() { s.observers.Delete(id) }
}

// Wait blocks until background revalidations have finished.
func (s *Store[T]) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it to stop.
func (s *Store[T]) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Store[T]) load(ctx context.Context, key string) (T, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	return s.fetch(ctx, key)
}

func (s *Store[T]) fail(key string, err error, source Source) {
	s.entries.Compute(key, func(old entry, _ bool) (entry, bool) {
		old.err = err
		return old, false
	})

	if rich, ok := asRichError(err); ok {
		errors.LogBySeverity(s.logger.With("key", key, "source", source.String()), rich)
	} else {
		s.logger.Warn("fetch failed", "key", key, "source", source.String(), "error", err)
	}

	s.emit(key, nil, err, source)
}

func (s *Store[T]) emit(key string, raw []byte, err error, source Source) {
	s.observers.Range(func(_ uint64, sub subscription[T]) bool {
		if !sub.all && sub.key != key {
			return true
		}

		ev := Event[T]{Key: key, Err: err, Source: source}
		if err == nil {
			v, derr := s.decode(raw)
			if derr != nil {
				return true
			}
			ev.Value = v
		}
		sub.fn(ev)
		return true
	})
}

func (s *Store[T]) decode(raw []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return v, errors.Wrap(err, errors.CategoryInternal, "decode cached value")
	}
	return v, nil
}

func (s *Store[T]) version(key string) uint64 {
	e, _ := s.entries.Load(key)
	return e.version
}

func (s *Store[T]) cacheKey(key string) string {
	return s.opts.Serializer.SerializeKey(s.opts.Namespace, key)
}

func asRichError(err error) (*errors.Error, bool) {
	var r *errors.RetryableError
	if errors.As(err, &r) && r.BaseError != nil {
		return r.BaseError, true
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
