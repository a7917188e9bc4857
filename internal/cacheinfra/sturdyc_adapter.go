package cacheinfra

import (
	"context"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	NumShards int

	// TTL is the default time-to-live for cached entries. Expired list pages
	// are refetched on the next read.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh configures sturdyc background refreshes. If nil, early
	// refresh is disabled. Refreshes performed by sturdyc bypass change
	// notifications, so list caches normally leave this off.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage enables storage for missing record flags.
	MissingRecordStorage bool

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config sized for a single client session.
func DefaultConfig() Config {
	return Config{
		Capacity:           1024,
		NumShards:          16,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}

	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

const msgPositive = "must be greater than 0"

// Validate checks if the configuration values are valid. The first failing
// field, in name order, is reported as a *ConfigError.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required.Error(msgPositive), validation.Min(1).Error(msgPositive)),
		validation.Field(&c.NumShards, validation.Required.Error(msgPositive), validation.Min(1).Error(msgPositive)),
		validation.Field(&c.TTL, validation.Required.Error(msgPositive), validation.Min(time.Nanosecond).Error(msgPositive)),
		validation.Field(&c.EvictionPercentage,
			validation.Required.Error("must be between 1 and 100"),
			validation.Min(1).Error("must be between 1 and 100"),
			validation.Max(100).Error("must be between 1 and 100"),
		),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0)).Error("must be non-negative")),
	)
	if cerr := firstConfigError("", err); cerr != nil {
		return cerr
	}

	if c.EarlyRefresh != nil {
		er := *c.EarlyRefresh
		err = validation.ValidateStruct(&er,
			validation.Field(&er.MinAsyncRefreshTime, validation.Min(time.Duration(0)).Error("must be non-negative")),
			validation.Field(&er.MaxAsyncRefreshTime, validation.Min(time.Duration(0)).Error("must be non-negative")),
			validation.Field(&er.SyncRefreshTime, validation.Min(time.Duration(0)).Error("must be non-negative")),
			validation.Field(&er.RetryBaseDelay, validation.Min(time.Duration(0)).Error("must be non-negative")),
		)
		if cerr := firstConfigError("EarlyRefresh.", err); cerr != nil {
			return cerr
		}
	}

	return nil
}

func firstConfigError(prefix string, err error) *ConfigError {
	if err == nil {
		return nil
	}
	errs, ok := err.(validation.Errors)
	if !ok || len(errs) == 0 {
		return &ConfigError{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	return &ConfigError{Field: prefix + fields[0], Message: errs[fields[0]].Error()}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// SturdycService wraps a sturdyc client.
type SturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and initializes a sturdyc client with it.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycService{client: client}, nil
}

// GetOrFetch returns the cached value for key, calling fetchFn on a miss.
// Concurrent misses for the same key share one fetchFn call.
func (s *SturdycService) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	if fetchFn == nil {
		return nil, &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	// sturdyc reports a nil value as ErrInvalidType, hiding the fetch error
	var fetchErr error
	value, err := s.client.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetchFn(ctx)
		if err != nil {
			fetchErr = err
		}
		return v, err
	})
	if err != nil && fetchErr != nil && errors.Is(err, sturdyc.ErrInvalidType) {
		return nil, fetchErr
	}
	return value, err
}

// Get returns the cached value for key without fetching.
func (s *SturdycService) Get(_ context.Context, key string) (any, bool) {
	return s.client.Get(key)
}

// Set stores value under key, replacing any previous entry.
func (s *SturdycService) Set(_ context.Context, key string, value any) error {
	s.client.Set(key, value)
	return nil
}

// Delete removes a single entry from the cache.
func (s *SturdycService) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose key starts with prefix.
func (s *SturdycService) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// InvalidateKeys removes multiple entries from the cache.
func (s *SturdycService) InvalidateKeys(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys returns the keys currently held, sorted.
func (s *SturdycService) Keys() []string {
	keys := s.client.ScanKeys()
	sort.Strings(keys)
	return keys
}
