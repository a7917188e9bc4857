package cache

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
)

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through and write-through operations used by
// the list store and the stub repository.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error)
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
// A nil cached value yields the zero T.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}

	return cast[T](key, result)
}

// Get is the typed counterpart of CacheService.Get. Entries holding a value of
// another type are reported as misses.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool) {
	var zero T

	result, ok := service.Get(ctx, key)
	if !ok {
		return zero, false
	}

	typed, err := cast[T](key, result)
	if err != nil {
		return zero, false
	}
	return typed, true
}

func cast[T any](key string, result any) (T, error) {
	var zero T
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, errors.New(
			fmt.Sprintf("cached value for %q has type %T, want %T", key, result, zero),
			errors.CategoryInternal,
		).WithTextCode("CACHE_TYPE_MISMATCH")
	}
	return typed, nil
}
