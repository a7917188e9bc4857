// Package cache provides the caching interface and key serialization used by
// the list store.
//
// # Overview
//
// This package exports two interfaces and their default implementations:
//
//   - CacheService: read-through and write-through operations over a keyed cache
//   - KeySerializer: builds stable cache keys from a namespace and arguments
//
// The default CacheService is backed by sturdyc, see NewCacheService.
//
// # Basic Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("list", "/api/todos?pagination%5Bpage%5D=1")
//
//	page, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]byte, error) {
//		return fetchPage(ctx)
//	})
//
// Writes bypass the fetch function:
//
//	_ = svc.Set(ctx, key, encoded)
//	_ = svc.DeleteByPrefix(ctx, cache.PrefixOf("list"))
//
// # Key Serialization
//
// Keys are the namespace followed by each argument, joined with KeySeparator.
// Strings are used verbatim, url.Values are encoded with sorted keys, and other
// values use fmt or JSON. Equal arguments always produce equal keys, which is
// what lets a list locator double as its cache key.
package cache
