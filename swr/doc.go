// Package swr implements a keyed stale-while-revalidate store on top of a
// cache.CacheService.
//
// A Store serves the last known value for a key immediately and refreshes it in
// the background on request. Local writes replace an entry without touching
// the network and notify observers before WriteLocal returns, which is what
// optimistic updates rely on.
//
// Values are kept msgpack-encoded in the cache, so every reader works on its own
// decoded copy. Revalidation results that encode to the same bytes as the
// current entry are not re-announced.
//
// Ordering rules:
//
//   - a revalidation that started before a local write to the same key is
//     discarded and, unless a mutation is still open, fetched again
//   - while a mutation is open on a key (see BeginMutation) revalidation results
//     for that key are dropped; the mutation owner revalidates when it ends
//   - a failed fetch is recorded for its key only and never clears cached data
package swr
