// Package listsync keeps a paginated, filterable todo list in step with a
// remote collection.
//
// An Engine ties together four pieces:
//
//   - Accumulator merges sequential pages for one query into a single list
//     and rejects results that belong to a superseded query.
//   - QueryController debounces search input, resets pagination the moment
//     the committed query changes, and mirrors the query to a shareable form.
//   - Coordinator applies toggles and renames optimistically through the swr
//     store, then confirms or rolls back once the remote call returns.
//   - swr.Store holds one canonical response per page locator.
//
// The Engine is safe for concurrent use. Network calls and debounce timers
// run on their own goroutines; results are applied under the engine lock.
package listsync
