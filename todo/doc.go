// Package todo holds the canonical todo model shared by the sync engine.
//
// # Overview
//
// The remote store has shipped two incompatible item encodings over time:
//
//   - Flattened: fields sit directly on the item, next to "id" and "documentId"
//   - Nested: fields live under an "attributes" object next to "id"
//
// Everything outside this package works with [Item] only. [Normalize] is the single
// place that knows about both encodings; a third encoding is intentionally not
// supported.
//
// # Queries
//
// A [Query] describes what slice of the collection the client is looking at. It is
// encoded to the remote parameter convention by [EncodeListQuery] and to the short
// shareable form (q, f, s) by [ShareableParams].
//
// # Errors
//
// Failures are reported as categorized go-errors values. Use [IsNetworkFailure],
// [IsMalformedResponse] and [IsValidationFailure] to branch on them.
package todo
