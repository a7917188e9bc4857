// Package remote is the HTTP client for the todo collection endpoint.
//
// Responses pass through the todo package's envelope decoder, so both wire
// shapes come back as canonical items. Non-2xx responses become categorized
// errors whose message carries the status line and, when present, the body:
//
//	Failed to delete todo: 404 Not Found - {"error":"missing"}
//
// The client never retries. Callers that want retries can check
// todo.IsRetryable on the returned error.
package remote
