// Package notion is the HTTP transport for the remote block-tree API.
//
// Client implements diff.BlockAPI plus the read calls a sync needs
// (RetrievePage, GetChildren). Every request is paced by a token bucket,
// retried on 429, 5xx and network failures with capped exponential backoff,
// and mapped to *APIError on non-retryable responses.
//
// The client never logs or echoes the bearer token.
package notion
