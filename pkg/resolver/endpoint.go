// Package resolver resolves phone numbers to their routing data through a
// remote LRN service, one number at a time, with bounded retries,
// exponential backoff and adaptive throttling feedback.
package resolver

import (
	"context"
)

// Response is the raw answer of the remote service to one request.
type Response struct {
	// StatusOK reports whether the service answered with a success status.
	StatusOK bool

	// StatusCode is the transport status code, when there is one.
	StatusCode int

	// Body is the untrimmed response body.
	Body string
}

// Endpoint is the remote LRN service. Each Open establishes a fresh
// connection pool that lives until the returned Session is closed.
type Endpoint interface {
	Open(ctx context.Context, maxConns int) (Session, error)
}

// Session performs lookups over one connection pool. It must be safe for
// concurrent use.
type Session interface {
	// Resolve asks for one number. The deadline of ctx bounds the request.
	Resolve(ctx context.Context, number string) (Response, error)

	// Close releases the pool.
	Close() error
}
