package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/lrn-resolver/pkg/resolver"
)

// ErrTransport is returned by FakeEndpoint for scripted transport failures.
var ErrTransport = errors.New("fake transport failure")

// ResolveFunc answers one request for number.
type ResolveFunc func(ctx context.Context, number string) (resolver.Response, error)

// FakeEndpoint is an in-memory resolver.Endpoint for tests.
type FakeEndpoint struct {
	// Handler answers every request; defaults to Always("8542850999;616J").
	Handler ResolveFunc

	// OpenErr, when set, is called before each Open; a non-nil result fails it.
	OpenErr func(call int) error

	mu        sync.Mutex
	calls     map[string]int
	maxConns  []int
	opens     int
	closes    int
	inFlight  atomic.Int64
	peak      atomic.Int64
	totalCall atomic.Int64
}

// NewFakeEndpoint creates a fake answering with handler.
func NewFakeEndpoint(handler ResolveFunc) *FakeEndpoint {
	if handler == nil {
		handler = Always("8542850999;616J")
	}
	return &FakeEndpoint{
		Handler: handler,
		calls:   make(map[string]int),
	}
}

// Open implements resolver.Endpoint.
func (f *FakeEndpoint) Open(_ context.Context, maxConns int) (resolver.Session, error) {
	f.mu.Lock()
	f.opens++
	call := f.opens
	f.maxConns = append(f.maxConns, maxConns)
	f.mu.Unlock()

	if f.OpenErr != nil {
		if err := f.OpenErr(call); err != nil {
			return nil, err
		}
	}
	return &fakeSession{endpoint: f}, nil
}

// Calls returns the number of requests made for number.
func (f *FakeEndpoint) Calls(number string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[number]
}

// TotalCalls returns the number of requests made.
func (f *FakeEndpoint) TotalCalls() int {
	return int(f.totalCall.Load())
}

// Opens returns how many sessions were opened and closed.
func (f *FakeEndpoint) Opens() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

// MaxConns returns the pool size requested by each Open, in order.
func (f *FakeEndpoint) MaxConns() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.maxConns...)
}

// PeakInFlight returns the highest number of concurrent requests observed.
func (f *FakeEndpoint) PeakInFlight() int {
	return int(f.peak.Load())
}

type fakeSession struct {
	endpoint *FakeEndpoint
	closed   atomic.Bool
}

func (s *fakeSession) Resolve(ctx context.Context, number string) (resolver.Response, error) {
	if s.closed.Load() {
		return resolver.Response{}, resolver.ErrSessionClosed
	}

	f := s.endpoint
	f.totalCall.Add(1)
	f.mu.Lock()
	f.calls[number]++
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return f.Handler(ctx, number)
}

func (s *fakeSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.endpoint.mu.Lock()
	s.endpoint.closes++
	s.endpoint.mu.Unlock()
	return nil
}

// Always answers every request with body.
func Always(body string) ResolveFunc {
	return func(context.Context, string) (resolver.Response, error) {
		return resolver.Response{StatusOK: true, StatusCode: 200, Body: body}, nil
	}
}

// FailFor fails every request for the given numbers with a transport error
// and delegates the rest to next.
func FailFor(next ResolveFunc, numbers ...string) ResolveFunc {
	failing := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		failing[n] = true
	}
	return func(ctx context.Context, number string) (resolver.Response, error) {
		if failing[number] {
			return resolver.Response{}, ErrTransport
		}
		return next(ctx, number)
	}
}

// Hang blocks requests for the given numbers until ctx is done and
// delegates the rest to next.
func Hang(next ResolveFunc, numbers ...string) ResolveFunc {
	hanging := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		hanging[n] = true
	}
	return func(ctx context.Context, number string) (resolver.Response, error) {
		if hanging[number] {
			<-ctx.Done()
			return resolver.Response{}, ctx.Err()
		}
		return next(ctx, number)
	}
}

// Slow delays every request by d before delegating to next.
func Slow(next ResolveFunc, d time.Duration) ResolveFunc {
	return func(ctx context.Context, number string) (resolver.Response, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return resolver.Response{}, ctx.Err()
		}
		return next(ctx, number)
	}
}
