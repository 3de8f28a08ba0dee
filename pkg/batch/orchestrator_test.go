package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/lrn-resolver/internal/testutil"
	"github.com/Sternrassler/lrn-resolver/pkg/cache"
	"github.com/Sternrassler/lrn-resolver/pkg/resolver"
	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

const answer = "8542850999;616J"

// pauseRecorder records pacing sleeps without waiting.
type pauseRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *pauseRecorder) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *pauseRecorder) Pauses() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.pauses...)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []throttle.State
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, state throttle.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return p.err
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s failingStore) Load(context.Context) (map[string]string, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return map[string]string{}, nil
}

func (s failingStore) Save(context.Context, map[string]string) error {
	return s.saveErr
}

type fixture struct {
	endpoint   *testutil.FakeEndpoint
	store      *cache.MemoryStore
	controller *throttle.Controller
	pauses     *pauseRecorder
	orch       *Orchestrator
}

func newFixture(t *testing.T, handler testutil.ResolveFunc, cfg Config, seed map[string]string, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		endpoint:   testutil.NewFakeEndpoint(handler),
		store:      cache.NewMemoryStore(seed),
		controller: throttle.NewController(throttle.DefaultConfig()),
		pauses:     &pauseRecorder{},
	}
	res := resolver.New(resolver.DefaultConfig(), f.controller,
		resolver.WithSleeper(noSleep),
		resolver.WithLogger(zerolog.Nop()),
	)
	opts = append([]Option{WithSleeper(f.pauses.Sleep), WithLogger(zerolog.Nop())}, opts...)
	f.orch = NewOrchestrator(res, f.endpoint, f.store, cfg, opts...)
	return f
}

func numbersFrom(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%010d", start+i)
	}
	return out
}

func TestResolve_AllMissesSucceed(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), DefaultConfig(), nil)
	numbers := numbersFrom(2125550000, 1200)

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(results) != 1200 {
		t.Fatalf("len(results) = %d, want 1200", len(results))
	}
	for _, n := range numbers {
		if results[n] != answer {
			t.Fatalf("results[%s] = %q, want %q", n, results[n], answer)
		}
	}

	if stats.Requested != 1200 || stats.CacheHits != 0 || stats.CacheMisses != 1200 ||
		stats.Successes != 1200 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 0 hits, 1200 misses, 1200 successes, 0 errors", stats)
	}

	opened, closed := f.endpoint.Opens()
	if opened != 3 || closed != 3 {
		t.Errorf("sessions opened/closed = %d/%d, want 3/3", opened, closed)
	}
	for _, n := range f.endpoint.MaxConns() {
		if n != 50 {
			t.Errorf("session pool size = %d, want 50", n)
		}
	}
	if f.endpoint.PeakInFlight() > 50 {
		t.Errorf("peak in-flight = %d, want <= 50", f.endpoint.PeakInFlight())
	}

	if loads, saves := f.store.Counts(); loads != 1 || saves != 1 {
		t.Errorf("store loads/saves = %d/%d, want 1/1", loads, saves)
	}
	if got := len(f.store.Entries()); got != 1200 {
		t.Errorf("stored entries = %d, want 1200", got)
	}
}

func TestResolve_PersistentFailure(t *testing.T) {
	failing := "5551234567"
	f := newFixture(t, testutil.FailFor(testutil.Always(answer), failing), DefaultConfig(), nil)
	numbers := []string{"2125550001", failing, "2125550002"}

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := results[failing]; got != "5551234567;error" {
		t.Errorf("results[%s] = %q, want sentinel", failing, got)
	}
	if got := f.endpoint.Calls(failing); got != 5 {
		t.Errorf("attempts for %s = %d, want 5", failing, got)
	}
	if _, ok := f.store.Entries()[failing]; ok {
		t.Errorf("failed number %s was cached", failing)
	}
	if stats.Successes != 2 || stats.Errors != 1 {
		t.Errorf("stats successes/errors = %d/%d, want 2/1", stats.Successes, stats.Errors)
	}
}

func TestResolve_CacheHitsMakeNoCalls(t *testing.T) {
	seed := map[string]string{
		"8005551212": "8005550000;1111",
		"8005551313": "8005550000;2222",
	}
	f := newFixture(t, testutil.Always(answer), DefaultConfig(), seed)

	results, stats, err := f.orch.Resolve(context.Background(), []string{"8005551212", "8005551313", "2125550001"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if results["8005551212"] != "8005550000;1111" || results["8005551313"] != "8005550000;2222" {
		t.Errorf("cached results = %v, want seeded values", results)
	}
	if f.endpoint.Calls("8005551212") != 0 || f.endpoint.Calls("8005551313") != 0 {
		t.Error("cached numbers were requested")
	}
	if stats.CacheHits != 2 || stats.CacheMisses != 1 {
		t.Errorf("stats hits/misses = %d/%d, want 2/1", stats.CacheHits, stats.CacheMisses)
	}
}

func TestResolve_AllCachedSkipsWork(t *testing.T) {
	seed := map[string]string{"8005551212": "8005550000;1111"}
	f := newFixture(t, testutil.Always(answer), DefaultConfig(), seed)

	results, stats, err := f.orch.Resolve(context.Background(), []string{"8005551212"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if results["8005551212"] != "8005550000;1111" {
		t.Errorf("results = %v, want cached value", results)
	}
	if opened, _ := f.endpoint.Opens(); opened != 0 {
		t.Errorf("sessions opened = %d, want 0", opened)
	}
	if _, saves := f.store.Counts(); saves != 0 {
		t.Errorf("store saves = %d, want 0", saves)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 0 {
		t.Errorf("stats hits/misses = %d/%d, want 1/0", stats.CacheHits, stats.CacheMisses)
	}
	if len(f.pauses.Pauses()) != 0 {
		t.Errorf("pauses = %v, want none", f.pauses.Pauses())
	}
}

func TestResolve_Idempotent(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), DefaultConfig(), nil)
	numbers := numbersFrom(3105550000, 75)

	if _, _, err := f.orch.Resolve(context.Background(), numbers); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	calls := f.endpoint.TotalCalls()

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if got := f.endpoint.TotalCalls(); got != calls {
		t.Errorf("calls after second run = %d, want %d", got, calls)
	}
	if stats.CacheHits != 75 || stats.CacheMisses != 0 {
		t.Errorf("second run hits/misses = %d/%d, want 75/0", stats.CacheHits, stats.CacheMisses)
	}
	if len(results) != 75 {
		t.Errorf("len(results) = %d, want 75", len(results))
	}
}

func TestResolve_ChunkIsolation(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), Config{MajorBatchSize: 10, MaxConcurrent: 5}, nil)
	failuresBefore := promtestutil.ToFloat64(batchChunkFailuresTotal)
	f.endpoint.OpenErr = func(call int) error {
		if call == 1 {
			return errors.New("pool setup failed")
		}
		return nil
	}
	numbers := numbersFrom(4155550000, 25)

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	for i, n := range numbers {
		want := answer
		if i < 10 {
			want = n + ";error"
		}
		if results[n] != want {
			t.Errorf("results[%s] = %q, want %q", n, results[n], want)
		}
	}
	if stats.Successes != 15 || stats.Errors != 10 {
		t.Errorf("stats successes/errors = %d/%d, want 15/10", stats.Successes, stats.Errors)
	}
	if opened, closed := f.endpoint.Opens(); opened != 3 || closed != 2 {
		t.Errorf("sessions opened/closed = %d/%d, want 3/2", opened, closed)
	}
	if got := promtestutil.ToFloat64(batchChunkFailuresTotal) - failuresBefore; got != 1 {
		t.Errorf("chunk failures counted = %v, want 1", got)
	}
}

func TestResolve_ChunkPanicIsContained(t *testing.T) {
	boom := "6175550002"
	handler := func(ctx context.Context, number string) (resolver.Response, error) {
		if number == boom {
			panic("malformed session state")
		}
		return testutil.Always(answer)(ctx, number)
	}
	f := newFixture(t, handler, Config{MajorBatchSize: 2, MaxConcurrent: 1}, nil)
	numbers := []string{"6175550001", boom, "6175550003", "6175550004"}

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if results["6175550001"] != answer {
		t.Errorf("result resolved before panic = %q, want %q", results["6175550001"], answer)
	}
	if results[boom] != boom+";error" {
		t.Errorf("results[%s] = %q, want sentinel", boom, results[boom])
	}
	if results["6175550003"] != answer || results["6175550004"] != answer {
		t.Errorf("next chunk results = %q, %q, want %q", results["6175550003"], results["6175550004"], answer)
	}
	if stats.Successes != 3 || stats.Errors != 1 {
		t.Errorf("stats successes/errors = %d/%d, want 3/1", stats.Successes, stats.Errors)
	}
	if opened, closed := f.endpoint.Opens(); opened != 2 || closed != 2 {
		t.Errorf("sessions opened/closed = %d/%d, want 2/2", opened, closed)
	}
}

func TestResolve_ConcurrentPanicIsContained(t *testing.T) {
	boom := "6175550002"
	handler := func(ctx context.Context, number string) (resolver.Response, error) {
		if number == boom {
			panic("unexpected nil body")
		}
		return testutil.Always(answer)(ctx, number)
	}
	f := newFixture(t, handler, DefaultConfig(), nil)

	results, stats, err := f.orch.Resolve(context.Background(), []string{"6175550001", boom, "6175550003"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if results[boom] != boom+";error" {
		t.Errorf("results[%s] = %q, want sentinel", boom, results[boom])
	}
	if stats.Successes != 2 || stats.Errors != 1 {
		t.Errorf("stats successes/errors = %d/%d, want 2/1", stats.Successes, stats.Errors)
	}
}

func TestResolve_SubBatchTimeout(t *testing.T) {
	slow := "7185550003"
	cfg := Config{MajorBatchSize: 500, MaxConcurrent: 10, SubBatchTimeout: 200 * time.Millisecond}
	f := newFixture(t, testutil.Hang(testutil.Always(answer), slow), cfg, nil)
	numbers := numbersFrom(7185550000, 6)
	timeoutsBefore := promtestutil.ToFloat64(batchSubBatchTimeoutsTotal)

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if results[slow] != slow+";error" {
		t.Errorf("results[%s] = %q, want sentinel", slow, results[slow])
	}
	if stats.Successes != 5 || stats.Errors != 1 {
		t.Errorf("stats successes/errors = %d/%d, want 5/1", stats.Successes, stats.Errors)
	}
	if _, ok := f.store.Entries()[slow]; ok {
		t.Errorf("timed out number %s was cached", slow)
	}
	if got := promtestutil.ToFloat64(batchSubBatchTimeoutsTotal) - timeoutsBefore; got != 1 {
		t.Errorf("sub-batch timeouts counted = %v, want 1", got)
	}

	state := stats.Throttle
	if state.Samples != 6 {
		t.Errorf("throttle samples = %d, want 6", state.Samples)
	}
	if want := 5.0 / 6.0; state.SuccessRate != want {
		t.Errorf("throttle success rate = %v, want %v", state.SuccessRate, want)
	}
}

func TestResolve_SequentialPacing(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), Config{MajorBatchSize: 500, MaxConcurrent: 1}, nil)

	if _, _, err := f.orch.Resolve(context.Background(), numbersFrom(9175550000, 3)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	ms := time.Millisecond
	want := []time.Duration{200 * ms, 200 * ms, 200 * ms, 400 * ms, 500 * ms}
	got := f.pauses.Pauses()
	if len(got) != len(want) {
		t.Fatalf("pauses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pause[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if f.endpoint.PeakInFlight() != 1 {
		t.Errorf("peak in-flight = %d, want 1", f.endpoint.PeakInFlight())
	}
	if maxConns := f.endpoint.MaxConns(); len(maxConns) != 1 || maxConns[0] != 5 {
		t.Errorf("session pool sizes = %v, want [5]", maxConns)
	}
}

func TestResolve_DegradedPacing(t *testing.T) {
	f := newFixture(t, testutil.FailFor(testutil.Always(answer), numbersFrom(5005550000, 20)...), DefaultConfig(), nil)

	_, stats, err := f.orch.Resolve(context.Background(), numbersFrom(5005550000, 20))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	got := f.pauses.Pauses()
	if len(got) != 2 {
		t.Fatalf("pauses = %v, want one sub-batch and one major pause", got)
	}

	if stats.Throttle.SuccessRate != 0 {
		t.Fatalf("success rate = %v, want 0", stats.Throttle.SuccessRate)
	}
	wantSub := max(500*time.Millisecond, 2*max(100*time.Millisecond, 2*stats.Throttle.Pause))
	if got[0] != wantSub {
		t.Errorf("sub-batch pause = %v, want %v", got[0], wantSub)
	}
	if got[1] != time.Second {
		t.Errorf("major batch pause = %v, want 1s", got[1])
	}
}

func TestResolve_Duplicates(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), Config{MajorBatchSize: 500, MaxConcurrent: 1}, nil)
	numbers := []string{"2015550001", "2015550001", "2015550002"}

	results, stats, err := f.orch.Resolve(context.Background(), numbers)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if stats.Requested != 3 || stats.CacheMisses != 3 || stats.Successes != 3 {
		t.Errorf("stats = %+v, want 3 requested, 3 misses, 3 successes", stats)
	}
}

func TestResolve_Publisher(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	f := newFixture(t, testutil.Always(answer), Config{MajorBatchSize: 10, MaxConcurrent: 5}, nil, WithPublisher(pub))

	if _, _, err := f.orch.Resolve(context.Background(), numbersFrom(3035550000, 25)); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(pub.states) != 3 {
		t.Fatalf("published states = %d, want 3", len(pub.states))
	}
	if last := pub.states[2]; last.Samples != 25 || last.SuccessRate != 1 {
		t.Errorf("last state = %+v, want 25 samples at 1.0", last)
	}
}

func TestResolve_StoreErrors(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		endpoint := testutil.NewFakeEndpoint(nil)
		res := resolver.New(resolver.DefaultConfig(), nil, resolver.WithLogger(zerolog.Nop()))
		orch := NewOrchestrator(res, endpoint, failingStore{loadErr: errors.New("corrupt")}, DefaultConfig(),
			WithSleeper(noSleep), WithLogger(zerolog.Nop()))

		results, _, err := orch.Resolve(context.Background(), []string{"2125550001"})
		if err == nil {
			t.Fatal("Resolve() error = nil, want load error")
		}
		if results != nil {
			t.Errorf("results = %v, want nil", results)
		}
		if endpoint.TotalCalls() != 0 {
			t.Errorf("calls = %d, want 0", endpoint.TotalCalls())
		}
	})

	t.Run("save failure", func(t *testing.T) {
		saveErr := errors.New("disk full")
		res := resolver.New(resolver.DefaultConfig(), nil, resolver.WithLogger(zerolog.Nop()))
		orch := NewOrchestrator(res, testutil.NewFakeEndpoint(nil), failingStore{saveErr: saveErr}, DefaultConfig(),
			WithSleeper(noSleep), WithLogger(zerolog.Nop()))

		results, stats, err := orch.Resolve(context.Background(), []string{"2125550001", "2125550002"})
		if !errors.Is(err, saveErr) {
			t.Fatalf("Resolve() error = %v, want %v", err, saveErr)
		}
		if len(results) != 2 || stats.Successes != 2 {
			t.Errorf("results = %v, successes = %d, want 2 complete results", results, stats.Successes)
		}
	})
}

func TestResolve_CancelledContext(t *testing.T) {
	f := newFixture(t, testutil.Always(answer), DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.orch.Resolve(ctx, []string{"2125550001"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
	if loads, _ := f.store.Counts(); loads != 0 {
		t.Errorf("store loads = %d, want 0", loads)
	}
}

func TestResolve_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, testutil.Always(answer), Config{MajorBatchSize: 5, MaxConcurrent: 5}, nil)
	f.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	numbers := numbersFrom(6465550000, 15)

	results, stats, err := f.orch.Resolve(ctx, numbers)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve() error = %v, want context.Canceled", err)
	}
	if len(results) != 15 {
		t.Errorf("len(results) = %d, want 15", len(results))
	}
	if stats.Successes != 5 || stats.Errors != 10 {
		t.Errorf("stats successes/errors = %d/%d, want 5/10", stats.Successes, stats.Errors)
	}
	if _, saves := f.store.Counts(); saves != 1 {
		t.Errorf("store saves = %d, want 1", saves)
	}
	if got := len(f.store.Entries()); got != 5 {
		t.Errorf("stored entries = %d, want 5", got)
	}
}

func TestResolve_ThrottleStartsFreshEachRun(t *testing.T) {
	failing := numbersFrom(4155550000, 100)
	f := newFixture(t, testutil.FailFor(testutil.Always(answer), failing...), DefaultConfig(), nil)

	_, first, err := f.orch.Resolve(context.Background(), failing)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if first.Throttle.Samples != 100 || first.Throttle.SuccessRate != 0 {
		t.Fatalf("first run throttle = %d samples at %v, want 100 at 0", first.Throttle.Samples, first.Throttle.SuccessRate)
	}

	before := len(f.pauses.Pauses())
	_, second, err := f.orch.Resolve(context.Background(), numbersFrom(6505550000, 20))
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if second.Successes != 20 || second.Errors != 0 {
		t.Errorf("second run successes/errors = %d/%d, want 20/0", second.Successes, second.Errors)
	}
	if second.Throttle.Samples != 20 || second.Throttle.SuccessRate != 1 {
		t.Errorf("second run throttle = %d samples at %v, want 20 at 1.0", second.Throttle.Samples, second.Throttle.SuccessRate)
	}

	got := f.pauses.Pauses()[before:]
	if len(got) != 2 {
		t.Fatalf("second run pauses = %v, want one sub-batch and one major pause", got)
	}
	if want := max(100*time.Millisecond, 2*second.Throttle.Pause); got[0] != want {
		t.Errorf("second run sub-batch pause = %v, want %v", got[0], want)
	}
	if got[1] != 500*time.Millisecond {
		t.Errorf("second run major pause = %v, want 500ms", got[1])
	}

	if s := f.controller.Snapshot(); s.Samples != 0 {
		t.Errorf("resolver's own controller samples = %d, want 0", s.Samples)
	}
}

func TestResolve_ConcurrentRunsDoNotShareThrottle(t *testing.T) {
	failing := numbersFrom(4155550000, 50)
	f := newFixture(t, testutil.FailFor(testutil.Always(answer), failing...), DefaultConfig(), nil)

	var (
		wg            sync.WaitGroup
		failed, clean Stats
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, failed, _ = f.orch.Resolve(context.Background(), failing)
	}()
	go func() {
		defer wg.Done()
		_, clean, _ = f.orch.Resolve(context.Background(), numbersFrom(6505550000, 30))
	}()
	wg.Wait()

	if failed.Throttle.SuccessRate != 0 {
		t.Errorf("failing run success rate = %v, want 0", failed.Throttle.SuccessRate)
	}
	if clean.Throttle.Samples != 30 || clean.Throttle.SuccessRate != 1 {
		t.Errorf("clean run throttle = %d samples at %v, want 30 at 1.0", clean.Throttle.Samples, clean.Throttle.SuccessRate)
	}
}

func TestResolveConcurrent_LateSuccessIsNotRecorded(t *testing.T) {
	late := "7185550003"
	handler := func(ctx context.Context, number string) (resolver.Response, error) {
		if number == late {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			return resolver.Response{StatusOK: true, StatusCode: 200, Body: answer}, nil
		}
		return resolver.Response{StatusOK: true, StatusCode: 200, Body: answer}, nil
	}
	cfg := Config{MajorBatchSize: 500, MaxConcurrent: 10, SubBatchTimeout: 100 * time.Millisecond}
	f := newFixture(t, handler, cfg, nil)

	controller := throttle.NewController(throttle.DefaultConfig())
	res := f.orch.resolver.UsingThrottle(controller)
	session, err := f.endpoint.Open(context.Background(), 10)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer session.Close()

	numbers := numbersFrom(7185550000, 6)
	out := make([]string, len(numbers))
	c := cache.NewMap(nil)
	f.orch.resolveConcurrent(context.Background(), zerolog.Nop(), res, session, numbers, out, c)

	// Let the late lookup finish and report.
	time.Sleep(200 * time.Millisecond)

	if out[3] != late+";error" {
		t.Errorf("out[3] = %q, want sentinel", out[3])
	}
	s := controller.Snapshot()
	if s.Samples != 6 {
		t.Errorf("throttle samples = %d, want 6 (one per number)", s.Samples)
	}
	if want := 5.0 / 6.0; s.SuccessRate != want {
		t.Errorf("throttle success rate = %v, want %v", s.SuccessRate, want)
	}
}

func TestLookupRecorder_ClosedSubBatch(t *testing.T) {
	controller := throttle.NewController(throttle.DefaultConfig())
	sub := &subBatch{
		done:      make([]bool, 2),
		succeeded: make([]bool, 2),
		throttle:  controller,
	}

	lookupRecorder{sub: sub, i: 0}.RecordResult(false)
	lookupRecorder{sub: sub, i: 1}.RecordResult(true)
	if !sub.succeeded[1] || sub.succeeded[0] {
		t.Errorf("succeeded = %v, want [false true]", sub.succeeded)
	}

	sub.closed = true
	lookupRecorder{sub: sub, i: 0}.RecordResult(true)

	if s := controller.Snapshot(); s.Samples != 2 {
		t.Errorf("throttle samples = %d, want 2", s.Samples)
	}
	if sub.succeeded[0] {
		t.Error("outcome after close marked lookup 0 as succeeded")
	}
}
