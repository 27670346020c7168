package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ghalamif/NetPulse/internal/adapters/observability"
	"github.com/ghalamif/NetPulse/internal/adapters/queue"
	"github.com/ghalamif/NetPulse/internal/adapters/store"
	"github.com/ghalamif/NetPulse/internal/app/collector"
	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

func TestEnqueueWithPolicyBlock(t *testing.T) {
	q := &mockQueue{}
	q.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), q, 1, &domain.Sample{}, pol, obs); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if q.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", q.calls)
	}
}

func TestEnqueueWithPolicyBlockHonorsCancel(t *testing.T) {
	q := &mockQueue{failAlways: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pol := ports.Policy{OnQueueFull: "block", IdleSleep: time.Millisecond}
	if ok := enqueueWithPolicy(ctx, q, 1, &domain.Sample{}, pol, &mockObs{}); ok {
		t.Fatalf("expected cancelled block to give up")
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	q := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(context.Background(), q, 1, &domain.Sample{}, pol, obs); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if len(obs.errors) == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestEnqueuerRecordsDrops(t *testing.T) {
	q := queue.NewMemQueue(1)
	obs := &mockObs{}
	hook := Enqueuer(q, ports.Policy{OnQueueFull: "drop", MaxQueueLen: 1}, time.Second, obs)

	hook(domain.Sample{Seq: 1, LatencyMs: domain.Float64(10)})
	hook(domain.Sample{Seq: 2})
	if q.Len() != 1 {
		t.Fatalf("expected one queued sample, got %d", q.Len())
	}
	if obs.dropped != 1 {
		t.Fatalf("expected one dropped sample, got %d", obs.dropped)
	}
}

func TestEnqueuerBlockGivesUpAfterMaxWait(t *testing.T) {
	q := queue.NewMemQueue(1)
	q.Enqueue(1, &domain.Sample{Seq: 1})
	obs := &mockObs{}
	hook := Enqueuer(q, ports.Policy{OnQueueFull: "block", MaxQueueLen: 1, IdleSleep: time.Millisecond}, 20*time.Millisecond, obs)

	done := make(chan struct{})
	go func() {
		hook(domain.Sample{Seq: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("hook blocked on a queue nobody drains")
	}
	if obs.droppedCount() != 1 {
		t.Fatalf("expected the sample to miss the queue, got %d drops", obs.droppedCount())
	}
}

type steadySampler struct{}

func (steadySampler) Sample(_ context.Context, ts time.Time) domain.Sample {
	return domain.Sample{Timestamp: ts, LatencyMs: domain.Float64(40)}
}

func TestCollectionCycleReturnsWithFullBlockingQueue(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	st, err := store.OpenWALStore(t.TempDir(), store.WithClock(clk), store.WithArchiveTracking(true))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	q := queue.NewMemQueue(1)
	pol := ports.Policy{OnQueueFull: "block", MaxQueueLen: 1, IdleSleep: time.Millisecond}
	loop, err := collector.New(steadySampler{}, st, observability.Nop{},
		collector.WithClock(clk),
		collector.WithAfterPersist(Enqueuer(q, pol, 20*time.Millisecond, observability.Nop{})))
	if err != nil {
		t.Fatalf("loop: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			if _, err := loop.RunOnce(context.Background()); err != nil {
				done <- err
				return
			}
			clk.Add(5 * time.Second)
		}
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("collection cycle blocked on the archive queue")
	}
	if got := st.Stats().Samples; got != 3 {
		t.Fatalf("expected 3 persisted samples, got %d", got)
	}
}

func TestRunArchivePipelineMarksArchived(t *testing.T) {
	q := queue.NewMemQueue(10)
	st := &cursorStore{}
	for i := uint64(1); i <= 3; i++ {
		q.Enqueue(i, &domain.Sample{Seq: i})
		st.samples = append(st.samples, domain.Sample{Seq: i})
	}
	snk := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunArchivePipeline(ctx, st, q, snk, ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond}, &mockObs{})
		close(done)
	}()

	waitForCursor(t, st.cursor.Load, 3)
	cancel()
	<-done

	if got := snk.seqs(); len(got) != 3 {
		t.Fatalf("expected 3 archived samples, got %v", got)
	}
	if snk.batches() != 2 {
		t.Fatalf("expected 2 batches with max size 2, got %d", snk.batches())
	}
}

func TestRunArchivePipelineRetriesFailedBatch(t *testing.T) {
	q := queue.NewMemQueue(10)
	q.Enqueue(1, &domain.Sample{Seq: 1})
	st := &cursorStore{samples: []domain.Sample{{Seq: 1}}}
	snk := &recordingSink{err: errors.New("db down")}
	obs := &mockObs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunArchivePipeline(ctx, st, q, snk, ports.Policy{MaxBatchSize: 10, IdleSleep: time.Millisecond}, obs)
		close(done)
	}()

	// The first attempt comes from the queue, the retries from the store.
	deadline := time.Now().Add(2 * time.Second)
	for obs.errorCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("failed batch was not retried")
		}
		time.Sleep(time.Millisecond)
	}
	if st.cursor.Load() != 0 {
		t.Fatalf("cursor must not advance on sink failure")
	}

	snk.setErr(nil)
	waitForCursor(t, st.cursor.Load, 1)
	cancel()
	<-done

	if got := snk.seqs(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected seq 1 archived once, got %v", got)
	}
}

func TestRunArchivePipelineFillsQueueGapsFromStore(t *testing.T) {
	q := queue.NewMemQueue(10)
	st := &cursorStore{}
	for i := uint64(1); i <= 4; i++ {
		st.samples = append(st.samples, domain.Sample{Seq: i})
	}
	// seq 2 missed the queue.
	q.Enqueue(1, &domain.Sample{Seq: 1})
	q.Enqueue(3, &domain.Sample{Seq: 3})
	q.Enqueue(4, &domain.Sample{Seq: 4})
	st.cursor.Store(0)
	snk := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunArchivePipeline(ctx, st, q, snk, ports.Policy{MaxBatchSize: 10, IdleSleep: time.Millisecond}, &mockObs{})
		close(done)
	}()
	waitForCursor(t, st.cursor.Load, 4)
	cancel()
	<-done

	got := snk.seqs()
	if len(got) != 4 {
		t.Fatalf("expected seqs 1..4, got %v", got)
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("expected seqs 1..4 in order, got %v", got)
		}
	}
}

func TestRunArchivePipelineCatchesUpOnStart(t *testing.T) {
	st := &cursorStore{samples: []domain.Sample{{Seq: 1}, {Seq: 2}, {Seq: 3}}}
	st.cursor.Store(1)
	q := queue.NewMemQueue(10)
	snk := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunArchivePipeline(ctx, st, q, snk, ports.Policy{MaxBatchSize: 10, IdleSleep: time.Millisecond}, &mockObs{})
		close(done)
	}()
	waitForCursor(t, st.cursor.Load, 3)
	cancel()
	<-done

	if got := snk.seqs(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected seqs 2 and 3 replayed, got %v", got)
	}
}

func TestCompactionKeepsSamplesOfFailedBatch(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	base := time.Unix(1_700_000_000, 0)
	clk.Set(base)
	st, err := store.OpenWALStore(t.TempDir(), store.WithClock(clk), store.WithArchiveTracking(true))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	q := queue.NewMemQueue(10)
	for i := 0; i < 3; i++ {
		s := &domain.Sample{Timestamp: base.Add(time.Duration(i) * 5 * time.Second), LatencyMs: domain.Float64(40)}
		if err := st.Append(ctx, s); err != nil {
			t.Fatalf("append: %v", err)
		}
		q.Enqueue(s.Seq, s)
	}

	// First batch (seq 1,2) fails, everything after succeeds.
	snk := &recordingSink{failFirst: 1}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		RunArchivePipeline(runCtx, st, q, snk, ports.Policy{MaxBatchSize: 2, IdleSleep: time.Millisecond}, &mockObs{})
		close(done)
	}()
	waitForCursor(t, func() uint64 { return st.Stats().ArchivedUpto }, 3)
	cancel()
	<-done

	archived := map[uint64]bool{}
	for _, seq := range snk.seqs() {
		archived[seq] = true
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if !archived[seq] {
			t.Fatalf("seq %d is below the archive cursor but never reached the sink (got %v)", seq, snk.seqs())
		}
	}

	n, err := st.Compact(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected all 3 archived samples compacted, got %d", n)
	}
}

func waitForCursor(t *testing.T, cursor func() uint64, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for cursor() != want {
		if time.Now().After(deadline) {
			t.Fatalf("archive cursor never reached %d, at %d", want, cursor())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCompactOnce(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	st := &cursorStore{compactN: 4}
	obs := &mockObs{}

	if n := CompactOnce(context.Background(), st, time.Hour, clk, obs); n != 4 {
		t.Fatalf("expected 4 compacted, got %d", n)
	}
	if want := clk.Now().Add(-time.Hour); !st.before.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, st.before)
	}

	st.compactErr = errors.New("io")
	if n := CompactOnce(context.Background(), st, time.Hour, clk, obs); n != 0 || len(obs.errors) != 1 {
		t.Fatalf("expected compaction failure to be logged, n=%d errors=%d", n, len(obs.errors))
	}
}

type cursorStore struct {
	ports.Store
	cursor     atomic.Uint64
	samples    []domain.Sample
	compactN   int
	compactErr error
	before     time.Time
}

func (c *cursorStore) MarkArchived(_ context.Context, upto uint64) error {
	c.cursor.Store(upto)
	return nil
}

func (c *cursorStore) Stats() ports.StoreStats {
	var latest uint64
	if n := len(c.samples); n > 0 {
		latest = c.samples[n-1].Seq
	}
	return ports.StoreStats{LatestSeq: latest, ArchivedUpto: c.cursor.Load()}
}

func (c *cursorStore) After(_ context.Context, seq uint64, limit int) ([]domain.Sample, error) {
	var out []domain.Sample
	for _, s := range c.samples {
		if s.Seq > seq && (limit <= 0 || len(out) < limit) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *cursorStore) Compact(_ context.Context, before time.Time) (int, error) {
	c.before = before
	return c.compactN, c.compactErr
}

type recordingSink struct {
	mu        sync.Mutex
	got       [][]*domain.Sample
	err       error
	failFirst int
}

func (r *recordingSink) WriteBatch(s []*domain.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFirst > 0 {
		r.failFirst--
		return errors.New("transient")
	}
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, s)
	return nil
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *recordingSink) seqs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint64
	for _, b := range r.got {
		for _, s := range b {
			out = append(out, s.Seq)
		}
	}
	return out
}

func (r *recordingSink) batches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(seq uint64, s *domain.Sample) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []ports.QueuedSample { return nil }
func (m *mockQueue) Len() int                              { return 0 }

type mockObs struct {
	mu      sync.Mutex
	errors  []error
	dropped int
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(string, float64)                {}
func (m *mockObs) ObserveLatency(string, float64)            {}
func (m *mockObs) SetGauge(string, float64)                  {}
func (m *mockObs) RecordDropped(string, *domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *mockObs) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockObs) droppedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
