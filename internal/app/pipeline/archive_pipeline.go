package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// Enqueuer returns the collection loop hook that feeds persisted samples to
// the archive queue according to the queue-full policy. The block policy waits
// at most maxWait so the loop keeps its cadence; a sample that misses the
// queue is still in the store and the pipeline picks it up from there.
func Enqueuer(q ports.SampleQueue, pol ports.Policy, maxWait time.Duration, obs ports.Observability) func(domain.Sample) {
	return func(s domain.Sample) {
		ctx, cancel := context.WithTimeout(context.Background(), maxWait)
		defer cancel()

		c := s.Clone()
		if !enqueueWithPolicy(ctx, q, c.Seq, &c, pol, obs) {
			obs.RecordDropped("archive", &c, fmt.Errorf("archive queue full"))
		}
		obs.SetGauge("netpulse_archive_queue_length", float64(q.Len()))
	}
}

// RunArchivePipeline writes every sample past the store's archive cursor to
// the sink in seq order and advances the cursor after every committed batch.
// Queued samples are used while they continue the cursor without a gap. After
// a failed write, a queue drop or a restart the pipeline reads the missing
// samples back from the store, so the cursor never skips a sample. It returns
// once ctx is cancelled.
func RunArchivePipeline(ctx context.Context, st ports.Store, q ports.SampleQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	pause := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(idle):
			return true
		}
	}

	cursor := st.Stats().ArchivedUpto
	for {
		batch, fromStore, err := nextBatch(ctx, st, q, cursor, pol.MaxBatchSize)
		if err != nil {
			obs.LogError("archive_read_failed", err)
			if !pause() {
				return
			}
			continue
		}
		if len(batch) == 0 {
			if !pause() {
				return
			}
			continue
		}
		if fromStore {
			obs.LogInfo("archive_catch_up",
				ports.Field{Key: "from_seq", Value: cursor + 1},
				ports.Field{Key: "samples", Value: len(batch)})
		}

		start := time.Now()
		if err := sink.WriteBatch(batch); err != nil {
			obs.LogError("sink_write_failed", err,
				ports.Field{Key: "sink", Value: sink.Name()},
				ports.Field{Key: "from_seq", Value: cursor + 1})
			obs.IncCounter("netpulse_archive_failures_total", 1)
			if !pause() {
				return
			}
			continue
		}
		obs.ObserveLatency("netpulse_archive_latency_seconds", time.Since(start).Seconds())
		obs.IncCounter("netpulse_samples_archived_total", float64(len(batch)))

		upto := batch[len(batch)-1].Seq
		if err := st.MarkArchived(context.WithoutCancel(ctx), upto); err != nil {
			obs.LogError("archive_cursor_failed", err)
		}
		cursor = upto
		obs.SetGauge("netpulse_archive_queue_length", float64(q.Len()))
	}
}

// nextBatch returns the samples following cursor. It prefers the queue and
// falls back to the store when the queue is empty but the store is ahead, or
// when the queued samples do not start right after cursor.
func nextBatch(ctx context.Context, st ports.Store, q ports.SampleQueue, cursor uint64, max int) ([]*domain.Sample, bool, error) {
	queued := q.DequeueBatch(max)
	out := make([]*domain.Sample, 0, len(queued))
	next, gap := cursor+1, false
	for _, item := range queued {
		if item.Seq < next {
			continue
		}
		if item.Seq != next {
			gap = true
			break
		}
		out = append(out, item.Sample)
		next++
	}
	if !gap && len(out) > 0 {
		return out, false, nil
	}
	if !gap && st.Stats().LatestSeq <= cursor {
		return nil, false, nil
	}

	limit := max
	if limit <= 0 {
		limit = defaultCatchUpBatch
	}
	stored, err := st.After(ctx, cursor, limit)
	if err != nil {
		return nil, true, err
	}
	out = out[:0]
	for i := range stored {
		out = append(out, &stored[i])
	}
	return out, true, nil
}

const defaultCatchUpBatch = 500

func enqueueWithPolicy(ctx context.Context, q ports.SampleQueue, seq uint64, s *domain.Sample, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(seq, s); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				return false
			case <-time.After(sleep):
			}
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
