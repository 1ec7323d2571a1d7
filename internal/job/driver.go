package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"priceimporter/internal/importer"
	"priceimporter/internal/metrics"
	"priceimporter/internal/record"
	"priceimporter/internal/storage"
)

// Driver pulls records from a source and routes them through the importer in
// fixed-size chunks. Each chunk is one transaction: all-or-nothing. After
// every committed chunk the execution row is checkpointed, which is what
// makes restart possible.
type Driver struct {
	Importer *importer.Importer
	Store    MetadataStore

	// ChunkSize is the number of records per transaction (default 100).
	ChunkSize int

	// SkipInvalid controls the policy for records rejected with a validation
	// error: skip and count (true, default) or fail the chunk (false).
	SkipInvalid bool

	// MaxChunkRetries bounds retries of a chunk that failed with a transient
	// backend error or a concurrent fact update (default 3).
	MaxChunkRetries int

	// Restartable permits resuming a FAILED or STOPPED instance.
	Restartable bool

	Logger Logger

	stopRequested atomic.Bool
}

// Stop asks a running execution to stop between chunks. The current chunk
// finishes (commit or rollback) before the execution transitions to STOPPED.
// A stop request applies to one execution; it is consumed when that run ends,
// so the driver can be launched again afterwards.
func (d *Driver) Stop() { d.stopRequested.Store(true) }

func (d *Driver) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return 100
}

func (d *Driver) maxChunkRetries() int {
	if d.MaxChunkRetries > 0 {
		return d.MaxChunkRetries
	}
	return 3
}

func (d *Driver) logf(format string, v ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, v...)
	}
}

// chunkItem is one consumed record: either a usable composite or the
// validation error that made it unusable.
type chunkItem struct {
	rec record.Composite
	err error
}

// run executes exec over a fresh source, resuming at the checkpoint offset
// carried in exec.ReadCount. The final status is persisted before returning;
// the returned error is the fatal cause when the status is FAILED.
func (d *Driver) run(ctx context.Context, exec *Execution, open SourceFactory) error {
	defer d.stopRequested.Store(false)

	src, closeSrc, err := open(ctx)
	if err != nil {
		return d.fail(ctx, exec, fmt.Errorf("open source: %w", err))
	}
	defer closeSrc()

	if err := d.discard(ctx, src, exec.ReadCount); err != nil {
		return d.fail(ctx, exec, err)
	}

	eof := false
	for !eof {
		if d.stopRequested.Load() || ctx.Err() != nil {
			return d.finish(ctx, exec, StatusStopped)
		}

		var chunk []chunkItem
		for len(chunk) < d.chunkSize() {
			rec, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			var ve *record.ValidationError
			if errors.As(err, &ve) {
				chunk = append(chunk, chunkItem{err: err})
				continue
			}
			if err != nil {
				return d.fail(ctx, exec, fmt.Errorf("read source: %w", err))
			}
			chunk = append(chunk, chunkItem{rec: rec})
		}
		if len(chunk) == 0 {
			break
		}

		start := time.Now()
		facts, skips, err := d.processChunk(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				// The chunk rolled back because a stop was requested mid-chunk.
				return d.finish(ctx, exec, StatusStopped)
			}
			return d.fail(ctx, exec, err)
		}

		exec.ReadCount += int64(len(chunk))
		exec.SkipCount += int64(skips)
		exec.FactCount += int64(facts)
		if err := d.Store.UpdateExecution(ctx, exec); err != nil {
			return d.fail(ctx, exec, fmt.Errorf("checkpoint: %w", err))
		}

		metrics.IncCounter("records_read", float64(len(chunk)), nil)
		metrics.IncCounter("records_skipped", float64(skips), nil)
		metrics.IncCounter("chunks_committed", 1, nil)
		metrics.ObserveHistogram("chunk_duration_seconds", time.Since(start).Seconds(), nil)
		d.logf("stage=chunk ok read=%d skipped=%d total_read=%d duration=%s",
			len(chunk), skips, exec.ReadCount, time.Since(start).Truncate(time.Millisecond))
	}

	return d.finish(ctx, exec, StatusCompleted)
}

// processChunk runs one chunk transactionally, retrying transient failures.
func (d *Driver) processChunk(ctx context.Context, chunk []chunkItem) (facts, skips int, err error) {
	for attempt := 0; ; attempt++ {
		facts, skips, err = d.runChunk(ctx, chunk)
		if err == nil {
			return facts, skips, nil
		}
		if !retryable(err) || attempt >= d.maxChunkRetries() {
			return 0, 0, err
		}
		metrics.IncCounter("chunk_retries", 1, nil)
		d.logf("stage=chunk retry attempt=%d cause=%v", attempt+1, err)
	}
}

func (d *Driver) runChunk(ctx context.Context, chunk []chunkItem) (facts, skips int, err error) {
	tx, err := d.Importer.Repo.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	for _, it := range chunk {
		itemErr := it.err
		if itemErr == nil {
			_, itemErr = d.Importer.ImportRecordTx(ctx, tx, it.rec)
			if itemErr == nil {
				facts++
				continue
			}
		}
		var ve *record.ValidationError
		if errors.As(itemErr, &ve) {
			if !d.SkipInvalid {
				return 0, 0, itemErr
			}
			skips++
			continue
		}
		return 0, 0, itemErr
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return facts, skips, nil
}

// discard consumes n records of a freshly opened source to reach the
// checkpoint offset. Unusable records count too; they were read (and
// skip-counted) by the execution being resumed.
func (d *Driver) discard(ctx context.Context, src RecordSource, n int64) error {
	for i := int64(0); i < n; i++ {
		_, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		var ve *record.ValidationError
		if err != nil && !errors.As(err, &ve) {
			return fmt.Errorf("re-read to checkpoint: %w", err)
		}
	}
	return nil
}

func (d *Driver) finish(ctx context.Context, exec *Execution, status Status) error {
	exec.Status = status
	exec.EndTime = time.Now().UTC()
	if err := d.Store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("record final status %s: %w", status, err)
	}
	d.logf("stage=execution status=%s read=%d skipped=%d facts=%d",
		status, exec.ReadCount, exec.SkipCount, exec.FactCount)
	return nil
}

func (d *Driver) fail(ctx context.Context, exec *Execution, cause error) error {
	exec.Status = StatusFailed
	exec.EndTime = time.Now().UTC()
	exec.ExitMessage = cause.Error()
	if err := d.Store.UpdateExecution(ctx, exec); err != nil {
		d.logf("stage=execution status=FAILED checkpoint error: %v", err)
	}
	d.logf("stage=execution status=FAILED cause=%v", cause)
	return cause
}

func retryable(err error) bool {
	return storage.IsTransient(err) || errors.Is(err, importer.ErrConcurrentUpdate)
}
