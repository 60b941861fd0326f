package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BufferedWriter batches records in front of a base writer so bursty
// captures (a list payload fans out into dozens of upserts) do not issue one
// transaction each. A flush happens when the batch fills or the interval
// elapses, whichever comes first.
type BufferedWriter struct {
	base          Writer
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []Record
	timer   *time.Timer
	closed  bool
	lastErr error
}

type BufferedOptions struct {
	BatchSize     int
	FlushInterval time.Duration
}

func NewBufferedWriter(base Writer, opts BufferedOptions) *BufferedWriter {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &BufferedWriter{
		base:          base,
		batchSize:     batch,
		flushInterval: opts.FlushInterval,
	}
}

// Save queues a record. An error from a previous timer-driven flush is
// surfaced on the next call rather than lost.
func (b *BufferedWriter) Save(ctx context.Context, rec Record) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("buffered writer closed")
	}

	pendingErr := b.lastErr
	b.lastErr = nil

	b.buffer = append(b.buffer, rec)
	if len(b.buffer) == 1 && b.flushInterval > 0 {
		b.startTimerLocked()
	}

	if len(b.buffer) < b.batchSize {
		b.mu.Unlock()
		return pendingErr
	}

	recs := append([]Record(nil), b.buffer...)
	b.buffer = b.buffer[:0]
	b.stopTimerLocked()
	b.mu.Unlock()

	if err := b.writeAll(ctx, recs); err != nil {
		return err
	}
	return pendingErr
}

// Flush writes everything currently buffered.
func (b *BufferedWriter) Flush(ctx context.Context) error {
	b.mu.Lock()
	recs := append([]Record(nil), b.buffer...)
	b.buffer = b.buffer[:0]
	b.stopTimerLocked()
	pendingErr := b.lastErr
	b.lastErr = nil
	b.mu.Unlock()

	if err := b.writeAll(ctx, recs); err != nil {
		return err
	}
	return pendingErr
}

func (b *BufferedWriter) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopTimerLocked()
	recs := append([]Record(nil), b.buffer...)
	b.buffer = nil
	pendingErr := b.lastErr
	b.lastErr = nil
	b.mu.Unlock()

	if err := b.writeAll(context.Background(), recs); err != nil {
		return err
	}
	return pendingErr
}

func (b *BufferedWriter) onTimer() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.buffer) == 0 {
		b.timer = nil
		b.mu.Unlock()
		return
	}
	recs := append([]Record(nil), b.buffer...)
	b.buffer = b.buffer[:0]
	b.timer = nil
	b.mu.Unlock()

	if err := b.writeAll(context.Background(), recs); err != nil {
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
	}
}

func (b *BufferedWriter) startTimerLocked() {
	if b.flushInterval <= 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.flushInterval, b.onTimer)
}

func (b *BufferedWriter) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *BufferedWriter) writeAll(ctx context.Context, recs []Record) error {
	for _, rec := range recs {
		if err := b.base.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
