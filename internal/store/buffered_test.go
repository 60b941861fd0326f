package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/you/chatvault/internal/core"
)

type recordingWriter struct {
	mu        sync.Mutex
	records   []Record
	failAfter int
	calls     int
}

func (r *recordingWriter) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failAfter > 0 && r.calls >= r.failAfter {
		return fmt.Errorf("boom")
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingWriter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func rec(id string) Record {
	return Record{Conversation: core.Conversation{ID: id}}
}

func TestBufferedWriterBatchFlush(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 2, FlushInterval: time.Hour})
	defer func() {
		if err := bw.Close(); err != nil {
			t.Fatalf("close error: %v", err)
		}
	}()

	ctx := context.Background()
	if err := bw.Save(ctx, rec("claude_1")); err != nil {
		t.Fatalf("save1: %v", err)
	}
	if base.Count() != 0 {
		t.Fatalf("expected no flush yet")
	}
	if err := bw.Save(ctx, rec("claude_2")); err != nil {
		t.Fatalf("save2: %v", err)
	}
	if base.Count() != 2 {
		t.Fatalf("expected batch flush, got %d", base.Count())
	}
}

func TestBufferedWriterFlushInterval(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 10, FlushInterval: 20 * time.Millisecond})
	defer func() {
		if err := bw.Close(); err != nil {
			t.Fatalf("close error: %v", err)
		}
	}()

	if err := bw.Save(context.Background(), rec("gemini_abc")); err != nil {
		t.Fatalf("save: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if base.Count() != 1 {
		t.Fatalf("expected timer flush, got %d", base.Count())
	}
}

func TestBufferedWriterExplicitFlush(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 10, FlushInterval: time.Hour})
	defer func() { _ = bw.Close() }()

	ctx := context.Background()
	if err := bw.Save(ctx, rec("chatgpt_x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := bw.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if base.Count() != 1 {
		t.Fatalf("expected explicit flush, got %d", base.Count())
	}
}

func TestBufferedWriterErrorPropagation(t *testing.T) {
	base := &recordingWriter{failAfter: 1}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 1, FlushInterval: 0})
	defer func() {
		_ = bw.Close()
	}()

	if err := bw.Save(context.Background(), rec("claude_err")); err == nil {
		t.Fatalf("expected error from underlying writer")
	}
}

func TestBufferedWriterCloseFlushesRemainder(t *testing.T) {
	base := &recordingWriter{}
	bw := NewBufferedWriter(base, BufferedOptions{BatchSize: 10, FlushInterval: 0})

	if err := bw.Save(context.Background(), rec("claude_tail")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if base.Count() != 1 {
		t.Fatalf("expected close to flush, got %d", base.Count())
	}
	if err := bw.Save(context.Background(), rec("claude_late")); err == nil {
		t.Fatalf("expected error after close")
	}
}
