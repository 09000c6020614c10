package session

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"maestro/internal/ports"
)

func TestMemoryWindowBoundsTurns(t *testing.T) {
	t.Parallel()
	memory := NewMemory(3, 0)

	for i := 0; i < 5; i++ {
		memory.AddTurn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	messages := memory.Messages()
	if len(messages) != 6 {
		t.Fatalf("got %d messages, want 6", len(messages))
	}
	if messages[0].Content != "q2" {
		t.Fatalf("oldest surviving turn = %q, want q2", messages[0].Content)
	}
}

func TestMemoryTokenCeilingEvicts(t *testing.T) {
	t.Parallel()
	memory := NewMemory(10, 50)

	big := strings.Repeat("word ", 200)
	memory.AddTurn(big, big)
	memory.AddTurn("small", "turn")

	// the ceiling keeps at least the newest turn
	if memory.Len() != 1 {
		t.Fatalf("len = %d, want 1", memory.Len())
	}
	if memory.Messages()[0].Content != "small" {
		t.Fatal("newest turn must survive eviction")
	}
}

func TestMemoryClear(t *testing.T) {
	t.Parallel()
	memory := NewMemory(5, 0)
	memory.AddTurn("q", "a")
	memory.Clear()
	if memory.Len() != 0 {
		t.Fatal("clear must empty the window")
	}
}

func TestSinglePipelinePerSession(t *testing.T) {
	t.Parallel()
	sess := New(10, 0)

	ctx, ok := sess.TryBeginPipeline(context.Background())
	if !ok {
		t.Fatal("first pipeline claim must succeed")
	}
	if _, ok := sess.TryBeginPipeline(context.Background()); ok {
		t.Fatal("second claim while busy must fail")
	}
	if !sess.Busy() {
		t.Fatal("session should report busy")
	}

	sess.EndPipeline()
	if sess.Busy() {
		t.Fatal("session should be idle after EndPipeline")
	}
	if ctx.Err() == nil {
		t.Fatal("pipeline context must be cancelled on EndPipeline")
	}
	if _, ok := sess.TryBeginPipeline(context.Background()); !ok {
		t.Fatal("slot must be reclaimable after EndPipeline")
	}
	sess.EndPipeline()
}

func TestCancelLatchIsStickyUntilNextPipeline(t *testing.T) {
	t.Parallel()
	sess := New(10, 0)

	ctx, _ := sess.TryBeginPipeline(context.Background())
	if !sess.RequestCancel() {
		t.Fatal("cancel during a pipeline should report running")
	}
	if !sess.Cancelled() {
		t.Fatal("latch must be set")
	}
	if ctx.Err() == nil {
		t.Fatal("in-flight context must be cancelled")
	}
	sess.EndPipeline()

	// latch stays set while idle
	if !sess.Cancelled() {
		t.Fatal("latch must stay set after the pipeline ends")
	}

	// next pipeline resets it
	_, ok := sess.TryBeginPipeline(context.Background())
	if !ok {
		t.Fatal("claim after cancel must succeed")
	}
	if sess.Cancelled() {
		t.Fatal("latch must reset when a new pipeline starts")
	}
	sess.EndPipeline()
}

func TestCancelWhileIdle(t *testing.T) {
	t.Parallel()
	sess := New(10, 0)
	if sess.RequestCancel() {
		t.Fatal("cancel with no pipeline should report not running")
	}
}

func TestAwaitIdleUnblocksAfterEnd(t *testing.T) {
	t.Parallel()
	sess := New(10, 0)
	_, _ = sess.TryBeginPipeline(context.Background())

	released := make(chan struct{})
	go func() {
		sess.AwaitIdle()
		close(released)
	}()
	sess.EndPipeline()
	<-released
}

func TestOverridesSnapshotIsolation(t *testing.T) {
	t.Parallel()
	sess := New(10, 0)
	sess.SetOverride(ports.RoleExecutor, "openai/gpt-4o")

	snapshot := sess.Overrides()
	sess.SetOverride(ports.RoleExecutor, "")

	if snapshot[ports.RoleExecutor] != "openai/gpt-4o" {
		t.Fatal("snapshot must not alias live state")
	}
	if len(sess.Overrides()) != 0 {
		t.Fatal("empty model id must clear the override")
	}
}
