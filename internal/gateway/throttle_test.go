package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recorder collects forwarded texts.
type recorder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recorder) update(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.texts))
	copy(out, r.texts)
	return out
}

func TestThrottlerCoalesces(t *testing.T) {
	rec := &recorder{}
	th := NewEditThrottler(150*time.Millisecond, rec.update)

	// Burst of partials inside the window: only the first goes out.
	th.Partial("a")
	th.Partial("ab")
	th.Partial("abc")

	// After the window, the next partial goes out.
	time.Sleep(200 * time.Millisecond)
	th.Partial("abcd")

	th.Flush("abcde")

	got := rec.snapshot()
	want := []string{"a", "abcd", "abcde"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("update %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestThrottlerFlushOverridesWindow(t *testing.T) {
	rec := &recorder{}
	th := NewEditThrottler(time.Hour, rec.update)

	th.Partial("partial")
	th.Flush("final")

	got := rec.snapshot()
	if len(got) != 2 || got[1] != "final" {
		t.Fatalf("expected final flush despite throttle window, got %v", got)
	}
}

func TestThrottlerFlushOnce(t *testing.T) {
	rec := &recorder{}
	th := NewEditThrottler(10*time.Millisecond, rec.update)

	th.Flush("final")
	th.Flush("again")
	th.Partial("late partial")

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "final" {
		t.Fatalf("expected exactly one final update, got %v", got)
	}
}

func TestThrottlerNilUpdate(t *testing.T) {
	th := NewEditThrottler(10*time.Millisecond, nil)
	th.Partial("a")
	th.Flush("b")
	// No panic is the assertion.
}

func TestThrottlerSwallowsDeliveryError(t *testing.T) {
	rec := &recorder{err: errors.New("rate limited")}
	th := NewEditThrottler(10*time.Millisecond, rec.update)

	th.Partial("a")
	th.Flush("b")

	if len(rec.snapshot()) != 2 {
		t.Error("delivery errors must not stop forwarding")
	}
}

func TestThrottlerDropsEmptyText(t *testing.T) {
	rec := &recorder{}
	th := NewEditThrottler(10*time.Millisecond, rec.update)

	th.Partial("")
	th.Flush("")

	if len(rec.snapshot()) != 0 {
		t.Errorf("expected no updates for empty text, got %v", rec.snapshot())
	}
}
