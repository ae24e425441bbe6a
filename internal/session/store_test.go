package session

import (
	"sync"
	"testing"
	"time"

	"github.com/user/hausbot/internal/types"
)

func TestStoreAcquireCreates(t *testing.T) {
	store := NewStore(10)
	key := types.NewSessionKey("telegram", "1", "1")

	sess := store.Acquire(key, "sys")
	if sess.Window.Len() != 1 {
		t.Errorf("expected fresh window with system turn, got %d turns", sess.Window.Len())
	}
	store.Release(sess)

	if store.Len() != 1 {
		t.Errorf("expected 1 session, got %d", store.Len())
	}

	// Second acquire returns the same session.
	again := store.Acquire(key, "sys")
	if again != sess {
		t.Error("expected the same session for the same key")
	}
	store.Release(again)
}

func TestStoreSweepTTL(t *testing.T) {
	store := NewStore(10)
	now := time.Now()

	old := store.Acquire(types.SessionKey("telegram:1:1"), "sys")
	store.Release(old)
	fresh := store.Acquire(types.SessionKey("telegram:2:2"), "sys")
	store.Release(fresh)

	ttl := 300 * time.Second
	old.lastActivity = now.Add(-ttl - time.Second)
	fresh.lastActivity = now.Add(-ttl + time.Second)

	if removed := store.Sweep(now, ttl); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 surviving session, got %d", store.Len())
	}
	if _, ok := store.Stat(types.SessionKey("telegram:2:2")); !ok {
		t.Error("fresh session was swept")
	}
}

func TestStoreSweepSkipsHeldSession(t *testing.T) {
	store := NewStore(10)
	now := time.Now()

	sess := store.Acquire(types.SessionKey("telegram:1:1"), "sys")
	sess.lastActivity = now.Add(-time.Hour)

	// Session lock is held: the sweep must leave it alone.
	if removed := store.Sweep(now, time.Second); removed != 0 {
		t.Errorf("expected 0 removed while held, got %d", removed)
	}
	store.Release(sess)

	if removed := store.Sweep(now, time.Second); removed != 1 {
		t.Errorf("expected 1 removed after release, got %d", removed)
	}
}

func TestStoreSerializesSameKey(t *testing.T) {
	store := NewStore(20)
	key := types.SessionKey("telegram:1:1")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := store.Acquire(key, "sys")
			store.Append(sess, types.Turn{Role: types.RoleUser, Content: "frage"})
			// Hold the session across a simulated backend call.
			time.Sleep(20 * time.Millisecond)
			store.Append(sess, types.Turn{Role: types.RoleAssistant, Content: "antwort"})
			store.Release(sess)
		}()
	}
	wg.Wait()

	sess := store.Acquire(key, "sys")
	defer store.Release(sess)

	turns := sess.Window.Snapshot()
	if len(turns) != 5 {
		t.Fatalf("expected system + 2 user/assistant pairs, got %d turns", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		want := types.RoleUser
		if i%2 == 0 {
			want = types.RoleAssistant
		}
		if turns[i].Role != want {
			t.Errorf("turn %d: expected role %s, got %s", i, want, turns[i].Role)
		}
	}
}

func TestStoreDifferentKeysIndependent(t *testing.T) {
	store := NewStore(10)

	a := store.Acquire(types.SessionKey("telegram:1:1"), "sys")
	defer store.Release(a)

	// Acquiring a different key must not block even while a is held.
	done := make(chan struct{})
	go func() {
		b := store.Acquire(types.SessionKey("telegram:2:2"), "sys")
		store.Release(b)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire of a different key blocked")
	}
}

func TestStoreReset(t *testing.T) {
	store := NewStore(10)
	key := types.SessionKey("telegram:1:1")

	sess := store.Acquire(key, "sys")
	store.Append(sess, types.Turn{Role: types.RoleUser, Content: "hallo"})
	store.Release(sess)

	store.Reset(key, "sys")

	stat, ok := store.Stat(key)
	if !ok {
		t.Fatal("session missing after reset")
	}
	if stat.Turns != 1 {
		t.Errorf("expected 1 turn after reset, got %d", stat.Turns)
	}
}

func TestStorePeekWhileHeld(t *testing.T) {
	store := NewStore(10)
	key := types.SessionKey("telegram:1:1")

	sess := store.Acquire(key, "sys")
	store.Append(sess, types.Turn{Role: types.RoleUser, Content: "hallo"})
	defer store.Release(sess)

	// Peek must not wait for the session lock held by the in-flight turn.
	done := make(chan []types.Turn, 1)
	go func() {
		turns, ok := store.Peek(key)
		if !ok {
			t.Error("expected session to exist")
		}
		done <- turns
	}()

	select {
	case turns := <-done:
		if len(turns) != 2 {
			t.Errorf("expected 2 turns in snapshot, got %d", len(turns))
		}
	case <-time.After(time.Second):
		t.Fatal("peek blocked behind held session")
	}
}

func TestStorePeekUnknownKey(t *testing.T) {
	store := NewStore(10)
	if _, ok := store.Peek(types.SessionKey("telegram:9:9")); ok {
		t.Error("expected no snapshot for unknown key")
	}
}
