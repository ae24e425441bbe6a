package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/hausbot/internal/delivery"
	"github.com/user/hausbot/internal/prompt"
	"github.com/user/hausbot/internal/session"
	"github.com/user/hausbot/internal/types"
	"github.com/user/hausbot/pkg/ollama"
)

// fakeMessenger records placeholder sends and in-place updates.
type fakeMessenger struct {
	mu      sync.Mutex
	sends   []string
	updates []string
}

func (f *fakeMessenger) Send(_ types.SessionKey, text string) (delivery.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return delivery.MessageRef(len(f.sends)), nil
}

func (f *fakeMessenger) Update(_ types.SessionKey, _ delivery.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, text)
	return nil
}

func (f *fakeMessenger) lastUpdate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return ""
	}
	return f.updates[len(f.updates)-1]
}

// scriptedGenerator streams canned fragments, one response per call.
type scriptedGenerator struct {
	mu        sync.Mutex
	calls     int
	fragments []string
	delay     time.Duration
	err       error
	partial   string // returned alongside err when non-empty
}

func (s *scriptedGenerator) Chat(_ context.Context, _ []ollama.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.Join(s.fragments, ""), nil
}

func (s *scriptedGenerator) ChatStream(_ context.Context, _ []ollama.Message, onPartial ollama.PartialHandler) (string, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return s.partial, s.err
	}

	var acc strings.Builder
	for _, frag := range s.fragments {
		frag = fmt.Sprintf(frag, n)
		acc.WriteString(frag)
		if onPartial != nil {
			onPartial(frag)
		}
	}
	return acc.String(), nil
}

func newTestGateway(t *testing.T, gen Generator, messenger delivery.Messenger) (*Gateway, *session.Store) {
	t.Helper()

	store := session.NewStore(20)
	engine, err := prompt.New("llama3.2")
	if err != nil {
		t.Fatal(err)
	}
	registry := delivery.NewRegistry()
	if messenger != nil {
		registry.Register("test:", messenger)
	}

	gw := New(store, gen, engine, registry, Options{
		SystemPrompt: "sei hilfreich",
		EditInterval: 10 * time.Millisecond,
	})
	gw.Start(context.Background())
	t.Cleanup(gw.Stop)
	return gw, store
}

func sendAndWait(t *testing.T, gw *Gateway, key types.SessionKey, text string) string {
	t.Helper()

	got := make(chan string, 1)
	err := gw.HandleInbound(context.Background(), &types.InboundMessage{
		Source:     "test",
		SessionKey: key,
		Sender:     "Tester",
		Text:       text,
	}, WithOnComplete(func(response string) { got <- response }))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case response := <-got:
		return response
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not complete")
		return ""
	}
}

func TestGatewayEndToEndStreaming(t *testing.T) {
	// Real client against an NDJSON backend: "hallo" in, two fragments out.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"message":{"content":"Guten "},"done":false}`,
			`{"message":{"content":"Tag!"},"done":false}`,
			`{"done":true}`,
		} {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	defer backend.Close()

	client := ollama.NewClient(&ollama.Config{Host: backend.URL, Model: "testmodel"})
	messenger := &fakeMessenger{}
	gw, store := newTestGateway(t, client, messenger)

	key := types.SessionKey("test:42:1001")
	final := sendAndWait(t, gw, key, "hallo")

	if final != "Guten Tag!" {
		t.Errorf("expected final text %q, got %q", "Guten Tag!", final)
	}

	sess := store.Acquire(key, gw.SystemPrompt())
	turns := sess.Window.Snapshot()
	store.Release(sess)

	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Role != types.RoleSystem {
		t.Errorf("turn 0: expected system, got %s", turns[0].Role)
	}
	if turns[1].Role != types.RoleUser || turns[1].Content != "hallo" {
		t.Errorf("turn 1: unexpected %+v", turns[1])
	}
	if turns[2].Role != types.RoleAssistant || turns[2].Content != "Guten Tag!" {
		t.Errorf("turn 2: unexpected %+v", turns[2])
	}

	messenger.mu.Lock()
	sends := len(messenger.sends)
	placeholder := ""
	if sends > 0 {
		placeholder = messenger.sends[0]
	}
	messenger.mu.Unlock()

	if sends != 1 || placeholder != "..." {
		t.Errorf("expected exactly one placeholder send, got %d (%q)", sends, placeholder)
	}
	if messenger.lastUpdate() != "Guten Tag!" {
		t.Errorf("expected final in-place update, got %q", messenger.lastUpdate())
	}
}

func TestGatewaySameSessionAlternation(t *testing.T) {
	gen := &scriptedGenerator{fragments: []string{"antwort %d"}, delay: 30 * time.Millisecond}
	gw, store := newTestGateway(t, gen, &fakeMessenger{})

	key := types.SessionKey("test:1:1")

	// Two near-simultaneous messages for the same session.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sendAndWait(t, gw, key, fmt.Sprintf("frage %d", i))
		}(i)
	}
	wg.Wait()

	sess := store.Acquire(key, gw.SystemPrompt())
	turns := sess.Window.Snapshot()
	store.Release(sess)

	if len(turns) != 5 {
		t.Fatalf("expected system + 2 user/assistant pairs, got %d turns", len(turns))
	}
	for i := 1; i < len(turns); i++ {
		want := types.RoleUser
		if i%2 == 0 {
			want = types.RoleAssistant
		}
		if turns[i].Role != want {
			t.Errorf("turn %d: expected %s, got %s", i, want, turns[i].Role)
		}
	}
}

func TestGatewayBackendFailureAppendsFallback(t *testing.T) {
	gen := &scriptedGenerator{err: &ollama.ClientError{Kind: ollama.KindUnavailable, Message: "down"}}
	gw, store := newTestGateway(t, gen, &fakeMessenger{})

	key := types.SessionKey("test:1:1")
	final := sendAndWait(t, gw, key, "hallo")

	if final != ollama.FallbackUnavailable {
		t.Errorf("expected fallback %q, got %q", ollama.FallbackUnavailable, final)
	}

	sess := store.Acquire(key, gw.SystemPrompt())
	turns := sess.Window.Snapshot()
	store.Release(sess)

	// The fallback still lands as the assistant turn so the window stays
	// consistent for the next message.
	if len(turns) != 3 || turns[2].Role != types.RoleAssistant || turns[2].Content != ollama.FallbackUnavailable {
		t.Errorf("unexpected window after failure: %+v", turns)
	}
}

func TestGatewayKeepsPartialTextOnFailure(t *testing.T) {
	gen := &scriptedGenerator{
		err:     &ollama.ClientError{Kind: ollama.KindTimeout, Message: "deadline"},
		partial: "halbe antwort",
	}
	gw, _ := newTestGateway(t, gen, &fakeMessenger{})

	final := sendAndWait(t, gw, types.SessionKey("test:1:1"), "hallo")
	if final != "halbe antwort" {
		t.Errorf("expected accumulated partial, got %q", final)
	}
}

func TestGatewayNoMessengerStillCompletes(t *testing.T) {
	gen := &scriptedGenerator{fragments: []string{"antwort %d"}}
	gw, _ := newTestGateway(t, gen, nil)

	final := sendAndWait(t, gw, types.SessionKey("test:1:1"), "hallo")
	if final != "antwort 1" {
		t.Errorf("expected turn to complete without a messenger, got %q", final)
	}
}
