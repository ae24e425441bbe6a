package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// streamBackend serves the given raw lines as an NDJSON streaming body.
func streamBackend(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer is not a flusher")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
}

func TestChatStreamAccumulates(t *testing.T) {
	srv := streamBackend(t, []string{
		`{"message":{"content":"Guten "},"done":false}`,
		`{"message":{"content":"Tag!"},"done":false}`,
		`{"done":true}`,
	})
	defer srv.Close()

	var partials []string
	text, err := newTestClient(srv.URL).ChatStream(context.Background(), nil, func(p string) {
		partials = append(partials, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Guten Tag!" {
		t.Errorf("expected concatenated text, got %q", text)
	}
	if len(partials) != 2 || partials[0] != "Guten " || partials[1] != "Tag!" {
		t.Errorf("unexpected partials %v", partials)
	}
}

func TestChatStreamSkipsGarbage(t *testing.T) {
	srv := streamBackend(t, []string{
		`{"response":"x"}`,
		`this line is not json`,
		``,
		`{"done":true}`,
	})
	defer srv.Close()

	var calls int
	text, err := newTestClient(srv.URL).ChatStream(context.Background(), nil, func(string) {
		calls++
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "x" {
		t.Errorf("expected %q, got %q", "x", text)
	}
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
}

func TestChatStreamDoneWithTrailingText(t *testing.T) {
	srv := streamBackend(t, []string{
		`{"message":{"content":"fast "},"done":false}`,
		`{"message":{"content":"fertig"},"done":true}`,
		`{"message":{"content":"never delivered"},"done":false}`,
	})
	defer srv.Close()

	var partials []string
	text, err := newTestClient(srv.URL).ChatStream(context.Background(), nil, func(p string) {
		partials = append(partials, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "fast fertig" {
		t.Errorf("expected trailing text included, got %q", text)
	}
	// Nothing after the done line reaches the callback.
	if len(partials) != 2 {
		t.Errorf("expected 2 partials, got %v", partials)
	}
}

func TestChatStreamEOFWithoutDone(t *testing.T) {
	srv := streamBackend(t, []string{
		`{"response":"halbe antwort"}`,
	})
	defer srv.Close()

	text, err := newTestClient(srv.URL).ChatStream(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "halbe antwort" {
		t.Errorf("expected accumulated text on clean close, got %q", text)
	}
}

func TestChatStreamKeepsPartialOnTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"response":"angefangen"}`)
		flusher.Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(&Config{Host: srv.URL, StreamTimeout: 100 * time.Millisecond})
	text, err := client.ChatStream(context.Background(), nil, nil)

	var ce *ClientError
	if !errors.As(err, &ce) || ce.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if text != "angefangen" {
		t.Errorf("expected accumulated partial preserved, got %q", text)
	}
}

func TestChatStreamNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).ChatStream(context.Background(), nil, nil)
	var ce *ClientError
	if !errors.As(err, &ce) || ce.Kind != KindUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if text != "" {
		t.Errorf("expected no text, got %q", text)
	}
}
