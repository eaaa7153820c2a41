package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
)

func collect(t *testing.T, ch <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("stream did not finish; got %v", events)
		}
	}
}

func ndjsonServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		f := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			f.Flush()
		}
	}))
}

func TestStreamTermination(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"a"}`,
		`{"response":"b","done":false}`,
		`{"done":true}`,
		`{"response":"never seen"}`,
	)
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "tinyllama")
	events := collect(t, c.Stream(context.Background(), "hi"))

	want := []domain.StreamEvent{{Chunk: "a"}, {Chunk: "b"}, {Done: true}}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestStreamForwardsEmptyFragments(t *testing.T) {
	// Ollama's final line carries "response":"" alongside "done":true;
	// clients that count events must still see it.
	srv := ndjsonServer(t,
		`{"response":"a"}`,
		`{"response":"","done":true}`,
	)
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "tinyllama")
	events := collect(t, c.Stream(context.Background(), "hi"))

	want := []domain.StreamEvent{{Chunk: "a"}, {Chunk: ""}, {Done: true}}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestStreamSkipsMalformedLines(t *testing.T) {
	srv := ndjsonServer(t,
		`not json at all`,
		``,
		`{"response":"ok"}`,
		`{"done":true}`,
	)
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "m")
	events := collect(t, c.Stream(context.Background(), "hi"))
	if len(events) != 2 || events[0].Chunk != "ok" || !events[1].Done {
		t.Fatalf("events = %v", events)
	}
}

func TestStreamEndsWithoutDone(t *testing.T) {
	srv := ndjsonServer(t, `{"response":"partial"}`)
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "m")
	events := collect(t, c.Stream(context.Background(), "hi"))
	if len(events) != 1 || events[0].Chunk != "partial" {
		t.Fatalf("events = %v", events)
	}
}

func TestStreamUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGenerateClient(srv.URL, "m")
	events := collect(t, c.Stream(context.Background(), "hi"))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one terminal error", events)
	}
	if events[0].Err == "" || !strings.Contains(events[0].Err, "429") {
		t.Fatalf("error event = %+v", events[0])
	}
}

func TestStreamConnectionfailureNamesEndpointAndModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewGenerateClient(url, "tinyllama")
	events := collect(t, c.Stream(context.Background(), "hi"))
	if len(events) != 1 || events[0].Err == "" {
		t.Fatalf("events = %v, want one terminal error", events)
	}
	if !strings.Contains(events[0].Err, url) || !strings.Contains(events[0].Err, "tinyllama") {
		t.Fatalf("error should name endpoint and model: %s", events[0].Err)
	}
}

func TestStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f := w.(http.Flusher)
		fmt.Fprintln(w, `{"response":"a"}`)
		f.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewGenerateClient(srv.URL, "m")
	ch := c.Stream(ctx, "hi")

	select {
	case ev := <-ch:
		if ev.Chunk != "a" {
			t.Fatalf("first event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no first event")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a final error event from the aborted read is acceptable;
			// the channel must still close after it.
			if _, open := <-ch; open {
				t.Fatal("channel did not close after cancellation")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}
