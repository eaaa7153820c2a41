package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DeskmateAI/deskmate-mvp/engine/domain"
	"github.com/DeskmateAI/deskmate-mvp/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (m *mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

type mockSearcher struct {
	count       uint64
	countErr    error
	results     []semantic.SearchResult
	searchErr   error
	searchCalls int
	lastVector  []float32
	lastTopK    int
}

func (m *mockSearcher) Count(context.Context) (uint64, error) {
	return m.count, m.countErr
}

func (m *mockSearcher) Search(_ context.Context, vec []float32, topK int) ([]semantic.SearchResult, error) {
	m.searchCalls++
	m.lastVector = vec
	m.lastTopK = topK
	return m.results, m.searchErr
}

type mockGenerator struct {
	lastPrompt string
	events     []domain.StreamEvent
}

func (m *mockGenerator) Stream(ctx context.Context, prompt string) <-chan domain.StreamEvent {
	m.lastPrompt = prompt
	out := make(chan domain.StreamEvent, len(m.events))
	for _, ev := range m.events {
		out <- ev
	}
	close(out)
	return out
}

func newService(e *mockEmbedder, s *mockSearcher, g *mockGenerator) *Service {
	return New(e, s, g, Options{TopK: 5, Dimensions: 4}, nil, nil)
}

// --- tests ---

func TestRetrieveShortCircuitsOnEmptyStore(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1, 2, 3, 4}}
	s := &mockSearcher{count: 0}
	svc := newService(e, s, &mockGenerator{})

	got := svc.Retrieve(context.Background(), "query", 5)
	if got != nil {
		t.Fatalf("empty store should yield nil, got %v", got)
	}
	if e.calls != 0 {
		t.Fatalf("embedder called %d times against empty store, want 0", e.calls)
	}
	if s.searchCalls != 0 {
		t.Fatal("search must not run against an empty store")
	}
}

func TestRetrieveReturnsNearestTexts(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1, 0, 0, 0}}
	s := &mockSearcher{
		count: 10,
		results: []semantic.SearchResult{
			{Content: "closest", Score: 0.9},
			{Content: "second", Score: 0.7},
		},
	}
	svc := newService(e, s, &mockGenerator{})

	got := svc.Retrieve(context.Background(), "query", 2)
	if len(got) != 2 || got[0] != "closest" || got[1] != "second" {
		t.Fatalf("got %v", got)
	}
	if s.lastTopK != 2 {
		t.Fatalf("topK = %d", s.lastTopK)
	}
}

func TestRetrieveDegradesToZeroVectorOnEmbedFailure(t *testing.T) {
	e := &mockEmbedder{err: domain.ErrServiceUnavailable}
	s := &mockSearcher{count: 3, results: []semantic.SearchResult{{Content: "still works"}}}
	svc := newService(e, s, &mockGenerator{})

	got := svc.Retrieve(context.Background(), "query", 5)
	if len(got) != 1 || got[0] != "still works" {
		t.Fatalf("retrieval should proceed on embed failure, got %v", got)
	}
	if len(s.lastVector) != 4 {
		t.Fatalf("zero vector should have the configured dimensionality, got %d", len(s.lastVector))
	}
	for i, v := range s.lastVector {
		if v != 0 {
			t.Fatalf("fallback vector[%d] = %g, want 0", i, v)
		}
	}
}

func TestRetrieveAbsorbsCountAndSearchErrors(t *testing.T) {
	svcCount := newService(&mockEmbedder{vec: []float32{1}}, &mockSearcher{countErr: errors.New("store down")}, &mockGenerator{})
	if got := svcCount.Retrieve(context.Background(), "q", 5); got != nil {
		t.Fatalf("count failure should yield nil, got %v", got)
	}

	svcSearch := newService(&mockEmbedder{vec: []float32{1, 2, 3, 4}}, &mockSearcher{count: 5, searchErr: errors.New("timeout")}, &mockGenerator{})
	if got := svcSearch.Retrieve(context.Background(), "q", 5); got != nil {
		t.Fatalf("search failure should yield nil, got %v", got)
	}
}

func TestHandleChatTurnUsesRagModeWhenContextFound(t *testing.T) {
	e := &mockEmbedder{vec: []float32{1, 0, 0, 0}}
	s := &mockSearcher{count: 1, results: []semantic.SearchResult{{Content: "ohm's law notes"}}}
	g := &mockGenerator{events: []domain.StreamEvent{{Chunk: "V=IR"}, {Done: true}}}
	svc := newService(e, s, g)

	ch := svc.HandleChatTurn(context.Background(), "what is ohm's law?", ActionDefault)
	var events []domain.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	if !strings.Contains(g.lastPrompt, "ohm's law notes") {
		t.Fatal("prompt should contain the retrieved context")
	}
	if len(events) != 2 || events[0].Chunk != "V=IR" || !events[1].Done {
		t.Fatalf("events = %v", events)
	}
}

func TestHandleChatTurnFallsBackToDirectMode(t *testing.T) {
	g := &mockGenerator{events: []domain.StreamEvent{{Done: true}}}
	svc := newService(&mockEmbedder{}, &mockSearcher{count: 0}, g)

	ch := svc.HandleChatTurn(context.Background(), "explain entropy", ActionExplain)
	for range ch {
	}

	want := ComposePrompt("explain entropy", nil, ActionExplain, false)
	if g.lastPrompt != want {
		t.Fatal("empty retrieval should produce the direct-mode prompt")
	}
}

func TestHandleChatTurnNeverBlocksForever(t *testing.T) {
	g := &mockGenerator{events: []domain.StreamEvent{{Err: "ollama unreachable"}}}
	svc := newService(&mockEmbedder{}, &mockSearcher{count: 0}, g)

	ch := svc.HandleChatTurn(context.Background(), "q", ActionDefault)
	select {
	case ev := <-ch:
		if ev.Err == "" {
			t.Fatalf("expected error event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
