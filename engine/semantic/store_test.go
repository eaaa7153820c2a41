package semantic

import (
	"testing"
)

func TestToPayloadConversion(t *testing.T) {
	payload := toPayload(map[string]any{
		"content":     "chunk text",
		"chunk_index": 3,
		"score":       0.5,
		"flag":        true,
		"weird":       []int{1, 2},
	})

	if got := payload["content"].GetStringValue(); got != "chunk text" {
		t.Errorf("content = %q", got)
	}
	if got := payload["chunk_index"].GetIntegerValue(); got != 3 {
		t.Errorf("chunk_index = %d", got)
	}
	if got := payload["score"].GetDoubleValue(); got != 0.5 {
		t.Errorf("score = %g", got)
	}
	if got := payload["flag"].GetBoolValue(); !got {
		t.Error("flag not preserved")
	}
	// unknown types stringify rather than drop
	if got := payload["weird"].GetStringValue(); got == "" {
		t.Error("unknown type should stringify")
	}
}

func TestToPayloadInt64(t *testing.T) {
	payload := toPayload(map[string]any{"n": int64(9)})
	if payload["n"].GetIntegerValue() != 9 {
		t.Fatalf("int64 payload = %v", payload["n"])
	}
}

func TestSearchResultFromPayloadShape(t *testing.T) {
	// The payload keys written by Upsert must round-trip through the names
	// Search reads back.
	rec := Record{
		ID:        "00000000-0000-0000-0000-000000000001",
		Embedding: []float32{0.1},
		Payload: map[string]any{
			"content":     "text",
			"doc_id":      "doc-1",
			"filename":    "notes.txt",
			"chunk_index": 0,
		},
	}
	payload := toPayload(rec.Payload)

	var sr SearchResult
	for k, val := range payload {
		switch k {
		case "content":
			sr.Content = val.GetStringValue()
		case "doc_id":
			sr.DocID = val.GetStringValue()
		case "filename":
			sr.Filename = val.GetStringValue()
		case "chunk_index":
			sr.ChunkIndex = val.GetIntegerValue()
		}
	}
	if sr.Content != "text" || sr.DocID != "doc-1" || sr.Filename != "notes.txt" || sr.ChunkIndex != 0 {
		t.Fatalf("round-trip = %+v", sr)
	}
}
