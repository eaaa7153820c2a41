// Package domain holds the core types shared across the Deskmate engine:
// documents, chunks, stream events, validation, and the error taxonomy.
package domain

import (
	"encoding/json"
	"fmt"
)

// Document is an uploaded file after text extraction. The raw bytes stay on
// disk under the upload directory; the engine only ever sees the text.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// Chunk is a contiguous overlapping window of a document's text, the atomic
// unit of embedding and retrieval.
type Chunk struct {
	DocID string `json:"doc_id"`
	Index int    `json:"chunk_index"`
	Text  string `json:"text"`
}

// Key returns the chunk's globally unique identity, {doc_id}_{chunk_index}.
func (c Chunk) Key() string {
	return ChunkKey(c.DocID, c.Index)
}

// ChunkKey builds the record key for a chunk of the given document.
func ChunkKey(docID string, index int) string {
	return fmt.Sprintf("%s_%d", docID, index)
}

// StreamEvent is one unit of a generation stream. Exactly one of the three
// shapes is ever set: a text fragment, the terminal done marker, or a
// terminal error message.
type StreamEvent struct {
	Chunk string
	Done  bool
	Err   string
}

// MarshalJSON emits the wire shape consumed by SSE clients: one of
// {"chunk":"..."}, {"done":true}, {"error":"..."}.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch {
	case e.Err != "":
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Err})
	case e.Done:
		return json.Marshal(struct {
			Done bool `json:"done"`
		}{true})
	default:
		return json.Marshal(struct {
			Chunk string `json:"chunk"`
		}{e.Chunk})
	}
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Err != ""
}
