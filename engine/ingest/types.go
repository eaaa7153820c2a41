package ingest

import "github.com/DeskmateAI/deskmate-mvp/engine/domain"

// Job is the NATS message the API publishes for each uploaded document.
type Job struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// Failure is published on the failed subject once a job exhausts its
// retries, so the API can clean up the raw file it persisted.
type Failure struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// chunkedDoc is a document split into embeddable chunks.
type chunkedDoc struct {
	doc    domain.Document
	chunks []string
}

// embeddedDoc pairs each chunk with its embedding, in chunk order.
type embeddedDoc struct {
	chunkedDoc
	vectors [][]float32
}
