package semantic

// Record is a single chunk ready to store: the point id, its embedding, and
// the payload Qdrant keeps alongside it.
type Record struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // content, doc_id, filename, chunk_index
}

// SearchResult is one similarity search hit. The retrieval path only reads
// Content; the rest is carried for debugging and the API's source listing.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
	DocID      string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int64   `json:"chunk_index"`
}
