package models

import "time"

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	ChunkID    int    `json:"chunk_id"`
	// Seq is the position of the chunk across the whole document.
	Seq int `json:"seq"`
	// Offset is the byte offset of Content within its page text.
	Offset int `json:"offset"`
}

// ChunkEmbedding is a chunk paired with the vector stored for it.
type ChunkEmbedding struct {
	Chunk
	// Context is an optional model written text situating the chunk.
	Context   string    `json:"context,omitempty"`
	Embedding []float32 `json:"-"`
}

// SearchResult is a stored chunk returned by a similarity search.
type SearchResult struct {
	Content  string  `json:"content"`
	Seq      int     `json:"seq"`
	Distance float32 `json:"distance"`
}

// HistoryEntry is one authoritative generation record as listed to users.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"pdf_name"`
	Questions   string    `json:"questions"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}
