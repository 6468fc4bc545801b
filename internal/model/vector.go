package model

// VectorRecord is the vector index projection of a Chunk.
type VectorRecord struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Embedding  []float32              `json:"-"`
}

type ScoredRecord struct {
	VectorRecord
	Distance float64 `json:"distance"`
}
