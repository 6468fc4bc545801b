package model

type Chunk struct {
	ID         string                 `json:"-"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Ctime      int64                  `json:"created_at"`
}
