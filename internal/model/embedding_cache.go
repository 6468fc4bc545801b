package model

const EmbeddingCacheTable = "embedding_cache"

// EmbeddingCache is one persisted vector, keyed by model, task type and the
// sha256 of the embedded text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}

func (c *EmbeddingCache) Valid() bool {
	return c != nil && c.ModelName != "" && c.ContentHash != "" && len(c.Embedding) > 0
}
