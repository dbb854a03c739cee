package model

type Chunk struct {
	SequenceIndex    int    `json:"sequence_index"`
	Text             string `json:"text"`
	TokenCount       int    `json:"token_count"`
	SourceDocumentID int64  `json:"source_document_id"`
}

// EmbeddingCache is one cached chunk embedding. ContentHash is the sha256 of
// the chunk text and Ctime is in unix seconds.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name" db:"model_name"`
	TaskType    string    `json:"task_type" db:"task_type"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	Embedding   []float32 `json:"embedding" db:"-"`
	Ctime       int64     `json:"ctime" db:"ctime"`
}
