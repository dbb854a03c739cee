package model

import "time"

// Record is one persisted row: a post plus its document embedding.
type Record struct {
	Post
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a write request for the vector table.
type Entity struct {
	Post      Post
	Embedding []float32
}

type Hit struct {
	Record
	Distance float64 `json:"similarity_score"`
}
