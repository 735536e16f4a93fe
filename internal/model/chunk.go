package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Chunk is a derived, disposable slice of a note's text, sized for
// embedding and independently retrievable. Chunks are only ever written
// as a whole generation per note: the previous generation is deleted
// before the new one is inserted, never patched in place.
type Chunk struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	NoteID       uint      `gorm:"not null;index" json:"note_id"`
	NoteTitle    string    `gorm:"size:256;not null" json:"note_title"`
	SectionPath  []string  `gorm:"serializer:json" json:"section_path"`
	CourseTag    *string   `gorm:"size:128;index" json:"course_tag,omitempty"`
	ContentRaw   string    `gorm:"type:text;not null" json:"content_raw"`
	ContentEmbed string    `gorm:"type:text;not null" json:"-"`
	ChunkIndex   int       `gorm:"not null" json:"chunk_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Embedding is the 1:1 vector child of a Chunk. It never outlives its
// chunk: the repository deletes embeddings and chunks together.
type Embedding struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	ChunkID   uint            `gorm:"not null;uniqueIndex" json:"chunk_id"`
	Vector    pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	ModelName string          `gorm:"size:128;not null" json:"model_name"`
	CreatedAt time.Time       `json:"created_at"`
}

// RetrievedChunk is a query-time result: a chunk plus its ranking signal.
// In vector mode Similarity is 1 - cosine distance; in hybrid mode it is
// the fused RRF score. Either way callers should treat it as an opaque
// ordering signal, not a bounded probability.
type RetrievedChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
