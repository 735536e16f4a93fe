package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"studynotes/internal/chunker"
	"studynotes/internal/model"
)

// ErrDimensionMismatch marks a provider vector whose length differs from
// the declared model dimensionality. It is fatal for the note's indexing:
// nothing is persisted and the retry layer must not retry it.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder is the external embedding-model capability the core consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// ChunkWriter persists one note generation as a unit.
type ChunkWriter interface {
	ReplaceGeneration(ctx context.Context, noteID uint, chunks []model.Chunk, vectors [][]float32, modelName string) error
}

// AnswerInvalidator drops cached answers that may reference stale chunks.
type AnswerInvalidator interface {
	InvalidateUser(ctx context.Context, userID uint) error
}

// IndexService runs the re-index workflow: replace a note's previous
// chunk generation with chunks and embeddings derived from its current
// content. Every stage is idempotent, so at-least-once event delivery
// and caller-side retries are safe.
type IndexService struct {
	chunker     *chunker.Chunker
	embedder    Embedder
	store       ChunkWriter
	invalidator AnswerInvalidator
	dimension   int
	batchSize   int
}

func NewIndexService(ch *chunker.Chunker, embedder Embedder, store ChunkWriter, invalidator AnswerInvalidator, dimension, batchSize int) *IndexService {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &IndexService{
		chunker:     ch,
		embedder:    embedder,
		store:       store,
		invalidator: invalidator,
		dimension:   dimension,
		batchSize:   batchSize,
	}
}

// Reindex processes one note-changed event and returns the number of
// chunks indexed. Zero chunks (empty note content) is terminal success:
// the previous generation is still cleared so nothing stale is served.
func (s *IndexService) Reindex(ctx context.Context, event model.NoteChangedEvent) (int, error) {
	if event.NoteID == 0 || event.UserID == 0 {
		return 0, ErrInvalidInput
	}

	chunks := s.chunker.Chunk(event.NoteID, event.Title, event.Content, event.CourseTag)
	for i := range chunks {
		chunks[i].UserID = event.UserID
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].ContentEmbed
		}

		var err error
		vectors, err = s.embedAll(ctx, texts)
		if err != nil {
			return 0, err
		}
	}

	if err := s.store.ReplaceGeneration(ctx, event.NoteID, chunks, vectors, s.embedder.ModelName()); err != nil {
		return 0, err
	}

	if err := s.invalidator.InvalidateUser(ctx, event.UserID); err != nil {
		// Cached answers expire on their own TTL; a failed invalidation
		// is worth a log line, not a failed re-index.
		log.Printf("invalidate answer cache failed: user=%d err=%v", event.UserID, err)
	}
	return len(chunks), nil
}

// embedAll splits texts into provider-sized batches and validates every
// returned vector against the declared dimensionality before anything
// is persisted.
func (s *IndexService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d] failed: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dims, model %s declares %d",
				ErrDimensionMismatch, i, len(v), s.embedder.ModelName(), s.dimension)
		}
	}
	return vectors, nil
}
