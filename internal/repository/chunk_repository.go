package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"studynotes/internal/model"
)

// SearchFilters narrow retrieval to a course tag and/or an indexing-time
// window. Nil fields mean "no restriction". The owner id is not a
// filter; it is a mandatory parameter on every query method.
type SearchFilters struct {
	CourseTag *string
	From      *time.Time
	To        *time.Time
}

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceGeneration atomically swaps a note's chunk generation: the old
// embeddings and chunks go first (embeddings before chunks, so no orphan
// can survive a partial failure), then the new chunks and their vectors
// land in the same transaction. Readers never observe a chunk without
// its embedding. Safe to call with zero chunks and safe to re-run.
func (r *ChunkRepository) ReplaceGeneration(ctx context.Context, noteID uint, chunks []model.Chunk, vectors [][]float32, modelName string) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("replace generation failed: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteGeneration(tx, noteID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("create chunks failed: %w", err)
		}

		embeddings := make([]model.Embedding, len(chunks))
		for i := range chunks {
			embeddings[i] = model.Embedding{
				ChunkID:   chunks[i].ID,
				Vector:    pgvector.NewVector(vectors[i]),
				ModelName: modelName,
			}
		}
		if err := tx.Create(&embeddings).Error; err != nil {
			return fmt.Errorf("create embeddings failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace chunk generation failed: %w", err)
	}
	return nil
}

// DeleteByNoteID removes every chunk and embedding derived from a note.
// No-op when the note has no chunks.
func (r *ChunkRepository) DeleteByNoteID(ctx context.Context, noteID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteGeneration(tx, noteID)
	})
	if err != nil {
		return fmt.Errorf("delete chunks by note failed: %w", err)
	}
	return nil
}

func deleteGeneration(tx *gorm.DB, noteID uint) error {
	if err := tx.Where("chunk_id IN (?)",
		tx.Model(&model.Chunk{}).Select("id").Where("note_id = ?", noteID),
	).Delete(&model.Embedding{}).Error; err != nil {
		return fmt.Errorf("delete embeddings failed: %w", err)
	}
	if err := tx.Where("note_id = ?", noteID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByNoteID(ctx context.Context, noteID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by note failed: %w", err)
	}
	return chunks, nil
}

type vectorRow struct {
	model.Chunk
	Distance float64
}

// VectorSearch returns the user's chunks nearest to the query vector
// under cosine distance, with similarity reported as 1 - distance.
func (r *ChunkRepository) VectorSearch(ctx context.Context, userID uint, queryVector []float32, filters SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	where, args := filterClauses(userID, filters)
	query := fmt.Sprintf(`
		SELECT c.id, c.user_id, c.note_id, c.note_title, c.section_path, c.course_tag,
		       c.content_raw, c.content_embed, c.chunk_index, c.created_at,
		       e.vector <=> ? AS distance
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id
		WHERE %s
		ORDER BY distance ASC
		LIMIT ?`, where)

	qv := pgvector.NewVector(queryVector)
	fullArgs := append([]interface{}{qv}, args...)
	fullArgs = append(fullArgs, limit)

	var rows []vectorRow
	if err := r.db.WithContext(ctx).Raw(query, fullArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]model.RetrievedChunk, len(rows))
	for i, row := range rows {
		results[i] = model.RetrievedChunk{Chunk: row.Chunk, Similarity: 1 - row.Distance}
	}
	return results, nil
}

type lexicalRow struct {
	model.Chunk
	Rank float64
}

// LexicalSearch ranks the user's chunks by Postgres full-text relevance
// over note title plus chunk body. The score is a lexical signal on its
// own scale; downstream fusion uses ranks, not raw values.
func (r *ChunkRepository) LexicalSearch(ctx context.Context, userID uint, query string, filters SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	where, args := filterClauses(userID, filters)
	sql := fmt.Sprintf(`
		SELECT c.id, c.user_id, c.note_id, c.note_title, c.section_path, c.course_tag,
		       c.content_raw, c.content_embed, c.chunk_index, c.created_at,
		       ts_rank(to_tsvector('english', c.note_title || ' ' || c.content_raw),
		               plainto_tsquery('english', ?)) AS rank
		FROM chunks c
		WHERE %s
		  AND to_tsvector('english', c.note_title || ' ' || c.content_raw) @@ plainto_tsquery('english', ?)
		ORDER BY rank DESC
		LIMIT ?`, where)

	fullArgs := append([]interface{}{query}, args...)
	fullArgs = append(fullArgs, query, limit)

	var rows []lexicalRow
	if err := r.db.WithContext(ctx).Raw(sql, fullArgs...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]model.RetrievedChunk, len(rows))
	for i, row := range rows {
		results[i] = model.RetrievedChunk{Chunk: row.Chunk, Similarity: row.Rank}
	}
	return results, nil
}

func filterClauses(userID uint, filters SearchFilters) (string, []interface{}) {
	where := "c.user_id = ?"
	args := []interface{}{userID}
	if filters.CourseTag != nil && *filters.CourseTag != "" {
		where += " AND c.course_tag = ?"
		args = append(args, *filters.CourseTag)
	}
	if filters.From != nil {
		where += " AND c.created_at >= ?"
		args = append(args, *filters.From)
	}
	if filters.To != nil {
		where += " AND c.created_at <= ?"
		args = append(args, *filters.To)
	}
	return where, args
}
