package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"studynotes/internal/model"
	"studynotes/internal/repository"
)

// Damping constant for Reciprocal Rank Fusion; de-weights rank-1
// dominance so neither signal can drown out the other.
const rrfK = 60

const defaultTopK = 10

// ChunkSearcher is the store-side query surface retrieval runs on. Both
// methods take the owner id as a mandatory parameter: cross-user leakage
// has to be impossible by construction, not by testing.
type ChunkSearcher interface {
	VectorSearch(ctx context.Context, userID uint, queryVector []float32, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error)
	LexicalSearch(ctx context.Context, userID uint, query string, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error)
}

type RetrievalService struct {
	searcher ChunkSearcher
	embedder Embedder
	topK     int
}

func NewRetrievalService(searcher ChunkSearcher, embedder Embedder, topK int) *RetrievalService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &RetrievalService{
		searcher: searcher,
		embedder: embedder,
		topK:     topK,
	}
}

// RetrieveResult carries the ranked chunks plus the query vector and
// search latency for observability.
type RetrieveResult struct {
	Chunks      []model.RetrievedChunk `json:"chunks"`
	QueryVector []float32              `json:"-"`
	Latency     time.Duration          `json:"latency_ms"`
}

// Retrieve embeds the query and returns the user's nearest chunks by
// cosine distance. An empty result is a normal outcome, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, userID uint, query string, filters repository.SearchFilters, limit int) (*RetrieveResult, error) {
	if userID == 0 || strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.topK
	}

	started := time.Now()
	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	chunks, err := s.searcher.VectorSearch(ctx, userID, queryVector, filters, limit)
	if err != nil {
		return nil, err
	}

	return &RetrieveResult{
		Chunks:      chunks,
		QueryVector: queryVector,
		Latency:     time.Since(started),
	}, nil
}

// Lexical returns keyword-ranked chunks for the user.
func (s *RetrievalService) Lexical(ctx context.Context, userID uint, query string, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	if userID == 0 || strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.topK
	}
	return s.searcher.LexicalSearch(ctx, userID, query, filters, limit)
}

// HybridSearch runs vector and lexical retrieval concurrently and fuses
// the two rankings with RRF. If exactly one leg fails the other's
// ranking is used as-is; the caller only sees an error when both fail.
func (s *RetrievalService) HybridSearch(ctx context.Context, userID uint, query string, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	if userID == 0 || strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.topK
	}

	// Each leg fetches extra candidates so fusion has material to rank.
	candidateLimit := limit * 2

	var vectorChunks, lexicalChunks []model.RetrievedChunk
	var vectorErr, lexicalErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var result *RetrieveResult
		result, vectorErr = s.Retrieve(ctx, userID, query, filters, candidateLimit)
		if vectorErr == nil {
			vectorChunks = result.Chunks
		}
	}()
	go func() {
		defer wg.Done()
		lexicalChunks, lexicalErr = s.Lexical(ctx, userID, query, filters, candidateLimit)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("hybrid search failed: vector=%w, lexical=%v", vectorErr, lexicalErr)
	}
	if vectorErr != nil {
		log.Printf("hybrid search: vector leg failed, using lexical only: %v", vectorErr)
		return truncate(lexicalChunks, limit), nil
	}
	if lexicalErr != nil {
		log.Printf("hybrid search: lexical leg failed, using vector only: %v", lexicalErr)
		return truncate(vectorChunks, limit), nil
	}

	fused := reciprocalRankFusion(rrfK, vectorChunks, lexicalChunks)
	return truncate(fused, limit), nil
}

type fusionKey struct {
	noteID     uint
	chunkIndex int
}

// reciprocalRankFusion merges ranked lists by summing 1/(k+rank) per
// appearance. The dedup key is (noteID, chunkIndex) rather than the
// storage id: both legs may surface the same logical chunk. The fused
// score overwrites Similarity and is an opaque ranking signal.
func reciprocalRankFusion(k int, lists ...[]model.RetrievedChunk) []model.RetrievedChunk {
	scores := make(map[fusionKey]float64)
	chunks := make(map[fusionKey]model.RetrievedChunk)

	for _, list := range lists {
		for rank, rc := range list {
			key := fusionKey{noteID: rc.NoteID, chunkIndex: rc.ChunkIndex}
			scores[key] += 1.0 / float64(k+rank+1)
			if _, seen := chunks[key]; !seen {
				chunks[key] = rc
			}
		}
	}

	fused := make([]model.RetrievedChunk, 0, len(chunks))
	for key, rc := range chunks {
		rc.Similarity = scores[key]
		fused = append(fused, rc)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Similarity != fused[j].Similarity {
			return fused[i].Similarity > fused[j].Similarity
		}
		if fused[i].NoteID != fused[j].NoteID {
			return fused[i].NoteID < fused[j].NoteID
		}
		return fused[i].ChunkIndex < fused[j].ChunkIndex
	})
	return fused
}

func truncate(chunks []model.RetrievedChunk, limit int) []model.RetrievedChunk {
	if len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}
