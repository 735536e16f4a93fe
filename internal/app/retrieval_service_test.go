package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studynotes/internal/model"
	"studynotes/internal/repository"
)

func TestReciprocalRankFusionRewardsBothLists(t *testing.T) {
	both := retrievedChunk(1, 0, "Shared")
	vectorOnly := retrievedChunk(2, 0, "Vector")
	lexicalOnly := retrievedChunk(3, 0, "Lexical")

	fused := reciprocalRankFusion(rrfK,
		[]model.RetrievedChunk{both, vectorOnly},
		[]model.RetrievedChunk{both, lexicalOnly},
	)

	require.Len(t, fused, 3)
	assert.Equal(t, uint(1), fused[0].NoteID)
	assert.Greater(t, fused[0].Similarity, fused[1].Similarity)

	// Equal scores fall back to (noteID, chunkIndex) so ranking stays
	// deterministic across runs.
	assert.Equal(t, uint(2), fused[1].NoteID)
	assert.Equal(t, uint(3), fused[2].NoteID)
	assert.Equal(t, fused[1].Similarity, fused[2].Similarity)
}

func TestReciprocalRankFusionDedupsByNoteAndIndex(t *testing.T) {
	fromVector := retrievedChunk(5, 2, "Note")
	fromLexical := retrievedChunk(5, 2, "Note")
	fromLexical.ID = 999 // different storage row, same logical chunk

	fused := reciprocalRankFusion(rrfK,
		[]model.RetrievedChunk{fromVector},
		[]model.RetrievedChunk{fromLexical},
	)

	require.Len(t, fused, 1)
	assert.Equal(t, uint(5), fused[0].NoteID)
	assert.Equal(t, 2, fused[0].ChunkIndex)
}

func TestRetrieveValidatesInput(t *testing.T) {
	svc := NewRetrievalService(&fakeSearcher{}, &fakeEmbedder{dim: 4}, 10)

	_, err := svc.Retrieve(context.Background(), 0, "query", repository.SearchFilters{}, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Retrieve(context.Background(), 1, "   ", repository.SearchFilters{}, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetrieveEmptyCorpusIsNotAnError(t *testing.T) {
	searcher := &fakeSearcher{
		vector: map[uint][]model.RetrievedChunk{
			2: {retrievedChunk(1, 0, "Other user's note")},
		},
	}
	svc := NewRetrievalService(searcher, &fakeEmbedder{dim: 4}, 10)

	result, err := svc.Retrieve(context.Background(), 1, "query", repository.SearchFilters{}, 5)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.NotEmpty(t, result.QueryVector)
}

func TestHybridSearchFusesBothLegs(t *testing.T) {
	both := retrievedChunk(1, 0, "Shared")
	searcher := &fakeSearcher{
		vector: map[uint][]model.RetrievedChunk{
			1: {both, retrievedChunk(2, 0, "Vector")},
		},
		lexical: map[uint][]model.RetrievedChunk{
			1: {both, retrievedChunk(3, 0, "Lexical")},
		},
	}
	svc := NewRetrievalService(searcher, &fakeEmbedder{dim: 4}, 10)

	chunks, err := svc.HybridSearch(context.Background(), 1, "query", repository.SearchFilters{}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, uint(1), chunks[0].NoteID)
}

func TestHybridSearchDegradesWhenOneLegFails(t *testing.T) {
	searcher := &fakeSearcher{
		vector: map[uint][]model.RetrievedChunk{
			1: {retrievedChunk(1, 0, "Vector")},
		},
		lexicalErr: errors.New("tsquery exploded"),
	}
	svc := NewRetrievalService(searcher, &fakeEmbedder{dim: 4}, 10)

	chunks, err := svc.HybridSearch(context.Background(), 1, "query", repository.SearchFilters{}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint(1), chunks[0].NoteID)
}

func TestHybridSearchFailsWhenBothLegsFail(t *testing.T) {
	searcher := &fakeSearcher{
		vectorErr:  errors.New("vector down"),
		lexicalErr: errors.New("lexical down"),
	}
	svc := NewRetrievalService(searcher, &fakeEmbedder{dim: 4}, 10)

	_, err := svc.HybridSearch(context.Background(), 1, "query", repository.SearchFilters{}, 5)
	assert.Error(t, err)
}

func TestHybridSearchHonorsLimit(t *testing.T) {
	var many []model.RetrievedChunk
	for i := 0; i < 8; i++ {
		many = append(many, retrievedChunk(uint(i+1), 0, "Note"))
	}
	searcher := &fakeSearcher{
		vector:  map[uint][]model.RetrievedChunk{1: many},
		lexical: map[uint][]model.RetrievedChunk{1: many},
	}
	svc := NewRetrievalService(searcher, &fakeEmbedder{dim: 4}, 10)

	chunks, err := svc.HybridSearch(context.Background(), 1, "query", repository.SearchFilters{}, 3)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}
