package app

import (
	"context"
	"encoding/json"
	"fmt"

	"studynotes/internal/ai"
	"studynotes/internal/model"
	"studynotes/internal/repository"
)

// Hand-rolled fakes for the core service ports. Kept together because
// the index, retrieval and answer tests share most of them.

type fakeEmbedder struct {
	dim        int
	batchSizes []int
	err        error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.vector(t)
	}
	return vectors, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedding-model" }

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32((len(text) + i) % 7)
	}
	return v
}

type fakeSearcher struct {
	vector     map[uint][]model.RetrievedChunk
	lexical    map[uint][]model.RetrievedChunk
	vectorErr  error
	lexicalErr error
}

func (f *fakeSearcher) VectorSearch(ctx context.Context, userID uint, queryVector []float32, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return capped(f.vector[userID], limit), nil
}

func (f *fakeSearcher) LexicalSearch(ctx context.Context, userID uint, query string, filters repository.SearchFilters, limit int) ([]model.RetrievedChunk, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return capped(f.lexical[userID], limit), nil
}

func capped(chunks []model.RetrievedChunk, limit int) []model.RetrievedChunk {
	if limit > 0 && len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}

type fakeChunkWriter struct {
	calls   int
	byNote  map[uint][]model.Chunk
	vectors map[uint][][]float32
	err     error
}

func newFakeChunkWriter() *fakeChunkWriter {
	return &fakeChunkWriter{
		byNote:  make(map[uint][]model.Chunk),
		vectors: make(map[uint][][]float32),
	}
}

func (f *fakeChunkWriter) ReplaceGeneration(ctx context.Context, noteID uint, chunks []model.Chunk, vectors [][]float32, modelName string) error {
	if f.err != nil {
		return f.err
	}
	f.calls++
	f.byNote[noteID] = append([]model.Chunk(nil), chunks...)
	f.vectors[noteID] = append([][]float32(nil), vectors...)
	return nil
}

type fakeInvalidator struct {
	users []uint
	err   error
}

func (f *fakeInvalidator) InvalidateUser(ctx context.Context, userID uint) error {
	if f.err != nil {
		return f.err
	}
	f.users = append(f.users, userID)
	return nil
}

type fakeCompleter struct {
	answer       string
	err          error
	calls        int
	lastMessages []ai.ChatMessage
}

func (f *fakeCompleter) Complete(ctx context.Context, chatModel string, messages []ai.ChatMessage) (string, error) {
	f.calls++
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeAnswerCache round-trips values through JSON the way the redis
// cache does, so serialization bugs surface here too.
type fakeAnswerCache struct {
	entries map[string][]byte
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{entries: make(map[string][]byte)}
}

func (f *fakeAnswerCache) key(userID uint, query string) string {
	return fmt.Sprintf("%d:%s", userID, query)
}

func (f *fakeAnswerCache) Get(ctx context.Context, userID uint, query string, dest interface{}) (bool, error) {
	raw, ok := f.entries[f.key(userID, query)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeAnswerCache) Set(ctx context.Context, userID uint, query string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[f.key(userID, query)] = raw
	return nil
}

func retrievedChunk(noteID uint, chunkIndex int, title string) model.RetrievedChunk {
	return model.RetrievedChunk{
		Chunk: model.Chunk{
			ID:         noteID*100 + uint(chunkIndex),
			UserID:     1,
			NoteID:     noteID,
			NoteTitle:  title,
			ContentRaw: fmt.Sprintf("content of note %d chunk %d", noteID, chunkIndex),
			ChunkIndex: chunkIndex,
		},
		Similarity: 0.5,
	}
}
