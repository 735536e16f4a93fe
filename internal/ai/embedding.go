package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EmbeddingClient binds the shared HTTP client to one embedding model.
// It does not validate dimensionality; that check belongs to the
// indexing workflow, which knows the declared dimension.
type EmbeddingClient struct {
	client *Client
	model  string
}

func NewEmbeddingClient(client *Client, model string) *EmbeddingClient {
	return &EmbeddingClient{client: client, model: model}
}

func (e *EmbeddingClient) ModelName() string {
	return e.model
}

// Embed returns the embedding vector for a single text.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	vectors, err := e.request(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for multiple texts in one API call.
// Callers are responsible for staying under the provider's batch limit.
func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	vectors, err := e.request(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors))
	}
	return vectors, nil
}

func (e *EmbeddingClient) request(ctx context.Context, input interface{}) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": e.model,
		"input": input,
	}

	raw, err := e.client.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
