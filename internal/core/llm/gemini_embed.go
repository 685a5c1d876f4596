package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-etl/internal/core"
)

const (
	// DefaultGeminiEmbedModel is used when no model is configured.
	DefaultGeminiEmbedModel = "gemini-embedding-001"

	// geminiMaxBatch is the most requests BatchEmbedContents accepts at once.
	geminiMaxBatch = 100
)

// GeminiEmbedder embeds retrieval documents with the Gemini API.
//
// The API returns full-size vectors (3072 values for gemini-embedding-001).
// With dims set, each vector is cut to its first dims values and scaled back
// to unit length; the model is trained so that prefixes stay usable.
type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	dims   int
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dims int, opts ...option.ClientOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key not set")
	}
	if modelName == "" {
		modelName = DefaultGeminiEmbedModel
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	model := client.EmbeddingModel(modelName)
	model.TaskType = genai.TaskTypeRetrievalDocument
	return &GeminiEmbedder{client: client, model: model, dims: dims}, nil
}

// EmbedTexts returns one vector per text in input order. Inputs larger than
// one API batch are sent as several requests.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		part := texts[start:min(start+geminiMaxBatch, len(texts))]

		batch := g.model.NewBatch()
		for _, t := range part {
			batch.AddContent(genai.Text(t))
		}
		resp, err := g.model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != len(part) {
			return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(resp.Embeddings), len(part))
		}
		for _, e := range resp.Embeddings {
			out = append(out, truncateVector(e.Values, g.dims))
		}
	}
	return out, nil
}

// truncateVector keeps the first dims values of v and renormalises them.
// Vectors already at or below dims are returned unchanged.
func truncateVector(v []float32, dims int) []float32 {
	if dims <= 0 || len(v) <= dims {
		return v
	}
	out := make([]float32, dims)
	copy(out, v[:dims])

	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

func (g *GeminiEmbedder) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
