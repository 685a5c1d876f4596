package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/contexta-etl/internal/core"
	"github.com/markdave123-py/contexta-etl/internal/core/retry"
)

// OpenAIOptions configures an OpenAIEmbedder. With Endpoint set the client
// talks to an Azure OpenAI resource; otherwise to BaseURL (api.openai.com by default).
type OpenAIOptions struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
	BaseURL    string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the embeddings endpoint of OpenAI or Azure OpenAI.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: api key not set")
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}

	var cfg openai.ClientConfig
	if opts.Endpoint != "" {
		cfg = openai.DefaultAzureConfig(opts.APIKey, opts.Endpoint)
		if opts.APIVersion != "" {
			cfg.APIVersion = opts.APIVersion
		}
		if deployment := opts.Deployment; deployment != "" {
			cfg.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		cfg = openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
		dims:   opts.Dimensions,
	}, nil
}

// EmbedTexts embeds texts in one request and returns the vectors in input order.
// Client errors other than 408/429 are marked permanent.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	// Only the v3 models accept a target dimension.
	if e.dims > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		err = fmt.Errorf("openai embed: %w", err)
		if isPermanent(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("openai embed: bad or duplicate index %d in response", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func isPermanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return permanentStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return permanentStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func permanentStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
