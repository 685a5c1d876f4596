package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-etl/internal/core/retry"
)

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// embeddingsServer answers with vectors [i, len(text)] in reverse order.
func embeddingsServer(t *testing.T, check func(r *http.Request, req embedRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(r, req)
		}

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedder_RestoresInputOrder(t *testing.T) {
	srv := embeddingsServer(t, func(r *http.Request, req embedRequest) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 2, req.Dimensions)
	})
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Dimensions: 2})
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 2}, {2, 3}}, vecs)
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	srv := embeddingsServer(t, func(r *http.Request, req embedRequest) {
		assert.Equal(t, "/openai/deployments/emb-small/embeddings", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
	})
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIOptions{
		APIKey:     "azure-key",
		Endpoint:   srv.URL,
		APIVersion: "2024-02-01",
		Deployment: "emb-small",
	})
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestOpenAIEmbedder_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "bad request", status: http.StatusBadRequest, permanent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, permanent: true},
		{name: "throttled", status: http.StatusTooManyRequests, permanent: false},
		{name: "server error", status: http.StatusInternalServerError, permanent: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "invalid_request_error"}}`))
			}))
			defer srv.Close()

			e, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = e.EmbedTexts(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, retry.IsPermanent(err))
		})
	}
}

func TestOpenAIEmbedder_Validation(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIOptions{})
	assert.Error(t, err)

	e, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	vecs, err := e.EmbedTexts(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}
