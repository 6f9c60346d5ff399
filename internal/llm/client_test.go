package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Provider:       ProviderOllama,
		BaseURL:        srv.URL,
		Model:          "sqlcoder",
		EmbeddingModel: "bge-m3",
		Temperature:    0.1,
		MaxTokens:      500,
	})
	require.NoError(t, err)
	c.retryConfig.InitialDelay = 1
	c.retryConfig.MaxDelay = 1
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Provider: ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewClient(Config{Provider: ProviderEnterprise, APIKey: "k"})
	assert.Error(t, err)

	c, err := NewClient(Config{Provider: ProviderOpenAI, APIKey: "k", Model: "gpt-3.5-turbo"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", c.Model())
	assert.Equal(t, ProviderOpenAI, c.Provider())
}

func TestAPIBase(t *testing.T) {
	assert.Equal(t, "http://llm:8000/v1", apiBase("http://llm:8000"))
	assert.Equal(t, "http://llm:8000/v1", apiBase("http://llm:8000/"))
	assert.Equal(t, "http://llm:8000/v1", apiBase("http://llm:8000/v1"))
}

func TestGenerateSQL(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "  SELECT * FROM customers;\n"},
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	sql, err := c.GenerateSQL(context.Background(), "고객 목록")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers;", sql)

	assert.Equal(t, "sqlcoder", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, SQLSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "고객 목록", got.Messages[1].Content)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
		})
	})

	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, calls.Load())
}

func TestComplete_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestComplete_EmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	})

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	assert.True(t, errors.Is(err, ErrEmptyCompletion))
}

func TestGenerateBatchEmbeddings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openai.EmbeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	vecs, err := c.GenerateBatchEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)

	vec, err := c.GenerateEmbedding(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	none, err := c.GenerateBatchEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}
