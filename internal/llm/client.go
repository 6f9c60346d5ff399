package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/metrics"
	"github.com/kcb-text2sql/backend/pkg/circuitbreaker"
	"github.com/kcb-text2sql/backend/pkg/logger"
	"github.com/kcb-text2sql/backend/pkg/retry"
)

// Providers. Everything except openai is an OpenAI compatible server
// reached through BaseURL.
const (
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderEnterprise = "enterprise"
)

// SQLSystemPrompt frames every conversion request.
const SQLSystemPrompt = "당신은 자연어를 SQL로 변환하는 전문가입니다. 주어진 데이터베이스 스키마와 참고 문서를 기반으로 정확한 SQL 쿼리를 생성합니다."

var ErrEmptyCompletion = errors.New("llm returned no choices")

type Config struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

type Client struct {
	client         *openai.Client
	provider       string
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Provider == ProviderOpenAI && cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai provider requires an api key")
	}
	if cfg.Provider != ProviderOpenAI && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s provider requires a base url", cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = apiBase(cfg.BaseURL)
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		Logger: logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		ShouldRetry:    isTransient,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		provider:       cfg.Provider,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}, nil
}

// apiBase accepts either a server root or a URL that already ends in /v1.
func apiBase(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// isTransient retries rate limiting, server errors and transport failures.
// Other API errors are the caller's fault and fail immediately.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, ErrEmptyCompletion)
}

func (c *Client) Provider() string { return c.provider }

func (c *Client) Model() string { return c.model }

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	result, err := circuitbreaker.ExecuteWithResult(c.cb, func() (*CompletionResponse, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return nil, ErrEmptyCompletion
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			return &CompletionResponse{
				Content: strings.TrimSpace(resp.Choices[0].Message.Content),
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}, nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(result.Usage.CompletionTokens))

	return result, nil
}

// GenerateSQL asks the model to translate an assembled prompt into SQL. The
// raw completion is returned; callers decide whether it is usable.
func (c *Client) GenerateSQL(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: SQLSystemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate sql: %w", err)
	}

	logger.Info("SQL generated",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp.Content, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.New("llm returned no embedding")
	}
	return embeddings[0], nil
}

func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batch := texts[i:end]

		err := c.cb.Execute(func() error {
			return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}

				for _, data := range resp.Data {
					embeddings = append(embeddings, data.Embedding)
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}
