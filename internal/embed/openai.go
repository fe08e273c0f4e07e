package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
)

// OpenAIAPIKeyEnv is the environment variable holding the OpenAI key.
const OpenAIAPIKeyEnv = "OPENAI_API_KEY"

// DefaultOpenAIBaseURL is the standard OpenAI API endpoint. Any
// OpenAI-compatible server (e.g. a local inference gateway) works.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI-style embedder.
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	MaxRetries int
	Timeout    time.Duration

	// APIKey overrides the environment lookup (used in tests).
	APIKey string
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible
// /embeddings endpoint. The API has no document/query task distinction,
// so both paths share one request shape.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig
	apiKey    string
	dims      int
	retryCfg  agenterrors.RetryConfig
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates an OpenAI-style embedder. A missing API key
// fails here, at construction time, never at call time.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(OpenAIAPIKeyEnv)
	}
	if apiKey == "" {
		return nil, agenterrors.CredentialsError(
			fmt.Sprintf("%s is not set", OpenAIAPIKeyEnv))
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = OpenAIDimensions
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	retryCfg := agenterrors.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	return &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		apiKey:    apiKey,
		dims:      cfg.Dimensions,
		retryCfg:  retryCfg,
	}, nil
}

// EmbedBatch generates embeddings for multiple texts, order-preserving.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, agenterrors.ValidationError(
			fmt.Sprintf("batch of %d texts exceeds maximum %d", len(texts), MaxBatchSize), nil)
	}

	return agenterrors.RetryWithResult(ctx, e.retryCfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

// EmbedQuery generates an embedding for a single query text.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, agenterrors.InternalError(
			fmt.Sprintf("expected 1 embedding, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

// doEmbed performs one embeddings request. Transient HTTP statuses are
// wrapped so the retry layer recognizes them; everything else is
// permanent and propagates immediately.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, agenterrors.InternalError("marshal embeddings request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, agenterrors.InternalError("create embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, agenterrors.TransientProvider("embeddings request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embeddings returned status %d: %s", resp.StatusCode, string(respBody))
		if agenterrors.IsTransientStatus(resp.StatusCode) {
			return nil, agenterrors.TransientProvider(msg, nil)
		}
		return nil, agenterrors.PermanentProvider(msg, nil)
	}

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, agenterrors.PermanentProvider("decode embeddings response", err)
	}
	if result.Error != nil {
		return nil, agenterrors.PermanentProvider(result.Error.Message, nil)
	}
	if len(result.Data) != len(texts) {
		return nil, agenterrors.PermanentProvider(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Data)), nil)
	}

	// The API documents index-ordered data; order defensively anyway.
	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, agenterrors.PermanentProvider(
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, agenterrors.PermanentProvider(
				fmt.Sprintf("missing embedding for input %d", i), nil)
		}
		if len(v) != e.dims {
			return nil, agenterrors.New(agenterrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(v)), nil)
		}
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
