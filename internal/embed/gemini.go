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

// GeminiAPIKeyEnv is the environment variable holding the Gemini key.
const GeminiAPIKeyEnv = "GEMINI_API_KEY"

// DefaultGeminiBaseURL is the Gemini generative language endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini retrieval task types. Unlike OpenAI, Gemini biases embeddings
// per task: documents and queries for the same text embed differently.
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	MaxRetries int
	Timeout    time.Duration

	// APIKey overrides the environment lookup (used in tests).
	APIKey string
}

// GeminiEmbedder generates embeddings via the Gemini
// batchEmbedContents / embedContent endpoints.
type GeminiEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    GeminiConfig
	apiKey    string
	dims      int
	retryCfg  agenterrors.RetryConfig
}

var _ Embedder = (*GeminiEmbedder)(nil)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiEmbedding struct {
	Values []float32 `json:"values"`
}

type geminiBatchResponse struct {
	Embeddings []geminiEmbedding `json:"embeddings"`
	Error      *geminiAPIError   `json:"error"`
}

type geminiSingleResponse struct {
	Embedding geminiEmbedding `json:"embedding"`
	Error     *geminiAPIError `json:"error"`
}

type geminiAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiEmbedder creates a Gemini embedder. A missing API key fails
// here, at construction time, never at call time.
func NewGeminiEmbedder(cfg GeminiConfig) (*GeminiEmbedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(GeminiAPIKeyEnv)
	}
	if apiKey == "" {
		return nil, agenterrors.CredentialsError(
			fmt.Sprintf("%s is not set", GeminiAPIKeyEnv))
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = GeminiDimensions
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

	return &GeminiEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		apiKey:    apiKey,
		dims:      cfg.Dimensions,
		retryCfg:  retryCfg,
	}, nil
}

// EmbedBatch generates document-task embeddings, order-preserving.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, agenterrors.ValidationError(
			fmt.Sprintf("batch of %d texts exceeds maximum %d", len(texts), MaxBatchSize), nil)
	}

	return agenterrors.RetryWithResult(ctx, e.retryCfg, func() ([][]float32, error) {
		return e.doEmbedBatch(ctx, texts)
	})
}

// EmbedQuery generates a query-task embedding for a single text.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return agenterrors.RetryWithResult(ctx, e.retryCfg, func() ([]float32, error) {
		return e.doEmbedQuery(ctx, text)
	})
}

func (e *GeminiEmbedder) doEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	modelPath := "models/" + e.config.Model
	reqs := make([]geminiEmbedRequest, len(texts))
	for i, t := range texts {
		reqs[i] = geminiEmbedRequest{
			Model:    modelPath,
			Content:  geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType: geminiTaskDocument,
		}
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents?key=%s", e.config.BaseURL, modelPath, e.apiKey)
	raw, err := e.post(ctx, url, geminiBatchRequest{Requests: reqs})
	if err != nil {
		return nil, err
	}

	var result geminiBatchResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, agenterrors.PermanentProvider("decode batch embeddings response", err)
	}
	if result.Error != nil {
		return nil, classifyGeminiError(result.Error)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, agenterrors.PermanentProvider(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if len(emb.Values) != e.dims {
			return nil, agenterrors.New(agenterrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(emb.Values)), nil)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) doEmbedQuery(ctx context.Context, text string) ([]float32, error) {
	modelPath := "models/" + e.config.Model
	url := fmt.Sprintf("%s/%s:embedContent?key=%s", e.config.BaseURL, modelPath, e.apiKey)
	raw, err := e.post(ctx, url, geminiEmbedRequest{
		Model:    modelPath,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: geminiTaskQuery,
	})
	if err != nil {
		return nil, err
	}

	var result geminiSingleResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, agenterrors.PermanentProvider("decode embedding response", err)
	}
	if result.Error != nil {
		return nil, classifyGeminiError(result.Error)
	}
	if len(result.Embedding.Values) != e.dims {
		return nil, agenterrors.New(agenterrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(result.Embedding.Values)), nil)
	}
	return result.Embedding.Values, nil
}

// post issues one JSON request and classifies HTTP-level failures.
func (e *GeminiEmbedder) post(ctx context.Context, url string, payload any) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, agenterrors.InternalError("marshal embeddings request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, agenterrors.InternalError("create embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, agenterrors.TransientProvider("embeddings request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, agenterrors.TransientProvider("read embeddings response", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("embeddings returned status %d: %s", resp.StatusCode, truncateForLog(raw))
		if agenterrors.IsTransientStatus(resp.StatusCode) {
			return nil, agenterrors.TransientProvider(msg, nil)
		}
		return nil, agenterrors.PermanentProvider(msg, nil)
	}
	return raw, nil
}

// classifyGeminiError maps an in-body API error to the retry taxonomy.
// RESOURCE_EXHAUSTED is Gemini's rate-limit signal.
func classifyGeminiError(apiErr *geminiAPIError) error {
	msg := fmt.Sprintf("gemini error %s: %s", apiErr.Status, apiErr.Message)
	if apiErr.Status == "RESOURCE_EXHAUSTED" || agenterrors.IsTransientStatus(apiErr.Code) {
		return agenterrors.TransientProvider(msg, nil)
	}
	return agenterrors.PermanentProvider(msg, nil)
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// Dimensions returns the embedding dimension.
func (e *GeminiEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *GeminiEmbedder) ModelName() string { return e.config.Model }

// Close releases idle connections.
func (e *GeminiEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
