package embed

import (
	"fmt"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
)

// New constructs the embedder selected by configuration, wrapped with
// the query-embedding LRU cache. An unsupported provider name or a
// missing credential fails here, before any indexing or search work
// starts.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Provider {
	case "openai":
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxRetries: cfg.MaxRetries,
		})
	case "gemini":
		inner, err = NewGeminiEmbedder(GeminiConfig{
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxRetries: cfg.MaxRetries,
		})
	case "static":
		inner = NewStaticEmbedder()
	default:
		return nil, agenterrors.New(agenterrors.ErrCodeProviderUnknown,
			fmt.Sprintf("unsupported embedding provider %q", cfg.Provider), nil)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
