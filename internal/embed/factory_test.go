package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DayuGuo/DEVONthink-agent/internal/config"
	agenterrors "github.com/DayuGuo/DEVONthink-agent/internal/errors"
)

func TestNew_StaticProvider(t *testing.T) {
	e, err := New(config.EmbeddingsConfig{Provider: "static"})
	require.NoError(t, err)
	defer e.Close()

	assert.IsType(t, &CachedEmbedder{}, e)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.EmbeddingsConfig{Provider: "cohere"})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeProviderUnknown, agenterrors.GetCode(err))
}

func TestNew_OpenAIWithoutCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(config.EmbeddingsConfig{Provider: "openai"})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeProviderCredentials, agenterrors.GetCode(err))
}

func TestNew_GeminiWithoutCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := New(config.EmbeddingsConfig{Provider: "gemini"})
	require.Error(t, err)
	assert.Equal(t, agenterrors.ErrCodeProviderCredentials, agenterrors.GetCode(err))
}
