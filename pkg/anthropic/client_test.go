package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("sk-test")
	sc, ok := c.(*sdkClient)
	assert.True(t, ok)
	assert.NotEmpty(t, sc.defaultModel)
}

func TestWithDefaultModel(t *testing.T) {
	c := NewClient("sk-test", WithDefaultModel("claude-sonnet-4-5-20250929"))
	sc := c.(*sdkClient)
	assert.Equal(t, "claude-sonnet-4-5-20250929", sc.defaultModel)
}

func TestTokenUsageLogDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 10, OutputTokens: 20}.Log("claude-haiku-4-5-20251001", "test")
	})
}
