package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ClareAI/astra-sales-engine/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompletion struct {
	reply string
	err   error
}

func (s stubCompletion) Complete(_ context.Context, _, _ string, _ engine.CompletionOptions) (string, error) {
	return s.reply, s.err
}

func TestUnderstandWithoutService(t *testing.T) {
	u := NewLLMUnderstander(nil)

	got, err := u.Understand(context.Background(), "oi", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultUnderstanding(), got)
}

func TestUnderstandParsesResponse(t *testing.T) {
	u := NewLLMUnderstander(stubCompletion{
		reply: `{"messageType":"menu","isMenu":true,"isBot":true,"confidence":95}`,
	})

	got, err := u.Understand(context.Background(), "1) Comercial", "contact-1")
	require.NoError(t, err)
	assert.True(t, got.IsMenu)
	assert.True(t, got.IsBot)
	assert.Equal(t, "menu", got.MessageType)
	assert.Equal(t, 95, got.Confidence)
}

func TestUnderstandFallsBackOnCallError(t *testing.T) {
	u := NewLLMUnderstander(stubCompletion{err: errors.New("timeout")})

	got, err := u.Understand(context.Background(), "oi", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultUnderstanding(), got)
}

func TestUnderstandFallsBackOnInvalidJSON(t *testing.T) {
	u := NewLLMUnderstander(stubCompletion{reply: "não sei analisar isso"})

	got, err := u.Understand(context.Background(), "oi", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultUnderstanding(), got)
}
