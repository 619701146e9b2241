package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClareAI/astra-sales-engine/internal/engine"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

const understandSystemPrompt = `Você analisa uma mensagem recebida em uma conversa comercial por WhatsApp.
Responda apenas JSON com o formato:
{"messageType":"texto|menu|bot|audio","senderIntent":"...","emotionalState":"...",
"isBot":false,"isMenu":false,"isTransfer":false,"isHuman":true,
"shouldWait":false,"shouldExit":false,"shouldClarify":false,
"suggestedResponse":"","confidence":0}
isMenu: a mensagem é um menu automático de opções.
isBot: a mensagem foi escrita por um sistema, não por uma pessoa.
isTransfer + shouldWait: um atendente humano está assumindo; devemos aguardar em silêncio.
shouldExit: o lead pediu claramente para encerrar o contato.
shouldClarify: a mensagem é incompreensível e precisamos pedir esclarecimento.`

// LLMUnderstander implements engine.Understander on the completion service.
// On any call or parse failure it returns the engine's fixed default so the
// pipeline never stalls.
type LLMUnderstander struct {
	llm engine.CompletionService
}

func NewLLMUnderstander(llm engine.CompletionService) *LLMUnderstander {
	return &LLMUnderstander{llm: llm}
}

// Understand implements engine.Understander.
func (u *LLMUnderstander) Understand(ctx context.Context, text, contactID string) (engine.Understanding, error) {
	if u.llm == nil {
		return engine.DefaultUnderstanding(), nil
	}

	user := fmt.Sprintf("Mensagem do contato %s: %s", contactID, text)
	raw, err := u.llm.Complete(ctx, understandSystemPrompt, user, engine.CompletionOptions{
		Temperature: 0,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		logger.Base().Warn("understanding completion failed",
			zap.String("contact_id", contactID), zap.Error(err))
		return engine.DefaultUnderstanding(), nil
	}

	var understanding engine.Understanding
	if err := json.Unmarshal([]byte(raw), &understanding); err != nil {
		logger.Base().Warn("understanding response was not valid json",
			zap.String("contact_id", contactID), zap.Error(err))
		return engine.DefaultUnderstanding(), nil
	}
	return understanding, nil
}

var _ engine.Understander = (*LLMUnderstander)(nil)
