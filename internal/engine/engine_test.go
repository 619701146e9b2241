package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompletion answers JSON-mode calls (planner, extraction) with an
// empty object and plays writer replies from a script.
type scriptedCompletion struct {
	mu            sync.Mutex
	writerReplies []string
	writerCalls   int
	jsonCalls     int
}

func (s *scriptedCompletion) Complete(_ context.Context, _, _ string, opts CompletionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.JSONMode {
		s.jsonCalls++
		return "{}", nil
	}

	s.writerCalls++
	if len(s.writerReplies) == 0 {
		return "", errors.New("no reply scripted")
	}
	idx := s.writerCalls - 1
	if idx >= len(s.writerReplies) {
		idx = len(s.writerReplies) - 1
	}
	return s.writerReplies[idx], nil
}

func (s *scriptedCompletion) counts() (writer, jsonMode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writerCalls, s.jsonCalls
}

type fixedUnderstander struct {
	u     Understanding
	calls int
}

func (f *fixedUnderstander) Understand(_ context.Context, _, _ string) (Understanding, error) {
	f.calls++
	return f.u, nil
}

type panicUnderstander struct{}

func (panicUnderstander) Understand(_ context.Context, _, _ string) (Understanding, error) {
	panic("understander exploded")
}

func TestProcessMessageFirstTurn(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-first")

	resp := e.ProcessMessage(context.Background(), state, "Oi")

	assert.Equal(t, StageConversation, resp.Stage)
	assert.Equal(t, string(domain.StageSituation), resp.SpinStage)
	assert.Equal(t, 0, resp.Progress.OverallPercent)
	assert.Equal(t, "s_caminho_orcamento", resp.QuestionID)
	assert.Equal(t, 1, strings.Count(resp.Message, "?"))
	assert.False(t, resp.ReadyForScheduling)
	assert.False(t, resp.IsComplete)
	assert.Equal(t, "0/10 campos coletados (0%)", resp.BantSummary)
	assert.Equal(t, 1, state.TurnCount)
}

func TestProcessMessageValidReplyPassesThrough(t *testing.T) {
	scripted := "Hoje a maioria dos seus clientes chega por indicação ou pelas redes?"
	llm := &scriptedCompletion{writerReplies: []string{scripted}}
	e := NewEngine(llm, nil, DefaultOptions())
	state := NewConversationState("c-valid")

	resp := e.ProcessMessage(context.Background(), state, "Oi")

	assert.Equal(t, scripted, resp.Message)
	writer, _ := llm.counts()
	assert.Equal(t, 1, writer)
}

func TestProcessMessageRegenerationBound(t *testing.T) {
	bad := "E, sendo que o projeto anda"
	llm := &scriptedCompletion{writerReplies: []string{bad}}
	e := NewEngine(llm, nil, DefaultOptions())
	state := NewConversationState("c-regen")

	resp := e.ProcessMessage(context.Background(), state, "Oi")

	// Initial attempt plus exactly two regenerations, then the template.
	writer, _ := llm.counts()
	assert.Equal(t, 3, writer)
	assert.NotEqual(t, bad, resp.Message)
	assert.Equal(t, 1, strings.Count(resp.Message, "?"))
}

func TestProcessMessageMenuShortCircuit(t *testing.T) {
	llm := &scriptedCompletion{writerReplies: []string{"nunca chamado?"}}
	e := NewEngine(llm, nil, DefaultOptions())
	state := NewConversationState("c-menu")

	resp := e.ProcessMessage(context.Background(), state, "1) Comercial\n2) Suporte")

	assert.Equal(t, StageSpecialMenu, resp.Stage)
	assert.NotEmpty(t, resp.Message)
	assert.False(t, resp.ReadyForScheduling)
	assert.Empty(t, resp.QuestionID)

	writer, jsonMode := llm.counts()
	assert.Equal(t, 0, writer)
	assert.Equal(t, 0, jsonMode)
}

func TestProcessMessageBotPhraseShortCircuit(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-bot")

	resp := e.ProcessMessage(context.Background(), state,
		"Sou um assistente virtual, digite o número da opção desejada.")

	assert.Equal(t, StageSpecialBot, resp.Stage)
	assert.NotEmpty(t, resp.Message)
	assert.False(t, resp.ReadyForScheduling)
}

func TestProcessMessageTransferWaitsSilently(t *testing.T) {
	und := &fixedUnderstander{u: Understanding{ShouldWait: true, IsTransfer: true}}
	e := NewEngine(nil, und, DefaultOptions())
	state := NewConversationState("c-transfer")

	resp := e.ProcessMessage(context.Background(), state, "um atendente vai te responder")

	assert.Equal(t, StageSpecialTransfer, resp.Stage)
	assert.Empty(t, resp.Message)
}

func TestProcessMessageExitUsesSuggestedResponse(t *testing.T) {
	und := &fixedUnderstander{u: Understanding{
		ShouldExit:        true,
		SuggestedResponse: "Tranquilo, obrigado pelo papo!",
	}}
	e := NewEngine(nil, und, DefaultOptions())
	state := NewConversationState("c-exit")

	resp := e.ProcessMessage(context.Background(), state, "não quero mais, pode parar")

	assert.Equal(t, StageSpecialExit, resp.Stage)
	assert.Equal(t, "Tranquilo, obrigado pelo papo!", resp.Message)
}

func TestProcessMessageClarify(t *testing.T) {
	und := &fixedUnderstander{u: Understanding{ShouldClarify: true}}
	e := NewEngine(nil, und, DefaultOptions())
	state := NewConversationState("c-clarify")

	resp := e.ProcessMessage(context.Background(), state, "asdkjhqwe")

	assert.Equal(t, StageSpecialClarify, resp.Stage)
	assert.NotEmpty(t, resp.Message)
}

func TestProcessMessageExtractsAndPrunes(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-extract")

	resp := e.ProcessMessage(context.Background(), state,
		"Trabalhamos com indicação, fazemos 8 projetos por mês na região de Recife")

	assert.True(t, state.Bant.IsSet(FieldCaminhoOrcamento))
	assert.True(t, state.Bant.IsSet(FieldVolume))
	assert.True(t, state.Bant.IsSet(FieldRegiao))

	// The next question skips everything already answered.
	assert.Equal(t, "s_presenca_digital", resp.QuestionID)
	assert.Equal(t, 30, resp.Progress.BantPercent)
	assert.Len(t, resp.Progress.SlotsCollected, 3)
}

func TestProcessMessageBantIsWriteOnce(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-writeonce")

	e.ProcessMessage(context.Background(), state, "tudo vem de indicação hoje")
	e.ProcessMessage(context.Background(), state, "ah, e uma parte chega pelo instagram também")

	assert.Equal(t, "indicacao", state.Bant.Get(FieldCaminhoOrcamento))
}

func TestProcessMessageAdvancesOnSignal(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-advance")
	state.Spin.MarkAsked("s_caminho_orcamento")

	resp := e.ProcessMessage(context.Background(), state, "tá bem difícil fechar projeto")

	assert.Equal(t, string(domain.StageProblem), resp.SpinStage)
	assert.Equal(t, "p_trava", resp.QuestionID)
	require.Len(t, state.Spin.StageHistory, 1)
	assert.Equal(t, 12, resp.Progress.OverallPercent)
}

func TestProcessMessageClosingCompletes(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-closing")
	state.Spin.Current = domain.StageClosing

	resp := e.ProcessMessage(context.Background(), state, "pode marcar sim")

	assert.Equal(t, string(domain.StageClosing), resp.SpinStage)
	assert.Equal(t, "c_agenda", resp.QuestionID)
	assert.True(t, resp.ReadyForScheduling)
	assert.True(t, resp.IsComplete)
}

func TestProcessMessageRecoversFromPanic(t *testing.T) {
	e := NewEngine(nil, panicUnderstander{}, DefaultOptions())
	state := NewConversationState("c-panic")

	resp := e.ProcessMessage(context.Background(), state, "mensagem qualquer de um lead")

	assert.Equal(t, StageInternalError, resp.Stage)
	assert.Equal(t, apologyMessage, resp.Message)
	assert.NotEmpty(t, resp.Error)
}

func TestProcessMessageCachesUnderstanding(t *testing.T) {
	und := &fixedUnderstander{u: Understanding{MessageType: "texto", IsHuman: true}}
	e := NewEngine(nil, und, DefaultOptions())
	state := NewConversationState("c-cache")

	text := "quero saber mais sobre o serviço de vocês"
	e.ProcessMessage(context.Background(), state, text)
	e.ProcessMessage(context.Background(), state, text)

	assert.Equal(t, 1, und.calls)
}

func TestCachedArchetype(t *testing.T) {
	e := NewEngine(nil, nil, DefaultOptions())
	state := NewConversationState("c-arch")

	e.ProcessMessage(context.Background(), state, "prefiro ver dados e números antes de decidir")

	cached, ok := e.CachedArchetype("c-arch")
	require.True(t, ok)
	assert.Equal(t, domain.ArchetypeAnalitico, cached.Archetype)
	assert.Equal(t, 100, cached.Confidence)
}

func TestDefaultUnderstanding(t *testing.T) {
	u := DefaultUnderstanding()
	assert.Equal(t, "texto", u.MessageType)
	assert.True(t, u.IsHuman)
	assert.False(t, u.IsBot)
	assert.False(t, u.ShouldExit)
}
