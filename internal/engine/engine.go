package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ClareAI/astra-sales-engine/internal/cache"
	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

// CompletionOptions tune one completion-service call.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// CompletionService is the external text-generation collaborator. The engine
// never depends on which model sits behind it.
type CompletionService interface {
	Complete(ctx context.Context, system, user string, opts CompletionOptions) (string, error)
}

// Understanding is the message-analysis result consumed from the
// understanding collaborator.
type Understanding struct {
	MessageType       string `json:"messageType"`
	SenderIntent      string `json:"senderIntent"`
	EmotionalState    string `json:"emotionalState"`
	IsBot             bool   `json:"isBot"`
	IsMenu            bool   `json:"isMenu"`
	IsTransfer        bool   `json:"isTransfer"`
	IsHuman           bool   `json:"isHuman"`
	ShouldWait        bool   `json:"shouldWait"`
	ShouldExit        bool   `json:"shouldExit"`
	ShouldClarify     bool   `json:"shouldClarify"`
	SuggestedResponse string `json:"suggestedResponse"`
	Confidence        int    `json:"confidence"`
}

// Understander analyzes one inbound message.
type Understander interface {
	Understand(ctx context.Context, text, contactID string) (Understanding, error)
}

// DefaultUnderstanding is the fixed fallback when the understanding call
// fails or returns something unparseable.
func DefaultUnderstanding() Understanding {
	return Understanding{
		MessageType:    "texto",
		SenderIntent:   "desconhecida",
		EmotionalState: "neutro",
		IsHuman:        true,
	}
}

// Special response stages produced by the short-circuit paths.
const (
	StageSpecialTransfer = "aguardando_transferencia"
	StageSpecialMenu     = "menu_detectado"
	StageSpecialBot      = "bot_detectado"
	StageSpecialExit     = "encerramento"
	StageSpecialClarify  = "esclarecimento"
	StageConversation    = "conversa"
	StageInternalError   = "erro_interno"
)

const apologyMessage = "Desculpa, me perdi aqui por um instante. Pode repetir o que você disse?"

// ArchetypeView is the persona block of a process response.
type ArchetypeView struct {
	Detected   string   `json:"detected"`
	Key        string   `json:"key"`
	Confidence int      `json:"confidence"`
	Signals    []string `json:"signals"`
}

// Response is the result of processing one inbound message. It is always
// well-formed: internal failures surface as the apology message plus Error.
type Response struct {
	Message            string        `json:"message"`
	Stage              string        `json:"stage"`
	SpinStage          string        `json:"spinStage"`
	Progress           Progress      `json:"progress"`
	IsComplete         bool          `json:"isComplete"`
	ReadyForScheduling bool          `json:"readyForScheduling"`
	BantSummary        string        `json:"bantSummary"`
	Archetype          ArchetypeView `json:"archetype"`
	QuestionID         string        `json:"questionId,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// Options configure an Engine instance.
type Options struct {
	MaxReplyLines     int
	ContextWindowSize int
	ContextWindowTTL  time.Duration
	UnderstandingTTL  time.Duration
	ArchetypeTTL      time.Duration
	MaxContacts       int
}

// DefaultOptions mirror the production deployment.
func DefaultOptions() Options {
	return Options{
		MaxReplyLines:     DefaultMaxLines,
		ContextWindowSize: 6,
		ContextWindowTTL:  30 * time.Minute,
		UnderstandingTTL:  30 * time.Second,
		ArchetypeTTL:      10 * time.Minute,
		MaxContacts:       5000,
	}
}

// Engine owns the deterministic turn-processing pipeline. One engine serves
// all contacts; per-contact state is passed in by the caller, which also
// guarantees per-contact serialization. The caches are the only shared
// structures and are safe for concurrent use.
type Engine struct {
	llm          CompletionService
	understander Understander
	opts         Options

	understandingCache *cache.Cache[string, Understanding]
	archetypeCache     *cache.Cache[string, DetectionResult]
	contextWindow      *cache.Cache[string, []domain.Message]
}

// NewEngine wires an engine with its bounded caches. The context-window
// cache runs a background sweep so idle contacts are released.
func NewEngine(llm CompletionService, understander Understander, opts Options) *Engine {
	if opts.MaxContacts <= 0 {
		opts.MaxContacts = DefaultOptions().MaxContacts
	}
	if opts.ContextWindowSize <= 0 {
		opts.ContextWindowSize = DefaultOptions().ContextWindowSize
	}

	e := &Engine{
		llm:                llm,
		understander:       understander,
		opts:               opts,
		understandingCache: cache.New[string, Understanding](opts.MaxContacts, opts.UnderstandingTTL),
		archetypeCache:     cache.New[string, DetectionResult](opts.MaxContacts, opts.ArchetypeTTL),
		contextWindow:      cache.New[string, []domain.Message](opts.MaxContacts, opts.ContextWindowTTL),
	}
	e.contextWindow.StartSweep(5 * time.Minute)
	return e
}

// CachedArchetype returns the last resolved persona for a contact without
// touching conversation state.
func (e *Engine) CachedArchetype(contactID string) (DetectionResult, bool) {
	return e.archetypeCache.Get(contactID)
}

// menuLinePattern matches one option line of an automated menu, e.g.
// "[1] Orçamento" or "2) Suporte".
var menuLinePattern = regexp.MustCompile(`(?m)^\s*\[?\d+[\]\.\)]\s*\S`)

var botPhrases = []string{
	"sou um assistente virtual", "atendimento automático", "atendimento automatico",
	"digite o número", "digite o numero", "digite a opção", "digite a opcao",
}

// ProcessMessage runs one full turn for a contact. It never returns an
// error: any internal failure is converted into the fixed apology response.
func (e *Engine) ProcessMessage(ctx context.Context, state *ConversationState, text string) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Base().Error("turn processing panicked",
				zap.String("contact_id", state.ContactID),
				zap.Any("panic", r))
			resp = e.specialResponse(state, StageInternalError, apologyMessage)
			resp.Error = fmt.Sprintf("%v", r)
		}
	}()

	state.TurnCount++
	state.AppendMessage(domain.MessageRoleUser, text)
	e.pushContext(state.ContactID, domain.Message{Role: domain.MessageRoleUser, Text: text})

	understanding := e.understand(ctx, state.ContactID, text)

	// Special-case short-circuits skip the planner/writer pipeline entirely.
	switch {
	case understanding.ShouldWait && understanding.IsTransfer:
		return e.specialResponse(state, StageSpecialTransfer, "")
	case understanding.IsMenu:
		return e.specialResponse(state, StageSpecialMenu, pickMessage(understanding.SuggestedResponse,
			"Consigo falar com uma pessoa do time? Prefiro não seguir pelo menu."))
	case understanding.IsBot:
		return e.specialResponse(state, StageSpecialBot, pickMessage(understanding.SuggestedResponse,
			"Quando alguém do time puder falar, é só me chamar por aqui."))
	case understanding.ShouldExit:
		return e.specialResponse(state, StageSpecialExit, pickMessage(understanding.SuggestedResponse,
			"Sem problema, obrigado pelo seu tempo. Se fizer sentido no futuro, é só chamar."))
	case understanding.ShouldClarify:
		return e.specialResponse(state, StageSpecialClarify, pickMessage(understanding.SuggestedResponse,
			"Acho que me perdi. Você pode explicar de outro jeito?"))
	}

	archetype := state.Archetype.Detect(text, state.TurnCount)
	e.archetypeCache.Set(state.ContactID, archetype)

	// Advance beats regress when both fire in the same turn.
	if advance, ok := state.Spin.CheckAdvance(text); ok {
		state.Spin.AdvanceToStage(advance.Target, state.TurnCount)
	} else if regress, ok := state.Spin.CheckRegress(text); ok {
		state.Spin.AdvanceToStage(regress.Target, state.TurnCount)
	}

	extracted := ExtractBANT(text)
	for field, value := range e.extractViaLLM(ctx, state, text) {
		if _, exists := extracted[field]; !exists {
			extracted[field] = value
		}
	}
	state.Bant.Merge(state.ContactID, extracted)
	ExtractLeadProfile(text, &state.Lead)

	question := state.Spin.DetermineNextQuestion(state.Bant, state.TurnCount)

	// Progress reflects the state before this turn's question goes out.
	progress := ComputeProgress(state.Spin, state.Bant)
	state.Spin.MarkAsked(question.ID)
	reply := e.writeReply(ctx, state, text, question, progress)

	state.AppendMessage(domain.MessageRoleAgent, reply)
	e.pushContext(state.ContactID, domain.Message{Role: domain.MessageRoleAgent, Text: reply})

	return &Response{
		Message:            reply,
		Stage:              StageConversation,
		SpinStage:          string(state.Spin.Current),
		Progress:           progress,
		IsComplete:         state.Spin.Current == domain.StageClosing && progress.ReadyForScheduling,
		ReadyForScheduling: progress.ReadyForScheduling,
		BantSummary:        bantSummary(state.Bant),
		Archetype:          archetypeView(state.Archetype),
		QuestionID:         question.ID,
	}
}

// understand resolves the message analysis, preferring deterministic menu
// and bot detection, then the cached collaborator result, then the fixed
// default.
func (e *Engine) understand(ctx context.Context, contactID, text string) Understanding {
	if matches := menuLinePattern.FindAllString(text, -1); len(matches) >= 2 {
		return Understanding{MessageType: "menu", IsMenu: true, IsBot: true, Confidence: 100}
	}
	lowered := strings.ToLower(text)
	for _, phrase := range botPhrases {
		if strings.Contains(lowered, phrase) {
			return Understanding{MessageType: "bot", IsBot: true, Confidence: 90}
		}
	}

	key := contactID + "|" + text
	if cached, ok := e.understandingCache.Get(key); ok {
		return cached
	}

	if e.understander == nil {
		return DefaultUnderstanding()
	}

	understanding, err := e.understander.Understand(ctx, text, contactID)
	if err != nil {
		logger.Base().Warn("understanding call failed, using default",
			zap.String("contact_id", contactID), zap.Error(err))
		return DefaultUnderstanding()
	}
	// Menu flags from the collaborator without menu structure in the text
	// are trusted as-is; the deterministic check above already caught the
	// structural case.
	e.understandingCache.Set(key, understanding)
	return understanding
}

// extractViaLLM asks the completion service for qualification facts as JSON.
// Any failure degrades to an empty map; the deterministic extractor already
// ran.
func (e *Engine) extractViaLLM(ctx context.Context, state *ConversationState, text string) map[string]string {
	if e.llm == nil {
		return nil
	}

	system := "Você extrai dados de qualificação de mensagens de leads. " +
		"Responda apenas um objeto JSON com os campos encontrados dentre: " +
		strings.Join(fieldNames(), ", ") + ". Omita campos não mencionados."
	user := fmt.Sprintf("Estágio atual: %s\nMensagem do lead: %s", state.Spin.Current, text)

	raw, err := e.llm.Complete(ctx, system, user, CompletionOptions{Temperature: 0, MaxTokens: 300, JSONMode: true})
	if err != nil {
		logger.Base().Warn("bant extraction call failed",
			zap.String("contact_id", state.ContactID), zap.Error(err))
		return nil
	}

	var extracted map[string]string
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		logger.Base().Warn("bant extraction returned invalid json",
			zap.String("contact_id", state.ContactID), zap.Error(err))
		return nil
	}
	return extracted
}

// writeReply produces the outbound text: briefing, writer call, checker loop
// with bounded regeneration, deterministic fallback, cleanup.
func (e *Engine) writeReply(ctx context.Context, state *ConversationState, inbound string, question Question, progress Progress) string {
	briefing := e.buildBriefing(ctx, state, question, progress)

	reply, err := e.callWriter(ctx, state, briefing, inbound, nil)
	if err != nil {
		// No text at all: go straight to the deterministic template so the
		// turn still makes forward progress.
		return CleanupReply(BuildFallbackReply(state.Spin.Current, question.Text))
	}

	result := CheckReply(reply, inbound, e.opts.MaxReplyLines, progress.OverallPercent)
	attempts := 0
	for !result.Valid && attempts < maxRegenAttempts {
		attempts++
		logger.Base().Info("reply failed validation, regenerating",
			zap.String("contact_id", state.ContactID),
			zap.Strings("issues", result.Issues),
			zap.Int("attempt", attempts))

		regenerated, err := e.callWriter(ctx, state, briefing, inbound, result.Issues)
		if err != nil {
			break
		}
		reply = regenerated
		result = CheckReply(reply, inbound, e.opts.MaxReplyLines, progress.OverallPercent)
	}

	if !result.Valid && NeedsFallback(result.Issues) {
		reply = BuildFallbackReply(state.Spin.Current, question.Text)
	}

	return CleanupReply(reply)
}

// buildBriefing assembles the planner briefing. The deterministic briefing
// is always available; the planner call may refine it and is allowed to
// fail.
func (e *Engine) buildBriefing(ctx context.Context, state *ConversationState, question Question, progress Progress) string {
	missing := state.Bant.MissingForStage(state.Spin.Current)
	base := fmt.Sprintf(
		"Estágio: %s. Progresso: %d%%. Falta descobrir: %s. Tom: %s. Próxima pergunta: %s",
		state.Spin.Current, progress.OverallPercent,
		strings.Join(missing, ", "), ToneProfile(state.Archetype.Detected), question.Text)
	if state.Lead.Name != "" {
		base += fmt.Sprintf(" Lead: %s.", state.Lead.Name)
	}
	if state.Cadence != nil && state.Cadence.IsFromCadence {
		base += fmt.Sprintf(" Contato veio de cadência (dia %d).", state.Cadence.CadenceDay)
		if state.Cadence.ExternalInstructions != "" {
			base += " Instruções da campanha: " + state.Cadence.ExternalInstructions
		}
	}

	if e.llm == nil {
		return base
	}

	system := "Você é o planejador de uma conversa de vendas consultiva. " +
		`Responda JSON: {"briefing": "instrução curta para o redator"}.`
	raw, err := e.llm.Complete(ctx, system, base, CompletionOptions{Temperature: 0.3, MaxTokens: 200, JSONMode: true})
	if err != nil {
		return base
	}
	var parsed struct {
		Briefing string `json:"briefing"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Briefing == "" {
		return base
	}
	return parsed.Briefing
}

// fixInstructions translate checker issues into writer guidance.
var fixInstructions = map[string]string{
	IssueSemPergunta:          "Termine com exatamente uma pergunta.",
	IssueMultiplasPerguntas:   "Faça apenas uma pergunta, não mais.",
	IssueRepetiuLead:          "Não repita as palavras do lead.",
	IssueMuitasLinhas:         "Responda em menos linhas.",
	IssuePerguntaPrematura:    "Não peça orçamento, e-mail ou proposta ainda.",
	IssueFraseIncompleta:      "Comece com uma frase completa.",
	IssueLinguagemCorporativa: "Evite jargão corporativo, escreva como uma pessoa.",
	IssueRespostaGenerica:     "Seja específico sobre o contexto do lead.",
}

func (e *Engine) callWriter(ctx context.Context, state *ConversationState, briefing, inbound string, issues []string) (string, error) {
	if e.llm == nil {
		return "", fmt.Errorf("no completion service configured")
	}

	var sb strings.Builder
	sb.WriteString("Você é um consultor comercial conversando por mensagem. ")
	sb.WriteString("Escreva a próxima resposta em português, curta, com exatamente uma pergunta. ")
	sb.WriteString("Briefing: ")
	sb.WriteString(briefing)
	for _, issue := range issues {
		if instruction, ok := fixInstructions[issue]; ok {
			sb.WriteString(" ")
			sb.WriteString(instruction)
		} else if strings.HasPrefix(issue, issueOpenerPrefix) {
			sb.WriteString(fmt.Sprintf(" Não comece a resposta com %q.", strings.TrimPrefix(issue, issueOpenerPrefix)))
		}
	}

	var user strings.Builder
	window, _ := e.contextWindow.Get(state.ContactID)
	for _, msg := range window {
		user.WriteString(msg.Role)
		user.WriteString(": ")
		user.WriteString(msg.Text)
		user.WriteString("\n")
	}
	user.WriteString("user: ")
	user.WriteString(inbound)

	reply, err := e.llm.Complete(ctx, sb.String(), user.String(), CompletionOptions{Temperature: 0.7, MaxTokens: 250})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (e *Engine) pushContext(contactID string, msg domain.Message) {
	window, _ := e.contextWindow.Get(contactID)
	window = append(window, msg)
	if len(window) > e.opts.ContextWindowSize {
		window = window[len(window)-e.opts.ContextWindowSize:]
	}
	e.contextWindow.Set(contactID, window)
}

func (e *Engine) specialResponse(state *ConversationState, stage, message string) *Response {
	progress := ComputeProgress(state.Spin, state.Bant)
	progress.ReadyForScheduling = false
	return &Response{
		Message:            message,
		Stage:              stage,
		SpinStage:          string(state.Spin.Current),
		Progress:           progress,
		ReadyForScheduling: false,
		BantSummary:        bantSummary(state.Bant),
		Archetype:          archetypeView(state.Archetype),
	}
}

func archetypeView(d *Detector) ArchetypeView {
	return ArchetypeView{
		Detected:   string(d.Detected),
		Key:        string(d.Detected),
		Confidence: d.Confidence,
		Signals:    append([]string(nil), d.Signals...),
	}
}

func bantSummary(ledger *Ledger) string {
	score := ledger.Score()
	return fmt.Sprintf("%d/%d campos coletados (%d%%)",
		len(score.Collected), len(FieldSpecs), score.Percent)
}

func fieldNames() []string {
	names := make([]string, 0, len(FieldSpecs))
	for _, spec := range FieldSpecs {
		names = append(names, spec.Name)
	}
	return names
}

func pickMessage(suggested, fallback string) string {
	if strings.TrimSpace(suggested) != "" {
		return suggested
	}
	return fallback
}
