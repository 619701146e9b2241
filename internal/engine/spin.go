package engine

import (
	"sort"
	"strings"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

// Question is one catalogue entry for a stage. BANTFields lists the ledger
// fields the question is meant to fill; a question whose fields are all
// already collected is skipped.
type Question struct {
	ID         string
	Text       string
	BANTFields []string
}

// stageRule declares the advance edge out of a stage: the minimum number of
// questions asked before the stage may advance, and the signal phrases that
// fire the transition.
type stageRule struct {
	MinTurns       int
	AdvanceSignals []string
}

// Advance and regress signal tables. Matching is case-insensitive substring
// search; the tables are the entire "intelligence".
var stageRules = map[domain.SPINStage]stageRule{
	domain.StageSituation: {
		MinTurns: 2,
		AdvanceSignals: []string{
			"difícil", "dificil", "problema", "complicado", "demora",
			"não consigo", "nao consigo", "trava", "sofro",
		},
	},
	domain.StageProblem: {
		MinTurns: 2,
		AdvanceSignals: []string{
			"perco", "perder", "perdendo", "atrapalha", "impacta",
			"prejudica", "deixo de", "custa caro",
		},
	},
	domain.StageImplication: {
		MinTurns: 1,
		AdvanceSignals: []string{
			"preciso resolver", "quero resolver", "ajudaria", "seria bom",
			"faria diferença", "faria diferenca", "mudaria",
		},
	},
	domain.StageNeedPayoff: {
		MinTurns: 1,
		AdvanceSignals: []string{
			"quanto custa", "valor", "preço", "preco", "orçamento",
			"orcamento", "como funciona", "quero contratar", "vamos fechar",
			"me manda",
		},
	},
	domain.StageClosing: {MinTurns: 1},
}

var (
	regressToSituation = []string{
		"não entendi nada", "nao entendi nada", "quem é você", "quem e voce",
		"do que se trata", "como assim", "que empresa é essa", "que empresa e essa",
	}
	regressToProblem = []string{
		"não é bem isso", "nao e bem isso", "o problema na verdade",
		"na verdade o problema", "voltando ao que eu disse",
	}
)

// questionCatalogue holds the fixed per-stage questions, in catalogue order.
var questionCatalogue = map[domain.SPINStage][]Question{
	domain.StageSituation: {
		{ID: "s_caminho_orcamento", Text: "Hoje, como os seus clientes costumam chegar até você: indicação, redes sociais ou outro caminho?", BANTFields: []string{FieldCaminhoOrcamento}},
		{ID: "s_presenca_digital", Text: "Como está a sua presença digital hoje, entre Instagram, site e portfólio online?", BANTFields: []string{FieldPresencaDigital}},
		{ID: "s_regiao", Text: "Em qual região você costuma atuar com os seus projetos?", BANTFields: []string{FieldRegiao}},
		{ID: "s_volume", Text: "Quantos projetos você costuma tocar por mês, em média?", BANTFields: []string{FieldVolume}},
	},
	domain.StageProblem: {
		{ID: "p_trava", Text: "O que mais te trava hoje na hora de apresentar ou fechar um projeto?", BANTFields: []string{FieldProblemaIdentificado}},
		{ID: "p_apresentacao", Text: "Você sente que a forma de apresentar os projetos deixa o cliente em dúvida na hora de fechar?", BANTFields: []string{FieldProblemaIdentificado}},
	},
	domain.StageImplication: {
		{ID: "i_impacto", Text: "Quando isso acontece, quanto você estima que deixa de ganhar por projeto?", BANTFields: []string{FieldImpactoReconhecido}},
		{ID: "i_urgencia", Text: "Isso é algo que você quer resolver agora ou dá pra esperar mais um tempo?", BANTFields: []string{FieldTimingUrgencia}},
	},
	domain.StageNeedPayoff: {
		{ID: "n_prazo", Text: "Se a gente resolvesse isso, em quanto tempo você gostaria de ver funcionando?", BANTFields: []string{FieldTimingPrazo}},
		{ID: "n_decisor", Text: "Essa decisão passa só por você ou tem mais alguém envolvido?", BANTFields: []string{FieldAuthorityDecisor}},
		{ID: "n_interesse", Text: "Faz sentido eu te mostrar como ficaria um orçamento pra isso?", BANTFields: []string{FieldBudgetInteresse}},
	},
	domain.StageClosing: {
		{ID: "c_agenda", Text: "Qual o melhor dia e horário pra gente marcar uma conversa com um especialista?"},
		{ID: "c_confirma", Text: "Posso reservar um horário ainda essa semana pra você?"},
	},
}

// fallbackSchedulingQuestion is returned when closing has no catalogue
// question left.
var fallbackSchedulingQuestion = Question{
	ID:   "c_fallback",
	Text: "Qual o melhor dia e horário pra gente conversar?",
}

// bantPriority ranks missing fields for question ordering. Higher wins.
var bantPriority = map[string]int{
	FieldCaminhoOrcamento:     10,
	FieldPresencaDigital:      9,
	FieldProblemaIdentificado: 8,
	FieldRegiao:               7,
	FieldVolume:               6,
	FieldImpactoReconhecido:   5,
	FieldTimingUrgencia:       4,
	FieldTimingPrazo:          3,
	FieldAuthorityDecisor:     2,
	FieldBudgetInteresse:      1,
}

// StageTransition records one stage change.
type StageTransition struct {
	From domain.SPINStage `json:"from"`
	To   domain.SPINStage `json:"to"`
	Turn int              `json:"turn"`
}

// AdvanceSignal is the result of a positive advance check.
type AdvanceSignal struct {
	Target  domain.SPINStage
	Signals []string
}

// RegressSignal is the result of a positive regress check.
type RegressSignal struct {
	Target  domain.SPINStage
	Signals []string
}

// StageMachine owns the current discovery stage and its bookkeeping.
type StageMachine struct {
	Current         domain.SPINStage                     `json:"currentStage"`
	QuestionsAsked  map[domain.SPINStage]map[string]bool `json:"questionsAskedByStage"`
	StageHistory    []StageTransition                    `json:"stageHistory"`
	SignalsDetected map[domain.SPINStage][]string        `json:"signalsDetectedByStage"`
}

// NewStageMachine starts at situation with empty bookkeeping.
func NewStageMachine() *StageMachine {
	return &StageMachine{
		Current:         domain.StageSituation,
		QuestionsAsked:  make(map[domain.SPINStage]map[string]bool),
		SignalsDetected: make(map[domain.SPINStage][]string),
	}
}

// QuestionsAskedInStage returns how many catalogue questions were asked in
// the given stage.
func (m *StageMachine) QuestionsAskedInStage(stage domain.SPINStage) int {
	return len(m.QuestionsAsked[stage])
}

// MarkAsked records that a question was asked in the current stage.
func (m *StageMachine) MarkAsked(questionID string) {
	if m.QuestionsAsked[m.Current] == nil {
		m.QuestionsAsked[m.Current] = make(map[string]bool)
	}
	m.QuestionsAsked[m.Current][questionID] = true
}

// CheckAdvance scans the message for advance signals on the current stage's
// outgoing edge. It fires only when the stage has been worked for its minimum
// number of questions.
func (m *StageMachine) CheckAdvance(text string) (AdvanceSignal, bool) {
	if m.Current == domain.StageClosing {
		return AdvanceSignal{}, false
	}

	rule := stageRules[m.Current]
	matched := matchSignals(text, rule.AdvanceSignals)
	if len(matched) == 0 {
		return AdvanceSignal{}, false
	}

	m.recordSignals(m.Current, matched)
	if m.QuestionsAskedInStage(m.Current)+1 < rule.MinTurns {
		return AdvanceSignal{}, false
	}

	return AdvanceSignal{Target: domain.NextStage(m.Current), Signals: matched}, true
}

// CheckRegress scans the message for resistance signals. backToSituation
// always regresses to situation; backToProblem regresses to problem only when
// the conversation is at implication or later. Callers dispatch advance
// first: when both fire in the same turn, advance wins.
func (m *StageMachine) CheckRegress(text string) (RegressSignal, bool) {
	if matched := matchSignals(text, regressToSituation); len(matched) > 0 && m.Current != domain.StageSituation {
		m.recordSignals(m.Current, matched)
		return RegressSignal{Target: domain.StageSituation, Signals: matched}, true
	}
	if matched := matchSignals(text, regressToProblem); len(matched) > 0 && domain.StageIndex(m.Current) >= 2 {
		m.recordSignals(m.Current, matched)
		return RegressSignal{Target: domain.StageProblem, Signals: matched}, true
	}
	return RegressSignal{}, false
}

// AdvanceToStage moves to the given stage, records the transition and resets
// the target stage's question counter.
func (m *StageMachine) AdvanceToStage(stage domain.SPINStage, turn int) {
	if !domain.IsValidStage(stage) || stage == m.Current {
		return
	}

	m.StageHistory = append(m.StageHistory, StageTransition{From: m.Current, To: stage, Turn: turn})
	logger.Base().Info("spin stage transition",
		zap.String("from", string(m.Current)),
		zap.String("to", string(stage)),
		zap.Int("turn", turn))

	m.Current = stage
	m.QuestionsAsked[stage] = make(map[string]bool)
}

// DetermineNextQuestion picks the next question for the current stage. It
// skips questions already asked and questions whose tracked BANT fields are
// all collected; when a stage is exhausted it auto-advances and tries the
// next stage. At closing with nothing left it falls back to the generic
// scheduling question. Candidates are ordered by the priority of their
// highest-ranked missing field.
func (m *StageMachine) DetermineNextQuestion(ledger *Ledger, turn int) Question {
	for {
		candidates := m.candidateQuestions(ledger)
		if len(candidates) > 0 {
			sort.SliceStable(candidates, func(i, j int) bool {
				return questionPriority(candidates[i], ledger) > questionPriority(candidates[j], ledger)
			})
			return candidates[0]
		}

		if m.Current == domain.StageClosing {
			return fallbackSchedulingQuestion
		}
		m.AdvanceToStage(domain.NextStage(m.Current), turn)
	}
}

func (m *StageMachine) candidateQuestions(ledger *Ledger) []Question {
	asked := m.QuestionsAsked[m.Current]
	var out []Question
	for _, q := range questionCatalogue[m.Current] {
		if asked[q.ID] {
			continue
		}
		if len(q.BANTFields) > 0 && allCollected(q.BANTFields, ledger) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func allCollected(fields []string, ledger *Ledger) bool {
	for _, f := range fields {
		if !ledger.IsSet(f) {
			return false
		}
	}
	return true
}

func questionPriority(q Question, ledger *Ledger) int {
	best := 0
	for _, f := range q.BANTFields {
		if ledger.IsSet(f) {
			continue
		}
		if p := bantPriority[f]; p > best {
			best = p
		}
	}
	return best
}

func (m *StageMachine) recordSignals(stage domain.SPINStage, signals []string) {
	seen := make(map[string]bool, len(m.SignalsDetected[stage]))
	for _, s := range m.SignalsDetected[stage] {
		seen[s] = true
	}
	for _, s := range signals {
		if !seen[s] {
			m.SignalsDetected[stage] = append(m.SignalsDetected[stage], s)
			seen[s] = true
		}
	}
}

func matchSignals(text string, signals []string) []string {
	lowered := strings.ToLower(text)
	var matched []string
	for _, s := range signals {
		if strings.Contains(lowered, s) {
			matched = append(matched, s)
		}
	}
	return matched
}

// QuestionsInStage returns the catalogue size of a stage, used by the
// progress calculator.
func QuestionsInStage(stage domain.SPINStage) int {
	return len(questionCatalogue[stage])
}
