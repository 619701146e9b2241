package engine

import (
	"math"
	"strings"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

// archetypeTriggers maps each persona to its keyword triggers. Scoring is
// 10 points per trigger found as a substring of the lowercased message.
var archetypeTriggers = map[domain.Archetype][]string{
	domain.ArchetypeAnalitico: {
		"dados", "números", "numeros", "estatística", "estatistica",
		"comparar", "comparativo", "análise", "analise", "percentual",
	},
	domain.ArchetypePragmatico: {
		"direto ao ponto", "objetivo", "resumindo", "sem enrolação",
		"sem enrolacao", "resolve", "na prática", "na pratica",
	},
	domain.ArchetypeExpressivo: {
		"adorei", "incrível", "incrivel", "demais", "sensacional",
		"amei", "kkk", "haha", "animado",
	},
	domain.ArchetypeAfetivo: {
		"obrigado", "obrigada", "querido", "querida", "carinho",
		"abraço", "abraco", "família", "familia", "tudo bem com você",
	},
	domain.ArchetypeCetico: {
		"não acredito", "nao acredito", "duvido", "será que", "sera que",
		"prova", "garantia", "desconfiado", "golpe", "promessa",
	},
	domain.ArchetypeApressado: {
		"rápido", "rapido", "sem tempo", "correria", "urgente",
		"agora", "pra ontem", "depois eu vejo",
	},
	domain.ArchetypeDetalhista: {
		"como exatamente", "passo a passo", "especificação", "especificacao",
		"explica melhor", "quais etapas", "detalhadamente", "por completo",
	},
	domain.ArchetypeVisionario: {
		"futuro", "crescer", "expandir", "visão", "visao",
		"inovação", "inovacao", "escala", "sonho", "longo prazo",
	},
}

// toneProfiles maps each persona to the tone instruction handed to the
// writer. Default keeps a neutral consultative tone.
var toneProfiles = map[domain.Archetype]string{
	domain.ArchetypeDefault:    "Tom consultivo e neutro, frases curtas.",
	domain.ArchetypeAnalitico:  "Traga números e fatos concretos, evite superlativos.",
	domain.ArchetypePragmatico: "Seja direto, uma ideia por frase, sem rodeios.",
	domain.ArchetypeExpressivo: "Tom caloroso e entusiasmado, acompanhe a energia do lead.",
	domain.ArchetypeAfetivo:    "Tom próximo e acolhedor, demonstre interesse genuíno.",
	domain.ArchetypeCetico:     "Traga provas e exemplos reais, nunca prometa demais.",
	domain.ArchetypeApressado:  "Mensagens curtas, vá direto ao próximo passo.",
	domain.ArchetypeDetalhista: "Explique o como, com precisão e sem pular etapas.",
	domain.ArchetypeVisionario: "Conecte a conversa ao crescimento e ao futuro do negócio.",
}

// ToneProfile returns the tone instruction for a persona.
func ToneProfile(a domain.Archetype) string {
	if tone, ok := toneProfiles[a]; ok {
		return tone
	}
	return toneProfiles[domain.ArchetypeDefault]
}

// legacyArchetypeNames maps names used by earlier versions of the agent
// templates to the canonical persona keys. The mapping is finite and
// explicit; unknown names resolve to nothing.
var legacyArchetypeNames = map[string]domain.Archetype{
	"analítico":      domain.ArchetypeAnalitico,
	"metódico":       domain.ArchetypeAnalitico,
	"pragmático":     domain.ArchetypePragmatico,
	"dominante":      domain.ArchetypePragmatico,
	"influenciador":  domain.ArchetypeExpressivo,
	"comunicativo":   domain.ArchetypeExpressivo,
	"estável":        domain.ArchetypeAfetivo,
	"acolhedor":      domain.ArchetypeAfetivo,
	"questionador":   domain.ArchetypeCetico,
	"desconfiado":    domain.ArchetypeCetico,
	"imediatista":    domain.ArchetypeApressado,
	"minucioso":      domain.ArchetypeDetalhista,
	"perfeccionista": domain.ArchetypeDetalhista,
	"sonhador":       domain.ArchetypeVisionario,
	"empreendedor":   domain.ArchetypeVisionario,
	"padrão":         domain.ArchetypeDefault,
}

// CanonicalArchetype resolves a persona name, legacy or canonical, to its
// canonical key.
func CanonicalArchetype(name string) (domain.Archetype, bool) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if a := domain.Archetype(lowered); domain.IsValidArchetype(a) {
		return a, true
	}
	if a, ok := legacyArchetypeNames[lowered]; ok {
		return a, true
	}
	return domain.ArchetypeDefault, false
}

const (
	conciseThreshold  = 20
	minDecayedConf    = 30
	confidencePerUnit = 5
	signalWindow      = 3
)

// fillerPhrases are short acknowledgements that carry no persona signal.
var fillerPhrases = map[string]bool{
	"ok": true, "sim": true, "não": true, "nao": true, "certo": true,
	"blz": true, "beleza": true, "entendi": true, "uhum": true, "aham": true,
	"claro": true, "isso": true, "pode ser": true, "ta": true, "tá": true,
	"ta bom": true, "tá bom": true, "top": true, "legal": true, "show": true,
}

// DetectionEvent is one entry of the detector history.
type DetectionEvent struct {
	Turn     int              `json:"turn"`
	Detected domain.Archetype `json:"detected"`
	Score    int              `json:"score"`
	Signals  []string         `json:"signals"`
}

// DetectionResult is what a Detect call resolves to.
type DetectionResult struct {
	Archetype  domain.Archetype `json:"detected"`
	Confidence int              `json:"confidence"`
	Signals    []string         `json:"signals"`
}

// Detector infers which persona best matches the lead's linguistic style.
// It keeps a recency-weighted history so one loud message does not flip the
// persona, and supports a manual lock that disables detection entirely.
type Detector struct {
	Detected       domain.Archetype `json:"detected"`
	Confidence     int              `json:"confidence"`
	Signals        []string         `json:"signals"`
	History        []DetectionEvent `json:"history"`
	ManuallyLocked bool             `json:"manuallyLocked"`
}

// NewDetector starts at the default persona with zero confidence.
func NewDetector() *Detector {
	return &Detector{Detected: domain.ArchetypeDefault}
}

// Detect updates the detector with one inbound message and returns the
// resolved persona.
func (d *Detector) Detect(text string, turn int) DetectionResult {
	if d.ManuallyLocked {
		return d.result()
	}

	// Short acknowledgements carry no new signal; hold the previous persona
	// steady instead of decaying it.
	if d.isConcise(text) && d.Detected != domain.ArchetypeDefault {
		return d.result()
	}

	bestArchetype, bestScore, bestSignals := scoreMessage(text)

	if bestScore == 0 {
		if len(d.History) > 0 {
			d.Confidence = int(math.Max(float64(minDecayedConf), float64(d.Confidence-10)))
			return d.result()
		}
		return d.result()
	}

	d.History = append(d.History, DetectionEvent{
		Turn:     turn,
		Detected: bestArchetype,
		Score:    bestScore,
		Signals:  bestSignals,
	})

	d.resolveDominant(turn)
	logger.Base().Debug("archetype detected",
		zap.String("archetype", string(d.Detected)),
		zap.Int("confidence", d.Confidence),
		zap.Int("turn", turn))
	return d.result()
}

// SetManual pins the persona and locks out automatic detection. Confidence
// is 100 for any real persona and 0 for default.
func (d *Detector) SetManual(a domain.Archetype) {
	if !domain.IsValidArchetype(a) {
		return
	}
	d.Detected = a
	d.Signals = nil
	d.ManuallyLocked = true
	if a == domain.ArchetypeDefault {
		d.Confidence = 0
	} else {
		d.Confidence = 100
	}
}

// Unlock re-enables automatic detection.
func (d *Detector) Unlock() {
	d.ManuallyLocked = false
}

func (d *Detector) result() DetectionResult {
	return DetectionResult{Archetype: d.Detected, Confidence: d.Confidence, Signals: d.Signals}
}

func (d *Detector) isConcise(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if len([]rune(trimmed)) < conciseThreshold {
		return true
	}
	return fillerPhrases[trimmed]
}

// scoreMessage computes raw persona scores for one message and returns the
// best persona with its matched triggers. Ties resolve in fixed persona
// order.
func scoreMessage(text string) (domain.Archetype, int, []string) {
	lowered := strings.ToLower(text)

	best := domain.ArchetypeDefault
	bestScore := 0
	var bestSignals []string

	for _, a := range domain.Archetypes {
		var matched []string
		for _, trigger := range archetypeTriggers[a] {
			if strings.Contains(lowered, trigger) {
				matched = append(matched, trigger)
			}
		}
		score := 10 * len(matched)
		if score > bestScore {
			best = a
			bestScore = score
			bestSignals = matched
		}
	}
	return best, bestScore, bestSignals
}

// resolveDominant aggregates the history with recency weighting and settles
// on one persona. weight = max(0.2, 1 - 0.2*(currentTurn - eventTurn)).
func (d *Detector) resolveDominant(currentTurn int) {
	weighted := make(map[domain.Archetype]float64)
	for _, ev := range d.History {
		weight := math.Max(0.2, 1-0.2*float64(currentTurn-ev.Turn))
		weighted[ev.Detected] += weight * float64(ev.Score)
	}

	winner := domain.ArchetypeDefault
	winnerSum := 0.0
	for _, a := range domain.Archetypes {
		if sum, ok := weighted[a]; ok && sum > winnerSum {
			winner = a
			winnerSum = sum
		}
	}

	d.Detected = winner
	d.Confidence = int(math.Min(100, math.Round(winnerSum*confidencePerUnit)))
	d.Signals = d.recentSignals(winner, currentTurn)
}

// recentSignals unions the winner's matched triggers from events within the
// last signalWindow turns, deduplicated, in first-seen order.
func (d *Detector) recentSignals(winner domain.Archetype, currentTurn int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range d.History {
		if ev.Detected != winner || currentTurn-ev.Turn > signalWindow {
			continue
		}
		for _, s := range ev.Signals {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
