package engine

import (
	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

// BANT field names. Each field belongs to exactly one SPIN stage, which is
// where the question that fills it is normally asked. The stage association
// is informational: Merge accepts any field in any stage.
const (
	FieldCaminhoOrcamento     = "need_caminho_orcamento"
	FieldPresencaDigital      = "need_presenca_digital"
	FieldRegiao               = "need_regiao"
	FieldVolume               = "need_volume"
	FieldProblemaIdentificado = "need_problema_identificado"
	FieldImpactoReconhecido   = "need_impacto_reconhecido"
	FieldTimingUrgencia       = "timing_urgencia"
	FieldTimingPrazo          = "timing_prazo"
	FieldAuthorityDecisor     = "authority_decisor"
	FieldBudgetInteresse      = "budget_interesse"
)

// FieldSpec declares one qualification field: its scoring weight and the SPIN
// stage that originates it.
type FieldSpec struct {
	Name   string
	Weight int
	Stage  domain.SPINStage
}

// FieldSpecs is the fixed qualification field set. The weights sum to 130;
// Score always normalizes against the real sum.
var FieldSpecs = []FieldSpec{
	{FieldCaminhoOrcamento, 20, domain.StageSituation},
	{FieldPresencaDigital, 20, domain.StageSituation},
	{FieldRegiao, 10, domain.StageSituation},
	{FieldVolume, 10, domain.StageSituation},
	{FieldProblemaIdentificado, 15, domain.StageProblem},
	{FieldImpactoReconhecido, 10, domain.StageImplication},
	{FieldTimingUrgencia, 10, domain.StageImplication},
	{FieldTimingPrazo, 15, domain.StageNeedPayoff},
	{FieldAuthorityDecisor, 10, domain.StageNeedPayoff},
	{FieldBudgetInteresse, 10, domain.StageNeedPayoff},
}

func totalWeight() int {
	total := 0
	for _, spec := range FieldSpecs {
		total += spec.Weight
	}
	return total
}

// Ledger tracks the qualification data captured so far. Writes are
// first-write-wins: once a field is non-empty it never changes.
type Ledger struct {
	values map[string]string
}

// NewLedger creates an empty ledger with all fields unset.
func NewLedger() *Ledger {
	return &Ledger{values: make(map[string]string)}
}

// BANTScore is the result of scoring the ledger.
type BANTScore struct {
	Percent   int      `json:"percent"`
	Collected []string `json:"collected"`
	Missing   []string `json:"missing"`
}

// Merge applies extracted values to the ledger. Only known fields with
// non-empty values are considered, and only fields still unset are written.
// Returns the names of the fields captured by this call, in spec order.
func (l *Ledger) Merge(contactID string, extracted map[string]string) []string {
	if len(extracted) == 0 {
		return nil
	}

	var captured []string
	for _, spec := range FieldSpecs {
		value, ok := extracted[spec.Name]
		if !ok || value == "" {
			continue
		}
		if l.values[spec.Name] != "" {
			continue
		}
		l.values[spec.Name] = value
		captured = append(captured, spec.Name)
		logger.Base().Info("bant field captured",
			zap.String("contact_id", contactID),
			zap.String("field", spec.Name),
			zap.String("value", value))
	}
	return captured
}

// Get returns the current value for a field, empty when unset.
func (l *Ledger) Get(name string) string {
	return l.values[name]
}

// IsSet reports whether the field has been captured.
func (l *Ledger) IsSet(name string) bool {
	return l.values[name] != ""
}

// Values returns a copy of the captured field map.
func (l *Ledger) Values() map[string]string {
	out := make(map[string]string, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

// SetAll replaces the ledger contents. Used by snapshot restore only; normal
// capture goes through Merge.
func (l *Ledger) SetAll(values map[string]string) {
	l.values = make(map[string]string, len(values))
	for k, v := range values {
		if v != "" {
			l.values[k] = v
		}
	}
}

// MissingForStage returns the fields originating in the given stage that are
// still unset. The briefing generator uses this to know what remains to ask.
func (l *Ledger) MissingForStage(stage domain.SPINStage) []string {
	var missing []string
	for _, spec := range FieldSpecs {
		if spec.Stage == stage && !l.IsSet(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// Score computes the weighted completion percentage along with the collected
// and missing field name lists.
func (l *Ledger) Score() BANTScore {
	collectedWeight := 0
	var collected, missing []string

	for _, spec := range FieldSpecs {
		if l.IsSet(spec.Name) {
			collectedWeight += spec.Weight
			collected = append(collected, spec.Name)
		} else {
			missing = append(missing, spec.Name)
		}
	}

	percent := 100 * collectedWeight / totalWeight()
	return BANTScore{Percent: percent, Collected: collected, Missing: missing}
}
