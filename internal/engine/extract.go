package engine

import (
	"regexp"
	"strings"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
)

// Deterministic extraction runs before the completion-service analysis on
// every turn, so obvious qualification facts land in the ledger even when
// the external analysis call fails or returns nothing.

type keywordRule struct {
	Field    string
	Value    string // captured value; empty means use the matched keyword
	Keywords []string
}

var extractionRules = []keywordRule{
	{Field: FieldCaminhoOrcamento, Value: "indicacao", Keywords: []string{"indicação", "indicacao", "boca a boca", "me indicam"}},
	{Field: FieldCaminhoOrcamento, Value: "digital", Keywords: []string{"vem do instagram", "pelo instagram", "pelo site", "pelo google", "anúncio", "anuncio", "tráfego pago", "trafego pago"}},
	{Field: FieldPresencaDigital, Value: "ativa", Keywords: []string{"tenho instagram", "tenho site", "meu instagram", "meu site", "meu portfólio", "meu portfolio", "redes sociais"}},
	{Field: FieldPresencaDigital, Value: "fraca", Keywords: []string{"não tenho site", "nao tenho site", "não posto", "nao posto", "parado o instagram"}},
	{Field: FieldProblemaIdentificado, Value: "apresentacao", Keywords: []string{"não consigo mostrar", "nao consigo mostrar", "cliente não entende", "cliente nao entende", "dificuldade de apresentar", "perco cliente", "demora pra fechar", "não fecho", "nao fecho"}},
	{Field: FieldImpactoReconhecido, Value: "reconhecido", Keywords: []string{"deixo de ganhar", "prejuízo", "prejuizo", "perco dinheiro", "perco tempo", "me custa"}},
	{Field: FieldTimingUrgencia, Value: "alta", Keywords: []string{"urgente", "pra ontem", "o quanto antes", "essa semana mesmo", "preciso agora"}},
	{Field: FieldTimingUrgencia, Value: "baixa", Keywords: []string{"sem pressa", "mais pra frente", "ano que vem", "não é urgente", "nao e urgente"}},
	{Field: FieldAuthorityDecisor, Value: "lead", Keywords: []string{"eu decido", "sou eu que decido", "decisão é minha", "decisao e minha", "sou o dono", "sou a dona"}},
	{Field: FieldAuthorityDecisor, Value: "compartilhada", Keywords: []string{"meu sócio", "meu socio", "minha sócia", "minha socia", "decidimos juntos", "preciso consultar"}},
	{Field: FieldBudgetInteresse, Value: "interessado", Keywords: []string{"quanto custa", "qual o valor", "quero um orçamento", "quero um orcamento", "me passa o preço", "me passa o preco"}},
}

var (
	regiaoPattern    = regexp.MustCompile(`(?i)região\s+(?:de\s+|do\s+|da\s+)?([\p{L}][\p{L} ]{1,40})`)
	regiaoAltPattern = regexp.MustCompile(`(?i)\b(?:atendo|atuo|trabalho)\s+em\s+([\p{L}][\p{L} ]{1,40})`)
	volumePattern    = regexp.MustCompile(`(?i)(\d{1,4})\s*(?:projetos?|obras?|clientes?|trabalhos?)\s*(?:por|\/|ao)?\s*(?:mês|mes|m[êe]s)`)
	prazoPattern     = regexp.MustCompile(`(?i)\b(?:em|até|ate|daqui)\s+(\d{1,2}\s*(?:dias?|semanas?|meses|m[êe]s))`)

	leadNamePattern    = regexp.MustCompile(`(?i)\bmeu nome é\s+([\p{L}][\p{L} ]{1,40})`)
	leadNameAlt        = regexp.MustCompile(`(?i)\bme chamo\s+([\p{L}][\p{L} ]{1,40})`)
	leadCompanyPattern = regexp.MustCompile(`(?i)\b(?:minha empresa|meu escritório|meu escritorio|meu estúdio|meu estudio)(?:\s+(?:é|e|se chama))?\s+([\p{L}\d][\p{L}\d .&-]{1,40})`)
)

// ExtractBANT runs the keyword and pattern tables against one inbound
// message and returns the partial field map for a ledger merge.
func ExtractBANT(text string) map[string]string {
	lowered := strings.ToLower(text)
	extracted := make(map[string]string)

	for _, rule := range extractionRules {
		if extracted[rule.Field] != "" {
			continue
		}
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, keyword) {
				extracted[rule.Field] = rule.Value
				break
			}
		}
	}

	if m := regiaoPattern.FindStringSubmatch(text); m != nil {
		extracted[FieldRegiao] = strings.TrimSpace(m[1])
	} else if m := regiaoAltPattern.FindStringSubmatch(text); m != nil {
		extracted[FieldRegiao] = strings.TrimSpace(m[1])
	}

	if m := volumePattern.FindStringSubmatch(text); m != nil {
		extracted[FieldVolume] = m[1] + " por mês"
	}

	if m := prazoPattern.FindStringSubmatch(text); m != nil {
		extracted[FieldTimingPrazo] = strings.TrimSpace(m[1])
	}

	return extracted
}

// ExtractLeadProfile captures lead facts opportunistically. Existing profile
// fields are never overwritten.
func ExtractLeadProfile(text string, profile *domain.LeadProfile) {
	if profile.Name == "" {
		if m := leadNamePattern.FindStringSubmatch(text); m != nil {
			profile.Name = strings.TrimSpace(m[1])
		} else if m := leadNameAlt.FindStringSubmatch(text); m != nil {
			profile.Name = strings.TrimSpace(m[1])
		}
	}
	if profile.Company == "" {
		if m := leadCompanyPattern.FindStringSubmatch(text); m != nil {
			profile.Company = strings.TrimSpace(m[1])
		}
	}
}
