package engine

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
)

// Issue codes produced by the reply checker. The regeneration prompt
// translates these into fix instructions for the writer.
const (
	IssueSemPergunta          = "sem_pergunta"
	IssueMultiplasPerguntas   = "multiplas_perguntas"
	IssueRepetiuLead          = "repetiu_lead"
	IssueMuitasLinhas         = "muitas_linhas"
	IssuePerguntaPrematura    = "pergunta_prematura"
	IssueFraseIncompleta      = "frase_incompleta"
	IssueLinguagemCorporativa = "linguagem_corporativa"
	IssueRespostaGenerica     = "resposta_generica"

	issueOpenerPrefix = "comeca_com_"
)

// forbiddenOpeners are acknowledgement fillers a reply must not start with.
var forbiddenOpeners = []string{
	"legal", "entendi", "perfeito", "ótimo", "otimo", "show",
	"bacana", "certo", "massa", "top", "maravilha", "entendido",
}

// brokenOpenerPatterns catch syntactically dangling reply openers.
var brokenOpenerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(e|mas|então|entao|que|pois|porém|porem)\s*,`),
	regexp.MustCompile(`(?i)^\s*(sendo que|até porque|ate porque|já que|ja que)\b`),
	regexp.MustCompile(`(?i)^\s*(ou seja|aliás|alias)\s*,`),
}

// corporateJargonPatterns catch generic corporate speak.
var corporateJargonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)solu[çc][õo]es\s+personalizadas`),
	regexp.MustCompile(`(?i)agregar\s+valor`),
	regexp.MustCompile(`(?i)otimizar\s+(os\s+|seus\s+)?processos`),
	regexp.MustCompile(`(?i)alavancar`),
	regexp.MustCompile(`(?i)sinergia`),
	regexp.MustCompile(`(?i)entendo\s+(perfeitamente\s+)?(a\s+)?sua\s+dor`),
	regexp.MustCompile(`(?i)estamos\s+[àa]\s+disposi[çc][ãa]o`),
}

// prematureAskPatterns catch budget/quote/email solicitation before the
// conversation has earned it.
var prematureAskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(me\s+passa|pode\s+(me\s+)?enviar|qual\s+(o\s+)?seu)\s.*e-?mail`),
	regexp.MustCompile(`(?i)qual\s+(o\s+)?(seu\s+)?(or[çc]amento|budget)\s+dispon[íi]vel`),
	regexp.MustCompile(`(?i)quanto\s+(voc[êe]\s+)?(pretende|pode|quer)\s+investir`),
	regexp.MustCompile(`(?i)(te\s+mando|envio)\s+(a\s+)?proposta`),
}

// genericReplyPattern flags the classic empty offer of help when the reply
// carries no domain-specific term.
var (
	genericReplyPattern = regexp.MustCompile(`(?i)(podemos|posso|vamos)\s+te\s+ajudar`)
	domainTerms         = []string{
		"projeto", "render", "imagem", "arquitetura", "obra",
		"orçamento", "orcamento", "cliente", "3d", "apresenta",
	}
)

const (
	echoWindowWords  = 5
	echoMinChars     = 15
	progressGateAsk  = 50
	maxRegenAttempts = 2
	DefaultMaxLines  = 4
)

// fallbackTemplates hold the deterministic reply shells per stage; %q is the
// planned question, spliced with a single trailing question mark.
var fallbackTemplates = map[domain.SPINStage][]string{
	domain.StageSituation: {
		"Pra eu entender melhor o seu cenário: %s?",
		"Me conta uma coisa: %s?",
	},
	domain.StageProblem: {
		"Quero entender o que está pesando aí. %s?",
		"Me ajuda a enxergar o ponto principal: %s?",
	},
	domain.StageImplication: {
		"Pensando no efeito disso no seu dia a dia: %s?",
		"Só pra dimensionar o tamanho disso: %s?",
	},
	domain.StageNeedPayoff: {
		"Olhando pra frente: %s?",
		"Pra gente avançar do jeito certo: %s?",
	},
	domain.StageClosing: {
		"Vamos dar o próximo passo. %s?",
		"Pra fechar bem essa conversa: %s?",
	},
}

// ValidationResult is the checker verdict for one generated reply.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// CheckReply lints a generated reply against the structural rules. Rules run
// in fixed order and every violation is collected.
func CheckReply(reply, inbound string, maxLines, overallPercent int) ValidationResult {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	var issues []string

	// 1. Exactly one question per reply.
	switch questions := strings.Count(reply, "?"); {
	case questions == 0:
		issues = append(issues, IssueSemPergunta)
	case questions > 1:
		issues = append(issues, IssueMultiplasPerguntas)
	}

	// 2. Forbidden opener.
	if opener := forbiddenOpenerOf(reply); opener != "" {
		issues = append(issues, issueOpenerPrefix+opener)
	}

	// 3. Echoing the lead back.
	if echoesInbound(reply, inbound) {
		issues = append(issues, IssueRepetiuLead)
	}

	// 4. Too many lines.
	if countNonBlankLines(reply) > maxLines+1 {
		issues = append(issues, IssueMuitasLinhas)
	}

	// 5. Premature budget/quote/email ask.
	if overallPercent < progressGateAsk && matchesAny(reply, prematureAskPatterns) {
		issues = append(issues, IssuePerguntaPrematura)
	}

	// 6. Dangling opener.
	if matchesAny(reply, brokenOpenerPatterns) {
		issues = append(issues, IssueFraseIncompleta)
	}

	// 7. Corporate jargon.
	if matchesAny(reply, corporateJargonPatterns) {
		issues = append(issues, IssueLinguagemCorporativa)
	}

	// 8. Generic offer with no domain term.
	if genericReplyPattern.MatchString(reply) && !containsDomainTerm(reply) {
		issues = append(issues, IssueRespostaGenerica)
	}

	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// NeedsFallback reports whether the residual issues require the deterministic
// fallback after regeneration attempts are exhausted.
func NeedsFallback(issues []string) bool {
	for _, issue := range issues {
		if issue == IssueFraseIncompleta || issue == IssueLinguagemCorporativa {
			return true
		}
	}
	return false
}

// BuildFallbackReply splices the planned question into one of the stage's
// fixed templates. The trailing question mark of the question is stripped
// first so the template appends exactly one.
func BuildFallbackReply(stage domain.SPINStage, questionText string) string {
	templates := fallbackTemplates[stage]
	if len(templates) == 0 {
		templates = fallbackTemplates[domain.StageSituation]
	}

	question := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(questionText), "?"))
	template := templates[len([]rune(question))%len(templates)]
	return strings.Replace(template, "%s", question, 1)
}

// CleanupReply applies the two idempotent text-cleanup passes: strip any
// residual forbidden opener, strip a broken-opener prefix, and recapitalize
// the first letter.
func CleanupReply(reply string) string {
	out := strings.TrimSpace(reply)

	if opener := forbiddenOpenerOf(out); opener != "" {
		rest := strings.TrimSpace(out[len(firstToken(out)):])
		rest = strings.TrimLeft(rest, ",.!;: ")
		if rest != "" {
			out = rest
		}
	}

	for _, pattern := range brokenOpenerPatterns {
		if loc := pattern.FindStringIndex(out); loc != nil && loc[0] == 0 {
			rest := strings.TrimSpace(out[loc[1]:])
			if rest != "" {
				out = rest
			}
			break
		}
	}

	return capitalizeFirst(out)
}

func forbiddenOpenerOf(reply string) string {
	token := strings.ToLower(firstToken(reply))
	if token == "" {
		return ""
	}
	for _, banned := range forbiddenOpeners {
		if token == banned {
			return banned
		}
	}
	return ""
}

func firstToken(text string) string {
	trimmed := strings.TrimSpace(text)
	end := len(trimmed)
	for i, r := range trimmed {
		if unicode.IsSpace(r) || r == ',' || r == '.' || r == '!' || r == ';' || r == ':' || r == '?' {
			end = i
			break
		}
	}
	return trimmed[:end]
}

// echoesInbound reports whether any 5-word contiguous sequence longer than
// 15 characters from the inbound message appears verbatim in the reply.
func echoesInbound(reply, inbound string) bool {
	words := strings.Fields(inbound)
	if len(words) < echoWindowWords {
		return false
	}
	for i := 0; i+echoWindowWords <= len(words); i++ {
		window := strings.Join(words[i:i+echoWindowWords], " ")
		if len(window) > echoMinChars && strings.Contains(reply, window) {
			return true
		}
	}
	return false
}

func countNonBlankLines(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func containsDomainTerm(text string) bool {
	lowered := strings.ToLower(text)
	for _, term := range domainTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func capitalizeFirst(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
