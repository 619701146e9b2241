package engine

import (
	"strings"
	"testing"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReplyValid(t *testing.T) {
	result := CheckReply(
		"Hoje seus clientes chegam mais por indicação ou pelas redes?",
		"Oi, tudo bem", DefaultMaxLines, 0)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestCheckReplyMissingQuestion(t *testing.T) {
	result := CheckReply("Vamos seguir com o projeto.", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueSemPergunta)
}

func TestCheckReplyMultipleQuestions(t *testing.T) {
	result := CheckReply("Tudo bem? Podemos falar do projeto?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueMultiplasPerguntas)
}

func TestCheckReplyForbiddenOpener(t *testing.T) {
	result := CheckReply("Legal, e como ficam os seus projetos?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, issueOpenerPrefix+"legal")

	result = CheckReply("Entendi. E qual a sua região?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, issueOpenerPrefix+"entendi")
}

func TestCheckReplyEchoesLead(t *testing.T) {
	inbound := "eu perco muito tempo refazendo as imagens do projeto"
	reply := "Então você perco muito tempo refazendo as imagens, certo?"

	result := CheckReply(reply, inbound, DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueRepetiuLead)
}

func TestCheckReplyShortInboundNeverEchoes(t *testing.T) {
	result := CheckReply("Como chegam os seus clientes hoje?", "oi td bem", DefaultMaxLines, 0)
	assert.NotContains(t, result.Issues, IssueRepetiuLead)
}

func TestCheckReplyTooManyLines(t *testing.T) {
	reply := strings.Join([]string{
		"Primeira linha do texto",
		"Segunda linha do texto",
		"Terceira linha do texto",
		"Quarta linha do texto",
		"Quinta linha do texto",
		"Como estão os seus projetos?",
	}, "\n")

	result := CheckReply(reply, "oi", 4, 0)
	assert.Contains(t, result.Issues, IssueMuitasLinhas)

	// One line over the limit is tolerated.
	result = CheckReply(strings.Join(strings.Split(reply, "\n")[1:], "\n"), "oi", 4, 0)
	assert.NotContains(t, result.Issues, IssueMuitasLinhas)
}

func TestCheckReplyPrematureAskGatedByProgress(t *testing.T) {
	reply := "Quanto você pretende investir nesse projeto?"

	result := CheckReply(reply, "oi", DefaultMaxLines, 30)
	assert.Contains(t, result.Issues, IssuePerguntaPrematura)

	result = CheckReply(reply, "oi", DefaultMaxLines, 60)
	assert.NotContains(t, result.Issues, IssuePerguntaPrematura)
}

func TestCheckReplyBrokenOpener(t *testing.T) {
	result := CheckReply("E, sobre o que falamos antes?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueFraseIncompleta)

	result = CheckReply("Sendo que o prazo aperta, como fica o projeto?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueFraseIncompleta)
}

func TestCheckReplyCorporateJargon(t *testing.T) {
	result := CheckReply("Oferecemos soluções personalizadas, faz sentido pra você?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueLinguagemCorporativa)
}

func TestCheckReplyGenericOffer(t *testing.T) {
	result := CheckReply("Podemos te ajudar com isso, combinado?", "oi", DefaultMaxLines, 0)
	assert.Contains(t, result.Issues, IssueRespostaGenerica)

	// A domain term rescues the same construction.
	result = CheckReply("Podemos te ajudar com o seu projeto, combinado?", "oi", DefaultMaxLines, 0)
	assert.NotContains(t, result.Issues, IssueRespostaGenerica)
}

func TestCheckReplyCollectsAllIssues(t *testing.T) {
	result := CheckReply("Legal, sendo que a gente faz de tudo.", "oi", DefaultMaxLines, 0)

	assert.False(t, result.Valid)
	assert.Contains(t, result.Issues, IssueSemPergunta)
	assert.Contains(t, result.Issues, issueOpenerPrefix+"legal")
}

func TestNeedsFallback(t *testing.T) {
	assert.True(t, NeedsFallback([]string{IssueFraseIncompleta}))
	assert.True(t, NeedsFallback([]string{IssueSemPergunta, IssueLinguagemCorporativa}))
	assert.False(t, NeedsFallback([]string{IssueSemPergunta, IssueMuitasLinhas}))
	assert.False(t, NeedsFallback(nil))
}

func TestBuildFallbackReplyHasExactlyOneQuestion(t *testing.T) {
	for _, stage := range domain.StageOrder {
		for _, q := range questionCatalogue[stage] {
			reply := BuildFallbackReply(stage, q.Text)
			assert.Equal(t, 1, strings.Count(reply, "?"), "stage %s question %s", stage, q.ID)
			assert.Contains(t, reply, strings.TrimSuffix(q.Text, "?"))
		}
	}
}

func TestBuildFallbackReplyUnknownStage(t *testing.T) {
	reply := BuildFallbackReply(domain.SPINStage("inexistente"), "Qual a sua região?")
	require.NotEmpty(t, reply)
	assert.Equal(t, 1, strings.Count(reply, "?"))
}

func TestCleanupReplyStripsForbiddenOpener(t *testing.T) {
	out := CleanupReply("Legal, vamos falar do seu projeto?")
	assert.Equal(t, "Vamos falar do seu projeto?", out)
}

func TestCleanupReplyStripsBrokenOpener(t *testing.T) {
	out := CleanupReply("E, sobre o seu projeto?")
	assert.Equal(t, "Sobre o seu projeto?", out)
}

func TestCleanupReplyIdempotent(t *testing.T) {
	inputs := []string{
		"Legal, vamos falar do seu projeto?",
		"E, sobre o seu projeto?",
		"como estão os seus projetos?",
		"Hoje seus clientes chegam por onde?",
	}
	for _, in := range inputs {
		once := CleanupReply(in)
		assert.Equal(t, once, CleanupReply(once), "input %q", in)
	}
}

func TestCleanupReplyCapitalizes(t *testing.T) {
	assert.Equal(t, "Como estão os seus projetos?", CleanupReply("como estão os seus projetos?"))
}
