package engine

import (
	"testing"

	"github.com/ClareAI/astra-sales-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBANTKeywords(t *testing.T) {
	extracted := ExtractBANT("Hoje tudo vem de indicação, é urgente resolver isso")

	assert.Equal(t, "indicacao", extracted[FieldCaminhoOrcamento])
	assert.Equal(t, "alta", extracted[FieldTimingUrgencia])
}

func TestExtractBANTMultipleFieldsOneMessage(t *testing.T) {
	extracted := ExtractBANT("Trabalhamos com indicação, fazemos 8 projetos por mês na região de Recife")

	assert.Equal(t, "indicacao", extracted[FieldCaminhoOrcamento])
	assert.Equal(t, "8 por mês", extracted[FieldVolume])
	assert.Equal(t, "Recife", extracted[FieldRegiao])
}

func TestExtractBANTRegiaoAlternatePhrasing(t *testing.T) {
	extracted := ExtractBANT("Eu atuo em Campinas e cidades próximas")
	require.Contains(t, extracted, FieldRegiao)
	assert.Contains(t, extracted[FieldRegiao], "Campinas")
}

func TestExtractBANTDecisor(t *testing.T) {
	extracted := ExtractBANT("aqui sou eu que decido tudo")
	assert.Equal(t, "lead", extracted[FieldAuthorityDecisor])

	extracted = ExtractBANT("preciso consultar meu sócio antes")
	assert.Equal(t, "compartilhada", extracted[FieldAuthorityDecisor])
}

func TestExtractBANTBudgetInterest(t *testing.T) {
	extracted := ExtractBANT("quanto custa esse serviço de vocês")
	assert.Equal(t, "interessado", extracted[FieldBudgetInteresse])
}

func TestExtractBANTPrazo(t *testing.T) {
	extracted := ExtractBANT("preciso disso funcionando em 2 semanas")
	assert.Equal(t, "2 semanas", extracted[FieldTimingPrazo])
}

func TestExtractBANTLowUrgency(t *testing.T) {
	extracted := ExtractBANT("estou sem pressa, só pesquisando por enquanto")
	assert.Equal(t, "baixa", extracted[FieldTimingUrgencia])
}

func TestExtractBANTNothingFound(t *testing.T) {
	extracted := ExtractBANT("oi, tudo bem com vocês")
	assert.Empty(t, extracted)
}

func TestExtractBANTFirstRuleWins(t *testing.T) {
	// Two rules target the same field; the first matching rule keeps its value.
	extracted := ExtractBANT("a maioria vem de indicação, o resto pelo instagram")
	assert.Equal(t, "indicacao", extracted[FieldCaminhoOrcamento])
}

func TestExtractLeadProfile(t *testing.T) {
	var profile domain.LeadProfile
	ExtractLeadProfile("Meu nome é Carla, minha empresa se chama Traço Arquitetura", &profile)

	assert.Equal(t, "Carla", profile.Name)
	assert.Equal(t, "Traço Arquitetura", profile.Company)
}

func TestExtractLeadProfileNeverOverwrites(t *testing.T) {
	profile := domain.LeadProfile{Name: "Carla"}
	ExtractLeadProfile("me chamo Roberto", &profile)

	assert.Equal(t, "Carla", profile.Name)
}

func TestExtractLeadProfileAlternateNamePhrase(t *testing.T) {
	var profile domain.LeadProfile
	ExtractLeadProfile("oi, me chamo Roberto Lima", &profile)
	assert.Equal(t, "Roberto Lima", profile.Name)
}
