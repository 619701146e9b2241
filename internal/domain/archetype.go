package domain

// Archetype classifies the lead's communication style. It is used purely to
// select tone instructions for generated text; it never changes what the
// engine asks, only how.
type Archetype string

const (
	ArchetypeDefault    Archetype = "default"
	ArchetypeAnalitico  Archetype = "analitico"
	ArchetypePragmatico Archetype = "pragmatico"
	ArchetypeExpressivo Archetype = "expressivo"
	ArchetypeAfetivo    Archetype = "afetivo"
	ArchetypeCetico     Archetype = "cetico"
	ArchetypeApressado  Archetype = "apressado"
	ArchetypeDetalhista Archetype = "detalhista"
	ArchetypeVisionario Archetype = "visionario"
)

// Archetypes lists the eight detectable personas, excluding default.
var Archetypes = []Archetype{
	ArchetypeAnalitico,
	ArchetypePragmatico,
	ArchetypeExpressivo,
	ArchetypeAfetivo,
	ArchetypeCetico,
	ArchetypeApressado,
	ArchetypeDetalhista,
	ArchetypeVisionario,
}

// IsValidArchetype reports whether the string names a known persona,
// including default.
func IsValidArchetype(a Archetype) bool {
	if a == ArchetypeDefault {
		return true
	}
	for _, known := range Archetypes {
		if known == a {
			return true
		}
	}
	return false
}
