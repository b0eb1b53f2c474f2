// Package category holds the fixed relationship-analysis taxonomy and the
// logic that maps free-form labels and text fragments onto it.
package category

import "strings"

// Canonical category tokens. The spellings are part of the wire contract
// (exports, the admin UI and the AI prompt all render them verbatim), so
// they are intentionally inconsistent in casing.
const (
	Actionable               = "Actionable"
	Goals                    = "Goals"
	RelationshipStrategy     = "Relationship_Strategy"
	Social                   = "Social"
	Wellbeing                = "Wellbeing"
	Avocation                = "Avocation"
	ProfessionalBackground   = "Professional_Background"
	EnvironmentAndLifestyle  = "Environment_And_Lifestyle"
	PsychologyAndValues      = "Psychology_And_Values"
	CommunicationStyle       = "Communication_Style"
	ChallengesAndDevelopment = "Challenges_And_Development"
	DeeperInsights           = "Deeper_Insights"
	FinancialSituation       = "Financial_Situation"
	AdminMatters             = "Admin_Matters"
	EstablishedPatterns      = "ESTABLISHED_PATTERNS"
	CoreIdentity             = "CORE_IDENTITY"
	InformationGaps          = "Information gaps"
	MemoryAnchors            = "Memory anchors"
	Positionality            = "POSITIONALITY"
	Others                   = "Others"
)

// Order is the display order consumers rely on. Do not reorder.
var Order = []string{
	Actionable,
	Goals,
	RelationshipStrategy,
	Social,
	Wellbeing,
	Avocation,
	ProfessionalBackground,
	EnvironmentAndLifestyle,
	PsychologyAndValues,
	CommunicationStyle,
	ChallengesAndDevelopment,
	DeeperInsights,
	FinancialSituation,
	AdminMatters,
	EstablishedPatterns,
	CoreIdentity,
	InformationGaps,
	MemoryAnchors,
	Positionality,
	Others,
}

var validSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(Order))
	for _, c := range Order {
		s[c] = struct{}{}
	}
	return s
}()

// synonyms maps common upstream labels onto canonical tokens.
var synonyms = map[string]string{
	"preferences":  Avocation,
	"hobbies":      Avocation,
	"work_history": ProfessionalBackground,
	"work":         ProfessionalBackground,
	"job":          ProfessionalBackground,
	"contact_info": AdminMatters,
	"logistics":    AdminMatters,
	"health":       Wellbeing,
	"habits":       EstablishedPatterns,
}

// IsCanonical reports whether label is one of the fixed tokens.
func IsCanonical(label string) bool {
	_, ok := validSet[label]
	return ok
}

// Canonicalize maps an arbitrary label onto the canonical set. It never
// returns a value outside Order; anything unrecognized becomes Others.
func Canonicalize(label string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(label), " ", "_")
	if _, ok := validSet[normalized]; ok {
		return normalized
	}
	for _, c := range Order {
		if strings.EqualFold(normalized, c) {
			return c
		}
	}
	if mapped, ok := synonyms[strings.ToLower(normalized)]; ok {
		return mapped
	}
	return Others
}
