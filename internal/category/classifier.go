package category

import (
	"regexp"
	"strings"
)

// The keyword tables below are immutable package data compiled once at
// init. Order matters: the first matching entry wins.

var emailRe = regexp.MustCompile(`\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
var urlRe = regexp.MustCompile(`\bhttps?://\S+`)

// Resume and work-experience vocabulary. Matched by substring so that
// compound phrases like "organising committee" hit as written.
var resumeTerms = []string{
	"intern", "research assistant", "assistant", "ui/ux", "ux", "adobe xd",
	"organising committee", "organizing committee", "vice-president", "aiesec",
	"conducted", "headed", "orientation", "data collection", "projects", "experience",
	"member of", "marketing", "engineer", "manager", "school", "university",
	"managed", "organized", "organised", "led", "lead", "committee", "position",
}

// Imperative or future-tense cues only. Past-tense verbs like "organized"
// and "conducted" are deliberately absent so resume bullet points do not
// classify as to-dos.
var actionablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bto\s+do\b`),
	regexp.MustCompile(`\bfollow[- ]up\b`),
	regexp.MustCompile(`\bneed to\b`),
	regexp.MustCompile(`\bplan to\b`),
	regexp.MustCompile(`\bschedule\b`),
	regexp.MustCompile(`\bremind\b`),
	regexp.MustCompile(`\blet's\b`),
	regexp.MustCompile(`\bplease\b`),
	regexp.MustCompile(`\bnext week\b`),
	regexp.MustCompile(`^action( item)?:`),
	regexp.MustCompile(`\beta\b`),
	regexp.MustCompile(`\bdue\b`),
}

type keywordGroup struct {
	category string
	keywords []string
}

var keywordGroups = []keywordGroup{
	{Actionable, []string{
		"todo", "follow up", "follow-up", "next week", "schedule", "remind",
		"arrange", "set up", "book", "plan", "meet", "call", "email",
		"action item", "due", "deadline", "asap", "to-do",
	}},
	{Goals, []string{
		"goal", "aim", "objective", "wants to", "plans to", "hopes to", "target",
		"ambition", "aspire", "intend to",
	}},
	{RelationshipStrategy, []string{
		"approach", "keep in touch", "build", "nurture", "stay connected",
		"check in", "best to", "strategy", "reach out", "touch base",
	}},
	{Social, []string{
		"party", "event", "dinner", "drinks", "hang out", "friends", "club",
		"wedding", "celebration", "gathering", "meetup", "bbt party",
	}},
	{Wellbeing, []string{
		"health", "exercise", "stress", "anxiety", "sleep", "diet", "mental",
		"wellbeing", "well-being", "therapy", "gym", "workout",
	}},
	{Avocation, []string{
		"likes", "enjoys", "hobby", "hobbies", "interest", "interests",
		"favorite", "favourite", "music", "sport", "movie", "hiking",
		"food", "cuisine", "travel", "coffee", "tea", "bubble tea",
		"bbt", "nasi lemak", "sashimi", "strawberries", "mint ice cream",
	}},
	{ProfessionalBackground, []string{
		"work", "job", "career", "role", "company", "employer", "startup",
		"industry", "boss", "colleague", "dentist", "engineer", "founder",
		"managed", "organized", "organised", "led", "lead", "committee",
		"aiesec", "internship", "intern", "cv", "resume", "position",
		"experience", "project", "orientation", "data collection", "research",
	}},
	{EnvironmentAndLifestyle, []string{
		"lives", "living", "apartment", "house", "city", "singapore",
		"commute", "car", "pet", "lifestyle", "neighborhood", "neighbourhood",
	}},
	{PsychologyAndValues, []string{
		"values", "belief", "personality", "introvert", "extrovert",
		"principle", "priority", "ethos", "mindset",
	}},
	{CommunicationStyle, []string{
		"prefers text", "prefers call", "communication", "responds", "reply",
		"tone", "style", "email vs", "whatsapp", "fast reply", "slow to reply",
	}},
	{ChallengesAndDevelopment, []string{
		"challenge", "difficulty", "struggle", "learning", "improve",
		"development", "working on", "needs help",
	}},
	{DeeperInsights, []string{
		"pattern", "tends to", "usually", "often", "underlying", "insight",
		"tendency",
	}},
	{FinancialSituation, []string{
		"salary", "income", "bonus", "money", "finance", "budget",
		"savings", "debt", "expenses",
	}},
	{AdminMatters, []string{
		"address", "email", "phone", "birthday", "contact", "handle",
		"passport", "booking ref", "reservation", "logistics", "linkedin",
		"url", "website",
	}},
	{EstablishedPatterns, []string{
		"always", "every", "habit", "routine", "pattern", "regularly",
		"weekly", "daily",
	}},
	{CoreIdentity, []string{
		"identity", "who he is", "who she is", "self", "core", "background",
	}},
	{InformationGaps, []string{
		"unknown", "not sure", "need to find", "unclear", "missing",
		"tbd", "to be decided",
	}},
	{MemoryAnchors, []string{
		"remember", "note", "key detail", "anchor", "remember to",
	}},
	{Positionality, []string{
		"status", "role in", "position", "senior", "junior", "cpo",
		"vp", "vice-president", "president",
	}},
	{Others, []string{"misc", "other"}},
}

// Word-boundary regexes for keywordGroups, compiled once. Index is parallel
// to keywordGroups.
var keywordRes = func() [][]*regexp.Regexp {
	res := make([][]*regexp.Regexp, len(keywordGroups))
	for i, g := range keywordGroups {
		res[i] = make([]*regexp.Regexp, len(g.keywords))
		for j, kw := range g.keywords {
			res[i][j] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
	return res
}()

// InferFromText guesses the single best-fitting canonical category for an
// arbitrary fact or detail fragment. Structural cues (email, URL) beat
// resume vocabulary, which beats actionable phrasing, which beats the
// broad keyword table. Defaults to Others.
func InferFromText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Others
	}

	if emailRe.MatchString(t) {
		return AdminMatters
	}
	if urlRe.MatchString(t) || strings.Contains(t, "linkedin.com") || strings.HasPrefix(t, "linkedin:") {
		return AdminMatters
	}

	for _, term := range resumeTerms {
		if strings.Contains(t, term) {
			return ProfessionalBackground
		}
	}

	for _, p := range actionablePatterns {
		if p.MatchString(t) {
			return Actionable
		}
	}

	for i := range keywordGroups {
		for _, re := range keywordRes[i] {
			if re.MatchString(t) {
				return keywordGroups[i].category
			}
		}
	}

	return Others
}
