// Package synthesis is the glue between the AI note-synthesis call and
// the store. The model's output is free-form; everything here exists to
// force it back onto the fixed taxonomy before anything is persisted.
package synthesis

import (
	"strings"

	"github.com/kithlabs/kith/internal/category"
)

// CategorizedUpdate is one proposed category bucket with its fact strings.
type CategorizedUpdate struct {
	Category string   `json:"category"`
	Details  []string `json:"details"`
}

// Proposal mirrors the JSON object the synthesis prompt asks for.
type Proposal struct {
	SynthesizedNarrative string              `json:"synthesized_narrative"`
	ConfidenceScore      float64             `json:"confidence_score"`
	ReasoningChain       []string            `json:"reasoning_chain"`
	CategorizedUpdates   []CategorizedUpdate `json:"categorized_updates"`
}

// Normalize re-infers a category for every individual detail and regroups
// the proposal accordingly. The AI frequently lumps unrelated facts into
// one bucket or leaves them in the catch-all; inference runs per fact so
// such buckets get re-split. The AI's own bucket wins only when the
// inference agrees with it or comes back as the catch-all. Exact
// duplicates within a final category collapse case-insensitively.
//
// Every category in the output is guaranteed to be canonical.
func Normalize(updates []CategorizedUpdate) []CategorizedUpdate {
	type placed struct {
		category string
		detail   string
	}
	var flat []placed

	for _, u := range updates {
		cat := category.Canonicalize(u.Category)
		for _, d := range u.Details {
			inferred := category.InferFromText(d)
			final := inferred
			if cat != category.Others && (inferred == cat || inferred == category.Others) {
				final = cat
			}
			flat = append(flat, placed{category: final, detail: d})
		}
	}

	var order []string
	grouped := make(map[string][]string)
	for _, p := range flat {
		existing, seen := grouped[p.category]
		if !seen {
			order = append(order, p.category)
		}
		dup := false
		for _, e := range existing {
			if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(p.detail)) {
				dup = true
				break
			}
		}
		if !dup {
			grouped[p.category] = append(existing, p.detail)
		}
	}

	out := make([]CategorizedUpdate, 0, len(order))
	for _, c := range order {
		out = append(out, CategorizedUpdate{Category: c, Details: grouped[c]})
	}
	return out
}
