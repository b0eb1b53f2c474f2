package synthesis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kithlabs/kith/internal/category"
	"github.com/kithlabs/kith/internal/common"
	"github.com/kithlabs/kith/internal/llm"
	"github.com/kithlabs/kith/internal/store"
)

const promptTemplate = `You are a relationship intelligence analyst. Analyze the new information
about a person and extract every distinct fact. Do not summarize; do not
infer beyond what is stated.

Return a single valid JSON object with keys "synthesized_narrative",
"confidence_score", "reasoning_chain", and "categorized_updates".
"categorized_updates" is an array of {"category", "details"} objects where
"details" is an array of strings.

The "category" value for every detail MUST be one of EXACTLY these tokens
(case-sensitive): %s. If unsure, use "Others". Split details so each fact
appears under the single best-fitting category.

Person: %s

New Information:
%s`

// Synthesizer runs the AI note-synthesis call and reconciles its output
// into the store. The model is a black box; its proposal is normalized
// onto the fixed taxonomy before any write happens.
type Synthesizer struct {
	llm llm.Client
	log *zap.Logger
}

func NewSynthesizer(client llm.Client, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{llm: client, log: logger}
}

// Synthesize asks the model for categorized updates for one note and
// normalizes the proposal. No store access.
func (s *Synthesizer) Synthesize(ctx context.Context, contactName, note string) (*Proposal, error) {
	prompt := fmt.Sprintf(promptTemplate, strings.Join(category.Order, ", "), contactName, note)

	response, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate synthesis: %w", err)
	}

	proposal, err := common.ParseJSON[Proposal](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse synthesis response: %w", err)
	}

	proposal.CategorizedUpdates = Normalize(proposal.CategorizedUpdates)
	return &proposal, nil
}

// ProcessNote synthesizes a note for a contact and persists the raw note
// plus any details whose (category, content) signature the contact does
// not already carry. Returns the normalized proposal and the number of
// details written.
func (s *Synthesizer) ProcessNote(ctx context.Context, st store.Store, userID, contactID int64, contactName, note string) (*Proposal, int, error) {
	proposal, err := s.Synthesize(ctx, contactName, note)
	if err != nil {
		return nil, 0, err
	}

	batch, err := st.BeginBatch(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer batch.Rollback()

	existing, err := batch.DetailsByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]struct{})
	for _, d := range existing {
		if d.ContactID == contactID {
			seen[signature(d.Category, d.Content)] = struct{}{}
		}
	}

	if _, err := batch.CreateRawNote(ctx, store.RawNote{ContactID: contactID, Content: note}); err != nil {
		return nil, 0, fmt.Errorf("failed to insert raw note: %w", err)
	}

	added := 0
	conf := proposal.ConfidenceScore
	for _, u := range proposal.CategorizedUpdates {
		for _, d := range u.Details {
			content := strings.TrimSpace(d)
			if content == "" {
				continue
			}
			sig := signature(u.Category, content)
			if _, dup := seen[sig]; dup {
				continue
			}
			detail := store.Detail{
				ContactID: contactID,
				Category:  u.Category,
				Content:   content,
			}
			if conf > 0 {
				c := conf
				detail.Confidence = &c
			}
			if _, err := batch.CreateDetail(ctx, detail); err != nil {
				return nil, 0, fmt.Errorf("failed to insert detail: %w", err)
			}
			seen[sig] = struct{}{}
			added++
		}
	}

	if err := batch.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit note batch: %w", err)
	}
	s.log.Info("note synthesized",
		zap.Int64("contact_id", contactID),
		zap.Int("details_added", added))
	return proposal, added, nil
}

func signature(cat, content string) string {
	return strings.TrimSpace(cat) + "|" + strings.TrimSpace(content)
}
