package reconcile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kithlabs/kith/internal/category"
	"github.com/kithlabs/kith/internal/store"
)

const (
	defaultTier = 2
	conflictCap = 200
)

// Engine reconciles one uploaded table against the store for a list of
// owner scopes. The same code path serves single-user, admin-target-user
// and all-users imports; only the scope list differs.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

func NewEngine(st store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, log: logger}
}

// contactRef identifies a contact a batch has resolved: either a row that
// exists in the store, or one a dry run would create. Write runs create
// contacts immediately inside the batch, so wouldCreate refs only appear
// during dry runs.
type contactRef struct {
	id          int64
	wouldCreate bool
	ordinal     int
}

type scopeState struct {
	user  store.User
	names map[string]contactRef
	tiers map[contactRef]int
	sigs  map[contactRef]map[string]struct{}
	stats *ScopeStats

	previewCreated int
}

// contactRow is a CONTACT row after header resolution.
type contactRow struct {
	name string
	tier string
}

// detailRow is a synthesized-detail row after header resolution, for
// either table format.
type detailRow struct {
	name       string
	tier       string
	category   string
	detail     string
	confidence string
	entryDate  string
}

// Run executes one import batch over the given owner scopes.
//
// Row-level anomalies are counted or reported as conflicts and never abort
// the batch. Storage failures do: the whole batch rolls back, no ledger
// entry is written, and the error is returned (safe to retry).
func (e *Engine) Run(ctx context.Context, kind, csvText string, scopes []store.User, opts Options) (*Result, error) {
	opts.Policy = normalizePolicy(opts.Policy)
	if opts.Policy.Details == PolicyAppend {
		// Accepted for compatibility; no distinct semantics exist for it.
		e.log.Warn("details policy 'append' behaves as 'preserve'", zap.String("kind", kind))
	}

	if opts.FileHash != "" && !opts.DryRun && !opts.Force {
		prior, err := e.store.FindImport(ctx, kind, opts.FileHash)
		if err != nil {
			return nil, fmt.Errorf("failed to check import ledger: %w", err)
		}
		if prior != nil {
			return &Result{
				Status:     StatusSkipped,
				Message:    "This file was already imported before (same content hash).",
				ImportID:   prior.ID,
				ImportedAt: prior.CreatedAt,
			}, nil
		}
	}

	fields, rows, err := parseTable(csvText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}
	resolver := NewHeaderResolver(fields)
	isRecordType := resolver.HasRecordType()

	stats := Stats{RowsTotal: len(rows)}
	var conflicts []Conflict

	contactRows := collectContactRows(resolver, rows, isRecordType, &stats)
	detailRows := collectDetailRows(resolver, rows, isRecordType, &stats)

	// For write runs all reads go through the open batch so the
	// find-or-create decisions and the staged writes share one snapshot.
	var batch store.Batch
	var reader store.Reader = e.store
	if !opts.DryRun {
		batch, err = e.store.BeginBatch(ctx)
		if err != nil {
			return nil, err
		}
		defer batch.Rollback()
		reader = batch
	}

	userResults := make(map[string]*ScopeStats, len(scopes))
	for _, user := range scopes {
		sc, err := e.loadScope(ctx, reader, user)
		if err != nil {
			return nil, fmt.Errorf("failed to load scope for user %d: %w", user.ID, err)
		}

		if err := e.processContacts(ctx, batch, sc, contactRows, opts, &conflicts); err != nil {
			return nil, err
		}
		if err := e.processDetails(ctx, batch, sc, detailRows, opts, &conflicts); err != nil {
			return nil, err
		}

		stats.UsersProcessed++
		stats.ContactsAdded += sc.stats.ContactsAdded
		stats.DetailsAdded += sc.stats.DetailsAdded
		stats.ContactsSkipped += sc.stats.ContactsSkipped
		stats.DetailsSkipped += sc.stats.DetailsSkipped
		stats.RowsSkippedDuplicate += sc.stats.DetailsSkipped
		stats.RowsContactProcessed += sc.stats.RowsContactProcessed
		stats.RowsSynthProcessed += sc.stats.RowsSynthProcessed
		userResults[user.Username] = sc.stats
	}

	if !opts.DryRun {
		if err := batch.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit batch: %w", err)
		}
		if opts.FileHash != "" {
			statsJSON, _ := json.Marshal(stats)
			rec := store.ImportRecord{
				UserID:    ledgerUserID(scopes),
				Kind:      kind,
				FileName:  opts.FileName,
				FileHash:  opts.FileHash,
				Status:    "completed",
				StatsJSON: string(statsJSON),
			}
			if err := e.store.RecordImport(ctx, rec); err != nil {
				// The import itself succeeded; a missing ledger entry only
				// means a repeat upload will re-run (and dedupe to zero).
				e.log.Warn("failed to persist import ledger entry", zap.Error(err))
			}
		}
	}

	result := &Result{
		Status:  StatusSuccess,
		Message: "Merge complete!",
		Details: stats,
	}
	if len(scopes) > 1 {
		result.UserResults = userResults
	}
	if opts.DryRun {
		capped := conflicts
		if len(capped) > conflictCap {
			capped = capped[:conflictCap]
		}
		result.Status = StatusPreview
		result.Message = "Dry-run completed. No changes were written."
		result.Preview = &Preview{
			Fieldnames:        resolver.Fieldnames(),
			CanonicalMappings: resolver.CanonicalMappings(),
			IsRecordType:      isRecordType,
			ConflictPolicy:    opts.Policy,
			Conflicts:         capped,
		}
	}
	if opts.FileName != "" || opts.FileHash != "" {
		result.File = &FileInfo{Name: opts.FileName, Hash: opts.FileHash}
	}
	return result, nil
}

func (e *Engine) loadScope(ctx context.Context, reader store.Reader, user store.User) (*scopeState, error) {
	contacts, err := reader.ContactsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	details, err := reader.DetailsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	sc := &scopeState{
		user:  user,
		names: make(map[string]contactRef, len(contacts)),
		tiers: make(map[contactRef]int, len(contacts)),
		sigs:  make(map[contactRef]map[string]struct{}, len(contacts)),
		stats: &ScopeStats{},
	}
	refByID := make(map[int64]contactRef, len(contacts))
	for _, c := range contacts {
		ref := contactRef{id: c.ID}
		sc.names[normalizeName(c.FullName)] = ref
		sc.tiers[ref] = c.Tier
		sc.sigs[ref] = make(map[string]struct{})
		refByID[c.ID] = ref
	}
	for _, d := range details {
		ref, ok := refByID[d.ContactID]
		if !ok {
			continue
		}
		sc.sigs[ref][dedupSignature(d.Category, d.Content)] = struct{}{}
	}
	return sc, nil
}

// processContacts is the first pass: CONTACT rows of a record-typed table.
func (e *Engine) processContacts(ctx context.Context, batch store.Batch, sc *scopeState, rows []contactRow, opts Options, conflicts *[]Conflict) error {
	for _, row := range rows {
		key := normalizeName(row.name)
		if ref, ok := sc.names[key]; ok {
			tier := parseTierOr(defaultTier, row.tier)
			if opts.Policy.ContactTier == PolicyOverwrite && validTier(tier) {
				e.stageTierUpdate(ctx, batch, sc, ref, row.name, tier, opts.DryRun, conflicts)
			}
			sc.stats.ContactsSkipped++
			continue
		}

		ref, err := e.createContact(ctx, batch, sc, row.name, parseTierOr(defaultTier, row.tier), opts.DryRun)
		if err != nil {
			return fmt.Errorf("failed to create contact '%s': %w", row.name, err)
		}
		sc.names[key] = ref
		sc.sigs[ref] = make(map[string]struct{})
		sc.stats.ContactsAdded++
		sc.stats.RowsContactProcessed++
	}
	return nil
}

// processDetails is the second pass: synthesized-detail rows. Detail rows
// may lazily create their contact; an explicit CONTACT row is not
// required.
func (e *Engine) processDetails(ctx context.Context, batch store.Batch, sc *scopeState, rows []detailRow, opts Options, conflicts *[]Conflict) error {
	for _, row := range rows {
		key := normalizeName(row.name)
		ref, exists := sc.names[key]
		if !exists {
			var err error
			ref, err = e.createContact(ctx, batch, sc, row.name, parseTierOr(defaultTier, row.tier), opts.DryRun)
			if err != nil {
				return fmt.Errorf("failed to create contact '%s': %w", row.name, err)
			}
			sc.names[key] = ref
			sc.sigs[ref] = make(map[string]struct{})
			sc.stats.ContactsAdded++
			sc.stats.RowsContactProcessed++
		} else {
			if tier := parseTierOr(0, row.tier); validTier(tier) && opts.Policy.ContactTier == PolicyOverwrite {
				e.stageTierUpdate(ctx, batch, sc, ref, row.name, tier, opts.DryRun, conflicts)
			}
			// Every detail row that resolves to an existing contact counts
			// the contact as skipped, even when its detail goes on to
			// insert. Dedupe reports therefore tally per row, not per
			// distinct contact.
			sc.stats.ContactsSkipped++
			sc.stats.RowsSynthProcessed++
		}

		if row.detail == "" {
			continue
		}
		cat := category.Canonicalize(row.category)
		sig := dedupSignature(cat, row.detail)
		if _, dup := sc.sigs[ref][sig]; dup {
			sc.stats.DetailsSkipped++
			*conflicts = append(*conflicts, Conflict{
				Type:        ConflictDuplicateDetail,
				ContactName: row.name,
				Category:    cat,
				Content:     row.detail,
			})
			continue
		}

		if !opts.DryRun {
			d := store.Detail{
				ContactID:  ref.id,
				Category:   cat,
				Content:    row.detail,
				Confidence: parseConfidence(row.confidence),
				CreatedAt:  parseEntryDate(row.entryDate),
			}
			if _, err := batch.CreateDetail(ctx, d); err != nil {
				return fmt.Errorf("failed to insert detail for '%s': %w", row.name, err)
			}
		}
		sc.sigs[ref][sig] = struct{}{}
		sc.stats.DetailsAdded++
		sc.stats.RowsSynthProcessed++
	}
	return nil
}

func (e *Engine) createContact(ctx context.Context, batch store.Batch, sc *scopeState, name string, tier int, dryRun bool) (contactRef, error) {
	if dryRun {
		sc.previewCreated++
		return contactRef{wouldCreate: true, ordinal: sc.previewCreated}, nil
	}
	u := uuid.New()
	id, err := batch.CreateContact(ctx, store.Contact{
		UserID:             sc.user.ID,
		FullName:           name,
		Tier:               tier,
		VectorCollectionID: fmt.Sprintf("contact_%x", u[:4]),
	})
	if err != nil {
		return contactRef{}, err
	}
	return contactRef{id: id}, nil
}

// stageTierUpdate applies a tier overwrite, or records it as a conflict
// during dry runs. Individual tier-update failures are reported as error
// conflicts and never abort the batch.
func (e *Engine) stageTierUpdate(ctx context.Context, batch store.Batch, sc *scopeState, ref contactRef, name string, tier int, dryRun bool, conflicts *[]Conflict) {
	if dryRun {
		from := ""
		if old, ok := sc.tiers[ref]; ok {
			from = strconv.Itoa(old)
		}
		*conflicts = append(*conflicts, Conflict{
			Type:          ConflictTierUpdate,
			Name:          name,
			From:          from,
			To:            tier,
			PolicyApplied: PolicyOverwrite,
		})
		return
	}
	if ref.wouldCreate {
		return
	}
	if err := batch.UpdateContactTier(ctx, ref.id, tier); err != nil {
		e.log.Warn("tier update failed", zap.String("contact", name), zap.Error(err))
		*conflicts = append(*conflicts, Conflict{
			Type:    ConflictError,
			Message: fmt.Sprintf("failed to update tier for %s: %v", name, err),
		})
		return
	}
	sc.tiers[ref] = tier
}

// collectContactRows gathers CONTACT rows once for the whole batch. Rows
// missing a name are counted and dropped here so multi-scope runs do not
// recount them per scope.
func collectContactRows(resolver *HeaderResolver, rows []map[string]string, isRecordType bool, stats *Stats) []contactRow {
	if !isRecordType {
		return nil
	}
	var out []contactRow
	for _, row := range rows {
		if ClassifyRecordType(resolver.Value(row, "record_type")) != RecordContact {
			continue
		}
		name := resolver.Value(row, "contact_full_name")
		if name == "" {
			stats.RowsSkippedNoName++
			continue
		}
		out = append(out, contactRow{name: name, tier: resolver.Value(row, "contact_tier")})
	}
	return out
}

// collectDetailRows normalizes synthesized-detail rows for either format.
// For record-typed tables only SYNTHESIZED_DETAIL rows qualify; the legacy
// flat format treats every row as a detail row.
func collectDetailRows(resolver *HeaderResolver, rows []map[string]string, isRecordType bool, stats *Stats) []detailRow {
	var out []detailRow
	for _, row := range rows {
		var r detailRow
		if isRecordType {
			rt := ClassifyRecordType(resolver.Value(row, "record_type"))
			if rt == "" {
				stats.RowsSkippedUnknown++
				continue
			}
			if rt != RecordSynthDetail {
				continue
			}
			r = detailRow{
				name:      resolver.Value(row, "contact_full_name"),
				tier:      resolver.Value(row, "contact_tier"),
				category:  resolver.Value(row, "category"),
				detail:    resolver.Value(row, "detail_content"),
				entryDate: resolver.Value(row, "entry_date"),
			}
		} else {
			r = detailRow{
				name:       legacyValue(row, "Contact Full Name", "contact_full_name"),
				tier:       legacyValue(row, "Contact Tier", "contact_tier"),
				category:   legacyValue(row, "Category", "category"),
				detail:     legacyValue(row, "Detail/Fact", "detail_content"),
				confidence: legacyValue(row, "AI Confidence", "confidence_score"),
				entryDate:  legacyValue(row, "Entry Date", "created_at"),
			}
		}
		if r.name == "" {
			stats.RowsSkippedNoName++
			continue
		}
		out = append(out, r)
	}
	return out
}

func legacyValue(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(row[k]); v != "" {
			return v
		}
	}
	return ""
}

// parseTable reads the delimited text into a header row plus one
// string-map per data row. Ragged rows are tolerated; short rows read as
// empty cells.
func parseTable(text string) ([]string, []map[string]string, error) {
	text = strings.TrimPrefix(text, "\uFEFF")
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	fields := make([]string, len(records[0]))
	for i, f := range records[0] {
		fields[i] = strings.TrimSpace(f)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(fields))
		for i, h := range fields {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return fields, rows, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func dedupSignature(cat, content string) string {
	return strings.TrimSpace(cat) + "|" + strings.TrimSpace(content)
}

func normalizePolicy(p Policy) Policy {
	p.ContactTier = strings.ToLower(strings.TrimSpace(p.ContactTier))
	if p.ContactTier != PolicyOverwrite {
		p.ContactTier = PolicyPreserve
	}
	p.Details = strings.ToLower(strings.TrimSpace(p.Details))
	if p.Details != PolicyAppend {
		p.Details = PolicyPreserve
	}
	return p
}

func validTier(t int) bool {
	return t >= 1 && t <= 3
}

func parseTierOr(fallback int, val string) int {
	v := strings.TrimSpace(val)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseConfidence(val string) *float64 {
	v := strings.TrimSpace(val)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseEntryDate accepts RFC 3339 and the common date(-time) spellings our
// exports produce. Anything unparseable reads as "now" at insert time.
func parseEntryDate(val string) string {
	v := strings.TrimSpace(val)
	if v == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func ledgerUserID(scopes []store.User) int64 {
	if len(scopes) == 1 {
		return scopes[0].ID
	}
	return 0
}
