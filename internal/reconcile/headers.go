// Package reconcile turns uploaded CSV tables into reconciled contacts and
// synthesized details. It tolerates truncated or variant headers, dedupes
// against existing rows, honors a conflict policy, and can run dry.
package reconcile

import (
	"regexp"
	"strings"
)

// headerCandidates maps each logical field to the header spellings we
// accept for it. The truncated variants ("contact_full", "detail_conte")
// come from this system's own lossy exports.
var headerCandidates = map[string][]string{
	"record_type":       {"record_type"},
	"contact_full_name": {"contact_full_name", "contact_full", "full_name", "name"},
	"contact_tier":      {"contact_tier", "tier"},
	"category":          {"category"},
	"detail_content":    {"detail_content", "detail_conte", "content"},
	"entry_date":        {"log_timestamp", "created_at", "entry_date", "timestamp"},
	"raw_note_content":  {"raw_note_content", "raw_note", "note_content", "note"},
}

// recordTypeProbes is broader than the value-lookup candidates on purpose;
// presence of any of these marks the table as record-typed.
var recordTypeProbes = []string{"record_type", "record_t", "type"}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

// canonToken lower-cases a header and strips everything that is not a
// letter or digit, so "Detail/Fact" and "detail_fact" compare equal.
func canonToken(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(s), "")
}

// HeaderResolver resolves logical field names against the actual headers
// of one table. It is a pure lookup over the header row; construct once
// per table.
type HeaderResolver struct {
	fieldnames []string
}

func NewHeaderResolver(rawFieldnames []string) *HeaderResolver {
	fields := make([]string, len(rawFieldnames))
	for i, f := range rawFieldnames {
		fields[i] = strings.TrimSpace(f)
	}
	return &HeaderResolver{fieldnames: fields}
}

func (r *HeaderResolver) Fieldnames() []string {
	return r.fieldnames
}

// CanonicalMappings reports canonical-token -> actual-header, used in
// dry-run previews so callers can see how the table was read.
func (r *HeaderResolver) CanonicalMappings() map[string]string {
	m := make(map[string]string, len(r.fieldnames))
	for _, h := range r.fieldnames {
		m[canonToken(h)] = h
	}
	return m
}

// Resolve finds the actual header to read for a logical field.
// Resolution order: exact candidate match, case-insensitive match, then
// canonicalized prefix match in either direction (handles truncation).
// ok is false when the table simply does not carry the field.
func (r *HeaderResolver) Resolve(logical string) (header string, ok bool) {
	candidates, known := headerCandidates[logical]
	if !known {
		candidates = []string{logical}
	}

	for _, h := range r.fieldnames {
		for _, cand := range candidates {
			if h == cand {
				return h, true
			}
		}
	}
	for _, h := range r.fieldnames {
		for _, cand := range candidates {
			if strings.EqualFold(h, cand) {
				return h, true
			}
		}
	}
	for _, h := range r.fieldnames {
		ch := canonToken(h)
		for _, cand := range candidates {
			cc := canonToken(cand)
			if ch == cc || strings.HasPrefix(ch, cc) || strings.HasPrefix(cc, ch) {
				return h, true
			}
		}
	}
	return "", false
}

// Value reads the logical field from a row, trimmed. Absent fields read
// as empty string, never an error.
func (r *HeaderResolver) Value(row map[string]string, logical string) string {
	header, ok := r.Resolve(logical)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[header])
}

// HasRecordType reports whether the table declares a record-type column.
// Tables without one are the legacy flat detail-list format.
func (r *HeaderResolver) HasRecordType() bool {
	for _, h := range r.fieldnames {
		ch := canonToken(h)
		for _, probe := range recordTypeProbes {
			cc := canonToken(probe)
			if ch == cc || strings.HasPrefix(ch, cc) || strings.HasPrefix(cc, ch) {
				return true
			}
		}
	}
	return false
}
