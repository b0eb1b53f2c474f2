package reconcile

import "strings"

// Record types routed by the engine.
const (
	RecordContact     = "CONTACT"
	RecordSynthDetail = "SYNTHESIZED_DETAIL"
	RecordRawNote     = "RAW_NOTE"
)

// ClassifyRecordType maps a row's record_type cell onto one of the known
// record types. Exact matches first, then substring containment so that
// values like "contact row" or "ai_synthesized_detail" still route.
// Returns "" for unknown values.
func ClassifyRecordType(value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return ""
	}

	switch v {
	case RecordContact, RecordSynthDetail, RecordRawNote:
		return v
	}

	if strings.Contains(v, "CONTACT") {
		return RecordContact
	}
	if strings.Contains(v, "SYNTHESIZED") || strings.Contains(v, "DETAIL") {
		return RecordSynthDetail
	}
	if strings.Contains(v, "RAW") && strings.Contains(v, "NOTE") {
		return RecordRawNote
	}
	return ""
}
