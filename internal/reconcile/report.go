package reconcile

// Conflict policies accepted from callers.
const (
	PolicyPreserve  = "preserve"
	PolicyOverwrite = "overwrite"
	PolicyAppend    = "append"
)

// Terminal batch states.
const (
	StatusSuccess = "success"
	StatusPreview = "preview"
	StatusSkipped = "skipped"
)

// Policy governs what happens when an import would change existing data.
// Details accepts "append" for compatibility but behaves as "preserve";
// the original system never gave it distinct semantics.
type Policy struct {
	ContactTier string `json:"contact_tier"`
	Details     string `json:"details"`
}

// Options configure one import batch.
type Options struct {
	DryRun   bool
	Force    bool
	Policy   Policy
	FileName string
	// FileHash is the content fingerprint used as the idempotency key.
	// Empty disables ledger handling (e.g. synthetic batches in tests).
	FileHash string
}

// Conflict kinds reported in dry-run previews.
const (
	ConflictTierUpdate      = "contact_tier_update"
	ConflictDuplicateDetail = "duplicate_detail"
	ConflictError           = "error"
)

type Conflict struct {
	Type          string `json:"type"`
	Name          string `json:"name,omitempty"`
	ContactName   string `json:"contact_name,omitempty"`
	Category      string `json:"category,omitempty"`
	Content       string `json:"content,omitempty"`
	From          string `json:"from,omitempty"`
	To            int    `json:"to,omitempty"`
	PolicyApplied string `json:"policy_applied,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Stats are the running counters for a whole batch, across all scopes.
type Stats struct {
	UsersProcessed       int `json:"users_processed"`
	ContactsAdded        int `json:"contacts_added"`
	DetailsAdded         int `json:"details_added"`
	ContactsSkipped      int `json:"contacts_skipped"`
	DetailsSkipped       int `json:"details_skipped"`
	RowsTotal            int `json:"rows_total"`
	RowsContactProcessed int `json:"rows_contact_processed"`
	RowsSynthProcessed   int `json:"rows_synth_processed"`
	RowsSkippedUnknown   int `json:"rows_skipped_unknown_type"`
	RowsSkippedNoName    int `json:"rows_skipped_no_name"`
	RowsSkippedDuplicate int `json:"rows_skipped_duplicate"`
}

// ScopeStats are the per-owner counters reported for multi-scope batches.
type ScopeStats struct {
	ContactsAdded        int `json:"contacts_added"`
	DetailsAdded         int `json:"details_added"`
	ContactsSkipped      int `json:"contacts_skipped"`
	DetailsSkipped       int `json:"details_skipped"`
	RowsContactProcessed int `json:"rows_contact_processed"`
	RowsSynthProcessed   int `json:"rows_synth_processed"`
}

// Preview is returned for dry runs only: how the table was read plus the
// conflicts a real run would have hit.
type Preview struct {
	Fieldnames        []string          `json:"fieldnames"`
	CanonicalMappings map[string]string `json:"canonical_mappings"`
	IsRecordType      bool              `json:"is_record_type"`
	ConflictPolicy    Policy            `json:"conflict_policy"`
	Conflicts         []Conflict        `json:"conflicts"`
}

type FileInfo struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Result is the structured outcome of a batch. Status is success,
// preview, or skipped; storage failures surface as errors instead.
type Result struct {
	Status      string                 `json:"status"`
	Message     string                 `json:"message"`
	Details     Stats                  `json:"details"`
	UserResults map[string]*ScopeStats `json:"user_results,omitempty"`
	Preview     *Preview               `json:"preview,omitempty"`
	File        *FileInfo              `json:"file,omitempty"`
	ImportID    int64                  `json:"import_id,omitempty"`
	ImportedAt  string                 `json:"imported_at,omitempty"`
}
