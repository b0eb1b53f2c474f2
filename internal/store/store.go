// Package store persists contacts, synthesized details, raw notes and the
// import ledger. The engine talks to the Store interface only; the SQLite
// implementation lives in sqlite.go.
package store

import "context"

type User struct {
	ID       int64
	Username string
}

type Contact struct {
	ID                 int64
	UserID             int64
	FullName           string
	Tier               int
	VectorCollectionID string
	CreatedAt          string
}

type Detail struct {
	ID         int64
	ContactID  int64
	Category   string
	Content    string
	Confidence *float64
	CreatedAt  string
}

type RawNote struct {
	ID        int64
	ContactID int64
	Content   string
	CreatedAt string
}

// ImportRecord is one idempotency-ledger entry. (Kind, FileHash) is unique.
type ImportRecord struct {
	ID        int64
	UserID    int64
	Kind      string
	FileName  string
	FileHash  string
	Status    string
	StatsJSON string
	CreatedAt string
}

// Reader is the read surface the reconciliation engine needs. Both the
// Store (for dry runs) and an open Batch (for write runs, so the batch
// sees a consistent snapshot) implement it.
type Reader interface {
	ContactsByUser(ctx context.Context, userID int64) ([]Contact, error)
	DetailsByUser(ctx context.Context, userID int64) ([]Detail, error)
}

type Store interface {
	Reader

	Users(ctx context.Context) ([]User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	RawNotesByUser(ctx context.Context, userID int64) ([]RawNote, error)

	// FindImport returns the prior ledger entry for (kind, fileHash), or
	// nil when the upload has not been seen before.
	FindImport(ctx context.Context, kind, fileHash string) (*ImportRecord, error)
	// RecordImport appends a ledger entry. It is a no-op when an entry
	// with the same (kind, fileHash) already exists.
	RecordImport(ctx context.Context, rec ImportRecord) error

	// BeginBatch opens a write transaction. Writers are serialized: a
	// second BeginBatch blocks until the first batch commits or rolls
	// back, so concurrent imports observe each other's committed rows.
	BeginBatch(ctx context.Context) (Batch, error)

	Close() error
}

// Batch is a single all-or-nothing unit of staged writes.
type Batch interface {
	Reader

	CreateContact(ctx context.Context, c Contact) (int64, error)
	UpdateContactTier(ctx context.Context, contactID int64, tier int) error
	CreateDetail(ctx context.Context, d Detail) (int64, error)
	CreateRawNote(ctx context.Context, n RawNote) (int64, error)
	Commit() error
	Rollback() error
}
