package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL DEFAULT 1,
	full_name TEXT NOT NULL,
	tier INTEGER NOT NULL DEFAULT 2,
	vector_collection_id TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_user_name
	ON contacts(user_id, lower(full_name));

CREATE TABLE IF NOT EXISTS synthesized_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL REFERENCES contacts(id),
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence_score REAL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_entries_contact ON synthesized_entries(contact_id);

CREATE TABLE IF NOT EXISTS raw_notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL REFERENCES contacts(id),
	content TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS file_imports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL DEFAULT 0,
	import_type TEXT NOT NULL,
	file_name TEXT,
	file_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	stats_json TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(import_type, file_hash)
);
`

// querier is satisfied by both *sql.DB and *sql.Tx so the read queries
// below serve the Store and an open Batch alike.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type SQLiteStore struct {
	db *sql.DB

	// Serializes write batches. SQLite has a single writer anyway; the
	// explicit lock makes find-or-create decisions race-free because a
	// second import cannot read its snapshot until the first batch is
	// committed or rolled back.
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database '%s': %w", path, err)
	}
	// One connection keeps transaction and plain reads from fighting over
	// the write lock inside the driver.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// EnsureUser creates the named user if absent and returns its id. Used by
// the CLI and tests; the HTTP layer assumes users already exist.
func (s *SQLiteStore) EnsureUser(ctx context.Context, username string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username) VALUES (?)`, username)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	return id, err
}

func (s *SQLiteStore) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) ContactsByUser(ctx context.Context, userID int64) ([]Contact, error) {
	return contactsByUser(ctx, s.db, userID)
}

func (s *SQLiteStore) DetailsByUser(ctx context.Context, userID int64) ([]Detail, error) {
	return detailsByUser(ctx, s.db, userID)
}

func contactsByUser(ctx context.Context, q querier, userID int64) ([]Contact, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, full_name, tier, COALESCE(vector_collection_id, ''), created_at
		 FROM contacts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.FullName, &c.Tier, &c.VectorCollectionID, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func detailsByUser(ctx context.Context, q querier, userID int64) ([]Detail, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT se.id, se.contact_id, se.category, se.content, se.confidence_score, se.created_at
		 FROM synthesized_entries se
		 JOIN contacts c ON c.id = se.contact_id
		 WHERE c.user_id = ? ORDER BY se.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []Detail
	for rows.Next() {
		var d Detail
		var conf sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.ContactID, &d.Category, &d.Content, &conf, &d.CreatedAt); err != nil {
			return nil, err
		}
		if conf.Valid {
			v := conf.Float64
			d.Confidence = &v
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *SQLiteStore) RawNotesByUser(ctx context.Context, userID int64) ([]RawNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rn.id, rn.contact_id, rn.content, rn.created_at
		 FROM raw_notes rn
		 JOIN contacts c ON c.id = rn.contact_id
		 WHERE c.user_id = ? ORDER BY rn.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []RawNote
	for rows.Next() {
		var n RawNote
		if err := rows.Scan(&n.ID, &n.ContactID, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *SQLiteStore) FindImport(ctx context.Context, kind, fileHash string) (*ImportRecord, error) {
	var rec ImportRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, import_type, COALESCE(file_name, ''), file_hash, status, COALESCE(stats_json, ''), created_at
		 FROM file_imports WHERE import_type = ? AND file_hash = ?`, kind, fileHash).
		Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.FileName, &rec.FileHash, &rec.Status, &rec.StatsJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) RecordImport(ctx context.Context, rec ImportRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_imports (user_id, import_type, file_name, file_hash, status, stats_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Kind, rec.FileName, rec.FileHash, rec.Status, rec.StatsJSON)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

func (s *SQLiteStore) BeginBatch(ctx context.Context) (Batch, error) {
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	return &sqliteBatch{tx: tx, release: func() { s.writeMu.Unlock() }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteBatch struct {
	tx       *sql.Tx
	release  func()
	finished bool
}

func (b *sqliteBatch) ContactsByUser(ctx context.Context, userID int64) ([]Contact, error) {
	return contactsByUser(ctx, b.tx, userID)
}

func (b *sqliteBatch) DetailsByUser(ctx context.Context, userID int64) ([]Detail, error) {
	return detailsByUser(ctx, b.tx, userID)
}

func (b *sqliteBatch) CreateContact(ctx context.Context, c Contact) (int64, error) {
	res, err := b.tx.ExecContext(ctx,
		`INSERT INTO contacts (full_name, tier, user_id, vector_collection_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		c.FullName, c.Tier, c.UserID, c.VectorCollectionID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (b *sqliteBatch) UpdateContactTier(ctx context.Context, contactID int64, tier int) error {
	_, err := b.tx.ExecContext(ctx,
		`UPDATE contacts SET tier = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tier, contactID)
	return err
}

func (b *sqliteBatch) CreateDetail(ctx context.Context, d Detail) (int64, error) {
	var conf interface{}
	if d.Confidence != nil {
		conf = *d.Confidence
	}
	var createdAt interface{}
	if d.CreatedAt != "" {
		createdAt = d.CreatedAt
	}
	res, err := b.tx.ExecContext(ctx,
		`INSERT INTO synthesized_entries (contact_id, category, content, confidence_score, created_at)
		 VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		d.ContactID, d.Category, d.Content, conf, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (b *sqliteBatch) CreateRawNote(ctx context.Context, n RawNote) (int64, error) {
	res, err := b.tx.ExecContext(ctx,
		`INSERT INTO raw_notes (contact_id, content) VALUES (?, ?)`,
		n.ContactID, n.Content)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (b *sqliteBatch) Commit() error {
	if b.finished {
		return nil
	}
	b.finished = true
	defer b.release()
	return b.tx.Commit()
}

func (b *sqliteBatch) Rollback() error {
	if b.finished {
		return nil
	}
	b.finished = true
	defer b.release()
	return b.tx.Rollback()
}
