package journal

import (
	"database/sql"
	"encoding/base64"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/custody-infra/internal/crypto"
)

// SQLiteArchive appends sealed journal entries to a local SQLite file. The
// archive is append-only: there are no update or delete paths. With a sealer
// configured, payloads are encrypted at rest bound to the entry hash, so a
// row cannot be decrypted under another entry's identity.
type SQLiteArchive struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

type ArchiveOption func(*SQLiteArchive)

// WithSealer encrypts archived payloads at rest.
func WithSealer(s *crypto.Sealer) ArchiveOption {
	return func(a *SQLiteArchive) { a.sealer = s }
}

func NewSQLiteArchive(path string, opts ...ArchiveOption) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal archive: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_entries (
			id         TEXT PRIMARY KEY,
			timestamp  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			prev_hash  TEXT NOT NULL,
			payload    TEXT NOT NULL,
			hash       TEXT NOT NULL UNIQUE
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal archive schema: %w", err)
	}

	a := &SQLiteArchive{db: db}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *SQLiteArchive) Append(e Entry) error {
	payload, err := a.encode(e)
	if err != nil {
		return err
	}

	_, err = a.db.Exec(`
		INSERT INTO journal_entries (id, timestamp, kind, prev_hash, payload, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Timestamp, e.Kind, e.PrevHash, payload, e.Hash)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Load returns all archived entries in insertion order, unsealing payloads
// when a sealer is configured.
func (a *SQLiteArchive) Load() ([]Entry, error) {
	rows, err := a.db.Query(`
		SELECT id, timestamp, kind, prev_hash, payload, hash
		FROM journal_entries
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var payload string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Kind, &e.PrevHash, &payload, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		raw, err := a.decode(e, payload)
		if err != nil {
			return nil, err
		}
		e.Payload = raw
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *SQLiteArchive) encode(e Entry) (string, error) {
	if a.sealer == nil {
		return string(e.Payload), nil
	}
	sealed, err := a.sealer.Seal(e.Payload, []byte(e.Hash))
	if err != nil {
		return "", fmt.Errorf("seal journal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (a *SQLiteArchive) decode(e Entry, stored string) ([]byte, error) {
	if a.sealer == nil {
		return []byte(stored), nil
	}
	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("decode journal payload %s: %w", e.ID, err)
	}
	raw, err := a.sealer.Open(sealed, []byte(e.Hash))
	if err != nil {
		return nil, fmt.Errorf("unseal journal payload %s: %w", e.ID, err)
	}
	return raw, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
