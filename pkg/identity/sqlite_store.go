package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/guru/pkg/conversation"
)

const sqliteIdentitySchemaV1 = `
CREATE TABLE IF NOT EXISTS local_identity (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore persists the identity as a single JSON row.
type SQLiteStore struct {
	mu     sync.Mutex
	dsn    string
	db     *sql.DB
	closed bool
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite identity store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteIdentitySchemaV1); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite identity store: migrate")
	}
	return &SQLiteStore{dsn: dsn, db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*conversation.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload_json FROM local_identity WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite identity store: load")
	}

	var identity conversation.Identity
	if err := json.Unmarshal([]byte(payload), &identity); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "sqlite identity store: %v", err)
	}
	if err := validate(&identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *SQLiteStore) Save(ctx context.Context, identity *conversation.Identity) error {
	if err := validate(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "sqlite identity store: encode")
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO local_identity (id, payload_json, updated_at_ms) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET payload_json = excluded.payload_json, updated_at_ms = excluded.updated_at_ms
`, string(payload), time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite identity store: save")
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_identity`); err != nil {
		return errors.Wrap(err, "sqlite identity store: clear")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
