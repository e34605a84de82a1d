package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kayz/promptbot/internal/persona"
)

// Store handles persistence of persona documents and session snapshots using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new SQLite-backed persistence store at the given path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS personas (
			name        TEXT PRIMARY KEY,
			document    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			persona     TEXT NOT NULL,
			snapshot    TEXT NOT NULL,
			turns       INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			turn_index  INTEGER NOT NULL,
			user_text   TEXT,
			bot_text    TEXT,
			tokens      INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			UNIQUE(session_id, turn_index),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_persona ON sessions(persona);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`)
	return err
}

// SavePersona inserts or replaces a persona document.
func (s *Store) SavePersona(name string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO personas (name, document, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, name, string(doc), now, now)
	if err != nil {
		return fmt.Errorf("save persona %s: %w", name, err)
	}
	return nil
}

// GetPersona returns the stored persona, or ErrNotFound.
func (s *Store) GetPersona(name string) (*PersonaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, document, created_at, updated_at
		FROM personas
		WHERE name = ?
	`, name)
	rec, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get persona %s: %w", name, err)
	}
	return rec, nil
}

// ListPersonas returns every stored persona ordered by name.
func (s *Store) ListPersonas() ([]*PersonaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, document, created_at, updated_at
		FROM personas
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var out []*PersonaRecord
	for rows.Next() {
		rec, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeletePersona removes a persona. Deleting a missing persona is not an error.
func (s *Store) DeletePersona(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM personas WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete persona %s: %w", name, err)
	}
	return nil
}

func scanPersona(sc scanner) (*PersonaRecord, error) {
	var rec PersonaRecord
	var doc, createdAt, updatedAt string
	if err := sc.Scan(&rec.Name, &doc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Document = []byte(doc)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// SaveSession inserts or replaces a session snapshot.
func (s *Store) SaveSession(id, personaName, snapshot string, turns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, persona, snapshot, turns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot = excluded.snapshot,
			turns = excluded.turns,
			updated_at = excluded.updated_at
	`, id, personaName, snapshot, turns, now, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// GetSession returns the stored session, or ErrNotFound.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, persona, snapshot, turns, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns sessions of a persona, most recently updated
// first. An empty persona lists all sessions.
func (s *Store) ListSessions(personaName string) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, persona, snapshot, turns, created_at, updated_at
		FROM sessions
	`
	var args []any
	if personaName != "" {
		query += ` WHERE persona = ?`
		args = append(args, personaName)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its transcript.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete turns of %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return tx.Commit()
}

func scanSession(sc scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, updatedAt string
	if err := sc.Scan(&rec.ID, &rec.Persona, &rec.Snapshot, &rec.Turns, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// AppendTurn records one exchange of a session transcript.
func (s *Store) AppendTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO turns (session_id, turn_index, user_text, bot_text, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.SessionID, t.Index, t.User, t.Bot, t.Tokens, createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append turn %d of %s: %w", t.Index, t.SessionID, err)
	}
	return nil
}

// ListTurns returns the transcript of a session in turn order.
func (s *Store) ListTurns(sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT session_id, turn_index, user_text, bot_text, tokens, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY turn_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var user, bot sql.NullString
		var createdAt string
		if err := rows.Scan(&t.SessionID, &t.Index, &user, &bot, &t.Tokens, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.User, t.Bot = user.String, bot.String
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// PersonaSource reads persona documents from the store.
type PersonaSource struct {
	Store *Store
}

func (p PersonaSource) Read(_ context.Context, name string) ([]byte, error) {
	rec, err := p.Store.GetPersona(name)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", persona.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return rec.Document, nil
}
