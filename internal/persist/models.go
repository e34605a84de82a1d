package persist

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// PersonaRecord is a stored persona document.
type PersonaRecord struct {
	Name      string
	Document  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRecord is a stored session snapshot. Snapshot holds the encoded
// session as produced by session.Snapshot.Encode.
type SessionRecord struct {
	ID        string
	Persona   string
	Snapshot  string
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one completed exchange of a session transcript.
type Turn struct {
	SessionID string
	Index     int
	User      string
	Bot       string
	Tokens    int
	CreatedAt time.Time
}

// scanner interface for both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
