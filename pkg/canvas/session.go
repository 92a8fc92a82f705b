package canvas

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is what the canvas remembers about one user: the grid as that user last saw it and
// when they last edited.
type Session struct {
	ID string

	lastSeen *Grid
	// zero means the user never edited
	lastEdit time.Time
}

// LastEdit returns the time of the last accepted edit and false if there was none.
func (s *Session) LastEdit() (time.Time, bool) {
	return s.lastEdit, !s.lastEdit.IsZero()
}

// recordEdit never moves lastEdit backwards.
func (s *Session) recordEdit(at time.Time) {
	if at.After(s.lastEdit) {
		s.lastEdit = at
	}
}

// SessionTable maps user ids to sessions for one canvas.
type SessionTable struct {
	sessions map[string]*Session
}

func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]*Session)}
}

// Create allocates a user id whose snapshot is a deep copy of grid.
func (t *SessionTable) Create(grid *Grid) *Session {
	s := &Session{ID: uuid.NewString(), lastSeen: grid.Clone()}
	t.sessions[s.ID] = s
	return s
}

func (t *SessionTable) IsValid(id string) bool {
	_, ok := t.sessions[id]
	return ok
}

func (t *SessionTable) Get(id string) (*Session, error) {
	s, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	return s, nil
}

func (t *SessionTable) Len() int {
	return len(t.sessions)
}
