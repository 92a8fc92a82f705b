package canvas

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/pixelwar/pkg/hub"
)

// Options describe a canvas.
type Options struct {
	Width    int
	Height   int
	Cooldown time.Duration
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", o.Width, o.Height)
	}
	if o.Cooldown < 0 {
		return fmt.Errorf("negative cooldown %s", o.Cooldown)
	}
	return nil
}

// Edit is an accepted edit as seen by observers.
type Edit struct {
	Canvas string
	UserID string
	Seq    uint64
	Delta  Delta
	At     time.Time
}

// EditObserver is notified of accepted edits in acceptance order, after the push broadcast.
type EditObserver interface {
	ObserveEdit(Edit)
}

type EditObserverFunc func(Edit)

func (f EditObserverFunc) ObserveEdit(e Edit) { f(e) }

// Update is the push message sent for every accepted edit.
type Update struct {
	Type  string `json:"type"`
	Delta Delta  `json:"delta"`
}

type CanvasOption func(*Canvas)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CanvasOption {
	return func(c *Canvas) {
		c.now = now
	}
}

func WithObserver(o EditObserver) CanvasOption {
	return func(c *Canvas) {
		c.observers = append(c.observers, o)
	}
}

func WithHubOptions(opts ...hub.Option) CanvasOption {
	return func(c *Canvas) {
		c.hubOpts = append(c.hubOpts, opts...)
	}
}

// Canvas is one isolated shared grid with its tokens, sessions and push hub. A single lock
// covers the grid and every session snapshot, so no delta scan overlaps a write.
type Canvas struct {
	name    string
	limiter RateLimiter

	mu       sync.RWMutex
	grid     *Grid
	tokens   *TokenRegistry
	sessions *SessionTable
	version  uint64

	seq       *sequencer
	hub       *hub.Hub
	hubOpts   []hub.Option
	observers []EditObserver
	now       func() time.Time
}

func New(name string, opts Options, extra ...CanvasOption) (*Canvas, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("canvas %q: %w", name, err)
	}
	c := &Canvas{
		name:     name,
		limiter:  RateLimiter{Cooldown: opts.Cooldown},
		grid:     NewGrid(opts.Width, opts.Height),
		tokens:   NewTokenRegistry(),
		sessions: NewSessionTable(),
		seq:      newSequencer(),
		now:      time.Now,
	}
	for _, o := range extra {
		o(c)
	}
	c.hub = hub.New(c.hubOpts...)
	return c, nil
}

func (c *Canvas) Name() string            { return c.name }
func (c *Canvas) Width() int              { return c.grid.width }
func (c *Canvas) Height() int             { return c.grid.height }
func (c *Canvas) Cooldown() time.Duration { return c.limiter.Cooldown }
func (c *Canvas) Hub() *hub.Hub           { return c.hub }

// IssueToken creates a new access token for this canvas.
func (c *Canvas) IssueToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.Issue()
}

func (c *Canvas) ValidToken(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens.IsValid(token)
}

// JoinResult is what a new user receives: their id and the full grid.
type JoinResult struct {
	UserID string
	Grid   *Grid
}

// Join creates a session for the holder of token. The returned grid is a copy taken at the
// same instant as the session snapshot.
func (c *Canvas) Join(token string) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokens.IsValid(token) {
		return JoinResult{}, ErrInvalidToken
	}
	s := c.sessions.Create(c.grid)
	return JoinResult{UserID: s.ID, Grid: s.lastSeen.Clone()}, nil
}

// Authorize checks token, then userID, the same way Edit does, without changing anything.
func (c *Canvas) Authorize(token, userID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.tokens.IsValid(token) {
		return ErrInvalidToken
	}
	if !c.sessions.IsValid(userID) {
		return fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	return nil
}

// Deltas returns the changes userID has not seen yet and marks them as seen.
func (c *Canvas) Deltas(token, userID string) ([]Delta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokens.IsValid(token) {
		return nil, ErrInvalidToken
	}
	s, err := c.sessions.Get(userID)
	if err != nil {
		return nil, err
	}
	return ComputeDeltas(c.grid, s), nil
}

// Edit runs the edit pipeline: every check happens before any mutation, then the grid and the
// editor's own snapshot change together, then the update is pushed to every connection.
func (c *Canvas) Edit(token, userID string, x, y, r, g, b int) (Delta, error) {
	delta, ticket, at, err := c.apply(token, userID, x, y, r, g, b)
	if err != nil {
		return Delta{}, err
	}
	c.seq.run(ticket, func() {
		if _, err := c.hub.Broadcast(Update{Type: "update", Delta: delta}); err != nil {
			slog.Error("failed to broadcast edit", "canvas", c.name, "err", err)
		}
		e := Edit{Canvas: c.name, UserID: userID, Seq: ticket, Delta: delta, At: at}
		for _, o := range c.observers {
			o.ObserveEdit(e)
		}
	})
	return delta, nil
}

func (c *Canvas) apply(token, userID string, x, y, r, g, b int) (Delta, uint64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tokens.IsValid(token) {
		return Delta{}, 0, time.Time{}, ErrInvalidToken
	}
	if !c.sessions.IsValid(userID) {
		return Delta{}, 0, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	if !c.grid.InBounds(x, y) {
		return Delta{}, 0, time.Time{}, fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, c.grid.width, c.grid.height)
	}
	cell, err := NewCell(r, g, b)
	if err != nil {
		return Delta{}, 0, time.Time{}, err
	}
	s, err := c.sessions.Get(userID)
	if err != nil {
		return Delta{}, 0, time.Time{}, err
	}
	now := c.now()
	if wait, ok := c.limiter.TryAcquire(s, now); !ok {
		return Delta{}, 0, time.Time{}, &RateLimitedError{Wait: wait}
	}

	*c.grid.at(x, y) = cell
	*s.lastSeen.at(x, y) = cell
	s.recordEdit(now)
	c.version++
	return Delta{X: x, Y: y, Cell: cell}, c.seq.ticket(), now, nil
}

// Snapshot returns a deep copy of the grid and the number of edits applied so far.
func (c *Canvas) Snapshot() (*Grid, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.Clone(), c.version
}

// Version is the number of accepted edits.
func (c *Canvas) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Stats is a read-only summary of the canvas.
type Stats struct {
	Name     string        `json:"name"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Cooldown time.Duration `json:"-"`
	Version  uint64        `json:"version"`
	Users    int           `json:"users"`
	Tokens   int           `json:"tokens"`
	Streams  int           `json:"streams"`
}

func (c *Canvas) Stats() Stats {
	c.mu.RLock()
	st := Stats{
		Name:     c.name,
		Width:    c.grid.width,
		Height:   c.grid.height,
		Cooldown: c.limiter.Cooldown,
		Version:  c.version,
		Users:    c.sessions.Len(),
		Tokens:   c.tokens.Len(),
	}
	c.mu.RUnlock()
	st.Streams = c.hub.Len()
	return st
}
