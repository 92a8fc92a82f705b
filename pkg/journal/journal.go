// Package journal keeps an append-only sqlite history of accepted edits. It is read back for
// the history endpoints only; grid state is never restored from it.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/metrics"
)

// Entry is one journaled edit. ID is assigned on insert and keeps increasing across restarts,
// unlike Seq which counts from 1 in every process.
type Entry struct {
	ID     int64        `json:"id"`
	Canvas string       `json:"canvas"`
	Seq    uint64       `json:"seq"`
	UserID string       `json:"userId"`
	Delta  canvas.Delta `json:"delta"`
	At     time.Time    `json:"at"`
}

type Options struct {
	// Buffer is how many edits may wait for the next flush before new ones are dropped.
	Buffer int
	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration
	Metrics       *metrics.Metrics
}

type Journal struct {
	database *sql.DB
	opts     Options
	pending  chan Entry
}

// Open opens (creating if needed) the journal at path. ":memory:" keeps it in memory.
func Open(path string, opts Options) (*Journal, error) {
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	j := &Journal{database: db, opts: opts, pending: make(chan Entry, opts.Buffer)}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	if _, err := j.database.Exec(
		`CREATE TABLE IF NOT EXISTS edits (
		id integer not null primary key autoincrement,
		canvas text not null,
		seq integer not null,
		user_id text not null,
		x integer not null,
		y integer not null,
		r integer not null,
		g integer not null,
		b integer not null,
		at integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create edits table: %w", err)
	}
	if _, err := j.database.Exec(`CREATE INDEX IF NOT EXISTS edits_canvas_id ON edits (canvas, id)`); err != nil {
		return fmt.Errorf("failed to create edits index: %w", err)
	}
	return nil
}

// ObserveEdit queues an accepted edit. It never blocks; when the buffer is full the edit is
// dropped and counted.
func (j *Journal) ObserveEdit(e canvas.Edit) {
	select {
	case j.pending <- Entry{Canvas: e.Canvas, Seq: e.Seq, UserID: e.UserID, Delta: e.Delta, At: e.At}:
	default:
		slog.Warn("journal buffer full, dropping edit", "canvas", e.Canvas, "seq", e.Seq)
		j.opts.Metrics.RecordJournal(0, 1)
	}
}

// Run flushes queued edits every FlushInterval until ctx is done, then flushes once more.
func (j *Journal) Run(ctx context.Context) {
	t := time.NewTicker(j.opts.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := j.Flush(ctx); err != nil {
				slog.Error("failed to flush journal", "err", err)
			}
		case <-ctx.Done():
			if err := j.Flush(context.Background()); err != nil {
				slog.Error("failed to flush journal", "err", err)
			}
			return
		}
	}
}

func (j *Journal) drain() []Entry {
	var batch []Entry
	for {
		select {
		case e := <-j.pending:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// Flush writes every queued edit in one transaction.
func (j *Journal) Flush(ctx context.Context) error {
	batch := j.drain()
	if len(batch) == 0 {
		return nil
	}
	tx, err := j.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("failed to rollback", "err", err)
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO edits (canvas, seq, user_id, x, y, r, g, b, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range batch {
		c := e.Delta.Cell
		if _, err := stmt.ExecContext(ctx, e.Canvas, e.Seq, e.UserID, e.Delta.X, e.Delta.Y, c.R, c.G, c.B, e.At.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert edit: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	j.opts.Metrics.RecordJournal(len(batch), 0)
	slog.Debug("journal flushed", "edits", len(batch))
	return nil
}

// History returns up to limit of the most recent edits of a canvas, oldest first.
func (j *Journal) History(ctx context.Context, canvasName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.database.QueryContext(ctx,
		`SELECT id, canvas, seq, user_id, x, y, r, g, b, at FROM (
			SELECT * FROM edits WHERE canvas = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		canvasName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "err", err)
		}
	}(rows)

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var r, g, b int
		var at int64
		if err := rows.Scan(&e.ID, &e.Canvas, &e.Seq, &e.UserID, &e.Delta.X, &e.Delta.Y, &r, &g, &b, &at); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		if e.Delta.Cell, err = canvas.NewCell(r, g, b); err != nil {
			return nil, fmt.Errorf("corrupt journal row: %w", err)
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.database.Close()
}
