package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

func openTest(t *testing.T, opts Options) *Journal {
	t.Helper()
	j, err := Open(":memory:", opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func edit(name string, seq uint64, x, y int) canvas.Edit {
	return canvas.Edit{
		Canvas: name,
		UserID: "u",
		Seq:    seq,
		Delta:  canvas.Delta{X: x, Y: y, Cell: canvas.Cell{R: uint8(seq)}},
		At:     time.Unix(0, int64(seq)*1000),
	}
}

func TestFlushAndHistory(t *testing.T) {
	j := openTest(t, Options{})
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		j.ObserveEdit(edit("a", i, int(i), 0))
	}
	j.ObserveEdit(edit("b", 1, 0, 0))
	if err := j.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	got, err := j.History(ctx, "a", 3)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("History() = %+v", got)
	}
	for i, e := range got {
		want := uint64(i + 3)
		if e.Seq != want || e.Delta.X != int(want) || e.Delta.Cell.R != uint8(want) || e.Canvas != "a" {
			t.Errorf("entry %d = %+v", i, e)
		}
		if !e.At.Equal(time.Unix(0, int64(want)*1000)) {
			t.Errorf("entry %d at = %s", i, e.At)
		}
	}

	other, err := j.History(ctx, "b", 10)
	if err != nil || len(other) != 1 {
		t.Fatalf("History(b) = %+v, %v", other, err)
	}
}

func TestObserveDropsWhenFull(t *testing.T) {
	j := openTest(t, Options{Buffer: 2})
	for i := uint64(1); i <= 4; i++ {
		j.ObserveEdit(edit("a", i, 0, 0))
	}
	if err := j.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err := j.History(context.Background(), "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("History() = %+v", got)
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	j := openTest(t, Options{FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()
	j.ObserveEdit(edit("a", 1, 0, 0))
	cancel()
	<-done

	got, err := j.History(context.Background(), "a", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("History() = %+v, %v", got, err)
	}
}

func TestJournalAsCanvasObserver(t *testing.T) {
	j := openTest(t, Options{})
	c, err := canvas.New("c", canvas.Options{Width: 2, Height: 2}, canvas.WithObserver(j))
	if err != nil {
		t.Fatal(err)
	}
	token := c.IssueToken()
	res, _ := c.Join(token)
	if _, err := c.Edit(token, res.UserID, 1, 1, 9, 8, 7); err != nil {
		t.Fatal(err)
	}
	if err := j.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := j.History(context.Background(), "c", 10)
	if len(got) != 1 || got[0].UserID != res.UserID || got[0].Delta.Cell != (canvas.Cell{R: 9, G: 8, B: 7}) {
		t.Fatalf("History() = %+v", got)
	}
}

func TestHistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite3")
	ctx := context.Background()

	first, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	for i := uint64(1); i <= 3; i++ {
		e := edit("0000", i, int(i), 0)
		e.UserID = "old"
		first.ObserveEdit(e)
	}
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// a new process numbers its edits from 1 again
	second, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	e := edit("0000", 1, 9, 0)
	e.UserID = "new"
	second.ObserveEdit(e)
	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	latest, err := second.History(ctx, "0000", 1)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(latest) != 1 || latest[0].UserID != "new" || latest[0].Delta.X != 9 {
		t.Fatalf("latest entry = %+v", latest)
	}

	all, err := second.History(ctx, "0000", 10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(all) != 4 || all[3].UserID != "new" {
		t.Fatalf("History() = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("ids not increasing: %d then %d", all[i-1].ID, all[i].ID)
		}
	}
}
