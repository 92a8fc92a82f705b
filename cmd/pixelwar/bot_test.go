package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/astromechza/pixelwar/pkg/api"
	"github.com/astromechza/pixelwar/pkg/canvas"
)

func newBotEnv(t *testing.T) (*bot, *canvas.Canvas) {
	t.Helper()
	registry := canvas.NewRegistry()
	c, err := registry.Create("0000", canvas.Options{Width: 3, Height: 2, Cooldown: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.New(api.Options{Registry: registry, CookieSecure: true}).Router())
	t.Cleanup(func() {
		c.Hub().CloseAll()
		srv.Close()
	})
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &bot{baseUrl: base.JoinPath("canvas", "0000"), client: srv.Client()}, c
}

// paintAs edits through the canvas directly, as some other user.
func paintAs(t *testing.T, c *canvas.Canvas, x, y int, cell canvas.Cell) {
	t.Helper()
	key := c.IssueToken()
	joined, err := c.Join(key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Edit(key, joined.UserID, x, y, int(cell.R), int(cell.G), int(cell.B)); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBotJoinsAndPolls(t *testing.T) {
	b, c := newBotEnv(t)
	ctx := context.Background()

	paintAs(t, c, 1, 1, canvas.Cell{R: 9})
	// secure cookies are not kept by clients over plain http, so the bot must send its own
	if err := b.join(ctx); err != nil {
		t.Fatalf("join() error: %v", err)
	}
	if b.id == "" || b.key == "" {
		t.Fatalf("missing credentials key=%q id=%q", b.key, b.id)
	}
	if b.view.Width() != 3 || b.view.Height() != 2 {
		t.Fatalf("view is %dx%d", b.view.Width(), b.view.Height())
	}
	if got := b.cell(1, 1); got != (canvas.Cell{R: 9}) {
		t.Fatalf("joined view at (1,1) = %+v", got)
	}

	paintAs(t, c, 2, 0, canvas.Cell{G: 7})
	n, err := b.poll(ctx)
	if err != nil {
		t.Fatalf("poll() error: %v", err)
	}
	if n != 1 || b.cell(2, 0) != (canvas.Cell{G: 7}) {
		t.Fatalf("poll() = %d, view at (2,0) = %+v", n, b.cell(2, 0))
	}
	if n, err := b.poll(ctx); err != nil || n != 0 {
		t.Fatalf("second poll() = %d, %v", n, err)
	}
}

func TestBotHonoursRateLimit(t *testing.T) {
	b, c := newBotEnv(t)
	ctx := context.Background()
	if err := b.join(ctx); err != nil {
		t.Fatalf("join() error: %v", err)
	}

	if wait := b.paint(ctx); wait != time.Second {
		t.Fatalf("first paint wait = %s", wait)
	}
	if c.Version() != 1 {
		t.Fatalf("version = %d after first paint", c.Version())
	}
	wait := b.paint(ctx)
	if wait < 59*time.Minute || wait > time.Hour+time.Second {
		t.Fatalf("rate limited paint wait = %s", wait)
	}
	if c.Version() != 1 {
		t.Fatalf("rate limited paint changed the canvas: version %d", c.Version())
	}

	// the bot's own edit is already in its view
	if n, err := b.poll(ctx); err != nil || n != 0 {
		t.Fatalf("poll() after own edit = %d, %v", n, err)
	}
}

func TestBotAppliesPushedUpdates(t *testing.T) {
	b, c := newBotEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.join(ctx); err != nil {
		t.Fatalf("join() error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- b.listen(ctx) }()
	waitFor(t, "stream registration", func() bool { return c.Hub().Len() == 1 })

	paintAs(t, c, 0, 1, canvas.Cell{B: 200})
	waitFor(t, "pushed update", func() bool { return b.cell(0, 1) == (canvas.Cell{B: 200}) })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("listen() did not return after cancel")
	}
}

func TestBotReportsAPIErrors(t *testing.T) {
	b, _ := newBotEnv(t)
	b.baseUrl = b.baseUrl.JoinPath("..", "missing")
	err := b.join(context.Background())
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.status != http.StatusNotFound || apiErr.Code != "canvas_not_found" {
		t.Fatalf("join() error = %v", err)
	}
}
