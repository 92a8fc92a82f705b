package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/render"
)

func botCmd() *cobra.Command {
	var (
		addr     string
		name     string
		poll     time.Duration
		listen   bool
		pngPath  string
		pngScale int
	)
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Join a canvas and paint random pixels until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseUrl, err := url.Parse("http://" + addr)
			if err != nil {
				return err
			}
			b := &bot{baseUrl: baseUrl.JoinPath("canvas", name), client: &http.Client{Timeout: 10 * time.Second}}
			return b.run(poll, listen, pngPath, pngScale)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "the address to request on")
	cmd.Flags().StringVar(&name, "canvas", "0000", "the canvas to join")
	cmd.Flags().DurationVar(&poll, "poll", 5*time.Second, "how often to poll for deltas")
	cmd.Flags().BoolVar(&listen, "listen", true, "also follow updates over the websocket")
	cmd.Flags().StringVar(&pngPath, "png", "", "write the bot's view of the canvas to this file on exit")
	cmd.Flags().IntVar(&pngScale, "scale", 4, "pixel scale of the --png output")
	return cmd
}

// bot holds one user's view of a canvas, kept current from deltas and pushed updates.
type bot struct {
	baseUrl *url.URL
	client  *http.Client

	key string
	id  string

	mu   sync.Mutex
	view *canvas.Grid
}

type apiError struct {
	status      int
	Code        string   `json:"error"`
	Message     string   `json:"message"`
	WaitSeconds *float64 `json:"waitSeconds"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.Code, e.Message)
}

// call sends the credentials as both query parameters and cookies and decodes a JSON reply into out.
func (b *bot) call(ctx context.Context, method, path string, query url.Values, out any) error {
	u := b.baseUrl.JoinPath(path)
	if query == nil {
		query = url.Values{}
	}
	if b.key != "" {
		query.Set("key", b.key)
	}
	if b.id != "" {
		query.Set("id", b.id)
	}
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	if b.key != "" {
		req.AddCookie(&http.Cookie{Name: "key", Value: b.key})
	}
	if b.id != "" {
		req.AddCookie(&http.Cookie{Name: "id", Value: b.id})
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read body from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		e := &apiError{status: resp.StatusCode}
		if err := json.Unmarshal(raw, e); err != nil {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return e
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (b *bot) join(ctx context.Context) error {
	var pre struct {
		Key string `json:"key"`
	}
	if err := b.call(ctx, http.MethodGet, "preinit", nil, &pre); err != nil {
		return err
	}
	b.key = pre.Key

	var joined struct {
		ID     string          `json:"id"`
		Width  int             `json:"width"`
		Height int             `json:"height"`
		Data   [][]canvas.Cell `json:"data"`
	}
	if err := b.call(ctx, http.MethodGet, "init", nil, &joined); err != nil {
		return err
	}
	b.id = joined.ID
	b.view = canvas.NewGrid(joined.Width, joined.Height)
	for x, column := range joined.Data {
		for y, cell := range column {
			_ = b.view.Set(x, y, cell)
		}
	}
	slog.Info("joined", "id", b.id, "width", joined.Width, "height", joined.Height)
	return nil
}

func (b *bot) apply(deltas ...canvas.Delta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range deltas {
		_ = b.view.Set(d.X, d.Y, d.Cell)
	}
}

// poll fetches the unseen changes, applies them to the view and returns how many there were.
func (b *bot) poll(ctx context.Context) (int, error) {
	var res struct {
		Deltas []canvas.Delta `json:"deltas"`
	}
	if err := b.call(ctx, http.MethodGet, "deltas", nil, &res); err != nil {
		return 0, err
	}
	b.apply(res.Deltas...)
	return len(res.Deltas), nil
}

func (b *bot) cell(x, y int) canvas.Cell {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _ := b.view.Get(x, y)
	return c
}

func (b *bot) pollContinuously(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n, err := b.poll(ctx); err != nil {
				slog.Error("failed to poll", "err", err)
			} else {
				slog.Info("polled", "deltas", n)
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled poll")
			return
		}
	}
}

func (b *bot) listenContinuously(ctx context.Context) {
	for {
		if err := b.listen(ctx); err != nil && ctx.Err() == nil {
			slog.Error("stream failed", "err", err)
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			slog.Info("stopping stream")
			return
		}
	}
}

func (b *bot) listen(ctx context.Context) error {
	u := b.baseUrl.JoinPath("ws")
	u.Scheme = "ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	for {
		var update canvas.Update
		if err := conn.ReadJSON(&update); err != nil {
			return fmt.Errorf("failed to read: %w", err)
		}
		b.apply(update.Delta)
		slog.Debug("update", "x", update.Delta.X, "y", update.Delta.Y, "color", update.Delta.Cell.Hex())
	}
}

func (b *bot) paintContinuously(ctx context.Context) {
	wait := time.Second
	for {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
			wait = b.paint(ctx)
		case <-ctx.Done():
			t.Stop()
			slog.Info("stopping paint")
			return
		}
	}
}

// paint tries one random pixel and returns how long to wait before the next attempt.
func (b *bot) paint(ctx context.Context) time.Duration {
	x, y := rand.Intn(b.view.Width()), rand.Intn(b.view.Height())
	q := url.Values{}
	q.Set("x", strconv.Itoa(x))
	q.Set("y", strconv.Itoa(y))
	q.Set("r", strconv.Itoa(rand.Intn(256)))
	q.Set("g", strconv.Itoa(rand.Intn(256)))
	q.Set("b", strconv.Itoa(rand.Intn(256)))
	var res struct {
		Delta canvas.Delta `json:"delta"`
	}
	err := b.call(ctx, http.MethodPost, "edit", q, &res)
	var apiErr *apiError
	switch {
	case err == nil:
		b.apply(res.Delta)
		slog.Info("painted", "x", res.Delta.X, "y", res.Delta.Y, "color", res.Delta.Cell.Hex())
		return time.Second
	case errors.As(err, &apiErr) && apiErr.WaitSeconds != nil:
		wait := time.Duration(*apiErr.WaitSeconds * float64(time.Second))
		slog.Info("rate limited", "wait", wait)
		return wait + 10*time.Millisecond
	default:
		slog.Error("failed to paint", "err", err)
		return 5 * time.Second
	}
}

func (b *bot) run(poll time.Duration, listen bool, pngPath string, pngScale int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.join(ctx); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pollContinuously(ctx, poll)
	}()

	if listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.listenContinuously(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.paintContinuously(ctx)
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()

	if pngPath == "" {
		return nil
	}
	f, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	defer f.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := render.PNG(f, b.view, render.Options{Scale: pngScale, Caption: b.id}); err != nil {
		return err
	}
	slog.Info("rendered", "path", "file://"+pngPath)
	return nil
}
