package viz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/journal"
)

func TestRenderHistory(t *testing.T) {
	entries := []journal.Entry{
		{Seq: 1, UserID: "alice-0123456789", Delta: canvas.Delta{X: 0, Y: 0, Cell: canvas.Cell{R: 255}}},
		{Seq: 2, UserID: "bob", Delta: canvas.Delta{X: 0, Y: 0, Cell: canvas.Cell{G: 255}}},
		{Seq: 3, UserID: "alice-0123456789", Delta: canvas.Delta{X: 1, Y: 0, Cell: canvas.Cell{B: 255}}},
	}
	var buf bytes.Buffer
	if err := RenderHistory(entries, &buf); err != nil {
		t.Fatalf("RenderHistory() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Fatalf("not an svg: %.200s", out)
	}
	for _, want := range []string{"#1 alice-01@(0,0) #ff0000", "#2 bob@(0,0) #00ff00", "stroke-dasharray"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestRenderEmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHistory(nil, &buf); err != nil {
		t.Fatalf("RenderHistory() error: %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Fatal("not an svg")
	}
}

func TestRenderHistoryKeepsRepeatedSeqApart(t *testing.T) {
	entries := []journal.Entry{
		{ID: 7, Seq: 1, UserID: "old", Delta: canvas.Delta{X: 0, Y: 0, Cell: canvas.Cell{R: 255}}},
		{ID: 8, Seq: 1, UserID: "new", Delta: canvas.Delta{X: 1, Y: 0, Cell: canvas.Cell{G: 255}}},
	}
	var buf bytes.Buffer
	if err := RenderHistory(entries, &buf); err != nil {
		t.Fatalf("RenderHistory() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"#7 old@(0,0) #ff0000", "#8 new@(1,0) #00ff00"} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if n := strings.Count(out, `class="node"`); n != 2 {
		t.Errorf("got %d nodes, want 2", n)
	}
}
