// Package viz renders the edit history of a canvas as a graph: each edit is a node filled with
// its colour, solid edges link an edit to the edit it overwrote and dashed edges link
// consecutive edits of the same user.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/pixelwar/pkg/journal"
)

// label numbers an entry by its journal id, falling back to its in-process sequence.
func label(e journal.Entry) string {
	n := strconv.FormatUint(e.Seq, 10)
	if e.ID > 0 {
		n = strconv.FormatInt(e.ID, 10)
	}
	return fmt.Sprintf("#%s %s@(%d,%d) %s", n, shortUser(e.UserID), e.Delta.X, e.Delta.Y, e.Delta.Cell.Hex())
}

func shortUser(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// fontColor keeps labels readable on dark fills.
func fontColor(e journal.Entry) string {
	c := e.Delta.Cell
	if int(c.R)*299+int(c.G)*587+int(c.B)*114 < 128000 {
		return "#ffffff"
	}
	return "#000000"
}

// RenderHistory writes entries (oldest first) as an SVG graph to w.
func RenderHistory(entries []journal.Entry, w io.Writer) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	lastAtCell := make(map[[2]int]*cgraph.Node)
	lastByUser := make(map[string]*cgraph.Node)
	var edgeCounter int
	edge := func(from, to *cgraph.Node) (*cgraph.Edge, error) {
		edgeCounter++
		e, err := graph.CreateEdge(strconv.Itoa(edgeCounter), from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to create edge: %w", err)
		}
		return e, nil
	}

	for i, entry := range entries {
		n, err := graph.CreateNode("e" + strconv.Itoa(i))
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(label(entry))
		n.SetStyle(cgraph.FilledNodeStyle)
		n.SetFillColor(entry.Delta.Cell.Hex())
		n.SetFontColor(fontColor(entry))

		cell := [2]int{entry.Delta.X, entry.Delta.Y}
		if prev, ok := lastAtCell[cell]; ok {
			if _, err := edge(prev, n); err != nil {
				return err
			}
		}
		lastAtCell[cell] = n

		if prev, ok := lastByUser[entry.UserID]; ok {
			e, err := edge(prev, n)
			if err != nil {
				return err
			}
			e.SetStyle(cgraph.DashedEdgeStyle)
		}
		lastByUser[entry.UserID] = n
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if _, err := w.Write(buff.Bytes()); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}
