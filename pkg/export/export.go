// Package export converts a canvas snapshot to and from an automerge document so offline tools
// can load, inspect and merge it.
package export

import (
	"fmt"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

// Encode builds a document with the keys name, width, height and cells, where cells holds one
// #rrggbb string per cell in row-major order.
func Encode(name string, g *canvas.Grid) (*automerge.Doc, error) {
	doc := automerge.New()
	if err := doc.Path("name").Set(name); err != nil {
		return nil, fmt.Errorf("failed to set name: %w", err)
	}
	if err := doc.Path("width").Set(g.Width()); err != nil {
		return nil, fmt.Errorf("failed to set width: %w", err)
	}
	if err := doc.Path("height").Set(g.Height()); err != nil {
		return nil, fmt.Errorf("failed to set height: %w", err)
	}
	cells := make([]interface{}, 0, g.Width()*g.Height())
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			c, _ := g.Get(x, y)
			cells = append(cells, c.Hex())
		}
	}
	if err := doc.Path("cells").Set(cells); err != nil {
		return nil, fmt.Errorf("failed to set cells: %w", err)
	}
	if _, err := doc.Commit("export "+name, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return doc, nil
}

// Save is Encode followed by doc.Save.
func Save(name string, g *canvas.Grid) ([]byte, error) {
	doc, err := Encode(name, g)
	if err != nil {
		return nil, err
	}
	return doc.Save(), nil
}

// Decode reads a document produced by Encode.
func Decode(doc *automerge.Doc) (string, *canvas.Grid, error) {
	name, err := automerge.As[string](doc.Path("name").Get())
	if err != nil {
		return "", nil, fmt.Errorf("failed to read name: %w", err)
	}
	width, err := automerge.As[int](doc.Path("width").Get())
	if err != nil {
		return "", nil, fmt.Errorf("failed to read width: %w", err)
	}
	height, err := automerge.As[int](doc.Path("height").Get())
	if err != nil {
		return "", nil, fmt.Errorf("failed to read height: %w", err)
	}
	if width <= 0 || height <= 0 {
		return "", nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	cells, err := automerge.As[[]string](doc.Path("cells").Get())
	if err != nil {
		return "", nil, fmt.Errorf("failed to read cells: %w", err)
	}
	if len(cells) != width*height {
		return "", nil, fmt.Errorf("expected %d cells, found %d", width*height, len(cells))
	}
	g := canvas.NewGrid(width, height)
	for i, hex := range cells {
		c, err := canvas.ParseHex(hex)
		if err != nil {
			return "", nil, fmt.Errorf("cell %d: %w", i, err)
		}
		_ = g.Set(i%width, i/width, c)
	}
	return name, g, nil
}

// Load parses saved document bytes and decodes them.
func Load(raw []byte) (*automerge.Doc, string, *canvas.Grid, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load doc: %w", err)
	}
	name, g, err := Decode(doc)
	if err != nil {
		return nil, "", nil, err
	}
	return doc, name, g, nil
}
