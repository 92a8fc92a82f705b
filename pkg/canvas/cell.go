package canvas

import (
	"encoding/json"
	"fmt"
)

// Cell is a single RGB pixel of a canvas.
type Cell struct {
	R, G, B uint8
}

// Hex returns the cell as a #rrggbb string.
func (c Cell) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex is the inverse of Cell.Hex.
func ParseHex(s string) (Cell, error) {
	var c Cell
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid colour %q", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return c, nil
}

// MarshalJSON encodes the cell as [r,g,b].
func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{int(c.R), int(c.G), int(c.B)})
}

func (c *Cell) UnmarshalJSON(raw []byte) error {
	var v [3]int
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	cell, err := NewCell(v[0], v[1], v[2])
	if err != nil {
		return err
	}
	*c = cell
	return nil
}

// NewCell builds a cell from untrusted channel values.
func NewCell(r, g, b int) (Cell, error) {
	for _, v := range [3]int{r, g, b} {
		if v < 0 || v > 255 {
			return Cell{}, fmt.Errorf("%w: %d", ErrInvalidColorChannel, v)
		}
	}
	return Cell{R: uint8(r), G: uint8(g), B: uint8(b)}, nil
}

// Delta is one observable change: a coordinate and the colour now stored there.
type Delta struct {
	X, Y int
	Cell Cell
}

// MarshalJSON encodes the delta as [y,x,r,g,b].
func (d Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal([5]int{d.Y, d.X, int(d.Cell.R), int(d.Cell.G), int(d.Cell.B)})
}

func (d *Delta) UnmarshalJSON(raw []byte) error {
	var v [5]int
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	cell, err := NewCell(v[2], v[3], v[4])
	if err != nil {
		return err
	}
	*d = Delta{X: v[1], Y: v[0], Cell: cell}
	return nil
}
