package canvas

import "fmt"

// Grid is a dense width x height matrix of cells. It has no locking of its own; the owning
// Canvas serializes access.
type Grid struct {
	width, height int
	cells         []Cell
}

// NewGrid returns a black grid.
func NewGrid(width, height int) *Grid {
	return &Grid{width: width, height: height, cells: make([]Cell, width*height)}
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// InBounds reports whether (x, y) addresses a cell of the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

func (g *Grid) Get(x, y int) (Cell, error) {
	if !g.InBounds(x, y) {
		return Cell{}, fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	return g.cells[y*g.width+x], nil
}

func (g *Grid) Set(x, y int, c Cell) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	g.cells[y*g.width+x] = c
	return nil
}

// at skips the bounds check for internal scans.
func (g *Grid) at(x, y int) *Cell {
	return &g.cells[y*g.width+x]
}

// Clone returns a deep copy; later writes to either grid are invisible to the other.
func (g *Grid) Clone() *Grid {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return &Grid{width: g.width, height: g.height, cells: cells}
}

// Columns returns the grid as data[x][y], the shape clients receive on join.
func (g *Grid) Columns() [][]Cell {
	out := make([][]Cell, g.width)
	for x := range out {
		out[x] = make([]Cell, g.height)
		for y := range out[x] {
			out[x][y] = *g.at(x, y)
		}
	}
	return out
}
