// Package render draws a grid to PNG.
package render

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

const (
	MaxScale      = 32
	captionHeight = 20
	captionSize   = 12
)

type Options struct {
	// Scale is the side in pixels of one cell; 0 means 1.
	Scale int
	// Caption is drawn in a strip under the grid when set.
	Caption string
}

var (
	fontOnce sync.Once
	fontErr  error
	fontTT   *truetype.Font
)

func captionFace() (font.Face, error) {
	fontOnce.Do(func() {
		fontTT, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse caption font: %w", fontErr)
	}
	return truetype.NewFace(fontTT, &truetype.Options{Size: captionSize}), nil
}

// Image draws g into an in-memory image.
func Image(g *canvas.Grid, opts Options) (image.Image, error) {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	if scale > MaxScale {
		return nil, fmt.Errorf("scale %d above maximum %d", scale, MaxScale)
	}
	height := g.Height() * scale
	if opts.Caption != "" {
		height += captionHeight
	}
	dc := gg.NewContext(g.Width()*scale, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			c, _ := g.Get(x, y)
			dc.SetRGB255(int(c.R), int(c.G), int(c.B))
			dc.DrawRectangle(float64(x*scale), float64(y*scale), float64(scale), float64(scale))
			dc.Fill()
		}
	}

	if opts.Caption != "" {
		face, err := captionFace()
		if err != nil {
			return nil, err
		}
		dc.SetFontFace(face)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(opts.Caption, 4, float64(g.Height()*scale)+captionHeight/2, 0, 0.5)
	}
	return dc.Image(), nil
}

// PNG draws g and encodes it to w.
func PNG(w io.Writer, g *canvas.Grid, opts Options) error {
	img, err := Image(g, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
