// Package watermark builds the tileable text pattern stamped behind report pages.
package watermark

import (
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/ByLCY/chartfolio/fonts"
	"github.com/ByLCY/chartfolio/layout"
)

// maxTileSide bounds the raster we are willing to allocate for one tile.
const maxTileSide = 4096

// Tile is a raster holding two diagonally offset instances of the text.
type Tile struct {
	Image  *image.RGBA
	Width  int
	Height int
}

// Build measures the text, sizes a tile for two rotated instances plus the
// configured gap and draws them at the configured opacity. It reports false
// ("no watermark") when there is nothing to draw or no surface can be made.
func Build(cfg layout.Watermark) (*Tile, bool) {
	text := strings.TrimSpace(cfg.Text)
	if text == "" || cfg.FontSizePx <= 0 || cfg.Opacity <= 0 {
		return nil, false
	}
	opacity := math.Min(cfg.Opacity, 1)
	gap := math.Max(cfg.GapPx, 0)

	face, ok := loadFace(cfg.FontSizePx)
	if !ok {
		return nil, false
	}
	probe := gg.NewContext(1, 1)
	probe.SetFontFace(face)
	w, h := probe.MeasureString(text)

	theta := gg.Radians(cfg.RotationDeg)
	cos, sin := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	rw := w*cos + h*sin
	rh := w*sin + h*cos

	tileW := int(math.Ceil(2 * (rw + gap)))
	tileH := int(math.Ceil(2 * (rh + gap)))
	if tileW < 1 || tileH < 1 || tileW > maxTileSide || tileH > maxTileSide {
		return nil, false
	}

	dc := gg.NewContext(tileW, tileH)
	dc.SetFontFace(face)
	c := cfg.Color
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, opacity)
	for _, p := range [][2]float64{
		{float64(tileW) / 4, float64(tileH) / 4},
		{3 * float64(tileW) / 4, 3 * float64(tileH) / 4},
	} {
		dc.Push()
		dc.RotateAbout(theta, p[0], p[1])
		dc.DrawStringAnchored(text, p[0], p[1], 0.5, 0.5)
		dc.Pop()
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, false
	}
	return &Tile{Image: img, Width: tileW, Height: tileH}, true
}

// Scaled returns cfg with pixel sizes multiplied by factor, for stamping
// onto rasters captured at a device pixel ratio.
func Scaled(cfg layout.Watermark, factor float64) layout.Watermark {
	if factor <= 0 {
		return cfg
	}
	cfg.FontSizePx *= factor
	cfg.GapPx *= factor
	return cfg
}

// Stamp repeats the tile over dst, drawn over the existing pixels.
func (t *Tile) Stamp(dst draw.Image) {
	if t == nil || t.Image == nil {
		return
	}
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += t.Height {
		for x := b.Min.X; x < b.Max.X; x += t.Width {
			r := image.Rect(x, y, x+t.Width, y+t.Height).Intersect(b)
			draw.Draw(dst, r, t.Image, image.Point{}, draw.Over)
		}
	}
}

func loadFace(sizePx float64) (font.Face, bool) {
	data, err := fonts.Load(fonts.Regular)
	if err != nil {
		return nil, false
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, false
	}
	// DPI 72 makes Size a pixel size.
	return truetype.NewFace(f, &truetype.Options{Size: sizePx, DPI: 72}), true
}
