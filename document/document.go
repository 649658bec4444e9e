// Package document assembles captured page bitmaps into a paginated PDF.
package document

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ByLCY/chartfolio/layout"
)

// sliceEpsilonPt stops legacy slicing once less than this much image remains.
const sliceEpsilonPt = 1.0

// ErrNoPages is returned when saving a writer whose primitive has no page.
var ErrNoPages = errors.New("document: no pages")

// Primitive is the paginated-document backend. Coordinates are points with
// a top-left origin.
type Primitive interface {
	AddPage(size layout.Size)
	DrawImage(img image.Image, g layout.RenderGeometry) error
	SetMeta(meta layout.DocumentMeta)
	Pages() int
	WriteTo(w io.Writer) error
}

// Writer places page images into a Primitive. The first page exists as soon
// as the writer is created.
type Writer struct {
	geom layout.PageGeometry
	prim Primitive
}

// New starts a document with one page of geom's size.
func New(geom layout.PageGeometry, prim Primitive) *Writer {
	if prim == nil {
		prim = NewCanvasPDF()
	}
	w := &Writer{geom: geom, prim: prim}
	prim.AddPage(geom.PageSize())
	return w
}

// SetMeta sets the document information dictionary.
func (w *Writer) SetMeta(meta layout.DocumentMeta) { w.prim.SetMeta(meta) }

// AddPage appends a page and makes it current.
func (w *Writer) AddPage() { w.prim.AddPage(w.geom.PageSize()) }

// ContentBox is the printable area in points.
func (w *Writer) ContentBox() layout.Rect { return w.geom.ContentBox() }

// PageCount reports the pages created so far.
func (w *Writer) PageCount() int { return w.prim.Pages() }

// PlaceImage draws img on the current page.
func (w *Writer) PlaceImage(img image.Image, g layout.RenderGeometry) error {
	if img == nil {
		return fmt.Errorf("document: nil image")
	}
	if err := w.prim.DrawImage(img, g); err != nil {
		return fmt.Errorf("document: place image on page %d: %w", w.PageCount(), err)
	}
	return nil
}

// PlaceSliced spreads one tall image over as many pages as it needs. The
// image is scaled to the content width; page k shows the band that starts
// k content-heights down. It returns the number of pages used, counting
// the current one.
func (w *Writer) PlaceSliced(img image.Image) (int, error) {
	if img == nil {
		return 0, fmt.Errorf("document: nil image")
	}
	box := w.ContentBox()
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 || box.Width <= 0 || box.Height <= 0 {
		return 0, nil
	}
	ptPerPx := box.Width / float64(bounds.Dx())
	heightPt := float64(bounds.Dy()) * ptPerPx
	offsets := layout.SliceOffsets(heightPt, box.Height, sliceEpsilonPt)
	for i, offset := range offsets {
		if i > 0 {
			w.AddPage()
		}
		top := int(math.Round(-offset / ptPerPx))
		bottom := min(int(math.Round((-offset+box.Height)/ptPerPx)), bounds.Dy())
		if bottom <= top {
			continue
		}
		band := crop(img, image.Rect(bounds.Min.X, bounds.Min.Y+top, bounds.Max.X, bounds.Min.Y+bottom))
		g := layout.RenderGeometry{X: box.X, Y: box.Y, Width: box.Width, Height: float64(bottom-top) * ptPerPx}
		if err := w.PlaceImage(band, g); err != nil {
			return i, err
		}
	}
	return len(offsets), nil
}

// WriteTo finalises the document into out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	if w.prim.Pages() == 0 {
		return 0, ErrNoPages
	}
	cw := &countingWriter{w: out}
	if err := w.prim.WriteTo(cw); err != nil {
		return cw.n, fmt.Errorf("document: write: %w", err)
	}
	return cw.n, nil
}

// Save writes the document to filename through a temporary file in the
// same directory so a failed write never leaves a truncated PDF behind.
func (w *Writer) Save(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("document: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chartfolio-*.pdf")
	if err != nil {
		return fmt.Errorf("document: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := w.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("document: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("document: save %s: %w", filename, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
