// Package compose turns an ordered list of blocks into a paginated PDF:
// it partitions the blocks into pages, stages each page off-screen,
// captures it and places the bitmap on a document page.
package compose

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"

	"github.com/ByLCY/chartfolio/binding"
	"github.com/ByLCY/chartfolio/document"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/poll"
	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/scene"
	"github.com/ByLCY/chartfolio/watermark"
)

// Options describes one export.
type Options struct {
	Capacity  layout.CapacityFunc
	Header    *layout.Header
	Watermark *layout.Watermark
	Geometry  layout.PageGeometry
	Filename  string
	Meta      layout.DocumentMeta
	// Vars are extra ${meta.*} values for header interpolation.
	Vars map[string]string
	// Debug, when set, receives the pagination/placement plan as JSON.
	Debug        string
	ItemHeightPx float64
	Readiness    poll.Budget
	Ignore       func(*scene.Element) bool
	// MaxSidePx caps each side of a captured page bitmap.
	MaxSidePx float64
}

// Result summarises a finished export.
type Result struct {
	Pages   int
	Unready int
	Plan    *layout.PlanDebug
}

// Composer drives the capture of every page. It is safe for concurrent
// use: each call stages its pages in its own arenas.
type Composer struct {
	rasterizer   *rasterize.Rasterizer
	newPrimitive func() document.Primitive
	scratch      *scene.Scratch
	logger       *slog.Logger
}

// New builds a Composer. nil arguments fall back to the canvas rasterizer,
// the canvas PDF backend and slog.Default().
func New(r *rasterize.Rasterizer, newPrimitive func() document.Primitive, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = rasterize.New(nil, logger)
	}
	if newPrimitive == nil {
		newPrimitive = func() document.Primitive { return document.NewCanvasPDF() }
	}
	return &Composer{rasterizer: r, newPrimitive: newPrimitive, scratch: scene.NewScratch(), logger: logger}
}

// Scratch exposes the staging registry; it is empty whenever no capture is running.
func (c *Composer) Scratch() *scene.Scratch { return c.scratch }

// Compose renders blocks and saves the document to opts.Filename. Empty
// input, or a capacity function that never yields a page, is a no-op:
// nothing is written and the error is nil.
func (c *Composer) Compose(ctx context.Context, blocks []scene.Block, opts Options) (Result, error) {
	w, res, err := c.Render(ctx, blocks, opts)
	if err != nil || w == nil {
		return res, err
	}
	if err := w.Save(opts.Filename); err != nil {
		return res, err
	}
	c.logger.Info("compose: saved", "file", opts.Filename, "pages", res.Pages, "blocks", len(blocks))
	return res, nil
}

// ComposeTo is Compose writing to out instead of a file.
func (c *Composer) ComposeTo(ctx context.Context, blocks []scene.Block, opts Options, out io.Writer) (Result, error) {
	w, res, err := c.Render(ctx, blocks, opts)
	if err != nil || w == nil {
		return res, err
	}
	_, err = w.WriteTo(out)
	return res, err
}

// Render builds the document in memory. A nil writer means there was
// nothing to export.
func (c *Composer) Render(ctx context.Context, blocks []scene.Block, opts Options) (*document.Writer, Result, error) {
	var res Result
	pages := layout.Partition(blocks, opts.Capacity)
	if len(pages) == 0 {
		c.logger.Debug("compose: nothing to export", "blocks", len(blocks))
		return nil, res, nil
	}
	geom := normalizeGeometry(opts.Geometry)
	tile := c.watermarkTile(opts.Watermark, geom.Scale)

	w := document.New(geom, c.newPrimitive())
	w.SetMeta(opts.Meta)
	vars := binding.MetaVars(opts.Meta, opts.Vars)
	plan := &layout.PlanDebug{Geometry: geom, ContentBox: w.ContentBox()}

	for i, page := range pages {
		img, rep, err := c.capturePage(ctx, page, i, len(pages), geom, tile, vars, opts)
		if err != nil {
			return nil, res, fmt.Errorf("compose: page %d: %w", i+1, err)
		}
		// document.New made the first page; later ones follow a successful capture.
		if i > 0 {
			w.AddPage()
		}
		if tile != nil {
			img = stamp(img, tile)
		}
		b := img.Bounds()
		g := layout.FitWidth(float64(b.Dx()), float64(b.Dy()), w.ContentBox())
		if err := w.PlaceImage(img, g); err != nil {
			return nil, res, fmt.Errorf("compose: page %d: %w", i+1, err)
		}
		res.Unready += rep.Unready
		plan.Pages = append(plan.Pages, layout.PageDebug{
			Index:     page.Index,
			Items:     itemNames(i, len(page.Items)),
			ImageSize: layout.Size{Width: float64(b.Dx()), Height: float64(b.Dy())},
			Placement: g,
			Unready:   rep.Unready,
		})
	}
	res.Pages = w.PageCount()
	res.Plan = plan
	if opts.Debug != "" {
		if err := layout.WriteDebugJSON(plan, opts.Debug); err != nil {
			c.logger.Warn("compose: debug plan not written", "path", opts.Debug, "error", err)
		}
	}
	return w, res, nil
}

// ComposeLegacy captures a single block alone and slices the bitmap across
// as many pages as its height needs.
func (c *Composer) ComposeLegacy(ctx context.Context, block scene.Block, opts Options) (Result, error) {
	var res Result
	if block == nil {
		return res, nil
	}
	geom := normalizeGeometry(opts.Geometry)
	tile := c.watermarkTile(opts.Watermark, geom.Scale)
	page := layout.PageSpec[scene.Block]{Index: 0, Items: []scene.Block{block}}
	img, rep, err := c.capturePage(ctx, page, 0, 1, geom, tile, binding.MetaVars(opts.Meta, opts.Vars), opts)
	if err != nil {
		return res, fmt.Errorf("compose: legacy capture: %w", err)
	}
	if tile != nil {
		img = stamp(img, tile)
	}
	w := document.New(geom, c.newPrimitive())
	w.SetMeta(opts.Meta)
	if _, err := w.PlaceSliced(img); err != nil {
		return res, fmt.Errorf("compose: legacy slicing: %w", err)
	}
	res.Pages = w.PageCount()
	res.Unready = rep.Unready
	if err := w.Save(opts.Filename); err != nil {
		return res, err
	}
	c.logger.Info("compose: saved legacy export", "file", opts.Filename, "pages", res.Pages)
	return res, nil
}

// capturePage stages one page and captures it. The stage is always
// unmounted before returning, including on error or panic.
func (c *Composer) capturePage(ctx context.Context, page layout.PageSpec[scene.Block], i, total int, geom layout.PageGeometry, tile *watermark.Tile, vars map[string]string, opts Options) (image.Image, rasterize.Report, error) {
	st := c.scratch.Mount(geom.WidthPx)
	defer st.Close()

	if tile != nil {
		st.Root.Append(scene.NewWatermarkElement(tile, geom.Scale))
	}
	if h := opts.Header; h != nil && (i == 0 || !h.FirstPageOnly) {
		header := binding.Header(*h, binding.PageScope(i+1, total, vars))
		st.Root.Append(&scene.Element{ID: "header", Block: &scene.HeaderBlock{Header: header}})
	}
	for j, b := range page.Items {
		st.Root.Append(scene.NewItem(fmt.Sprintf("page-%d-item-%d", i, j), b.Clone()))
	}

	c.logger.Debug("compose: capturing page", "stage", st.ID, "page", i+1, "pages", total, "items", len(page.Items))
	return c.rasterizer.Capture(ctx, st.Root, rasterize.Options{
		Scale:        geom.Scale,
		Background:   geom.Background,
		Ignore:       opts.Ignore,
		ItemHeightPx: opts.ItemHeightPx,
		Readiness:    opts.Readiness,
		MaxSidePx:    opts.MaxSidePx,
	})
}

func (c *Composer) watermarkTile(cfg *layout.Watermark, scale float64) *watermark.Tile {
	if cfg == nil {
		return nil
	}
	tile, ok := watermark.Build(watermark.Scaled(*cfg, scale))
	if !ok {
		c.logger.Debug("compose: watermark skipped", "text", cfg.Text)
		return nil
	}
	return tile
}

func normalizeGeometry(g layout.PageGeometry) layout.PageGeometry {
	def := layout.DefaultGeometry()
	if g.Format.Width <= 0 || g.Format.Height <= 0 {
		g.Format = def.Format
	}
	if g.Orientation == "" {
		g.Orientation = def.Orientation
	}
	if g.Scale <= 0 {
		g.Scale = def.Scale
	}
	if g.WidthPx <= 0 {
		g.WidthPx = def.WidthPx
	}
	if g.Background == nil {
		g.Background = def.Background
	}
	if g.MarginPt < 0 {
		g.MarginPt = 0
	}
	return g
}

// stamp composites the watermark over img, converting it to RGBA first when needed.
func stamp(img image.Image, tile *watermark.Tile) image.Image {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}
	tile.Stamp(rgba)
	return rgba
}

func itemNames(page, n int) []string {
	out := make([]string, n)
	for j := range out {
		out[j] = fmt.Sprintf("page-%d-item-%d", page, j)
	}
	return out
}
