// Package rasterize turns a staged element tree into a bitmap once every
// export item in it has finished laying out.
package rasterize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/poll"
	canvasrenderer "github.com/ByLCY/chartfolio/renderer/canvas"
	"github.com/ByLCY/chartfolio/scene"
)

// DefaultMaxSidePx bounds either side of a captured bitmap in device pixels.
const DefaultMaxSidePx = 16384

var (
	// ErrRasterize wraps every screenshot failure.
	ErrRasterize = errors.New("rasterize: capture failed")
	// ErrTooLarge is returned before painting a container whose bitmap
	// would exceed the side limit.
	ErrTooLarge = errors.New("rasterize: bitmap too large")
)

// Shot is what a Screenshotter needs to capture a container.
type Shot struct {
	Scale      float64
	Background color.Color
	// Skip reports elements that must not appear in the bitmap.
	Skip func(*scene.Element) bool
}

// Screenshotter captures a laid-out container.
type Screenshotter interface {
	Screenshot(ctx context.Context, root *scene.Element, shot Shot) (image.Image, error)
}

// Options controls one capture.
type Options struct {
	Scale      float64
	Background color.Color
	Ignore     func(*scene.Element) bool
	// ItemHeightPx fixes every export item's height when positive.
	ItemHeightPx float64
	Readiness    poll.Budget
	// MaxSidePx caps width and height after scaling; 0 means DefaultMaxSidePx.
	MaxSidePx float64
}

// Report describes how a capture went.
type Report struct {
	Items int
	// Unready counts export items still unmeasured when the readiness
	// budget ran out. The capture still happened.
	Unready int
	Size    layout.Size
}

// Rasterizer waits for export items and hands the container to a Screenshotter.
type Rasterizer struct {
	shooter Screenshotter
	logger  *slog.Logger
}

// New returns a Rasterizer; a nil shooter means CanvasScreenshotter.
func New(shooter Screenshotter, logger *slog.Logger) *Rasterizer {
	if shooter == nil {
		shooter = CanvasScreenshotter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{shooter: shooter, logger: logger}
}

// Capture normalises the export items of container to its width, waits
// (bounded) for them to lay out and screenshots the container.
func (r *Rasterizer) Capture(ctx context.Context, container *scene.Element, opts Options) (image.Image, Report, error) {
	var rep Report
	if container == nil {
		return nil, rep, fmt.Errorf("%w: nil container", ErrRasterize)
	}
	width := container.Style.WidthPx
	items := container.ExportItems()
	rep.Items = len(items)

	container.Walk(func(e *scene.Element) bool {
		if e == container || e.Block == nil {
			return true
		}
		if e.ExportItem {
			e.Style.WidthPx = width
			if opts.ItemHeightPx > 0 {
				e.Style.HeightPx = opts.ItemHeightPx
			}
		}
		e.Block.Layout(width)
		return true
	})

	budget := opts.Readiness
	if budget.Attempts <= 0 {
		budget = poll.DefaultBudget
	}
	ready, err := poll.Until(ctx, budget, func() bool { return countUnready(items) == 0 })
	if err != nil {
		return nil, rep, err
	}
	if !ready {
		rep.Unready = countUnready(items)
		r.logger.Warn("rasterize: capturing with unready items",
			"unready", rep.Unready, "items", rep.Items, "attempts", budget.Attempts)
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	skip := func(e *scene.Element) bool {
		return e.NoCapture || (opts.Ignore != nil && opts.Ignore(e))
	}
	rep.Size, _ = scene.Arrange(container)
	limit := opts.MaxSidePx
	if limit <= 0 {
		limit = DefaultMaxSidePx
	}
	if w, h := rep.Size.Width*scale, rep.Size.Height*scale; w > limit || h > limit {
		return nil, rep, fmt.Errorf("%w: %.0fx%.0f px exceeds %.0f", ErrTooLarge, w, h, limit)
	}
	img, err := r.shooter.Screenshot(ctx, container, Shot{Scale: scale, Background: opts.Background, Skip: skip})
	if err != nil {
		return nil, rep, fmt.Errorf("%w: %w", ErrRasterize, err)
	}
	r.logger.Debug("rasterize: captured",
		"items", rep.Items, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, rep, nil
}

func countUnready(items []*scene.Element) int {
	n := 0
	for _, it := range items {
		if it.Block == nil || it.Block.Measured().Width <= 0 {
			n++
		}
	}
	return n
}

// PaintCanvas arranges root and paints it onto a fresh canvas whose units
// are CSS pixels.
func PaintCanvas(root *scene.Element, background color.Color, skip func(*scene.Element) bool) (*canvas.Canvas, error) {
	size, placements := scene.Arrange(root)
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("empty container %.0fx%.0f", size.Width, size.Height)
	}
	c := canvas.New(size.Width, size.Height)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)
	if background == nil {
		background = canvas.White
	}
	canvasrenderer.FillRect(ctx, layout.Rect{Width: size.Width, Height: size.Height}, background)
	if err := scene.Paint(ctx, placements, skip); err != nil {
		return nil, err
	}
	return c, nil
}

// CanvasScreenshotter paints in-process and rasterises at Scale device pixels per CSS pixel.
type CanvasScreenshotter struct{}

func (CanvasScreenshotter) Screenshot(ctx context.Context, root *scene.Element, shot Shot) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := PaintCanvas(root, shot.Background, shot.Skip)
	if err != nil {
		return nil, err
	}
	return rasterizer.Draw(c, canvas.DPMM(shot.Scale), canvas.DefaultColorSpace), nil
}
