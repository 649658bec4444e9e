package scene

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
	canvasrenderer "github.com/ByLCY/chartfolio/renderer/canvas"
	"github.com/ByLCY/chartfolio/ticks"
)

const (
	defaultChartHeightPx = 280
	chartTitleSizePx     = 14
	chartAxisWidthPx     = 48
	chartValueSizePx     = 10
	chartGapPx           = 6
)

// ChartBlock 绘制单条时间序列折线。Layout 在后台 goroutine 中完成刻度规划，
// 完成前 Measured 返回零宽度。
type ChartBlock struct {
	Title    string
	Points   []layout.Point
	Color    layout.Color
	HeightPx float64
	// LayoutDelay 模拟较慢的异步布局。
	LayoutDelay time.Duration
	Renderer    *canvasrenderer.Renderer
	Planner     *ticks.Planner

	mu       sync.Mutex
	gen      int
	measured layout.Size
	plan     ticks.Plan
}

var _ Block = (*ChartBlock)(nil)

// Clone 复制配置，不复制布局状态。
func (b *ChartBlock) Clone() Block {
	return &ChartBlock{
		Title:       b.Title,
		Points:      b.Points,
		Color:       b.Color,
		HeightPx:    b.HeightPx,
		LayoutDelay: b.LayoutDelay,
		Renderer:    b.Renderer,
		Planner:     b.Planner,
	}
}

func (b *ChartBlock) Layout(width float64) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.measured = layout.Size{}
	b.mu.Unlock()

	go func() {
		if b.LayoutDelay > 0 {
			time.Sleep(b.LayoutDelay)
		}
		plan := b.planner().Plan(b.timestamps(), width-chartAxisWidthPx, b.measure)
		b.mu.Lock()
		defer b.mu.Unlock()
		if gen != b.gen {
			return
		}
		b.plan = plan
		b.measured = layout.Size{Width: width, Height: b.height()}
	}()
}

func (b *ChartBlock) Measured() layout.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.measured
}

// Plan 返回最近一次完成布局时的刻度规划。
func (b *ChartBlock) Plan() (ticks.Plan, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plan, b.measured.Width > 0
}

func (b *ChartBlock) Paint(ctx *canvas.Context, box layout.Rect) error {
	plan, ok := b.Plan()
	if !ok {
		// 尚未完成布局时按当前宽度同步规划
		plan = b.planner().Plan(b.timestamps(), box.Width-chartAxisWidthPx, b.measure)
	}
	r := b.renderer()
	lineColor := b.Color.RGBA()
	axisColor := canvas.Hex("#6b7280")

	top := box.Y
	if b.Title != "" {
		_, h := r.MeasureText(b.Title, layout.Bold, chartTitleSizePx)
		lines := []layout.TextLine{{Content: b.Title, Height: h}}
		if _, err := r.DrawText(ctx, lines, box.X, top, box.Width, layout.Bold, chartTitleSizePx, canvas.Hex("#111827"), "left"); err != nil {
			return fmt.Errorf("绘制图表标题失败: %w", err)
		}
		top += h + chartGapPx
	}
	plot := layout.Rect{
		X:      box.X + chartAxisWidthPx + plan.HorizontalPaddingPx,
		Y:      top,
		Width:  box.Width - chartAxisWidthPx - 2*plan.HorizontalPaddingPx,
		Height: box.Y + box.Height - top - plan.LabelBandHeightPx - chartGapPx,
	}
	if plot.Width <= 0 || plot.Height <= 0 {
		return nil
	}
	canvasrenderer.DrawLine(ctx, box.X+chartAxisWidthPx, plot.Y, box.X+chartAxisWidthPx, plot.Y+plot.Height, 1, axisColor)
	canvasrenderer.DrawLine(ctx, box.X+chartAxisWidthPx, plot.Y+plot.Height, box.X+box.Width, plot.Y+plot.Height, 1, axisColor)
	if len(b.Points) == 0 {
		return nil
	}

	t0, t1, lo, hi := b.bounds()
	xOf := func(t time.Time) float64 {
		if !t1.After(t0) {
			return plot.X + plot.Width/2
		}
		return plot.X + plot.Width*float64(t.Sub(t0))/float64(t1.Sub(t0))
	}
	yOf := func(v float64) float64 {
		if hi <= lo {
			return plot.Y + plot.Height/2
		}
		return plot.Y + plot.Height*(hi-v)/(hi-lo)
	}

	path := &canvas.Path{}
	for i, p := range b.Points {
		if i == 0 {
			path.MoveTo(xOf(p.T), yOf(p.V))
			continue
		}
		path.LineTo(xOf(p.T), yOf(p.V))
	}
	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(lineColor)
	ctx.SetStrokeWidth(1.5)
	ctx.DrawPath(0, 0, path)

	for _, v := range []float64{lo, hi} {
		label := fmt.Sprintf("%.4g", v)
		_, h := r.MeasureText(label, layout.Regular, chartValueSizePx)
		lines := []layout.TextLine{{Content: label, Height: h}}
		if _, err := r.DrawText(ctx, lines, box.X, yOf(v)-h/2, chartAxisWidthPx-chartGapPx, layout.Regular, chartValueSizePx, axisColor, "right"); err != nil {
			return fmt.Errorf("绘制数值标签失败: %w", err)
		}
	}
	for _, t := range plan.Ticks(b.timestamps()) {
		x := xOf(t)
		canvasrenderer.DrawLine(ctx, x, plot.Y+plot.Height, x, plot.Y+plot.Height+3, 1, axisColor)
		if err := r.DrawLabel(ctx, plan.Label(t), x, plot.Y+plot.Height+chartGapPx, plan.FontSizePx, plan.RotationDeg, axisColor); err != nil {
			return fmt.Errorf("绘制刻度标签失败: %w", err)
		}
	}
	return nil
}

func (b *ChartBlock) bounds() (t0, t1 time.Time, lo, hi float64) {
	t0, t1 = b.Points[0].T, b.Points[0].T
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range b.Points {
		if p.T.Before(t0) {
			t0 = p.T
		}
		if p.T.After(t1) {
			t1 = p.T
		}
		lo = math.Min(lo, p.V)
		hi = math.Max(hi, p.V)
	}
	return t0, t1, lo, hi
}

func (b *ChartBlock) timestamps() []time.Time {
	out := make([]time.Time, len(b.Points))
	for i, p := range b.Points {
		out[i] = p.T
	}
	return out
}

func (b *ChartBlock) measure(text string, sizePx float64) (float64, float64) {
	return b.renderer().MeasureText(text, layout.Regular, sizePx)
}

func (b *ChartBlock) height() float64 {
	if b.HeightPx > 0 {
		return b.HeightPx
	}
	return defaultChartHeightPx
}

func (b *ChartBlock) renderer() *canvasrenderer.Renderer {
	if b.Renderer != nil {
		return b.Renderer
	}
	return canvasrenderer.Shared()
}

func (b *ChartBlock) planner() ticks.Planner {
	if b.Planner != nil {
		return *b.Planner
	}
	return ticks.Default
}
