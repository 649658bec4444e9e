package scene

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/watermark"
)

// fixedBlock is a synchronous block with a preset height.
type fixedBlock struct {
	height  float64
	painted *int
	size    layout.Size
}

func (b *fixedBlock) Clone() Block { return &fixedBlock{height: b.height, painted: b.painted} }

func (b *fixedBlock) Layout(width float64) { b.size = layout.Size{Width: width, Height: b.height} }

func (b *fixedBlock) Measured() layout.Size { return b.size }

func (b *fixedBlock) Paint(*canvas.Context, layout.Rect) error {
	if b.painted != nil {
		*b.painted++
	}
	return nil
}

func series(n int) []layout.Point {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	out := make([]layout.Point, n)
	for i := range out {
		out[i] = layout.Point{T: base.Add(time.Duration(i) * time.Hour), V: float64(i % 7)}
	}
	return out
}

func TestScratchMountAndClose(t *testing.T) {
	s := NewScratch()
	a := s.Mount(800)
	b := s.Mount(800)
	require.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 800.0, a.Root.Style.WidthPx)

	a.Root.Append(NewItem("x", &fixedBlock{height: 10}))
	a.Close()
	a.Close()
	assert.False(t, s.Has(a.ID))
	assert.True(t, s.Has(b.ID))
	assert.Empty(t, a.Root.Children)
	b.Close()
	assert.Zero(t, s.Len())
}

func TestScratchConcurrentStages(t *testing.T) {
	s := NewScratch()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := s.Mount(100)
			defer st.Close()
			st.Root.Append(NewItem("x", &fixedBlock{height: 1}))
		}()
	}
	wg.Wait()
	assert.Zero(t, s.Len())
}

func TestArrangeStacksFlowChildrenAndSpansOverlays(t *testing.T) {
	root := &Element{Style: Style{WidthPx: 500}}
	first := NewItem("a", &fixedBlock{height: 40})
	second := NewItem("b", &fixedBlock{height: 60})
	overlay := &Element{ID: "wm", Style: Style{Overlay: true}, Block: &fixedBlock{}}
	root.Append(overlay, first, second)
	for _, e := range root.Children {
		e.Block.Layout(500)
	}

	size, placements := Arrange(root)
	assert.Equal(t, layout.Size{Width: 500, Height: 100}, size)

	boxes := map[string]layout.Rect{}
	for _, p := range placements {
		boxes[p.Element.ID] = p.Box
	}
	assert.Equal(t, layout.Rect{X: 0, Y: 0, Width: 500, Height: 40}, boxes["a"])
	assert.Equal(t, layout.Rect{X: 0, Y: 40, Width: 500, Height: 60}, boxes["b"])
	assert.Equal(t, layout.Rect{X: 0, Y: 0, Width: 500, Height: 100}, boxes["wm"])
}

func TestArrangeHonoursFixedHeight(t *testing.T) {
	root := &Element{Style: Style{WidthPx: 300}}
	item := NewItem("a", &fixedBlock{height: 40})
	item.Style.HeightPx = 120
	root.Append(item)
	item.Block.Layout(300)
	size, _ := Arrange(root)
	assert.Equal(t, 120.0, size.Height)
}

func TestPaintSkipsIgnoredSubtrees(t *testing.T) {
	count := 0
	root := &Element{Style: Style{WidthPx: 100}}
	hidden := &Element{ID: "hidden", NoCapture: true}
	hidden.Append(&Element{ID: "child", Block: &fixedBlock{painted: &count}})
	root.Append(hidden, NewItem("shown", &fixedBlock{painted: &count}))

	_, placements := Arrange(root)
	c := canvas.New(100, 100)
	err := Paint(canvas.NewContext(c), placements, func(e *Element) bool { return e.NoCapture })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestElementCloneIsDeep(t *testing.T) {
	chart := &ChartBlock{Title: "t", Points: series(3)}
	root := &Element{ID: "r"}
	root.Append(NewItem("c", chart))
	dup := root.Clone()
	require.Len(t, dup.Children, 1)
	assert.NotSame(t, root.Children[0], dup.Children[0])
	assert.NotSame(t, chart, dup.Children[0].Block)
	assert.Len(t, dup.ExportItems(), 1)
}

func TestChartLayoutCompletesAsynchronously(t *testing.T) {
	chart := &ChartBlock{Points: series(48), HeightPx: 200, LayoutDelay: 30 * time.Millisecond}
	chart.Layout(600)
	assert.Zero(t, chart.Measured().Width, "measured width must stay zero until layout finishes")

	require.Eventually(t, func() bool { return chart.Measured().Width > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, layout.Size{Width: 600, Height: 200}, chart.Measured())
	plan, ok := chart.Plan()
	require.True(t, ok)
	assert.NotZero(t, plan.MaxTicks)
}

func TestChartRelayoutDiscardsStaleResult(t *testing.T) {
	chart := &ChartBlock{Points: series(10), LayoutDelay: 20 * time.Millisecond}
	chart.Layout(300)
	chart.Layout(900)
	require.Eventually(t, func() bool { return chart.Measured().Width > 0 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 900.0, chart.Measured().Width)
}

func TestChartPaints(t *testing.T) {
	chart := &ChartBlock{Title: "Temperature", Points: series(24), Color: layout.Color{R: 15, G: 98, B: 254}}
	c := canvas.New(600, 300)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)
	require.NoError(t, chart.Paint(ctx, layout.Rect{Width: 600, Height: 300}))

	empty := &ChartBlock{}
	require.NoError(t, empty.Paint(ctx, layout.Rect{Width: 600, Height: 300}))
}

func TestHeaderLayoutGrowsWithContent(t *testing.T) {
	short := &HeaderBlock{Header: layout.Header{Title: "Weekly"}}
	full := &HeaderBlock{Header: layout.Header{
		Title:    "Weekly",
		Subtitle: "Page 1 / 2",
		Fields:   []layout.HeaderField{{Label: "Pond", Value: "North-3"}},
		Rows:     [][]string{{"Metric", "Min", "Max"}, {"pH", "6.9", "7.4"}},
	}}
	short.Layout(800)
	full.Layout(800)
	require.Greater(t, short.Measured().Height, 0.0)
	assert.Greater(t, full.Measured().Height, short.Measured().Height)

	c := canvas.New(800, 400)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)
	require.NoError(t, full.Paint(ctx, layout.Rect{Width: 800, Height: full.Measured().Height}))
}

func TestImageBlockKeepsAspectRatio(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 50))
	img.Set(0, 0, color.Black)
	b := &ImageBlock{Image: img}
	b.Layout(400)
	assert.Equal(t, layout.Size{Width: 400, Height: 100}, b.Measured())

	fixed := &ImageBlock{Image: img, HeightPx: 30}
	fixed.Layout(400)
	assert.Equal(t, 30.0, fixed.Measured().Height)
}

func TestWatermarkElementIsNotCaptured(t *testing.T) {
	tile, ok := watermark.Build(layout.DefaultWatermark("DRAFT"))
	require.True(t, ok)
	el := NewWatermarkElement(tile, 1)
	assert.True(t, el.NoCapture)
	assert.True(t, el.Style.Overlay)
	assert.False(t, el.ExportItem)

	c := canvas.New(300, 300)
	require.NoError(t, el.Block.Paint(canvas.NewContext(c), layout.Rect{Width: 300, Height: 300}))
}
