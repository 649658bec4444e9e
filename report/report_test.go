package report

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/chartfolio/dataset"
	"github.com/ByLCY/chartfolio/dsl"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/scene"
)

const weekly = `
report Weekly v1 {
  meta { title: "Pond weekly" author: "ops" site: "North" keywords: ["water", "daily"] }
  page A4 landscape margin 24pt scale 2 width 1123 background #ffffff
  capacity 3 4
  header {
    title: "Water quality"
    subtitle: "Page ${page} / ${pages}"
    firstPageOnly: true
    field "Pond" "North-3"
    row "Metric" "Min" "Max"
  }
  watermark { text: "CONFIDENTIAL" opacity: 0.12 rotation: -30 size: 28 gap: 80 }
  chart temp { title: "Temperature" source: "temp.csv" height: 320 color: #0F62FE }
  image logo { src: "logo.png" height: 120 }
  chart ph { title: "pH" }
}
`

type fakeFetcher struct {
	series map[string][]layout.Point
}

func (f fakeFetcher) Series(_ context.Context, ref string) ([]layout.Point, error) {
	pts, ok := f.series[ref]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	return pts, nil
}

func (f fakeFetcher) Image(_ context.Context, ref string) (image.Image, error) {
	if ref != "logo.png" {
		return nil, errors.New("no such image")
	}
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(0, 0, color.Black)
	return img, nil
}

func sample() fakeFetcher {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return fakeFetcher{series: map[string][]layout.Point{
		"temp.csv":  {{T: t0, V: 11}, {T: t0.Add(time.Hour), V: 12}},
		"inline:ph": {{T: t0, V: 7.2}},
	}}
}

func parse(t *testing.T, src string) *dsl.Document {
	t.Helper()
	doc, err := dsl.ParseString(src)
	require.NoError(t, err)
	return doc
}

func TestBuildWeeklyReport(t *testing.T) {
	job, err := Build(context.Background(), parse(t, weekly), sample(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Weekly", job.Name)
	assert.Equal(t, "v1", job.Version)
	opts := job.Options
	assert.Equal(t, "Pond weekly", opts.Meta.Title)
	assert.Equal(t, "chartfolio", opts.Meta.Creator)
	assert.Equal(t, []string{"water", "daily"}, opts.Meta.Keywords)
	assert.Equal(t, "North", opts.Vars["site"])

	g := opts.Geometry
	assert.Equal(t, "A4", g.Format.Name)
	assert.Equal(t, layout.Landscape, g.Orientation)
	assert.Equal(t, 24.0, g.MarginPt)
	assert.Equal(t, 2.0, g.Scale)
	assert.Equal(t, 1123.0, g.WidthPx)

	assert.Equal(t, 3, opts.Capacity(0))
	assert.Equal(t, 4, opts.Capacity(1))

	require.NotNil(t, opts.Header)
	assert.True(t, opts.Header.FirstPageOnly)
	assert.Equal(t, []layout.HeaderField{{Label: "Pond", Value: "North-3"}}, opts.Header.Fields)
	assert.Equal(t, [][]string{{"Metric", "Min", "Max"}}, opts.Header.Rows)

	require.NotNil(t, opts.Watermark)
	assert.Equal(t, "CONFIDENTIAL", opts.Watermark.Text)
	assert.Equal(t, -30.0, opts.Watermark.RotationDeg)
	assert.Equal(t, 28.0, opts.Watermark.FontSizePx)

	require.Len(t, job.Blocks, 3)
	temp, ok := job.Blocks[0].(*scene.ChartBlock)
	require.True(t, ok)
	assert.Equal(t, "Temperature", temp.Title)
	assert.Equal(t, 320.0, temp.HeightPx)
	assert.Len(t, temp.Points, 2)
	assert.Same(t, temp, job.Charts["temp"])

	img, ok := job.Blocks[1].(*scene.ImageBlock)
	require.True(t, ok)
	assert.Equal(t, 120.0, img.HeightPx)

	assert.Len(t, job.Charts["ph"].Points, 1, "charts without a source read inline data")
	assert.Equal(t, defaultChartColor, job.Charts["ph"].Color)
}

func TestBuildDefaults(t *testing.T) {
	job, err := Build(context.Background(), parse(t, "report Bare v1 {\n}\n"), sample(), BuildOptions{})
	require.NoError(t, err)
	assert.Empty(t, job.Blocks)
	assert.Nil(t, job.Options.Header)
	assert.Nil(t, job.Options.Watermark)
	assert.Equal(t, DefaultCapacity, job.Options.Capacity(5))
	assert.Equal(t, layout.DefaultGeometry().Format, job.Options.Geometry.Format)
}

func TestBuildSanitizesHeaderAndMeta(t *testing.T) {
	src := `report S v1 {
  meta { title: "<b>Weekly</b>" }
  header { title: "<script>x</script>Hi" field "A" "<i>b</i>" }
}`
	strip := func(s string) string {
		return strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "", "<script>x</script>", "").Replace(s)
	}
	job, err := Build(context.Background(), parse(t, src), sample(), BuildOptions{Sanitize: strip})
	require.NoError(t, err)
	assert.Equal(t, "Weekly", job.Options.Meta.Title)
	assert.Equal(t, "Hi", job.Options.Header.Title)
	assert.Equal(t, "b", job.Options.Header.Fields[0].Value)
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]string{
		"format":    "report R v1 {\n page B9\n}",
		"capacity":  "report R v1 {\n capacity x\n}",
		"three":     "report R v1 {\n capacity 1 2 3\n}",
		"scale":     "report R v1 {\n page scale 0\n}",
		"dangling":  "report R v1 {\n page margin\n}",
		"opacity":   "report R v1 {\n watermark { text: \"x\" opacity: 2 }\n}",
		"duplicate": "report R v1 {\n chart ph { }\n chart ph { }\n}",
		"series":    "report R v1 {\n chart missing { source: \"nope.csv\" }\n}",
		"image":     "report R v1 {\n image x { src: \"nope.png\" }\n}",
		"nosrc":     "report R v1 {\n image x { height: 10 }\n}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(context.Background(), parse(t, src), sample(), BuildOptions{})
			assert.Error(t, err)
		})
	}
}

func TestBuildCapsRasterSize(t *testing.T) {
	ctx := context.Background()
	_, err := Build(ctx, parse(t, "report R v1 {\n page A4 width 200000 scale 40\n}"), sample(), BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	_, err = Build(ctx, parse(t, "report R v1 {\n page scale 2\n chart ph { height: 9000 }\n}"), sample(), BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chart ph")

	small := parse(t, "report R v1 {\n page width 900 scale 2\n}")
	_, err = Build(ctx, small, sample(), BuildOptions{MaxSidePx: 1000})
	assert.Error(t, err)
	job, err := Build(ctx, small, sample(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(rasterize.DefaultMaxSidePx), job.Options.MaxSidePx)
}

func TestBuildMissingSeriesIsNotFound(t *testing.T) {
	_, err := Build(context.Background(), parse(t, "report R v1 {\n chart missing { }\n}"), sample(), BuildOptions{})
	assert.ErrorIs(t, err, dataset.ErrNotFound)
}
