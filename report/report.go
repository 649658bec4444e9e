// Package report turns a parsed report description into blocks and
// compose options ready for export.
package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ByLCY/chartfolio/compose"
	"github.com/ByLCY/chartfolio/dataset"
	"github.com/ByLCY/chartfolio/dsl"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/rasterize"
	canvasrenderer "github.com/ByLCY/chartfolio/renderer/canvas"
	"github.com/ByLCY/chartfolio/scene"
	"github.com/ByLCY/chartfolio/ticks"
)

// DefaultCapacity is used when the report has no capacity statement.
const DefaultCapacity = 2

const defaultCreator = "chartfolio"

var defaultChartColor = layout.Color{R: 0x0F, G: 0x62, B: 0xFE}

// Job is a report ready to hand to compose.
type Job struct {
	Name    string
	Version string
	Blocks  []scene.Block
	// Charts indexes the chart blocks by their id.
	Charts  map[string]*scene.ChartBlock
	Options compose.Options
}

// Sanitizer cleans strings taken from untrusted input.
type Sanitizer func(string) string

// BuildOptions tunes Build.
type BuildOptions struct {
	// Geometry is the starting page geometry the page statement overrides.
	Geometry layout.PageGeometry
	Renderer *canvasrenderer.Renderer
	Planner  *ticks.Planner
	// Sanitize, when set, is applied to every header and meta string.
	Sanitize Sanitizer
	// MaxSidePx caps the page width and every block height after scaling;
	// 0 means rasterize.DefaultMaxSidePx.
	MaxSidePx float64
}

// Build converts doc into a Job, fetching every chart series concurrently
// through loader and loading images before returning.
func Build(ctx context.Context, doc *dsl.Document, loader dataset.Fetcher, opts BuildOptions) (*Job, error) {
	if doc == nil || doc.Body == nil {
		return nil, fmt.Errorf("report: empty document")
	}
	if opts.Geometry.Format.Width <= 0 {
		opts.Geometry = layout.DefaultGeometry()
	}
	if opts.Renderer == nil {
		opts.Renderer = canvasrenderer.Shared()
	}
	clean := opts.Sanitize
	if clean == nil {
		clean = func(s string) string { return s }
	}
	body := doc.Body

	job := &Job{Name: doc.Name, Version: doc.Version, Charts: map[string]*scene.ChartBlock{}}
	job.Options.Meta, job.Options.Vars = buildMeta(body.Command("meta"), clean)

	geom, err := buildGeometry(body.Command("page"), opts.Geometry)
	if err != nil {
		return nil, err
	}
	job.Options.Geometry = geom
	limit := opts.MaxSidePx
	if limit <= 0 {
		limit = rasterize.DefaultMaxSidePx
	}
	job.Options.MaxSidePx = limit
	if geom.WidthPx*geom.Scale > limit {
		return nil, fmt.Errorf("report: page: width %.0f at scale %g exceeds the %.0fpx limit", geom.WidthPx, geom.Scale, limit)
	}
	checkHeight := func(kind, name string, h float64) error {
		if h*geom.Scale > limit {
			return fmt.Errorf("report: %s %s: height %.0f at scale %g exceeds the %.0fpx limit", kind, name, h, geom.Scale, limit)
		}
		return nil
	}

	if job.Options.Capacity, err = buildCapacity(body.Command("capacity")); err != nil {
		return nil, err
	}
	if cmd := body.Command("header"); cmd != nil {
		h := buildHeader(cmd.Block, clean)
		job.Options.Header = &h
	}
	if cmd := body.Command("watermark"); cmd != nil {
		wm, err := buildWatermark(cmd)
		if err != nil {
			return nil, err
		}
		job.Options.Watermark = &wm
	}

	var sources []dataset.Source
	for _, st := range body.Statements {
		cmd := st.Command
		if cmd == nil {
			continue
		}
		switch cmd.Name {
		case "chart":
			chart, src, err := buildChart(cmd, opts)
			if err != nil {
				return nil, err
			}
			if err := checkHeight("chart", src.ID, chart.HeightPx); err != nil {
				return nil, err
			}
			if _, dup := job.Charts[src.ID]; dup {
				return nil, fmt.Errorf("report: duplicate chart id %q", src.ID)
			}
			job.Charts[src.ID] = chart
			job.Blocks = append(job.Blocks, chart)
			sources = append(sources, src)
		case "image":
			img, err := buildImage(ctx, cmd, loader)
			if err != nil {
				return nil, err
			}
			if err := checkHeight("image", strings.Join(cmd.Words(), " "), img.HeightPx); err != nil {
				return nil, err
			}
			job.Blocks = append(job.Blocks, img)
		}
	}

	if len(sources) > 0 {
		series, err := dataset.FetchAll(ctx, loader, sources)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		for id, pts := range series {
			job.Charts[id].Points = pts
		}
	}
	return job, nil
}

func buildMeta(cmd *dsl.Command, clean Sanitizer) (layout.DocumentMeta, map[string]string) {
	meta := layout.DocumentMeta{Creator: defaultCreator}
	vars := map[string]string{}
	if cmd == nil {
		return meta, vars
	}
	for _, a := range cmd.Block.Assignments() {
		text := clean(a.Value.Text())
		switch a.Key {
		case "title":
			meta.Title = text
		case "author":
			meta.Author = text
		case "subject":
			meta.Subject = text
		case "creator":
			meta.Creator = text
		case "keywords":
			meta.Keywords = nil
			for _, k := range a.Value.Strings() {
				meta.Keywords = append(meta.Keywords, clean(k))
			}
			continue
		}
		vars[a.Key] = text
	}
	return meta, vars
}

// buildGeometry 解析形如 `page A4 landscape margin 24pt scale 2 width 1123 background #fff` 的参数。
func buildGeometry(cmd *dsl.Command, base layout.PageGeometry) (layout.PageGeometry, error) {
	g := base
	words := cmd.Words()
	for i := 0; i < len(words); i++ {
		w := words[i]
		key := strings.ToLower(w)
		switch key {
		case "portrait", "landscape":
			g.Orientation, _ = layout.ParseOrientation(key)
			continue
		case "margin", "scale", "width", "background":
		default:
			f, err := layout.LookupFormat(w)
			if err != nil {
				return g, fmt.Errorf("report: page: %w", err)
			}
			g.Format = f
			continue
		}
		if i+1 >= len(words) {
			return g, fmt.Errorf("report: page: %s needs a value", key)
		}
		i++
		val := words[i]
		switch key {
		case "margin":
			l := layout.ParseLength(val)
			if l.IsZero() && strings.TrimSpace(val) != "0" {
				return g, fmt.Errorf("report: page: bad margin %q", val)
			}
			g.MarginPt = l.ToPT()
		case "scale":
			f, err := positive(val)
			if err != nil {
				return g, fmt.Errorf("report: page: scale: %w", err)
			}
			g.Scale = f
		case "width":
			f, err := pixels(val)
			if err != nil {
				return g, fmt.Errorf("report: page: width: %w", err)
			}
			g.WidthPx = f
		case "background":
			c, err := layout.ParseColor(val)
			if err != nil {
				return g, fmt.Errorf("report: page: %w", err)
			}
			g.Background = c.RGBA()
		}
	}
	return g, nil
}

func buildCapacity(cmd *dsl.Command) (layout.CapacityFunc, error) {
	words := cmd.Words()
	nums := make([]int, len(words))
	for i, w := range words {
		n, err := strconv.Atoi(w)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("report: capacity: bad count %q", w)
		}
		nums[i] = n
	}
	switch len(nums) {
	case 0:
		return layout.ConstantCapacity(DefaultCapacity), nil
	case 1:
		return layout.ConstantCapacity(nums[0]), nil
	case 2:
		return layout.FirstPageCapacity(nums[0], nums[1]), nil
	default:
		return nil, fmt.Errorf("report: capacity takes one or two counts, got %d", len(nums))
	}
}

func buildHeader(b *dsl.Block, clean Sanitizer) layout.Header {
	h := layout.Header{
		Title:         clean(b.Value("title").Text()),
		Subtitle:      clean(b.Value("subtitle").Text()),
		FirstPageOnly: isTrue(b.Value("firstPageOnly").Text()),
	}
	for _, f := range b.Commands("field") {
		words := f.Words()
		field := layout.HeaderField{}
		if len(words) > 0 {
			field.Label = clean(words[0])
		}
		if len(words) > 1 {
			field.Value = clean(strings.Join(words[1:], " "))
		}
		h.Fields = append(h.Fields, field)
	}
	for _, r := range b.Commands("row") {
		words := r.Words()
		row := make([]string, len(words))
		for i, w := range words {
			row[i] = clean(w)
		}
		h.Rows = append(h.Rows, row)
	}
	return h
}

// buildWatermark accepts both `watermark "TEXT"` and a block form.
func buildWatermark(cmd *dsl.Command) (layout.Watermark, error) {
	text := ""
	if words := cmd.Words(); len(words) > 0 {
		text = words[0]
	}
	b := cmd.Block
	if v := b.Value("text"); v != nil {
		text = v.Text()
	}
	wm := layout.DefaultWatermark(text)
	for _, a := range b.Assignments() {
		raw := a.Value.Text()
		var err error
		switch a.Key {
		case "opacity":
			wm.Opacity, err = strconv.ParseFloat(raw, 64)
			if err == nil && (wm.Opacity < 0 || wm.Opacity > 1) {
				err = fmt.Errorf("%v out of range 0..1", wm.Opacity)
			}
		case "rotation":
			wm.RotationDeg, err = strconv.ParseFloat(raw, 64)
		case "size":
			wm.FontSizePx, err = pixels(raw)
		case "gap":
			wm.GapPx, err = pixels(raw)
		case "color":
			wm.Color, err = layout.ParseColor(raw)
		}
		if err != nil {
			return wm, fmt.Errorf("report: watermark %s: %w", a.Key, err)
		}
	}
	return wm, nil
}

func buildChart(cmd *dsl.Command, opts BuildOptions) (*scene.ChartBlock, dataset.Source, error) {
	words := cmd.Words()
	if len(words) == 0 || words[0] == "" {
		return nil, dataset.Source{}, fmt.Errorf("report: chart needs an id")
	}
	id := words[0]
	b := cmd.Block
	chart := &scene.ChartBlock{
		Title:    b.Value("title").Text(),
		Color:    defaultChartColor,
		Renderer: opts.Renderer,
		Planner:  opts.Planner,
	}
	if v := b.Value("height"); v != nil {
		h, err := pixels(v.Text())
		if err != nil {
			return nil, dataset.Source{}, fmt.Errorf("report: chart %s height: %w", id, err)
		}
		chart.HeightPx = h
	}
	if v := b.Value("color"); v != nil {
		c, err := layout.ParseColor(v.Text())
		if err != nil {
			return nil, dataset.Source{}, fmt.Errorf("report: chart %s: %w", id, err)
		}
		chart.Color = c
	}
	ref := b.Value("source").Text()
	if ref == "" {
		ref = dataset.InlinePrefix + id
	}
	return chart, dataset.Source{ID: id, Ref: ref}, nil
}

func buildImage(ctx context.Context, cmd *dsl.Command, loader dataset.Fetcher) (*scene.ImageBlock, error) {
	name := strings.Join(cmd.Words(), " ")
	src := cmd.Block.Value("src").Text()
	if src == "" {
		return nil, fmt.Errorf("report: image %s needs a src", name)
	}
	img, err := loader.Image(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("report: image %s: %w", name, err)
	}
	block := &scene.ImageBlock{Image: img}
	if v := cmd.Block.Value("height"); v != nil {
		h, err := pixels(v.Text())
		if err != nil {
			return nil, fmt.Errorf("report: image %s height: %w", name, err)
		}
		block.HeightPx = h
	}
	return block, nil
}

func positive(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("%v must be positive", f)
	}
	return f, nil
}

// pixels parses a positive length such as "320", "320px" or "8cm" into staging pixels.
func pixels(s string) (float64, error) {
	l := layout.ParseLength(s)
	if l.Value <= 0 {
		return 0, fmt.Errorf("bad length %q", s)
	}
	return l.ToPX(), nil
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
