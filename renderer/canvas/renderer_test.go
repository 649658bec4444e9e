package canvasrenderer

import (
	"math"
	"testing"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
)

// 以下宽度/字号/行高均为 px

func TestLayoutLinesGreedyWrapsText(t *testing.T) {
	r := NewRenderer()
	lines, err := r.LayoutLines("hello world again", 40, layout.Regular, 12, 14.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %d", len(lines))
	}
}

func TestGreedyWrapHonorsNewlines(t *testing.T) {
	r := NewRenderer()
	lines, err := r.LayoutLines("foo\n\nbar", 400, layout.Regular, 12, 14.4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines including blank, got %d", len(lines))
	}
	if lines[1].Content != "" {
		t.Fatalf("expected middle line to be blank, got %q", lines[1].Content)
	}
}

// 首行 GapBefore 为 0，其余行 GapBefore ≈ max(lineHeight - textHeight, 0)，各行 Height 相同。
func TestLineHeightsInvariant(t *testing.T) {
	r := NewRenderer()
	lineHeight := 12 * 1.6
	content := "longlonglong longlonglong longlonglong longlonglong longlonglong"
	lines, err := r.LayoutLines(content, 150, layout.Regular, 12, lineHeight)
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected multiple lines for invariant test, got %d", len(lines))
	}
	textHeight := lines[0].Height
	if textHeight <= 0 {
		t.Fatalf("invalid text height: %g", textHeight)
	}
	wantLeading := math.Max(lineHeight-textHeight, 0)
	if lines[0].GapBefore != 0 {
		t.Fatalf("first line GapBefore must be 0, got %g", lines[0].GapBefore)
	}
	const eps = 1e-6
	for i := 1; i < len(lines); i++ {
		if diff := math.Abs(lines[i].GapBefore - wantLeading); diff > eps {
			t.Fatalf("line %d GapBefore mismatch: got=%g want=%g", i, lines[i].GapBefore, wantLeading)
		}
		if diff := math.Abs(lines[i].Height - textHeight); diff > eps {
			t.Fatalf("line %d Height mismatch: got=%g want=%g", i, lines[i].Height, textHeight)
		}
	}
}

func TestGreedyWrapWidthLimit(t *testing.T) {
	r := NewRenderer()
	limit := 90.0
	content := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	lines, err := r.LayoutLines(content, limit, layout.Bold, 12, 14.4)
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected the long word to be split, got %d lines", len(lines))
	}
	for i, ln := range lines {
		if ln.Width-limit > 1e-6 {
			t.Fatalf("line %d width exceeds limit: width=%g limit=%g", i, ln.Width, limit)
		}
	}
}

// 第一行恰好与容器等宽且后面紧跟显式换行时，不应产生额外的空行。
func TestNoBlankLineWhenEqualWidthThenNewline(t *testing.T) {
	r := NewRenderer()
	first := "SAMPLE-A"
	measured, err := r.LayoutLines(first, 1e6, layout.Regular, 12, 14.4)
	if err != nil {
		t.Fatalf("measure error: %v", err)
	}
	if len(measured) != 1 || measured[0].Width <= 0 {
		t.Fatalf("unexpected measurement: %+v", measured)
	}
	lines, err := r.LayoutLines(first+"\nSAMPLE-B", measured[0].Width, layout.Regular, 12, 14.4)
	if err != nil {
		t.Fatalf("LayoutLines error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines without blank, got %d", len(lines))
	}
	if lines[0].Content != first || lines[1].Content != "SAMPLE-B" {
		t.Fatalf("unexpected lines: %q / %q", lines[0].Content, lines[1].Content)
	}
}

func TestMeasureTextScalesWithSize(t *testing.T) {
	r := NewRenderer()
	w10, h10 := r.MeasureText("05-01", layout.Regular, 10)
	w20, h20 := r.MeasureText("05-01", layout.Regular, 20)
	if w10 <= 0 || h10 <= 0 {
		t.Fatalf("invalid metrics: %g x %g", w10, h10)
	}
	if math.Abs(w20-2*w10) > 1e-3*w20 || math.Abs(h20-2*h10) > 1e-3*h20 {
		t.Fatalf("metrics should scale linearly: 10px=%gx%g 20px=%gx%g", w10, h10, w20, h20)
	}
}

func TestDrawTableMatchesTableHeight(t *testing.T) {
	r := NewRenderer()
	rows := [][]string{{"Metric", "Min", "Max"}, {"Temperature of the northern pond", "12.1", "19.8"}}
	want, err := r.TableHeight(rows, 300, 11, true)
	if err != nil {
		t.Fatalf("TableHeight error: %v", err)
	}
	c := canvas.New(400, 200)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV)
	got, err := r.DrawTable(ctx, rows, 10, 10, 300, 11, true, canvas.Gray)
	if err != nil {
		t.Fatalf("DrawTable error: %v", err)
	}
	if math.Abs(got-want) > 1e-6 || got <= 0 {
		t.Fatalf("height mismatch: drawn=%g measured=%g", got, want)
	}
	if h, _ := r.DrawTable(ctx, nil, 0, 0, 300, 11, true, canvas.Gray); h != 0 {
		t.Fatalf("empty table should have zero height, got %g", h)
	}
}
