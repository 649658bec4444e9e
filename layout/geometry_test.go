package layout

import (
	"math"
	"testing"
)

// TestFitWidthNeverExceedsContentBox 断言放置结果始终位于内容区域内，缩放时宽高同比。
func TestFitWidthNeverExceedsContentBox(t *testing.T) {
	box := Rect{X: 20, Y: 20, Width: 555, Height: 800}
	sizes := [][2]float64{{1000, 200}, {1000, 1440}, {1000, 5000}, {300, 3000}, {2000, 2}, {1, 1}}
	for _, s := range sizes {
		g := FitWidth(s[0], s[1], box)
		if g.Width-box.Width > 1e-9 || g.Height-box.Height > 1e-9 {
			t.Fatalf("%v: 放置尺寸超出内容区域: %+v", s, g)
		}
		if g.X < box.X-1e-9 || g.X+g.Width > box.X+box.Width+1e-9 {
			t.Fatalf("%v: 水平方向越界: %+v", s, g)
		}
		ratio := s[0] / s[1]
		if math.Abs(g.Width/g.Height-ratio) > 1e-3*ratio {
			t.Fatalf("%v: 宽高比未保持: got=%g want=%g", s, g.Width/g.Height, ratio)
		}
	}
}

func TestFitWidthScalesDownAndCenters(t *testing.T) {
	box := Rect{X: 10, Y: 10, Width: 500, Height: 400}
	g := FitWidth(1000, 1600, box) // 自然高度 800 > 400
	if math.Abs(g.Height-400) > 1e-9 || math.Abs(g.Width-250) > 1e-9 {
		t.Fatalf("缩放结果错误: %+v", g)
	}
	if math.Abs(g.X-(10+125)) > 1e-9 {
		t.Fatalf("应水平居中: %+v", g)
	}

	small := FitWidth(1000, 100, box)
	if small.Width != 500 || math.Abs(small.Height-50) > 1e-9 || small.X != 10 {
		t.Fatalf("无需缩放时应按内容宽度放置: %+v", small)
	}
}

func TestSliceOffsets(t *testing.T) {
	offsets := SliceOffsets(2.3*700, 700, 1)
	if len(offsets) != 3 {
		t.Fatalf("2.3 倍内容高度应切成 3 页，实际 %d (%v)", len(offsets), offsets)
	}
	for i, off := range offsets {
		if math.Abs(off+float64(i)*700) > 1e-9 {
			t.Fatalf("第 %d 页偏移错误: %g", i, off)
		}
	}
	if got := SliceOffsets(700.5, 700, 1); len(got) != 1 {
		t.Fatalf("剩余不足 1pt 时不应新增页面: %v", got)
	}
	if got := SliceOffsets(0, 700, 1); got != nil {
		t.Fatalf("零高度应返回 nil")
	}
}
