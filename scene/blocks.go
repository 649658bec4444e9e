package scene

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
	canvasrenderer "github.com/ByLCY/chartfolio/renderer/canvas"
	"github.com/ByLCY/chartfolio/watermark"
)

const (
	headerTitleSizePx    = 20
	headerSubtitleSizePx = 13
	headerFieldSizePx    = 12
	headerTableSizePx    = 11
	headerGapPx          = 8
)

// HeaderBlock 渲染已插值的页眉描述：标题、副标题、键值字段与表格。
// 布局是同步的。
type HeaderBlock struct {
	Header   layout.Header
	Renderer *canvasrenderer.Renderer

	mu       sync.Mutex
	measured layout.Size
}

var _ Block = (*HeaderBlock)(nil)

func (b *HeaderBlock) Clone() Block {
	return &HeaderBlock{Header: b.Header, Renderer: b.Renderer}
}

func (b *HeaderBlock) Layout(width float64) {
	h, err := b.draw(nil, layout.Rect{Width: width})
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil || width <= 0 {
		b.measured = layout.Size{}
		return
	}
	b.measured = layout.Size{Width: width, Height: h}
}

func (b *HeaderBlock) Measured() layout.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.measured
}

func (b *HeaderBlock) Paint(ctx *canvas.Context, box layout.Rect) error {
	_, err := b.draw(ctx, box)
	return err
}

// draw 在 ctx 为 nil 时只计算高度。
func (b *HeaderBlock) draw(ctx *canvas.Context, box layout.Rect) (float64, error) {
	r := b.Renderer
	if r == nil {
		r = canvasrenderer.Shared()
	}
	ink := canvas.Hex("#111827")
	muted := canvas.Hex("#4b5563")
	cursor := box.Y

	text := func(content string, weight layout.FontWeight, size float64, col color.Color) error {
		if content == "" {
			return nil
		}
		lines, err := r.LayoutLines(content, box.Width, weight, size, size*1.3)
		if err != nil {
			return err
		}
		h := 0.0
		for _, ln := range lines {
			h += ln.GapBefore + ln.Height
		}
		if ctx != nil {
			if _, err := r.DrawText(ctx, lines, box.X, cursor, box.Width, weight, size, col, "left"); err != nil {
				return err
			}
		}
		cursor += h + headerGapPx
		return nil
	}

	if err := text(b.Header.Title, layout.Bold, headerTitleSizePx, ink); err != nil {
		return 0, fmt.Errorf("页眉标题排版失败: %w", err)
	}
	if err := text(b.Header.Subtitle, layout.Regular, headerSubtitleSizePx, muted); err != nil {
		return 0, fmt.Errorf("页眉副标题排版失败: %w", err)
	}
	if len(b.Header.Fields) > 0 {
		parts := make([]string, 0, len(b.Header.Fields))
		for _, f := range b.Header.Fields {
			parts = append(parts, f.Label+": "+f.Value)
		}
		if err := text(strings.Join(parts, "    "), layout.Regular, headerFieldSizePx, ink); err != nil {
			return 0, fmt.Errorf("页眉字段排版失败: %w", err)
		}
	}
	if len(b.Header.Rows) > 0 {
		var h float64
		var err error
		if ctx != nil {
			h, err = r.DrawTable(ctx, b.Header.Rows, box.X, cursor, box.Width, headerTableSizePx, true, canvas.Hex("#d1d5db"))
		} else {
			h, err = r.TableHeight(b.Header.Rows, box.Width, headerTableSizePx, true)
		}
		if err != nil {
			return 0, fmt.Errorf("页眉表格排版失败: %w", err)
		}
		cursor += h + headerGapPx
	}
	return cursor - box.Y, nil
}

// ImageBlock 以容器宽度等比绘制一张位图。
type ImageBlock struct {
	Image    image.Image
	HeightPx float64

	mu       sync.Mutex
	measured layout.Size
}

var _ Block = (*ImageBlock)(nil)

func (b *ImageBlock) Clone() Block {
	return &ImageBlock{Image: b.Image, HeightPx: b.HeightPx}
}

func (b *ImageBlock) Layout(width float64) {
	size := layout.Size{}
	if b.Image != nil && width > 0 {
		bounds := b.Image.Bounds()
		h := b.HeightPx
		if h <= 0 && bounds.Dx() > 0 {
			h = width * float64(bounds.Dy()) / float64(bounds.Dx())
		}
		size = layout.Size{Width: width, Height: h}
	}
	b.mu.Lock()
	b.measured = size
	b.mu.Unlock()
}

func (b *ImageBlock) Measured() layout.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.measured
}

func (b *ImageBlock) Paint(ctx *canvas.Context, box layout.Rect) error {
	if b.Image == nil {
		return nil
	}
	bounds := b.Image.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil
	}
	// 高度受限时按高度缩放并居中
	w := box.Width
	if h := w * float64(bounds.Dy()) / float64(bounds.Dx()); box.Height > 0 && h > box.Height {
		w = box.Height * float64(bounds.Dx()) / float64(bounds.Dy())
	}
	canvasrenderer.DrawImage(ctx, b.Image, layout.Rect{X: box.X + (box.Width-w)/2, Y: box.Y, Width: w})
	return nil
}

// WatermarkLayer 在所在区域内平铺水印贴图。Tile 以 Scale 倍像素生成。
type WatermarkLayer struct {
	Tile  *watermark.Tile
	Scale float64
}

var _ Block = (*WatermarkLayer)(nil)

// NewWatermarkElement 返回一个不参与截图的覆盖层元素。
func NewWatermarkElement(tile *watermark.Tile, scale float64) *Element {
	return &Element{
		ID:        "watermark",
		NoCapture: true,
		Style:     Style{Overlay: true},
		Block:     &WatermarkLayer{Tile: tile, Scale: scale},
	}
}

func (l *WatermarkLayer) Clone() Block { return &WatermarkLayer{Tile: l.Tile, Scale: l.Scale} }

func (l *WatermarkLayer) Layout(float64) {}

func (l *WatermarkLayer) Measured() layout.Size { return layout.Size{} }

func (l *WatermarkLayer) Paint(ctx *canvas.Context, box layout.Rect) error {
	if l.Tile == nil || l.Tile.Width <= 0 || l.Tile.Height <= 0 {
		return nil
	}
	scale := l.Scale
	if scale <= 0 {
		scale = 1
	}
	tw, th := float64(l.Tile.Width)/scale, float64(l.Tile.Height)/scale
	for y := box.Y; y < box.Y+box.Height; y += th {
		for x := box.X; x < box.X+box.Width; x += tw {
			ctx.DrawImage(x, y, l.Tile.Image, canvas.DPMM(scale))
		}
	}
	return nil
}
