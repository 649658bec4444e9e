package document

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/chartfolio/layout"
)

// CanvasPDF 基于 tdewolff/canvas 的 PDF 渲染器；每页一个 canvas，单位为 mm。
type CanvasPDF struct {
	pages []*canvas.Canvas
	ctxs  []*canvas.Context
	meta  layout.DocumentMeta
}

var _ Primitive = (*CanvasPDF)(nil)

// NewCanvasPDF 创建空文档。
func NewCanvasPDF() *CanvasPDF { return &CanvasPDF{} }

func (p *CanvasPDF) AddPage(size layout.Size) {
	c := canvas.New(size.Width*layout.PtToMm, size.Height*layout.PtToMm)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	p.pages = append(p.pages, c)
	p.ctxs = append(p.ctxs, ctx)
}

func (p *CanvasPDF) DrawImage(img image.Image, g layout.RenderGeometry) error {
	if len(p.ctxs) == 0 {
		return ErrNoPages
	}
	px := img.Bounds().Dx()
	if px <= 0 || g.Width <= 0 {
		return fmt.Errorf("图片尺寸无效: %dpx -> %gpt", px, g.Width)
	}
	widthMM := g.Width * layout.PtToMm
	ctx := p.ctxs[len(p.ctxs)-1]
	ctx.DrawImage(g.X*layout.PtToMm, g.Y*layout.PtToMm, img, canvas.DPMM(float64(px)/widthMM))
	return nil
}

func (p *CanvasPDF) SetMeta(meta layout.DocumentMeta) { p.meta = meta }

func (p *CanvasPDF) Pages() int { return len(p.pages) }

func (p *CanvasPDF) WriteTo(w io.Writer) error {
	if len(p.pages) == 0 {
		return ErrNoPages
	}
	first := p.pages[0]
	writer := pdf.New(w, first.W, first.H, nil)
	writer.SetInfo(p.meta.Title, p.meta.Subject, strings.Join(p.meta.Keywords, ", "), p.meta.Author, p.meta.Creator)
	for i, c := range p.pages {
		if i > 0 {
			writer.NewPage(c.W, c.H)
		}
		c.RenderTo(writer)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return nil
}
