package document

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/ByLCY/chartfolio/layout"
)

// FPDF renders through go-pdf/fpdf in point units. Page images are
// embedded as PNG.
type FPDF struct {
	doc    *fpdf.Fpdf
	images int
	meta   layout.DocumentMeta
}

var _ Primitive = (*FPDF)(nil)

// NewFPDF returns an empty fpdf-backed document.
func NewFPDF() *FPDF { return &FPDF{} }

func (p *FPDF) AddPage(size layout.Size) {
	format := fpdf.SizeType{Wd: size.Width, Ht: size.Height}
	if p.doc == nil {
		p.doc = fpdf.NewCustom(&fpdf.InitType{OrientationStr: "P", UnitStr: "pt", Size: format})
		p.doc.SetMargins(0, 0, 0)
		p.doc.SetAutoPageBreak(false, 0)
		p.doc.AddPage()
		return
	}
	p.doc.AddPageFormat("P", format)
}

func (p *FPDF) DrawImage(img image.Image, g layout.RenderGeometry) error {
	if p.doc == nil {
		return ErrNoPages
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("fpdf: encode page image: %w", err)
	}
	p.images++
	name := fmt.Sprintf("page-image-%d", p.images)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	p.doc.RegisterImageOptionsReader(name, opts, &buf)
	p.doc.ImageOptions(name, g.X, g.Y, g.Width, g.Height, false, opts, 0, "")
	return p.doc.Error()
}

func (p *FPDF) SetMeta(meta layout.DocumentMeta) { p.meta = meta }

func (p *FPDF) Pages() int {
	if p.doc == nil {
		return 0
	}
	return p.doc.PageCount()
}

func (p *FPDF) WriteTo(w io.Writer) error {
	if p.doc == nil {
		return ErrNoPages
	}
	p.doc.SetTitle(p.meta.Title, true)
	p.doc.SetAuthor(p.meta.Author, true)
	p.doc.SetSubject(p.meta.Subject, true)
	p.doc.SetCreator(p.meta.Creator, true)
	p.doc.SetKeywords(strings.Join(p.meta.Keywords, ", "), true)
	return p.doc.Output(w)
}
