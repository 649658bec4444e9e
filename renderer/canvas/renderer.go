package canvasrenderer

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/fonts"
	"github.com/ByLCY/chartfolio/layout"
)

const tableBorderWidth = 1.0

// Renderer 基于 github.com/tdewolff/canvas 提供文本测量、折行与常用绘制操作。
// 暂存容器以 px 为单位，canvas 内部将其视为 mm；字号在边界处换算为 pt。
type Renderer struct {
	fontMu   sync.Mutex
	families map[layout.FontWeight]*canvas.FontFamily
}

var _ layout.Typesetter = (*Renderer)(nil)

var (
	sharedOnce sync.Once
	shared     *Renderer
)

// Shared 返回进程内共享的渲染器（字体只加载一次）。
func Shared() *Renderer {
	sharedOnce.Do(func() { shared = NewRenderer() })
	return shared
}

// NewRenderer creates a renderer backed by the bundled Go fonts.
func NewRenderer() *Renderer {
	return &Renderer{families: map[layout.FontWeight]*canvas.FontFamily{}}
}

// Face 返回给定字重、像素字号与颜色的字体面。
func (r *Renderer) Face(weight layout.FontWeight, sizePx float64, col color.Color) (*canvas.FontFace, error) {
	family, err := r.ensureFamily(weight)
	if err != nil {
		return nil, err
	}
	style := canvas.FontRegular
	if weight == layout.Bold {
		style = canvas.FontBold
	}
	return family.Face(toPt(sizePx), col, style, canvas.FontNormal), nil
}

func (r *Renderer) ensureFamily(weight layout.FontWeight) (*canvas.FontFamily, error) {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	if family, ok := r.families[weight]; ok {
		return family, nil
	}
	name, style := fonts.Regular, canvas.FontRegular
	if weight == layout.Bold {
		name, style = fonts.Bold, canvas.FontBold
	}
	data, err := fonts.Load(name)
	if err != nil {
		return nil, err
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, style); err != nil {
		return nil, fmt.Errorf("加载字体 %s 失败: %w", name, err)
	}
	r.families[weight] = family
	return family, nil
}

// MeasureText 实现 layout.Typesetter：返回单行文本的宽度与行高（px）。
// 字体不可用时退化为按字符数估算。
func (r *Renderer) MeasureText(content string, weight layout.FontWeight, sizePx float64) (float64, float64) {
	face, err := r.Face(weight, sizePx, canvas.Black)
	if err != nil {
		return float64(len([]rune(content))) * sizePx * 0.6, sizePx * 1.2
	}
	return face.TextWidth(content), face.Metrics().LineHeight
}

// LayoutLines 实现 layout.Typesetter 接口，使用贪心换行算法：优先在空白处分割，超过限制时在词内拆分。
func (r *Renderer) LayoutLines(content string, width float64, weight layout.FontWeight, sizePx, lineHeight float64) ([]layout.TextLine, error) {
	face, err := r.Face(weight, sizePx, canvas.Black)
	if err != nil {
		return nil, err
	}
	lines := greedyWrap(content, width, face.TextWidth)
	textHeight := face.Metrics().LineHeight
	if textHeight <= 0 {
		textHeight = lineHeight
	}
	leading := math.Max(lineHeight-textHeight, 0)
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: ""}}
	}
	for i := range lines {
		lines[i].Height = textHeight
		if i > 0 {
			lines[i].GapBefore = leading
		}
	}
	return lines, nil
}

// DrawText 以 (x, top) 为文本行顶部锚点绘制一段已折行的文本，返回总高度。
// align 取值 left/center/right，锚点宽度为 width。
func (r *Renderer) DrawText(ctx *canvas.Context, lines []layout.TextLine, x, top, width float64, weight layout.FontWeight, sizePx float64, col color.Color, align string) (float64, error) {
	face, err := r.Face(weight, sizePx, col)
	if err != nil {
		return 0, err
	}
	textAlign, anchorX := canvas.Left, x
	switch strings.ToLower(align) {
	case "center":
		textAlign, anchorX = canvas.Center, x+width/2
	case "right", "end":
		textAlign, anchorX = canvas.Right, x+width
	}
	ascent := face.Metrics().Ascent
	cursorY := top
	for _, line := range lines {
		cursorY += line.GapBefore
		ctx.DrawText(anchorX, cursorY+ascent, canvas.NewTextLine(face, line.Content, textAlign))
		cursorY += line.Height
	}
	return cursorY - top, nil
}

// DrawLabel 绘制一个可旋转的多行标签；(cx, top) 为标签顶边中点。
func (r *Renderer) DrawLabel(ctx *canvas.Context, lines []string, cx, top, sizePx, rotationDeg float64, col color.Color) error {
	face, err := r.Face(layout.Regular, sizePx, col)
	if err != nil {
		return err
	}
	metrics := face.Metrics()
	align := canvas.Center
	if rotationDeg != 0 {
		// 旋转后的标签以右上角贴住刻度。
		align = canvas.Right
	}
	ctx.Push()
	ctx.ComposeView(canvas.Identity.Translate(cx, top).Rotate(rotationDeg))
	y := metrics.Ascent
	for _, line := range lines {
		ctx.DrawText(0, y, canvas.NewTextLine(face, line, align))
		y += metrics.LineHeight
	}
	ctx.Pop()
	return nil
}

// DrawTable 以均分列宽绘制表格，首行可作为表头；返回表格高度。
func (r *Renderer) DrawTable(ctx *canvas.Context, rows [][]string, x, y, width, sizePx float64, headerRow bool, border color.Color) (float64, error) {
	table, err := r.layoutTable(rows, width, sizePx, headerRow)
	if err != nil || table.columns == 0 {
		return 0, err
	}
	cursorY := y
	for i, cells := range table.cells {
		weight, fill := layout.Regular, canvas.White
		if headerRow && i == 0 {
			weight, fill = layout.Bold, canvas.Hex("#f3f4f6")
		}
		rowHeight := table.heights[i]
		for c, lines := range cells {
			cx := x + float64(c)*table.colWidth
			ctx.SetFillColor(fill)
			ctx.SetStrokeColor(border)
			ctx.SetStrokeWidth(tableBorderWidth)
			ctx.DrawPath(cx, cursorY, canvas.Rectangle(table.colWidth, rowHeight))
			if _, err := r.DrawText(ctx, lines, cx+table.padding, cursorY+table.padding, table.colWidth-2*table.padding, weight, sizePx, canvas.Hex("#1f2937"), "left"); err != nil {
				return 0, err
			}
		}
		cursorY += rowHeight
	}
	return cursorY - y, nil
}

// TableHeight 计算 DrawTable 将占用的高度而不绘制。
func (r *Renderer) TableHeight(rows [][]string, width, sizePx float64, headerRow bool) (float64, error) {
	table, err := r.layoutTable(rows, width, sizePx, headerRow)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, h := range table.heights {
		total += h
	}
	return total, nil
}

type tableLayout struct {
	columns  int
	colWidth float64
	padding  float64
	cells    [][][]layout.TextLine
	heights  []float64
}

func (r *Renderer) layoutTable(rows [][]string, width, sizePx float64, headerRow bool) (tableLayout, error) {
	var t tableLayout
	for _, row := range rows {
		t.columns = max(t.columns, len(row))
	}
	if t.columns == 0 {
		return t, nil
	}
	t.colWidth = width / float64(t.columns)
	t.padding = sizePx * 0.4
	for i, row := range rows {
		weight := layout.Regular
		if headerRow && i == 0 {
			weight = layout.Bold
		}
		cells := make([][]layout.TextLine, t.columns)
		rowHeight := 0.0
		for c := range cells {
			content := ""
			if c < len(row) {
				content = row[c]
			}
			lines, err := r.LayoutLines(content, t.colWidth-2*t.padding, weight, sizePx, sizePx*1.3)
			if err != nil {
				return t, err
			}
			cells[c] = lines
			rowHeight = math.Max(rowHeight, linesHeight(lines)+2*t.padding)
		}
		t.cells = append(t.cells, cells)
		t.heights = append(t.heights, rowHeight)
	}
	return t, nil
}

// FillRect 绘制无描边的填充矩形。
func FillRect(ctx *canvas.Context, box layout.Rect, fill color.Color) {
	ctx.SetFillColor(fill)
	ctx.SetStrokeColor(canvas.Transparent)
	ctx.DrawPath(box.X, box.Y, canvas.Rectangle(box.Width, box.Height))
}

// DrawLine 绘制一条线段。
func DrawLine(ctx *canvas.Context, x1, y1, x2, y2, width float64, col color.Color) {
	if width <= 0 {
		width = tableBorderWidth
	}
	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(col)
	ctx.SetStrokeWidth(width)
	p := &canvas.Path{}
	p.MoveTo(0, 0)
	p.LineTo(x2-x1, y2-y1)
	ctx.DrawPath(x1, y1, p)
}

// DrawImage 将位图缩放到 box 宽度绘制（保持宽高比）。
func DrawImage(ctx *canvas.Context, img image.Image, box layout.Rect) {
	px := img.Bounds().Dx()
	if px <= 0 || box.Width <= 0 {
		return
	}
	ctx.DrawImage(box.X, box.Y, img, canvas.DPMM(float64(px)/box.Width))
}

func linesHeight(lines []layout.TextLine) float64 {
	h := 0.0
	for _, ln := range lines {
		h += ln.GapBefore + ln.Height
	}
	return h
}

// toPt 将像素字号换算为 canvas 字体面所需的 pt（canvas 把单位视为 mm）。
func toPt(sizePx float64) float64 { return sizePx * layout.MmToPt }

func greedyWrap(content string, width float64, measure func(string) float64) []layout.TextLine {
	limit := width
	if limit <= 0 {
		limit = math.MaxFloat64
	}
	var lines []layout.TextLine
	var builder strings.Builder
	current := 0.0
	emit := func(force bool) {
		if builder.Len() == 0 {
			if force {
				lines = append(lines, layout.TextLine{})
			}
			return
		}
		lines = append(lines, layout.TextLine{Content: builder.String(), Width: current})
		builder.Reset()
		current = 0
	}
	appendToken := func(token string, w float64) {
		builder.WriteString(token)
		current += w
	}

	for _, token := range tokenize(content) {
		if token == "\n" {
			emit(true)
			continue
		}
		tokenWidth := measure(token)
		if current > 0 && current+tokenWidth > limit {
			emit(false)
			if strings.TrimSpace(token) == "" {
				continue
			}
		}
		if tokenWidth <= limit {
			appendToken(token, tokenWidth)
			continue
		}
		for _, chunk := range splitByWidth(token, limit, measure) {
			w := measure(chunk)
			if current > 0 && current+w > limit {
				emit(false)
			}
			appendToken(chunk, w)
		}
	}
	emit(true)
	return lines
}

func tokenize(s string) []string {
	var tokens []string
	var builder strings.Builder
	lastWasSpace := false
	flush := func() {
		if builder.Len() > 0 {
			tokens = append(tokens, builder.String())
			builder.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '\r':
			continue
		case r == '\n':
			flush()
			tokens = append(tokens, "\n")
			lastWasSpace = false
			continue
		}
		isSpace := unicode.IsSpace(r)
		if builder.Len() > 0 && lastWasSpace != isSpace {
			flush()
		}
		lastWasSpace = isSpace
		builder.WriteRune(r)
	}
	flush()
	return tokens
}

func splitByWidth(token string, limit float64, measure func(string) float64) []string {
	var parts []string
	var runes []rune
	for _, r := range token {
		runes = append(runes, r)
		if len(runes) > 1 && measure(string(runes)) > limit {
			parts = append(parts, string(runes[:len(runes)-1]))
			runes = []rune{r}
		}
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
