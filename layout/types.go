package layout

import (
	"fmt"
	"image/color"
	"strings"
	"time"
)

// 该文件定义导出流程共用的页面几何、页眉与水印描述。

// Orientation 表示纸张方向。
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation 接受 portrait/landscape 以及单字母 p/l。
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "p", "portrait":
		return Portrait, nil
	case "l", "landscape":
		return Landscape, nil
	default:
		return "", fmt.Errorf("未知的纸张方向 %q", s)
	}
}

// Format 为固定纸张尺寸，宽高以 pt 表示（纵向）。
type Format struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var formats = map[string]Format{
	"A3":     {Name: "A3", Width: 841.89, Height: 1190.55},
	"A4":     {Name: "A4", Width: 595.28, Height: 841.89},
	"A5":     {Name: "A5", Width: 419.53, Height: 595.28},
	"LETTER": {Name: "Letter", Width: 612, Height: 792},
	"LEGAL":  {Name: "Legal", Width: 612, Height: 1008},
}

// LookupFormat 按名称（大小写不敏感）查找纸张尺寸。
func LookupFormat(name string) (Format, error) {
	f, ok := formats[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Format{}, fmt.Errorf("不支持的纸张尺寸 %q", name)
	}
	return f, nil
}

// Size 是一个宽高对，单位由上下文决定。
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect 为左上角原点的矩形。
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageGeometry 描述输出文档的页面与截图参数。
type PageGeometry struct {
	Orientation Orientation `json:"orientation"`
	Format      Format      `json:"format"`
	MarginPt    float64     `json:"marginPt"`
	// Scale 为截图的设备像素比。
	Scale float64 `json:"scale"`
	// Background 为截图背景色；nil 表示白色。
	Background color.Color `json:"-"`
	// WidthPx 为暂存容器的目标导出宽度（CSS 像素）。
	WidthPx float64 `json:"widthPx"`
}

// DefaultGeometry 返回 A4 纵向、20pt 边距、2 倍截图的默认几何。
func DefaultGeometry() PageGeometry {
	a4, _ := LookupFormat("A4")
	return PageGeometry{
		Orientation: Portrait,
		Format:      a4,
		MarginPt:    20,
		Scale:       2,
		Background:  color.White,
		WidthPx:     1000,
	}
}

// PageSize 返回考虑方向后的页面宽高（pt）。
func (g PageGeometry) PageSize() Size {
	w, h := g.Format.Width, g.Format.Height
	if g.Orientation == Landscape && w < h {
		w, h = h, w
	}
	return Size{Width: w, Height: h}
}

// ContentBox 返回扣除四边边距后的可打印区域（pt）。
func (g PageGeometry) ContentBox() Rect {
	size := g.PageSize()
	m := g.MarginPt
	if m < 0 {
		m = 0
	}
	return Rect{
		X:      m,
		Y:      m,
		Width:  maxf(size.Width-2*m, 0),
		Height: maxf(size.Height-2*m, 0),
	}
}

// RenderGeometry 是一张页面图片在文档中的放置位置（pt）。
type RenderGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Header 是数据形式的页眉描述，由核心自行渲染。
// 所有文本均支持 ${page}、${pages} 与 ${meta.*} 插值。
type Header struct {
	Title    string        `json:"title" yaml:"title"`
	Subtitle string        `json:"subtitle,omitempty" yaml:"subtitle"`
	Fields   []HeaderField `json:"fields,omitempty" yaml:"fields"`
	Rows     [][]string    `json:"rows,omitempty" yaml:"rows"`
	// FirstPageOnly 为 true 时只在第 0 页渲染（封面页眉）。
	FirstPageOnly bool `json:"firstPageOnly,omitempty" yaml:"firstPageOnly"`
}

// HeaderField 为页眉中的一组键值。
type HeaderField struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Watermark 描述平铺水印的文本参数。
type Watermark struct {
	Text        string  `json:"text" yaml:"text"`
	Opacity     float64 `json:"opacity" yaml:"opacity"`
	RotationDeg float64 `json:"rotationDeg" yaml:"rotation"`
	FontSizePx  float64 `json:"fontSizePx" yaml:"size"`
	GapPx       float64 `json:"gapPx" yaml:"gap"`
	Color       Color   `json:"color" yaml:"color"`
}

// DefaultWatermark 返回常用的水印参数，仅需填写文本。
func DefaultWatermark(text string) Watermark {
	return Watermark{
		Text:        text,
		Opacity:     0.12,
		RotationDeg: -30,
		FontSizePx:  24,
		GapPx:       80,
		Color:       Color{R: 120, G: 120, B: 120},
	}
}

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// RGBA 转换为 color.RGBA（不透明）。
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: clampByte(c.R), G: clampByte(c.G), B: clampByte(c.B), A: 255}
}

// ParseColor 解析 #rgb、#rrggbb 与 #rrggbbaa（忽略 alpha）。
func ParseColor(value string) (Color, error) {
	v := strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(v) {
	case 3:
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	case 6:
	case 8:
		v = v[:6]
	default:
		return Color{}, fmt.Errorf("无法解析颜色 %q", value)
	}
	var c Color
	if _, err := fmt.Sscanf(v, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return Color{}, fmt.Errorf("无法解析颜色 %q: %w", value, err)
	}
	return c, nil
}

// Point 为时间序列中的一个采样。
type Point struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
