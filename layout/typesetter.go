package layout

// FontWeight 选择内置字体的字重。
type FontWeight int

const (
	Regular FontWeight = iota
	Bold
)

// TextLine 表示排版后的一行文本内容及其宽高（px）。
type TextLine struct {
	Content   string  `json:"content"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	GapBefore float64 `json:"gapBefore,omitempty"`
}

// Typesetter 负责测量文本并根据宽度约束将文本拆成可绘制的行。
// 所有长度均为暂存容器中的 CSS 像素。
type Typesetter interface {
	MeasureText(content string, weight FontWeight, sizePx float64) (width, height float64)
	LayoutLines(content string, width float64, weight FontWeight, sizePx, lineHeight float64) ([]TextLine, error)
}
