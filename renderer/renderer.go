package renderer

import (
	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
)

// Painter 将自身绘制到 canvas 上下文中的给定区域（暂存容器坐标，单位 px，左上角为原点）。
type Painter interface {
	Paint(ctx *canvas.Context, box layout.Rect) error
}
