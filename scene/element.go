// Package scene holds the element trees that are staged, laid out and
// captured for each exported page.
package scene

import (
	"github.com/tdewolff/canvas"

	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/renderer"
)

// Block is a visual unit that can be cloned into a staging container,
// laid out at a width and painted. Layout may complete asynchronously;
// until it does, Measured reports a zero width.
type Block interface {
	renderer.Painter
	Clone() Block
	Layout(width float64)
	Measured() layout.Size
}

// Style carries inline sizing. Zero values mean "auto".
type Style struct {
	WidthPx  float64
	HeightPx float64
	// Overlay elements span their parent's box and take no flow space.
	Overlay bool
}

// Element is a node of a staged tree. Leaves carry a Block; containers
// stack their non-overlay children vertically.
type Element struct {
	ID         string
	ExportItem bool
	NoCapture  bool
	Style      Style
	Block      Block
	Children   []*Element
}

// NewItem wraps a block as an export item.
func NewItem(id string, b Block) *Element {
	return &Element{ID: id, ExportItem: true, Block: b}
}

// Append adds children in order.
func (e *Element) Append(children ...*Element) {
	e.Children = append(e.Children, children...)
}

// Walk visits e and its descendants depth-first. Returning false from fn
// skips the node's subtree.
func (e *Element) Walk(fn func(*Element) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// ExportItems returns the export items under e in document order.
func (e *Element) ExportItems() []*Element {
	var out []*Element
	e.Walk(func(n *Element) bool {
		if n.ExportItem {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Clone deep-copies the tree, cloning every block.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := *e
	if e.Block != nil {
		out.Block = e.Block.Clone()
	}
	out.Children = make([]*Element, len(e.Children))
	for i, c := range e.Children {
		out.Children[i] = c.Clone()
	}
	return &out
}

// Placement is the box an element occupies inside the container.
type Placement struct {
	Element *Element
	Box     layout.Rect
}

// Arrange lays out root at its inline width and returns the container size
// together with every element box in paint order (parents before children).
func Arrange(root *Element) (layout.Size, []Placement) {
	if root == nil {
		return layout.Size{}, nil
	}
	width := root.Style.WidthPx
	if width <= 0 && root.Block != nil {
		width = root.Block.Measured().Width
	}
	var out []Placement
	height := arrange(root, 0, 0, width, &out)
	return layout.Size{Width: width, Height: height}, out
}

func arrange(e *Element, x, y, width float64, out *[]Placement) float64 {
	idx := len(*out)
	*out = append(*out, Placement{Element: e, Box: layout.Rect{X: x, Y: y, Width: width}})

	height := 0.0
	if e.Block != nil {
		height = e.Block.Measured().Height
	}
	var overlays []*Element
	cursor := y + height
	for _, c := range e.Children {
		if c.Style.Overlay {
			overlays = append(overlays, c)
			continue
		}
		cursor += arrange(c, x, cursor, width, out)
	}
	height = cursor - y
	if e.Style.HeightPx > 0 {
		height = e.Style.HeightPx
	}
	(*out)[idx].Box.Height = height
	for _, c := range overlays {
		arrangeOverlay(c, layout.Rect{X: x, Y: y, Width: width, Height: height}, out)
	}
	return height
}

func arrangeOverlay(e *Element, box layout.Rect, out *[]Placement) {
	*out = append(*out, Placement{Element: e, Box: box})
	for _, c := range e.Children {
		arrangeOverlay(c, box, out)
	}
}

// Paint draws every placement not rejected by skip. A skipped element
// keeps its layout box but neither it nor its descendants are drawn.
func Paint(ctx *canvas.Context, placements []Placement, skip func(*Element) bool) error {
	skipped := map[*Element]bool{}
	for _, p := range placements {
		e := p.Element
		if skip != nil && skip(e) {
			e.Walk(func(n *Element) bool {
				skipped[n] = true
				return true
			})
		}
		if skipped[e] || e.Block == nil {
			continue
		}
		if err := e.Block.Paint(ctx, p.Box); err != nil {
			return err
		}
	}
	return nil
}
