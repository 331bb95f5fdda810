// Package widget implements the window-content layout/draw tree spec.md
// §2 names as part of the secondary spine: a tree of typed widgets with
// flex, grid, or absolute layout, drawn into the owning window's
// back-buffer. Rasterization goes through github.com/fogleman/gg, grounded
// on iansmith-mazarin/mazboot's boot-time UI layers, which draw through the
// same kind of immediate-mode 2D context rather than hand-rolled
// Bresenham/blit routines.
package widget

import (
	"image"

	"github.com/fogleman/gg"
)

// Layout selects how a Node arranges its children.
type Layout uint8

const (
	LayoutAbsolute Layout = iota
	LayoutFlexRow
	LayoutFlexColumn
	LayoutGrid
)

// Kind is the drawable type a leaf Node renders as.
type Kind uint8

const (
	KindContainer Kind = iota
	KindLabel
	KindButton
	KindRect
	KindImage
)

// Style carries the handful of paint properties every kind understands.
type Style struct {
	Background   [4]float64 // r,g,b,a in [0,1]
	Foreground   [4]float64
	BorderWidth  float64
	CornerRadius float64
}

// Node is one element of the widget tree. Children are parent-owned
// (spec.md's "cyclic data avoided" design note: no upward parent pointer),
// so removing or relayouting a subtree never touches anything above it.
type Node struct {
	Kind     Kind
	Layout   Layout
	Style    Style
	Text     string
	Image    *image.RGBA
	GridCols int

	// Flex/grid weight for this node within its parent's layout; absolute
	// children instead use X/Y/W/H directly.
	Weight  float64
	X, Y    int
	W, H    int
	Padding int
	Gap     int

	Children []*Node
}

// Measure computes and stores the X/Y/W/H of every descendant of n, with n
// itself occupying [0,0,width,height). Call before Draw.
func (n *Node) Measure(width, height int) {
	n.W, n.H = width, height
	n.layoutChildren()
}

func (n *Node) layoutChildren() {
	inner := image.Rect(n.Padding, n.Padding, n.W-n.Padding, n.H-n.Padding)
	switch n.Layout {
	case LayoutAbsolute:
		for _, c := range n.Children {
			c.layoutChildren()
		}
	case LayoutFlexRow:
		n.layoutFlex(inner, true)
	case LayoutFlexColumn:
		n.layoutFlex(inner, false)
	case LayoutGrid:
		n.layoutGrid(inner)
	}
}

func (n *Node) layoutFlex(inner image.Rectangle, horizontal bool) {
	if len(n.Children) == 0 {
		return
	}
	totalWeight := 0.0
	for _, c := range n.Children {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		totalWeight += w
	}
	avail := inner.Dx()
	if !horizontal {
		avail = inner.Dy()
	}
	gapTotal := n.Gap * (len(n.Children) - 1)
	if gapTotal < 0 {
		gapTotal = 0
	}
	avail -= gapTotal
	cursor := 0
	if horizontal {
		cursor = inner.Min.X
	} else {
		cursor = inner.Min.Y
	}
	for _, c := range n.Children {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		share := int(float64(avail) * w / totalWeight)
		if horizontal {
			c.X, c.Y, c.W, c.H = cursor, inner.Min.Y, share, inner.Dy()
			cursor += share + n.Gap
		} else {
			c.X, c.Y, c.W, c.H = inner.Min.X, cursor, inner.Dx(), share
			cursor += share + n.Gap
		}
		c.layoutChildren()
	}
}

func (n *Node) layoutGrid(inner image.Rectangle) {
	cols := n.GridCols
	if cols < 1 {
		cols = 1
	}
	cellW := inner.Dx() / cols
	rows := (len(n.Children) + cols - 1) / cols
	if rows < 1 {
		rows = 1
	}
	cellH := inner.Dy() / rows
	for i, c := range n.Children {
		col := i % cols
		row := i / cols
		c.X = inner.Min.X + col*cellW
		c.Y = inner.Min.Y + row*cellH
		c.W = cellW
		c.H = cellH
		c.layoutChildren()
	}
}

// Draw renders n and its subtree into dst at offset (ox, oy), the owning
// window's back-buffer origin.
func (n *Node) Draw(dst *image.RGBA, ox, oy int) {
	ctx := gg.NewContextForRGBA(dst)
	n.draw(ctx, ox, oy)
}

func (n *Node) draw(ctx *gg.Context, ox, oy int) {
	x, y := float64(ox+n.X), float64(oy+n.Y)
	w, h := float64(n.W), float64(n.H)

	switch n.Kind {
	case KindRect, KindContainer, KindButton:
		bg := n.Style.Background
		ctx.SetRGBA(bg[0], bg[1], bg[2], bg[3])
		if n.Style.CornerRadius > 0 {
			ctx.DrawRoundedRectangle(x, y, w, h, n.Style.CornerRadius)
		} else {
			ctx.DrawRectangle(x, y, w, h)
		}
		ctx.Fill()
		if n.Style.BorderWidth > 0 {
			fg := n.Style.Foreground
			ctx.SetRGBA(fg[0], fg[1], fg[2], fg[3])
			ctx.SetLineWidth(n.Style.BorderWidth)
			ctx.DrawRectangle(x, y, w, h)
			ctx.Stroke()
		}
	case KindLabel:
		fg := n.Style.Foreground
		ctx.SetRGBA(fg[0], fg[1], fg[2], fg[3])
		ctx.DrawStringAnchored(n.Text, x+w/2, y+h/2, 0.5, 0.5)
	case KindImage:
		if n.Image != nil {
			ctx.DrawImage(n.Image, int(x), int(y))
		}
	}

	for _, c := range n.Children {
		c.draw(ctx, ox, oy)
	}
}
