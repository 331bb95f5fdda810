package widget

import (
	"image"
	"testing"
)

func TestFlexRowDistributesWidthByWeight(t *testing.T) {
	root := &Node{Layout: LayoutFlexRow, Children: []*Node{
		{Kind: KindRect, Weight: 1},
		{Kind: KindRect, Weight: 3},
	}}
	root.Measure(400, 100)

	a, b := root.Children[0], root.Children[1]
	if a.W+b.W > 400 || a.W+b.W < 396 {
		t.Fatalf("children widths %d+%d should sum close to 400", a.W, b.W)
	}
	if b.W <= a.W {
		t.Fatalf("weight-3 child (%d) should be wider than weight-1 child (%d)", b.W, a.W)
	}
	if a.H != 100 || b.H != 100 {
		t.Fatalf("flex row children should fill height, got %d and %d", a.H, b.H)
	}
}

func TestGridLayoutPlacesChildrenInRowMajorOrder(t *testing.T) {
	root := &Node{Layout: LayoutGrid, GridCols: 2, Children: []*Node{
		{Kind: KindRect}, {Kind: KindRect}, {Kind: KindRect},
	}}
	root.Measure(200, 150)

	if root.Children[0].X >= root.Children[1].X {
		t.Fatal("second child should be to the right of the first in a 2-col grid")
	}
	if root.Children[2].Y <= root.Children[0].Y {
		t.Fatal("third child should wrap to the next row")
	}
}

func TestAbsoluteLayoutLeavesExplicitCoordinates(t *testing.T) {
	root := &Node{Layout: LayoutAbsolute, Children: []*Node{
		{Kind: KindRect, X: 10, Y: 20, W: 30, H: 40},
	}}
	root.Measure(200, 200)
	c := root.Children[0]
	if c.X != 10 || c.Y != 20 || c.W != 30 || c.H != 40 {
		t.Fatalf("absolute child coordinates changed: %+v", c)
	}
}

func TestDrawDoesNotPanicOnContainerTree(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 64, 64))
	root := &Node{
		Kind: KindContainer, Layout: LayoutFlexColumn,
		Style: Style{Background: [4]float64{0, 0, 0, 1}},
		Children: []*Node{
			{Kind: KindLabel, Text: "hi", Style: Style{Foreground: [4]float64{1, 1, 1, 1}}},
			{Kind: KindRect, Style: Style{Background: [4]float64{1, 0, 0, 1}, CornerRadius: 4}},
		},
	}
	root.Measure(64, 64)
	root.Draw(dst, 0, 0)
}
