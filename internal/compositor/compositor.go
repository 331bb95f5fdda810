// Package compositor implements the display server's window list, z-order,
// hit testing, drag/resize, and dirty-rectangle flush, spec.md §4.9. The
// flat z-ordered list (rather than a tree with parent pointers) follows the
// explicit design note in spec.md's DESIGN NOTES section; alpha-compositing
// of per-window back-buffers and the hardware cursor sprite onto the
// scanout framebuffer is done with golang.org/x/image/draw, grounded on
// iansmith-mazarin's use of the same package for blending boot-time UI
// layers (src/mazboot).
package compositor

import (
	"image"
	"sync"

	imgdraw "golang.org/x/image/draw"

	"kestrel/internal/defs"
)

// Kind is a window's presentation class (spec.md §3 Window).
type Kind uint8

const (
	KindNormal Kind = iota
	KindBar
	KindPopup
	KindWallpaper
)

// EventKind tags the compositor's outgoing event union (spec.md §3 Event).
type EventKind uint8

const (
	EventNone EventKind = iota
	EventMouse
	EventKeyboard
	EventResize
	EventRedraw
)

// Event carries one routed occurrence to a window's owner.
type Event struct {
	Kind   EventKind
	Window uint64
	X, Y   int
	Button uint8
	Down   bool
	Key    uint32
	Width  int
	Height int
}

// Window is one compositor-owned surface (spec.md §3).
type Window struct {
	ID           uint64
	OwnerPID     defs.Pid_t
	X, Y         int
	W, H         int
	Z            int
	Kind         Kind
	Transparent  bool
	Movable      bool
	Resizable    bool
	HasHandler   bool
	Back         *image.RGBA
}

const titleBarHeight = 24

func (w *Window) contains(x, y int) bool {
	return x >= w.X && x < w.X+w.W && y >= w.Y && y < w.Y+w.H
}

func (w *Window) inTitleBar(x, y int) bool {
	return w.contains(x, y) && y < w.Y+titleBarHeight
}

type dragState struct {
	active   bool
	resizing bool
	windowID uint64
	lastX    int
	lastY    int
}

// Compositor owns the window list and the active/back scanout framebuffers.
type Compositor struct {
	mu      sync.Mutex
	windows []*Window
	nextID  uint64
	focus   uint64
	drag    dragState
	dirty   []image.Rectangle

	screenW, screenH int
	active           *image.RGBA
	cursor           *image.RGBA
	cursorX, cursorY int
}

// New creates a compositor for a screenW x screenH scanout.
func New(screenW, screenH int) *Compositor {
	return &Compositor{
		screenW: screenW,
		screenH: screenH,
		active:  image.NewRGBA(image.Rect(0, 0, screenW, screenH)),
	}
}

// CreateWindow allocates a new window at the top of the z-order and returns
// its id.
func (c *Compositor) CreateWindow(owner defs.Pid_t, x, y, w, h int, kind Kind, movable, resizable, hasHandler bool) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	win := &Window{
		ID: c.nextID, OwnerPID: owner, X: x, Y: y, W: w, H: h,
		Z: len(c.windows), Kind: kind, Movable: movable, Resizable: resizable,
		HasHandler: hasHandler, Back: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
	c.windows = append(c.windows, win)
	c.markDirtyLocked(win.X, win.Y, win.W, win.H)
	return win.ID
}

// FindWindow returns the topmost window containing (x, y), or nil.
func (c *Compositor) FindWindow(x, y int) *Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findWindowLocked(x, y)
}

func (c *Compositor) findWindowLocked(x, y int) *Window {
	var best *Window
	for _, w := range c.windows {
		if w.contains(x, y) {
			if best == nil || w.Z > best.Z {
				best = w
			}
		}
	}
	return best
}

// FocusWindow raises id to the top of the z-order.
func (c *Compositor) FocusWindow(id uint64) defs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	win := c.findByIDLocked(id)
	if win == nil {
		return defs.ENOPATH
	}
	maxZ := 0
	for _, w := range c.windows {
		if w.Z > maxZ {
			maxZ = w.Z
		}
	}
	win.Z = maxZ + 1
	c.focus = id
	c.markDirtyLocked(win.X, win.Y, win.W, win.H)
	return defs.ENONE
}

func (c *Compositor) findByIDLocked(id uint64) *Window {
	for _, w := range c.windows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// RemoveWindow drops id from the list.
func (c *Compositor) RemoveWindow(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.windows {
		if w.ID == id {
			c.markDirtyLocked(w.X, w.Y, w.W, w.H)
			c.windows = append(c.windows[:i], c.windows[i+1:]...)
			return
		}
	}
}

// RemoveWindowsOwnedBy drops every window belonging to pid, per spec.md §8's
// kill_process behavior.
func (c *Compositor) RemoveWindowsOwnedBy(pid defs.Pid_t) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.windows[:0]
	for _, w := range c.windows {
		if w.OwnerPID.SameProcess(pid) {
			c.markDirtyLocked(w.X, w.Y, w.W, w.H)
			continue
		}
		kept = append(kept, w)
	}
	c.windows = kept
}

// MouseDown, with the super modifier held, starts a drag on a button-0 press
// in a movable window's title bar, or a resize on a button-2 press anywhere
// in a resizable window (spec.md §4.9); otherwise it routes a plain Mouse
// event to the hit window if that window has a handler, and returns nil if
// it has none.
func (c *Compositor) MouseDown(x, y int, button uint8, superHeld bool) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	win := c.findWindowLocked(x, y)
	if win == nil {
		return nil
	}
	if superHeld && win.Movable && win.inTitleBar(x, y) && button == 0 {
		c.drag = dragState{active: true, windowID: win.ID, lastX: x, lastY: y}
		return nil
	}
	if superHeld && win.Resizable && button == 2 {
		c.drag = dragState{active: true, resizing: true, windowID: win.ID, lastX: x, lastY: y}
		return nil
	}
	if !win.HasHandler {
		return nil
	}
	return &Event{Kind: EventMouse, Window: win.ID, X: x - win.X, Y: y - win.Y, Button: button, Down: true}
}

// MouseMove advances an in-progress drag/resize, or (with no drag active)
// forwards to the hit window's handler.
func (c *Compositor) MouseMove(x, y int) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag.active {
		win := c.findByIDLocked(c.drag.windowID)
		if win == nil {
			c.drag = dragState{}
			return nil
		}
		dx, dy := x-c.drag.lastX, y-c.drag.lastY
		c.markDirtyLocked(win.X, win.Y, win.W, win.H)
		if c.drag.resizing {
			win.W += dx
			win.H += dy
			if win.W < 1 {
				win.W = 1
			}
			if win.H < 1 {
				win.H = 1
			}
			win.Back = image.NewRGBA(image.Rect(0, 0, win.W, win.H))
		} else {
			win.X += dx
			win.Y += dy
		}
		c.drag.lastX, c.drag.lastY = x, y
		c.markDirtyLocked(win.X, win.Y, win.W, win.H)
		return nil
	}
	win := c.findWindowLocked(x, y)
	if win == nil || !win.HasHandler {
		return nil
	}
	return &Event{Kind: EventMouse, Window: win.ID, X: x - win.X, Y: y - win.Y}
}

// MouseUp ends any in-progress drag/resize, emitting a Resize event to the
// window's owner if a resize just completed (spec.md §4.9).
func (c *Compositor) MouseUp(x, y int, button uint8) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag.active {
		d := c.drag
		c.drag = dragState{}
		if d.resizing {
			win := c.findByIDLocked(d.windowID)
			if win != nil {
				return &Event{Kind: EventResize, Window: win.ID, Width: win.W, Height: win.H}
			}
		}
		return nil
	}
	win := c.findWindowLocked(x, y)
	if win == nil || !win.HasHandler {
		return nil
	}
	return &Event{Kind: EventMouse, Window: win.ID, X: x - win.X, Y: y - win.Y, Button: button, Down: false}
}

// KeyEvent routes a decoded keystroke to the focused window's owner, per
// spec.md §3's Event union reserving a Keyboard case; a focused window
// with no registered handler, or no focus at all, drops the keystroke.
// The modifier state itself (internal/keyboard.Modifiers) stays out of the
// Event union: spec.md's Event only carries the resolved key, not raw
// scancode state.
func (c *Compositor) KeyEvent(key rune, down bool) *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	win := c.findByIDLocked(c.focus)
	if win == nil || !win.HasHandler {
		return nil
	}
	return &Event{Kind: EventKeyboard, Window: win.ID, Key: uint32(key), Down: down}
}

func (c *Compositor) markDirtyLocked(x, y, w, h int) {
	c.dirty = append(c.dirty, image.Rect(x, y, x+w, y+h))
}

// Compose draws every window back to front into the active framebuffer and
// returns the accumulated dirty rectangles for GPU transfer, clearing the
// dirty list.
func (c *Compositor) Compose() []image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	ordered := make([]*Window, len(c.windows))
	copy(ordered, c.windows)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].Z > ordered[j].Z; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	for _, w := range ordered {
		r := image.Rect(w.X, w.Y, w.X+w.W, w.Y+w.H)
		op := imgdraw.Over
		if !w.Transparent {
			op = imgdraw.Src
		}
		op.Draw(c.active, r, w.Back, image.Point{})
	}
	if c.cursor != nil {
		r := image.Rect(c.cursorX, c.cursorY, c.cursorX+c.cursor.Bounds().Dx(), c.cursorY+c.cursor.Bounds().Dy())
		imgdraw.Over.Draw(c.active, r, c.cursor, image.Point{})
	}
	out := c.dirty
	c.dirty = nil
	return out
}

// SetCursor installs the hardware cursor sprite and its screen position.
func (c *Compositor) SetCursor(sprite *image.RGBA, x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor != nil {
		r := image.Rect(c.cursorX, c.cursorY, c.cursorX+c.cursor.Bounds().Dx(), c.cursorY+c.cursor.Bounds().Dy())
		c.dirty = append(c.dirty, r)
	}
	c.cursor = sprite
	c.cursorX, c.cursorY = x, y
	if sprite != nil {
		c.dirty = append(c.dirty, image.Rect(x, y, x+sprite.Bounds().Dx(), y+sprite.Bounds().Dy()))
	}
}

// Active returns the composed framebuffer, for the GPU transport to read
// dirty rectangles out of.
func (c *Compositor) Active() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
