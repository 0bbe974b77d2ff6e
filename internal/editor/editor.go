// Package editor is the reference implementation of the editor surface the
// capability broker mediates: mode state, views, buffers, and cursors. It
// carries just enough behavior to host plugins; rendering and input belong
// to other layers.
package editor

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// Editor lookup and bounds errors.
var (
	ErrNoSuchView    = errors.New("editor: no such view")
	ErrNoSuchBuffer  = errors.New("editor: no such buffer")
	ErrCursorOutside = errors.New("editor: cursor outside buffer bounds")
)

// buffer holds text as lines. Lines are rune-addressed; a cursor column
// may sit one past the last rune (the append position).
type buffer struct {
	id       int
	lines    [][]rune
	readonly bool
}

// view is a window onto a buffer with its own cursor.
type view struct {
	id     int
	buffer int
	cursor schema.Point
}

// Editor owns mode state, buffers, and views. All methods are safe for
// concurrent use; the broker serializes plugin traffic on top of this.
type Editor struct {
	mu      sync.RWMutex
	mode    schema.Mode
	buffers map[int]*buffer
	views   map[int]*view
	active  int
	nextID  int
}

// New creates an editor with one empty scratch buffer shown in one view.
func New() *Editor {
	e := &Editor{
		mode:    schema.Normal,
		buffers: make(map[int]*buffer),
		views:   make(map[int]*view),
		nextID:  1,
	}
	buf := e.newBuffer(nil, false)
	e.active = e.newView(buf)
	return e
}

func (e *Editor) newBuffer(lines []string, readonly bool) int {
	id := e.nextID
	e.nextID++
	b := &buffer{id: id, readonly: readonly}
	for _, line := range lines {
		b.lines = append(b.lines, []rune(line))
	}
	if len(b.lines) == 0 {
		b.lines = [][]rune{{}}
	}
	e.buffers[id] = b
	return id
}

func (e *Editor) newView(bufID int) int {
	id := e.nextID
	e.nextID++
	e.views[id] = &view{id: id, buffer: bufID}
	return id
}

// OpenBuffer creates a buffer with the given content and a view onto it,
// and focuses that view. It returns the view id.
func (e *Editor) OpenBuffer(lines []string, readonly bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.newBuffer(lines, readonly)
	e.active = e.newView(buf)
	return e.active
}

// Mode returns the current mode.
func (e *Editor) Mode() schema.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetMode switches modes. The mode value is replaced wholesale: leaving
// operator-pending drops the pending operator, and re-entering
// operator-pending with a different operator replaces it.
func (e *Editor) SetMode(m schema.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

// ActiveView returns the id of the focused view.
func (e *Editor) ActiveView() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// SetActiveView focuses the given view.
func (e *Editor) SetActiveView(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.views[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchView, id)
	}
	e.active = id
	return nil
}

// ViewBuffer returns the id of the buffer shown in the view.
func (e *Editor) ViewBuffer(viewID int) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.views[viewID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoSuchView, viewID)
	}
	return v.buffer, nil
}

// Cursor returns the view's cursor position.
func (e *Editor) Cursor(viewID int) (schema.Point, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.views[viewID]
	if !ok {
		return schema.Point{}, fmt.Errorf("%w: %d", ErrNoSuchView, viewID)
	}
	return v.cursor, nil
}

// SetCursor moves the view's cursor. A position outside the buffer is
// rejected with ErrCursorOutside, never clamped.
func (e *Editor) SetCursor(viewID int, p schema.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.views[viewID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchView, viewID)
	}
	buf := e.buffers[v.buffer]

	if int(p.Line) >= len(buf.lines) {
		return fmt.Errorf("%w: line %d of %d", ErrCursorOutside, p.Line, len(buf.lines))
	}
	if int(p.Col) > len(buf.lines[p.Line]) {
		return fmt.Errorf("%w: col %d of %d", ErrCursorOutside, p.Col, len(buf.lines[p.Line]))
	}
	v.cursor = p
	return nil
}

// Insert inserts text at the active view's cursor and advances the cursor
// past it. Newlines split the current line. Inserting into a readonly
// buffer fails with schema.EditError and changes nothing.
func (e *Editor) Insert(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.views[e.active]
	buf := e.buffers[v.buffer]
	if buf.readonly {
		return &schema.EditError{Kind: schema.EditReadonly}
	}

	line := buf.lines[v.cursor.Line]
	col := int(v.cursor.Col)
	head := append([]rune{}, line[:col]...)
	tail := append([]rune{}, line[col:]...)

	parts := strings.Split(text, "\n")
	if len(parts) == 1 {
		buf.lines[v.cursor.Line] = append(append(head, []rune(text)...), tail...)
		v.cursor.Col += uint32(len([]rune(text)))
		return nil
	}

	replacement := make([][]rune, 0, len(parts))
	replacement = append(replacement, append(head, []rune(parts[0])...))
	for _, p := range parts[1 : len(parts)-1] {
		replacement = append(replacement, []rune(p))
	}
	last := []rune(parts[len(parts)-1])
	lastLen := len(last)
	replacement = append(replacement, append(last, tail...))

	rebuilt := make([][]rune, 0, len(buf.lines)+len(replacement)-1)
	rebuilt = append(rebuilt, buf.lines[:v.cursor.Line]...)
	rebuilt = append(rebuilt, replacement...)
	rebuilt = append(rebuilt, buf.lines[v.cursor.Line+1:]...)
	buf.lines = rebuilt

	v.cursor.Line += uint32(len(parts) - 1)
	v.cursor.Col = uint32(lastLen)
	return nil
}

// Lines returns a copy of the buffer's content.
func (e *Editor) Lines(bufID int) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	buf, ok := e.buffers[bufID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchBuffer, bufID)
	}
	out := make([]string, len(buf.lines))
	for i, line := range buf.lines {
		out[i] = string(line)
	}
	return out, nil
}

// SetReadonly flips a buffer's readonly flag.
func (e *Editor) SetReadonly(bufID int, readonly bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf, ok := e.buffers[bufID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchBuffer, bufID)
	}
	buf.readonly = readonly
	return nil
}
