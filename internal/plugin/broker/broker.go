// Package broker mediates every plugin access to editor state. Plugins
// never touch editor internals; they hold opaque handles issued by their
// session and go through the broker for each operation. The broker
// serializes all access, so guest code observes a consistent snapshot for
// the duration of each call.
package broker

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// Editor is the surface the broker mediates. The live editor implements
// it; tests substitute a fake. View and buffer identifiers are plain
// editor-side ids and are never exposed to plugins directly.
type Editor interface {
	// Mode returns the current editor mode.
	Mode() schema.Mode
	// SetMode switches the editor mode.
	SetMode(m schema.Mode)
	// ActiveView returns the id of the view with focus.
	ActiveView() int
	// ViewBuffer returns the id of the buffer shown in the view.
	ViewBuffer(view int) (int, error)
	// Cursor returns the view's cursor position.
	Cursor(view int) (schema.Point, error)
	// SetCursor moves the view's cursor. Out-of-bounds positions are
	// rejected, not clamped.
	SetCursor(view int, p schema.Point) error
	// Insert inserts text at the cursor of the active view. A readonly
	// buffer yields a *schema.EditError.
	Insert(text string) error
}

// Broker is the single gateway between plugins and the editor. One broker
// serves all plugin sessions; a mutex serializes every operation.
type Broker struct {
	mu     sync.Mutex
	editor Editor
	log    zerolog.Logger

	sessMu   sync.Mutex
	sessions map[string]*Session
}

// New creates a broker fronting the given editor.
func New(editor Editor, log zerolog.Logger) *Broker {
	return &Broker{
		editor:   editor,
		log:      log.With().Str("component", "broker").Logger(),
		sessions: make(map[string]*Session),
	}
}

// OpenSession creates (or returns) the handle session for a plugin.
func (b *Broker) OpenSession(plugin string) *Session {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()

	if s, ok := b.sessions[plugin]; ok && !s.Revoked() {
		return s
	}
	s := newSession(plugin)
	b.sessions[plugin] = s
	b.log.Debug().Str("plugin", plugin).Msg("session opened")
	return s
}

// CloseSession revokes a plugin's session and every handle it issued.
func (b *Broker) CloseSession(plugin string) {
	b.sessMu.Lock()
	s, ok := b.sessions[plugin]
	if ok {
		delete(b.sessions, plugin)
	}
	b.sessMu.Unlock()

	if ok {
		s.Revoke()
		b.log.Debug().Str("plugin", plugin).Msg("session revoked")
	}
}

// Insert inserts text at the active view's cursor on behalf of a plugin.
func (b *Broker) Insert(s *Session, text string) error {
	if s.Revoked() {
		return ErrSessionRevoked
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editor.Insert(text)
}

// GetMode reports the current editor mode.
func (b *Broker) GetMode(s *Session) (schema.Mode, error) {
	if s.Revoked() {
		return schema.Mode{}, ErrSessionRevoked
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editor.Mode(), nil
}

// SetMode switches the editor mode on behalf of a plugin.
func (b *Broker) SetMode(s *Session, m schema.Mode) error {
	if s.Revoked() {
		return ErrSessionRevoked
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.editor.SetMode(m)
	return nil
}

// ActiveView returns a handle to the focused view.
func (b *Broker) ActiveView(s *Session) (Handle, error) {
	b.mu.Lock()
	id := b.editor.ActiveView()
	b.mu.Unlock()
	return s.issue(KindView, id)
}

// ViewBuffer returns a handle to the buffer shown in the view.
func (b *Broker) ViewBuffer(s *Session, view Handle) (Handle, error) {
	id, err := s.resolve(view, KindView)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	buf, err := b.editor.ViewBuffer(id)
	b.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.issue(KindBuffer, buf)
}

// ViewCursor returns the cursor position of the view.
func (b *Broker) ViewCursor(s *Session, view Handle) (schema.Point, error) {
	id, err := s.resolve(view, KindView)
	if err != nil {
		return schema.Point{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editor.Cursor(id)
}

// ViewSetCursor moves the cursor of the view.
func (b *Broker) ViewSetCursor(s *Session, view Handle, p schema.Point) error {
	id, err := s.resolve(view, KindView)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editor.SetCursor(id, p)
}

// InvalidateView kills every session handle referring to the view, e.g.
// after the editor closes it.
func (b *Broker) InvalidateView(view int) {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()
	for _, s := range b.sessions {
		s.invalidate(KindView, view)
	}
}
