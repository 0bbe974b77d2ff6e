package broker

import (
	"errors"
	"fmt"
	"sync"
)

// HandleKind discriminates what a handle refers to.
type HandleKind uint8

// Handle kinds.
const (
	KindView HandleKind = iota + 1
	KindBuffer
)

func (k HandleKind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// Handle is an opaque, host-issued identifier a plugin holds instead of a
// real reference. The low 32 bits index a session arena slot; the high bits
// carry the slot's generation tag. A stale or forged handle fails
// generation validation instead of dereferencing freed state.
//
// Handles cross the boundary as Lua numbers; generations stay far below
// 2^21, keeping every issued value exactly representable in a float64.
type Handle uint64

func makeHandle(idx int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(idx)))
}

func (h Handle) index() int {
	return int(uint32(h))
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// Handle validation errors. These are capability-time errors: reported to
// the issuing plugin as values, never traps.
var (
	ErrStaleHandle    = errors.New("broker: stale or invalid handle")
	ErrWrongKind      = errors.New("broker: handle kind mismatch")
	ErrSessionRevoked = errors.New("broker: plugin session is revoked")
)

// slot is one arena entry.
type slot struct {
	kind HandleKind
	id   int
	gen  uint32
	live bool
}

// Session is the per-plugin handle arena. Every handle issued to a plugin
// lives in its session; revoking the session (at plugin shutdown) makes
// all of them permanently invalid.
type Session struct {
	mu sync.Mutex

	plugin  string
	slots   []slot
	byRef   map[uint64]Handle // (kind, id) -> issued handle
	revoked bool
}

func newSession(plugin string) *Session {
	return &Session{
		plugin: plugin,
		byRef:  make(map[uint64]Handle),
	}
}

// Plugin returns the owning plugin name.
func (s *Session) Plugin() string {
	return s.plugin
}

func refKey(kind HandleKind, id int) uint64 {
	return uint64(kind)<<48 | uint64(uint32(id))
}

// issue returns the handle for (kind, id), allocating an arena slot the
// first time the session sees that object.
func (s *Session) issue(kind HandleKind, id int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked {
		return 0, ErrSessionRevoked
	}

	key := refKey(kind, id)
	if h, ok := s.byRef[key]; ok {
		return h, nil
	}

	idx := len(s.slots)
	gen := uint32(1)
	s.slots = append(s.slots, slot{kind: kind, id: id, gen: gen, live: true})
	h := makeHandle(idx, gen)
	s.byRef[key] = h
	return h, nil
}

// resolve validates h and returns the editor-side object id it refers to.
func (s *Session) resolve(h Handle, kind HandleKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked {
		return 0, ErrSessionRevoked
	}

	idx := h.index()
	if idx < 0 || idx >= len(s.slots) {
		return 0, ErrStaleHandle
	}
	sl := s.slots[idx]
	if !sl.live || sl.gen != h.generation() {
		return 0, ErrStaleHandle
	}
	if sl.kind != kind {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, sl.kind, kind)
	}
	return sl.id, nil
}

// invalidate kills every handle referring to (kind, id), e.g. when the
// underlying object is destroyed while the session stays alive.
func (s *Session) invalidate(kind HandleKind, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey(kind, id)
	h, ok := s.byRef[key]
	if !ok {
		return
	}
	delete(s.byRef, key)
	idx := h.index()
	if idx >= 0 && idx < len(s.slots) {
		s.slots[idx].live = false
	}
}

// Revoke permanently invalidates every handle the session ever issued.
// Called when the owning plugin's shutdown begins.
func (s *Session) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked = true
	for i := range s.slots {
		s.slots[i].live = false
	}
	s.byRef = make(map[uint64]Handle)
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}
