package broker

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vail-editor/vail/internal/plugin/schema"
)

// fakeEditor is a minimal Editor for broker tests.
type fakeEditor struct {
	mode     schema.Mode
	active   int
	buffers  map[int]int // view -> buffer
	cursors  map[int]schema.Point
	readonly bool
	inserted []string
}

func newFakeEditor() *fakeEditor {
	return &fakeEditor{
		mode:    schema.Normal,
		active:  1,
		buffers: map[int]int{1: 10},
		cursors: map[int]schema.Point{1: {Line: 0, Col: 0}},
	}
}

func (f *fakeEditor) Mode() schema.Mode     { return f.mode }
func (f *fakeEditor) SetMode(m schema.Mode) { f.mode = m }
func (f *fakeEditor) ActiveView() int       { return f.active }

func (f *fakeEditor) ViewBuffer(view int) (int, error) {
	buf, ok := f.buffers[view]
	if !ok {
		return 0, errors.New("no such view")
	}
	return buf, nil
}

func (f *fakeEditor) Cursor(view int) (schema.Point, error) {
	p, ok := f.cursors[view]
	if !ok {
		return schema.Point{}, errors.New("no such view")
	}
	return p, nil
}

func (f *fakeEditor) SetCursor(view int, p schema.Point) error {
	if _, ok := f.cursors[view]; !ok {
		return errors.New("no such view")
	}
	f.cursors[view] = p
	return nil
}

func (f *fakeEditor) Insert(text string) error {
	if f.readonly {
		return &schema.EditError{Kind: schema.EditReadonly}
	}
	f.inserted = append(f.inserted, text)
	return nil
}

func newTestBroker(ed Editor) *Broker {
	return New(ed, zerolog.Nop())
}

func TestBrokerHandleChain(t *testing.T) {
	ed := newFakeEditor()
	b := newTestBroker(ed)
	s := b.OpenSession("p")

	view, err := b.ActiveView(s)
	if err != nil {
		t.Fatalf("ActiveView() error = %v", err)
	}

	buf, err := b.ViewBuffer(s, view)
	if err != nil {
		t.Fatalf("ViewBuffer() error = %v", err)
	}
	if buf == view {
		t.Error("buffer and view handles must be distinct")
	}

	p, err := b.ViewCursor(s, view)
	if err != nil {
		t.Fatalf("ViewCursor() error = %v", err)
	}
	if p != (schema.Point{Line: 0, Col: 0}) {
		t.Errorf("ViewCursor() = %v, want 0:0", p)
	}

	want := schema.Point{Line: 3, Col: 7}
	if err := b.ViewSetCursor(s, view, want); err != nil {
		t.Fatalf("ViewSetCursor() error = %v", err)
	}
	if got := ed.cursors[1]; got != want {
		t.Errorf("cursor = %v, want %v", got, want)
	}
}

func TestBrokerHandleReuse(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s := b.OpenSession("p")

	h1, _ := b.ActiveView(s)
	h2, _ := b.ActiveView(s)
	if h1 != h2 {
		t.Errorf("same view should yield the same handle: %v vs %v", h1, h2)
	}
}

func TestBrokerForgedHandle(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s := b.OpenSession("p")

	if _, err := b.ViewBuffer(s, Handle(0xdeadbeef)); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("forged handle error = %v, want ErrStaleHandle", err)
	}
}

func TestBrokerWrongKind(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s := b.OpenSession("p")

	view, _ := b.ActiveView(s)
	buf, _ := b.ViewBuffer(s, view)

	if _, err := b.ViewCursor(s, buf); !errors.Is(err, ErrWrongKind) {
		t.Errorf("buffer handle as view error = %v, want ErrWrongKind", err)
	}
}

func TestBrokerSessionIsolation(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s1 := b.OpenSession("alpha")
	s2 := b.OpenSession("beta")

	h, err := b.ActiveView(s1)
	if err != nil {
		t.Fatal(err)
	}

	// A handle issued to one session must not resolve in another.
	if _, err := b.ViewBuffer(s2, h); err == nil {
		t.Error("handle from another session should not resolve")
	}
}

func TestBrokerRevokedSession(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s := b.OpenSession("p")

	view, _ := b.ActiveView(s)
	b.CloseSession("p")

	if _, err := b.ViewCursor(s, view); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("ViewCursor after revoke = %v, want ErrSessionRevoked", err)
	}
	if err := b.Insert(s, "x"); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("Insert after revoke = %v, want ErrSessionRevoked", err)
	}
	if _, err := b.GetMode(s); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("GetMode after revoke = %v, want ErrSessionRevoked", err)
	}
}

func TestBrokerInvalidateView(t *testing.T) {
	ed := newFakeEditor()
	b := newTestBroker(ed)
	s := b.OpenSession("p")

	view, _ := b.ActiveView(s)
	b.InvalidateView(ed.active)

	if _, err := b.ViewCursor(s, view); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("invalidated view error = %v, want ErrStaleHandle", err)
	}

	// The session itself stays usable; a fresh handle works.
	view2, err := b.ActiveView(s)
	if err != nil {
		t.Fatalf("ActiveView after invalidate error = %v", err)
	}
	if view2 == view {
		t.Error("reissued handle must differ from the invalidated one")
	}
	if _, err := b.ViewCursor(s, view2); err != nil {
		t.Errorf("fresh handle error = %v", err)
	}
}

func TestBrokerReadonlyInsert(t *testing.T) {
	ed := newFakeEditor()
	ed.readonly = true
	b := newTestBroker(ed)
	s := b.OpenSession("p")

	err := b.Insert(s, "text")
	var editErr *schema.EditError
	if !errors.As(err, &editErr) || editErr.Kind != schema.EditReadonly {
		t.Errorf("Insert on readonly buffer = %v, want EditReadonly", err)
	}
}

func TestBrokerModeRoundTrip(t *testing.T) {
	b := newTestBroker(newFakeEditor())
	s := b.OpenSession("p")

	if err := b.SetMode(s, schema.OperatorPending(schema.OpYank)); err != nil {
		t.Fatal(err)
	}
	m, err := b.GetMode(s)
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != schema.ModeOperatorPending || m.Operator != schema.OpYank {
		t.Errorf("GetMode() = %v, want operator_pending(yank)", m)
	}
}
