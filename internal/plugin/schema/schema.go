// Package schema defines the capability contract shared between the Vail
// host and its plugins: the data types and value representations that cross
// the host/guest boundary. The package is pure data; all behavior lives in
// the loader, broker, and dispatcher.
//
// The schema is versioned as a unit. A plugin targets exactly one schema
// version (its api_version global); the host refuses to load a plugin built
// against any other version. Flag sets grow only by adding named bits;
// existing bits are never renumbered.
package schema

import (
	"errors"
	"fmt"
)

// Version is the current schema version. Every plugin must declare
// api_version equal to this value.
const Version = 1

// Arity is the inclusive minimum/maximum argument count a command accepts.
type Arity struct {
	Min uint8
	Max uint8
}

// Exact returns an arity accepting exactly n arguments.
func Exact(n uint8) Arity {
	return Arity{Min: n, Max: n}
}

// Contains reports whether n falls within the arity bounds.
func (a Arity) Contains(n int) bool {
	return n >= int(a.Min) && n <= int(a.Max)
}

func (a Arity) String() string {
	if a.Min == a.Max {
		return fmt.Sprintf("%d", a.Min)
	}
	return fmt.Sprintf("%d..%d", a.Min, a.Max)
}

// CommandFlags is a fixed-width bit-flag set of command attributes.
type CommandFlags uint8

const (
	// FlagRange marks a command that accepts a line-range qualifier.
	FlagRange CommandFlags = 1 << 0
)

// Has reports whether all bits in f are set.
func (c CommandFlags) Has(f CommandFlags) bool {
	return c&f == f
}

func (c CommandFlags) String() string {
	if c.Has(FlagRange) {
		return "range"
	}
	return ""
}

// Command is a command declaration returned from a plugin's initialize.
// The host owns the declaration after registration.
type Command struct {
	Name  string
	Arity Arity
	Flags CommandFlags
}

// Declaration validation errors.
var (
	ErrEmptyCommandName = errors.New("schema: command name is empty")
	ErrInvalidArity     = errors.New("schema: arity min exceeds max")
)

// Validate checks a command declaration. Declarations come from untrusted
// plugin code and must not be trusted to uphold min <= max.
func (c Command) Validate() error {
	if c.Name == "" {
		return ErrEmptyCommandName
	}
	if c.Arity.Min > c.Arity.Max {
		return fmt.Errorf("%w: command %q declares %d..%d", ErrInvalidArity, c.Name, c.Arity.Min, c.Arity.Max)
	}
	return nil
}

// Range is an inclusive line span qualifying a RANGE-flagged invocation.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) String() string {
	return fmt.Sprintf("%d,%d", r.Start, r.End)
}

// Point is a zero-based text position. Validity against buffer bounds is
// enforced by the text-storage collaborator, not by this package.
type Point struct {
	Line uint32
	Col  uint32
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// EditErrorKind discriminates EditError variants.
type EditErrorKind int

const (
	// EditReadonly - the target buffer refuses mutation.
	EditReadonly EditErrorKind = iota
)

func (k EditErrorKind) String() string {
	switch k {
	case EditReadonly:
		return "readonly"
	default:
		return "unknown"
	}
}

// EditError is the tagged error variant returned by edit attempts. It
// crosses the boundary by value; it is never raised as a trap.
type EditError struct {
	Kind EditErrorKind
}

func (e EditError) Error() string {
	switch e.Kind {
	case EditReadonly:
		return "buffer is readonly"
	default:
		return "edit error"
	}
}
