package schema

import "fmt"

// ModeKind discriminates the editor mode variants.
type ModeKind int

// Editor modes. Exactly one is active at any time.
const (
	ModeNormal ModeKind = iota
	ModeInsert
	ModeVisual
	ModeCommand
	ModeReplacePending
	ModeOperatorPending
)

// Operator is an operation awaiting a motion while in operator-pending mode.
type Operator int

// Pending operators.
const (
	OpDelete Operator = iota
	OpChange
	OpYank
)

func (o Operator) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpChange:
		return "change"
	case OpYank:
		return "yank"
	default:
		return "unknown"
	}
}

// ParseOperator parses the boundary representation of an operator.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "delete":
		return OpDelete, nil
	case "change":
		return OpChange, nil
	case "yank":
		return OpYank, nil
	default:
		return 0, fmt.Errorf("schema: unknown operator %q", s)
	}
}

// Mode is the closed editor mode variant. OperatorPending carries exactly
// one pending operator; the Operator field is meaningful only when Kind is
// ModeOperatorPending.
type Mode struct {
	Kind     ModeKind
	Operator Operator
}

// Convenience values for the operator-free variants.
var (
	Normal         = Mode{Kind: ModeNormal}
	Insert         = Mode{Kind: ModeInsert}
	Visual         = Mode{Kind: ModeVisual}
	Cmdline        = Mode{Kind: ModeCommand}
	ReplacePending = Mode{Kind: ModeReplacePending}
)

// OperatorPending returns the operator-pending mode carrying op.
func OperatorPending(op Operator) Mode {
	return Mode{Kind: ModeOperatorPending, Operator: op}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeNormal:
		return "normal"
	case ModeInsert:
		return "insert"
	case ModeVisual:
		return "visual"
	case ModeCommand:
		return "command"
	case ModeReplacePending:
		return "replace_pending"
	case ModeOperatorPending:
		return "operator_pending"
	default:
		return "unknown"
	}
}

// ParseMode parses the boundary representation of a mode. The operator
// argument is required when kind is "operator_pending" and rejected
// otherwise.
func ParseMode(kind, operator string) (Mode, error) {
	if kind == "operator_pending" {
		op, err := ParseOperator(operator)
		if err != nil {
			return Mode{}, fmt.Errorf("schema: operator_pending requires an operator: %w", err)
		}
		return OperatorPending(op), nil
	}

	var m Mode
	switch kind {
	case "normal":
		m = Normal
	case "insert":
		m = Insert
	case "visual":
		m = Visual
	case "command":
		m = Cmdline
	case "replace_pending":
		m = ReplacePending
	default:
		return Mode{}, fmt.Errorf("schema: unknown mode %q", kind)
	}
	if operator != "" {
		return Mode{}, fmt.Errorf("schema: mode %q does not carry an operator", kind)
	}
	return m, nil
}
