package schema

import (
	"errors"
	"testing"
)

func TestArityContains(t *testing.T) {
	tests := []struct {
		name  string
		arity Arity
		n     int
		want  bool
	}{
		{"below min", Arity{Min: 1, Max: 3}, 0, false},
		{"at min", Arity{Min: 1, Max: 3}, 1, true},
		{"between", Arity{Min: 1, Max: 3}, 2, true},
		{"at max", Arity{Min: 1, Max: 3}, 3, true},
		{"above max", Arity{Min: 1, Max: 3}, 4, false},
		{"exact zero", Exact(0), 0, true},
		{"exact zero with one", Exact(0), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.arity.Contains(tt.n); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"valid", Command{Name: "yank", Arity: Arity{Min: 0, Max: 1}}, nil},
		{"valid exact", Command{Name: "w", Arity: Exact(0)}, nil},
		{"empty name", Command{Arity: Exact(0)}, ErrEmptyCommandName},
		{"min over max", Command{Name: "bad", Arity: Arity{Min: 2, Max: 1}}, ErrInvalidArity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	var none CommandFlags
	if none.Has(FlagRange) {
		t.Error("zero flags should not have FlagRange")
	}
	if !FlagRange.Has(FlagRange) {
		t.Error("FlagRange should have FlagRange")
	}
}

func TestEditErrorMessage(t *testing.T) {
	err := EditError{Kind: EditReadonly}
	if err.Error() != "buffer is readonly" {
		t.Errorf("Error() = %q", err.Error())
	}
}
