package schema

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		kind     string
		operator string
		want     Mode
		wantErr  bool
	}{
		{"normal", "", Normal, false},
		{"insert", "", Insert, false},
		{"visual", "", Visual, false},
		{"command", "", Cmdline, false},
		{"replace_pending", "", ReplacePending, false},
		{"operator_pending", "delete", OperatorPending(OpDelete), false},
		{"operator_pending", "change", OperatorPending(OpChange), false},
		{"operator_pending", "yank", OperatorPending(OpYank), false},
		{"operator_pending", "", Mode{}, true},
		{"operator_pending", "paste", Mode{}, true},
		{"normal", "delete", Mode{}, true},
		{"bogus", "", Mode{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.operator, func(t *testing.T) {
			got, err := ParseMode(tt.kind, tt.operator)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMode(%q, %q) expected error", tt.kind, tt.operator)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMode(%q, %q) error = %v", tt.kind, tt.operator, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q, %q) = %v, want %v", tt.kind, tt.operator, got, tt.want)
			}
		})
	}
}

func TestModeRoundTrip(t *testing.T) {
	modes := []Mode{Normal, Insert, Visual, Cmdline, ReplacePending, OperatorPending(OpYank)}
	for _, m := range modes {
		var op string
		if m.Kind == ModeOperatorPending {
			op = m.Operator.String()
		}
		got, err := ParseMode(m.String(), op)
		if err != nil {
			t.Fatalf("ParseMode(%q, %q) error = %v", m.String(), op, err)
		}
		if got != m {
			t.Errorf("round trip %v -> %v", m, got)
		}
	}
}
