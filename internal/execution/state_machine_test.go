package execution

import "testing"

func TestCanTransitionValidEdges(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to submitting", StatusPending, StatusLegASubmitting, true},
		{"pending to aborted", StatusPending, StatusAborted, true},
		{"leg a filled to leg b submitting", StatusLegAFilled, StatusLegBSubmitting, true},
		{"leg a filled to unwinding on deadline expiry", StatusLegAFilled, StatusUnwinding, true},
		{"leg b submitting to unwinding on fail", StatusLegBSubmitting, StatusUnwinding, true},
		{"leg b filled to success", StatusLegBFilled, StatusSuccess, true},
		{"unwinding to unwound", StatusUnwinding, StatusUnwound, true},
		{"pending cannot jump to success", StatusPending, StatusSuccess, false},
		{"success has no outgoing edges", StatusSuccess, StatusPending, false},
		{"unknown source state", "bogus", StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusSuccess, StatusAborted, StatusUnwound, StatusLegAFailed} {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	if IsTerminal(StatusPending) {
		t.Error("pending should not be terminal")
	}
}
