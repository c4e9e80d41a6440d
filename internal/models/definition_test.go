package models

import "testing"

func int64Ptr(v int64) *int64 { return &v }

func TestAmountRuleMatches(t *testing.T) {
	bounded := AmountRule{Currency: "USD", MinAmount: 1000, MaxAmount: int64Ptr(5000)}
	unbounded := AmountRule{Currency: "USD", MinAmount: 100000}

	tests := []struct {
		name     string
		rule     AmountRule
		amount   int64
		currency string
		want     bool
	}{
		{"below minimum", bounded, 999, "USD", false},
		{"minimum is inclusive", bounded, 1000, "USD", true},
		{"inside range", bounded, 3000, "USD", true},
		{"maximum is exclusive", bounded, 5000, "USD", false},
		{"currency mismatch", bounded, 3000, "EUR", false},
		{"unbounded above threshold", unbounded, 1000000000, "USD", true},
		{"unbounded below threshold", unbounded, 99999, "USD", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.amount, tt.currency); got != tt.want {
				t.Errorf("Matches(%d, %s) = %v, want %v", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestAmountRuleOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b AmountRule
		want bool
	}{
		{
			name: "disjoint ranges",
			a:    AmountRule{Currency: "USD", MinAmount: 0, MaxAmount: int64Ptr(1000)},
			b:    AmountRule{Currency: "USD", MinAmount: 1000, MaxAmount: int64Ptr(2000)},
			want: false,
		},
		{
			name: "overlapping ranges",
			a:    AmountRule{Currency: "USD", MinAmount: 0, MaxAmount: int64Ptr(1500)},
			b:    AmountRule{Currency: "USD", MinAmount: 1000, MaxAmount: int64Ptr(2000)},
			want: true,
		},
		{
			name: "both unbounded",
			a:    AmountRule{Currency: "USD", MinAmount: 0},
			b:    AmountRule{Currency: "USD", MinAmount: 1000000},
			want: true,
		},
		{
			name: "different currency never overlaps",
			a:    AmountRule{Currency: "USD", MinAmount: 0},
			b:    AmountRule{Currency: "EUR", MinAmount: 0},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() must be symmetric, reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusTerminality(t *testing.T) {
	if RequestActive.IsTerminal() {
		t.Error("ACTIVE request must not be terminal")
	}
	if !RequestApproved.IsTerminal() || !RequestRejected.IsTerminal() {
		t.Error("APPROVED and REJECTED requests must be terminal")
	}

	if StagePending.IsTerminal() || StageActive.IsTerminal() {
		t.Error("PENDING and ACTIVE stages must not be terminal")
	}
	if !StageCompleted.IsTerminal() || !StageRejected.IsTerminal() {
		t.Error("COMPLETED and REJECTED stages must be terminal")
	}

	if !RequestActive.IsValid() || RequestStatus("BOGUS").IsValid() {
		t.Error("request status validity check failed")
	}
	if !DecisionApprove.IsValid() || Decision("MAYBE").IsValid() {
		t.Error("decision validity check failed")
	}
}
