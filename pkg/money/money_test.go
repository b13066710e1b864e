package money

import "testing"

func TestCeilCents(t *testing.T) {
	cases := []struct {
		dollars float64
		want    Cents
	}{
		{0.0, 0},
		{0.001, 100},
		{0.01, 100},
		{0.015, 200},
		{1.2345, 12400},
	}
	for _, c := range cases {
		if got := CeilCents(c.dollars); got != c.want {
			t.Errorf("CeilCents(%v) = %v, want %v", c.dollars, got, c.want)
		}
	}
}

func TestCeil4dp(t *testing.T) {
	cases := []struct {
		dollars float64
		want    Cents
	}{
		{0.0, 0},
		{0.00001, 1},
		{0.0001, 1},
		{0.00011, 2},
	}
	for _, c := range cases {
		if got := Ceil4dp(c.dollars); got != c.want {
			t.Errorf("Ceil4dp(%v) = %v, want %v", c.dollars, got, c.want)
		}
	}
}

func TestQtyRoundToStep(t *testing.T) {
	q := Qty(12.347)
	if got := q.RoundToStep(0.01); got != Qty(12.34) {
		t.Errorf("RoundToStep = %v, want 12.34", got)
	}
}

func TestCentsDollarsRoundTrip(t *testing.T) {
	c := FromDollars(4.04)
	if c.Dollars() != 4.04 {
		t.Errorf("round trip = %v, want 4.04", c.Dollars())
	}
}
