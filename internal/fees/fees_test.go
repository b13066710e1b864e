package fees

import "testing"

func TestClobFeeRoundsUpToWholeCent(t *testing.T) {
	// 0.07 * 10 * 0.48 * 0.52 = 0.174720 -> $0.17472 -> ceil to $0.18
	got := ClobFee(10, 0.48)
	want := int64(1800) // $0.18 in ten-thousandths
	if int64(got) != want {
		t.Errorf("ClobFee(10, 0.48) = %v, want %v", got, want)
	}
}

func TestOnchainFeeRoundsUpToFourDecimalPlaces(t *testing.T) {
	got := OnchainFee(10, 0.50)
	// pq = 0.25; fee = 10*0.5*0.25*0.25*0.25 = 0.078125 -> ceil4dp -> 0.0782
	if got <= 0 {
		t.Fatalf("expected positive fee, got %v", got)
	}
	if got.Dollars() < 0.078125 {
		t.Errorf("OnchainFee should round up, got %v dollars", got.Dollars())
	}
}

func TestTotalBoxFeeSumsBothLegs(t *testing.T) {
	a := ClobFee(10, 0.48)
	b := OnchainFee(10, 0.47)
	total := TotalBoxFee(10, 0.48, 10, 0.47)
	if total != a.Add(b) {
		t.Errorf("TotalBoxFee = %v, want %v", total, a.Add(b))
	}
}
