package arb

import "fmt"

// GuardInput bundles everything the guard chain needs to evaluate an
// Opportunity. All fields are snapshots taken once at the start of the
// chain so guards see a consistent view.
type GuardInput struct {
	Opp *Opportunity

	MinEdgeNet     float64
	MinSize        float64
	InCooldown     bool
	DailyLossCents int64
	MaxDailyLoss   int64
	NotionalCents  int64
	MaxNotional    int64
	OpenOrderCount int
	MaxOpenOrders  int
	TotalYes       float64
	TotalNo        float64
	BalanceTol     float64
	MsToRollover   int64
	RolloverCutoff int64
}

// GuardResult is the fixed-order chain's outcome.
type GuardResult struct {
	Pass   bool
	Reason string
}

// Guard is one pre-flight predicate. Returning ok=false aborts the chain.
type Guard func(in *GuardInput) (ok bool, reason string)

// DefaultChain is the fixed guard order: valid prices, min edge,
// sufficient size, cooldown, daily loss, notional, open-order count,
// position balance, time-to-rollover.
func DefaultChain() []Guard {
	return []Guard{
		ValidPrices,
		MinEdge,
		SufficientSize,
		NotInCooldown,
		DailyLossUnderCap,
		NotionalUnderCap,
		OpenOrderCountUnderCap,
		PositionBalance,
		TimeToRollover,
	}
}

// RunGuards evaluates guards in order, short-circuiting on the first
// failure.
func RunGuards(guards []Guard, in *GuardInput) GuardResult {
	for _, g := range guards {
		if ok, reason := g(in); !ok {
			return GuardResult{Pass: false, Reason: reason}
		}
	}
	return GuardResult{Pass: true}
}

func ValidPrices(in *GuardInput) (bool, string) {
	check := func(p float64) bool { return p >= 0.01 && p <= 0.99 }
	if !check(in.Opp.LegA.Price) || !check(in.Opp.LegB.Price) {
		return false, "leg price outside $0.01-$0.99"
	}
	return true, ""
}

func MinEdge(in *GuardInput) (bool, string) {
	if in.Opp.EdgeNet < in.MinEdgeNet {
		return false, fmt.Sprintf("edgeNet %.4f below minEdgeNet %.4f", in.Opp.EdgeNet, in.MinEdgeNet)
	}
	return true, ""
}

func SufficientSize(in *GuardInput) (bool, string) {
	size := in.Opp.LegA.Size
	if in.Opp.LegB.Size < size {
		size = in.Opp.LegB.Size
	}
	if size < in.MinSize {
		return false, fmt.Sprintf("available size %.2f below minimum %.2f", size, in.MinSize)
	}
	return true, ""
}

func NotInCooldown(in *GuardInput) (bool, string) {
	if in.InCooldown {
		return false, "in cooldown"
	}
	return true, ""
}

func DailyLossUnderCap(in *GuardInput) (bool, string) {
	if in.DailyLossCents <= -in.MaxDailyLoss {
		return false, "daily loss cap reached"
	}
	return true, ""
}

func NotionalUnderCap(in *GuardInput) (bool, string) {
	if in.NotionalCents >= in.MaxNotional {
		return false, "open notional cap reached"
	}
	return true, ""
}

func OpenOrderCountUnderCap(in *GuardInput) (bool, string) {
	if in.OpenOrderCount >= in.MaxOpenOrders {
		return false, "open order count cap reached"
	}
	return true, ""
}

// PositionBalance prevents arming a new box on top of an existing
// imbalance: |totalYes - totalNo| must already be within tolerance.
func PositionBalance(in *GuardInput) (bool, string) {
	diff := in.TotalYes - in.TotalNo
	if diff < 0 {
		diff = -diff
	}
	if diff > in.BalanceTol {
		return false, fmt.Sprintf("existing position imbalance %.2f exceeds tolerance %.2f", diff, in.BalanceTol)
	}
	return true, ""
}

func TimeToRollover(in *GuardInput) (bool, string) {
	if in.MsToRollover < in.RolloverCutoff {
		return false, fmt.Sprintf("only %dms to rollover, below cutoff %dms", in.MsToRollover, in.RolloverCutoff)
	}
	return true, ""
}
