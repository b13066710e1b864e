// Package fees implements the two venues' exact, deterministic taker
// fee formulas. Both take a quantity and fill price and return Cents;
// rounding mode is part of each formula's contract and must not be
// approximated with a shared rounding function.
package fees

import "github.com/btcarb/boxarb/pkg/money"

// ClobFee computes the CLOB-style venue's taker fee: 7% of
// qty * p * (1-p), rounded up to the nearest whole cent.
func ClobFee(qty float64, price float64) money.Cents {
	return money.CeilCents(0.07 * qty * price * (1 - price))
}

// OnchainFee computes the onchain venue's taker fee: qty * p * 0.25 *
// (p*(1-p))^2, rounded up to the nearest $0.0001.
func OnchainFee(qty float64, price float64) money.Cents {
	pq := price * (1 - price)
	return money.Ceil4dp(qty * price * 0.25 * pq * pq)
}

// TotalBoxFee sums both legs' fees at their intended fill prices, the
// fee buffer the scanner subtracts from gross edge before comparing
// against the minimum net edge threshold.
func TotalBoxFee(clobQty, clobPrice, onchainQty, onchainPrice float64) money.Cents {
	return ClobFee(clobQty, clobPrice).Add(OnchainFee(onchainQty, onchainPrice))
}
