// Package arb contains the pure arbitrage scanner: from two venues'
// normalized quotes plus configured buffers it computes net edge and,
// if profitable, a concrete two-leg Opportunity. No I/O.
package arb

import (
	"github.com/btcarb/boxarb/internal/interval"
	"github.com/btcarb/boxarb/internal/quote"
)

// Orientation names which venue supplies the YES leg and which
// supplies the NO leg in a winning box.
type Orientation int

const (
	// OrientationAYesBNo buys YES on venue A and NO on venue B.
	OrientationAYesBNo Orientation = iota
	// OrientationBYesANo buys YES on venue B and NO on venue A.
	OrientationBYesANo
)

// Leg is one side of a two-leg box.
type Leg struct {
	Venue quote.Venue
	Side  quote.Side
	Price float64
	Size  float64
}

// Opportunity is a detected arb, ready for guards and execution.
type Opportunity struct {
	Key         interval.Key
	Orientation Orientation
	LegA        Leg
	LegB        Leg
	Cost        float64
	EdgeGross   float64
	EdgeNet     float64
}

// Scan computes the net edge between two venues' quotes and returns a
// non-nil Opportunity when edgeNet meets minEdgeNet. venueA and venueB
// identify which venue supplied quoteA/quoteB respectively, so
// the returned legs carry the correct Venue tag.
func Scan(venueA, venueB quote.Venue, quoteA, quoteB quote.Normalized, key interval.Key, feeBuffer, slippageBuffer, minEdgeNet float64) *Opportunity {
	// Orientation 1: buy YES on A, NO on B.
	costAYesBNo := quoteA.YesAsk + quoteB.NoAsk
	// Orientation 2: buy YES on B, NO on A.
	costBYesANo := quoteB.YesAsk + quoteA.NoAsk

	var orientation Orientation
	var cost float64
	if costAYesBNo <= costBYesANo {
		orientation = OrientationAYesBNo
		cost = costAYesBNo
	} else {
		orientation = OrientationBYesANo
		cost = costBYesANo
	}

	edgeGross := 1.00 - cost
	edgeNet := edgeGross - feeBuffer - slippageBuffer
	if edgeNet < minEdgeNet {
		return nil
	}

	opp := &Opportunity{
		Key:         key,
		Orientation: orientation,
		Cost:        cost,
		EdgeGross:   edgeGross,
		EdgeNet:     edgeNet,
	}

	if orientation == OrientationAYesBNo {
		opp.LegA = Leg{Venue: venueA, Side: quote.SideYes, Price: quoteA.YesAsk, Size: quoteA.YesAskQty}
		opp.LegB = Leg{Venue: venueB, Side: quote.SideNo, Price: quoteB.NoAsk, Size: quoteB.NoAskQty}
	} else {
		opp.LegA = Leg{Venue: venueB, Side: quote.SideYes, Price: quoteB.YesAsk, Size: quoteB.YesAskQty}
		opp.LegB = Leg{Venue: venueA, Side: quote.SideNo, Price: quoteA.NoAsk, Size: quoteA.NoAskQty}
	}

	return opp
}
