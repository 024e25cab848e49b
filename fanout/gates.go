package fanout

import (
	"sync/atomic"
)

// RankGate stops a ranking fan-out once a target number of items have
// crossed an acceptability score threshold.
type RankGate struct {
	target    int64
	threshold float64
	accepted  atomic.Int64
}

// NewRankGate creates a gate that trips after target scores at or above
// threshold.
func NewRankGate(target int, threshold float64) *RankGate {
	return &RankGate{target: int64(target), threshold: threshold}
}

// Offer records a score and returns the decision for the calling
// operation.
func (g *RankGate) Offer(score float64) Decision {
	if score < g.threshold {
		return Continue
	}
	if g.accepted.Add(1) >= g.target {
		return StopEarly
	}
	return Continue
}

// Accepted returns the number of scores that crossed the threshold.
func (g *RankGate) Accepted() int {
	return int(g.accepted.Load())
}

// CreditGate bounds a synthesis fan-out at min(credits, pending). An
// operation must reserve a credit with Acquire before doing work and
// report Complete afterwards; this keeps the number of completed items
// exactly at the bound even when more items are in flight.
type CreditGate struct {
	bound     int64
	reserved  atomic.Int64
	completed atomic.Int64
}

// NewCreditGate creates a gate bounded at min(credits, pending).
func NewCreditGate(credits, pending int32) *CreditGate {
	bound := int64(credits)
	if int64(pending) < bound {
		bound = int64(pending)
	}
	if bound < 0 {
		bound = 0
	}
	return &CreditGate{bound: bound}
}

// Acquire reserves one credit. It returns false when the budget is
// exhausted; the caller skips the item without producing a result and
// must NOT stop the fan-out, since reserved items may still be in
// flight. Only Complete fires the stop.
func (g *CreditGate) Acquire() bool {
	return g.reserved.Add(1) <= g.bound
}

// Complete records one finished item and returns StopEarly once the
// budget is spent.
func (g *CreditGate) Complete() Decision {
	if g.completed.Add(1) >= g.bound {
		return StopEarly
	}
	return Continue
}

// Completed returns the number of completed items.
func (g *CreditGate) Completed() int {
	return int(g.completed.Load())
}

// Bound returns min(credits, pending).
func (g *CreditGate) Bound() int {
	return int(g.bound)
}
