package analyzer

import (
	"time"

	"github.com/curvewatch/curvewatch/internal/holders"
)

// ---------------------------------------------------------------------------
// Threshold gates — pure predicates over one holder snapshot
// ---------------------------------------------------------------------------

// GateResult holds the five independent gate verdicts of one iteration.
// Derived fresh every cycle, never persisted.
type GateResult struct {
	TimeWithinBudget       bool `json:"time_within_budget"`
	HolderCountMet         bool `json:"holder_count_met"`
	CreatorExited          bool `json:"creator_exited"`
	LiquidityInRange       bool `json:"liquidity_in_range"`
	LiquidityNearExhausted bool `json:"liquidity_near_exhausted"`
}

// exhaustedLiquidityPct is the share at which the liquidity account still
// holding effectively the whole supply means nobody is left trading.
const exhaustedLiquidityPct = 99.0

// HolderCountMet reports whether the distinct owner count reaches threshold.
func HolderCountMet(ownerCount, threshold int) bool {
	return ownerCount >= threshold
}

// CreatorExited reports whether the creator has sold down below thresholdPct.
// A creator absent from the snapshot is treated as fully exited.
func CreatorExited(snapshot []holders.Record, thresholdPct float64) bool {
	for _, record := range snapshot {
		if record.IsCreator && record.Percentage >= thresholdPct {
			return false
		}
	}
	return true
}

// LiquidityInRange reports whether the liquidity account's share sits in
// (lowerPct, upperPct]. No liquidity record in the snapshot means false.
func LiquidityInRange(snapshot []holders.Record, lowerPct, upperPct float64) bool {
	for _, record := range snapshot {
		if record.IsLiquidityAccount && record.Percentage > lowerPct && record.Percentage <= upperPct {
			return true
		}
	}
	return false
}

// LiquidityNearExhausted reports whether the liquidity account still holds
// at least 99% of supply.
func LiquidityNearExhausted(snapshot []holders.Record) bool {
	for _, record := range snapshot {
		if record.IsLiquidityAccount && record.Percentage >= exhaustedLiquidityPct {
			return true
		}
	}
	return false
}

// TimeWithinBudget reports whether now is still within budget of start.
func TimeWithinBudget(start, now time.Time, budget time.Duration) bool {
	return now.Sub(start) <= budget
}
