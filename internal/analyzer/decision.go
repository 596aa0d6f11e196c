package analyzer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Decision Engine — multi-gate continue/stop verdicts per iteration
// ---------------------------------------------------------------------------

// Verdict is the outcome of one evaluation iteration. Every STOP_* verdict
// is terminal for its evaluation loop.
type Verdict string

const (
	VerdictEvaluating     Verdict = "EVALUATING"
	VerdictContinue       Verdict = "CONTINUE"
	VerdictTradeCleared   Verdict = "STOP_TRADE_CLEARED"
	VerdictSpecialCleared Verdict = "STOP_SPECIAL_CLEARED"
	VerdictExhausted      Verdict = "STOP_EXHAUSTED"
	VerdictTimeout        Verdict = "STOP_TIMEOUT"
	VerdictNoData         Verdict = "STOP_NO_DATA"
	VerdictError          Verdict = "STOP_ERROR"
)

// Terminal reports whether the verdict ends its evaluation loop.
func (v Verdict) Terminal() bool {
	return v != VerdictEvaluating && v != VerdictContinue
}

// Cleared reports whether the verdict clears the launch for trading.
func (v Verdict) Cleared() bool {
	return v == VerdictTradeCleared || v == VerdictSpecialCleared
}

// Config holds the primary gate thresholds.
type Config struct {
	HolderThreshold   int           `yaml:"holder_threshold"`    // distinct owners required
	CreatorExitPct    float64       `yaml:"creator_exit_pct"`    // creator considered holding at/above this %
	LiquidityLowerPct float64       `yaml:"liquidity_lower_pct"` // exclusive lower bound
	LiquidityUpperPct float64       `yaml:"liquidity_upper_pct"` // inclusive upper bound
	TimeBudget        time.Duration `yaml:"time_budget"`         // per-launch clearance window
}

// DefaultConfig returns the venue defaults.
func DefaultConfig() Config {
	return Config{
		HolderThreshold:   35,
		CreatorExitPct:    1,
		LiquidityLowerPct: 70,
		LiquidityUpperPct: 80,
		TimeBudget:        100 * time.Second,
	}
}

// Relaxed secondary rule set: more holders and a wider liquidity band buy a
// clearance even while the creator still holds.
const (
	relaxedHolderThreshold   = 60
	relaxedLiquidityLowerPct = 60.0
	relaxedLiquidityUpperPct = 80.0
)

// SnapshotSource produces a fresh ranked holder snapshot.
type SnapshotSource interface {
	RankTopHolders(ctx context.Context, q holders.Query) ([]holders.Record, error)
}

// OwnerCounter counts distinct holding wallets for a mint.
type OwnerCounter interface {
	CountDistinctOwners(ctx context.Context, mint solana.Pubkey) int
}

// Outcome is the full result of one evaluation iteration.
type Outcome struct {
	Verdict    Verdict
	Gates      GateResult
	Snapshot   []holders.Record
	OwnerCount int
}

// Engine evaluates one launch per iteration against the gate set.
type Engine struct {
	config  Config
	source  SnapshotSource
	counter OwnerCounter
	clock   Clock
}

// NewEngine creates a decision engine.
func NewEngine(config Config, source SnapshotSource, counter OwnerCounter, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		config:  config,
		source:  source,
		counter: counter,
		clock:   clock,
	}
}

// Evaluate runs one fetch-evaluate-transition cycle for the launch described
// by q, measuring the time budget from startedAt. Gate ordering:
//
//  1. empty snapshot            -> STOP_NO_DATA
//  2. all primary gates pass    -> STOP_TRADE_CLEARED
//  3. relaxed rule set passes   -> STOP_SPECIAL_CLEARED
//  4. liquidity near exhausted  -> STOP_EXHAUSTED
//  5. time budget exceeded      -> STOP_TIMEOUT
//  6. otherwise                 -> CONTINUE
//
// Primary clearance is checked before the relaxed rule so a fully qualifying
// launch never falls through to the looser one; forced exits come last so
// they never preempt a positive verdict on a borderline-but-live launch.
// A snapshot fetch error is returned to the caller: inside an evaluation
// loop it is terminal rather than silently retried.
func (e *Engine) Evaluate(ctx context.Context, q holders.Query, startedAt time.Time) (Outcome, error) {
	snapshot, err := e.source.RankTopHolders(ctx, q)
	if err != nil {
		return Outcome{Verdict: VerdictError}, err
	}
	if len(snapshot) == 0 {
		return Outcome{Verdict: VerdictNoData}, nil
	}

	ownerCount := e.counter.CountDistinctOwners(ctx, q.Mint)

	// Each gate is computed exactly once per iteration and reused across the
	// primary rule, the relaxed rule, and the forced exits.
	gates := GateResult{
		TimeWithinBudget:       TimeWithinBudget(startedAt, e.clock.Now(), e.config.TimeBudget),
		HolderCountMet:         HolderCountMet(ownerCount, e.config.HolderThreshold),
		CreatorExited:          CreatorExited(snapshot, e.config.CreatorExitPct),
		LiquidityInRange:       LiquidityInRange(snapshot, e.config.LiquidityLowerPct, e.config.LiquidityUpperPct),
		LiquidityNearExhausted: LiquidityNearExhausted(snapshot),
	}
	relaxedHolders := HolderCountMet(ownerCount, relaxedHolderThreshold)
	relaxedLiquidity := LiquidityInRange(snapshot, relaxedLiquidityLowerPct, relaxedLiquidityUpperPct)

	outcome := Outcome{
		Gates:      gates,
		Snapshot:   snapshot,
		OwnerCount: ownerCount,
	}

	switch {
	case gates.HolderCountMet && gates.CreatorExited && gates.LiquidityInRange && gates.TimeWithinBudget:
		outcome.Verdict = VerdictTradeCleared
	case relaxedHolders && relaxedLiquidity && gates.TimeWithinBudget && !gates.CreatorExited:
		outcome.Verdict = VerdictSpecialCleared
	case gates.LiquidityNearExhausted:
		outcome.Verdict = VerdictExhausted
	case !gates.TimeWithinBudget:
		outcome.Verdict = VerdictTimeout
	default:
		outcome.Verdict = VerdictContinue
	}

	log.Debug().
		Str("mint", string(q.Mint)).
		Str("verdict", string(outcome.Verdict)).
		Int("owners", ownerCount).
		Bool("time_ok", gates.TimeWithinBudget).
		Bool("holders_ok", gates.HolderCountMet).
		Bool("creator_exited", gates.CreatorExited).
		Bool("liquidity_ok", gates.LiquidityInRange).
		Msg("decision: iteration evaluated")

	return outcome, nil
}
