package analyzer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Evaluation Loop — fixed-cadence decision cycles for one launch
// ---------------------------------------------------------------------------

// LoopConfig configures the per-launch evaluation loop.
type LoopConfig struct {
	Cadence       time.Duration `yaml:"cadence"`        // spacing between iterations (default 5s)
	MaxIterations int           `yaml:"max_iterations"` // iteration ceiling (default 60, a 5-minute run)
}

// DefaultLoopConfig returns the venue defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Cadence:       5 * time.Second,
		MaxIterations: 60,
	}
}

// DecisionState is the mutable per-loop state. It is owned exclusively by
// its loop and dies with it.
type DecisionState struct {
	StartedAt   time.Time
	Iteration   int
	LastVerdict Verdict
}

// Result summarizes a finished evaluation loop.
type Result struct {
	Verdict    Verdict
	Iterations int
	Elapsed    time.Duration
}

// Loop drives the decision engine for one launch at a fixed cadence until a
// terminal verdict or the iteration ceiling. Iterations are strictly
// sequential: the next cycle never starts before the previous one finished.
type Loop struct {
	id     string
	config LoopConfig
	engine *Engine
	clock  Clock
	event  solana.LaunchEvent
	state  DecisionState
}

// NewLoop creates an evaluation loop for one launch event.
func NewLoop(id string, config LoopConfig, engine *Engine, clock Clock, event solana.LaunchEvent) *Loop {
	if config.Cadence <= 0 {
		config.Cadence = 5 * time.Second
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 60
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Loop{
		id:     id,
		config: config,
		engine: engine,
		clock:  clock,
		event:  event,
	}
}

// Run executes the loop to natural termination and returns its result.
// An unexpected error during a cycle is terminal (STOP_ERROR) rather than
// retried, so a persistently broken launch cannot hold resources forever.
func (l *Loop) Run(ctx context.Context) Result {
	l.state = DecisionState{
		StartedAt:   l.clock.Now(),
		LastVerdict: VerdictEvaluating,
	}

	query := holders.Query{
		Mint:             l.event.Mint,
		Creator:          l.event.Creator,
		LiquidityAccount: l.event.BondingCurve,
	}

	log.Info().
		Str("loop_id", l.id).
		Str("mint", string(l.event.Mint)).
		Str("symbol", l.event.Symbol).
		Msg("loop: evaluation started")

	for i := 1; i <= l.config.MaxIterations; i++ {
		if ctx.Err() != nil {
			break
		}

		l.state.Iteration = i
		iterStart := l.clock.Now()

		outcome, err := l.engine.Evaluate(ctx, query, l.state.StartedAt)
		if err != nil {
			log.Warn().Err(err).
				Str("loop_id", l.id).
				Str("mint", string(l.event.Mint)).
				Int("iteration", i).
				Msg("loop: evaluation cycle failed, stopping")
			l.state.LastVerdict = VerdictError
			break
		}

		l.state.LastVerdict = outcome.Verdict

		log.Info().
			Str("loop_id", l.id).
			Str("mint", string(l.event.Mint)).
			Int("iteration", i).
			Str("verdict", string(outcome.Verdict)).
			Dur("iter_time", l.clock.Now().Sub(iterStart)).
			Msg("loop: iteration completed")

		if outcome.Verdict.Terminal() {
			break
		}

		if i < l.config.MaxIterations {
			l.clock.Sleep(ctx, l.config.Cadence)
		}
	}

	result := Result{
		Verdict:    l.state.LastVerdict,
		Iterations: l.state.Iteration,
		Elapsed:    l.clock.Now().Sub(l.state.StartedAt),
	}

	log.Info().
		Str("loop_id", l.id).
		Str("mint", string(l.event.Mint)).
		Str("verdict", string(result.Verdict)).
		Int("iterations", result.Iterations).
		Dur("elapsed", result.Elapsed).
		Msg("loop: evaluation finished")

	return result
}
