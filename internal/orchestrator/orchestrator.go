package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/curvewatch/curvewatch/internal/analyzer"
	"github.com/curvewatch/curvewatch/internal/solana"
	"github.com/curvewatch/curvewatch/internal/trader"
	"github.com/curvewatch/curvewatch/internal/tradelog"
)

// ---------------------------------------------------------------------------
// Launch Orchestrator — admission control and per-launch evaluation loops
// ---------------------------------------------------------------------------

// Config configures launch admission and post-clearance trading.
type Config struct {
	MaxConcurrent   int     `yaml:"max_concurrent"`     // live evaluation ceiling (default 200)
	MatchString     string  `yaml:"match_string"`       // admit only names/symbols containing this (empty = all)
	CreatorAddress  string  `yaml:"creator_address"`    // admit only launches by this creator (empty = all)
	BuyAmountSOL    float64 `yaml:"buy_amount_sol"`     // SOL spent per cleared launch
	BuySlippagePct  float64 `yaml:"buy_slippage_pct"`
	SellSlippagePct float64 `yaml:"sell_slippage_pct"`
	MarryMode       bool    `yaml:"marry_mode"`         // never sell after buying
	HoldSeconds     int     `yaml:"hold_seconds"`       // hold time before the sell (ignored in marry mode)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   200,
		BuyAmountSOL:    0.0001,
		BuySlippagePct:  5,
		SellSlippagePct: 5,
		HoldSeconds:     20,
	}
}

// Stats is a point-in-time snapshot of orchestrator counters.
type Stats struct {
	Received int64 `json:"received"`
	Filtered int64 `json:"filtered"`
	Shed     int64 `json:"shed"`
	Spawned  int64 `json:"spawned"`
	Cleared  int64 `json:"cleared"`
	Live     int64 `json:"live"`
}

// Orchestrator admits launch events up to a concurrency ceiling and runs one
// evaluation loop per admitted launch. At the ceiling new launches are shed,
// never queued: by the time a slot frees up a launch's clearance window has
// effectively passed.
type Orchestrator struct {
	config  Config
	loopCfg analyzer.LoopConfig
	engine  *analyzer.Engine
	clock   analyzer.Clock
	rpc     solana.RPCClient
	trader  trader.Trader
	journal *tradelog.Journal

	// live is an approximate admission counter. The check-then-increment is
	// not atomic as a unit, so brief overshoot by a few launches under heavy
	// bursts is accepted in exchange for a lock-free hot path.
	live     atomic.Int64
	received atomic.Int64
	filtered atomic.Int64
	shed     atomic.Int64
	spawned  atomic.Int64
	cleared  atomic.Int64

	wg sync.WaitGroup
}

// New creates a launch orchestrator. A nil clock selects the system clock.
func New(
	config Config,
	loopCfg analyzer.LoopConfig,
	engine *analyzer.Engine,
	clock analyzer.Clock,
	rpc solana.RPCClient,
	tr trader.Trader,
	journal *tradelog.Journal,
) *Orchestrator {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 200
	}
	if clock == nil {
		clock = analyzer.SystemClock()
	}
	return &Orchestrator{
		config:  config,
		loopCfg: loopCfg,
		engine:  engine,
		clock:   clock,
		rpc:     rpc,
		trader:  tr,
		journal: journal,
	}
}

// Run consumes launch events until the channel closes or ctx is cancelled,
// then waits for all live evaluation loops to drain.
func (o *Orchestrator) Run(ctx context.Context, events <-chan solana.LaunchEvent) {
	log.Info().
		Int("max_concurrent", o.config.MaxConcurrent).
		Str("match", o.config.MatchString).
		Str("creator", o.config.CreatorAddress).
		Msg("orchestrator: started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("orchestrator: context cancelled, draining loops")
			o.wg.Wait()
			return
		case event, ok := <-events:
			if !ok {
				log.Info().Msg("orchestrator: event stream closed, draining loops")
				o.wg.Wait()
				return
			}
			o.Admit(ctx, event)
		}
	}
}

// Admit decides whether a launch event gets an evaluation loop and spawns it.
// Returns false when the event was filtered out or shed at the ceiling.
func (o *Orchestrator) Admit(ctx context.Context, event solana.LaunchEvent) bool {
	o.received.Add(1)

	if o.journal != nil {
		if err := o.journal.WriteLaunchSnapshot(event); err != nil {
			log.Warn().Err(err).Str("mint", string(event.Mint)).Msg("orchestrator: launch snapshot write failed")
		}
	}

	if !o.matches(event) {
		o.filtered.Add(1)
		log.Debug().
			Str("mint", string(event.Mint)).
			Str("name", event.Name).
			Str("symbol", event.Symbol).
			Msg("orchestrator: launch filtered out")
		return false
	}

	if o.live.Load() >= int64(o.config.MaxConcurrent) {
		o.shed.Add(1)
		log.Warn().
			Str("mint", string(event.Mint)).
			Int64("live", o.live.Load()).
			Int("ceiling", o.config.MaxConcurrent).
			Msg("orchestrator: at capacity, launch shed")
		return false
	}

	o.live.Add(1)
	o.spawned.Add(1)
	o.wg.Add(1)

	loopID := uuid.New().String()[:12]

	go func() {
		defer o.wg.Done()
		defer o.live.Add(-1)

		loop := analyzer.NewLoop(loopID, o.loopCfg, o.engine, o.clock, event)
		result := loop.Run(ctx)

		if result.Verdict.Cleared() {
			o.cleared.Add(1)
			o.executeTrade(ctx, event)
		}
	}()

	return true
}

// matches applies the optional name/symbol and creator admission filters.
func (o *Orchestrator) matches(event solana.LaunchEvent) bool {
	if o.config.MatchString != "" {
		needle := strings.ToLower(o.config.MatchString)
		if !strings.Contains(strings.ToLower(event.Name), needle) &&
			!strings.Contains(strings.ToLower(event.Symbol), needle) {
			return false
		}
	}
	if o.config.CreatorAddress != "" && string(event.Creator) != o.config.CreatorAddress {
		return false
	}
	return true
}

// executeTrade buys a cleared launch, journals the fill, and unless in marry
// mode sells after the configured hold.
func (o *Orchestrator) executeTrade(ctx context.Context, event solana.LaunchEvent) {
	if o.trader == nil {
		log.Info().Str("mint", string(event.Mint)).Msg("orchestrator: launch cleared, no trader configured")
		return
	}

	price := o.curvePrice(ctx, event)
	amount := decimal.NewFromFloat(o.config.BuyAmountSOL)

	sig, err := o.trader.Buy(ctx, event, amount, o.config.BuySlippagePct)
	if err != nil {
		log.Error().Err(err).Str("mint", string(event.Mint)).Msg("orchestrator: buy failed")
		return
	}
	o.journalTrade(tradelog.ActionBuy, event.Mint, price, sig)

	if o.config.MarryMode {
		log.Info().Str("mint", string(event.Mint)).Msg("orchestrator: marry mode, holding position")
		return
	}

	o.clock.Sleep(ctx, time.Duration(o.config.HoldSeconds)*time.Second)

	price = o.curvePrice(ctx, event)
	sig, err = o.trader.Sell(ctx, event, o.config.SellSlippagePct)
	if err != nil {
		log.Error().Err(err).Str("mint", string(event.Mint)).Msg("orchestrator: sell failed")
		return
	}
	o.journalTrade(tradelog.ActionSell, event.Mint, price, sig)
}

// curvePrice reads the current bonding-curve price, falling back to zero when
// the curve cannot be read. The trade still proceeds; price is journal data.
func (o *Orchestrator) curvePrice(ctx context.Context, event solana.LaunchEvent) decimal.Decimal {
	state, err := o.rpc.GetCurveState(ctx, event.BondingCurve)
	if err != nil || state == nil {
		log.Warn().Err(err).Str("curve", string(event.BondingCurve)).Msg("orchestrator: curve price unavailable")
		return decimal.Zero
	}
	return state.Price()
}

func (o *Orchestrator) journalTrade(action string, mint solana.Pubkey, price decimal.Decimal, sig solana.Signature) {
	if o.journal == nil {
		return
	}
	entry := tradelog.Entry{
		Timestamp:     o.clock.Now(),
		Action:        action,
		Mint:          mint,
		Price:         price,
		TransactionID: sig,
	}
	if err := o.journal.Append(entry); err != nil {
		log.Error().Err(err).Str("mint", string(mint)).Msg("orchestrator: trade journal write failed")
	}
}

// Wait blocks until all live evaluation loops have finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// LiveLoops returns the approximate number of live evaluation loops.
func (o *Orchestrator) LiveLoops() int64 { return o.live.Load() }

// GetStats returns a snapshot of orchestrator counters.
func (o *Orchestrator) GetStats() Stats {
	return Stats{
		Received: o.received.Load(),
		Filtered: o.filtered.Load(),
		Shed:     o.shed.Load(),
		Spawned:  o.spawned.Load(),
		Cleared:  o.cleared.Load(),
		Live:     o.live.Load(),
	}
}
