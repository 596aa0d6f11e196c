package trader

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Trader — execution hook behind the evaluation pipeline
// ---------------------------------------------------------------------------

// Trader executes buys and sells for a cleared launch. Transaction
// construction and signing live behind this interface; the evaluation
// pipeline only ever sees signatures.
type Trader interface {
	// Buy spends amountSOL on the launch's token with the given slippage
	// tolerance (percent) and returns the transaction signature.
	Buy(ctx context.Context, event solana.LaunchEvent, amountSOL decimal.Decimal, slippagePct float64) (solana.Signature, error)

	// Sell liquidates the held position for the launch's token.
	Sell(ctx context.Context, event solana.LaunchEvent, slippagePct float64) (solana.Signature, error)
}

// DryRunTrader logs intended trades and fabricates signatures without
// touching the network.
type DryRunTrader struct{}

// NewDryRunTrader creates a no-op trader for dry runs.
func NewDryRunTrader() *DryRunTrader { return &DryRunTrader{} }

func (t *DryRunTrader) Buy(_ context.Context, event solana.LaunchEvent, amountSOL decimal.Decimal, slippagePct float64) (solana.Signature, error) {
	log.Info().
		Str("mint", string(event.Mint)).
		Str("amount_sol", amountSOL.String()).
		Float64("slippage_pct", slippagePct).
		Msg("trader: DRY RUN buy (no real transaction)")
	return solana.Signature("DRYRUN-BUY-" + string(event.Mint)), nil
}

func (t *DryRunTrader) Sell(_ context.Context, event solana.LaunchEvent, slippagePct float64) (solana.Signature, error) {
	log.Info().
		Str("mint", string(event.Mint)).
		Float64("slippage_pct", slippagePct).
		Msg("trader: DRY RUN sell (no real transaction)")
	return solana.Signature("DRYRUN-SELL-" + string(event.Mint)), nil
}
