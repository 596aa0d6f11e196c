package holders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Top Holder Ranker — largest holders resolved to owning wallets
// ---------------------------------------------------------------------------

// Record is one ranked holder in a snapshot. Snapshots are recomputed
// wholesale every iteration and never mutated in place.
type Record struct {
	Rank               int             `json:"rank"`
	Owner              solana.Pubkey   `json:"owner"`
	Amount             decimal.Decimal `json:"amount"`     // base units
	Percentage         float64         `json:"percentage"` // of fixed total supply
	IsCreator          bool            `json:"is_creator"`
	IsLiquidityAccount bool            `json:"is_liquidity_account"`
}

// RankerConfig configures the top holder ranker.
type RankerConfig struct {
	TopN                 int           `yaml:"top_n"`                  // holders per snapshot (default 20)
	MaxConcurrentLookups int           `yaml:"max_concurrent_lookups"` // owner resolution fan-out bound
	LookupTimeout        time.Duration `yaml:"lookup_timeout"`         // per owner-resolution call
	TotalSupply          uint64        `yaml:"total_supply"`           // fixed venue supply in base units
}

// DefaultRankerConfig returns venue defaults.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		TopN:                 20,
		MaxConcurrentLookups: 8,
		LookupTimeout:        5 * time.Second,
		TotalSupply:          solana.FixedTotalSupply,
	}
}

// Query identifies one token's holder snapshot request.
type Query struct {
	Mint             solana.Pubkey
	Creator          solana.Pubkey // launch creator wallet, tagged IsCreator
	LiquidityAccount solana.Pubkey // bonding-curve account, tagged IsLiquidityAccount
}

// Ranker fetches and ranks the top holders of a mint.
type Ranker struct {
	config RankerConfig
	rpc    solana.RPCClient
}

// NewRanker creates a top holder ranker.
func NewRanker(config RankerConfig, rpc solana.RPCClient) *Ranker {
	if config.TopN <= 0 {
		config.TopN = 20
	}
	if config.MaxConcurrentLookups <= 0 {
		config.MaxConcurrentLookups = 8
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 5 * time.Second
	}
	return &Ranker{config: config, rpc: rpc}
}

// RankTopHolders returns up to TopN holders ordered by balance descending,
// each resolved to its owning wallet and tagged against the query's creator
// and liquidity account. The upstream balance ordering is trusted as-is.
// Holders whose owner cannot be resolved are dropped without renumbering the
// remaining ranks. An empty result is a valid "no data" signal.
func (r *Ranker) RankTopHolders(ctx context.Context, q Query) ([]Record, error) {
	if r.config.TotalSupply == 0 {
		// Misconfigured supply: no percentage is computable.
		log.Error().Str("mint", string(q.Mint)).Msg("ranker: total supply is zero, cannot rank")
		return nil, nil
	}

	accounts, err := r.rpc.GetLargestTokenAccounts(ctx, q.Mint)
	if err != nil {
		return nil, fmt.Errorf("ranker: largest accounts for %s: %w", q.Mint, err)
	}

	if len(accounts) > r.config.TopN {
		accounts = accounts[:r.config.TopN]
	}

	owners := r.resolveOwners(ctx, accounts)

	supply := decimal.NewFromUint64(r.config.TotalSupply)
	records := make([]Record, 0, len(accounts))
	for i, account := range accounts {
		owner := owners[i]
		if owner == "" {
			log.Debug().
				Str("account", string(account.Address)).
				Int("rank", i+1).
				Msg("ranker: skipping holder with unresolved owner")
			continue
		}

		pct, _ := account.Amount.Div(supply).Mul(decimal.NewFromInt(100)).Float64()
		records = append(records, Record{
			Rank:               i + 1,
			Owner:              owner,
			Amount:             account.Amount,
			Percentage:         pct,
			IsCreator:          owner == q.Creator,
			IsLiquidityAccount: owner == q.LiquidityAccount,
		})
	}

	return records, nil
}

// resolveOwners resolves each token account to its owning wallet with a
// bounded concurrent fan-out. A failed or invalid resolution yields "" for
// that one slot without aborting the batch.
func (r *Ranker) resolveOwners(ctx context.Context, accounts []solana.LargestAccount) []solana.Pubkey {
	owners := make([]solana.Pubkey, len(accounts))

	sem := make(chan struct{}, r.config.MaxConcurrentLookups)
	var wg sync.WaitGroup

	for i, account := range accounts {
		wg.Add(1)
		go func(i int, address solana.Pubkey) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			owners[i] = r.resolveOwner(ctx, address)
		}(i, account.Address)
	}

	wg.Wait()
	return owners
}

// resolveOwner reads a token account and extracts its owning wallet from the
// fixed SPL layout, validating the owning program and record length first.
func (r *Ranker) resolveOwner(ctx context.Context, account solana.Pubkey) solana.Pubkey {
	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	info, err := r.rpc.GetAccountInfo(lookupCtx, account)
	if err != nil {
		log.Debug().Err(err).Str("account", string(account)).Msg("ranker: account info fetch failed")
		return ""
	}
	if info == nil {
		return ""
	}
	if info.Owner != solana.TokenProgramID {
		log.Debug().Str("account", string(account)).Str("program", string(info.Owner)).
			Msg("ranker: account not owned by token program")
		return ""
	}
	if len(info.Data) < solana.TokenAccountMinLen {
		log.Debug().Str("account", string(account)).Int("len", len(info.Data)).
			Msg("ranker: account data too short")
		return ""
	}

	owner, err := solana.PubkeyFromBytes(info.Data[solana.TokenAccountOwnerOffset:solana.TokenAccountOwnerEnd])
	if err != nil {
		return ""
	}
	return owner
}
