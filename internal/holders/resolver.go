package holders

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Owner Set Resolver — distinct holding wallets for a mint
// ---------------------------------------------------------------------------

// DefaultPageLimit is the holder-accounts page size.
const DefaultPageLimit = 1000

// OwnerSetResolver counts distinct owning wallets by paging the
// holder-accounts query until an empty page.
type OwnerSetResolver struct {
	rpc       solana.RPCClient
	pageLimit int
}

// NewOwnerSetResolver creates an owner set resolver. A non-positive
// pageLimit selects the default page size.
func NewOwnerSetResolver(rpc solana.RPCClient, pageLimit int) *OwnerSetResolver {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	return &OwnerSetResolver{rpc: rpc, pageLimit: pageLimit}
}

// CountDistinctOwners returns the number of distinct wallets holding the
// mint. Dedup is by owner, not token account: one wallet with several token
// accounts counts once. Any query failure yields 0 — the caller treats the
// whole count as unavailable rather than partial.
func (r *OwnerSetResolver) CountDistinctOwners(ctx context.Context, mint solana.Pubkey) int {
	owners := make(map[solana.Pubkey]struct{})

	for page := 1; ; page++ {
		refs, err := r.rpc.GetTokenAccountsPage(ctx, mint, page, r.pageLimit)
		if err != nil {
			log.Warn().Err(err).
				Str("mint", string(mint)).
				Int("page", page).
				Msg("resolver: holder page fetch failed")
			return 0
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			owners[ref.Owner] = struct{}{}
		}
	}

	return len(owners)
}
