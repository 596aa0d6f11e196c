package solana

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// Well-known program identities.
const (
	// TokenProgramID is the SPL Token program that owns every token account.
	TokenProgramID Pubkey = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

	// AssociatedTokenProgramID derives associated token accounts.
	AssociatedTokenProgramID Pubkey = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

	// PumpProgramID is the pump.fun bonding-curve program.
	PumpProgramID Pubkey = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// Venue constants.
const (
	LamportsPerSOL = 1_000_000_000

	// TokenDecimals is the decimal count every bonding-curve mint is issued with.
	TokenDecimals = 6

	// FixedTotalSupply is the venue-wide issuance in base units. Every
	// bonding-curve mint is created with this supply, so holder percentages
	// are computed against it instead of re-querying supply per call.
	FixedTotalSupply uint64 = 1_000_000_000_000_000
)

// ---------------------------------------------------------------------------
// Launch & account types
// ---------------------------------------------------------------------------

// LaunchEvent is one detected token creation on the bonding-curve venue.
// Produced once by the launch listener, consumed read-only downstream.
type LaunchEvent struct {
	Mint                   Pubkey    `json:"mint"`
	Creator                Pubkey    `json:"creator"`
	BondingCurve           Pubkey    `json:"bondingCurve"`
	AssociatedBondingCurve Pubkey    `json:"associatedBondingCurve"`
	Name                   string    `json:"name"`
	Symbol                 string    `json:"symbol"`
	MetadataURI            string    `json:"uri,omitempty"`
	Signature              Signature `json:"signature,omitempty"`
	DetectedAt             time.Time `json:"detectedAt"`
}

// LargestAccount is one entry of the largest-accounts query: a token account
// address and its raw balance in base units, ordered by balance descending.
type LargestAccount struct {
	Address Pubkey          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// TokenAccountRef is one {owner, account} pair from a holder-accounts page.
type TokenAccountRef struct {
	Owner   Pubkey `json:"owner"`
	Account Pubkey `json:"address"`
}

// AccountInfo is the raw state of an on-chain account.
type AccountInfo struct {
	Owner Pubkey // owning program
	Data  []byte // raw account data
}

// SPL token account layout offsets (fixed-layout record; only the head
// matters here): mint is bytes 0..31, owner 32..63, amount starts at 64.
const (
	TokenAccountOwnerOffset = 32
	TokenAccountOwnerEnd    = 64
	TokenAccountMinLen      = 64
)

// CurveState is the decoded reserve state of a bonding-curve account.
type CurveState struct {
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
	VirtualSOLReserves   uint64 `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64 `json:"real_token_reserves"`
	RealSOLReserves      uint64 `json:"real_sol_reserves"`
	TokenTotalSupply     uint64 `json:"token_total_supply"`
	Complete             bool   `json:"complete"`
}

// Price returns the spot price in SOL per whole token, derived from the
// virtual reserves. Zero when the curve has no token reserves.
func (s CurveState) Price() decimal.Decimal {
	if s.VirtualTokenReserves == 0 {
		return decimal.Zero
	}
	sol := decimal.NewFromUint64(s.VirtualSOLReserves).
		Div(decimal.NewFromInt(LamportsPerSOL))
	tokens := decimal.NewFromUint64(s.VirtualTokenReserves).
		Div(decimal.NewFromInt(10).Pow(decimal.NewFromInt(TokenDecimals)))
	return sol.DivRound(tokens, 12)
}
