package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ---------------------------------------------------------------------------
// Pubkey helpers — base58 codec and program-derived addresses
// ---------------------------------------------------------------------------

// Bytes decodes the key into its 32 raw bytes.
func (p Pubkey) Bytes() ([]byte, error) {
	raw, err := base58.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("pubkey: decode %q: %w", string(p), err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("pubkey: %q is %d bytes, want 32", string(p), len(raw))
	}
	return raw, nil
}

// PubkeyFromBytes encodes 32 raw bytes as a base58 public key.
func PubkeyFromBytes(raw []byte) (Pubkey, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("pubkey: got %d bytes, want 32", len(raw))
	}
	return Pubkey(base58.Encode(raw)), nil
}

// DerivePDA derives a program-derived address for the given seeds: the first
// bump (searched downward from 255) whose sha256 hash is not a valid ed25519
// curve point.
func DerivePDA(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	program, err := programID.Bytes()
	if err != nil {
		return "", err
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		candidate := h.Sum(nil)

		if !isOnCurve(candidate) {
			return Pubkey(base58.Encode(candidate)), nil
		}
	}

	return "", fmt.Errorf("pubkey: no valid bump for PDA seeds")
}

// DeriveAssociatedTokenAccount derives the associated token account holding
// mint tokens for wallet. Seeds: [wallet, token program, mint].
func DeriveAssociatedTokenAccount(wallet, mint Pubkey) (Pubkey, error) {
	walletBytes, err := wallet.Bytes()
	if err != nil {
		return "", err
	}
	mintBytes, err := mint.Bytes()
	if err != nil {
		return "", err
	}
	programBytes, err := TokenProgramID.Bytes()
	if err != nil {
		return "", err
	}

	return DerivePDA([][]byte{walletBytes, programBytes, mintBytes}, AssociatedTokenProgramID)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
