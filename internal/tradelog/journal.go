package tradelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Trade Journal — append-only trade log + per-launch snapshot files
// ---------------------------------------------------------------------------

// Action is the trade direction recorded in the journal.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Entry is one executed trade action, serialized as a single JSON line.
type Entry struct {
	Timestamp     time.Time        `json:"timestamp"`
	Action        string           `json:"action"` // buy|sell
	Mint          solana.Pubkey    `json:"mint"`
	Price         decimal.Decimal  `json:"price"` // SOL per token at execution
	TransactionID solana.Signature `json:"transactionId"`
}

// logFileName is the shared append-only trade log inside the journal dir.
const logFileName = "trades.log"

// Journal writes the append-only trade log and the write-once per-launch
// snapshot files. Snapshot files are never read back by the journal.
type Journal struct {
	mu  sync.Mutex
	dir string
}

// NewJournal creates a journal rooted at dir, creating it if needed.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	return &Journal{dir: dir}, nil
}

// Append writes one trade entry as a JSON line to the trade log.
func (j *Journal) Append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(j.dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open trade log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: write trade log: %w", err)
	}

	log.Info().
		Str("action", entry.Action).
		Str("mint", string(entry.Mint)).
		Str("price", entry.Price.String()).
		Str("tx", string(entry.TransactionID)).
		Msg("journal: trade recorded")

	return nil
}

// WriteLaunchSnapshot writes the raw launch payload to <mint>.json, once at
// detection time, for audit and replay.
func (j *Journal) WriteLaunchSnapshot(event solana.LaunchEvent) error {
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal launch snapshot: %w", err)
	}

	path := filepath.Join(j.dir, fmt.Sprintf("%s.json", event.Mint))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("journal: write launch snapshot: %w", err)
	}

	log.Debug().Str("mint", string(event.Mint)).Str("path", path).Msg("journal: launch snapshot saved")
	return nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string { return j.dir }
