package solana

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for Solana RPC interactions.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type RPCClient interface {
	// GetLargestTokenAccounts returns the largest token accounts for a mint,
	// ordered by balance descending (ordering is the provider's contract).
	GetLargestTokenAccounts(ctx context.Context, mint Pubkey) ([]LargestAccount, error)

	// GetTokenAccountsPage returns one page of {owner, account} pairs holding
	// the mint. An empty page signals end-of-pages.
	GetTokenAccountsPage(ctx context.Context, mint Pubkey, page, limit int) ([]TokenAccountRef, error)

	// GetAccountInfo reads an account's raw data and owning program.
	// Returns nil (no error) when the account does not exist.
	GetAccountInfo(ctx context.Context, account Pubkey) (*AccountInfo, error)

	// GetCurveState reads and decodes a bonding-curve account.
	GetCurveState(ctx context.Context, curve Pubkey) (*CurveState, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`       // e.g. https://api.mainnet-beta.solana.com
	WSEndpoint   string        `yaml:"ws_endpoint"`    // e.g. wss://api.mainnet-beta.solana.com
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // requests per second limit
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// StubRPCClient is a mock RPC client for testing.
type StubRPCClient struct {
	mu       sync.RWMutex
	largest  map[Pubkey][]LargestAccount
	pages    map[Pubkey][][]TokenAccountRef
	accounts map[Pubkey]*AccountInfo
	curves   map[Pubkey]*CurveState
	failNext bool

	pageCalls int
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		largest:  make(map[Pubkey][]LargestAccount),
		pages:    make(map[Pubkey][][]TokenAccountRef),
		accounts: make(map[Pubkey]*AccountInfo),
		curves:   make(map[Pubkey]*CurveState),
	}
}

// SetLargestAccounts registers the largest-accounts response for a mint.
func (s *StubRPCClient) SetLargestAccounts(mint Pubkey, accounts []LargestAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.largest[mint] = accounts
}

// SetHolderPages registers the paged holder-accounts responses for a mint.
// Pages past the registered ones come back empty.
func (s *StubRPCClient) SetHolderPages(mint Pubkey, pages [][]TokenAccountRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[mint] = pages
}

// SetAccount registers raw account state.
func (s *StubRPCClient) SetAccount(account Pubkey, info *AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] = info
}

// SetCurveState registers a bonding-curve state.
func (s *StubRPCClient) SetCurveState(curve Pubkey, state *CurveState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curves[curve] = state
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// PageCalls returns how many holder-page requests have been served.
func (s *StubRPCClient) PageCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageCalls
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetLargestTokenAccounts(_ context.Context, mint Pubkey) ([]LargestAccount, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.largest[mint], nil
}

func (s *StubRPCClient) GetTokenAccountsPage(_ context.Context, mint Pubkey, page, _ int) ([]TokenAccountRef, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	pages := s.pages[mint]
	if page < 1 || page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func (s *StubRPCClient) GetAccountInfo(_ context.Context, account Pubkey) (*AccountInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[account], nil
}

func (s *StubRPCClient) GetCurveState(_ context.Context, curve Pubkey) (*CurveState, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.curves[curve]; ok {
		return state, nil
	}
	return nil, fmt.Errorf("stub: curve %s not found", curve)
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
