package analyzer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/solana"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

// fakeClock is a manually advanced clock. Sleep advances it instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.Advance(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource serves a scripted sequence of snapshots, repeating the last one.
type fakeSource struct {
	mu        sync.Mutex
	snapshots [][]holders.Record
	errs      []error
	calls     int
}

func (s *fakeSource) RankTopHolders(_ context.Context, _ holders.Query) ([]holders.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.snapshots) == 0 {
		return nil, nil
	}
	if i >= len(s.snapshots) {
		i = len(s.snapshots) - 1
	}
	return s.snapshots[i], nil
}

type fakeCounter struct {
	count int
}

func (c *fakeCounter) CountDistinctOwners(_ context.Context, _ solana.Pubkey) int {
	return c.count
}

func snapshotWith(creatorPct, liquidityPct float64) []holders.Record {
	records := []holders.Record{
		{Rank: 1, Owner: "curve", Percentage: liquidityPct, IsLiquidityAccount: true},
		{Rank: 2, Owner: "whale", Percentage: 3},
	}
	if creatorPct > 0 {
		records = append(records, holders.Record{
			Rank: 3, Owner: "creator", Percentage: creatorPct, IsCreator: true,
		})
	}
	return records
}

var testQuery = holders.Query{
	Mint:             "mint111",
	Creator:          "creator",
	LiquidityAccount: "curve",
}

// ---------------------------------------------------------------------------
// Decision Engine Tests
// ---------------------------------------------------------------------------

func TestEngine_NoData(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(DefaultConfig(), &fakeSource{}, &fakeCounter{count: 100}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictNoData, outcome.Verdict)
}

func TestEngine_TradeCleared(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 75)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 40}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictTradeCleared, outcome.Verdict)
	assert.True(t, outcome.Gates.HolderCountMet)
	assert.True(t, outcome.Gates.CreatorExited)
	assert.True(t, outcome.Gates.LiquidityInRange)
	assert.True(t, outcome.Gates.TimeWithinBudget)
	assert.Equal(t, 40, outcome.OwnerCount)
}

func TestEngine_Continue_CreatorStillHolding(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 75)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 40}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictContinue, outcome.Verdict)
	assert.False(t, outcome.Gates.CreatorExited)
}

func TestEngine_SpecialCleared(t *testing.T) {
	// Creator still holds, but 60+ owners and liquidity in the wider band.
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 65)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 60}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictSpecialCleared, outcome.Verdict)
}

func TestEngine_SpecialRequiresCreatorStillHolding(t *testing.T) {
	// Creator exited and liquidity only fits the wider band: the primary rule
	// misses (liquidity below 70) and the relaxed rule misses (creator gone).
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 65)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 60}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictContinue, outcome.Verdict)
}

func TestEngine_PrimaryBeatsSpecial(t *testing.T) {
	// Both rule sets pass on their shared conditions; creator exited means
	// only primary can fire, and it does.
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 75)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 80}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictTradeCleared, outcome.Verdict)
}

func TestEngine_Exhausted(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 99.5)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 5}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, VerdictExhausted, outcome.Verdict)
}

func TestEngine_ExhaustedBeatsTimeout(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 99.5)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 5}, clock)

	startedAt := clock.Now()
	clock.Advance(101 * time.Second)

	outcome, err := engine.Evaluate(context.Background(), testQuery, startedAt)
	require.NoError(t, err)
	assert.Equal(t, VerdictExhausted, outcome.Verdict)
}

func TestEngine_Timeout(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 50)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 10}, clock)

	startedAt := clock.Now()
	clock.Advance(101 * time.Second)

	outcome, err := engine.Evaluate(context.Background(), testQuery, startedAt)
	require.NoError(t, err)
	assert.Equal(t, VerdictTimeout, outcome.Verdict)
}

func TestEngine_TimeoutDoesNotPreemptClearance(t *testing.T) {
	// All gates but time pass: timeout wins because clearances require the
	// time gate.
	clock := newFakeClock()
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(0, 75)}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 40}, clock)

	startedAt := clock.Now()
	clock.Advance(101 * time.Second)

	outcome, err := engine.Evaluate(context.Background(), testQuery, startedAt)
	require.NoError(t, err)
	assert.Equal(t, VerdictTimeout, outcome.Verdict)
}

func TestEngine_SnapshotErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{errs: []error{fmt.Errorf("rpc down")}}
	engine := NewEngine(DefaultConfig(), source, &fakeCounter{count: 40}, clock)

	outcome, err := engine.Evaluate(context.Background(), testQuery, clock.Now())
	assert.Error(t, err)
	assert.Equal(t, VerdictError, outcome.Verdict)
}

func TestVerdict_Terminal(t *testing.T) {
	assert.False(t, VerdictEvaluating.Terminal())
	assert.False(t, VerdictContinue.Terminal())
	assert.True(t, VerdictTradeCleared.Terminal())
	assert.True(t, VerdictSpecialCleared.Terminal())
	assert.True(t, VerdictExhausted.Terminal())
	assert.True(t, VerdictTimeout.Terminal())
	assert.True(t, VerdictNoData.Terminal())
	assert.True(t, VerdictError.Terminal())
}

func TestVerdict_Cleared(t *testing.T) {
	assert.True(t, VerdictTradeCleared.Cleared())
	assert.True(t, VerdictSpecialCleared.Cleared())
	assert.False(t, VerdictContinue.Cleared())
	assert.False(t, VerdictExhausted.Cleared())
	assert.False(t, VerdictTimeout.Cleared())
}
