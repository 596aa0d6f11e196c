package analyzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/solana"
)

var testEvent = solana.LaunchEvent{
	Mint:         "mint111",
	Creator:      "creator",
	BondingCurve: "curve",
	Name:         "Test Token",
	Symbol:       "TEST",
}

func newTestLoop(source *fakeSource, counter *fakeCounter, loopCfg LoopConfig) (*Loop, *fakeClock) {
	clock := newFakeClock()
	engine := NewEngine(DefaultConfig(), source, counter, clock)
	loop := NewLoop("loop-1", loopCfg, engine, clock, testEvent)
	return loop, clock
}

func TestLoop_ClearsOnThirdIteration(t *testing.T) {
	// Creator holds 5% for two snapshots, then exits with liquidity in band.
	source := &fakeSource{snapshots: [][]holders.Record{
		snapshotWith(5, 75),
		snapshotWith(5, 75),
		snapshotWith(0, 75),
	}}
	loop, _ := newTestLoop(source, &fakeCounter{count: 40}, DefaultLoopConfig())

	result := loop.Run(context.Background())

	assert.Equal(t, VerdictTradeCleared, result.Verdict)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 3, source.calls)
}

func TestLoop_StopsAtMaxIterations(t *testing.T) {
	// Nothing ever changes and the budget is generous: the iteration ceiling
	// ends the loop with the last CONTINUE verdict.
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 50)}}
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.TimeBudget = time.Hour
	engine := NewEngine(cfg, source, &fakeCounter{count: 10}, clock)
	loop := NewLoop("loop-1", LoopConfig{Cadence: 5 * time.Second, MaxIterations: 7}, engine, clock, testEvent)

	result := loop.Run(context.Background())

	assert.Equal(t, VerdictContinue, result.Verdict)
	assert.Equal(t, 7, result.Iterations)
	assert.Equal(t, 7, source.calls)
}

func TestLoop_TimeoutTerminates(t *testing.T) {
	// At a 5s cadence the 100s default budget runs out on the 21st iteration.
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 50)}}
	loop, _ := newTestLoop(source, &fakeCounter{count: 10}, DefaultLoopConfig())

	result := loop.Run(context.Background())

	assert.Equal(t, VerdictTimeout, result.Verdict)
	assert.Equal(t, 22, result.Iterations)
}

func TestLoop_ErrorIsTerminal(t *testing.T) {
	source := &fakeSource{
		snapshots: [][]holders.Record{snapshotWith(5, 50)},
		errs:      []error{nil, fmt.Errorf("rpc down")},
	}
	loop, _ := newTestLoop(source, &fakeCounter{count: 10}, DefaultLoopConfig())

	result := loop.Run(context.Background())

	assert.Equal(t, VerdictError, result.Verdict)
	assert.Equal(t, 2, result.Iterations)
}

func TestLoop_NoDataIsTerminal(t *testing.T) {
	source := &fakeSource{}
	loop, _ := newTestLoop(source, &fakeCounter{count: 0}, DefaultLoopConfig())

	result := loop.Run(context.Background())

	assert.Equal(t, VerdictNoData, result.Verdict)
	assert.Equal(t, 1, result.Iterations)
}

func TestLoop_ContextCancelStops(t *testing.T) {
	source := &fakeSource{snapshots: [][]holders.Record{snapshotWith(5, 50)}}
	loop, _ := newTestLoop(source, &fakeCounter{count: 10}, DefaultLoopConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := loop.Run(ctx)

	assert.Equal(t, VerdictEvaluating, result.Verdict)
	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, 0, source.calls)
}

func TestNewLoop_DefaultsBackfill(t *testing.T) {
	loop := NewLoop("loop-1", LoopConfig{}, nil, newFakeClock(), testEvent)
	assert.Equal(t, 5*time.Second, loop.config.Cadence)
	assert.Equal(t, 60, loop.config.MaxIterations)
}
