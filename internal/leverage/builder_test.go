package leverage_test

import (
	"errors"
	"fmt"
	"testing"

	"VaultLedger/internal/interest"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/leverage"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/token"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

const quoteTimeSec = 1_000

var swapRoute = []string{"DAI", "ETH"}

// newLedger wires an engine with ETH at 2 DAI per unit and a 50% LTV
// ETH-collateral vault, no interest.
func newLedger(t *testing.T) (*vault.Engine, *oracle.Adapter, *token.Engine) {
	t.Helper()

	tokens := token.NewEngine()
	quotes := oracle.NewAdapter()
	tracker := ledger.NewBalanceTracker()
	journal := ledger.NewJournalGenerator(0, tracker)
	engine := vault.NewEngine(tokens, quotes, journal, tracker, interest.NewEngine(100, 10_000))

	for i, q := range []struct {
		asset string
		raw   int64
	}{{"ETH", 2}, {"DAI", 1}} {
		err := quotes.ApplyUpdate(&oracle.PriceQuote{
			Asset:        q.asset,
			RawPrice:     q.raw,
			Decimals:     0,
			FeedSequence: int64(i + 1),
			UpdatedAt:    quoteTimeSec,
			Source:       "test",
		})
		if err != nil {
			t.Fatalf("quote %s: %v", q.asset, err)
		}
	}

	cfg := &vault.VaultConfig{
		VaultID:              "ETH-DAI",
		CollateralAsset:      "ETH",
		DebtAsset:            "DAI",
		LTVRatio:             50,
		LiquidationThreshold: 80,
		LiquidatorRewardBips: 500,
		TreasuryID:           uuid.New(),
		StalenessWindowSec:   3_600,
	}
	if err := engine.RegisterVault(cfg, 0); err != nil {
		t.Fatalf("register vault: %v", err)
	}
	return engine, quotes, tokens
}

func buildOp(ref string) vault.OpContext {
	return vault.OpContext{
		EventRef:    ref,
		BlockHeight: 100,
		Timestamp:   quoteTimeSec * 1_000_000,
	}
}

func fundCaller(t *testing.T, engine *vault.Engine, caller uuid.UUID, amount int64) {
	t.Helper()
	if _, err := engine.FundWallet(buildOp("fund"), caller, "ETH", amount); err != nil {
		t.Fatalf("fund caller: %v", err)
	}
}

// failRouter always errors, simulating an exchange outage mid-loop.
type failRouter struct{ calls int }

func (r *failRouter) SwapExactInput(route []string, amountIn, minAmountOut int64) (int64, error) {
	r.calls++
	return 0, fmt.Errorf("exchange unavailable")
}

// countingRouter records every swap it forwards to the wrapped router.
type countingRouter struct {
	inner   leverage.SwapRouter
	calls   int
	outputs []int64
}

func (r *countingRouter) SwapExactInput(route []string, amountIn, minAmountOut int64) (int64, error) {
	r.calls++
	out, err := r.inner.SwapExactInput(route, amountIn, minAmountOut)
	if err == nil {
		r.outputs = append(r.outputs, out)
	}
	return out, err
}

// ============================================================================
// Test: the leverage loop
// ============================================================================

func TestLeveragePosition_TwoIterations(t *testing.T) {
	engine, quotes, tokens := newLedger(t)
	builder := leverage.NewBuilder(engine, leverage.NewOracleRouter(quotes))
	caller := uuid.New()
	fundCaller(t, engine, caller, 1_000_000)

	result, batches, err := builder.LeveragePosition(
		buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, 2, 500_000, swapRoute)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Iteration 1 borrows the full 1_000_000 headroom and swaps it into
	// 500_000 ETH; iteration 2's 500_000 tranche is the residual.
	if result.TotalCollateral != 1_500_000 {
		t.Errorf("collateral: got %d, want 1500000", result.TotalCollateral)
	}
	if result.TotalDebt != 1_500_000 {
		t.Errorf("debt: got %d, want 1500000", result.TotalDebt)
	}
	if result.Residual != 500_000 {
		t.Errorf("residual: got %d, want 500000", result.Residual)
	}
	if result.LeverageUsed != 2 {
		t.Errorf("leverage used: got %d, want 2", result.LeverageUsed)
	}
	if len(batches) == 0 {
		t.Error("no batches returned")
	}

	if got := tokens.BalanceOf(token.UserHolder(caller), "DAI"); got != 500_000 {
		t.Errorf("caller DAI: got %d, want 500000", got)
	}
	if got := tokens.BalanceOf(token.HolderLeverageModule, "ETH"); got != 0 {
		t.Errorf("builder ETH float: got %d, want 0", got)
	}
	if got := tokens.BalanceOf(token.HolderLeverageModule, "DAI"); got != 0 {
		t.Errorf("builder DAI float: got %d, want 0", got)
	}

	pos, ok := engine.Position(result.PositionID)
	if !ok {
		t.Fatal("position not found")
	}
	if pos.CollateralAmount != 1_500_000 || pos.DebtAmount != 1_500_000 {
		t.Errorf("position: %+v", pos)
	}
	if err := engine.ValidateAggregates(); err != nil {
		t.Errorf("aggregates after build: %v", err)
	}
}

func TestLeveragePosition_ThreeIterations(t *testing.T) {
	engine, quotes, tokens := newLedger(t)
	router := &countingRouter{inner: leverage.NewOracleRouter(quotes)}
	builder := leverage.NewBuilder(engine, router)
	caller := uuid.New()
	fundCaller(t, engine, caller, 1_000_000)

	// Tranches halve at each step (headroom 1_000_000 then 500_000 then
	// 250_000): two swaps redeposit 750_000 collateral, the third tranche is
	// the residual.
	result, _, err := builder.LeveragePosition(
		buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, 3, 750_000, swapRoute)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if router.calls != 2 {
		t.Errorf("router calls: got %d, want 2", router.calls)
	}
	var swapped int64
	for _, out := range router.outputs {
		swapped += out
	}
	if swapped != 750_000 {
		t.Errorf("total swapped: got %d, want 750000", swapped)
	}
	if result.TotalCollateral != 1_000_000+swapped {
		t.Errorf("collateral: got %d, want deposit plus swap outputs %d",
			result.TotalCollateral, 1_000_000+swapped)
	}
	if result.TotalDebt != 1_750_000 {
		t.Errorf("debt: got %d, want 1750000", result.TotalDebt)
	}
	if result.Residual != 250_000 {
		t.Errorf("residual: got %d, want 250000", result.Residual)
	}
	if got := tokens.BalanceOf(token.UserHolder(caller), "DAI"); got != 250_000 {
		t.Errorf("caller DAI: got %d, want 250000", got)
	}
	if err := engine.ValidateAggregates(); err != nil {
		t.Errorf("aggregates after build: %v", err)
	}
}

func TestLeveragePosition_SingleIterationSkipsSwap(t *testing.T) {
	engine, quotes, tokens := newLedger(t)
	builder := leverage.NewBuilder(engine, leverage.NewOracleRouter(quotes))
	caller := uuid.New()
	fundCaller(t, engine, caller, 1_000_000)

	result, _, err := builder.LeveragePosition(
		buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, 1, 0, swapRoute)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if result.TotalCollateral != 1_000_000 || result.TotalDebt != 1_000_000 {
		t.Errorf("result: %+v", result)
	}
	if result.Residual != 1_000_000 {
		t.Errorf("residual: got %d, want 1000000", result.Residual)
	}
	if got := tokens.BalanceOf(token.UserHolder(caller), "DAI"); got != 1_000_000 {
		t.Errorf("caller DAI: got %d, want 1000000", got)
	}
}

// ============================================================================
// Test: validation and failure rollback
// ============================================================================

func TestLeveragePosition_LeverageBounds(t *testing.T) {
	engine, quotes, _ := newLedger(t)
	builder := leverage.NewBuilder(engine, leverage.NewOracleRouter(quotes))
	caller := uuid.New()

	for _, lev := range []uint32{0, leverage.MaxLeverage + 1} {
		_, _, err := builder.LeveragePosition(
			buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, lev, 0, swapRoute)
		if !errors.Is(err, vault.ErrLeverageLimit) {
			t.Errorf("leverage %d: got %v, want ErrLeverageLimit", lev, err)
		}
	}
}

func TestLeveragePosition_UnknownVault(t *testing.T) {
	engine, quotes, _ := newLedger(t)
	builder := leverage.NewBuilder(engine, leverage.NewOracleRouter(quotes))

	_, _, err := builder.LeveragePosition(
		buildOp("lev-1"), "BTC-USDT", uuid.New(), 1_000_000, 2, 0, swapRoute)
	if !errors.Is(err, vault.ErrUnknownVault) {
		t.Errorf("got %v, want ErrUnknownVault", err)
	}
}

func TestLeveragePosition_MinimumOutputRollsBack(t *testing.T) {
	engine, quotes, tokens := newLedger(t)
	builder := leverage.NewBuilder(engine, leverage.NewOracleRouter(quotes))
	caller := uuid.New()
	fundCaller(t, engine, caller, 1_000_000)

	// Two iterations acquire exactly 500_000 collateral; demand more.
	_, _, err := builder.LeveragePosition(
		buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, 2, 500_001, swapRoute)
	if !errors.Is(err, vault.ErrSwapBelowMinimum) {
		t.Fatalf("got %v, want ErrSwapBelowMinimum", err)
	}

	// Everything the loop touched must have unwound.
	if got := tokens.BalanceOf(token.UserHolder(caller), "ETH"); got != 1_000_000 {
		t.Errorf("caller ETH after rollback: got %d, want 1000000", got)
	}
	if got := tokens.BalanceOf(token.UserHolder(caller), "DAI"); got != 0 {
		t.Errorf("caller DAI after rollback: got %d, want 0", got)
	}
	if got := tokens.BalanceOf(token.HolderVaultModule, "ETH"); got != 0 {
		t.Errorf("vault module ETH after rollback: got %d, want 0", got)
	}
	if got := tokens.BalanceOf(token.HolderLeverageModule, "DAI"); got != 0 {
		t.Errorf("builder float after rollback: got %d, want 0", got)
	}
	if _, ok := engine.Position(1); ok {
		t.Error("failed build left a position behind")
	}
	if got := engine.NextPositionID(); got != 1 {
		t.Errorf("next position id: got %d, want 1", got)
	}
}

func TestLeveragePosition_RouterFailureRollsBack(t *testing.T) {
	engine, _, tokens := newLedger(t)
	router := &failRouter{}
	builder := leverage.NewBuilder(engine, router)
	caller := uuid.New()
	fundCaller(t, engine, caller, 1_000_000)

	_, _, err := builder.LeveragePosition(
		buildOp("lev-1"), "ETH-DAI", caller, 1_000_000, 3, 0, swapRoute)
	if err == nil {
		t.Fatal("router failure must abort the build")
	}
	if router.calls != 1 {
		t.Errorf("router calls: got %d, want 1", router.calls)
	}
	if got := tokens.BalanceOf(token.UserHolder(caller), "ETH"); got != 1_000_000 {
		t.Errorf("caller ETH after rollback: got %d, want 1000000", got)
	}
	if _, ok := engine.Position(1); ok {
		t.Error("failed build left a position behind")
	}
}

// ============================================================================
// Test: OracleRouter
// ============================================================================

func TestOracleRouter_PricesEndToEnd(t *testing.T) {
	_, quotes, _ := newLedger(t)
	router := leverage.NewOracleRouter(quotes)

	// 1000 DAI at 1 buys 500 ETH at 2; intermediate hops are ignored.
	out, err := router.SwapExactInput([]string{"DAI", "USDT", "ETH"}, 1_000, 1)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if out != 500 {
		t.Errorf("output: got %d, want 500", out)
	}
}

func TestOracleRouter_BelowMinimum(t *testing.T) {
	_, quotes, _ := newLedger(t)
	router := leverage.NewOracleRouter(quotes)

	_, err := router.SwapExactInput(swapRoute, 1_000, 501)
	if err == nil {
		t.Error("output below minimum must fail")
	}
}

func TestOracleRouter_ShortRoute(t *testing.T) {
	_, quotes, _ := newLedger(t)
	router := leverage.NewOracleRouter(quotes)

	if _, err := router.SwapExactInput([]string{"DAI"}, 1_000, 1); err == nil {
		t.Error("single-hop route must fail")
	}
	if _, err := router.SwapExactInput(swapRoute, 0, 1); err == nil {
		t.Error("zero input must fail")
	}
}

func TestOracleRouter_UnknownAsset(t *testing.T) {
	_, quotes, _ := newLedger(t)
	router := leverage.NewOracleRouter(quotes)

	_, err := router.SwapExactInput([]string{"DAI", "DOGE"}, 1_000, 1)
	if !errors.Is(err, oracle.ErrUnknownAsset) {
		t.Errorf("got %v, want ErrUnknownAsset", err)
	}
}
