package core_test

import (
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/token"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// --- Test helpers ---

const (
	testVault     = "eth-usdc-main"
	baseMicros    = int64(1_700_000_000_000_000)
	periodBlocks  = int64(7_200)
	testRateBips  = uint64(500) // 5% annual
	testLTV       = uint64(50)
	testThreshold = uint64(80)
	testReward    = uint64(500) // 5% of seized collateral
)

// newTestCore creates a DeterministicCore with buffered channels, no DB
// checker, and the oracle-priced swap router.
func newTestCore() (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c := core.NewDeterministicCore(0, persistChan, projChan, nil, nil, nil)
	return c, persistChan, projChan
}

func mustVaultRegister(treasury uuid.UUID, seq int64) *event.VaultRegister {
	return &event.VaultRegister{
		Vault:                testVault,
		CollateralAsset:      "ETH",
		DebtAsset:            "USDC",
		LTVRatio:             testLTV,
		LiquidationThreshold: testThreshold,
		LiquidatorRewardBips: testReward,
		AnnualRateBips:       testRateBips,
		TreasuryID:           treasury,
		EffectiveSeq:         1,
		Sequence:             seq,
		Timestamp:            baseMicros + seq*1000,
	}
}

func mustPriceUpdate(asset string, rawPrice int64, feedSeq int64) *event.PriceUpdate {
	return &event.PriceUpdate{
		Asset:          asset,
		RawPrice:       rawPrice,
		Decimals:       8,
		FeedSequence:   feedSeq,
		PriceTimestamp: baseMicros + feedSeq*1000,
		Source:         "test-feed",
	}
}

func mustWalletFund(userID uuid.UUID, asset string, amount, seq int64) *event.WalletFund {
	return &event.WalletFund{
		FundID:    uuid.New(),
		UserID:    userID,
		Asset:     asset,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: baseMicros + seq*1000,
	}
}

func mustPositionOpen(owner uuid.UUID, collateral, debt, block, seq int64) *event.PositionOpen {
	return &event.PositionOpen{
		RequestID:        uuid.New(),
		Vault:            testVault,
		OwnerID:          owner,
		CollateralAmount: collateral,
		DebtAmount:       debt,
		BlockHeight:      block,
		Sequence:         seq,
		Timestamp:        baseMicros + seq*1000,
	}
}

func mustDebtBorrow(caller uuid.UUID, positionID, amount, block, seq int64) *event.DebtBorrow {
	return &event.DebtBorrow{
		RequestID:   uuid.New(),
		Vault:       testVault,
		PositionID:  positionID,
		CallerID:    caller,
		Amount:      amount,
		BlockHeight: block,
		Sequence:    seq,
		Timestamp:   baseMicros + seq*1000,
	}
}

func mustDebtRepay(caller uuid.UUID, positionID, amount, block, seq int64) *event.DebtRepay {
	return &event.DebtRepay{
		RequestID:   uuid.New(),
		Vault:       testVault,
		PositionID:  positionID,
		CallerID:    caller,
		Amount:      amount,
		BlockHeight: block,
		Sequence:    seq,
		Timestamp:   baseMicros + seq*1000,
	}
}

func mustCollateralRemove(caller uuid.UUID, positionID, amount, block, seq int64) *event.CollateralRemove {
	return &event.CollateralRemove{
		RequestID:   uuid.New(),
		Vault:       testVault,
		PositionID:  positionID,
		CallerID:    caller,
		Amount:      amount,
		BlockHeight: block,
		Sequence:    seq,
		Timestamp:   baseMicros + seq*1000,
	}
}

func mustLiquidate(liquidator uuid.UUID, positionID, block, seq int64) *event.PositionLiquidate {
	return &event.PositionLiquidate{
		RequestID:    uuid.New(),
		Vault:        testVault,
		PositionID:   positionID,
		LiquidatorID: liquidator,
		BlockHeight:  block,
		Sequence:     seq,
		Timestamp:    baseMicros + seq*1000,
	}
}

func mustInterestSweep(block, seq int64) *event.InterestSweep {
	return &event.InterestSweep{
		Vault:       testVault,
		BlockHeight: block,
		Sequence:    seq,
		Timestamp:   baseMicros + seq*1000,
	}
}

func mustLeverageOpen(caller uuid.UUID, collateral int64, leverage uint32, minOut, block, seq int64) *event.LeverageOpen {
	return &event.LeverageOpen{
		RequestID:        uuid.New(),
		Vault:            testVault,
		CallerID:         caller,
		CollateralAmount: collateral,
		Leverage:         leverage,
		MinAmountOut:     minOut,
		Route:            []string{"USDC", "ETH"},
		BlockHeight:      block,
		Sequence:         seq,
		Timestamp:        baseMicros + seq*1000,
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// setupVault registers the test vault and seeds ETH at $2000, USDC at $1.
// Returns the treasury id. Consumes admin seq 0 and price seq 1 per asset.
func setupVault(t *testing.T, c *core.DeterministicCore, persistCh chan core.CoreOutput) uuid.UUID {
	t.Helper()
	treasury := uuid.New()

	if err := c.ProcessEvent(mustVaultRegister(treasury, 0)); err != nil {
		t.Fatalf("vault register failed: %v", err)
	}
	if err := c.ProcessEvent(mustPriceUpdate("ETH", 2_000_00000000, 1)); err != nil {
		t.Fatalf("ETH price failed: %v", err)
	}
	if err := c.ProcessEvent(mustPriceUpdate("USDC", 1_00000000, 1)); err != nil {
		t.Fatalf("USDC price failed: %v", err)
	}
	drainOutputs(persistCh)
	return treasury
}

// ============================================================================
// Test: Position Lifecycle (fund → open → borrow → repay → close)
// ============================================================================

func TestPositionLifecycle_OpenBorrowRepayClose(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c, persistCh)

	// Fund the owner's ETH wallet (global partition seq=0)
	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	drainOutputs(persistCh)

	// Open collateral-only position (vault partition seq=0)
	if err := c.ProcessEvent(mustPositionOpen(owner, 10_000, 0, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	hasDeposit := false
	for _, j := range outputs[0].Batch.Journals {
		if j.JournalType == ledger.JournalTypeCollateralDeposit {
			hasDeposit = true
		}
	}
	if !hasDeposit {
		t.Error("expected a CollateralDeposit journal entry")
	}

	pos, ok := c.Ledger().Position(1)
	if !ok {
		t.Fatal("position 1 not found")
	}
	if pos.CollateralAmount != 10_000 || pos.DebtAmount != 0 {
		t.Errorf("unexpected position state: coll=%d debt=%d", pos.CollateralAmount, pos.DebtAmount)
	}

	// Borrow within the LTV limit: collateral value $20M, limit $10M
	if err := c.ProcessEvent(mustDebtBorrow(owner, 1, 8_000_000, 2, 1)); err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	drainOutputs(persistCh)

	if got := c.Tokens().BalanceOf(token.UserHolder(owner), "USDC"); got != 8_000_000 {
		t.Errorf("expected 8_000_000 USDC in wallet, got %d", got)
	}

	// Repay in full, then withdraw all collateral — position closes
	if err := c.ProcessEvent(mustDebtRepay(owner, 1, 8_000_000, 3, 2)); err != nil {
		t.Fatalf("repay failed: %v", err)
	}
	if err := c.ProcessEvent(mustCollateralRemove(owner, 1, 10_000, 4, 3)); err != nil {
		t.Fatalf("collateral remove failed: %v", err)
	}
	drainOutputs(persistCh)

	pos, _ = c.Ledger().Position(1)
	if pos.Status != vault.PositionStatusClosed {
		t.Errorf("expected Closed status, got %v", pos.Status)
	}
	if got := c.Tokens().BalanceOf(token.UserHolder(owner), "ETH"); got != 10_000 {
		t.Errorf("expected collateral back in wallet, got %d", got)
	}
}

func TestBorrow_OverLTVLimit_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	if err := c.ProcessEvent(mustPositionOpen(owner, 10_000, 0, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	drainOutputs(persistCh)

	// Limit at 50% LTV is $10M; 11M exceeds it
	err := c.ProcessEvent(mustDebtBorrow(owner, 1, 11_000_000, 2, 1))
	if err == nil {
		t.Fatal("expected LTV limit error, got nil")
	}

	// Failed dispatch must not leave partial state behind
	pos, _ := c.Ledger().Position(1)
	if pos.DebtAmount != 0 {
		t.Errorf("expected debt 0 after rejected borrow, got %d", pos.DebtAmount)
	}
	if got := c.Tokens().BalanceOf(token.UserHolder(owner), "USDC"); got != 0 {
		t.Errorf("expected no USDC minted, got %d", got)
	}
}

// ============================================================================
// Test: Interest Accrual
// ============================================================================

func TestInterestSweep_ChargesPeriodReadyPositions(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	if err := c.ProcessEvent(mustPositionOpen(owner, 10_000, 8_000_000, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	drainOutputs(persistCh)

	// Sweep before a full period elapsed: nothing charged, envelope still logged
	if err := c.ProcessEvent(mustInterestSweep(1+periodBlocks/2, 1)); err != nil {
		t.Fatalf("early sweep failed: %v", err)
	}
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for early sweep, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("expected empty batch for early sweep, got %d journals", len(outputs[0].Batch.Journals))
	}

	debtBefore := int64(8_000_000)

	// Sweep after one full period
	if err := c.ProcessEvent(mustInterestSweep(1+periodBlocks, 2)); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	outputs = drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) == 0 {
		t.Fatal("expected an interest charge journal")
	}

	pos, _ := c.Ledger().Position(1)
	if pos.DebtAmount <= debtBefore {
		t.Errorf("expected debt to grow past %d, got %d", debtBefore, pos.DebtAmount)
	}
	charged := pos.DebtAmount - debtBefore
	if got := c.Interest().Pool("USDC"); got != charged {
		t.Errorf("expected interest pool %d, got %d", charged, got)
	}
	if got := c.Interest().LastBlock(testVault, 1); got != uint64(1+periodBlocks) {
		t.Errorf("expected last collection block %d, got %d", 1+periodBlocks, got)
	}
}

// ============================================================================
// Test: Liquidation
// ============================================================================

func TestLiquidation_AfterPriceDrop(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	liquidator := uuid.New()
	treasury := uuid.New()

	if err := c.ProcessEvent(mustVaultRegister(treasury, 0)); err != nil {
		t.Fatalf("vault register failed: %v", err)
	}
	if err := c.ProcessEvent(mustPriceUpdate("ETH", 2_000_00000000, 1)); err != nil {
		t.Fatalf("ETH price failed: %v", err)
	}
	if err := c.ProcessEvent(mustPriceUpdate("USDC", 1_00000000, 1)); err != nil {
		t.Fatalf("USDC price failed: %v", err)
	}
	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	if err := c.ProcessEvent(mustPositionOpen(owner, 10_000, 8_000_000, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	drainOutputs(persistCh)

	// Healthy position cannot be liquidated: $20M collateral vs $8M debt
	if err := c.ProcessEvent(mustLiquidate(liquidator, 1, 2, 1)); err == nil {
		t.Fatal("expected healthy-position rejection, got nil")
	}

	// ETH drops to $900: debt $8M vs collateral $9M, 80% threshold breached
	if err := c.ProcessEvent(mustPriceUpdate("ETH", 900_00000000, 2)); err != nil {
		t.Fatalf("price drop failed: %v", err)
	}
	drainOutputs(persistCh)

	if err := c.ProcessEvent(mustLiquidate(liquidator, 1, 3, 2)); err != nil {
		t.Fatalf("liquidation failed: %v", err)
	}
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	pos, _ := c.Ledger().Position(1)
	if pos.Status != vault.PositionStatusLiquidated {
		t.Errorf("expected Liquidated status, got %v", pos.Status)
	}
	if pos.CollateralAmount != 0 || pos.DebtAmount != 0 {
		t.Errorf("expected zeroed position, got coll=%d debt=%d", pos.CollateralAmount, pos.DebtAmount)
	}

	// Reward is 5% of the 10_000 seized units; remainder goes to treasury
	if got := c.Tokens().BalanceOf(token.UserHolder(liquidator), "ETH"); got != 500 {
		t.Errorf("expected liquidator reward 500 ETH, got %d", got)
	}
	if got := c.Tokens().BalanceOf(token.HolderTreasury, "ETH"); got != 9_500 {
		t.Errorf("expected treasury remainder 9_500 ETH, got %d", got)
	}
}

// ============================================================================
// Test: Leverage Loop
// ============================================================================

func TestLeverageOpen_BuildsLoopedPosition(t *testing.T) {
	c, persistCh, _ := newTestCore()
	caller := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(caller, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	drainOutputs(persistCh)

	// 2 iterations: borrow $10M → swap to 5_000 ETH → redeposit;
	// final borrow of the remaining $5M headroom returns to the caller.
	if err := c.ProcessEvent(mustLeverageOpen(caller, 10_000, 2, 5_000, 1, 0)); err != nil {
		t.Fatalf("leverage open failed: %v", err)
	}
	outputs := drainOutputs(persistCh)
	if len(outputs) == 0 {
		t.Fatal("expected leverage outputs")
	}

	pos, ok := c.Ledger().Position(1)
	if !ok {
		t.Fatal("position 1 not found")
	}
	if pos.CollateralAmount != 15_000 {
		t.Errorf("expected collateral 15_000, got %d", pos.CollateralAmount)
	}
	if pos.DebtAmount != 15_000_000 {
		t.Errorf("expected debt 15_000_000, got %d", pos.DebtAmount)
	}
	if got := c.Tokens().BalanceOf(token.UserHolder(caller), "USDC"); got != 5_000_000 {
		t.Errorf("expected residual 5_000_000 USDC, got %d", got)
	}

	// The builder float must have drained
	for _, asset := range []string{"ETH", "USDC"} {
		if got := c.Tokens().BalanceOf(token.HolderLeverageModule, asset); got != 0 {
			t.Errorf("leverage module retains %d %s", got, asset)
		}
	}
}

func TestLeverageOpen_BelowMinimum_RollsBack(t *testing.T) {
	c, persistCh, _ := newTestCore()
	caller := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(caller, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	drainOutputs(persistCh)

	// Demand more acquired collateral than the loop can produce
	err := c.ProcessEvent(mustLeverageOpen(caller, 10_000, 2, 100_000, 1, 0))
	if err == nil {
		t.Fatal("expected min-amount-out error, got nil")
	}

	// Everything rolled back: no position, wallet untouched
	if _, ok := c.Ledger().Position(1); ok {
		t.Error("expected no position after rollback")
	}
	if got := c.Tokens().BalanceOf(token.UserHolder(caller), "ETH"); got != 10_000 {
		t.Errorf("expected wallet restored to 10_000 ETH, got %d", got)
	}
}

// ============================================================================
// Test: Idempotency
// ============================================================================

func TestIdempotency_DuplicateFund_Ignored(t *testing.T) {
	c, persistCh, _ := newTestCore()
	userID := uuid.New()

	fund := mustWalletFund(userID, "ETH", 1_000, 0)

	if err := c.ProcessEvent(fund); err != nil {
		t.Fatalf("first fund failed: %v", err)
	}
	outputs1 := drainOutputs(persistCh)
	if len(outputs1) != 1 {
		t.Fatalf("expected 1 output on first process, got %d", len(outputs1))
	}

	// Process same event again — should be silently ignored
	if err := c.ProcessEvent(fund); err != nil {
		t.Fatalf("duplicate fund should not error: %v", err)
	}
	outputs2 := drainOutputs(persistCh)
	if len(outputs2) != 0 {
		t.Errorf("expected 0 outputs for duplicate, got %d", len(outputs2))
	}
	if got := c.Tokens().BalanceOf(token.UserHolder(userID), "ETH"); got != 1_000 {
		t.Errorf("expected balance 1_000 after dedup, got %d", got)
	}
}

// ============================================================================
// Test: Sequence Validation
// ============================================================================

func TestSequenceValidation_GapDetected(t *testing.T) {
	c, persistCh, _ := newTestCore()
	userID := uuid.New()

	if err := c.ProcessEvent(mustWalletFund(userID, "ETH", 1_000, 0)); err != nil {
		t.Fatalf("seq 0 failed: %v", err)
	}
	drainOutputs(persistCh)

	// Skip seq 1, send seq 2 — should detect gap
	err := c.ProcessEvent(mustWalletFund(userID, "ETH", 1_000, 2))
	if err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
}

func TestPriceSequence_GapTolerated(t *testing.T) {
	c, persistCh, _ := newTestCore()

	if err := c.ProcessEvent(mustPriceUpdate("ETH", 2_000_00000000, 1)); err != nil {
		t.Fatalf("price seq 1 failed: %v", err)
	}
	drainOutputs(persistCh)

	// Gap from 1 to 7 is fine — each reading carries the full price
	if err := c.ProcessEvent(mustPriceUpdate("ETH", 2_100_00000000, 7)); err != nil {
		t.Fatalf("price gap should be tolerated: %v", err)
	}

	q, ok := c.Oracle().Quote("ETH")
	if !ok || q.RawPrice != 2_100_00000000 {
		t.Errorf("expected latest reading 2100, got %+v", q)
	}

	// Stale reading (lower feed sequence) is skipped silently
	if err := c.ProcessEvent(mustPriceUpdate("ETH", 1_00000000, 3)); err != nil {
		t.Fatalf("stale price should not error: %v", err)
	}
	q, _ = c.Oracle().Quote("ETH")
	if q.RawPrice != 2_100_00000000 {
		t.Errorf("stale reading must not overwrite: got %d", q.RawPrice)
	}
}

// ============================================================================
// Test: State Hash Chain
// ============================================================================

func TestStateHashChain_ReplayIdentical(t *testing.T) {
	owner := uuid.New()
	treasury := uuid.New()
	fundID := uuid.New()
	openID := uuid.New()
	borrowID := uuid.New()

	processAll := func() [][32]byte {
		c, persistCh, _ := newTestCore()

		events := []event.Event{
			mustVaultRegister(treasury, 0),
			mustPriceUpdate("ETH", 2_000_00000000, 1),
			mustPriceUpdate("USDC", 1_00000000, 1),
			&event.WalletFund{FundID: fundID, UserID: owner, Asset: "ETH", Amount: 10_000, Sequence: 0, Timestamp: baseMicros},
			&event.PositionOpen{RequestID: openID, Vault: testVault, OwnerID: owner, CollateralAmount: 10_000, BlockHeight: 1, Sequence: 0, Timestamp: baseMicros},
			&event.DebtBorrow{RequestID: borrowID, Vault: testVault, PositionID: 1, CallerID: owner, Amount: 4_000_000, BlockHeight: 2, Sequence: 1, Timestamp: baseMicros},
		}
		for i, evt := range events {
			if err := c.ProcessEvent(evt); err != nil {
				t.Fatalf("event %d failed: %v", i, err)
			}
		}

		outputs := drainOutputs(persistCh)
		hashes := make([][32]byte, len(outputs))
		for i, o := range outputs {
			copy(hashes[i][:], o.Envelope.StateHash[:])
		}
		return hashes
	}

	hashes1 := processAll()
	hashes2 := processAll()

	if len(hashes1) != len(hashes2) {
		t.Fatalf("different number of outputs: %d vs %d", len(hashes1), len(hashes2))
	}
	for i := range hashes1 {
		if hashes1[i] != hashes2[i] {
			t.Errorf("hash %d differs: %x vs %x", i, hashes1[i], hashes2[i])
		}
	}
}

func TestHashChain_PrevHashLinks(t *testing.T) {
	c, persistCh, _ := newTestCore()
	userID := uuid.New()

	for i := int64(0); i < 3; i++ {
		if err := c.ProcessEvent(mustWalletFund(userID, "ETH", 100, i)); err != nil {
			t.Fatalf("fund %d failed: %v", i, err)
		}
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}
	for i := 1; i < len(outputs); i++ {
		if outputs[i].Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("output %d: prev_hash does not link to previous state_hash", i)
		}
	}
}

// ============================================================================
// Test: Zero-Sum and Envelope Integrity
// ============================================================================

func TestGlobalBalance_ZeroSum(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	if err := c.ProcessEvent(mustPositionOpen(owner, 10_000, 8_000_000, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	drainOutputs(persistCh)

	if err := c.Ledger().Validator().ValidateGlobalBalance(); err != nil {
		t.Errorf("zero-sum violated: %v", err)
	}
	if err := c.Ledger().ValidateAggregates(); err != nil {
		t.Errorf("aggregates violated: %v", err)
	}
}

func TestEnvelope_HasCorrectFields(t *testing.T) {
	c, persistCh, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c, persistCh)

	if err := c.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	drainOutputs(persistCh)

	open := mustPositionOpen(owner, 10_000, 0, 1, 0)
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("position open failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	env := outputs[0].Envelope

	if env.IdempotencyKey != open.IdempotencyKey() {
		t.Errorf("idempotency key mismatch: %s vs %s", env.IdempotencyKey, open.IdempotencyKey())
	}
	if env.EventType != event.EventTypePositionOpen {
		t.Errorf("event type mismatch: %v", env.EventType)
	}
	if env.VaultID == nil || *env.VaultID != testVault {
		t.Errorf("expected vault id %q, got %v", testVault, env.VaultID)
	}
	if env.Timestamp.UnixMicro() != open.Timestamp {
		t.Errorf("timestamp mismatch: %d vs %d", env.Timestamp.UnixMicro(), open.Timestamp)
	}
}

// ============================================================================
// Test: Snapshot / Restore
// ============================================================================

func TestSnapshotRestore_ResumesChain(t *testing.T) {
	c1, persistCh1, _ := newTestCore()
	owner := uuid.New()
	setupVault(t, c1, persistCh1)

	if err := c1.ProcessEvent(mustWalletFund(owner, "ETH", 10_000, 0)); err != nil {
		t.Fatalf("wallet fund failed: %v", err)
	}
	if err := c1.ProcessEvent(mustPositionOpen(owner, 10_000, 4_000_000, 1, 0)); err != nil {
		t.Fatalf("position open failed: %v", err)
	}
	drainOutputs(persistCh1)

	snap := c1.CreateSnapshotState()

	c2, persistCh2, _ := newTestCore()
	if err := c2.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if c2.GetSequence() != c1.GetSequence() {
		t.Errorf("sequence mismatch after restore: %d vs %d", c2.GetSequence(), c1.GetSequence())
	}
	if c2.GetStateHash() != c1.GetStateHash() {
		t.Error("state hash mismatch after restore")
	}
	pos, ok := c2.Ledger().Position(1)
	if !ok || pos.CollateralAmount != 10_000 || pos.DebtAmount != 4_000_000 {
		t.Fatalf("position not restored: %+v", pos)
	}

	// Both cores must produce identical hashes for the next event
	next := mustDebtBorrow(owner, 1, 1_000_000, 2, 1)
	if err := c1.ProcessEvent(next); err != nil {
		t.Fatalf("c1 borrow failed: %v", err)
	}
	if err := c2.ProcessEvent(next); err != nil {
		t.Fatalf("c2 borrow failed: %v", err)
	}
	out1 := drainOutputs(persistCh1)
	out2 := drainOutputs(persistCh2)
	if len(out1) != 1 || len(out2) != 1 {
		t.Fatalf("expected 1 output each, got %d and %d", len(out1), len(out2))
	}
	if out1[0].Envelope.StateHash != out2[0].Envelope.StateHash {
		t.Error("restored core diverged from original on next event")
	}
}

// ============================================================================
// Test: Projection Channel (non-blocking drop)
// ============================================================================

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1) // Tiny buffer — will fill up
	c := core.NewDeterministicCore(0, persistCh, projCh, nil, nil, nil)

	userID := uuid.New()

	for i := int64(0); i < 5; i++ {
		if err := c.ProcessEvent(mustWalletFund(userID, "ETH", 100, i)); err != nil {
			t.Fatalf("ProcessEvent %d failed: %v", i, err)
		}
	}

	// All 5 should succeed (projection drops are silent)
	persistOutputs := drainOutputs(persistCh)
	if len(persistOutputs) != 5 {
		t.Errorf("expected 5 persist outputs, got %d", len(persistOutputs))
	}
}
