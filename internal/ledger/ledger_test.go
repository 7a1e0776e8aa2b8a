package ledger_test

import (
	"testing"

	"VaultLedger/internal/ledger"

	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assetID, _ := ledger.GetAssetID("ETH")
	key := ledger.NewUserAccountKey(userID, ledger.SubTypeCollateral, assetID)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral:ETH"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_TreasuryPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("DAI")
	key := ledger.NewTreasuryAccountKey(assetID)

	path := key.AccountPath()
	if path != "system:treasury:DAI" {
		t.Errorf("got %q, want %q", path, "system:treasury:DAI")
	}
}

func TestAccountKey_LeveragePath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("ETH")
	key := ledger.NewLeverageAccountKey(assetID)

	path := key.AccountPath()
	if path != "system:leverage:ETH" {
		t.Errorf("got %q, want %q", path, "system:leverage:ETH")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("DAI")
	key := ledger.NewExternalSupplyKey(assetID)

	path := key.AccountPath()
	if path != "external:supply:DAI" {
		t.Errorf("got %q, want %q", path, "external:supply:DAI")
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("DAI")
	if !ok {
		t.Fatal("DAI should be a known asset")
	}
	if id == 0 {
		t.Error("DAI asset ID should be non-zero")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	if bt.GetUserWalletBalance(userID, assetID) != 0 {
		t.Error("initial wallet balance should be 0")
	}
	if bt.GetUserDebtOwed(userID, assetID) != 0 {
		t.Error("initial debt should be 0")
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	// Wallet fund: debit user:wallet, credit external:supply
	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	wallet := bt.GetUserWalletBalance(userID, assetID)
	if wallet != 1_000_000 {
		t.Errorf("wallet: got %d, want 1_000_000", wallet)
	}
}

func TestBalanceTracker_DebtOwedFlipsSign(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	ownerID := uuid.New()
	assetID, _ := ledger.GetAssetID("DAI")

	// Debt mint: debit owner:wallet, credit owner:debt
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(ownerID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewUserAccountKey(ownerID, ledger.SubTypeDebt, assetID),
		AssetID:       assetID,
		Amount:        500,
	})

	owed := bt.GetUserDebtOwed(ownerID, assetID)
	if owed != 500 {
		t.Errorf("debt owed: got %d, want 500", owed)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	// Fund wallet
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        1_000_000,
	})

	// Move part into collateral
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeCollateral, assetID),
		CreditAccount: ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		AssetID:       assetID,
		Amount:        300_000,
	})

	// Global balance should still be zero
	totals := bt.ComputeGlobalBalance()
	for aid, total := range totals {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance: %d", aid, total)
		}
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        999,
	})

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}

	if bt.GetUserWalletBalance(userID, assetID) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

func TestBalanceTracker_Restore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        777,
	})

	restored := ledger.NewBalanceTracker()
	restored.Restore(bt.Snapshot())

	if restored.GetUserWalletBalance(userID, assetID) != 777 {
		t.Errorf("restored wallet: got %d, want 777", restored.GetUserWalletBalance(userID, assetID))
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCollateral, assetID),
				CreditAccount: ledger.NewExternalSupplyKey(assetID),
				AssetID:       assetID,
				Amount:        0,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")
	sameAccount := ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCollateral, assetID)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				AssetID:       assetID,
				Amount:        100,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedAsset_Fails(t *testing.T) {
	batchID := uuid.New()
	ethID, _ := ledger.GetAssetID("ETH")
	daiID, _ := ledger.GetAssetID("DAI")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeWallet, ethID),
				CreditAccount: ledger.NewExternalSupplyKey(daiID),
				AssetID:       ethID,
				Amount:        100,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("asset mismatch across accounts should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.SubTypeCollateral, assetID),
				CreditAccount: ledger.NewExternalSupplyKey(assetID),
				AssetID:       assetID,
				Amount:        100,
			},
		},
	}

	err := batch.Validate()
	if err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestGenerator_WalletFundThenDeposit(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	fund, err := jg.GenerateWalletFund(userID, "fund-1", assetID, 10_000, 1_000)
	if err != nil {
		t.Fatalf("GenerateWalletFund failed: %v", err)
	}
	if err := bt.ApplyBatch(fund); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	deposit, err := jg.GenerateCollateralDeposit(userID, 1, "open-1", assetID, 4_000, 1_001)
	if err != nil {
		t.Fatalf("GenerateCollateralDeposit failed: %v", err)
	}
	if err := bt.ApplyBatch(deposit); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetUserWalletBalance(userID, assetID); got != 6_000 {
		t.Errorf("wallet: got %d, want 6_000", got)
	}
	if got := bt.GetUserCollateralBalance(userID, assetID); got != 4_000 {
		t.Errorf("collateral: got %d, want 4_000", got)
	}
}

func TestGenerator_DepositWithoutFunds_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("ETH")

	_, err := jg.GenerateCollateralDeposit(uuid.New(), 1, "open-1", assetID, 100, 1_000)
	if err == nil {
		t.Error("deposit without wallet funds should fail pre-check")
	}
}

func TestGenerator_LiquidationLegs(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	ownerID := uuid.New()
	liquidatorID := uuid.New()
	ethID, _ := ledger.GetAssetID("ETH")
	daiID, _ := ledger.GetAssetID("DAI")

	// Seed: owner holds 1_000 collateral and owes 600 DAI
	fund, _ := jg.GenerateWalletFund(ownerID, "fund-1", ethID, 1_000, 1_000)
	bt.ApplyBatch(fund)
	dep, _ := jg.GenerateCollateralDeposit(ownerID, 7, "open-7", ethID, 1_000, 1_000)
	bt.ApplyBatch(dep)
	mint, _ := jg.GenerateDebtMint(ownerID,
		ledger.NewUserAccountKey(ownerID, ledger.SubTypeWallet, daiID), 7, "borrow-7", daiID, 600, 1_000)
	bt.ApplyBatch(mint)

	batch, err := jg.GenerateLiquidation(ownerID, liquidatorID, 7, "liq-7",
		ethID, 50, 950, daiID, 600, 2_000)
	if err != nil {
		t.Fatalf("GenerateLiquidation failed: %v", err)
	}
	if len(batch.Journals) != 3 {
		t.Fatalf("got %d journals, want 3", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.GetUserCollateralBalance(ownerID, ethID); got != 0 {
		t.Errorf("owner collateral after seizure: got %d, want 0", got)
	}
	if got := bt.GetUserWalletBalance(liquidatorID, ethID); got != 50 {
		t.Errorf("liquidator reward: got %d, want 50", got)
	}
	if got := bt.GetTreasuryBalance(ethID); got != 950 {
		t.Errorf("treasury remainder: got %d, want 950", got)
	}
	if got := bt.GetUserDebtOwed(ownerID, daiID); got != 0 {
		t.Errorf("owner debt after writedown: got %d, want 0", got)
	}
	// Treasury absorbed the writedown in the debt asset
	if got := bt.GetTreasuryBalance(daiID); got != -600 {
		t.Errorf("treasury debt-asset reserve: got %d, want -600", got)
	}
}

func TestGenerator_InverseBatchRollsBack(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")

	fund, _ := jg.GenerateWalletFund(userID, "fund-1", assetID, 500, 1_000)
	bt.ApplyBatch(fund)

	if err := bt.ApplyBatch(fund.Inverse()); err != nil {
		t.Fatalf("applying inverse failed: %v", err)
	}

	if got := bt.GetUserWalletBalance(userID, assetID); got != 0 {
		t.Errorf("wallet after rollback: got %d, want 0", got)
	}

	totals := bt.ComputeGlobalBalance()
	for aid, total := range totals {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance after rollback: %d", aid, total)
		}
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	// Empty ledger — should pass
	err := v.ValidateGlobalBalance()
	if err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	// Add balanced journal
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("ETH")
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.SubTypeWallet, assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        1_000_000,
	})

	// Still zero-sum
	err = v.ValidateGlobalBalance()
	if err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}

func TestInvariantValidator_DebtNonPositive(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	ownerID := uuid.New()
	assetID, _ := ledger.GetAssetID("DAI")

	// Over-repayment pushes the debt account positive
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(ownerID, ledger.SubTypeDebt, assetID),
		CreditAccount: ledger.NewUserAccountKey(ownerID, ledger.SubTypeWallet, assetID),
		AssetID:       assetID,
		Amount:        100,
	})

	if err := v.ValidateUserDebtNonPositive(ownerID, assetID); err == nil {
		t.Error("positive debt balance should fail validation")
	}
}

func TestInvariantValidator_LeverageFloatZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	assetID, _ := ledger.GetAssetID("ETH")

	if err := v.ValidateLeverageFloatZero(assetID); err != nil {
		t.Errorf("empty float should pass: %v", err)
	}

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewLeverageAccountKey(assetID),
		CreditAccount: ledger.NewExternalSupplyKey(assetID),
		AssetID:       assetID,
		Amount:        42,
	})

	if err := v.ValidateLeverageFloatZero(assetID); err == nil {
		t.Error("stuck float should fail validation")
	}
}
