package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from vault operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the next batch sequence
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence pins the next batch sequence (used for snapshot restore)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(
	batch *Batch,
	positionID int64,
	debit, credit AccountKey,
	assetID AssetID,
	amount int64,
	journalType JournalType,
) {
	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       batch.BatchID,
		EventRef:      batch.EventRef,
		Sequence:      batch.Sequence,
		PositionID:    positionID,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   journalType,
		Timestamp:     batch.Timestamp,
	})
}

// GenerateWalletFund creates journals for tokens entering a user wallet.
// Moves funds: external:supply → user:wallet
func (jg *JournalGenerator) GenerateWalletFund(
	userID uuid.UUID,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, 0,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		NewExternalSupplyKey(assetID),
		assetID, amount, JournalTypeWalletFund)
	jg.sequence++
	return batch, nil
}

// GenerateCollateralDeposit locks wallet funds as position collateral.
// Moves funds: user:wallet → user:collateral
func (jg *JournalGenerator) GenerateCollateralDeposit(
	userID uuid.UUID,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientWallet(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("collateral deposit pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewUserAccountKey(userID, SubTypeCollateral, assetID),
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		assetID, amount, JournalTypeCollateralDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateCollateralWithdraw releases position collateral back to the wallet.
// Moves funds: user:collateral → user:wallet
func (jg *JournalGenerator) GenerateCollateralWithdraw(
	userID uuid.UUID,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCollateral(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("collateral withdraw pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewUserAccountKey(userID, SubTypeWallet, assetID),
		NewUserAccountKey(userID, SubTypeCollateral, assetID),
		assetID, amount, JournalTypeCollateralWithdraw)
	jg.sequence++
	return batch, nil
}

// GenerateDebtMint creates journals for freshly minted debt. The beneficiary
// account receives the tokens; the position owner's debt account absorbs the
// matching credit and goes (further) negative.
func (jg *JournalGenerator) GenerateDebtMint(
	ownerID uuid.UUID,
	beneficiary AccountKey,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		beneficiary,
		NewUserAccountKey(ownerID, SubTypeDebt, assetID),
		assetID, amount, JournalTypeDebtMint)
	jg.sequence++
	return batch, nil
}

// GenerateDebtBurn creates journals for a repayment: the payer account gives
// up tokens and the owner's debt account moves back toward zero.
func (jg *JournalGenerator) GenerateDebtBurn(
	ownerID uuid.UUID,
	payer AccountKey,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if jg.balanceTracker.GetBalance(payer) < amount {
		return nil, fmt.Errorf("debt burn pre-check failed: %s holds %d, need %d",
			payer.AccountPath(), jg.balanceTracker.GetBalance(payer), amount)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewUserAccountKey(ownerID, SubTypeDebt, assetID),
		payer,
		assetID, amount, JournalTypeDebtBurn)
	jg.sequence++
	return batch, nil
}

// GenerateInterestCharge grows a position's debt without moving tokens: the
// treasury gains the claim, the owner's debt deepens.
func (jg *JournalGenerator) GenerateInterestCharge(
	ownerID uuid.UUID,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewTreasuryAccountKey(assetID),
		NewUserAccountKey(ownerID, SubTypeDebt, assetID),
		assetID, amount, JournalTypeInterestCharge)
	jg.sequence++
	return batch, nil
}

// GenerateLiquidation creates the multi-leg batch for a seizure: the
// liquidator's reward share, the treasury remainder, and the debt writedown
// absorbed by the treasury. Legs with zero amounts are omitted.
func (jg *JournalGenerator) GenerateLiquidation(
	ownerID uuid.UUID,
	liquidatorID uuid.UUID,
	positionID int64,
	eventRef string,
	collateralAssetID AssetID,
	rewardAmount int64,
	remainderAmount int64,
	debtAssetID AssetID,
	writedownAmount int64,
	timestamp int64,
) (*Batch, error) {
	seized := rewardAmount + remainderAmount
	if err := jg.balanceTracker.ValidateSufficientCollateral(ownerID, collateralAssetID, seized); err != nil {
		return nil, fmt.Errorf("liquidation pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 3)

	if rewardAmount > 0 {
		jg.appendJournal(batch, positionID,
			NewUserAccountKey(liquidatorID, SubTypeWallet, collateralAssetID),
			NewUserAccountKey(ownerID, SubTypeCollateral, collateralAssetID),
			collateralAssetID, rewardAmount, JournalTypeLiquidationReward)
	}

	if remainderAmount > 0 {
		jg.appendJournal(batch, positionID,
			NewTreasuryAccountKey(collateralAssetID),
			NewUserAccountKey(ownerID, SubTypeCollateral, collateralAssetID),
			collateralAssetID, remainderAmount, JournalTypeLiquidationRemainder)
	}

	if writedownAmount > 0 {
		jg.appendJournal(batch, positionID,
			NewUserAccountKey(ownerID, SubTypeDebt, debtAssetID),
			NewTreasuryAccountKey(debtAssetID),
			debtAssetID, writedownAmount, JournalTypeLiquidationWritedown)
	}

	if len(batch.Journals) == 0 {
		return nil, fmt.Errorf("liquidation of position %d produced no journals", positionID)
	}

	jg.sequence++
	return batch, nil
}

// GenerateTreasuryWithdraw pays treasury holdings out to a recipient wallet.
func (jg *JournalGenerator) GenerateTreasuryWithdraw(
	recipientID uuid.UUID,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if jg.balanceTracker.GetTreasuryBalance(assetID) < amount {
		return nil, fmt.Errorf("treasury withdraw pre-check failed: have=%d, need=%d",
			jg.balanceTracker.GetTreasuryBalance(assetID), amount)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, 0,
		NewUserAccountKey(recipientID, SubTypeWallet, assetID),
		NewTreasuryAccountKey(assetID),
		assetID, amount, JournalTypeTreasuryWithdraw)
	jg.sequence++
	return batch, nil
}

// GenerateStraySweep pulls un-journaled tokens held by the vault module
// account into the treasury. The tokens never crossed the ledger before, so
// they enter through the external boundary.
func (jg *JournalGenerator) GenerateStraySweep(
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, 0,
		NewTreasuryAccountKey(assetID),
		NewExternalSupplyKey(assetID),
		assetID, amount, JournalTypeStraySweep)
	jg.sequence++
	return batch, nil
}

// GenerateLeverageSwap records one router swap inside the leverage loop: the
// input asset leaves the builder float to the external boundary and the
// output asset arrives from it.
func (jg *JournalGenerator) GenerateLeverageSwap(
	positionID int64,
	eventRef string,
	inAssetID AssetID,
	amountIn int64,
	outAssetID AssetID,
	amountOut int64,
	timestamp int64,
) (*Batch, error) {
	if jg.balanceTracker.GetLeverageFloat(inAssetID) < amountIn {
		return nil, fmt.Errorf("leverage swap pre-check failed: float holds %d, swap wants %d",
			jg.balanceTracker.GetLeverageFloat(inAssetID), amountIn)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	jg.appendJournal(batch, positionID,
		NewExternalSupplyKey(inAssetID),
		NewLeverageAccountKey(inAssetID),
		inAssetID, amountIn, JournalTypeLeverageSwap)
	jg.appendJournal(batch, positionID,
		NewLeverageAccountKey(outAssetID),
		NewExternalSupplyKey(outAssetID),
		outAssetID, amountOut, JournalTypeLeverageSwap)
	jg.sequence++
	return batch, nil
}

// GenerateLeverageDeposit moves swap output from the builder float into the
// owner's position collateral.
func (jg *JournalGenerator) GenerateLeverageDeposit(
	ownerID uuid.UUID,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if jg.balanceTracker.GetLeverageFloat(assetID) < amount {
		return nil, fmt.Errorf("leverage deposit pre-check failed: float holds %d, deposit wants %d",
			jg.balanceTracker.GetLeverageFloat(assetID), amount)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewUserAccountKey(ownerID, SubTypeCollateral, assetID),
		NewLeverageAccountKey(assetID),
		assetID, amount, JournalTypeLeverageDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateLeverageResidual returns leftover builder holdings to the caller's
// wallet after the loop finishes, draining the float back to zero.
func (jg *JournalGenerator) GenerateLeverageResidual(
	callerID uuid.UUID,
	positionID int64,
	eventRef string,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if jg.balanceTracker.GetLeverageFloat(assetID) < amount {
		return nil, fmt.Errorf("leverage residual pre-check failed: float holds %d, payout wants %d",
			jg.balanceTracker.GetLeverageFloat(assetID), amount)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch, positionID,
		NewUserAccountKey(callerID, SubTypeWallet, assetID),
		NewLeverageAccountKey(assetID),
		assetID, amount, JournalTypeLeverageResidual)
	jg.sequence++
	return batch, nil
}
