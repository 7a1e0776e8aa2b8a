package vault

import (
	"fmt"

	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/token"

	"github.com/google/uuid"
)

// OpContext carries the versioned inputs of the driving event. The engine
// never reads the wall clock; block height and timestamps come from here.
type OpContext struct {
	EventRef    string // Idempotency key of the driving event
	BlockHeight int64
	Timestamp   int64 // Epoch microseconds (versioned input)
}

func (op OpContext) asOfSeconds() int64 {
	return op.Timestamp / 1_000_000
}

// Session is one atomic mutation scope: all journal batches, token moves,
// position writes, and interest-state advances inside it commit together or
// roll back together. Created only through Engine.Atomic, which also holds
// the non-reentrant guard for the session's lifetime.
type Session struct {
	engine     *Engine
	op         OpContext
	batches    []*ledger.Batch
	undo       []func()
	seqAtStart int64
}

// Record adds a committed batch to the session output. The batch must already
// be applied to the balance tracker.
func (s *Session) Record(b *ledger.Batch) {
	s.batches = append(s.batches, b)
}

// onUndo registers a rollback action. Actions run in reverse order.
func (s *Session) onUndo(fn func()) {
	s.undo = append(s.undo, fn)
}

// Commit releases the session's batches to the caller.
func (s *Session) Commit() []*ledger.Batch {
	return s.batches
}

// Rollback restores every balance, position, token, and interest mutation
// made inside the session, leaving no trace of the failed operation.
func (s *Session) Rollback() {
	for i := len(s.batches) - 1; i >= 0; i-- {
		inv := s.batches[i].Inverse()
		if err := s.engine.tracker.ApplyBatch(inv); err != nil {
			// Inverse of an applied batch is always valid; failure here means
			// the ledger itself is corrupt.
			panic(fmt.Sprintf("FATAL: rollback batch apply failed: %v", err))
		}
	}
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.batches = nil
	s.undo = nil
	s.engine.journal.SetSequence(s.seqAtStart)
}

// --- internal helpers ---

// applyBatch validates a generated batch, applies it to the balance tracker,
// and records it for commit.
func (s *Session) applyBatch(b *ledger.Batch) error {
	if err := s.engine.tracker.ApplyBatch(b); err != nil {
		return fmt.Errorf("apply batch %s: %w", b.BatchID, err)
	}
	s.Record(b)
	return nil
}

// savePosition snapshots a position for rollback. Call before mutating.
func (s *Session) savePosition(pos *Position) {
	prev := *pos
	s.onUndo(func() { *pos = prev })
}

func (s *Session) tokenMint(to token.Holder, asset string, amount int64) error {
	prev := s.engine.tokens.BalanceOf(to, asset)
	if err := s.engine.tokens.Mint(to, asset, amount); err != nil {
		return err
	}
	s.onUndo(func() { s.engine.tokens.SetBalance(to, asset, prev) })
	return nil
}

func (s *Session) tokenBurn(from token.Holder, asset string, amount int64) error {
	prev := s.engine.tokens.BalanceOf(from, asset)
	if err := s.engine.tokens.Burn(from, asset, amount); err != nil {
		return err
	}
	s.onUndo(func() { s.engine.tokens.SetBalance(from, asset, prev) })
	return nil
}

func (s *Session) tokenTransfer(from, to token.Holder, asset string, amount int64) error {
	prevFrom := s.engine.tokens.BalanceOf(from, asset)
	prevTo := s.engine.tokens.BalanceOf(to, asset)
	// Register the undo before the transfer: the hook fires inside Transfer
	// and its error surfaces after balances moved.
	s.onUndo(func() {
		s.engine.tokens.SetBalance(from, asset, prevFrom)
		s.engine.tokens.SetBalance(to, asset, prevTo)
	})
	return s.engine.tokens.Transfer(from, to, asset, amount)
}

// chargeInterest folds accrued interest into the position's debt. Invoked
// before every operation that reads or mutates debt, so health checks and
// borrow limits always see up-to-date principal.
func (s *Session) chargeInterest(cfg *VaultConfig, pos *Position) error {
	ie := s.engine.interest
	if ie == nil || !ie.Registered(cfg.VaultID) || pos.DebtAmount <= 0 {
		return nil
	}

	prevLast := ie.LastBlock(cfg.VaultID, pos.ID)
	prevPool := ie.Pool(cfg.DebtAsset)
	due, err := ie.CollectInterest(cfg.VaultID, cfg.VaultID, pos.ID, pos.DebtAmount, uint64(s.op.BlockHeight))
	if err != nil {
		return fmt.Errorf("charge interest on position %d: %w", pos.ID, err)
	}
	if due == 0 {
		return nil // Not yet period-ready
	}
	s.onUndo(func() {
		ie.SetLastBlock(cfg.VaultID, pos.ID, prevLast)
		ie.SetPool(cfg.DebtAsset, prevPool)
	})

	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	batch, err := s.engine.journal.GenerateInterestCharge(
		pos.Owner, pos.ID, s.op.EventRef, debtAssetID, due, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.DebtAmount += due
	pos.Version++
	return nil
}

// --- operations ---

// FundWallet credits a user wallet from the external supply boundary.
func (s *Session) FundWallet(userID uuid.UUID, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: fund %d", ErrInvalidAmount, amount)
	}
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	if err := s.tokenMint(token.UserHolder(userID), asset, amount); err != nil {
		return err
	}
	batch, err := s.engine.journal.GenerateWalletFund(userID, s.op.EventRef, assetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	return s.applyBatch(batch)
}

// OpenPosition pulls collateral from the owner's wallet, allocates the next
// position id, mints the optional initial debt, and activates interest
// accrual at the current block.
func (s *Session) OpenPosition(vaultID string, owner uuid.UUID, collateralAmount, debtAmount int64) (int64, error) {
	e := s.engine
	cfg, ok := e.configs[vaultID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	if collateralAmount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCollateralAmount, collateralAmount)
	}
	if debtAmount < 0 {
		return 0, fmt.Errorf("%w: debt %d", ErrInvalidAmount, debtAmount)
	}
	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)

	// Pull collateral from the owner's wallet into the vault module.
	if err := s.tokenTransfer(token.UserHolder(owner), token.HolderVaultModule,
		cfg.CollateralAsset, collateralAmount); err != nil {
		return 0, err
	}

	id := e.nextPositionID
	pos := &Position{
		ID:               id,
		VaultID:          vaultID,
		Owner:            owner,
		CollateralAmount: collateralAmount,
		Status:           PositionStatusActive,
		OpenedBlock:      s.op.BlockHeight,
		Version:          1,
	}
	e.positions[id] = pos
	e.byVault[vaultID] = append(e.byVault[vaultID], id)
	e.nextPositionID++
	s.onUndo(func() {
		delete(e.positions, id)
		ids := e.byVault[vaultID]
		e.byVault[vaultID] = ids[:len(ids)-1]
		e.nextPositionID = id
	})

	batch, err := e.journal.GenerateCollateralDeposit(
		owner, id, s.op.EventRef, collateralAssetID, collateralAmount, s.op.Timestamp)
	if err != nil {
		return 0, err
	}
	if err := s.applyBatch(batch); err != nil {
		return 0, err
	}

	if debtAmount > 0 {
		if err := s.mintDebt(cfg, pos, token.UserHolder(owner),
			ledger.NewUserAccountKey(owner, ledger.SubTypeWallet, mustAssetID(cfg.DebtAsset)), debtAmount); err != nil {
			return 0, err
		}
	}

	if e.interest != nil && e.interest.Registered(vaultID) {
		prevLast := e.interest.LastBlock(vaultID, id)
		e.interest.Activate(vaultID, id, uint64(s.op.BlockHeight))
		s.onUndo(func() { e.interest.SetLastBlock(vaultID, id, prevLast) })
	}

	return id, nil
}

// mintDebt checks the borrow limit with interest-folded debt and fresh oracle
// prices, then mints debt asset to the beneficiary.
func (s *Session) mintDebt(cfg *VaultConfig, pos *Position, beneficiary token.Holder, beneficiaryKey ledger.AccountKey, amount int64) error {
	newDebt := pos.DebtAmount + amount
	collValue, debtValue, err := s.engine.positionValues(cfg, pos.CollateralAmount, newDebt, s.op.asOfSeconds())
	if err != nil {
		return err
	}
	if !fpmath.WithinBorrowLimit(collValue, debtValue, cfg.LTVRatio) {
		return fmt.Errorf("%w: position %d debt %d", ErrLoanExceedsLTVLimit, pos.ID, newDebt)
	}

	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	batch, err := s.engine.journal.GenerateDebtMint(
		pos.Owner, beneficiaryKey, pos.ID, s.op.EventRef, debtAssetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	if err := s.tokenMint(beneficiary, cfg.DebtAsset, amount); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.DebtAmount = newDebt
	pos.Version++
	return nil
}

// AddCollateral tops up a position. Owner or leverage delegate may trigger
// it; the collateral is always pulled from the owner's wallet. The invariant
// only gains slack, so no borrow-limit re-check is needed.
func (s *Session) AddCollateral(vaultID string, positionID int64, caller uuid.UUID, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if err := s.engine.authorize(caller, pos, permOwnerOrDelegate); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCollateralAmount, amount)
	}

	if err := s.tokenTransfer(token.UserHolder(pos.Owner), token.HolderVaultModule,
		cfg.CollateralAsset, amount); err != nil {
		return err
	}
	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)
	batch, err := s.engine.journal.GenerateCollateralDeposit(
		pos.Owner, positionID, s.op.EventRef, collateralAssetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.CollateralAmount += amount
	pos.Version++
	return nil
}

// RemoveCollateral releases collateral back to the owner's wallet, re-checking
// the borrow limit against remaining collateral and interest-folded debt.
func (s *Session) RemoveCollateral(vaultID string, positionID int64, caller uuid.UUID, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if err := s.engine.authorize(caller, pos, permPositionOwner); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCollateralAmount, amount)
	}
	if err := s.chargeInterest(cfg, pos); err != nil {
		return err
	}
	if amount > pos.CollateralAmount {
		return fmt.Errorf("%w: have %d, remove %d",
			ErrInsufficientCollateralAfterWithdrawal, pos.CollateralAmount, amount)
	}

	remaining := pos.CollateralAmount - amount
	if pos.DebtAmount > 0 {
		collValue, debtValue, err := s.engine.positionValues(cfg, remaining, pos.DebtAmount, s.op.asOfSeconds())
		if err != nil {
			return err
		}
		if !fpmath.WithinBorrowLimit(collValue, debtValue, cfg.LTVRatio) {
			return fmt.Errorf("%w: position %d remaining %d",
				ErrInsufficientCollateralAfterWithdrawal, positionID, remaining)
		}
	}

	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)
	batch, err := s.engine.journal.GenerateCollateralWithdraw(
		pos.Owner, positionID, s.op.EventRef, collateralAssetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	if err := s.tokenTransfer(token.HolderVaultModule, token.UserHolder(pos.Owner),
		cfg.CollateralAsset, amount); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.CollateralAmount = remaining
	if pos.CollateralAmount == 0 && pos.DebtAmount == 0 {
		pos.Status = PositionStatusClosed
	}
	pos.Version++
	return nil
}

// Borrow mints debt asset against the position. With a beneficiary set, the
// caller must hold the leverage delegate role; otherwise owner only.
func (s *Session) Borrow(vaultID string, positionID int64, caller uuid.UUID, beneficiary *uuid.UUID, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	recipient := caller
	if beneficiary != nil && *beneficiary != caller {
		if err := s.engine.authorize(caller, pos, permLeverageDelegate); err != nil {
			return err
		}
		recipient = *beneficiary
	} else {
		if err := s.engine.authorize(caller, pos, permPositionOwner); err != nil {
			return err
		}
	}
	if amount <= 0 {
		return fmt.Errorf("%w: borrow %d", ErrInvalidAmount, amount)
	}
	if err := s.chargeInterest(cfg, pos); err != nil {
		return err
	}
	return s.mintDebt(cfg, pos, token.UserHolder(recipient),
		ledger.NewUserAccountKey(recipient, ledger.SubTypeWallet, mustAssetID(cfg.DebtAsset)), amount)
}

// BorrowToFloat mints debt to the leverage builder's float. Internal to the
// leverage loop; authorization happened at the loop boundary.
func (s *Session) BorrowToFloat(vaultID string, positionID int64, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: borrow %d", ErrInvalidAmount, amount)
	}
	if err := s.chargeInterest(cfg, pos); err != nil {
		return err
	}
	return s.mintDebt(cfg, pos, token.HolderLeverageModule,
		ledger.NewLeverageAccountKey(mustAssetID(cfg.DebtAsset)), amount)
}

// Repay burns debt asset from the caller's wallet. Permissionless; amounts
// above the outstanding loan are rejected, never clamped.
func (s *Session) Repay(vaultID string, positionID int64, caller uuid.UUID, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: repay %d", ErrInvalidAmount, amount)
	}
	if err := s.chargeInterest(cfg, pos); err != nil {
		return err
	}
	if amount > pos.DebtAmount {
		return fmt.Errorf("%w: debt %d, repay %d", ErrAmountExceedsLoan, pos.DebtAmount, amount)
	}

	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	batch, err := s.engine.journal.GenerateDebtBurn(
		pos.Owner, ledger.NewUserAccountKey(caller, ledger.SubTypeWallet, debtAssetID),
		positionID, s.op.EventRef, debtAssetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	if err := s.tokenBurn(token.UserHolder(caller), cfg.DebtAsset, amount); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.DebtAmount -= amount
	if pos.CollateralAmount == 0 && pos.DebtAmount == 0 {
		pos.Status = PositionStatusClosed
	}
	pos.Version++
	return nil
}

// Liquidate seizes all collateral of an unhealthy position: the reward share
// to the liquidator's wallet, the remainder to the treasury. Outstanding
// debt-asset supply is not burned; the treasury absorbs the write-down.
func (s *Session) Liquidate(vaultID string, positionID int64, liquidator uuid.UUID) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if err := s.chargeInterest(cfg, pos); err != nil {
		return err
	}
	if pos.DebtAmount == 0 {
		return fmt.Errorf("%w: position %d has no debt", ErrPositionHealthy, positionID)
	}

	collValue, debtValue, err := s.engine.positionValues(cfg, pos.CollateralAmount, pos.DebtAmount, s.op.asOfSeconds())
	if err != nil {
		return err
	}
	if !fpmath.Liquidatable(collValue, debtValue, cfg.LiquidationThreshold) {
		return fmt.Errorf("%w: position %d", ErrPositionHealthy, positionID)
	}

	seized := pos.CollateralAmount
	reward := fpmath.RewardShare(seized, cfg.LiquidatorRewardBips)
	remainder := seized - reward
	writedown := pos.DebtAmount

	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)
	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	batch, err := s.engine.journal.GenerateLiquidation(
		pos.Owner, liquidator, positionID, s.op.EventRef,
		collateralAssetID, reward, remainder,
		debtAssetID, writedown, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}

	if reward > 0 {
		if err := s.tokenTransfer(token.HolderVaultModule, token.UserHolder(liquidator),
			cfg.CollateralAsset, reward); err != nil {
			return err
		}
	}
	if remainder > 0 {
		if err := s.tokenTransfer(token.HolderVaultModule, token.HolderTreasury,
			cfg.CollateralAsset, remainder); err != nil {
			return err
		}
	}

	s.savePosition(pos)
	pos.CollateralAmount = 0
	pos.DebtAmount = 0
	pos.Status = PositionStatusLiquidated
	pos.Version++
	return nil
}

// CollectInterest is the explicit single-position collection entry point.
// callerVault must equal vaultID; errors from the accrual engine (not the
// vault, zero interest while period-ready) propagate to the caller.
func (s *Session) CollectInterest(callerVault, vaultID string, positionID int64) (int64, error) {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return 0, err
	}
	ie := s.engine.interest
	if ie == nil {
		return 0, nil
	}

	prevLast := ie.LastBlock(vaultID, positionID)
	prevPool := ie.Pool(cfg.DebtAsset)
	due, err := ie.CollectInterest(callerVault, vaultID, positionID, pos.DebtAmount, uint64(s.op.BlockHeight))
	if err != nil {
		return 0, err
	}
	if due == 0 {
		return 0, nil
	}
	s.onUndo(func() {
		ie.SetLastBlock(vaultID, positionID, prevLast)
		ie.SetPool(cfg.DebtAsset, prevPool)
	})

	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	batch, err := s.engine.journal.GenerateInterestCharge(
		pos.Owner, positionID, s.op.EventRef, debtAssetID, due, s.op.Timestamp)
	if err != nil {
		return 0, err
	}
	if err := s.applyBatch(batch); err != nil {
		return 0, err
	}

	s.savePosition(pos)
	pos.DebtAmount += due
	pos.Version++
	return due, nil
}

// SweepInterest charges every period-ready position in the vault, ascending
// by position id. Returns the number of positions charged.
func (s *Session) SweepInterest(vaultID string) (int, error) {
	e := s.engine
	cfg, ok := e.configs[vaultID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	if e.interest == nil || !e.interest.Registered(vaultID) {
		return 0, nil
	}

	ids := e.byVault[vaultID]
	sweep := make([]fpmath.PositionForSweep, 0, len(ids))
	prevLast := make(map[int64]uint64, len(ids))
	for _, id := range ids {
		pos := e.positions[id]
		last := e.interest.LastBlock(vaultID, id)
		prevLast[id] = last
		sweep = append(sweep, fpmath.PositionForSweep{
			PositionID: id,
			DebtAmount: pos.DebtAmount,
			LastBlock:  last,
		})
	}

	prevPool := e.interest.Pool(cfg.DebtAsset)
	charges, err := e.interest.Sweep(vaultID, sweep, uint64(s.op.BlockHeight))
	if err != nil {
		return 0, err
	}
	if len(charges) == 0 {
		return 0, nil
	}
	s.onUndo(func() {
		for id, last := range prevLast {
			e.interest.SetLastBlock(vaultID, id, last)
		}
		e.interest.SetPool(cfg.DebtAsset, prevPool)
	})

	debtAssetID, _ := ledger.GetAssetID(cfg.DebtAsset)
	for _, charge := range charges {
		pos := e.positions[charge.PositionID]
		batch, err := e.journal.GenerateInterestCharge(
			pos.Owner, charge.PositionID, s.op.EventRef, debtAssetID, charge.Amount, s.op.Timestamp)
		if err != nil {
			return 0, err
		}
		if err := s.applyBatch(batch); err != nil {
			return 0, err
		}
		s.savePosition(pos)
		pos.DebtAmount += charge.Amount
		pos.Version++
	}
	return len(charges), nil
}

// TreasuryWithdraw pays treasury holdings out to a recipient's wallet.
// Token-side, liquidation remainders are transferable as-is; interest-sourced
// value exists only as a journal claim, so the shortfall is minted against it.
func (s *Session) TreasuryWithdraw(asset string, amount int64, recipient uuid.UUID) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw %d", ErrInvalidAmount, amount)
	}
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}

	batch, err := s.engine.journal.GenerateTreasuryWithdraw(
		recipient, s.op.EventRef, assetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}

	held := s.engine.tokens.BalanceOf(token.HolderTreasury, asset)
	transferable := amount
	if transferable > held {
		transferable = held
	}
	if transferable > 0 {
		if err := s.tokenTransfer(token.HolderTreasury, token.UserHolder(recipient), asset, transferable); err != nil {
			return err
		}
	}
	if shortfall := amount - transferable; shortfall > 0 {
		if err := s.tokenMint(token.UserHolder(recipient), asset, shortfall); err != nil {
			return err
		}
	}

	if s.engine.interest != nil {
		prevPool := s.engine.interest.Pool(asset)
		s.engine.interest.TakeFromPool(asset, amount)
		s.onUndo(func() { s.engine.interest.SetPool(asset, prevPool) })
	}
	return nil
}

// SweepStrays moves tokens stranded on the vault module account (held beyond
// journaled collateral) into the treasury. Returns the amount swept; zero
// strays is a silent no-op.
func (s *Session) SweepStrays(asset string) (int64, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}

	held := s.engine.tokens.BalanceOf(token.HolderVaultModule, asset)
	locked := s.engine.tracker.TotalCollateral(assetID)
	stray := held - locked
	if stray <= 0 {
		return 0, nil
	}

	if err := s.tokenTransfer(token.HolderVaultModule, token.HolderTreasury, asset, stray); err != nil {
		return 0, err
	}
	batch, err := s.engine.journal.GenerateStraySweep(s.op.EventRef, assetID, stray, s.op.Timestamp)
	if err != nil {
		return 0, err
	}
	if err := s.applyBatch(batch); err != nil {
		return 0, err
	}
	return stray, nil
}

// LeverageSwap records one router swap inside the leverage loop: the builder
// float gives up the input asset and receives the output asset across the
// external boundary.
func (s *Session) LeverageSwap(positionID int64, inAsset string, amountIn int64, outAsset string, amountOut int64) error {
	inAssetID, ok := ledger.GetAssetID(inAsset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, inAsset)
	}
	outAssetID, ok := ledger.GetAssetID(outAsset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, outAsset)
	}

	batch, err := s.engine.journal.GenerateLeverageSwap(
		positionID, s.op.EventRef, inAssetID, amountIn, outAssetID, amountOut, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	if err := s.tokenBurn(token.HolderLeverageModule, inAsset, amountIn); err != nil {
		return err
	}
	return s.tokenMint(token.HolderLeverageModule, outAsset, amountOut)
}

// DepositFromFloat moves swap output from the builder float into the
// position's collateral.
func (s *Session) DepositFromFloat(vaultID string, positionID int64, amount int64) error {
	cfg, pos, err := s.engine.lookup(vaultID, positionID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCollateralAmount, amount)
	}

	collateralAssetID, _ := ledger.GetAssetID(cfg.CollateralAsset)
	batch, err := s.engine.journal.GenerateLeverageDeposit(
		pos.Owner, positionID, s.op.EventRef, collateralAssetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	if err := s.tokenTransfer(token.HolderLeverageModule, token.HolderVaultModule,
		cfg.CollateralAsset, amount); err != nil {
		return err
	}

	s.savePosition(pos)
	pos.CollateralAmount += amount
	pos.Version++
	return nil
}

// ResidualToCaller returns leftover builder holdings to the caller's wallet,
// draining the float back to zero.
func (s *Session) ResidualToCaller(positionID int64, caller uuid.UUID, asset string, amount int64) error {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAsset, asset)
	}
	batch, err := s.engine.journal.GenerateLeverageResidual(
		caller, positionID, s.op.EventRef, assetID, amount, s.op.Timestamp)
	if err != nil {
		return err
	}
	if err := s.applyBatch(batch); err != nil {
		return err
	}
	return s.tokenTransfer(token.HolderLeverageModule, token.UserHolder(caller), asset, amount)
}

func mustAssetID(asset string) ledger.AssetID {
	id, ok := ledger.GetAssetID(asset)
	if !ok {
		panic(fmt.Sprintf("FATAL: unvalidated asset %q reached the ledger", asset))
	}
	return id
}
