package vault

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"VaultLedger/internal/interest"
	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/token"

	"github.com/google/uuid"
)

// permission is the role an operation requires. A single predicate
// (Engine.authorize) evaluates it at every entry boundary.
type permission int

const (
	permPositionOwner permission = iota
	permLeverageDelegate
	permOwnerOrDelegate
)

// Engine is the position ledger: the authoritative owner of Position records
// and vault configurations. All mutations run through Atomic, which holds the
// per-ledger non-reentrant guard and a rollback session.
type Engine struct {
	configs        map[string]*VaultConfig
	positions      map[int64]*Position
	byVault        map[string][]int64 // Position ids per vault, append-only
	nextPositionID int64

	tokens    *token.Engine
	oracle    *oracle.Adapter
	journal   *ledger.JournalGenerator
	tracker   *ledger.BalanceTracker
	validator *ledger.InvariantValidator
	interest  *interest.Engine

	delegates map[uuid.UUID]bool
	guard     reentrancyGuard
}

func NewEngine(
	tokens *token.Engine,
	oracleAdapter *oracle.Adapter,
	journal *ledger.JournalGenerator,
	tracker *ledger.BalanceTracker,
	interestEngine *interest.Engine,
) *Engine {
	return &Engine{
		configs:        make(map[string]*VaultConfig),
		positions:      make(map[int64]*Position),
		byVault:        make(map[string][]int64),
		nextPositionID: 1,
		tokens:         tokens,
		oracle:         oracleAdapter,
		journal:        journal,
		tracker:        tracker,
		validator:      ledger.NewInvariantValidator(tracker),
		interest:       interestEngine,
		delegates:      make(map[uuid.UUID]bool),
	}
}

// Validator exposes the ledger invariant checks (leverage float drain, global
// zero-sum) to the builder and the core.
func (e *Engine) Validator() *ledger.InvariantValidator {
	return e.validator
}

// Tokens exposes the token engine for read-side checks.
func (e *Engine) Tokens() *token.Engine {
	return e.tokens
}

// SetLeverageDelegate grants or revokes the leverage delegate role.
func (e *Engine) SetLeverageDelegate(id uuid.UUID, allowed bool) {
	if allowed {
		e.delegates[id] = true
		return
	}
	delete(e.delegates, id)
}

// authorize is the single authorization predicate: caller identity against
// the permission the operation requires.
func (e *Engine) authorize(caller uuid.UUID, pos *Position, perm permission) error {
	switch perm {
	case permPositionOwner:
		if caller == pos.Owner {
			return nil
		}
	case permLeverageDelegate:
		if e.delegates[caller] {
			return nil
		}
	case permOwnerOrDelegate:
		if caller == pos.Owner || e.delegates[caller] {
			return nil
		}
	}
	return fmt.Errorf("%w: caller %s on position %d", ErrNotOwner, caller, pos.ID)
}

// lookup resolves a vault config and a position, verifying the position
// belongs to the vault.
func (e *Engine) lookup(vaultID string, positionID int64) (*VaultConfig, *Position, error) {
	cfg, ok := e.configs[vaultID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	pos, ok := e.positions[positionID]
	if !ok || pos.VaultID != vaultID {
		return nil, nil, fmt.Errorf("%w: %d in vault %s", ErrUnknownPosition, positionID, vaultID)
	}
	return cfg, pos, nil
}

// positionValues prices both sides of a position at fresh oracle readings,
// enforcing the staleness window.
func (e *Engine) positionValues(cfg *VaultConfig, collateralAmount, debtAmount int64, asOfSec int64) (*big.Int, *big.Int, error) {
	window := cfg.stalenessWindow()
	collPrice, err := e.oracle.Latest(cfg.CollateralAsset, asOfSec, window)
	if err != nil {
		return nil, nil, err
	}
	debtPrice, err := e.oracle.Latest(cfg.DebtAsset, asOfSec, window)
	if err != nil {
		return nil, nil, err
	}
	return fpmath.AssetValue(collateralAmount, collPrice),
		fpmath.AssetValue(debtAmount, debtPrice), nil
}

// Atomic acquires the non-reentrant guard, runs fn inside a fresh session,
// and commits its batches — or rolls everything back on error.
func (e *Engine) Atomic(op OpContext, fn func(*Session) error) ([]*ledger.Batch, error) {
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.exit()

	s := &Session{engine: e, op: op, seqAtStart: e.journal.Sequence()}
	if err := fn(s); err != nil {
		s.Rollback()
		return nil, err
	}
	return s.Commit(), nil
}

// --- registration and admin ---

// RegisterVault validates and stores a vault configuration and, with a
// nonzero rate, registers the vault with the interest engine.
func (e *Engine) RegisterVault(cfg *VaultConfig, annualRateBips uint64) error {
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, ok := e.configs[cfg.VaultID]; ok {
		return fmt.Errorf("%w: %s", ErrVaultAlreadyExists, cfg.VaultID)
	}

	stored := *cfg
	e.configs[cfg.VaultID] = &stored
	if annualRateBips > 0 && e.interest != nil {
		if err := e.interest.RegisterVault(cfg.VaultID, cfg.DebtAsset, annualRateBips); err != nil {
			delete(e.configs, cfg.VaultID)
			return err
		}
	}
	return nil
}

// UpdateParams applies an admin parameter update, returning one audit record
// per changed field. Updates at or below the config's EffectiveSeq are stale
// and skipped silently.
func (e *Engine) UpdateParams(vaultID string, upd ParamUpdate) ([]ParamChange, error) {
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.exit()

	cfg, ok := e.configs[vaultID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	if upd.EffectiveSeq <= cfg.EffectiveSeq {
		return nil, nil
	}

	next := *cfg
	var changes []ParamChange
	record := func(field string, oldV, newV string) {
		changes = append(changes, ParamChange{Vault: vaultID, Field: field, Old: oldV, New: newV})
	}

	if upd.LTVRatio != nil && *upd.LTVRatio != next.LTVRatio {
		record("ltv_ratio", strconv.FormatUint(next.LTVRatio, 10), strconv.FormatUint(*upd.LTVRatio, 10))
		next.LTVRatio = *upd.LTVRatio
	}
	if upd.LiquidationThreshold != nil && *upd.LiquidationThreshold != next.LiquidationThreshold {
		record("liquidation_threshold",
			strconv.FormatUint(next.LiquidationThreshold, 10), strconv.FormatUint(*upd.LiquidationThreshold, 10))
		next.LiquidationThreshold = *upd.LiquidationThreshold
	}
	if upd.LiquidatorRewardBips != nil && *upd.LiquidatorRewardBips != next.LiquidatorRewardBips {
		record("liquidator_reward_bips",
			strconv.FormatUint(next.LiquidatorRewardBips, 10), strconv.FormatUint(*upd.LiquidatorRewardBips, 10))
		next.LiquidatorRewardBips = *upd.LiquidatorRewardBips
	}
	if upd.TreasuryID != nil && *upd.TreasuryID != next.TreasuryID {
		record("treasury_id", next.TreasuryID.String(), upd.TreasuryID.String())
		next.TreasuryID = *upd.TreasuryID
	}
	next.EffectiveSeq = upd.EffectiveSeq

	if err := next.Validate(); err != nil {
		return nil, err
	}

	if upd.AnnualRateBips != nil && e.interest != nil {
		old, registered := e.interest.Rate(vaultID)
		if !registered {
			if err := e.interest.RegisterVault(vaultID, next.DebtAsset, *upd.AnnualRateBips); err != nil {
				return nil, err
			}
			record("annual_rate_bips", "0", strconv.FormatUint(*upd.AnnualRateBips, 10))
		} else if old != *upd.AnnualRateBips {
			if err := e.interest.SetRate(vaultID, *upd.AnnualRateBips); err != nil {
				return nil, err
			}
			record("annual_rate_bips", strconv.FormatUint(old, 10), strconv.FormatUint(*upd.AnnualRateBips, 10))
		}
	}
	if upd.PeriodBlocks != nil && *upd.PeriodBlocks > 0 && e.interest != nil {
		old := e.interest.PeriodBlocks()
		if old != uint64(*upd.PeriodBlocks) {
			record("period_blocks", strconv.FormatUint(old, 10), strconv.FormatInt(*upd.PeriodBlocks, 10))
			e.interest.SetPeriodBlocks(uint64(*upd.PeriodBlocks))
		}
	}

	*cfg = next
	return changes, nil
}

// --- operation wrappers (guard + session per call) ---

// FundWallet credits a user wallet from the external supply boundary.
func (e *Engine) FundWallet(op OpContext, userID uuid.UUID, asset string, amount int64) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.FundWallet(userID, asset, amount)
	})
}

// OpenPosition creates a position, returning its id and the journal batches.
func (e *Engine) OpenPosition(op OpContext, vaultID string, owner uuid.UUID, collateralAmount, debtAmount int64) (int64, []*ledger.Batch, error) {
	var id int64
	batches, err := e.Atomic(op, func(s *Session) error {
		var err error
		id, err = s.OpenPosition(vaultID, owner, collateralAmount, debtAmount)
		return err
	})
	return id, batches, err
}

func (e *Engine) AddCollateral(op OpContext, vaultID string, positionID int64, caller uuid.UUID, amount int64) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.AddCollateral(vaultID, positionID, caller, amount)
	})
}

func (e *Engine) RemoveCollateral(op OpContext, vaultID string, positionID int64, caller uuid.UUID, amount int64) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.RemoveCollateral(vaultID, positionID, caller, amount)
	})
}

func (e *Engine) Borrow(op OpContext, vaultID string, positionID int64, caller uuid.UUID, beneficiary *uuid.UUID, amount int64) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.Borrow(vaultID, positionID, caller, beneficiary, amount)
	})
}

func (e *Engine) Repay(op OpContext, vaultID string, positionID int64, caller uuid.UUID, amount int64) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.Repay(vaultID, positionID, caller, amount)
	})
}

func (e *Engine) Liquidate(op OpContext, vaultID string, positionID int64, liquidator uuid.UUID) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.Liquidate(vaultID, positionID, liquidator)
	})
}

func (e *Engine) CollectInterest(op OpContext, callerVault, vaultID string, positionID int64) (int64, []*ledger.Batch, error) {
	var due int64
	batches, err := e.Atomic(op, func(s *Session) error {
		var err error
		due, err = s.CollectInterest(callerVault, vaultID, positionID)
		return err
	})
	return due, batches, err
}

func (e *Engine) SweepInterest(op OpContext, vaultID string) (int, []*ledger.Batch, error) {
	var charged int
	batches, err := e.Atomic(op, func(s *Session) error {
		var err error
		charged, err = s.SweepInterest(vaultID)
		return err
	})
	return charged, batches, err
}

func (e *Engine) TreasuryWithdraw(op OpContext, asset string, amount int64, recipient uuid.UUID) ([]*ledger.Batch, error) {
	return e.Atomic(op, func(s *Session) error {
		return s.TreasuryWithdraw(asset, amount, recipient)
	})
}

func (e *Engine) SweepStrays(op OpContext, asset string) (int64, []*ledger.Batch, error) {
	var swept int64
	batches, err := e.Atomic(op, func(s *Session) error {
		var err error
		swept, err = s.SweepStrays(asset)
		return err
	})
	return swept, batches, err
}

// --- read-only queries ---

// Config returns a vault's configuration.
func (e *Engine) Config(vaultID string) (*VaultConfig, bool) {
	cfg, ok := e.configs[vaultID]
	return cfg, ok
}

// Position returns a position by id.
func (e *Engine) Position(positionID int64) (*Position, bool) {
	pos, ok := e.positions[positionID]
	return pos, ok
}

// PositionHealth returns collateralValue * PRECISION / debtValue at fresh
// prices, saturating at MaxInt64 when debt is zero.
func (e *Engine) PositionHealth(vaultID string, positionID int64, asOfSec int64) (int64, error) {
	cfg, pos, err := e.lookup(vaultID, positionID)
	if err != nil {
		return 0, err
	}
	if pos.DebtAmount == 0 {
		return fpmath.HealthInfinite, nil
	}
	collValue, debtValue, err := e.positionValues(cfg, pos.CollateralAmount, pos.DebtAmount, asOfSec)
	if err != nil {
		return 0, err
	}
	return fpmath.HealthRatio(collValue, debtValue), nil
}

// MaxBorrowable returns the additional debt-asset units the position can
// borrow at fresh prices: (collateralValue * ltv / 100 − debtValue) priced in
// debt units, floored at zero.
func (e *Engine) MaxBorrowable(vaultID string, positionID int64, asOfSec int64) (int64, error) {
	cfg, pos, err := e.lookup(vaultID, positionID)
	if err != nil {
		return 0, err
	}
	collValue, debtValue, err := e.positionValues(cfg, pos.CollateralAmount, pos.DebtAmount, asOfSec)
	if err != nil {
		return 0, err
	}
	limit := fpmath.BorrowLimitValue(collValue, cfg.LTVRatio)
	headroom := limit.Sub(limit, debtValue)
	if headroom.Sign() <= 0 {
		return 0, nil
	}
	debtPrice, err := e.oracle.Latest(cfg.DebtAsset, asOfSec, cfg.stalenessWindow())
	if err != nil {
		return 0, err
	}
	return fpmath.UnitsFromValue(headroom, debtPrice)
}

// ValidateAggregates checks that per-user ledger balances equal the sums over
// that user's live positions (the aggregate-consistency invariant).
func (e *Engine) ValidateAggregates() error {
	type userAsset struct {
		user  uuid.UUID
		asset ledger.AssetID
	}
	collateral := make(map[userAsset]int64)
	debt := make(map[userAsset]int64)
	for _, pos := range e.positions {
		cfg := e.configs[pos.VaultID]
		collateral[userAsset{pos.Owner, mustAssetID(cfg.CollateralAsset)}] += pos.CollateralAmount
		debt[userAsset{pos.Owner, mustAssetID(cfg.DebtAsset)}] += pos.DebtAmount
	}
	for key, want := range collateral {
		if got := e.tracker.GetUserCollateralBalance(key.user, key.asset); got != want {
			return fmt.Errorf("collateral aggregate mismatch for %s asset %d: ledger %d, positions %d",
				key.user, key.asset, got, want)
		}
	}
	for key, want := range debt {
		if got := e.tracker.GetUserDebtOwed(key.user, key.asset); got != want {
			return fmt.Errorf("debt aggregate mismatch for %s asset %d: ledger %d, positions %d",
				key.user, key.asset, got, want)
		}
	}
	return nil
}

// --- snapshot support ---

// Positions returns all positions ordered by id (for digests and snapshots).
func (e *Engine) Positions() []*Position {
	result := make([]*Position, 0, len(e.positions))
	for _, pos := range e.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// PositionsInVault returns a vault's position ids in ascending order.
func (e *Engine) PositionsInVault(vaultID string) []int64 {
	ids := make([]int64, len(e.byVault[vaultID]))
	copy(ids, e.byVault[vaultID])
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Configs returns all vault configurations ordered by vault id.
func (e *Engine) Configs() []*VaultConfig {
	result := make([]*VaultConfig, 0, len(e.configs))
	for _, cfg := range e.configs {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VaultID < result[j].VaultID })
	return result
}

// NextPositionID returns the next id to allocate.
func (e *Engine) NextPositionID() int64 {
	return e.nextPositionID
}

// SetNextPositionID pins the allocator (snapshot restore).
func (e *Engine) SetNextPositionID(id int64) {
	e.nextPositionID = id
}

// RestorePosition directly sets a position (snapshot restore).
func (e *Engine) RestorePosition(pos *Position) {
	if _, ok := e.positions[pos.ID]; !ok {
		e.byVault[pos.VaultID] = append(e.byVault[pos.VaultID], pos.ID)
	}
	e.positions[pos.ID] = pos
}

// RestoreConfig directly sets a vault config (snapshot restore), bypassing
// the duplicate check but not validation.
func (e *Engine) RestoreConfig(cfg *VaultConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := *cfg
	e.configs[cfg.VaultID] = &stored
	return nil
}
