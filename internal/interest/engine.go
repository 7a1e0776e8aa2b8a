package interest

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	fpmath "VaultLedger/internal/math"
)

var (
	// ErrVaultAlreadyRegistered rejects a second registration for a vault.
	ErrVaultAlreadyRegistered = errors.New("interest: vault already registered")

	// ErrZeroInterestRate rejects registration or rate updates with a zero rate.
	ErrZeroInterestRate = errors.New("interest: zero interest rate")

	// ErrVaultNotCaller rejects collection attempts by anyone other than the
	// registered vault itself.
	ErrVaultNotCaller = errors.New("interest: caller is not the registered vault")

	// ErrNoInterestToCollect fires when a position is period-ready but the
	// computed charge is zero. Reachable only with zero debt.
	ErrNoInterestToCollect = errors.New("interest: no interest to collect")

	// ErrUnknownVault is returned for operations on an unregistered vault.
	ErrUnknownVault = errors.New("interest: unknown vault")
)

// DefaultPeriodBlocks is the accrual granularity: interest is charged only in
// whole multiples of this many blocks.
const DefaultPeriodBlocks = 7_200

// DefaultBlocksPerYear assumes ~12s blocks.
const DefaultBlocksPerYear = 2_628_000

type vaultRate struct {
	DebtAsset      string
	AnnualRateBips uint64
}

type stateKey struct {
	Vault    string
	Position int64
}

// Engine owns per-(vault, position) accrual state and the treasury pool.
// Single-writer: only the deterministic core mutates it. It is the sole
// writer of LastCollectionBlock.
type Engine struct {
	vaults map[string]vaultRate
	last   map[stateKey]uint64 // 0 sentinel = never activated
	pool   map[string]int64    // accumulated interest keyed by debt asset

	periodBlocks  uint64
	blocksPerYear uint64
	periodShare   *big.Int // periodBlocks * Precision / blocksPerYear
}

func NewEngine(periodBlocks, blocksPerYear uint64) *Engine {
	if periodBlocks == 0 {
		periodBlocks = DefaultPeriodBlocks
	}
	if blocksPerYear == 0 {
		blocksPerYear = DefaultBlocksPerYear
	}
	return &Engine{
		vaults:        make(map[string]vaultRate),
		last:          make(map[stateKey]uint64),
		pool:          make(map[string]int64),
		periodBlocks:  periodBlocks,
		blocksPerYear: blocksPerYear,
		periodShare:   fpmath.PeriodShare(periodBlocks, blocksPerYear),
	}
}

// RegisterVault binds a vault to its debt asset and annual rate. One-time.
func (e *Engine) RegisterVault(vaultID, debtAsset string, annualRateBips uint64) error {
	if _, ok := e.vaults[vaultID]; ok {
		return fmt.Errorf("%w: %s", ErrVaultAlreadyRegistered, vaultID)
	}
	if annualRateBips == 0 {
		return fmt.Errorf("%w: %s", ErrZeroInterestRate, vaultID)
	}
	e.vaults[vaultID] = vaultRate{DebtAsset: debtAsset, AnnualRateBips: annualRateBips}
	return nil
}

// SetRate updates a registered vault's annual rate (admin path).
func (e *Engine) SetRate(vaultID string, annualRateBips uint64) error {
	vr, ok := e.vaults[vaultID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	if annualRateBips == 0 {
		return fmt.Errorf("%w: %s", ErrZeroInterestRate, vaultID)
	}
	vr.AnnualRateBips = annualRateBips
	e.vaults[vaultID] = vr
	return nil
}

// SetPeriodBlocks changes the accrual granularity and recomputes the period
// share (admin path).
func (e *Engine) SetPeriodBlocks(blocks uint64) {
	if blocks == 0 {
		return
	}
	e.periodBlocks = blocks
	e.periodShare = fpmath.PeriodShare(blocks, e.blocksPerYear)
}

func (e *Engine) PeriodBlocks() uint64 {
	return e.periodBlocks
}

// Registered reports whether the vault has an interest rate bound.
func (e *Engine) Registered(vaultID string) bool {
	_, ok := e.vaults[vaultID]
	return ok
}

// Rate returns the vault's annual rate in basis points.
func (e *Engine) Rate(vaultID string) (uint64, bool) {
	vr, ok := e.vaults[vaultID]
	return vr.AnnualRateBips, ok
}

// Activate starts accrual for a position at the given block. A position that
// was never activated accrues nothing regardless of elapsed blocks.
func (e *Engine) Activate(vaultID string, positionID int64, block uint64) {
	if block == 0 {
		return // 0 is the never-activated sentinel
	}
	e.last[stateKey{Vault: vaultID, Position: positionID}] = block
}

// LastBlock returns the position's last collection block (0 = never activated).
func (e *Engine) LastBlock(vaultID string, positionID int64) uint64 {
	return e.last[stateKey{Vault: vaultID, Position: positionID}]
}

// SetLastBlock directly sets a position's collection block (snapshot restore
// and session rollback).
func (e *Engine) SetLastBlock(vaultID string, positionID int64, block uint64) {
	key := stateKey{Vault: vaultID, Position: positionID}
	if block == 0 {
		delete(e.last, key)
		return
	}
	e.last[key] = block
}

// CalculateInterestDue computes the charge without mutating state. Returns 0
// when the vault has no rate, the position was never activated, debt is zero,
// or no whole period has elapsed.
func (e *Engine) CalculateInterestDue(vaultID string, positionID int64, debtAmount int64, currentBlock uint64) int64 {
	vr, ok := e.vaults[vaultID]
	if !ok || debtAmount <= 0 {
		return 0
	}
	last := e.last[stateKey{Vault: vaultID, Position: positionID}]
	if last == 0 {
		return 0
	}
	periods := fpmath.PeriodsElapsed(currentBlock, last, e.periodBlocks)
	if periods == 0 {
		return 0
	}
	return fpmath.InterestDue(debtAmount, vr.AnnualRateBips, e.periodShare, periods)
}

// CollectInterest charges a position and accumulates the amount into the
// treasury pool. Only the registered vault itself may collect. Returns
// (0, nil) silently when the position is not yet period-ready; advances
// LastCollectionBlock to currentBlock on success, dropping any partial
// period.
func (e *Engine) CollectInterest(callerVaultID, vaultID string, positionID int64, debtAmount int64, currentBlock uint64) (int64, error) {
	vr, ok := e.vaults[vaultID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	if callerVaultID != vaultID {
		return 0, fmt.Errorf("%w: %s collecting for %s", ErrVaultNotCaller, callerVaultID, vaultID)
	}

	key := stateKey{Vault: vaultID, Position: positionID}
	last := e.last[key]
	if last == 0 {
		return 0, nil // Never activated
	}
	periods := fpmath.PeriodsElapsed(currentBlock, last, e.periodBlocks)
	if periods == 0 {
		return 0, nil // Not yet period-ready
	}

	due := fpmath.InterestDue(debtAmount, vr.AnnualRateBips, e.periodShare, periods)
	if due == 0 {
		return 0, fmt.Errorf("%w: vault %s position %d", ErrNoInterestToCollect, vaultID, positionID)
	}

	e.last[key] = currentBlock
	e.pool[vr.DebtAsset] += due
	return due, nil
}

// Sweep charges every period-ready position in one pass, ordered by position
// id so replays produce identical journal sequences. Positions that are flat,
// never activated, or not yet period-ready are skipped.
func (e *Engine) Sweep(vaultID string, positions []fpmath.PositionForSweep, currentBlock uint64) ([]fpmath.InterestCharge, error) {
	vr, ok := e.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, vaultID)
	}
	charges := fpmath.ComputeInterestSweep(positions, vr.AnnualRateBips, e.periodShare, e.periodBlocks, currentBlock)
	for _, c := range charges {
		e.last[stateKey{Vault: vaultID, Position: c.PositionID}] = currentBlock
		e.pool[vr.DebtAsset] += c.Amount
	}
	return charges, nil
}

// Pool returns the accumulated interest for a debt asset.
func (e *Engine) Pool(asset string) int64 {
	return e.pool[asset]
}

// SetPool directly sets a pool balance (snapshot restore and session
// rollback).
func (e *Engine) SetPool(asset string, amount int64) {
	if amount == 0 {
		delete(e.pool, asset)
		return
	}
	e.pool[asset] = amount
}

// TakeFromPool reduces a pool on treasury withdrawal, clamping at zero: the
// journal treasury account also holds liquidation remainders, which are not
// part of the interest pool.
func (e *Engine) TakeFromPool(asset string, amount int64) int64 {
	have := e.pool[asset]
	if amount >= have {
		delete(e.pool, asset)
		return have
	}
	e.pool[asset] = have - amount
	return amount
}

// StateEntry is one row of the deterministic accrual-state dump.
type StateEntry struct {
	Vault     string
	Position  int64
	LastBlock uint64
}

// States returns accrual state ordered by vault then position id, for state
// digests and snapshots.
func (e *Engine) States() []StateEntry {
	entries := make([]StateEntry, 0, len(e.last))
	for key, block := range e.last {
		entries = append(entries, StateEntry{Vault: key.Vault, Position: key.Position, LastBlock: block})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Vault != entries[j].Vault {
			return entries[i].Vault < entries[j].Vault
		}
		return entries[i].Position < entries[j].Position
	})
	return entries
}

// PoolEntry is one row of the deterministic pool dump.
type PoolEntry struct {
	Asset  string
	Amount int64
}

// Pools returns nonzero pool balances in asset order.
func (e *Engine) Pools() []PoolEntry {
	entries := make([]PoolEntry, 0, len(e.pool))
	for asset, amount := range e.pool {
		if amount == 0 {
			continue
		}
		entries = append(entries, PoolEntry{Asset: asset, Amount: amount})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Asset < entries[j].Asset
	})
	return entries
}

// VaultEntry is one row of the deterministic registry dump.
type VaultEntry struct {
	Vault          string
	DebtAsset      string
	AnnualRateBips uint64
}

// Vaults returns registered vaults in vault-id order.
func (e *Engine) Vaults() []VaultEntry {
	entries := make([]VaultEntry, 0, len(e.vaults))
	for vaultID, vr := range e.vaults {
		entries = append(entries, VaultEntry{
			Vault:          vaultID,
			DebtAsset:      vr.DebtAsset,
			AnnualRateBips: vr.AnnualRateBips,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Vault < entries[j].Vault
	})
	return entries
}

// RestoreVault directly sets a registry entry (snapshot restore).
func (e *Engine) RestoreVault(vaultID, debtAsset string, annualRateBips uint64) {
	e.vaults[vaultID] = vaultRate{DebtAsset: debtAsset, AnnualRateBips: annualRateBips}
}
