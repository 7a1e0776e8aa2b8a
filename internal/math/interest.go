package math

import (
	"fmt"
	"math/big"
	"sort"
)

// PeriodShare derives the fixed per-period fraction of a year as a
// Precision-scaled integer: periodBlocks * Precision / blocksPerYear,
// floored. Recomputed whenever the period granularity changes.
func PeriodShare(periodBlocks, blocksPerYear uint64) *big.Int {
	if periodBlocks == 0 || blocksPerYear == 0 {
		return new(big.Int)
	}
	share := new(big.Int).SetUint64(periodBlocks)
	share.Mul(share, Precision)
	return share.Quo(share, new(big.Int).SetUint64(blocksPerYear))
}

// PeriodsElapsed returns floor((currentBlock - lastBlock) / periodBlocks).
// Elapsed spans before lastBlock clamp to zero; partial periods are dropped.
func PeriodsElapsed(currentBlock, lastBlock, periodBlocks uint64) uint64 {
	if periodBlocks == 0 || currentBlock <= lastBlock {
		return 0
	}
	return (currentBlock - lastBlock) / periodBlocks
}

// InterestDue computes the discretized simple interest charge:
//
//	debt * annualRateBips * periodShare * periods / (10000 * Precision)
//
// floored. The per-call model never compounds; compounding across calls
// emerges as each charge folds interest into principal debt.
func InterestDue(debtAmount int64, annualRateBips uint64, periodShare *big.Int, periods uint64) int64 {
	if debtAmount <= 0 || annualRateBips == 0 || periods == 0 {
		return 0
	}
	if periodShare == nil || periodShare.Sign() <= 0 {
		return 0
	}
	num := getInt()
	num.SetInt64(debtAmount)
	num.Mul(num, new(big.Int).SetUint64(annualRateBips))
	num.Mul(num, periodShare)
	num.Mul(num, new(big.Int).SetUint64(periods))

	den := getInt()
	den.Mul(BasisPointsDivisor, Precision)

	num.Quo(num, den)
	if num.Cmp(maxInt64) > 0 {
		// A charge that cannot fit an int64 debt means the rate or period
		// configuration is broken; folding it into principal would wrap.
		panic(fmt.Sprintf("FATAL: interest charge overflows int64 (debt=%d rate=%d periods=%d)",
			debtAmount, annualRateBips, periods))
	}
	due := num.Int64()
	putInt(num)
	putInt(den)
	return due
}

// PositionForSweep is the slice element fed to ComputeInterestSweep.
type PositionForSweep struct {
	PositionID int64
	DebtAmount int64
	LastBlock  uint64
}

// InterestCharge is one position's computed charge within a sweep.
type InterestCharge struct {
	PositionID int64
	Amount     int64
	Periods    uint64
}

// ComputeInterestSweep computes charges for every period-ready position,
// ordered by position id so replay produces identical journal sequences.
func ComputeInterestSweep(
	positions []PositionForSweep,
	annualRateBips uint64,
	periodShare *big.Int,
	periodBlocks uint64,
	currentBlock uint64,
) []InterestCharge {
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].PositionID < positions[j].PositionID
	})

	charges := make([]InterestCharge, 0, len(positions))
	for _, pos := range positions {
		if pos.DebtAmount <= 0 || pos.LastBlock == 0 {
			continue // Flat or never-activated positions accrue nothing
		}
		periods := PeriodsElapsed(currentBlock, pos.LastBlock, periodBlocks)
		if periods == 0 {
			continue
		}
		amount := InterestDue(pos.DebtAmount, annualRateBips, periodShare, periods)
		if amount == 0 {
			continue
		}
		charges = append(charges, InterestCharge{
			PositionID: pos.PositionID,
			Amount:     amount,
			Periods:    periods,
		})
	}
	return charges
}
