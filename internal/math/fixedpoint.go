package math

import (
	"fmt"
	"math"
	"math/big"
	"sync"
)

// PrecisionDecimals is the normalized decimal precision for prices, period
// shares, and health ratios. All oracle prices are rescaled to this precision
// before any value math happens.
const PrecisionDecimals = 18

// HealthInfinite is the saturated health ratio returned for positions with
// zero debt.
const HealthInfinite = math.MaxInt64

var (
	// Precision is 10^18 as a big integer.
	Precision = mustBigInt("1000000000000000000")

	// BasisPointsDivisor converts basis-point rates to fractions.
	BasisPointsDivisor = big.NewInt(10_000)

	percentDivisor = big.NewInt(100)
	maxInt64       = big.NewInt(math.MaxInt64)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// intPool holds big.Int scratch values for intermediate products. Values
// handed back to callers are always fresh allocations; only internal
// intermediates cycle through the pool.
var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	intPool.Put(v)
}

// NormalizePrice rescales a raw oracle price with the reported decimal count
// to PrecisionDecimals. Raw prices with more than 18 decimals are floored
// down to 18.
func NormalizePrice(raw int64, decimals uint8) (*big.Int, error) {
	if raw <= 0 {
		return nil, fmt.Errorf("non-positive price %d", raw)
	}
	price := big.NewInt(raw)
	switch {
	case decimals < PrecisionDecimals:
		exp := getInt()
		exp.Exp(big.NewInt(10), big.NewInt(int64(PrecisionDecimals-decimals)), nil)
		price.Mul(price, exp)
		putInt(exp)
	case decimals > PrecisionDecimals:
		exp := getInt()
		exp.Exp(big.NewInt(10), big.NewInt(int64(decimals-PrecisionDecimals)), nil)
		price.Quo(price, exp)
		putInt(exp)
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("price %d underflows at %d decimals", raw, decimals)
		}
	}
	return price, nil
}

// AssetValue returns amount * price. The result carries Precision scale per
// base unit; it is only ever compared or divided against values of the same
// scale.
func AssetValue(amount int64, price *big.Int) *big.Int {
	if amount <= 0 || price == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(big.NewInt(amount), price)
}

// BorrowLimitValue returns collateralValue * ltvRatio / 100, floored.
func BorrowLimitValue(collateralValue *big.Int, ltvRatio uint64) *big.Int {
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return new(big.Int)
	}
	limit := new(big.Int).Mul(collateralValue, new(big.Int).SetUint64(ltvRatio))
	return limit.Quo(limit, percentDivisor)
}

// WithinBorrowLimit reports whether debtValue stays at or under the LTV cap
// of collateralValue. Zero debt is always within the limit.
func WithinBorrowLimit(collateralValue, debtValue *big.Int, ltvRatio uint64) bool {
	if debtValue == nil || debtValue.Sign() == 0 {
		return true
	}
	limit := BorrowLimitValue(collateralValue, ltvRatio)
	return limit.Cmp(debtValue) >= 0
}

// Liquidatable reports whether debtValue has crossed the liquidation
// threshold: debtValue * 100 > collateralValue * thresholdPct. Equivalent to
// the health ratio dropping below 100/thresholdPct without performing a
// division.
func Liquidatable(collateralValue, debtValue *big.Int, thresholdPct uint64) bool {
	if debtValue == nil || debtValue.Sign() == 0 {
		return false
	}
	lhs := getInt()
	lhs.Mul(debtValue, percentDivisor)
	rhs := getInt()
	if collateralValue != nil {
		rhs.Mul(collateralValue, new(big.Int).SetUint64(thresholdPct))
	}
	liq := lhs.Cmp(rhs) > 0
	putInt(lhs)
	putInt(rhs)
	return liq
}

// HealthRatio returns collateralValue * Precision / debtValue as an int64,
// floored, saturating at HealthInfinite when debt is zero or the ratio
// exceeds the int64 range.
func HealthRatio(collateralValue, debtValue *big.Int) int64 {
	if debtValue == nil || debtValue.Sign() == 0 {
		return HealthInfinite
	}
	num := getInt()
	if collateralValue != nil {
		num.Mul(collateralValue, Precision)
	}
	num.Quo(num, debtValue)
	var ratio int64
	if num.Cmp(maxInt64) > 0 {
		ratio = HealthInfinite
	} else {
		ratio = num.Int64()
	}
	putInt(num)
	return ratio
}

// RewardShare returns amount * bips / 10000, floored. Used for the
// liquidator's cut of seized collateral.
func RewardShare(amount int64, bips uint64) int64 {
	if amount <= 0 || bips == 0 {
		return 0
	}
	share := getInt()
	share.SetInt64(amount)
	share.Mul(share, new(big.Int).SetUint64(bips))
	share.Quo(share, BasisPointsDivisor)
	v := share.Int64()
	putInt(share)
	return v
}

// UnitsFromValue converts a Precision-scaled value into asset base units at
// the given price, floored. Values that do not fit an int64 amount are an
// error rather than a silent wrap.
func UnitsFromValue(value, price *big.Int) (int64, error) {
	if value == nil || value.Sign() <= 0 {
		return 0, nil
	}
	if price == nil || price.Sign() <= 0 {
		return 0, fmt.Errorf("non-positive price")
	}
	units := getInt()
	units.Quo(value, price)
	defer putInt(units)
	if units.Cmp(maxInt64) > 0 {
		return 0, fmt.Errorf("amount overflows int64")
	}
	return units.Int64(), nil
}
