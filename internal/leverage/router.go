package leverage

import (
	"fmt"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/oracle"
)

// OracleRouter is the default SwapRouter: it executes swaps at the latest
// accepted oracle readings, so replays of the event log reproduce identical
// swap outputs. Staleness is not re-checked here; the borrow preceding every
// swap already enforced the vault's window.
type OracleRouter struct {
	oracle *oracle.Adapter
}

func NewOracleRouter(adapter *oracle.Adapter) *OracleRouter {
	return &OracleRouter{oracle: adapter}
}

// SwapExactInput converts amountIn of route[0] into route[len-1] units at
// oracle prices. Intermediate hops are ignored: pricing end-to-end at the
// oracle makes the route a hint, not an execution path.
func (r *OracleRouter) SwapExactInput(route []string, amountIn, minAmountOut int64) (int64, error) {
	if len(route) < 2 {
		return 0, fmt.Errorf("swap route needs at least 2 hops, got %d", len(route))
	}
	if amountIn <= 0 {
		return 0, fmt.Errorf("swap amount must be positive, got %d", amountIn)
	}

	inQuote, ok := r.oracle.Quote(route[0])
	if !ok {
		return 0, fmt.Errorf("%w: %s", oracle.ErrUnknownAsset, route[0])
	}
	outQuote, ok := r.oracle.Quote(route[len(route)-1])
	if !ok {
		return 0, fmt.Errorf("%w: %s", oracle.ErrUnknownAsset, route[len(route)-1])
	}

	inPrice, err := fpmath.NormalizePrice(inQuote.RawPrice, inQuote.Decimals)
	if err != nil {
		return 0, fmt.Errorf("normalize %s: %w", route[0], err)
	}
	outPrice, err := fpmath.NormalizePrice(outQuote.RawPrice, outQuote.Decimals)
	if err != nil {
		return 0, fmt.Errorf("normalize %s: %w", route[len(route)-1], err)
	}

	value := fpmath.AssetValue(amountIn, inPrice)
	out, err := fpmath.UnitsFromValue(value, outPrice)
	if err != nil {
		return 0, fmt.Errorf("swap output: %w", err)
	}
	if out < minAmountOut {
		return 0, fmt.Errorf("swap output %d below minimum %d", out, minAmountOut)
	}
	return out, nil
}
