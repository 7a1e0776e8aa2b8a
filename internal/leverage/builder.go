package leverage

import (
	"fmt"

	"VaultLedger/internal/ledger"
	"VaultLedger/internal/token"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// MaxLeverage bounds the number of borrow iterations.
const MaxLeverage = 10

// SwapRouter is the consumed exchange interface. SwapExactInput fails when
// the output would fall below minAmountOut.
type SwapRouter interface {
	SwapExactInput(route []string, amountIn, minAmountOut int64) (int64, error)
}

// Result reports a completed leverage build.
type Result struct {
	PositionID      int64
	TotalCollateral int64
	TotalDebt       int64
	LeverageUsed    uint32
	Residual        int64 // Debt asset returned to the caller
}

// Builder orchestrates {borrow, swap, redeposit} iterations. Stateless across
// calls: everything lives in the ledger session, so any failure aborts the
// whole build atomically.
type Builder struct {
	ledger *vault.Engine
	router SwapRouter
}

func NewBuilder(ledgerEngine *vault.Engine, router SwapRouter) *Builder {
	return &Builder{ledger: ledgerEngine, router: router}
}

// LeveragePosition opens a position with the pulled collateral, then loops
// leverage times: borrow the full headroom to the builder float; on every
// iteration except the last, swap the tranche for collateral and redeposit
// it. minAmountOut bounds the total collateral acquired across all swaps.
func (b *Builder) LeveragePosition(
	op vault.OpContext,
	vaultID string,
	caller uuid.UUID,
	collateralAmount int64,
	leverage uint32,
	minAmountOut int64,
	route []string,
) (*Result, []*ledger.Batch, error) {
	if leverage < 1 || leverage > MaxLeverage {
		return nil, nil, fmt.Errorf("%w: %d (max %d)", vault.ErrLeverageLimit, leverage, MaxLeverage)
	}
	cfg, ok := b.ledger.Config(vaultID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", vault.ErrUnknownVault, vaultID)
	}

	result := &Result{LeverageUsed: leverage}
	batches, err := b.ledger.Atomic(op, func(s *vault.Session) error {
		id, err := s.OpenPosition(vaultID, caller, collateralAmount, 0)
		if err != nil {
			return err
		}
		result.PositionID = id

		var totalSwapped int64
		var residual int64
		asOf := op.Timestamp / 1_000_000

		for i := uint32(0); i < leverage; i++ {
			headroom, err := b.ledger.MaxBorrowable(vaultID, id, asOf)
			if err != nil {
				return err
			}
			if headroom <= 0 {
				return fmt.Errorf("%w: iteration %d of %d", vault.ErrNoBorrowCapacity, i+1, leverage)
			}
			if err := s.BorrowToFloat(vaultID, id, headroom); err != nil {
				return err
			}

			if i == leverage-1 {
				// Final tranche skips the swap and goes back to the caller.
				residual = headroom
				break
			}

			// Per-swap minimum is 1: the aggregate bound is enforced below.
			out, err := b.router.SwapExactInput(route, headroom, 1)
			if err != nil {
				return fmt.Errorf("swap iteration %d: %w", i+1, err)
			}
			if err := s.LeverageSwap(id, cfg.DebtAsset, headroom, cfg.CollateralAsset, out); err != nil {
				return err
			}
			if err := s.DepositFromFloat(vaultID, id, out); err != nil {
				return err
			}
			totalSwapped += out
		}

		if totalSwapped < minAmountOut {
			return fmt.Errorf("%w: acquired %d, minimum %d",
				vault.ErrSwapBelowMinimum, totalSwapped, minAmountOut)
		}

		if residual > 0 {
			if err := s.ResidualToCaller(id, caller, cfg.DebtAsset, residual); err != nil {
				return err
			}
		}
		result.Residual = residual

		// Sanity checks before commit: the float must have drained and the
		// builder module must hold nothing.
		for _, asset := range []string{cfg.CollateralAsset, cfg.DebtAsset} {
			assetID, _ := ledger.GetAssetID(asset)
			if err := b.ledger.Validator().ValidateLeverageFloatZero(assetID); err != nil {
				return err
			}
		}
		if held := b.tokensHeld(cfg); held != 0 {
			return fmt.Errorf("builder retains %d tokens after loop", held)
		}

		pos, _ := b.ledger.Position(id)
		result.TotalCollateral = pos.CollateralAmount
		result.TotalDebt = pos.DebtAmount
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, batches, nil
}

func (b *Builder) tokensHeld(cfg *vault.VaultConfig) int64 {
	held := b.ledger.Tokens().BalanceOf(token.HolderLeverageModule, cfg.CollateralAsset)
	held += b.ledger.Tokens().BalanceOf(token.HolderLeverageModule, cfg.DebtAsset)
	return held
}
