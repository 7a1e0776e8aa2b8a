package vault

import (
	"fmt"

	"VaultLedger/internal/ledger"

	"github.com/google/uuid"
)

// DefaultStalenessWindowSec is the maximum oracle reading age: 1 hour.
const DefaultStalenessWindowSec = 3600

// VaultConfig is one vault's parameters. Asset identities are fixed at
// registration; the rest is mutable only through audited admin events.
type VaultConfig struct {
	VaultID              string
	CollateralAsset      string
	DebtAsset            string
	LTVRatio             uint64 // Percent, (0,100]
	LiquidationThreshold uint64 // Percent, >= LTVRatio
	LiquidatorRewardBips uint64 // [0,10000]
	TreasuryID           uuid.UUID
	StalenessWindowSec   int64
	EffectiveSeq         int64 // Orders admin updates
}

// Validate enforces 0 < LTVRatio <= LiquidationThreshold plus asset and
// reward bounds.
func (c *VaultConfig) Validate() error {
	if c.VaultID == "" {
		return fmt.Errorf("%w: empty vault id", ErrInvalidConfig)
	}
	if _, ok := ledger.GetAssetID(c.CollateralAsset); !ok {
		return fmt.Errorf("%w: collateral asset %q", ErrInvalidAsset, c.CollateralAsset)
	}
	if _, ok := ledger.GetAssetID(c.DebtAsset); !ok {
		return fmt.Errorf("%w: debt asset %q", ErrInvalidAsset, c.DebtAsset)
	}
	if c.LTVRatio == 0 || c.LTVRatio > 100 {
		return fmt.Errorf("%w: ltv ratio %d", ErrInvalidConfig, c.LTVRatio)
	}
	if c.LiquidationThreshold < c.LTVRatio {
		return fmt.Errorf("%w: threshold %d below ltv %d",
			ErrInvalidConfig, c.LiquidationThreshold, c.LTVRatio)
	}
	if c.LiquidatorRewardBips > 10_000 {
		return fmt.Errorf("%w: liquidator reward %d bips", ErrInvalidConfig, c.LiquidatorRewardBips)
	}
	if c.StalenessWindowSec < 0 {
		return fmt.Errorf("%w: staleness window %d", ErrInvalidConfig, c.StalenessWindowSec)
	}
	return nil
}

// stalenessWindow returns the configured window, defaulted.
func (c *VaultConfig) stalenessWindow() int64 {
	if c.StalenessWindowSec == 0 {
		return DefaultStalenessWindowSec
	}
	return c.StalenessWindowSec
}

// ParamChange is one audited field mutation, emitted with old and new values.
type ParamChange struct {
	Vault string
	Field string
	Old   string
	New   string
}

// ParamUpdate carries optional new values for a vault's mutable parameters.
// Nil fields are left unchanged.
type ParamUpdate struct {
	LTVRatio             *uint64
	LiquidationThreshold *uint64
	LiquidatorRewardBips *uint64
	AnnualRateBips       *uint64
	PeriodBlocks         *int64
	TreasuryID           *uuid.UUID
	EffectiveSeq         int64
}
