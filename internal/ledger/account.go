package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota
	SubTypeCollateral
	SubTypeDebt

	// System sub-types
	SubTypeSystemTreasury
	SubTypeSystemLeverage

	// External sub-types
	SubTypeExternalSupply
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDT": 1,
		"USDC": 2,
		"DAI":  3,
		"BTC":  4,
		"ETH":  5,
	}
	idToAsset = map[AssetID]string{
		1: "USDT",
		2: "USDC",
		3: "DAI",
		4: "BTC",
		5: "ETH",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewTreasuryAccountKey creates the treasury key for an asset
func NewTreasuryAccountKey(assetID AssetID) AccountKey {
	return newSystemAccountKey("treasury", SubTypeSystemTreasury, assetID)
}

// NewLeverageAccountKey creates the leverage float key for an asset. The
// builder's transient holdings live here and must return to zero before its
// batch completes.
func NewLeverageAccountKey(assetID AssetID) AccountKey {
	return newSystemAccountKey("leverage", SubTypeSystemLeverage, assetID)
}

func newSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalSupplyKey creates the boundary key for an asset. Everything
// minted into or burned out of the journaled world crosses this account.
func NewExternalSupplyKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalSupply,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath parses the string form produced by AccountPath back into
// an AccountKey. Used when restoring balances from snapshots.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch {
	case len(parts) == 4 && parts[0] == "user":
		userID, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		subType, err := parseUserSubType(parts[2])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account path %q: %w", path, err)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown asset %s", path, parts[3])
		}
		return NewUserAccountKey(userID, subType, assetID), nil

	case len(parts) == 3 && parts[0] == "system":
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown asset %s", path, parts[2])
		}
		switch parts[1] {
		case "treasury":
			return NewTreasuryAccountKey(assetID), nil
		case "leverage":
			return NewLeverageAccountKey(assetID), nil
		}
		return AccountKey{}, fmt.Errorf("parse account path %q: unknown system account", path)

	case len(parts) == 3 && parts[0] == "external" && parts[1] == "supply":
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("parse account path %q: unknown asset %s", path, parts[2])
		}
		return NewExternalSupplyKey(assetID), nil
	}

	return AccountKey{}, fmt.Errorf("parse account path %q: unrecognized format", path)
}

func parseUserSubType(s string) (AccountSubType, error) {
	switch s {
	case "wallet":
		return SubTypeWallet, nil
	case "collateral":
		return SubTypeCollateral, nil
	case "debt":
		return SubTypeDebt, nil
	}
	return 0, fmt.Errorf("unknown user account sub-type %q", s)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeCollateral:
		return "collateral"
	case SubTypeDebt:
		return "debt"
	case SubTypeSystemTreasury:
		return "treasury"
	case SubTypeSystemLeverage:
		return "leverage"
	case SubTypeExternalSupply:
		return "supply"
	default:
		return "unknown"
	}
}
