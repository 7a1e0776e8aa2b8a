package query

import "github.com/google/uuid"

// PositionResponse represents a position for API queries. Health and
// borrow headroom are derived at query time from the latest projected
// quotes and vault parameters.
type PositionResponse struct {
	PositionID       int64     `json:"position_id"`
	VaultID          string    `json:"vault_id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	CollateralAmount int64     `json:"collateral_amount"`
	DebtAmount       int64     `json:"debt_amount"`
	Status           string    `json:"status"`
	HealthRatio      int64     `json:"health_ratio"`   // Fixed-point 1e18; max int64 = no debt
	MaxBorrowable    int64     `json:"max_borrowable"` // Additional debt units at current prices
	Liquidatable     bool      `json:"liquidatable"`
	AsOfSequence     int64     `json:"as_of_sequence"`
}

// InterestHistoryResponse represents one interest charge for API queries.
type InterestHistoryResponse struct {
	JournalID    string `json:"journal_id"`
	VaultID      string `json:"vault_id"`
	PositionID   int64  `json:"position_id"`
	AssetID      uint16 `json:"asset_id"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// LiquidationHistoryResponse represents one liquidation flow for API queries.
type LiquidationHistoryResponse struct {
	JournalID    string `json:"journal_id"`
	VaultID      string `json:"vault_id"`
	PositionID   int64  `json:"position_id"`
	AssetID      uint16 `json:"asset_id"`
	Amount       int64  `json:"amount"`
	Flow         string `json:"flow"` // liquidation_reward | liquidation_remainder | liquidation_writedown
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	PositionID    int64  `json:"position_id"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
