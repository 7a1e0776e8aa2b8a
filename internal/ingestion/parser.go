package ingestion

import (
	"encoding/json"
	"fmt"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "WalletFund":
		return parseWalletFund(raw.Data)
	case "PositionOpen":
		return parsePositionOpen(raw.Data)
	case "CollateralAdd":
		return parseCollateralAdd(raw.Data)
	case "CollateralRemove":
		return parseCollateralRemove(raw.Data)
	case "DebtBorrow":
		return parseDebtBorrow(raw.Data)
	case "DebtRepay":
		return parseDebtRepay(raw.Data)
	case "PositionLiquidate":
		return parsePositionLiquidate(raw.Data)
	case "LeverageOpen":
		return parseLeverageOpen(raw.Data)
	case "InterestCollect":
		return parseInterestCollect(raw.Data)
	case "InterestSweep":
		return parseInterestSweep(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "VaultRegister":
		return parseVaultRegister(raw.Data)
	case "VaultParamUpdate":
		return parseVaultParamUpdate(raw.Data)
	case "TreasuryWithdraw":
		return parseTreasuryWithdraw(raw.Data)
	case "StraySweep":
		return parseStraySweep(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type walletFundJSON struct {
	FundID      string `json:"fund_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseWalletFund(data []byte) (*event.WalletFund, error) {
	var j walletFundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletFund: %w", err)
	}
	fundID, err := uuid.Parse(j.FundID)
	if err != nil {
		return nil, fmt.Errorf("parse fund_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.WalletFund{
		FundID:    fundID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type positionOpenJSON struct {
	RequestID        string `json:"request_id"`
	Vault            string `json:"vault"`
	OwnerID          string `json:"owner_id"`
	CollateralAmount int64  `json:"collateral_amount"`
	DebtAmount       int64  `json:"debt_amount"`
	BlockHeight      int64  `json:"block_height"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parsePositionOpen(data []byte) (*event.PositionOpen, error) {
	var j positionOpenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionOpen: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	ownerID, err := uuid.Parse(j.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner_id: %w", err)
	}
	return &event.PositionOpen{
		RequestID:        requestID,
		Vault:            j.Vault,
		OwnerID:          ownerID,
		CollateralAmount: j.CollateralAmount,
		DebtAmount:       j.DebtAmount,
		BlockHeight:      j.BlockHeight,
		Sequence:         j.Sequence,
		Timestamp:        j.TimestampUs,
	}, nil
}

type collateralJSON struct {
	RequestID   string `json:"request_id"`
	Vault       string `json:"vault"`
	PositionID  int64  `json:"position_id"`
	CallerID    string `json:"caller_id"`
	Amount      int64  `json:"amount"`
	BlockHeight int64  `json:"block_height"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCollateralAdd(data []byte) (*event.CollateralAdd, error) {
	var j collateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralAdd: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.CollateralAdd{
		RequestID:   requestID,
		Vault:       j.Vault,
		PositionID:  j.PositionID,
		CallerID:    callerID,
		Amount:      j.Amount,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

func parseCollateralRemove(data []byte) (*event.CollateralRemove, error) {
	var j collateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralRemove: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.CollateralRemove{
		RequestID:   requestID,
		Vault:       j.Vault,
		PositionID:  j.PositionID,
		CallerID:    callerID,
		Amount:      j.Amount,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type debtBorrowJSON struct {
	RequestID   string  `json:"request_id"`
	Vault       string  `json:"vault"`
	PositionID  int64   `json:"position_id"`
	CallerID    string  `json:"caller_id"`
	Beneficiary *string `json:"beneficiary,omitempty"`
	Amount      int64   `json:"amount"`
	BlockHeight int64   `json:"block_height"`
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func parseDebtBorrow(data []byte) (*event.DebtBorrow, error) {
	var j debtBorrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DebtBorrow: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	var beneficiary *uuid.UUID
	if j.Beneficiary != nil {
		b, err := uuid.Parse(*j.Beneficiary)
		if err != nil {
			return nil, fmt.Errorf("parse beneficiary: %w", err)
		}
		beneficiary = &b
	}
	return &event.DebtBorrow{
		RequestID:   requestID,
		Vault:       j.Vault,
		PositionID:  j.PositionID,
		CallerID:    callerID,
		Beneficiary: beneficiary,
		Amount:      j.Amount,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type debtRepayJSON struct {
	RequestID   string `json:"request_id"`
	Vault       string `json:"vault"`
	PositionID  int64  `json:"position_id"`
	CallerID    string `json:"caller_id"`
	Amount      int64  `json:"amount"`
	BlockHeight int64  `json:"block_height"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDebtRepay(data []byte) (*event.DebtRepay, error) {
	var j debtRepayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DebtRepay: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.DebtRepay{
		RequestID:   requestID,
		Vault:       j.Vault,
		PositionID:  j.PositionID,
		CallerID:    callerID,
		Amount:      j.Amount,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type positionLiquidateJSON struct {
	RequestID    string `json:"request_id"`
	Vault        string `json:"vault"`
	PositionID   int64  `json:"position_id"`
	LiquidatorID string `json:"liquidator_id"`
	BlockHeight  int64  `json:"block_height"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parsePositionLiquidate(data []byte) (*event.PositionLiquidate, error) {
	var j positionLiquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PositionLiquidate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	liquidatorID, err := uuid.Parse(j.LiquidatorID)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator_id: %w", err)
	}
	return &event.PositionLiquidate{
		RequestID:    requestID,
		Vault:        j.Vault,
		PositionID:   j.PositionID,
		LiquidatorID: liquidatorID,
		BlockHeight:  j.BlockHeight,
		Sequence:     j.Sequence,
		Timestamp:    j.TimestampUs,
	}, nil
}

type leverageOpenJSON struct {
	RequestID        string   `json:"request_id"`
	Vault            string   `json:"vault"`
	CallerID         string   `json:"caller_id"`
	CollateralAmount int64    `json:"collateral_amount"`
	Leverage         uint32   `json:"leverage"`
	MinAmountOut     int64    `json:"min_amount_out"`
	Route            []string `json:"route"`
	BlockHeight      int64    `json:"block_height"`
	Sequence         int64    `json:"sequence"`
	TimestampUs      int64    `json:"timestamp_us"`
}

func parseLeverageOpen(data []byte) (*event.LeverageOpen, error) {
	var j leverageOpenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LeverageOpen: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.LeverageOpen{
		RequestID:        requestID,
		Vault:            j.Vault,
		CallerID:         callerID,
		CollateralAmount: j.CollateralAmount,
		Leverage:         j.Leverage,
		MinAmountOut:     j.MinAmountOut,
		Route:            j.Route,
		BlockHeight:      j.BlockHeight,
		Sequence:         j.Sequence,
		Timestamp:        j.TimestampUs,
	}, nil
}

type interestCollectJSON struct {
	RequestID   string `json:"request_id"`
	Vault       string `json:"vault"`
	CallerVault string `json:"caller_vault"`
	PositionID  int64  `json:"position_id"`
	BlockHeight int64  `json:"block_height"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseInterestCollect(data []byte) (*event.InterestCollect, error) {
	var j interestCollectJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InterestCollect: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.InterestCollect{
		RequestID:   requestID,
		Vault:       j.Vault,
		CallerVault: j.CallerVault,
		PositionID:  j.PositionID,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type interestSweepJSON struct {
	Vault       string `json:"vault"`
	BlockHeight int64  `json:"block_height"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseInterestSweep(data []byte) (*event.InterestSweep, error) {
	var j interestSweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InterestSweep: %w", err)
	}
	return &event.InterestSweep{
		Vault:       j.Vault,
		BlockHeight: j.BlockHeight,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}

type priceUpdateJSON struct {
	Asset          string `json:"asset"`
	RawPrice       int64  `json:"raw_price"`
	Decimals       uint8  `json:"decimals"`
	FeedSequence   int64  `json:"feed_sequence"`
	PriceTimestamp int64  `json:"price_timestamp_us"`
	Source         string `json:"source"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	return &event.PriceUpdate{
		Asset:          j.Asset,
		RawPrice:       j.RawPrice,
		Decimals:       j.Decimals,
		FeedSequence:   j.FeedSequence,
		PriceTimestamp: j.PriceTimestamp,
		Source:         j.Source,
	}, nil
}

type vaultRegisterJSON struct {
	Vault                string `json:"vault"`
	CollateralAsset      string `json:"collateral_asset"`
	DebtAsset            string `json:"debt_asset"`
	LTVRatio             uint64 `json:"ltv_ratio"`
	LiquidationThreshold uint64 `json:"liquidation_threshold"`
	LiquidatorRewardBips uint64 `json:"liquidator_reward_bips"`
	AnnualRateBips       uint64 `json:"annual_rate_bips"`
	TreasuryID           string `json:"treasury_id"`
	StalenessWindowSec   int64  `json:"staleness_window_sec"`
	EffectiveSeq         int64  `json:"effective_seq"`
	Sequence             int64  `json:"sequence"`
	TimestampUs          int64  `json:"timestamp_us"`
}

func parseVaultRegister(data []byte) (*event.VaultRegister, error) {
	var j vaultRegisterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VaultRegister: %w", err)
	}
	treasuryID, err := uuid.Parse(j.TreasuryID)
	if err != nil {
		return nil, fmt.Errorf("parse treasury_id: %w", err)
	}
	return &event.VaultRegister{
		Vault:                j.Vault,
		CollateralAsset:      j.CollateralAsset,
		DebtAsset:            j.DebtAsset,
		LTVRatio:             j.LTVRatio,
		LiquidationThreshold: j.LiquidationThreshold,
		LiquidatorRewardBips: j.LiquidatorRewardBips,
		AnnualRateBips:       j.AnnualRateBips,
		TreasuryID:           treasuryID,
		StalenessWindowSec:   j.StalenessWindowSec,
		EffectiveSeq:         j.EffectiveSeq,
		Sequence:             j.Sequence,
		Timestamp:            j.TimestampUs,
	}, nil
}

type vaultParamUpdateJSON struct {
	Vault                string  `json:"vault"`
	LTVRatio             *uint64 `json:"ltv_ratio,omitempty"`
	LiquidationThreshold *uint64 `json:"liquidation_threshold,omitempty"`
	LiquidatorRewardBips *uint64 `json:"liquidator_reward_bips,omitempty"`
	AnnualRateBips       *uint64 `json:"annual_rate_bips,omitempty"`
	PeriodBlocks         *int64  `json:"period_blocks,omitempty"`
	TreasuryID           *string `json:"treasury_id,omitempty"`
	EffectiveSeq         int64   `json:"effective_seq"`
	Sequence             int64   `json:"sequence"`
	TimestampUs          int64   `json:"timestamp_us"`
}

func parseVaultParamUpdate(data []byte) (*event.VaultParamUpdate, error) {
	var j vaultParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse VaultParamUpdate: %w", err)
	}
	var treasuryID *uuid.UUID
	if j.TreasuryID != nil {
		t, err := uuid.Parse(*j.TreasuryID)
		if err != nil {
			return nil, fmt.Errorf("parse treasury_id: %w", err)
		}
		treasuryID = &t
	}
	return &event.VaultParamUpdate{
		Vault:                j.Vault,
		LTVRatio:             j.LTVRatio,
		LiquidationThreshold: j.LiquidationThreshold,
		LiquidatorRewardBips: j.LiquidatorRewardBips,
		AnnualRateBips:       j.AnnualRateBips,
		PeriodBlocks:         j.PeriodBlocks,
		TreasuryID:           treasuryID,
		EffectiveSeq:         j.EffectiveSeq,
		Sequence:             j.Sequence,
		Timestamp:            j.TimestampUs,
	}, nil
}

type treasuryWithdrawJSON struct {
	RequestID   string `json:"request_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Recipient   string `json:"recipient"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTreasuryWithdraw(data []byte) (*event.TreasuryWithdraw, error) {
	var j treasuryWithdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TreasuryWithdraw: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	recipient, err := uuid.Parse(j.Recipient)
	if err != nil {
		return nil, fmt.Errorf("parse recipient: %w", err)
	}
	return &event.TreasuryWithdraw{
		RequestID: requestID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Recipient: recipient,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type straySweepJSON struct {
	RequestID   string `json:"request_id"`
	Asset       string `json:"asset"`
	Recipient   string `json:"recipient"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStraySweep(data []byte) (*event.StraySweep, error) {
	var j straySweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StraySweep: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	recipient, err := uuid.Parse(j.Recipient)
	if err != nil {
		return nil, fmt.Errorf("parse recipient: %w", err)
	}
	return &event.StraySweep{
		RequestID: requestID,
		Asset:     j.Asset,
		Recipient: recipient,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}
