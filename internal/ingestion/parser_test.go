package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseWalletFund(t *testing.T) {
	payload := map[string]interface{}{
		"fund_id":      "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "USDC",
		"amount":       int64(1_000_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "WalletFund")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wf, ok := evt.(*event.WalletFund)
	if !ok {
		t.Fatalf("expected *event.WalletFund, got %T", evt)
	}

	if wf.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", wf.Asset)
	}
	if wf.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", wf.Amount)
	}
	if wf.Timestamp != 1700000000000000 {
		t.Errorf("timestamp: got %d, want 1700000000000000", wf.Timestamp)
	}
	if wf.EventType() != event.EventTypeWalletFund {
		t.Errorf("event type: got %v, want WalletFund", wf.EventType())
	}
}

func TestParsePositionOpen(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":        "550e8400-e29b-41d4-a716-446655440000",
		"vault":             "eth-usdc-main",
		"owner_id":          "660e8400-e29b-41d4-a716-446655440001",
		"collateral_amount": int64(10_000),
		"debt_amount":       int64(5_000_000),
		"block_height":      int64(100),
		"sequence":          int64(3),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PositionOpen")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	po, ok := evt.(*event.PositionOpen)
	if !ok {
		t.Fatalf("expected *event.PositionOpen, got %T", evt)
	}

	if po.Vault != "eth-usdc-main" {
		t.Errorf("vault: got %s, want eth-usdc-main", po.Vault)
	}
	if po.CollateralAmount != 10_000 {
		t.Errorf("collateral_amount: got %d, want 10_000", po.CollateralAmount)
	}
	if po.DebtAmount != 5_000_000 {
		t.Errorf("debt_amount: got %d, want 5_000_000", po.DebtAmount)
	}
	if po.BlockHeight != 100 {
		t.Errorf("block_height: got %d, want 100", po.BlockHeight)
	}
	if vid := po.VaultID(); vid == nil || *vid != "eth-usdc-main" {
		t.Errorf("vault id: got %v, want eth-usdc-main", vid)
	}
}

func TestParseDebtBorrow_WithBeneficiary(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"vault":        "eth-usdc-main",
		"position_id":  int64(7),
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"beneficiary":  "770e8400-e29b-41d4-a716-446655440002",
		"amount":       int64(2_500_000),
		"block_height": int64(120),
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DebtBorrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	db, ok := evt.(*event.DebtBorrow)
	if !ok {
		t.Fatalf("expected *event.DebtBorrow, got %T", evt)
	}

	if db.PositionID != 7 {
		t.Errorf("position_id: got %d, want 7", db.PositionID)
	}
	if db.Beneficiary == nil {
		t.Fatal("beneficiary: got nil, want set")
	}
	if db.Beneficiary.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("beneficiary: got %s", db.Beneficiary)
	}
}

func TestParseDebtBorrow_NoBeneficiary(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "550e8400-e29b-41d4-a716-446655440000",
		"vault":        "eth-usdc-main",
		"position_id":  int64(7),
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(2_500_000),
		"block_height": int64(120),
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DebtBorrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	db := evt.(*event.DebtBorrow)
	if db.Beneficiary != nil {
		t.Errorf("beneficiary: got %v, want nil", db.Beneficiary)
	}
}

func TestParseLeverageOpen(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":        "550e8400-e29b-41d4-a716-446655440000",
		"vault":             "eth-usdc-main",
		"caller_id":         "660e8400-e29b-41d4-a716-446655440001",
		"collateral_amount": int64(10_000),
		"leverage":          uint32(3),
		"min_amount_out":    int64(4_000),
		"route":             []string{"USDC", "ETH"},
		"block_height":      int64(200),
		"sequence":          int64(11),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LeverageOpen")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lo, ok := evt.(*event.LeverageOpen)
	if !ok {
		t.Fatalf("expected *event.LeverageOpen, got %T", evt)
	}

	if lo.Leverage != 3 {
		t.Errorf("leverage: got %d, want 3", lo.Leverage)
	}
	if lo.MinAmountOut != 4_000 {
		t.Errorf("min_amount_out: got %d, want 4_000", lo.MinAmountOut)
	}
	if len(lo.Route) != 2 || lo.Route[0] != "USDC" || lo.Route[1] != "ETH" {
		t.Errorf("route: got %v, want [USDC ETH]", lo.Route)
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"asset":              "ETH",
		"raw_price":          int64(2_000_00000000),
		"decimals":           uint8(8),
		"feed_sequence":      int64(42),
		"price_timestamp_us": int64(1700000000000000),
		"source":             "chainlink",
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if pu.Asset != "ETH" {
		t.Errorf("asset: got %s, want ETH", pu.Asset)
	}
	if pu.RawPrice != 2_000_00000000 {
		t.Errorf("raw_price: got %d, want 2_000_00000000", pu.RawPrice)
	}
	if pu.Decimals != 8 {
		t.Errorf("decimals: got %d, want 8", pu.Decimals)
	}
	if pu.FeedSequence != 42 {
		t.Errorf("feed_sequence: got %d, want 42", pu.FeedSequence)
	}
	if pu.SourceSequence() != 42 {
		t.Errorf("source sequence: got %d, want 42", pu.SourceSequence())
	}
}

func TestParseVaultRegister(t *testing.T) {
	payload := map[string]interface{}{
		"vault":                  "eth-usdc-main",
		"collateral_asset":       "ETH",
		"debt_asset":             "USDC",
		"ltv_ratio":              uint64(50),
		"liquidation_threshold":  uint64(80),
		"liquidator_reward_bips": uint64(500),
		"annual_rate_bips":       uint64(500),
		"treasury_id":            "880e8400-e29b-41d4-a716-446655440003",
		"staleness_window_sec":   int64(3600),
		"effective_seq":          int64(1),
		"sequence":               int64(1),
		"timestamp_us":           int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "VaultRegister")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	vr, ok := evt.(*event.VaultRegister)
	if !ok {
		t.Fatalf("expected *event.VaultRegister, got %T", evt)
	}

	if vr.CollateralAsset != "ETH" || vr.DebtAsset != "USDC" {
		t.Errorf("assets: got %s/%s, want ETH/USDC", vr.CollateralAsset, vr.DebtAsset)
	}
	if vr.LTVRatio != 50 {
		t.Errorf("ltv_ratio: got %d, want 50", vr.LTVRatio)
	}
	if vr.LiquidationThreshold != 80 {
		t.Errorf("liquidation_threshold: got %d, want 80", vr.LiquidationThreshold)
	}
	if vr.AnnualRateBips != 500 {
		t.Errorf("annual_rate_bips: got %d, want 500", vr.AnnualRateBips)
	}
}

func TestParseVaultParamUpdate_PartialFields(t *testing.T) {
	payload := map[string]interface{}{
		"vault":         "eth-usdc-main",
		"ltv_ratio":     uint64(40),
		"effective_seq": int64(2),
		"sequence":      int64(5),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "VaultParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	vp, ok := evt.(*event.VaultParamUpdate)
	if !ok {
		t.Fatalf("expected *event.VaultParamUpdate, got %T", evt)
	}

	if vp.LTVRatio == nil || *vp.LTVRatio != 40 {
		t.Errorf("ltv_ratio: got %v, want 40", vp.LTVRatio)
	}
	if vp.LiquidationThreshold != nil {
		t.Errorf("liquidation_threshold: got %v, want nil", vp.LiquidationThreshold)
	}
	if vp.AnnualRateBips != nil {
		t.Errorf("annual_rate_bips: got %v, want nil", vp.AnnualRateBips)
	}
	if vp.TreasuryID != nil {
		t.Errorf("treasury_id: got %v, want nil", vp.TreasuryID)
	}
}

func TestParseInterestSweep_IdempotencyKey(t *testing.T) {
	payload := map[string]interface{}{
		"vault":        "eth-usdc-main",
		"block_height": int64(14400),
		"sequence":     int64(20),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "InterestSweep")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	is, ok := evt.(*event.InterestSweep)
	if !ok {
		t.Fatalf("expected *event.InterestSweep, got %T", evt)
	}

	if got, want := is.IdempotencyKey(), "interest_sweep:eth-usdc-main:14400"; got != want {
		t.Errorf("idempotency key: got %s, want %s", got, want)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "WalletFund")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"fund_id":      "not-a-uuid",
		"user_id":      "also-not-a-uuid",
		"asset":        "USDC",
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "WalletFund")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
