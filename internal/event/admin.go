package event

import (
	"fmt"

	"github.com/google/uuid"
)

// VaultRegister creates a vault's configuration and registers it with the
// interest engine. EffectiveSeq orders admin updates for a vault.
type VaultRegister struct {
	Vault                string
	CollateralAsset      string
	DebtAsset            string
	LTVRatio             uint64 // Percent, (0,100]
	LiquidationThreshold uint64 // Percent, >= LTVRatio
	LiquidatorRewardBips uint64 // [0,10000]
	AnnualRateBips       uint64 // Interest rate; must be > 0
	TreasuryID           uuid.UUID
	StalenessWindowSec   int64 // 0 = default (1 hour)
	EffectiveSeq         int64
	Sequence             int64
	Timestamp            int64
}

func (v *VaultRegister) IdempotencyKey() string {
	return fmt.Sprintf("vault_register:%s:%d", v.Vault, v.EffectiveSeq)
}

func (v *VaultRegister) EventType() EventType {
	return EventTypeVaultRegister
}

func (v *VaultRegister) VaultID() *string {
	s := v.Vault
	return &s
}

func (v *VaultRegister) SourceSequence() int64 {
	return v.Sequence
}

// VaultParamUpdate mutates a registered vault's parameters. Nil pointer
// fields are left unchanged; every applied change emits an audit record
// with old and new values.
type VaultParamUpdate struct {
	Vault                string
	LTVRatio             *uint64
	LiquidationThreshold *uint64
	LiquidatorRewardBips *uint64
	AnnualRateBips       *uint64
	PeriodBlocks         *int64
	TreasuryID           *uuid.UUID
	EffectiveSeq         int64
	Sequence             int64
	Timestamp            int64
}

func (v *VaultParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("vault_param:%s:%d", v.Vault, v.EffectiveSeq)
}

func (v *VaultParamUpdate) EventType() EventType {
	return EventTypeVaultParamUpdate
}

func (v *VaultParamUpdate) VaultID() *string {
	s := v.Vault
	return &s
}

func (v *VaultParamUpdate) SourceSequence() int64 {
	return v.Sequence
}

// TreasuryWithdraw pays out accumulated treasury holdings to a recipient's
// wallet. Privileged owner only.
type TreasuryWithdraw struct {
	RequestID uuid.UUID
	Asset     string
	Amount    int64
	Recipient uuid.UUID
	Sequence  int64
	Timestamp int64
}

func (t *TreasuryWithdraw) IdempotencyKey() string {
	return t.RequestID.String()
}

func (t *TreasuryWithdraw) EventType() EventType {
	return EventTypeTreasuryWithdraw
}

func (t *TreasuryWithdraw) VaultID() *string {
	return nil // Admin event
}

func (t *TreasuryWithdraw) SourceSequence() int64 {
	return t.Sequence
}

// StraySweep moves tokens stranded on the vault module account (sent there
// by mistake, outside any position) to a recipient's wallet.
type StraySweep struct {
	RequestID uuid.UUID
	Asset     string
	Recipient uuid.UUID
	Sequence  int64
	Timestamp int64
}

func (s *StraySweep) IdempotencyKey() string {
	return s.RequestID.String()
}

func (s *StraySweep) EventType() EventType {
	return EventTypeStraySweep
}

func (s *StraySweep) VaultID() *string {
	return nil // Admin event
}

func (s *StraySweep) SourceSequence() int64 {
	return s.Sequence
}
