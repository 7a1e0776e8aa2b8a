package token

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Holder identifies a balance owner: a user wallet or a module account.
type Holder string

const (
	HolderVaultModule    Holder = "module:vault"
	HolderLeverageModule Holder = "module:leverage"
	HolderTreasury       Holder = "module:treasury"
)

// UserHolder derives the wallet holder for a user id.
func UserHolder(userID uuid.UUID) Holder {
	return Holder("user:" + userID.String())
}

// TransferHook fires after every completed Transfer/TransferFrom. A non-nil
// error fails the transfer's caller; balances have already moved, so callers
// running inside a session rely on rollback to undo them.
type TransferHook func(from, to Holder, asset string, amount int64) error

type balanceKey struct {
	Holder Holder
	Asset  string
}

type allowanceKey struct {
	Owner   Holder
	Spender Holder
	Asset   string
}

// Engine is the in-memory token primitive: per-asset balances with
// mint/burn/transfer/allowance semantics. Single-writer: only the
// deterministic core mutates it.
type Engine struct {
	balances   map[balanceKey]int64
	allowances map[allowanceKey]int64
	hook       TransferHook
}

func NewEngine() *Engine {
	return &Engine{
		balances:   make(map[balanceKey]int64),
		allowances: make(map[allowanceKey]int64),
	}
}

// SetTransferHook installs the post-transfer callback. Pass nil to clear.
func (e *Engine) SetTransferHook(h TransferHook) {
	e.hook = h
}

func (e *Engine) BalanceOf(holder Holder, asset string) int64 {
	return e.balances[balanceKey{Holder: holder, Asset: asset}]
}

func (e *Engine) Allowance(owner, spender Holder, asset string) int64 {
	return e.allowances[allowanceKey{Owner: owner, Spender: spender, Asset: asset}]
}

// Mint credits new supply to a holder.
func (e *Engine) Mint(to Holder, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: mint %d %s", ErrInvalidAmount, amount, asset)
	}
	key := balanceKey{Holder: to, Asset: asset}
	if e.balances[key] > math.MaxInt64-amount {
		return fmt.Errorf("mint overflows balance of %s for %s", asset, to)
	}
	e.balances[key] += amount
	return nil
}

// Burn destroys supply held by a holder.
func (e *Engine) Burn(from Holder, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: burn %d %s", ErrInvalidAmount, amount, asset)
	}
	key := balanceKey{Holder: from, Asset: asset}
	if e.balances[key] < amount {
		return fmt.Errorf("%w: %s holds %d %s, burn wants %d",
			ErrInsufficientBalance, from, e.balances[key], asset, amount)
	}
	e.balances[key] -= amount
	return nil
}

// Transfer moves amount between holders and fires the transfer hook.
func (e *Engine) Transfer(from, to Holder, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer %d %s", ErrInvalidAmount, amount, asset)
	}
	fromKey := balanceKey{Holder: from, Asset: asset}
	if e.balances[fromKey] < amount {
		return fmt.Errorf("%w: %s holds %d %s, transfer wants %d",
			ErrInsufficientBalance, from, e.balances[fromKey], asset, amount)
	}
	toKey := balanceKey{Holder: to, Asset: asset}
	if e.balances[toKey] > math.MaxInt64-amount {
		return fmt.Errorf("transfer overflows balance of %s for %s", asset, to)
	}
	e.balances[fromKey] -= amount
	e.balances[toKey] += amount

	if e.hook != nil {
		if err := e.hook(from, to, asset, amount); err != nil {
			return fmt.Errorf("transfer hook: %w", err)
		}
	}
	return nil
}

// Approve sets (not adds to) the spender's allowance.
func (e *Engine) Approve(owner, spender Holder, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: approve %d %s", ErrInvalidAmount, amount, asset)
	}
	e.allowances[allowanceKey{Owner: owner, Spender: spender, Asset: asset}] = amount
	return nil
}

// TransferFrom spends the caller's allowance to move the owner's balance.
func (e *Engine) TransferFrom(spender, from, to Holder, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transferFrom %d %s", ErrInvalidAmount, amount, asset)
	}
	key := allowanceKey{Owner: from, Spender: spender, Asset: asset}
	if e.allowances[key] < amount {
		return fmt.Errorf("%w: %s allows %s only %d %s, transfer wants %d",
			ErrInsufficientAllowance, from, spender, e.allowances[key], asset, amount)
	}
	e.allowances[key] -= amount
	return e.Transfer(from, to, asset, amount)
}

// SetBalance directly sets a balance (used for snapshot restore and session
// rollback). Zero deletes the entry so restored state hashes identically.
func (e *Engine) SetBalance(holder Holder, asset string, amount int64) {
	key := balanceKey{Holder: holder, Asset: asset}
	if amount == 0 {
		delete(e.balances, key)
		return
	}
	e.balances[key] = amount
}

// SetAllowance directly sets an allowance (used for snapshot restore and
// session rollback).
func (e *Engine) SetAllowance(owner, spender Holder, asset string, amount int64) {
	key := allowanceKey{Owner: owner, Spender: spender, Asset: asset}
	if amount == 0 {
		delete(e.allowances, key)
		return
	}
	e.allowances[key] = amount
}

// BalanceEntry is one row of the deterministic balance dump.
type BalanceEntry struct {
	Holder Holder
	Asset  string
	Amount int64
}

// SortedBalances returns every nonzero balance ordered by holder then asset,
// for state digests and snapshots.
func (e *Engine) SortedBalances() []BalanceEntry {
	entries := make([]BalanceEntry, 0, len(e.balances))
	for key, amount := range e.balances {
		if amount == 0 {
			continue
		}
		entries = append(entries, BalanceEntry{Holder: key.Holder, Asset: key.Asset, Amount: amount})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Holder != entries[j].Holder {
			return entries[i].Holder < entries[j].Holder
		}
		return entries[i].Asset < entries[j].Asset
	})
	return entries
}

// AllowanceEntry is one row of the deterministic allowance dump.
type AllowanceEntry struct {
	Owner   Holder
	Spender Holder
	Asset   string
	Amount  int64
}

// SortedAllowances returns every nonzero allowance in deterministic order.
func (e *Engine) SortedAllowances() []AllowanceEntry {
	entries := make([]AllowanceEntry, 0, len(e.allowances))
	for key, amount := range e.allowances {
		if amount == 0 {
			continue
		}
		entries = append(entries, AllowanceEntry{
			Owner: key.Owner, Spender: key.Spender, Asset: key.Asset, Amount: amount,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Spender != b.Spender {
			return a.Spender < b.Spender
		}
		return a.Asset < b.Asset
	})
	return entries
}
