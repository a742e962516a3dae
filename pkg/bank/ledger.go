// Package bank is the asset-transfer collaborator: a denominated balance
// ledger over the same KV abstraction the exchange uses. A transfer plan is
// applied atomically; if any entry would overdraw an account the whole plan
// is rejected and no balance moves.
package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/exchange"
	"github.com/atsx/atsd/pkg/fixed"
	"github.com/atsx/atsd/pkg/store"
)

// ErrInsufficientFunds rejects a plan that would overdraw an account.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

// Ledger holds balances in a KV store, keyed by account and denom.
type Ledger struct {
	kv store.KV
}

// New returns a ledger over kv.
func New(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

func balanceKey(addr common.Address, denom string) []byte {
	return []byte("bal:" + addr.Hex() + ":" + denom)
}

// Balance returns the amount of denom held by addr. Missing keys are zero.
func (l *Ledger) Balance(addr common.Address, denom string) (fixed.Int, error) {
	raw, err := l.kv.Get(balanceKey(addr, denom))
	if errors.Is(err, store.ErrNotFound) {
		return fixed.NewInt(0), nil
	}
	if err != nil {
		return fixed.Int{}, fmt.Errorf("bank: read balance: %w", err)
	}
	return fixed.ParseInt(string(raw))
}

// Mint credits addr with amount out of thin air. Used to fund accounts in
// devnet runs and tests; there is no corresponding burn.
func (l *Ledger) Mint(addr common.Address, amount exchange.Coin) error {
	batch := store.NewBatch(l.kv)
	if err := l.credit(batch, addr, amount); err != nil {
		return err
	}
	return batch.Commit()
}

// Execute applies a transfer plan atomically. Every debit is checked
// against the staged balance, so ordering within the plan does not matter
// for correctness but funds may not go negative at the end.
func (l *Ledger) Execute(entries []exchange.LedgerEntry) error {
	batch := store.NewBatch(l.kv)
	for _, e := range entries {
		if e.Amount.IsZero() {
			return fmt.Errorf("bank: zero transfer amount")
		}
		if err := l.debit(batch, e.From, e.Amount); err != nil {
			return err
		}
		if err := l.credit(batch, e.To, e.Amount); err != nil {
			return err
		}
	}
	return batch.Commit()
}

func (l *Ledger) debit(batch *store.Batch, addr common.Address, amount exchange.Coin) error {
	cur, err := l.stagedBalance(batch, addr, amount.Denom)
	if err != nil {
		return err
	}
	next, err := cur.Sub(amount.Amount)
	if err != nil {
		return fmt.Errorf("%w: %s needs %s %s, holds %s", ErrInsufficientFunds, addr.Hex(), amount.Amount.String(), amount.Denom, cur.String())
	}
	batch.Set(balanceKey(addr, amount.Denom), []byte(next.String()))
	return nil
}

func (l *Ledger) credit(batch *store.Batch, addr common.Address, amount exchange.Coin) error {
	cur, err := l.stagedBalance(batch, addr, amount.Denom)
	if err != nil {
		return err
	}
	batch.Set(balanceKey(addr, amount.Denom), []byte(cur.Add(amount.Amount).String()))
	return nil
}

func (l *Ledger) stagedBalance(batch *store.Batch, addr common.Address, denom string) (fixed.Int, error) {
	raw, err := batch.Get(balanceKey(addr, denom))
	if errors.Is(err, store.ErrNotFound) {
		return fixed.NewInt(0), nil
	}
	if err != nil {
		return fixed.Int{}, fmt.Errorf("bank: read balance: %w", err)
	}
	return fixed.ParseInt(string(raw))
}

var _ exchange.Ledger = (*Ledger)(nil)
