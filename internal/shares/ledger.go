/*

The shares ledger maps USD value to ownership. Shares carry 18 decimals and price-per-share
is the uniform USD value of one whole share. Supply only moves through four paths:
bootstrap, cycle-close minting, fee minting on profit, and burning on withdrawal.

*/

package shares

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
)

// LockAddress permanently holds the bootstrap shares.
const LockAddress = "stablerouter/locked"

// InitialShares is minted to LockAddress on the first allocation so the supply can never be
// pushed back to a handful of wei-sized shares that make price-per-share trivially inflatable.
var InitialShares = sdkmath.NewInt(1_000_000_000_000)

type Ledger struct {
	balances map[string]sdkmath.Int
	total    sdkmath.Int

	// price-per-share recorded at the last fee checkpoint; profit is measured against it
	checkpointPps sdkmath.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:      make(map[string]sdkmath.Int),
		total:         sdkmath.ZeroInt(),
		checkpointPps: sdkmath.ZeroInt(),
	}
}

func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		balances:      make(map[string]sdkmath.Int, len(l.balances)),
		total:         l.total,
		checkpointPps: l.checkpointPps,
	}
	for k, v := range l.balances {
		out.balances[k] = v
	}
	return out
}

func (l *Ledger) TotalSupply() sdkmath.Int {
	return l.total
}

func (l *Ledger) BalanceOf(owner string) sdkmath.Int {
	if b, ok := l.balances[owner]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// Holders lists every account with a positive balance, sorted.
func (l *Ledger) Holders() []string {
	out := make([]string, 0, len(l.balances))
	for k, v := range l.balances {
		if v.IsPositive() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// IsBootstrapped reports whether the initial supply exists.
func (l *Ledger) IsBootstrapped() bool {
	return l.total.IsPositive()
}

// Bootstrap mints InitialShares to LockAddress. It is a no-op once supply exists.
func (l *Ledger) Bootstrap() bool {
	if l.IsBootstrapped() {
		return false
	}
	l.Mint(LockAddress, InitialShares)
	return true
}

func (l *Ledger) Mint(to string, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	l.balances[to] = l.BalanceOf(to).Add(amount)
	l.total = l.total.Add(amount)
}

func (l *Ledger) Burn(from string, amount sdkmath.Int) error {
	bal := l.BalanceOf(from)
	if amount.GT(bal) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s, burn %s", from, bal, amount)
	}
	l.balances[from] = bal.Sub(amount)
	l.total = l.total.Sub(amount)
	return nil
}

func (l *Ledger) Transfer(from, to string, amount sdkmath.Int) error {
	bal := l.BalanceOf(from)
	if amount.GT(bal) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s, transfer %s", from, bal, amount)
	}
	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.BalanceOf(to).Add(amount)
	return nil
}

// PricePerShare is totalValueUsd per whole share, or one dollar before any share exists.
func (l *Ledger) PricePerShare(totalValueUsd sdkmath.Int) sdkmath.Int {
	if l.total.IsZero() {
		return accounting.OneUniform()
	}
	return accounting.MustMulDiv(totalValueUsd, accounting.OneUniform(), l.total)
}

// SharesFromUsd converts USD value to shares at the live price. Before the bootstrap a share
// is worth one dollar.
func (l *Ledger) SharesFromUsd(usd, totalValueUsd sdkmath.Int) sdkmath.Int {
	if l.total.IsZero() || totalValueUsd.IsZero() {
		return usd
	}
	return accounting.MustMulDiv(usd, l.total, totalValueUsd)
}

// SharesAtPrice converts USD value to shares at a frozen price-per-share.
func SharesAtPrice(usd, pricePerShare sdkmath.Int) sdkmath.Int {
	if pricePerShare.IsZero() {
		return sdkmath.ZeroInt()
	}
	return accounting.MustMulDiv(usd, accounting.OneUniform(), pricePerShare)
}

// UsdFromShares converts shares to USD value at the live price.
func (l *Ledger) UsdFromShares(amount, totalValueUsd sdkmath.Int) sdkmath.Int {
	if l.total.IsZero() {
		return sdkmath.ZeroInt()
	}
	return accounting.MustMulDiv(amount, totalValueUsd, l.total)
}

// CheckpointPricePerShare is the reference price fee skimming compares against.
func (l *Ledger) CheckpointPricePerShare() sdkmath.Int {
	return l.checkpointPps
}

// Checkpoint records the price-per-share implied by totalValueUsd as the new profit reference.
func (l *Ledger) Checkpoint(totalValueUsd sdkmath.Int) {
	if l.total.IsZero() {
		l.checkpointPps = sdkmath.ZeroInt()
		return
	}
	l.checkpointPps = l.PricePerShare(totalValueUsd)
}

// SkimFee mints protocol fee shares on profit made since the last checkpoint. Profit is the
// part of totalValueUsd above supply * checkpoint price; fee shares are feeBps of the shares
// that profit is worth. A loss, or no checkpoint yet, skims nothing.
func (l *Ledger) SkimFee(totalValueUsd sdkmath.Int, feeBps uint64, feeAddress string) sdkmath.Int {
	if feeBps == 0 || feeAddress == "" || l.total.IsZero() || l.checkpointPps.IsZero() || totalValueUsd.IsZero() {
		return sdkmath.ZeroInt()
	}
	implied := accounting.MustMulDiv(l.total, l.checkpointPps, accounting.OneUniform())
	if !totalValueUsd.GT(implied) {
		return sdkmath.ZeroInt()
	}
	profit := totalValueUsd.Sub(implied)
	profitShares := accounting.MustMulDiv(profit, l.total, totalValueUsd)
	fee := accounting.BpsOf(profitShares, feeBps)
	l.Mint(feeAddress, fee)
	return fee
}
