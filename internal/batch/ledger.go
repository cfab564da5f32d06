/*

The batch ledger holds deposits that have not been allocated yet. Every deposit issues a
Receipt carrying the depositor, the token, the uniform amount and the cycle it belongs to.
Receipts outlive the batch: once their cycle is allocated they wait to be redeemed for shares.

*/

package batch

import (
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/types"
)

// Ledger tracks per-token pending balances of the open cycle and every live receipt.
type Ledger struct {
	balances      map[string]sdkmath.Int // token units awaiting allocation
	receipts      map[uint64]types.Receipt
	nextReceiptID uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:      make(map[string]sdkmath.Int),
		receipts:      make(map[uint64]types.Receipt),
		nextReceiptID: 1,
	}
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		balances:      make(map[string]sdkmath.Int, len(l.balances)),
		receipts:      make(map[uint64]types.Receipt, len(l.receipts)),
		nextReceiptID: l.nextReceiptID,
	}
	for k, v := range l.balances {
		out.balances[k] = v
	}
	for k, v := range l.receipts {
		out.receipts[k] = v
	}
	return out
}

// Deposit records tokens entering the batch and issues their receipt.
func (l *Ledger) Deposit(owner, denom string, amount, amountUniform sdkmath.Int, cycleID uint64, now time.Time) types.Receipt {
	l.balances[denom] = l.Balance(denom).Add(amount)
	r := types.Receipt{
		ID:            l.nextReceiptID,
		Owner:         owner,
		Denom:         denom,
		AmountUniform: amountUniform,
		CycleID:       cycleID,
		CreatedAt:     now,
	}
	l.receipts[r.ID] = r
	l.nextReceiptID++
	return r
}

// Balance is the pending token amount of denom.
func (l *Ledger) Balance(denom string) sdkmath.Int {
	if b, ok := l.balances[denom]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// Denoms lists the tokens with a pending balance, sorted.
func (l *Ledger) Denoms() []string {
	out := make([]string, 0, len(l.balances))
	for d, b := range l.balances {
		if b.IsPositive() {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether no token is pending.
func (l *Ledger) IsEmpty() bool {
	return len(l.Denoms()) == 0
}

// Drain empties the pending balances and returns them. Receipts are untouched.
func (l *Ledger) Drain() map[string]sdkmath.Int {
	out := l.balances
	l.balances = make(map[string]sdkmath.Int)
	return out
}

// Receipt looks a receipt up by id.
func (l *Ledger) Receipt(id uint64) (types.Receipt, error) {
	r, ok := l.receipts[id]
	if !ok {
		return types.Receipt{}, errorsmod.Wrapf(types.ErrReceiptNotFound, "receipt %d", id)
	}
	return r, nil
}

// OwnedReceipt looks a receipt up and checks who holds it.
func (l *Ledger) OwnedReceipt(owner string, id uint64) (types.Receipt, error) {
	r, err := l.Receipt(id)
	if err != nil {
		return r, err
	}
	if r.Owner != owner {
		return types.Receipt{}, errorsmod.Wrapf(types.ErrNotReceiptOwner, "receipt %d is held by %s", id, r.Owner)
	}
	return r, nil
}

// ReceiptsOf lists an owner's receipts by id.
func (l *Ledger) ReceiptsOf(owner string) []types.Receipt {
	var out []types.Receipt
	for _, r := range l.receipts {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReceiptsOfCycle lists the live receipts issued in cycleID by id.
func (l *Ledger) ReceiptsOfCycle(cycleID uint64) []types.Receipt {
	var out []types.Receipt
	for _, r := range l.receipts {
		if r.CycleID == cycleID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Withdraw takes amountUniform off an open-cycle receipt and amount tokens off the pending
// balance. A receipt reduced to zero is burned.
func (l *Ledger) Withdraw(owner string, id uint64, amountUniform, amount sdkmath.Int, openCycleID uint64) (types.Receipt, error) {
	r, err := l.OwnedReceipt(owner, id)
	if err != nil {
		return r, err
	}
	if r.CycleID != openCycleID {
		return types.Receipt{}, errorsmod.Wrapf(types.ErrReceiptAllocated, "receipt %d belongs to cycle %d", id, r.CycleID)
	}
	if !amountUniform.IsPositive() || amountUniform.GT(r.AmountUniform) {
		return types.Receipt{}, errorsmod.Wrapf(types.ErrInvalidAmount, "cannot take %s from receipt %d holding %s", amountUniform, id, r.AmountUniform)
	}
	pending := l.Balance(r.Denom)
	if amount.GT(pending) {
		return types.Receipt{}, errorsmod.Wrapf(types.ErrInvalidAmount, "batch holds %s %s, asked %s", pending, r.Denom, amount)
	}

	l.balances[r.Denom] = pending.Sub(amount)
	r.AmountUniform = r.AmountUniform.Sub(amountUniform)
	if r.AmountUniform.IsZero() {
		delete(l.receipts, id)
	} else {
		l.receipts[id] = r
	}
	return r, nil
}

// Burn removes a receipt once it has been redeemed.
func (l *Ledger) Burn(id uint64) {
	delete(l.receipts, id)
}

// ReceiptCount is the number of live receipts.
func (l *Ledger) ReceiptCount() int {
	return len(l.receipts)
}
