/*

BatchOut queue. Withdrawal requests accumulate in the current cycle; once its window has
elapsed the cycle is executed (funds pulled and converted in one pass per token) and the next
cycle opens. An executed cycle is fulfilled exactly once, paying every request its pro-rata
part of what was pulled for its token.

*/

package batchout

import (
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/types"
)

// CustodyAddress holds the shares of scheduled requests until their cycle executes.
const CustodyAddress = "stablerouter/batch-out"

type Queue struct {
	cycles    map[uint64]*types.BatchOutCycle
	currentID uint64
}

func NewQueue() *Queue {
	q := &Queue{cycles: make(map[uint64]*types.BatchOutCycle)}
	q.open(1)
	return q
}

func (q *Queue) open(id uint64) {
	q.cycles[id] = &types.BatchOutCycle{
		ID:              id,
		TotalShares:     sdkmath.ZeroInt(),
		SharesByDenom:   make(map[string]sdkmath.Int),
		ReceivedByDenom: make(map[string]sdkmath.Int),
		CollectedFees:   sdkmath.ZeroInt(),
	}
	q.currentID = id
}

func (q *Queue) Clone() *Queue {
	out := &Queue{cycles: make(map[uint64]*types.BatchOutCycle, len(q.cycles)), currentID: q.currentID}
	for id, c := range q.cycles {
		cc := c.Clone()
		out.cycles[id] = &cc
	}
	return out
}

// CurrentID is the cycle accepting requests.
func (q *Queue) CurrentID() uint64 {
	return q.currentID
}

// Current returns a copy of the cycle accepting requests.
func (q *Queue) Current() types.BatchOutCycle {
	return q.cycles[q.currentID].Clone()
}

// Cycle returns a copy of cycle id.
func (q *Queue) Cycle(id uint64) (types.BatchOutCycle, bool) {
	c, ok := q.cycles[id]
	if !ok {
		return types.BatchOutCycle{}, false
	}
	return c.Clone(), true
}

// AddRequest queues a request in the current cycle. The first request starts the countdown.
func (q *Queue) AddRequest(req types.WithdrawalRequest) uint64 {
	c := q.cycles[q.currentID]
	if len(c.Requests) == 0 {
		c.StartAt = req.RequestedAt
	}
	c.Requests = append(c.Requests, req)
	c.TotalShares = c.TotalShares.Add(req.Shares)
	prev, ok := c.SharesByDenom[req.Denom]
	if !ok {
		prev = sdkmath.ZeroInt()
	}
	c.SharesByDenom[req.Denom] = prev.Add(req.Shares)
	if !req.FeePaid.IsNil() {
		c.CollectedFees = c.CollectedFees.Add(req.FeePaid)
	}
	return c.ID
}

// WindowElapsed reports whether the current cycle holds requests older than window.
func (q *Queue) WindowElapsed(now time.Time, window time.Duration) bool {
	c := q.cycles[q.currentID]
	return len(c.Requests) > 0 && now.Sub(c.StartAt) >= window
}

// NeedsUpkeep is true when the current cycle can execute or an executed cycle awaits fulfilment.
func (q *Queue) NeedsUpkeep(now time.Time, window time.Duration) bool {
	return q.WindowElapsed(now, window) || len(q.NotFulfilledIDs()) > 0
}

// MarkExecuted records what was pulled per token for the current cycle and opens the next one.
func (q *Queue) MarkExecuted(received map[string]sdkmath.Int, now time.Time) (uint64, error) {
	c := q.cycles[q.currentID]
	if len(c.Requests) == 0 {
		return 0, errorsmod.Wrapf(types.ErrNothingToExecute, "batch out cycle %d has no request", c.ID)
	}
	for denom, amount := range received {
		c.ReceivedByDenom[denom] = amount
	}
	c.Executed = true
	c.ExecutedAt = now
	q.open(c.ID + 1)
	return c.ID, nil
}

// NotFulfilledIDs lists executed cycles still owing their payouts, oldest first.
// A cycle without requests is never executed, so it never appears here.
func (q *Queue) NotFulfilledIDs() []uint64 {
	var out []uint64
	for id, c := range q.cycles {
		if c.Executed && !c.Fulfilled {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fulfill computes every request's payout and closes the cycle. Within a token, payouts are
// pro-rata to shares and the last request receives the rounding remainder.
func (q *Queue) Fulfill(id uint64) ([]types.Payout, error) {
	c, ok := q.cycles[id]
	if !ok || !c.Executed {
		return nil, errorsmod.Wrapf(types.ErrNothingToFulfill, "batch out cycle %d has not been executed", id)
	}
	if c.Fulfilled {
		return nil, errorsmod.Wrapf(types.ErrAllWithdrawalsFulfilled, "batch out cycle %d", id)
	}

	lastIndex := make(map[string]int)
	for i, r := range c.Requests {
		lastIndex[r.Denom] = i
	}
	paid := make(map[string]sdkmath.Int)

	payouts := make([]types.Payout, 0, len(c.Requests))
	for i, r := range c.Requests {
		received, ok := c.ReceivedByDenom[r.Denom]
		if !ok {
			received = sdkmath.ZeroInt()
		}
		sofar, ok := paid[r.Denom]
		if !ok {
			sofar = sdkmath.ZeroInt()
		}
		amount := received.Sub(sofar)
		if i != lastIndex[r.Denom] {
			amount = accounting.MustMulDiv(received, r.Shares, c.SharesByDenom[r.Denom])
		}
		paid[r.Denom] = sofar.Add(amount)
		payouts = append(payouts, types.Payout{Owner: r.Owner, Coin: sdktypes.NewCoin(r.Denom, amount), CycleID: id})
	}

	c.Fulfilled = true
	return payouts, nil
}

// Denoms lists the tokens requested in the current cycle, sorted.
func (q *Queue) Denoms() []string {
	c := q.cycles[q.currentID]
	out := make([]string, 0, len(c.SharesByDenom))
	for d := range c.SharesByDenom {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
