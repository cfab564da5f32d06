/*

Records of the deferred withdrawal queue. Each BatchOut cycle collects withdrawal
requests until its window elapses, is executed once, and is fulfilled once.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BatchOutStatus is the position of a BatchOut cycle in its state machine.
type BatchOutStatus string

const (
	BatchOutOpen         BatchOutStatus = "OPEN"
	BatchOutAccumulating BatchOutStatus = "ACCUMULATING"
	BatchOutExecuted     BatchOutStatus = "EXECUTED"
	BatchOutFulfilled    BatchOutStatus = "FULFILLED"
)

// WithdrawalRequest is one user's pending claim in a BatchOut cycle.
type WithdrawalRequest struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Denom       string      `json:"denom"`
	Shares      sdkmath.Int `json:"shares"`
	FeePaid     sdkmath.Int `json:"fee_paid"` // in the fee settings' gas denom
	RequestedAt time.Time   `json:"requested_at"`
}

// BatchOutCycle aggregates the requests of one BatchOut cycle.
type BatchOutCycle struct {
	ID              uint64                 `json:"id"`
	StartAt         time.Time              `json:"start_at"`
	Requests        []WithdrawalRequest    `json:"requests"`
	TotalShares     sdkmath.Int            `json:"total_shares"`
	SharesByDenom   map[string]sdkmath.Int `json:"shares_by_denom"`
	ReceivedByDenom map[string]sdkmath.Int `json:"received_by_denom"`
	CollectedFees   sdkmath.Int            `json:"collected_fees"`
	Executed        bool                   `json:"executed"`
	ExecutedAt      time.Time              `json:"executed_at,omitempty"`
	Fulfilled       bool                   `json:"fulfilled"`
}

// Status derives the state machine position from the cycle's flags.
func (c BatchOutCycle) Status() BatchOutStatus {
	switch {
	case c.Fulfilled:
		return BatchOutFulfilled
	case c.Executed:
		return BatchOutExecuted
	case len(c.Requests) > 0:
		return BatchOutAccumulating
	default:
		return BatchOutOpen
	}
}

// Clone returns a deep copy of the cycle.
func (c BatchOutCycle) Clone() BatchOutCycle {
	c.Requests = append([]WithdrawalRequest(nil), c.Requests...)
	c.SharesByDenom = cloneIntMap(c.SharesByDenom)
	c.ReceivedByDenom = cloneIntMap(c.ReceivedByDenom)
	return c
}

func cloneIntMap(m map[string]sdkmath.Int) map[string]sdkmath.Int {
	out := make(map[string]sdkmath.Int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
