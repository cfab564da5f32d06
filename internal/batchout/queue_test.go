package batchout

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/stablerouter/internal/types"
)

var start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func request(id, owner, denom string, shares int64, at time.Time) types.WithdrawalRequest {
	return types.WithdrawalRequest{
		ID:          id,
		Owner:       owner,
		Denom:       denom,
		Shares:      sdkmath.NewInt(shares),
		FeePaid:     sdkmath.NewInt(1),
		RequestedAt: at,
	}
}

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue()
	require.Equal(t, uint64(1), q.CurrentID())
	assert.Equal(t, types.BatchOutOpen, q.Current().Status())
	assert.False(t, q.NeedsUpkeep(start.Add(48*time.Hour), time.Hour))

	id := q.AddRequest(request("a", "alice", "usdc", 100, start))
	q.AddRequest(request("b", "bob", "usdc", 50, start.Add(30*time.Minute)))
	q.AddRequest(request("c", "carol", "dai", 10, start.Add(40*time.Minute)))
	require.Equal(t, uint64(1), id)

	cur := q.Current()
	assert.Equal(t, types.BatchOutAccumulating, cur.Status())
	assert.Equal(t, start, cur.StartAt, "the first request starts the countdown")
	assert.Equal(t, "160", cur.TotalShares.String())
	assert.Equal(t, "150", cur.SharesByDenom["usdc"].String())
	assert.Equal(t, "3", cur.CollectedFees.String())
	assert.Equal(t, []string{"dai", "usdc"}, q.Denoms())

	assert.False(t, q.WindowElapsed(start.Add(59*time.Minute), time.Hour))
	assert.True(t, q.NeedsUpkeep(start.Add(time.Hour), time.Hour))

	executed, err := q.MarkExecuted(map[string]sdkmath.Int{"usdc": sdkmath.NewInt(1000), "dai": sdkmath.NewInt(7)}, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), executed)
	assert.Equal(t, uint64(2), q.CurrentID())
	assert.Equal(t, []uint64{1}, q.NotFulfilledIDs())
	assert.True(t, q.NeedsUpkeep(start.Add(time.Hour), time.Hour), "executed cycle still owes payouts")

	c, ok := q.Cycle(1)
	require.True(t, ok)
	assert.Equal(t, types.BatchOutExecuted, c.Status())

	payouts, err := q.Fulfill(1)
	require.NoError(t, err)
	require.Len(t, payouts, 3)
	assert.Equal(t, "666", payouts[0].Coin.Amount.String())
	assert.Equal(t, "334", payouts[1].Coin.Amount.String(), "last request of a token takes the remainder")
	assert.Equal(t, "7", payouts[2].Coin.Amount.String())
	assert.Equal(t, uint64(1), payouts[0].CycleID)

	assert.Empty(t, q.NotFulfilledIDs())
	c, _ = q.Cycle(1)
	assert.Equal(t, types.BatchOutFulfilled, c.Status())
}

func TestFulfillExactlyOnce(t *testing.T) {
	q := NewQueue()

	_, err := q.Fulfill(1)
	require.ErrorIs(t, err, types.ErrNothingToFulfill)
	_, err = q.Fulfill(42)
	require.ErrorIs(t, err, types.ErrNothingToFulfill)

	_, err = q.MarkExecuted(nil, start)
	require.ErrorIs(t, err, types.ErrNothingToExecute)

	q.AddRequest(request("a", "alice", "usdc", 1, start))
	_, err = q.MarkExecuted(map[string]sdkmath.Int{"usdc": sdkmath.NewInt(5)}, start)
	require.NoError(t, err)

	_, err = q.Fulfill(1)
	require.NoError(t, err)
	_, err = q.Fulfill(1)
	require.ErrorIs(t, err, types.ErrAllWithdrawalsFulfilled)
}

func TestFulfillWithNothingReceived(t *testing.T) {
	q := NewQueue()
	q.AddRequest(request("a", "alice", "usdc", 1, start))
	_, err := q.MarkExecuted(map[string]sdkmath.Int{}, start)
	require.NoError(t, err)

	payouts, err := q.Fulfill(1)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.True(t, payouts[0].Coin.Amount.IsZero())
}

func TestQueueCloneIsIndependent(t *testing.T) {
	q := NewQueue()
	q.AddRequest(request("a", "alice", "usdc", 1, start))

	c := q.Clone()
	c.AddRequest(request("b", "bob", "usdc", 1, start))
	_, err := c.MarkExecuted(nil, start)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), q.CurrentID())
	assert.Len(t, q.Current().Requests, 1)
	assert.Empty(t, q.NotFulfilledIDs())
}
