package simulations

import (
	"errors"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/vault"
)

var (
	ErrStrategyPaused = errors.New("strategy is paused")
	ErrNegativeAmount = errors.New("amount is negative")
)

var strategyLogger = logger.GetForComponent("strategy_simulator")

// Strategy is an in-memory single-token position. It serves as both an active and an idle
// strategy. Behaviour knobs:
//   - ExitFeeBps: every withdrawal hands back that much less than it debits
//   - LiquidityCap: the most a single withdrawal can debit (nil means unlimited)
//   - YieldBps: growth applied to the balance by each Compound call
type Strategy struct {
	mu     sync.Mutex
	name   string
	denom  string
	paused bool

	balance      sdkmath.Int
	exitFeeBps   uint64
	yieldBps     uint64
	liquidityCap sdkmath.Int

	deposits    int
	withdrawals int
	compounds   int
}

var (
	_ vault.IdleStrategy = (*Strategy)(nil)
	_ vault.Checkpointer = (*Strategy)(nil)
)

func NewStrategy(name, denom string) *Strategy {
	return &Strategy{name: name, denom: denom, balance: sdkmath.ZeroInt()}
}

// NewIdleStrategy returns a zero-yield strategy named after its token.
func NewIdleStrategy(denom string) *Strategy {
	return NewStrategy("idle-"+denom, denom)
}

func (s *Strategy) WithExitFeeBps(bps uint64) *Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitFeeBps = bps
	return s
}

func (s *Strategy) WithYieldBps(bps uint64) *Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yieldBps = bps
	return s
}

func (s *Strategy) WithLiquidityCap(limit sdkmath.Int) *Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liquidityCap = limit
	return s
}

// SetBalance overwrites the position, e.g. to seed a test fixture.
func (s *Strategy) SetBalance(amount sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = amount
}

// AddYield credits accrued rewards without a compound call.
func (s *Strategy) AddYield(amount sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(amount)
}

// Pause makes deposits and withdrawals fail.
func (s *Strategy) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Calls reports how many deposit, withdraw and compound calls the strategy has served.
func (s *Strategy) Calls() (deposits, withdrawals, compounds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deposits, s.withdrawals, s.compounds
}

func (s *Strategy) Name() string         { return s.name }
func (s *Strategy) DepositToken() string { return s.denom }

func (s *Strategy) Deposit(amount sdkmath.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return ErrStrategyPaused
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	s.balance = s.balance.Add(amount)
	s.deposits++
	return nil
}

func (s *Strategy) Withdraw(amount sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawLocked(amount)
}

func (s *Strategy) WithdrawAll() (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdrawLocked(s.balance)
}

func (s *Strategy) withdrawLocked(amount sdkmath.Int) (sdkmath.Int, error) {
	if s.paused {
		return sdkmath.ZeroInt(), ErrStrategyPaused
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrNegativeAmount
	}
	debit := accounting.MinInt(amount, s.balance)
	if !s.liquidityCap.IsNil() {
		debit = accounting.MinInt(debit, s.liquidityCap)
	}
	s.balance = s.balance.Sub(debit)
	s.withdrawals++

	out := debit.Sub(accounting.BpsOf(debit, s.exitFeeBps))
	if debit.LT(amount) {
		strategyLogger.Debug().
			Str("strategy", s.name).
			Stringer("requested", amount).
			Stringer("debited", debit).
			Msg("Simulated withdrawal under-fulfilled")
	}
	return out, nil
}

func (s *Strategy) TotalTokens() (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *Strategy) Compound() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(accounting.BpsOf(s.balance, s.yieldBps))
	s.compounds++
	return nil
}

// Checkpoint captures balance and call counters.
func (s *Strategy) Checkpoint() func() {
	s.mu.Lock()
	balance, deposits, withdrawals, compounds := s.balance, s.deposits, s.withdrawals, s.compounds
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.balance, s.deposits, s.withdrawals, s.compounds = balance, deposits, withdrawals, compounds
	}
}
