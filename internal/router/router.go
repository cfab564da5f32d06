/*

Router is the stablecoin vault's accounting engine. Every entry point runs serialized and
transactional: it stages its changes on a clone of SystemState, captures a checkpoint of each
collaborator that can be rolled back, and only swaps the staged state in once the operation
has fully succeeded. On any error the staged state is dropped and every checkpoint restored
in reverse order, so a failed call leaves nothing behind.

*/

package router

import (
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/planner"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
	"github.com/elys-network/stablerouter/internal/withdrawal"
)

type Router struct {
	mu       sync.Mutex
	state    *SystemState
	oracle   vault.Oracle
	exchange vault.Exchange
	auditor  WithdrawalAuditor
	clock    func() time.Time
	log      zerolog.Logger
}

// WithdrawalAuditor is told about every committed withdrawal paid straight from the strategies.
type WithdrawalAuditor interface {
	RecordWithdrawal(w types.StrategyWithdrawal) error
}

// Option customises a Router.
type Option func(*Router)

// WithClock replaces time.Now for receipt and cycle timestamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Router) { r.clock = clock }
}

// WithAuditor records direct strategy withdrawals. A failing auditor is logged and never
// undoes the withdrawal.
func WithAuditor(a WithdrawalAuditor) Option {
	return func(r *Router) { r.auditor = a }
}

// New builds a router with no tokens and no strategies. Moderators configure it afterwards.
func New(oracle vault.Oracle, exchange vault.Exchange, params types.RouterParameters, moderators []string, opts ...Option) (*Router, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		oracle:   oracle,
		exchange: exchange,
		clock:    time.Now,
		log:      logger.GetForComponent("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = NewSystemState(params, moderators, r.clock())
	return r, nil
}

type txn struct {
	r        *Router
	state    *SystemState
	valuer   *accounting.Valuer
	restores []func()
	touched  map[any]bool
}

func (r *Router) begin() *txn {
	tx := &txn{
		r:       r,
		state:   r.state.Clone(),
		touched: make(map[any]bool),
	}
	tx.valuer = accounting.NewValuer(r.oracle, tx.state.SupportedTokens())
	tx.touch(r.exchange)
	for _, t := range tx.state.Tokens {
		tx.touch(t.Idle)
	}
	for _, s := range tx.state.Strategies {
		tx.touch(s.Strategy)
	}
	return tx
}

// touch checkpoints a collaborator the first time the operation may mutate it.
func (tx *txn) touch(c any) {
	if c == nil || tx.touched[c] {
		return
	}
	cp, ok := c.(vault.Checkpointer)
	if !ok {
		return
	}
	tx.touched[c] = true
	tx.restores = append(tx.restores, cp.Checkpoint())
}

func (tx *txn) rollback() {
	for i := len(tx.restores) - 1; i >= 0; i-- {
		tx.restores[i]()
	}
}

// refreshValuer re-reads the token set after it changed inside the operation.
func (tx *txn) refreshValuer() {
	tx.valuer = accounting.NewValuer(tx.r.oracle, tx.state.SupportedTokens())
}

// run calls fn and turns a math.Int overflow panic, or any other panic, into an error.
func run(op string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errorsmod.Wrapf(types.ErrInvalidAmount, "%s panicked: %v", op, p)
		}
	}()
	return fn()
}

func (r *Router) transact(op string, fn func(tx *txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := r.begin()
	if err := run(op, func() error { return fn(tx) }); err != nil {
		tx.rollback()
		r.log.Warn().Err(err).Str("operation", op).Msg("Operation aborted, state rolled back")
		return err
	}
	r.state = tx.state
	r.log.Debug().Str("operation", op).Msg("Operation committed")
	return nil
}

// view runs a read-only function against the committed state.
func (r *Router) view(fn func(s *SystemState, v *accounting.Valuer) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return run("view", func() error {
		return fn(r.state, accounting.NewValuer(r.oracle, r.state.SupportedTokens()))
	})
}

func (tx *txn) requireModerator(caller string) error {
	if !tx.state.Moderators[caller] {
		return errorsmod.Wrapf(types.ErrNotModerator, "%s", caller)
	}
	return nil
}

func (tx *txn) plannerParams() planner.Parameters {
	return planner.Parameters{
		DustUsd:      tx.state.Params.DustThresholdUniform,
		StabilityBps: tx.state.Params.RebalanceStabilityBps,
	}
}

func (tx *txn) engine() *withdrawal.Engine {
	return withdrawal.NewEngine(tx.r.exchange, tx.valuer)
}

// sources exposes the staged reserve and every strategy to the withdrawal engine.
func (tx *txn) sources() *withdrawal.Sources {
	src := &withdrawal.Sources{Reserve: tx.state.Reserve}
	for _, t := range tx.state.Tokens {
		src.Tokens = append(src.Tokens, withdrawal.TokenSource{Token: t.Token, Idle: t.Idle})
	}
	for i, s := range tx.state.Strategies {
		src.Strategies = append(src.Strategies, withdrawal.StrategySource{Index: i, Denom: s.Denom, Strategy: s.Strategy})
	}
	return src
}

// compoundAll compounds every idle and active strategy.
func (tx *txn) compoundAll() error {
	for _, t := range tx.state.Tokens {
		if t.Idle == nil {
			continue
		}
		if err := t.Idle.Compound(); err != nil {
			return errorsmod.Wrapf(err, "compound idle strategy %s", t.Idle.Name())
		}
	}
	for i, s := range tx.state.Strategies {
		if err := s.Strategy.Compound(); err != nil {
			return errorsmod.Wrapf(err, "compound strategy %d (%s)", i, s.Strategy.Name())
		}
	}
	return nil
}

// value prices everything share holders own: reserve, idle strategies and active strategies.
// Pending batch deposits are excluded.
func (tx *txn) value() (types.StrategiesValue, error) {
	return strategiesValue(tx.state, tx.valuer)
}

func strategiesValue(s *SystemState, v *accounting.Valuer) (types.StrategiesValue, error) {
	out := types.StrategiesValue{TotalUsd: sdkmath.ZeroInt(), ReserveUsd: sdkmath.ZeroInt()}
	for _, t := range s.Tokens {
		denom := t.Token.Denom
		if r := s.reserveOf(denom); r.IsPositive() {
			usd, err := v.UsdOfTokens(denom, r)
			if err != nil {
				return out, err
			}
			out.ReserveUsd = out.ReserveUsd.Add(usd)
		}

		idleUsd := sdkmath.ZeroInt()
		if t.Idle != nil {
			bal, err := t.Idle.TotalTokens()
			if err != nil {
				return out, errorsmod.Wrapf(err, "idle strategy %s balance", t.Idle.Name())
			}
			if bal.IsPositive() {
				if idleUsd, err = v.UsdOfTokens(denom, bal); err != nil {
					return out, err
				}
			}
		}
		out.IdleUsd = append(out.IdleUsd, types.TokenValue{Denom: denom, ValueUsd: idleUsd})
		out.TotalUsd = out.TotalUsd.Add(idleUsd)
	}
	out.TotalUsd = out.TotalUsd.Add(out.ReserveUsd)

	for i, st := range s.Strategies {
		bal, err := st.Strategy.TotalTokens()
		if err != nil {
			return out, errorsmod.Wrapf(err, "strategy %d balance", i)
		}
		usd := sdkmath.ZeroInt()
		if bal.IsPositive() {
			if usd, err = v.UsdOfTokens(st.Denom, bal); err != nil {
				return out, err
			}
		}
		out.StrategyUsd = append(out.StrategyUsd, types.TokenValue{Denom: st.Denom, ValueUsd: usd})
		out.TotalUsd = out.TotalUsd.Add(usd)
	}
	return out, nil
}

func (tx *txn) totalValue() (sdkmath.Int, error) {
	v, err := tx.value()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.TotalUsd, nil
}

func (tx *txn) positions() ([]planner.StrategyPosition, error) {
	out := make([]planner.StrategyPosition, 0, len(tx.state.Strategies))
	for i, s := range tx.state.Strategies {
		bal, err := s.Strategy.TotalTokens()
		if err != nil {
			return nil, errorsmod.Wrapf(err, "strategy %d balance", i)
		}
		usd, err := tx.valuer.UsdOfTokens(s.Denom, bal)
		if err != nil {
			return nil, err
		}
		out = append(out, planner.StrategyPosition{Index: i, Denom: s.Denom, Weight: s.Weight, Tokens: bal, Usd: usd})
	}
	return out, nil
}

func (tx *txn) reserveHoldings() ([]planner.Holding, error) {
	var out []planner.Holding
	for _, t := range tx.state.Tokens {
		bal := tx.state.reserveOf(t.Token.Denom)
		if !bal.IsPositive() {
			continue
		}
		usd, err := tx.valuer.UsdOfTokens(t.Token.Denom, bal)
		if err != nil {
			return nil, err
		}
		out = append(out, planner.Holding{Kind: planner.SourceReserve, Index: t.Token.Index, Denom: t.Token.Denom, Tokens: bal, Usd: usd})
	}
	return out, nil
}

func (tx *txn) idleHoldings() ([]planner.Holding, error) {
	var out []planner.Holding
	for _, t := range tx.state.Tokens {
		if t.Idle == nil {
			continue
		}
		bal, err := t.Idle.TotalTokens()
		if err != nil {
			return nil, errorsmod.Wrapf(err, "idle strategy %s balance", t.Idle.Name())
		}
		if !bal.IsPositive() {
			continue
		}
		usd, err := tx.valuer.UsdOfTokens(t.Token.Denom, bal)
		if err != nil {
			return nil, err
		}
		out = append(out, planner.Holding{Kind: planner.SourceIdle, Index: t.Token.Index, Denom: t.Token.Denom, Tokens: bal, Usd: usd})
	}
	return out, nil
}

// allocateReserve plans and executes the distribution of the reserve across strategies.
func (tx *txn) allocateReserve() (types.ActionPlan, error) {
	reserve, err := tx.reserveHoldings()
	if err != nil {
		return types.ActionPlan{}, err
	}
	positions, err := tx.positions()
	if err != nil {
		return types.ActionPlan{}, err
	}
	plan, err := planner.PlanAllocation(reserve, positions, tx.plannerParams(), tx.valuer)
	if err != nil {
		return types.ActionPlan{}, err
	}
	return plan, tx.execute(plan)
}

// rebalance plans and executes a move of every strategy toward its weight.
func (tx *txn) rebalance() (types.ActionPlan, error) {
	positions, err := tx.positions()
	if err != nil {
		return types.ActionPlan{}, err
	}
	idle, err := tx.idleHoldings()
	if err != nil {
		return types.ActionPlan{}, err
	}
	reserve, err := tx.reserveHoldings()
	if err != nil {
		return types.ActionPlan{}, err
	}
	plan, err := planner.PlanRebalance(positions, idle, reserve, tx.plannerParams(), tx.valuer)
	if err != nil {
		return types.ActionPlan{}, err
	}
	return plan, tx.execute(plan)
}
