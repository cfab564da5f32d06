/*

The withdrawal engine turns a USD claim into tokens of one target denom. Liquidity is sourced
tier by tier and a later tier is only asked for what earlier tiers could not deliver:

 1. the router reserve already held in the target token
 2. the target token's idle strategy
 3. reserve and idle balances of the other tokens, converted once per token
 4. active strategies pro-rata to their USD value, converted once per token

A tier's contribution is the value its sources were debited by. When a venue hands back less
than it debited (exit fees) or the exchange converts below the oracle rate, the difference is
the withdrawer's cost and is not re-sourced from the other holders' funds.

*/

package withdrawal

import (
	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/stablerouter/internal/accounting"
	"github.com/elys-network/stablerouter/internal/logger"
	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// roundingTolerance is the uniform USD remainder treated as fully sourced.
var roundingTolerance = sdkmath.NewInt(1_000_000)

// TokenSource is a supported token and its idle strategy.
type TokenSource struct {
	Token types.SupportedToken
	Idle  vault.IdleStrategy
}

// StrategySource is an active strategy slot.
type StrategySource struct {
	Index    int
	Denom    string
	Strategy vault.Strategy
}

// Sources is the liquidity the engine may draw from. Reserve is debited in place.
type Sources struct {
	Reserve    map[string]sdkmath.Int
	Tokens     []TokenSource    // ordered by token index
	Strategies []StrategySource // ordered by strategy index
}

func (s *Sources) reserve(denom string) sdkmath.Int {
	if b, ok := s.Reserve[denom]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (s *Sources) idleFor(denom string) vault.IdleStrategy {
	for _, t := range s.Tokens {
		if t.Token.Denom == denom {
			return t.Idle
		}
	}
	return nil
}

// Request asks for Usd worth of Denom, failing if fewer than MinExpected tokens result.
type Request struct {
	Denom       string
	Usd         sdkmath.Int
	MinExpected sdkmath.Int
}

// Result is what a withdrawal produced, in target token units per tier.
type Result struct {
	Amount          sdkmath.Int
	FromReserve     sdkmath.Int
	FromIdle        sdkmath.Int
	FromOtherTokens sdkmath.Int
	FromStrategies  sdkmath.Int
	Swaps           int
	ShortfallUsd    sdkmath.Int // claim value no tier could source
}

type Engine struct {
	exchange vault.Exchange
	valuer   *accounting.Valuer
	log      zerolog.Logger
}

func NewEngine(exchange vault.Exchange, valuer *accounting.Valuer) *Engine {
	return &Engine{
		exchange: exchange,
		valuer:   valuer,
		log:      logger.GetForComponent("withdrawal_engine"),
	}
}

// Withdraw sources req from src. On error the caller must discard every change made to src
// and to the collaborators; the engine does not undo its own steps.
func (e *Engine) Withdraw(src *Sources, req Request) (Result, error) {
	res := Result{
		Amount:          sdkmath.ZeroInt(),
		FromReserve:     sdkmath.ZeroInt(),
		FromIdle:        sdkmath.ZeroInt(),
		FromOtherTokens: sdkmath.ZeroInt(),
		FromStrategies:  sdkmath.ZeroInt(),
		ShortfallUsd:    sdkmath.ZeroInt(),
	}
	if req.Usd.IsNil() || !req.Usd.IsPositive() {
		return res, errorsmod.Wrap(types.ErrInvalidAmount, "withdrawal value must be positive")
	}
	if _, err := e.valuer.Price(req.Denom); err != nil {
		return res, err
	}
	target := req.Denom
	remaining := req.Usd

	// Tier 1: reserve in the target token
	need, err := e.valuer.TokensForUsd(target, remaining)
	if err != nil {
		return res, err
	}
	if take := accounting.MinInt(need, src.reserve(target)); take.IsPositive() {
		src.Reserve[target] = src.reserve(target).Sub(take)
		res.FromReserve = take
		if remaining, err = e.reduce(remaining, target, take); err != nil {
			return res, err
		}
	}

	// Tier 2: the target token's idle strategy
	if idle := src.idleFor(target); idle != nil && !done(remaining) {
		got, debited, err := e.drawIdle(idle, target, remaining)
		if err != nil {
			return res, err
		}
		res.FromIdle = got
		if remaining, err = e.reduce(remaining, target, debited); err != nil {
			return res, err
		}
	}

	// Tier 3: other tokens' reserve and idle balances
	for _, ts := range src.Tokens {
		if done(remaining) {
			break
		}
		denom := ts.Token.Denom
		if denom == target {
			continue
		}
		out, debited, err := e.drawOtherToken(src, ts, target, remaining)
		if err != nil {
			return res, err
		}
		if out.IsPositive() {
			res.FromOtherTokens = res.FromOtherTokens.Add(out)
			res.Swaps++
		}
		if remaining, err = e.reduce(remaining, denom, debited); err != nil {
			return res, err
		}
	}

	// Tier 4: active strategies pro-rata
	if !done(remaining) {
		if remaining, err = e.drawStrategies(src, target, remaining, &res); err != nil {
			return res, err
		}
	}

	res.ShortfallUsd = remaining
	res.Amount = res.FromReserve.Add(res.FromIdle).Add(res.FromOtherTokens).Add(res.FromStrategies)

	e.log.Info().
		Str("denom", target).
		Stringer("requestedUsd", req.Usd).
		Stringer("amount", res.Amount).
		Stringer("fromReserve", res.FromReserve).
		Stringer("fromIdle", res.FromIdle).
		Stringer("fromOtherTokens", res.FromOtherTokens).
		Stringer("fromStrategies", res.FromStrategies).
		Int("swaps", res.Swaps).
		Msg("Withdrawal sourced")

	if !done(remaining) {
		e.log.Warn().Stringer("shortfallUsd", remaining).Msg("Liquidity exhausted before the claim was fully sourced")
	}
	if !req.MinExpected.IsNil() && res.Amount.LT(req.MinExpected) {
		return res, errorsmod.Wrapf(types.ErrWithdrawnAmountLowerThanExpectedAmount,
			"got %s %s, expected at least %s", res.Amount, target, req.MinExpected)
	}
	return res, nil
}

func done(remaining sdkmath.Int) bool {
	return remaining.LTE(roundingTolerance)
}

// reduce takes the value of amount tokens of denom off the remaining claim.
func (e *Engine) reduce(remaining sdkmath.Int, denom string, amount sdkmath.Int) (sdkmath.Int, error) {
	if !amount.IsPositive() {
		return remaining, nil
	}
	usd, err := e.valuer.UsdOfTokens(denom, amount)
	if err != nil {
		return remaining, err
	}
	if usd.GTE(remaining) {
		return sdkmath.ZeroInt(), nil
	}
	return remaining.Sub(usd), nil
}

func (e *Engine) drawIdle(idle vault.IdleStrategy, denom string, remainingUsd sdkmath.Int) (received, debited sdkmath.Int, err error) {
	need, err := e.valuer.TokensForUsd(denom, remainingUsd)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	balance, err := idle.TotalTokens()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	ask := accounting.MinInt(need, balance)
	if !ask.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}
	debited, received, err = vault.Debit(idle, ask)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if debited.LT(ask) || received.LT(debited) {
		e.log.Warn().
			Str("strategy", idle.Name()).
			Stringer("asked", ask).
			Stringer("debited", debited).
			Stringer("received", received).
			Msg("Idle strategy under-fulfilled")
	}
	return received, debited, nil
}

// drawOtherToken gathers another token's reserve and idle balance up to the remaining claim
// and converts it to the target in a single swap.
func (e *Engine) drawOtherToken(src *Sources, ts TokenSource, target string, remainingUsd sdkmath.Int) (out, debited sdkmath.Int, err error) {
	denom := ts.Token.Denom
	need, err := e.valuer.TokensForUsd(denom, remainingUsd)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if !need.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}

	fromReserve := accounting.MinInt(need, src.reserve(denom))
	if fromReserve.IsPositive() {
		src.Reserve[denom] = src.reserve(denom).Sub(fromReserve)
	}
	obtained, debited := fromReserve, fromReserve

	if rest := need.Sub(fromReserve); rest.IsPositive() && ts.Idle != nil {
		restUsd, err := e.valuer.UsdOfTokens(denom, rest)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		got, idleDebited, err := e.drawIdle(ts.Idle, denom, restUsd)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		obtained = obtained.Add(got)
		debited = debited.Add(idleDebited)
	}

	if !obtained.IsPositive() {
		return sdkmath.ZeroInt(), debited, nil
	}
	out, err = vault.Swap(e.exchange, obtained, denom, target)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return out, debited, nil
}

type position struct {
	StrategySource
	tokens sdkmath.Int
	usd    sdkmath.Int
}

// drawStrategies withdraws the remaining claim from every strategy holding value, split by
// each one's share of their combined USD value. The last strategy takes the rounding
// remainder. Proceeds are swapped once per token.
func (e *Engine) drawStrategies(src *Sources, target string, remainingUsd sdkmath.Int, res *Result) (sdkmath.Int, error) {
	var positions []position
	total := sdkmath.ZeroInt()
	for _, s := range src.Strategies {
		tokens, err := s.Strategy.TotalTokens()
		if err != nil {
			return remainingUsd, err
		}
		if !tokens.IsPositive() {
			continue
		}
		usd, err := e.valuer.UsdOfTokens(s.Denom, tokens)
		if err != nil {
			return remainingUsd, err
		}
		if usd.IsZero() {
			continue
		}
		positions = append(positions, position{StrategySource: s, tokens: tokens, usd: usd})
		total = total.Add(usd)
	}
	if total.IsZero() {
		return remainingUsd, nil
	}

	want := accounting.MinInt(remainingUsd, total)
	allocated := sdkmath.ZeroInt()
	obtained := make(map[string]sdkmath.Int)
	var order []string
	debitedUsd := sdkmath.ZeroInt()

	for i, p := range positions {
		share := accounting.MustMulDiv(want, p.usd, total)
		if i == len(positions)-1 {
			share = want.Sub(allocated)
		}
		allocated = allocated.Add(share)
		share = accounting.MinInt(share, p.usd)

		ask := p.tokens
		if share.LT(p.usd) {
			t, err := e.valuer.TokensForUsd(p.Denom, share)
			if err != nil {
				return remainingUsd, err
			}
			ask = accounting.MinInt(t, p.tokens)
		}
		if !ask.IsPositive() {
			continue
		}

		debited, received, err := vault.Debit(p.Strategy, ask)
		if err != nil {
			return remainingUsd, errorsmod.Wrapf(err, "withdraw from strategy %d (%s)", p.Index, p.Strategy.Name())
		}
		if debited.LT(ask) {
			e.log.Warn().
				Int("strategy", p.Index).
				Stringer("asked", ask).
				Stringer("debited", debited).
				Msg("Strategy under-fulfilled")
		}
		if _, ok := obtained[p.Denom]; !ok {
			order = append(order, p.Denom)
			obtained[p.Denom] = sdkmath.ZeroInt()
		}
		obtained[p.Denom] = obtained[p.Denom].Add(received)

		usd, err := e.valuer.UsdOfTokens(p.Denom, debited)
		if err != nil {
			return remainingUsd, err
		}
		debitedUsd = debitedUsd.Add(usd)
	}

	for _, denom := range order {
		amount := obtained[denom]
		if !amount.IsPositive() {
			continue
		}
		if denom == target {
			res.FromStrategies = res.FromStrategies.Add(amount)
			continue
		}
		out, err := vault.Swap(e.exchange, amount, denom, target)
		if err != nil {
			return remainingUsd, err
		}
		res.FromStrategies = res.FromStrategies.Add(out)
		res.Swaps++
	}

	if debitedUsd.GTE(remainingUsd) {
		return sdkmath.ZeroInt(), nil
	}
	return remainingUsd.Sub(debitedUsd), nil
}
