package accounting

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/types"
	"github.com/elys-network/stablerouter/internal/vault"
)

// Price is an oracle quote for one whole token.
type Price struct {
	Value    sdkmath.Int
	Decimals uint8
}

// Valuer prices token amounts in uniform USD for a fixed set of supported tokens.
// A Valuer lives for one router operation: prices are read from the oracle once and
// reused for the rest of that operation so every step sees the same rates.
type Valuer struct {
	oracle vault.Oracle
	tokens map[string]types.SupportedToken
	prices map[string]Price
}

// NewValuer returns a valuer over the given supported tokens.
func NewValuer(oracle vault.Oracle, tokens []types.SupportedToken) *Valuer {
	byDenom := make(map[string]types.SupportedToken, len(tokens))
	for _, t := range tokens {
		byDenom[t.Denom] = t
	}
	return &Valuer{
		oracle: oracle,
		tokens: byDenom,
		prices: make(map[string]Price, len(tokens)),
	}
}

// Token returns the metadata of a supported token.
func (v *Valuer) Token(denom string) (types.SupportedToken, error) {
	t, ok := v.tokens[denom]
	if !ok {
		return types.SupportedToken{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "%s is not a supported token", denom)
	}
	return t, nil
}

// Tokens returns the supported tokens ordered by index.
func (v *Valuer) Tokens() []types.SupportedToken {
	out := make([]types.SupportedToken, 0, len(v.tokens))
	for _, t := range v.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Price returns the oracle quote for denom. A token the oracle does not know, quotes at
// zero or quotes with an unusable precision is unsupported.
func (v *Valuer) Price(denom string) (Price, error) {
	if p, ok := v.prices[denom]; ok {
		return p, nil
	}
	if _, err := v.Token(denom); err != nil {
		return Price{}, err
	}
	if !v.oracle.IsTokenSupported(denom) {
		return Price{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "no oracle price for %s", denom)
	}
	value, decimals, err := v.oracle.GetUsdPrice(denom)
	if err != nil {
		return Price{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "oracle price for %s: %s", denom, err)
	}
	if value.IsNil() || !value.IsPositive() {
		return Price{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "oracle price for %s is zero", denom)
	}
	if err := ValidatePriceDecimals(decimals); err != nil {
		return Price{}, errorsmod.Wrapf(types.ErrUnsupportedToken, "oracle price for %s: %s", denom, err)
	}
	p := Price{Value: value, Decimals: decimals}
	v.prices[denom] = p
	return p, nil
}

// UniformPrice is the uniform USD value of one whole token.
func (v *Valuer) UniformPrice(denom string) (sdkmath.Int, error) {
	p, err := v.Price(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return UsdValue(OneUniform(), p.Value, p.Decimals)
}

// ToUniform rescales a token-unit amount of denom.
func (v *Valuer) ToUniform(denom string, amount sdkmath.Int) (sdkmath.Int, error) {
	t, err := v.Token(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return ToUniform(amount, t.Decimals)
}

// FromUniform converts a uniform amount back to token units of denom.
func (v *Valuer) FromUniform(denom string, uniformAmount sdkmath.Int) (sdkmath.Int, error) {
	t, err := v.Token(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return FromUniform(uniformAmount, t.Decimals)
}

// UsdOfUniform prices a uniform amount of denom.
func (v *Valuer) UsdOfUniform(denom string, uniformAmount sdkmath.Int) (sdkmath.Int, error) {
	p, err := v.Price(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return UsdValue(uniformAmount, p.Value, p.Decimals)
}

// UsdOfTokens prices a token-unit amount of denom.
func (v *Valuer) UsdOfTokens(denom string, amount sdkmath.Int) (sdkmath.Int, error) {
	u, err := v.ToUniform(denom, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.UsdOfUniform(denom, u)
}

// TokensForUsd is the token-unit amount of denom worth usd, rounded down.
func (v *Valuer) TokensForUsd(denom string, usd sdkmath.Int) (sdkmath.Int, error) {
	p, err := v.Price(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	u, err := FromUsd(usd, p.Value, p.Decimals)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.FromUniform(denom, u)
}
