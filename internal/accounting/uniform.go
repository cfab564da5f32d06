/*

Uniform value accounting. Every token amount is rescaled to a fixed 18-decimal "uniform" unit
before cross-token arithmetic, and uniform amounts are priced in USD with the oracle price and
its decimals. Products go through a big.Int intermediate so a*b never overflows before the
division brings it back into range.

*/

package accounting

import (
	"errors"
	"fmt"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/stablerouter/internal/types"
)

var (
	ErrInvalidDecimals = errors.New("token decimals are invalid")
	ErrAmountNegative  = errors.New("amount is negative")
	ErrZeroPrice       = errors.New("price is zero")
	ErrDivisionByZero  = errors.New("division by zero")

	// ErrAmountOverflow matches types.ErrInvalidAmount so router callers see a taxonomy error.
	ErrAmountOverflow = errorsmod.Wrapf(types.ErrInvalidAmount, "amount exceeds %d bits", sdkmath.MaxBitLen)
)

// maxTokenDecimals bounds what ToUniform accepts; 10^77 is the largest power of ten a 256-bit Int holds.
const maxTokenDecimals = 36

var powersOfTen = func() []sdkmath.Int {
	out := make([]sdkmath.Int, 0, 2*maxTokenDecimals+1)
	p := big.NewInt(1)
	for i := 0; i <= 2*maxTokenDecimals; i++ {
		out = append(out, sdkmath.NewIntFromBigInt(new(big.Int).Set(p)))
		p.Mul(p, big.NewInt(10))
	}
	return out
}()

// Pow10 returns 10^n for 0 <= n <= 72.
func Pow10(n int) sdkmath.Int {
	return powersOfTen[n]
}

// OneUniform is one whole unit at uniform precision (1e18).
func OneUniform() sdkmath.Int {
	return powersOfTen[types.UniformDecimals]
}

// fromBig converts b back into a math.Int, refusing values math.Int would panic on.
func fromBig(b *big.Int) (sdkmath.Int, error) {
	if b.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), ErrAmountOverflow
	}
	return sdkmath.NewIntFromBigInt(b), nil
}

// MulDiv returns floor(a*b/c) computed with an unbounded intermediate.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	num := new(big.Int).Mul(a.BigInt(), b.BigInt())
	return fromBig(num.Quo(num, c.BigInt()))
}

func mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	return fromBig(new(big.Int).Mul(a.BigInt(), b.BigInt()))
}

// MustMulDiv is MulDiv for call sites that have already excluded a zero divisor.
func MustMulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	out, err := MulDiv(a, b, c)
	if err != nil {
		panic(err)
	}
	return out
}

func validate(amount sdkmath.Int, decimals int) error {
	if decimals < 0 || decimals > maxTokenDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrAmountNegative
	}
	return nil
}

// ToUniform rescales a token amount to uniform decimals. Upscaling is exact; a token with
// more than 18 decimals is truncated toward zero.
func ToUniform(amount sdkmath.Int, decimals int) (sdkmath.Int, error) {
	if err := validate(amount, decimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	switch {
	case decimals < types.UniformDecimals:
		return mul(amount, Pow10(types.UniformDecimals-decimals))
	case decimals > types.UniformDecimals:
		return amount.Quo(Pow10(decimals - types.UniformDecimals)), nil
	default:
		return amount, nil
	}
}

// FromUniform converts a uniform amount back to token units, truncating toward zero.
func FromUniform(uniformAmount sdkmath.Int, decimals int) (sdkmath.Int, error) {
	if err := validate(uniformAmount, decimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	switch {
	case decimals < types.UniformDecimals:
		return uniformAmount.Quo(Pow10(types.UniformDecimals - decimals)), nil
	case decimals > types.UniformDecimals:
		return mul(uniformAmount, Pow10(decimals-types.UniformDecimals))
	default:
		return uniformAmount, nil
	}
}

// UsdValue prices a uniform token amount: uniformAmount * price / 10^priceDecimals.
func UsdValue(uniformAmount, price sdkmath.Int, priceDecimals uint8) (sdkmath.Int, error) {
	if uniformAmount.IsNil() || uniformAmount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if err := ValidatePriceDecimals(priceDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return MulDiv(uniformAmount, price, Pow10(int(priceDecimals)))
}

// FromUsd is the inverse of UsdValue: the uniform token amount worth usdUniform, rounded down.
func FromUsd(usdUniform, price sdkmath.Int, priceDecimals uint8) (sdkmath.Int, error) {
	if price.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroPrice
	}
	if usdUniform.IsNil() || usdUniform.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if err := ValidatePriceDecimals(priceDecimals); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return MulDiv(usdUniform, Pow10(int(priceDecimals)), price)
}

// ValidatePriceDecimals rejects oracle precisions beyond what the uniform tables cover.
func ValidatePriceDecimals(priceDecimals uint8) error {
	if int(priceDecimals) > maxTokenDecimals {
		return fmt.Errorf("%w: price decimals %d", ErrInvalidDecimals, priceDecimals)
	}
	return nil
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// BpsOf returns floor(amount * bps / 10000).
func BpsOf(amount sdkmath.Int, bps uint64) sdkmath.Int {
	return MustMulDiv(amount, sdkmath.NewIntFromUint64(bps), sdkmath.NewInt(types.MaxBps))
}
