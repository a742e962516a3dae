// Package fixed implements the integer arithmetic used by the exchange for
// prices, sizes and settlement totals. Amounts are arbitrary-precision
// unsigned integers; decimal values (prices, fee rates) are scaled integers
// with an explicit fractional digit count. No floating point anywhere.
package fixed

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxPlaces is the largest fractional digit count a decimal may carry.
// Matches the contract's allowed price_precision range of 0..=18.
const MaxPlaces = 18

var (
	bigZero = big.NewInt(0)
	bigTen  = big.NewInt(10)
)

// Int is an unsigned arbitrary-precision integer amount. It marshals to a
// decimal string in JSON so stored orders never lose precision.
type Int struct {
	i big.Int
}

// NewInt returns an Int holding v.
func NewInt(v uint64) Int {
	var x Int
	x.i.SetUint64(v)
	return x
}

// ParseInt parses a non-negative base-10 integer string. Signs, spaces and
// empty strings are rejected.
func ParseInt(s string) (Int, error) {
	var x Int
	if s == "" {
		return x, fmt.Errorf("empty integer string")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return x, fmt.Errorf("invalid integer %q", s)
		}
	}
	x.i.SetString(s, 10)
	return x, nil
}

// Pow10 returns 10^n as an Int.
func Pow10(n uint32) Int {
	var x Int
	x.i.Exp(bigTen, big.NewInt(int64(n)), nil)
	return x
}

func (x Int) String() string { return x.i.String() }

// IsZero reports whether x == 0.
func (x Int) IsZero() bool { return x.i.Sign() == 0 }

// Cmp compares x and y: -1 if x < y, 0 if equal, +1 if x > y.
func (x Int) Cmp(y Int) int { return x.i.Cmp(&y.i) }

// Add returns x + y.
func (x Int) Add(y Int) Int {
	var z Int
	z.i.Add(&x.i, &y.i)
	return z
}

// Sub returns x - y. Underflow below zero is an error: amounts are unsigned.
func (x Int) Sub(y Int) (Int, error) {
	var z Int
	if x.i.Cmp(&y.i) < 0 {
		return z, fmt.Errorf("amount underflow: %s - %s", x.String(), y.String())
	}
	z.i.Sub(&x.i, &y.i)
	return z, nil
}

// Mul returns x * y.
func (x Int) Mul(y Int) Int {
	var z Int
	z.i.Mul(&x.i, &y.i)
	return z
}

// Quo returns x / y truncated toward zero.
func (x Int) Quo(y Int) Int {
	var z Int
	z.i.Quo(&x.i, &y.i)
	return z
}

// IsMultipleOf reports whether x is an exact multiple of y. Always false for
// y == 0.
func (x Int) IsMultipleOf(y Int) bool {
	if y.i.Sign() == 0 {
		return false
	}
	var m big.Int
	m.Mod(&x.i, &y.i)
	return m.Sign() == 0
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (x Int) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.i.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (x *Int) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseInt(s)
	if err != nil {
		return err
	}
	x.i.Set(&v.i)
	return nil
}

// Dec is an unsigned fixed-point decimal: scaled = value * 10^places.
// Trailing fractional zeros are stripped on parse, so "2.50" carries one
// fractional digit.
type Dec struct {
	scaled Int
	places uint32
}

// ParseDec parses a non-negative decimal string such as "10", "2.5" or
// "0.0125". Signs, exponents and empty strings are rejected.
func ParseDec(s string) (Dec, error) {
	if s == "" {
		return Dec{}, fmt.Errorf("empty decimal string")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if frac == "" {
			return Dec{}, fmt.Errorf("invalid decimal %q", s)
		}
	}
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > MaxPlaces {
		return Dec{}, fmt.Errorf("decimal %q exceeds %d fractional digits", s, MaxPlaces)
	}
	scaled, err := ParseInt(whole + frac)
	if err != nil {
		return Dec{}, fmt.Errorf("invalid decimal %q", s)
	}
	return Dec{scaled: scaled, places: uint32(len(frac))}, nil
}

// NewDecFromInt returns the decimal equal to x with zero fractional digits.
func NewDecFromInt(x Int) Dec {
	return Dec{scaled: x}
}

// Places returns the number of fractional digits d carries.
func (d Dec) Places() uint32 { return d.places }

// IsZero reports whether d == 0.
func (d Dec) IsZero() bool { return d.scaled.IsZero() }

// String renders d in plain decimal notation.
func (d Dec) String() string {
	s := d.scaled.String()
	if d.places == 0 {
		return s
	}
	for uint32(len(s)) <= d.places {
		s = "0" + s
	}
	cut := len(s) - int(d.places)
	return s[:cut] + "." + s[cut:]
}

// rescaled returns d's scaled integer lifted to `places` fractional digits.
func (d Dec) rescaled(places uint32) Int {
	if places == d.places {
		return d.scaled
	}
	return d.scaled.Mul(Pow10(places - d.places))
}

// Cmp compares two decimals of possibly different scales.
func (d Dec) Cmp(o Dec) int {
	p := d.places
	if o.places > p {
		p = o.places
	}
	return d.rescaled(p).Cmp(o.rescaled(p))
}

// MulInt returns d * x as a decimal with d's scale.
func (d Dec) MulInt(x Int) Dec {
	return Dec{scaled: d.scaled.Mul(x), places: d.places}
}

// Floor truncates d toward zero to an integer, discarding any remainder.
func (d Dec) Floor() Int {
	if d.places == 0 {
		return d.scaled
	}
	return d.scaled.Quo(Pow10(d.places))
}

// IsInteger reports whether d has no fractional remainder.
func (d Dec) IsInteger() bool {
	if d.places == 0 {
		return true
	}
	return d.scaled.IsMultipleOf(Pow10(d.places))
}

// MarshalJSON encodes the decimal as a quoted string.
func (d Dec) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses a quoted decimal string.
func (d *Dec) UnmarshalJSON(b []byte) error {
	v, err := ParseDec(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// QuoteTotal computes price * size truncated toward zero to a whole quote
// amount. The discarded remainder is the rounding loss absorbed by the bid
// escrow, never credited to the ask side.
func QuoteTotal(price Dec, size Int) Int {
	return price.MulInt(size).Floor()
}

// FeeAmount computes floor(total * rate). Rates are fractions in [0, 1].
func FeeAmount(rate Dec, total Int) Int {
	return rate.MulInt(total).Floor()
}
