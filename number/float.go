// Package number provides the minimal arbitrary-precision value model that
// the precision rules operate on: a signed magnitude in some radix together
// with the number of its digits that are considered valid.
//
// Values are immutable. Arithmetic kernels are not part of this package.
package number

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/exascience/aprt"
)

// Infinite is the precision of exact values.
const Infinite int64 = math.MaxInt64

// DefaultRadix is the radix used by New and Parse.
const DefaultRadix = 10

/*
A Float is a real value mantissa * radix^exponent together with a precision,
the number of significant digits that are considered valid. Zero is always
exact.

The mantissa never has trailing zero digits, and never has more digits than
the precision.
*/
type Float struct {
	mantissa  *big.Int
	exponent  int64
	radix     int
	precision int64
}

func checkRadix(radix int) {
	if radix < 2 || radix > 36 {
		panic(fmt.Errorf("%w: invalid radix: %v", aprt.ErrIllegalArgument, radix))
	}
}

func checkPrecision(precision int64) {
	if precision <= 0 {
		panic(fmt.Errorf("%w: invalid precision: %v", aprt.ErrIllegalArgument, precision))
	}
}

// New returns x in radix 10 with the given precision. Use Infinite for an
// exact value.
func New(x int64, precision int64) *Float {
	return NewRadix(x, precision, DefaultRadix)
}

// NewRadix returns x in the given radix with the given precision. It panics
// if the radix is not between 2 and 36, or if precision <= 0.
func NewRadix(x int64, precision int64, radix int) *Float {
	checkRadix(radix)
	checkPrecision(precision)
	return newFloat(big.NewInt(x), 0, radix, precision)
}

// Zero returns an exact zero in the given radix.
func Zero(radix int) *Float {
	checkRadix(radix)
	return &Float{mantissa: new(big.Int), radix: radix, precision: Infinite}
}

// newFloat takes ownership of mantissa.
func newFloat(mantissa *big.Int, exponent int64, radix int, precision int64) *Float {
	f := &Float{mantissa: mantissa, exponent: exponent, radix: radix, precision: precision}
	if mantissa.Sign() == 0 {
		f.exponent = 0
		f.precision = Infinite
		return f
	}
	f.normalize()
	if d := f.digits(); d > precision {
		f.truncate(d - precision)
	}
	return f
}

func (f *Float) normalize() {
	r := big.NewInt(int64(f.radix))
	var q, m big.Int
	for {
		q.QuoRem(f.mantissa, r, &m)
		if m.Sign() != 0 {
			return
		}
		f.mantissa.Set(&q)
		f.exponent++
	}
}

func (f *Float) digits() int64 {
	var abs big.Int
	return int64(len(abs.Abs(f.mantissa).Text(f.radix)))
}

// truncate drops the n least significant digits, rounding toward zero.
func (f *Float) truncate(n int64) {
	var shift big.Int
	shift.Exp(big.NewInt(int64(f.radix)), big.NewInt(n), nil)
	f.mantissa.Quo(f.mantissa, &shift)
	f.exponent += n
	if f.mantissa.Sign() == 0 {
		f.exponent = 0
		f.precision = Infinite
		return
	}
	f.normalize()
}

/*
Parse parses s as a number in the given radix, with an optional sign and an
optional radix point, as in "-12.375". The precision of the result is the
number of significant digits in s, so trailing zeros after the radix point
count, and leading zeros do not. Zero is exact.
*/
func Parse(s string, radix int) (*Float, error) {
	checkRadix(radix)
	text := s
	negative := false
	switch {
	case strings.HasPrefix(text, "-"):
		negative = true
		text = text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	intPart, fracPart := text, ""
	if i := strings.IndexByte(text, '.'); i >= 0 {
		intPart, fracPart = text[:i], text[i+1:]
	}
	digits := intPart + fracPart
	if digits == "" || strings.ContainsAny(digits, ".+-") {
		return nil, fmt.Errorf("parse %q: %w: malformed number", s, aprt.ErrIllegalArgument)
	}
	mantissa, ok := new(big.Int).SetString(digits, radix)
	if !ok {
		return nil, fmt.Errorf("parse %q: %w: malformed number", s, aprt.ErrIllegalArgument)
	}
	if mantissa.Sign() == 0 {
		return Zero(radix), nil
	}
	precision := int64(len(strings.TrimLeft(digits, "0")))
	if negative {
		mantissa.Neg(mantissa)
	}
	return newFloat(mantissa, -int64(len(fracPart)), radix, precision), nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string, radix int) *Float {
	f, err := Parse(s, radix)
	if err != nil {
		panic(err)
	}
	return f
}

// Radix returns the radix of f.
func (f *Float) Radix() int { return f.radix }

// Precision returns the number of valid significant digits of f, or
// Infinite if f is exact.
func (f *Float) Precision() int64 { return f.precision }

// Signum returns -1, 0, or +1 depending on the sign of f.
func (f *Float) Signum() int { return f.mantissa.Sign() }

/*
Scale returns the position of the most significant digit of f: a nonzero f
satisfies radix^(scale-1) <= |f| < radix^scale. The scale of zero is
-Infinite.
*/
func (f *Float) Scale() int64 {
	if f.Signum() == 0 {
		return -Infinite
	}
	return f.digits() + f.exponent
}

/*
WithPrecision returns f with the given precision. Digits beyond the new
precision are truncated; a higher precision does not add digits. Zero
stays exact. WithPrecision panics if precision <= 0.
*/
func (f *Float) WithPrecision(precision int64) *Float {
	checkPrecision(precision)
	if f.Signum() == 0 {
		return f
	}
	return newFloat(new(big.Int).Set(f.mantissa), f.exponent, f.radix, precision)
}

// Equal reports whether f and g have the same radix and value, regardless
// of their precisions.
func (f *Float) Equal(g *Float) bool {
	return f.radix == g.radix && f.exponent == g.exponent && f.mantissa.Cmp(g.mantissa) == 0
}

// String formats f in its radix without an exponent, such as "-0.0123".
func (f *Float) String() string {
	if f.Signum() == 0 {
		return "0"
	}
	var abs big.Int
	digits := abs.Abs(f.mantissa).Text(f.radix)
	var b strings.Builder
	if f.Signum() < 0 {
		b.WriteByte('-')
	}
	switch point := int64(len(digits)) + f.exponent; {
	case f.exponent >= 0:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", int(f.exponent)))
	case point > 0:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	default:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", int(-point)))
		b.WriteString(digits)
	}
	return b.String()
}
