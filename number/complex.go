package number

import "fmt"

// A Complex is an ordered pair of a real and an imaginary Float.
type Complex struct {
	real, imag *Float
}

// NewComplex returns real + imag*i. A nil imag is an exact zero in the radix
// of real.
func NewComplex(real, imag *Float) *Complex {
	if imag == nil {
		imag = Zero(real.radix)
	}
	return &Complex{real, imag}
}

// Real returns the real part of z.
func (z *Complex) Real() *Float { return z.real }

// Imag returns the imaginary part of z.
func (z *Complex) Imag() *Float { return z.imag }

// Radix returns the radix of the real part of z.
func (z *Complex) Radix() int { return z.real.radix }

// Scale returns the larger of the scales of both parts.
func (z *Complex) Scale() int64 {
	if s := z.imag.Scale(); s > z.real.Scale() {
		return s
	}
	return z.real.Scale()
}

/*
Precision returns the number of valid significant digits of z relative to
its scale. A part that is smaller in magnitude than the other one needs
fewer digits to reach the same absolute accuracy, so each part contributes
its precision plus the scale gap to the larger part, and the precision of z
is the minimum of these contributions. A zero part does not contribute;
if both parts are zero, z is exact.
*/
func (z *Complex) Precision() int64 {
	switch {
	case z.real.Signum() == 0:
		return z.imag.precision
	case z.imag.Signum() == 0:
		return z.real.precision
	}
	scale := z.Scale()
	realPrecision := addPrecision(z.real.precision, scale-z.real.Scale())
	imagPrecision := addPrecision(z.imag.precision, scale-z.imag.Scale())
	if realPrecision < imagPrecision {
		return realPrecision
	}
	return imagPrecision
}

// String formats z as "(real, imag)".
func (z *Complex) String() string {
	return fmt.Sprintf("(%v, %v)", z.real, z.imag)
}

// addPrecision adds a non-negative delta to a precision, saturating at
// Infinite.
func addPrecision(precision, delta int64) int64 {
	if precision >= Infinite-delta {
		return Infinite
	}
	return precision + delta
}
