package precision

import (
	"fmt"

	"github.com/exascience/aprt/number"
)

/*
SetPrecision returns z with its parts set so that the precision of the
result, as reported by number.Complex.Precision, is precision.

The part with the larger magnitude gets precision significant digits. The
smaller part is valid down to the same absolute position, so it gets fewer
digits: precision minus the scale gap, but at least one. A zero part
becomes exact and the other part gets all of precision. Each part keeps its
radix. SetPrecision panics if precision <= 0.
*/
func SetPrecision(z *number.Complex, precision int64) *number.Complex {
	checkPrecision(precision)
	re, im := z.Real(), z.Imag()
	switch {
	case re.Signum() == 0 && im.Signum() == 0:
		return z
	case re.Signum() == 0:
		return number.NewComplex(number.Zero(re.Radix()), im.WithPrecision(precision))
	case im.Signum() == 0:
		return number.NewComplex(re.WithPrecision(precision), number.Zero(im.Radix()))
	}
	scale := z.Scale()
	return number.NewComplex(
		re.WithPrecision(apportion(precision, scale-re.Scale())),
		im.WithPrecision(apportion(precision, scale-im.Scale())),
	)
}

func apportion(precision, gap int64) int64 {
	if precision == number.Infinite {
		return precision
	}
	return max64(1, precision-gap)
}

// LimitComplexPrecision returns z with precision min(z.Precision(),
// precision). It panics if precision <= 0.
func LimitComplexPrecision(z *number.Complex, precision int64) *number.Complex {
	checkPrecision(precision)
	if precision >= z.Precision() {
		return z
	}
	return SetPrecision(z, precision)
}

// EnsureComplexPrecision returns each part of z with at least the given
// precision. Values are not changed. It panics if precision <= 0.
func EnsureComplexPrecision(z *number.Complex, precision int64) *number.Complex {
	return number.NewComplex(EnsurePrecision(z.Real(), precision), EnsurePrecision(z.Imag(), precision))
}

// ExtendComplexPrecision extends the precision of both parts of z by
// ExtraPrecision, independently.
func ExtendComplexPrecision(z *number.Complex) *number.Complex {
	return ExtendComplexPrecisionBy(z, ExtraPrecision)
}

// ExtendComplexPrecisionBy extends the precision of both parts of z by
// margin, independently. It panics if margin < 0.
func ExtendComplexPrecisionBy(z *number.Complex, margin int64) *number.Complex {
	return number.NewComplex(ExtendPrecisionBy(z.Real(), margin), ExtendPrecisionBy(z.Imag(), margin))
}

// ReduceComplexPrecision undoes ExtendComplexPrecision.
func ReduceComplexPrecision(z *number.Complex) (*number.Complex, error) {
	return ReduceComplexPrecisionBy(z, ExtraPrecision)
}

// ReduceComplexPrecisionBy reduces the precision of both parts of z by
// margin, independently. The error wraps aprt.ErrLossOfPrecision if either
// part has no precision left.
func ReduceComplexPrecisionBy(z *number.Complex, margin int64) (*number.Complex, error) {
	re, err := ReducePrecisionBy(z.Real(), margin)
	if err != nil {
		return nil, fmt.Errorf("real part: %w", err)
	}
	im, err := ReducePrecisionBy(z.Imag(), margin)
	if err != nil {
		return nil, fmt.Errorf("imaginary part: %w", err)
	}
	return number.NewComplex(re, im), nil
}
