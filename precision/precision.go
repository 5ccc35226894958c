// Package precision provides the rules that composite numeric operations
// use to propagate precision from their operands to their results.
//
// The rules never overstate the number of correct digits: a result is never
// reported with more precision than its operands can deliver. All functions
// are pure and safe for concurrent use.
package precision

import (
	"fmt"

	"github.com/exascience/aprt"
	"github.com/exascience/aprt/number"
)

// ExtraPrecision is the default guard margin added by ExtendPrecision and
// removed by ReducePrecision.
const ExtraPrecision int64 = 20

func checkPrecision(precision int64) {
	if precision <= 0 {
		panic(fmt.Errorf("%w: invalid precision: %v", aprt.ErrIllegalArgument, precision))
	}
}

func checkMargin(margin int64) {
	if margin < 0 {
		panic(fmt.Errorf("%w: invalid precision margin: %v", aprt.ErrIllegalArgument, margin))
	}
}

// extend adds a non-negative margin, saturating at number.Infinite.
func extend(precision, margin int64) int64 {
	if precision >= number.Infinite-margin {
		return number.Infinite
	}
	return precision + margin
}

func min64(x, y int64) int64 {
	if x < y {
		return x
	}
	return y
}

func max64(x, y int64) int64 {
	if x > y {
		return x
	}
	return y
}

/*
GetMatchingPrecisions returns the precisions that x and y must be computed
to before they are added or subtracted, so that neither operand carries
digits below the last digit that is valid in the sum.

The last valid digit of the sum is the more significant of the last valid
digits of x and y. Each result is the number of digits of the operand down
to that position, which never exceeds the operand's own precision, and is 0
if the operand lies entirely below it.

If both operands are exact, both results are number.Infinite. If one
operand is zero and the other one is not exact, both results are 0: the
zero contributes no digits, and the sum carries no digits below the
position of the last digit of an operand that has no digits.
*/
func GetMatchingPrecisions(x, y *number.Float) (xPrecision, yPrecision int64) {
	xp, yp := x.Precision(), y.Precision()
	switch {
	case xp == number.Infinite && yp == number.Infinite:
		return number.Infinite, number.Infinite
	case x.Signum() == 0 || y.Signum() == 0:
		return 0, 0
	}
	xScale, yScale := x.Scale(), y.Scale()
	var last int64
	switch {
	case xp == number.Infinite:
		last = yScale - yp
	case yp == number.Infinite:
		last = xScale - xp
	default:
		last = max64(xScale-xp, yScale-yp)
	}
	return max64(0, xScale-last), max64(0, yScale-last)
}

/*
GetMatchingPrecisions4 returns the precisions needed to compute a*b + c*d.

The products are computed to a shared precision, the minimum of the
precisions of their nonzero factors. The two products are then aligned to
the last digit that is valid in the sum, as in GetMatchingPrecisions, using
scale(a)+scale(b) and scale(c)+scale(d) as the scales of the products.
cdPrecision is the precision of the second term after alignment, and
abPrecision the precision needed from the first term.

A zero factor makes its product exactly zero, so its aligned precision is 0
and the other product keeps the shared precision. If both products are
zero, all results are 0. If all factors are exact, all results are
number.Infinite.
*/
func GetMatchingPrecisions4(a, b, c, d *number.Float) (productPrecision, cdPrecision, abPrecision int64) {
	abZero := a.Signum() == 0 || b.Signum() == 0
	cdZero := c.Signum() == 0 || d.Signum() == 0
	switch {
	case abZero && cdZero:
		return 0, 0, 0
	case abZero:
		p := min64(c.Precision(), d.Precision())
		return p, p, 0
	case cdZero:
		p := min64(a.Precision(), b.Precision())
		return p, 0, p
	}
	p := min64(min64(a.Precision(), b.Precision()), min64(c.Precision(), d.Precision()))
	if p == number.Infinite {
		return p, p, p
	}
	abScale := a.Scale() + b.Scale()
	cdScale := c.Scale() + d.Scale()
	last := max64(abScale, cdScale) - p
	return p, max64(0, cdScale-last), max64(0, abScale-last)
}

/*
LimitPrecision returns x with precision min(x.Precision(), precision).
Digits beyond the new precision are truncated; nothing else is rounded.
It panics if precision <= 0.
*/
func LimitPrecision(x *number.Float, precision int64) *number.Float {
	checkPrecision(precision)
	if precision >= x.Precision() {
		return x
	}
	return x.WithPrecision(precision)
}

/*
EnsurePrecision returns x with precision max(x.Precision(), precision).
The value is not changed: the extra precision is implicit. It panics if
precision <= 0.
*/
func EnsurePrecision(x *number.Float, precision int64) *number.Float {
	checkPrecision(precision)
	if precision <= x.Precision() {
		return x
	}
	return x.WithPrecision(precision)
}

// ExtendPrecision returns x with its precision increased by ExtraPrecision.
func ExtendPrecision(x *number.Float) *number.Float {
	return ExtendPrecisionBy(x, ExtraPrecision)
}

// ExtendPrecisionBy returns x with its precision increased by margin,
// saturating at number.Infinite. It panics if margin < 0.
func ExtendPrecisionBy(x *number.Float, margin int64) *number.Float {
	checkMargin(margin)
	if x.Signum() == 0 || margin == 0 {
		return x
	}
	return x.WithPrecision(extend(x.Precision(), margin))
}

// ReducePrecision undoes ExtendPrecision.
func ReducePrecision(x *number.Float) (*number.Float, error) {
	return ReducePrecisionBy(x, ExtraPrecision)
}

/*
ReducePrecisionBy returns x with its precision decreased by margin. Exact
values stay exact.

If the precision of x is not larger than margin, the extended computation
produced no valid digits, and ReducePrecisionBy returns an error wrapping
aprt.ErrLossOfPrecision. Callers must request more precision upstream
instead of retrying. ReducePrecisionBy panics if margin < 0.
*/
func ReducePrecisionBy(x *number.Float, margin int64) (*number.Float, error) {
	checkMargin(margin)
	p := x.Precision()
	if p == number.Infinite || margin == 0 {
		return x, nil
	}
	if p <= margin {
		return nil, fmt.Errorf("%w: precision %v does not exceed margin %v", aprt.ErrLossOfPrecision, p, margin)
	}
	return x.WithPrecision(p - margin), nil
}
