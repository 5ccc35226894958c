package number

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/aprt"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in        string
		radix     int
		out       string
		precision int64
		scale     int64
	}{
		{"1.23", 10, "1.23", 3, 1},
		{"-12.375", 10, "-12.375", 5, 2},
		{"0.0123", 10, "0.0123", 3, -1},
		{"1.230", 10, "1.23", 4, 1},
		{"12345678", 10, "12345678", 8, 8},
		{"ff.8", 16, "ff.8", 3, 2},
		{"101", 2, "101", 3, 3},
	} {
		f, err := Parse(tc.in, tc.radix)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, f.String(), tc.in)
		assert.Equal(t, tc.precision, f.Precision(), tc.in)
		assert.Equal(t, tc.scale, f.Scale(), tc.in)
		assert.Equal(t, tc.radix, f.Radix(), tc.in)
	}
}

func TestParseZeroIsExact(t *testing.T) {
	f := MustParse("-0.000", 10)
	assert.Equal(t, 0, f.Signum())
	assert.Equal(t, Infinite, f.Precision())
	assert.Equal(t, "0", f.String())
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "-", "1.2.3", "12a", "1-2", "."} {
		_, err := Parse(in, 10)
		assert.True(t, errors.Is(err, aprt.ErrIllegalArgument), in)
	}
}

func TestNewTruncatesToPrecision(t *testing.T) {
	f := New(12345678, 5)
	assert.Equal(t, "12345000", f.String())
	assert.Equal(t, int64(5), f.Precision())
	assert.Equal(t, int64(8), f.Scale())

	exact := New(-42, Infinite)
	assert.Equal(t, "-42", exact.String())
	assert.Equal(t, Infinite, exact.Precision())
}

func TestWithPrecision(t *testing.T) {
	f := MustParse("1.23", 10)
	g := f.WithPrecision(2)
	assert.Equal(t, "1.2", g.String())
	assert.Equal(t, int64(2), g.Precision())
	assert.Equal(t, "1.23", f.String(), "receiver must not change")

	h := f.WithPrecision(10)
	assert.True(t, h.Equal(f))
	assert.Equal(t, int64(10), h.Precision())

	assert.Panics(t, func() { f.WithPrecision(0) })
}

func TestInvalidRadix(t *testing.T) {
	assert.Panics(t, func() { NewRadix(1, 1, 1) })
	assert.Panics(t, func() { Zero(37) })
}

func TestComplexPrecision(t *testing.T) {
	z := NewComplex(MustParse("100.0", 10), MustParse("1.5", 10))
	// The real part is valid down to 10^-1, the imaginary part to 10^-1 too.
	assert.Equal(t, int64(4), z.Precision())
	assert.Equal(t, int64(3), z.Scale())

	z = NewComplex(New(2, Infinite), nil)
	assert.Equal(t, Infinite, z.Precision())
	assert.Equal(t, "(2, 0)", z.String())

	z = NewComplex(Zero(10), New(7, 3))
	assert.Equal(t, int64(3), z.Precision())
}
