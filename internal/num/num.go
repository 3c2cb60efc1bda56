// Package num holds the fixed-point numeric policy for the matching core.
//
// Prices are integer amounts of the quote asset's smallest unit, quantities
// are integer amounts of the base asset's smallest unit. All arithmetic on
// them is checked: anything that could leave the int64 range returns
// ErrOverflow instead of wrapping.
package num

import (
	"errors"
	"math"
)

var ErrOverflow = errors.New("arithmetic overflow")

// CheckedAdd returns a+b, or ErrOverflow if the sum leaves the int64 range.
func CheckedAdd(a, b int64) (int64, error) {
	sum := a + b
	// Overflow flips the sign of the result relative to both operands.
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum > 0) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b, or ErrOverflow if the difference leaves the int64
// range.
func CheckedSub(a, b int64) (int64, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// CheckedMul returns a*b, or ErrOverflow if the product leaves the int64
// range.
func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	// MinInt64 * -1 wraps back to MinInt64 and would slip past the division
	// check below.
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, ErrOverflow
	}
	prod := a * b
	if prod/b != a {
		return 0, ErrOverflow
	}
	return prod, nil
}

// Aligned reports whether v is a non-negative multiple of step. A step of
// zero or less never aligns anything.
func Aligned(v, step int64) bool {
	if step <= 0 || v < 0 {
		return false
	}
	return v%step == 0
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
