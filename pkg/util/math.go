package util

import (
	"errors"
	"math"
)

var ErrOverflow = errors.New("int64 overflow")

// MulInt64 multiplies two non-negative amounts, reporting overflow instead of
// wrapping. Prices and quantities are never negative in the exchange.
func MulInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errors.New("negative operand")
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// AddInt64 adds two non-negative amounts, reporting overflow.
func AddInt64(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, errors.New("negative operand")
	}
	if a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
