// Package cashdrawer reconciles a physical cash count against the cash a shift
// should hold.
package cashdrawer

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidCount = errors.New("invalid cash count")

// NoteDenominations are the Rupiah notes counted at the drawer, largest first.
var NoteDenominations = []int64{100000, 50000, 20000, 10000, 5000, 2000, 1000}

// CoinDenominations are the Rupiah coins that may be counted piece by piece.
var CoinDenominations = []int64{1000, 500, 200, 100}

type Classification string

const (
	Over     Classification = "OVER"
	Short    Classification = "SHORT"
	Balanced Classification = "BALANCED"
)

// Count is a drawer count. Notes and Coins map a face value to a piece count;
// LooseCoins is a coin total entered directly instead of per denomination.
type Count struct {
	Notes      map[int64]int `json:"notes"`
	Coins      map[int64]int `json:"coins,omitempty"`
	LooseCoins int64         `json:"loose_coins"`
}

type Result struct {
	Expected       int64          `json:"expected"`
	Actual         int64          `json:"actual"`
	Variance       int64          `json:"variance"`
	Classification Classification `json:"classification"`
}

func (c Count) Validate() error {
	if err := validatePieces("note", c.Notes, NoteDenominations); err != nil {
		return err
	}
	if err := validatePieces("coin", c.Coins, CoinDenominations); err != nil {
		return err
	}
	if c.LooseCoins < 0 {
		return fmt.Errorf("%w: loose coins %d", ErrInvalidCount, c.LooseCoins)
	}
	return nil
}

// Actual is the cash the count represents.
func (c Count) Actual() int64 {
	var total int64
	for face, pieces := range c.Notes {
		total += face * int64(pieces)
	}
	for face, pieces := range c.Coins {
		total += face * int64(pieces)
	}
	return total + c.LooseCoins
}

// Reconcile compares the counted cash with openingFloat + cashSalesTotal. It does
// not touch any shift state.
func Reconcile(openingFloat int64, cashSalesTotal int64, count Count) (Result, error) {
	if openingFloat < 0 || cashSalesTotal < 0 {
		return Result{}, fmt.Errorf("%w: negative expected amounts", ErrInvalidCount)
	}
	if err := count.Validate(); err != nil {
		return Result{}, err
	}

	expected := openingFloat + cashSalesTotal
	actual := count.Actual()
	variance := actual - expected
	return Result{
		Expected:       expected,
		Actual:         actual,
		Variance:       variance,
		Classification: Classify(variance),
	}, nil
}

func Classify(variance int64) Classification {
	switch {
	case variance > 0:
		return Over
	case variance < 0:
		return Short
	default:
		return Balanced
	}
}

// CountFor builds a note-only count that sums to amount using the largest notes
// first, with any remainder below the smallest note as loose coins.
func CountFor(amount int64) Count {
	c := Count{Notes: make(map[int64]int, len(NoteDenominations))}
	for _, face := range NoteDenominations {
		if n := amount / face; n > 0 {
			c.Notes[face] = int(n)
			amount -= n * face
		}
	}
	c.LooseCoins = amount
	return c
}

func validatePieces(kind string, pieces map[int64]int, allowed []int64) error {
	for face, n := range pieces {
		if !slices.Contains(allowed, face) {
			return fmt.Errorf("%w: unknown %s denomination %d", ErrInvalidCount, kind, face)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative %s count for %d", ErrInvalidCount, kind, face)
		}
	}
	return nil
}
