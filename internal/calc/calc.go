// Package calc derives presentation values from rate snapshots: spreads
// between two quotes and base/target conversions through the pivot.
package calc

import (
	"errors"
	"fmt"
	"math"

	"github.com/seenimoa/tasas/internal/rates"
	"github.com/seenimoa/tasas/pkg/models"
)

var (
	// ErrInvalidRate is returned when a rate value is zero or negative.
	ErrInvalidRate = errors.New("rate value must be positive")

	// ErrUnknownCurrency is returned for a code missing from the rate set.
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrInvalidAmount is returned for NaN or infinite amounts.
	ErrInvalidAmount = errors.New("amount must be a finite number")

	// ErrOutOfRange is returned when a conversion overflows float64.
	ErrOutOfRange = errors.New("converted amount out of range")
)

// Spread returns the percentage gap between two quotes,
// ((max-min)/min)*100. A supplied upstream value wins and keeps its sign.
// Without one, both quotes must be positive or the result is nil.
func Spread(official, market float64, supplied *float64) *float64 {
	if supplied != nil {
		v := *supplied
		return &v
	}
	if official <= 0 || market <= 0 {
		return nil
	}
	lo, hi := min(official, market), max(official, market)
	v := (hi - lo) / lo * 100
	return &v
}

// RateSpread computes the spread between two codes of a rate set, using
// the market rate's SpreadPercentage when upstream sent one.
func RateSpread(all []models.CurrencyRate, officialCode, marketCode string) (*float64, error) {
	official, ok := models.FindRate(all, officialCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, officialCode)
	}
	market, ok := models.FindRate(all, marketCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, marketCode)
	}
	return Spread(official.Value, market.Value, market.SpreadPercentage), nil
}

// ConvertBetween converts amount of base into target:
// amount * (base.Value / target.Value), at full precision.
func ConvertBetween(amount float64, base, target models.CurrencyRate) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, ErrInvalidAmount
	}
	if amount < 0 {
		return 0, rates.ErrNegativeAmount
	}
	if base.Value <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRate, base.Code)
	}
	if target.Value <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRate, target.Code)
	}
	v := amount * (base.Value / target.Value)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %g %s to %s", ErrOutOfRange, amount, base.Code, target.Code)
	}
	return v, nil
}
