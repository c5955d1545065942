package calc

import (
	"fmt"
	"math"
	"sync"

	"github.com/seenimoa/tasas/internal/rates"
	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

// Conversion is one target line of the calculator.
type Conversion struct {
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`   // target units per 1 base unit
	Amount float64 `json:"amount"` // converted amount, unrounded
}

// Calculator holds a base currency, an amount and a set of target
// currencies. Targets that stop being valid for the base (because the base
// or the rate set changed) are dropped silently.
type Calculator struct {
	mu      sync.Mutex
	rates   []models.CurrencyRate
	base    string
	amount  float64
	targets []string
}

// NewCalculator creates a calculator over a rate set with the given base.
func NewCalculator(all []models.CurrencyRate, base string) (*Calculator, error) {
	c := &Calculator{rates: models.CloneRates(all), amount: 1}
	if err := c.SetBase(base); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRates replaces the rate set, e.g. from a repository subscription.
// If the base disappears, the first rate becomes the base.
func (c *Calculator) SetRates(all []models.CurrencyRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = models.CloneRates(all)
	if _, ok := models.FindRate(c.rates, c.base); !ok {
		c.base = ""
		if len(c.rates) > 0 {
			c.base = c.rates[0].Code
		}
	}
	c.prune()
}

// SetBase changes the base currency.
func (c *Calculator) SetBase(code string) error {
	code = utils.NormalizeCode(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := models.FindRate(c.rates, code); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	c.base = code
	c.prune()
	return nil
}

// Base returns the base currency code.
func (c *Calculator) Base() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

// SetAmount sets the amount of base currency to convert.
func (c *Calculator) SetAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidAmount
	}
	if amount < 0 {
		return rates.ErrNegativeAmount
	}
	c.mu.Lock()
	c.amount = amount
	c.mu.Unlock()
	return nil
}

// AddTarget adds a target currency. Adding an existing target is a no-op.
func (c *Calculator) AddTarget(code string) error {
	code = utils.NormalizeCode(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.eligible(code) {
		if _, ok := models.FindRate(c.rates, code); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
		}
		return fmt.Errorf("%s is not a valid target for %s", code, c.base)
	}
	for _, t := range c.targets {
		if t == code {
			return nil
		}
	}
	c.targets = append(c.targets, code)
	return nil
}

// RemoveTarget removes a target currency if present.
func (c *Calculator) RemoveTarget(code string) {
	code = utils.NormalizeCode(code)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.targets {
		if t == code {
			c.targets = append(c.targets[:i], c.targets[i+1:]...)
			return
		}
	}
}

// Targets returns the active target codes in insertion order.
func (c *Calculator) Targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.targets...)
}

// Results converts the amount into every target.
func (c *Calculator) Results() []Conversion {
	c.mu.Lock()
	defer c.mu.Unlock()

	base, ok := models.FindRate(c.rates, c.base)
	if !ok {
		return nil
	}
	out := make([]Conversion, 0, len(c.targets))
	for _, code := range c.targets {
		target, ok := models.FindRate(c.rates, code)
		if !ok {
			continue
		}
		amount, err := ConvertBetween(c.amount, base, target)
		if err != nil {
			continue
		}
		out = append(out, Conversion{
			Code:   target.Code,
			Name:   target.Name,
			Rate:   base.Value / target.Value,
			Amount: amount,
		})
	}
	return out
}

// eligible reports whether code is a valid target for the current base.
// Callers hold c.mu.
func (c *Calculator) eligible(code string) bool {
	base, ok := models.FindRate(c.rates, c.base)
	if !ok || base.Value <= 0 {
		return false
	}
	for _, r := range rates.AvailableTargets(base, c.rates) {
		if r.Code == code {
			return true
		}
	}
	return false
}

// prune drops targets that are no longer eligible. Callers hold c.mu.
func (c *Calculator) prune() {
	kept := c.targets[:0]
	for _, t := range c.targets {
		if c.eligible(t) {
			kept = append(kept, t)
		}
	}
	c.targets = kept
}
