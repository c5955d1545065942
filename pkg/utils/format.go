package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPct formats a percentage value with sign and suffix.
// e.g., 1.3698 → "+1.37%", -0.5 → "-0.50%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatAmount rounds half away from zero to the given places.
// Rounding happens only here; callers keep full-precision floats.
// NaN and infinities render as "NaN", "∞" and "-∞".
func FormatAmount(v float64, places int32) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}
	return decimal.NewFromFloat(v).Round(places).StringFixed(places)
}

// FormatVES formats an amount the way Venezuelan users read it:
// "." groups thousands and "," separates decimals, e.g. "Bs. 1.234.567,89".
func FormatVES(amount float64) string {
	s := FormatLocal(amount, 2)
	if strings.HasPrefix(s, "-") {
		return "-Bs. " + s[1:]
	}
	return "Bs. " + s
}

// FormatLocal formats a number with es-VE separators and fixed places.
func FormatLocal(amount float64, places int32) string {
	fixed := FormatAmount(amount, places)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, decPart, _ := strings.Cut(fixed, ".")
	out := groupThousands(intPart)
	if decPart != "" {
		out += "," + decPart
	}
	if negative && strings.Trim(out, "0.,") != "" {
		return "-" + out
	}
	return out
}

// groupThousands inserts "." every 3 digits from the right.
func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// NormalizeCode canonicalizes a currency code or stock symbol: " usd " → "USD".
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
