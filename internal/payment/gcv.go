package payment

import (
	"fmt"
	"strconv"
	"strings"
)

// GCVRate is the community reference rate of 1π = $314,159. Display only.
const GCVRate = 314159.0

func ToUSD(pi float64) float64 {
	return pi * GCVRate
}

// FormatPi renders an amount the way the wallet shows it, with six decimals.
func FormatPi(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 6, 64) + " π"
}

// FormatUSD renders dollars with thousands separators and two decimals.
func FormatUSD(usd float64) string {
	sign := ""
	if usd < 0 {
		sign = "-"
		usd = -usd
	}
	s := strconv.FormatFloat(usd, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s$%s.%s", sign, b.String(), frac)
}
