package channel

import "strconv"

// formatFixed renders v with exactly prec decimal places, matching the
// fixed-precision text fields the HMI protocol expects (spec §6).
func formatFixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
