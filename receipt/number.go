package receipt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SequenceDigits is the zero-padded width of the yearly sequence.
const SequenceDigits = 6

// NumberAssigner gives a completed donation its receipt number. A donation
// that already has one keeps it; a number is never handed out twice.
type NumberAssigner interface {
	AssignReceiptNumber(ctx context.Context, paymentRef, prefix string, now time.Time) (string, error)
}

// YearPrefix is the common prefix of every receipt number in a year,
// e.g. "YIP-2026-".
func YearPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%04d-", prefix, year)
}

// FormatNumber builds PREFIX-YYYY-NNNNNN.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s%0*d", YearPrefix(prefix, year), SequenceDigits, seq)
}

// SequenceOf extracts the sequence from a receipt number of the given year.
// Anything that is not a number of that year yields 0.
func SequenceOf(number, prefix string, year int) int {
	tail, ok := strings.CutPrefix(number, YearPrefix(prefix, year))
	if !ok {
		return 0
	}
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

// NextNumber returns the number following latest, the greatest receipt
// number issued so far in now's year ("" when none). A malformed latest
// value restarts the sequence at 1.
func NextNumber(prefix string, now time.Time, latest string) string {
	year := now.In(Location).Year()
	return FormatNumber(prefix, year, SequenceOf(latest, prefix, year)+1)
}
