package receipt

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Location is Malaysia time. Malaysia has no daylight saving, so a fixed
// zone avoids depending on the host tz database.
var Location = time.FixedZone("MYT", 8*60*60)

var currencySymbols = map[string]string{
	"MYR": "RM",
	"USD": "US$",
	"SGD": "S$",
}

// MajorUnits converts a stored minor-unit amount (sen/cents) to major units.
// This is the only place the division by 100 happens.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// CurrencySymbol returns the printed symbol for an ISO currency code.
func CurrencySymbol(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	if code == "" {
		return currencySymbols["MYR"]
	}
	return code
}

// amountPrinter groups digits with commas, as Malaysian receipts do.
var amountPrinter = message.NewPrinter(language.English)

// FormatAmount prints a major-unit amount the Malaysian way: "RM 1,234.56".
// The whole part must fit in an int64, which every MajorUnits value does.
func FormatAmount(amount decimal.Decimal, currency string) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign, rounded = "-", rounded.Neg()
	}
	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s %s%s.%02d", CurrencySymbol(currency), sign, amountPrinter.Sprintf("%d", whole.IntPart()), cents)
}

// ParseAmount reads back a string produced by FormatAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	num := strings.TrimLeftFunc(strings.TrimSpace(s), func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-'
	})
	num = strings.ReplaceAll(num, ",", "")
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// FormatDate prints a date as "19 October 2026" in Malaysia time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Location).Format("2 January 2006")
}

// Filename is PREFIX-Receipt-{receiptNumber}.pdf.
func Filename(prefix, number string) string {
	return fmt.Sprintf("%s-Receipt-%s.pdf", prefix, number)
}

// PaymentMethodLabel turns a gateway method code into a printable label.
func PaymentMethodLabel(method string) string {
	switch strings.ToLower(method) {
	case "fpx":
		return "FPX Online Banking"
	case "card":
		return "Credit/Debit Card"
	case "grabpay":
		return "GrabPay"
	case "":
		return "-"
	}
	return method
}
