package receipt

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"yipfoundation/settings"
)

// Payment statuses stored on a donation.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrNotFound     = errors.New("donation not found")
	ErrNotCompleted = errors.New("donation payment not completed")
)

// Donation is a donation row as written by the payment flow.
type Donation struct {
	ID               string     `mapstructure:"id"`
	DonorName        string     `mapstructure:"donor_name"`
	DonorEmail       string     `mapstructure:"donor_email"`
	DonorPhone       string     `mapstructure:"donor_phone"`
	Amount           int64      `mapstructure:"amount"` // minor units
	Currency         string     `mapstructure:"currency"`
	ProjectID        string     `mapstructure:"project"`
	PaymentReference string     `mapstructure:"payment_reference"`
	PaymentMethod    string     `mapstructure:"payment_method"`
	PaymentStatus    string     `mapstructure:"payment_status"`
	TransactionID    string     `mapstructure:"transaction_id"`
	Message          string     `mapstructure:"message"`
	ReceiptNumber    string     `mapstructure:"receipt_number"`
	CompletedAt      *time.Time `mapstructure:"completed_at"`
	CreatedAt        time.Time  `mapstructure:"created"`
}

// Completed reports whether the payment went through.
func (d Donation) Completed() bool {
	return d.PaymentStatus == StatusCompleted
}

// ReceiptData is the flattened view a receipt (PDF and email) is rendered
// from. Amount is already in major units.
type ReceiptData struct {
	ReceiptNumber    string
	Prefix           string
	DonorName        string
	DonorEmail       string
	DonorPhone       string
	Amount           decimal.Decimal
	Currency         string
	ProjectTitle     string
	PaymentReference string
	PaymentMethod    string
	TransactionID    string
	Message          string
	CompletedAt      time.Time
	CreatedAt        time.Time
	Organization     settings.OrganizationConfig
}

// FormattedAmount is the amount as printed on the receipt.
func (r ReceiptData) FormattedAmount() string {
	return FormatAmount(r.Amount, r.Currency)
}

// FormattedDate is the receipt date, i.e. the payment completion date.
func (r ReceiptData) FormattedDate() string {
	return FormatDate(r.CompletedAt)
}

// TaxDeductible reports whether the tax-deduction notice applies.
func (r ReceiptData) TaxDeductible() bool {
	return r.Organization.TaxReference != ""
}

// Filename is the attachment/download name of the receipt PDF.
func (r ReceiptData) Filename() string {
	return Filename(r.Prefix, r.ReceiptNumber)
}
