package donation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"yipfoundation/receipt"
)

// Accepted donation range, in minor units.
const (
	MinAmount int64 = 100
	MaxAmount int64 = 999_999_999

	maxMessageRunes = 1000
)

var (
	ErrInvalidAmount  = fmt.Errorf("amount must be between %d and %d sen", MinAmount, MaxAmount)
	ErrInvalidDonor   = errors.New("donor name and a valid email are required")
	ErrUnknownProject = errors.New("unknown project")
	ErrNotIssuable    = errors.New("receipt data unavailable")
)

// Donations is the persistence the donation flow needs.
type Donations interface {
	receipt.DonationStore
	CreatePending(d receipt.Donation) error
	MarkCompleted(paymentRef, transactionID, method string, at time.Time) (bool, error)
	MarkFailed(paymentRef string) error
	CompletedWithoutReceipt(before time.Time) ([]receipt.Donation, error)
}

// CheckoutRequest is the body of POST /api/donations/checkout.
type CheckoutRequest struct {
	Amount    int64  `json:"amount"` // minor units
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

func (r *CheckoutRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	if r.Amount < MinAmount || r.Amount > MaxAmount {
		return ErrInvalidAmount
	}
	if r.Name == "" {
		return ErrInvalidDonor
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return ErrInvalidDonor
	}
	if utf8.RuneCountInString(r.Message) > maxMessageRunes {
		r.Message = string([]rune(r.Message)[:maxMessageRunes])
	}
	return nil
}

type checkoutResponse struct {
	URL              string `json:"url"`
	PaymentReference string `json:"paymentReference"`
}

type statusResponse struct {
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	ReceiptNumber string `json:"receiptNumber,omitempty"`
	DownloadURL   string `json:"downloadUrl,omitempty"`
}
