package receipt

import (
	"errors"
	"fmt"
	"log/slog"

	"yipfoundation/settings"
)

// DefaultProjectTitle is printed when a donation is not tied to a project.
const DefaultProjectTitle = "General Fund / Dana Am"

// DonationStore is the read side the assembler needs.
type DonationStore interface {
	// FindDonation returns ErrNotFound when no donation has paymentRef.
	FindDonation(paymentRef string) (*Donation, error)
	// ProjectTitle returns ErrNotFound when the project does not exist.
	ProjectTitle(projectID string) (string, error)
}

// Assembler joins a donation with its project and the organization profile.
type Assembler struct {
	Donations DonationStore
	Settings  settings.Provider
	Prefix    string
	Logger    *slog.Logger
}

// Assemble builds the receipt view for paymentRef. It returns nil, nil when
// there is nothing to receipt: no such donation, payment not completed, or
// no receipt number assigned yet.
func (a Assembler) Assemble(paymentRef string) (*ReceiptData, error) {
	d, err := a.Donations.FindDonation(paymentRef)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find donation: %w", err)
	}
	if !d.Completed() || d.ReceiptNumber == "" {
		return nil, nil
	}

	title := DefaultProjectTitle
	if d.ProjectID != "" {
		t, err := a.Donations.ProjectTitle(d.ProjectID)
		switch {
		case err == nil && t != "":
			title = t
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("find project: %w", err)
		}
	}

	org, err := settings.LoadOrganization(a.Settings)
	if err != nil {
		a.logger().Warn("using default organization config", "error", err)
	}

	data := &ReceiptData{
		ReceiptNumber:    d.ReceiptNumber,
		Prefix:           a.Prefix,
		DonorName:        d.DonorName,
		DonorEmail:       d.DonorEmail,
		DonorPhone:       d.DonorPhone,
		Amount:           MajorUnits(d.Amount),
		Currency:         d.Currency,
		ProjectTitle:     title,
		PaymentReference: d.PaymentReference,
		PaymentMethod:    d.PaymentMethod,
		TransactionID:    d.TransactionID,
		Message:          d.Message,
		CreatedAt:        d.CreatedAt,
		Organization:     org,
	}
	if d.CompletedAt != nil {
		data.CompletedAt = *d.CompletedAt
	} else {
		data.CompletedAt = d.CreatedAt
	}
	return data, nil
}

func (a Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
