package donation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"

	"yipfoundation/receipt"
)

// NewPaymentReference returns a fresh DON-<uuid> reference.
func NewPaymentReference() string {
	return "DON-" + strings.ToUpper(uuid.NewString())
}

// Checkout records a pending donation and opens a Stripe Checkout session
// for it. It returns the session URL and the payment reference.
func (s *Service) Checkout(req CheckoutRequest) (string, string, error) {
	if err := req.normalize(); err != nil {
		return "", "", err
	}

	title := receipt.DefaultProjectTitle
	if req.ProjectID != "" {
		t, err := s.Donations.ProjectTitle(req.ProjectID)
		if errors.Is(err, receipt.ErrNotFound) {
			return "", "", ErrUnknownProject
		}
		if err != nil {
			return "", "", err
		}
		if t != "" {
			title = t
		}
	}

	ref := NewPaymentReference()
	currency := strings.ToUpper(s.Currency)
	if currency == "" {
		currency = "MYR"
	}
	err := s.Donations.CreatePending(receipt.Donation{
		DonorName:        req.Name,
		DonorEmail:       req.Email,
		DonorPhone:       req.Phone,
		Amount:           req.Amount,
		Currency:         currency,
		ProjectID:        req.ProjectID,
		PaymentReference: ref,
		PaymentStatus:    receipt.StatusPending,
		Message:          req.Message,
	})
	if err != nil {
		return "", "", err
	}

	sess, err := s.NewSession(s.sessionParams(req, ref, title, currency))
	if err != nil {
		if markErr := s.Donations.MarkFailed(ref); markErr != nil {
			s.logger().Error("failed to mark donation failed", "ref", ref, "error", markErr)
		}
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, ref, nil
}

func (s *Service) sessionParams(req CheckoutRequest, ref, title, currency string) *stripe.CheckoutSessionParams {
	q := url.Values{"ref": {ref}}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"fpx", "card"}),
		CustomerEmail:      stripe.String(req.Email),
		ClientReferenceID:  stripe.String(ref),
		SuccessURL:         stripe.String(s.SiteURL + "/donate/success?" + q.Encode()),
		CancelURL:          stripe.String(s.SiteURL + "/donate?cancelled=1"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Donation: " + title),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String("Donation " + ref),
			Metadata: map[string]string{
				"type":              "donation",
				"payment_reference": ref,
			},
		},
	}
	params.AddMetadata("type", "donation")
	params.AddMetadata("payment_reference", ref)
	if req.ProjectID != "" {
		params.AddMetadata("project", req.ProjectID)
	}
	return params
}
