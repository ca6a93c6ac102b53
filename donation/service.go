package donation

import (
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"yipfoundation/notify"
	"yipfoundation/receipt"
)

// Service holds the donation flow's collaborators. Routes, the webhook,
// the CLI and the backlog cron all share one Service.
type Service struct {
	Donations Donations
	Issuer    *Issuer
	Notifier  notify.Notifier
	Assembler assembler
	Renderer  renderer
	Links     receipt.LinkSigner

	// NewSession creates a Stripe Checkout session.
	NewSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	// PaymentMethod looks up the method type used for a payment intent.
	// Nil leaves the method empty.
	PaymentMethod func(intentID string) (string, error)

	WebhookSecret string
	Currency      string
	SiteURL       string
	Now           func() time.Time
	Logger        *slog.Logger
}

// StripeSession is the live NewSession.
func StripeSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

// StripePaymentMethod is the live PaymentMethod lookup.
func StripePaymentMethod(intentID string) (string, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("payment_method")
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return "", err
	}
	if pi.PaymentMethod == nil {
		return "", nil
	}
	return string(pi.PaymentMethod.Type), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) notify(n notify.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(n); err != nil {
		s.logger().Error("failed to save notification", "error", err)
	}
}

// StatusLinkWindow is how long after completion the status endpoint still
// hands out a signed download link. Later downloads go through the link in
// the receipt email.
const StatusLinkWindow = 24 * time.Hour

// Status reports a donation's state to the success page. The payment
// reference (DON- plus a random UUID) is the bearer secret here: anyone
// holding it sees the amount and, within StatusLinkWindow of completion, a
// signed link to the receipt PDF.
func (s *Service) Status(ref string) (statusResponse, error) {
	d, err := s.Donations.FindDonation(ref)
	if err != nil {
		return statusResponse{}, err
	}
	resp := statusResponse{
		Status:        d.PaymentStatus,
		Amount:        receipt.FormatAmount(receipt.MajorUnits(d.Amount), d.Currency),
		ReceiptNumber: d.ReceiptNumber,
	}
	if d.ReceiptNumber == "" || d.CompletedAt == nil || s.now().Sub(*d.CompletedAt) > StatusLinkWindow {
		return resp, nil
	}
	link, err := s.Links.DownloadURL(s.SiteURL, ref)
	if err != nil {
		s.logger().Warn("receipt link not signed", "ref", ref, "error", err)
		return resp, nil
	}
	resp.DownloadURL = link
	return resp, nil
}
