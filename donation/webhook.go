package donation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"yipfoundation/notify"
	"yipfoundation/receipt"
)

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func (s *Service) ParseEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// HandleEvent applies a verified Stripe event. It reports whether the
// event concerned a donation.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) (bool, error) {
	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		return false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return false, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.Metadata["type"] != "donation" {
		return false, nil
	}
	ref := sess.Metadata["payment_reference"]
	if ref == "" {
		ref = sess.ClientReferenceID
	}
	if ref == "" {
		return true, fmt.Errorf("checkout session %s has no payment reference", sess.ID)
	}

	switch event.Type {
	case "checkout.session.completed":
		// FPX can complete the session before the bank confirms; those
		// arrive later as async_payment_succeeded.
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return true, nil
		}
		return true, s.complete(ctx, ref, &sess, time.Unix(event.Created, 0))
	case "checkout.session.async_payment_succeeded":
		return true, s.complete(ctx, ref, &sess, time.Unix(event.Created, 0))
	default:
		return true, s.Donations.MarkFailed(ref)
	}
}

func (s *Service) complete(ctx context.Context, ref string, sess *stripe.CheckoutSession, at time.Time) error {
	log := s.logger().With("ref", ref)

	var intentID string
	if sess.PaymentIntent != nil {
		intentID = sess.PaymentIntent.ID
	}
	method := ""
	if intentID != "" && s.PaymentMethod != nil {
		m, err := s.PaymentMethod(intentID)
		if err != nil {
			log.Warn("payment method lookup failed", "intent", intentID, "error", err)
		}
		method = m
	}
	if method == "" && len(sess.PaymentMethodTypes) == 1 {
		method = sess.PaymentMethodTypes[0]
	}

	changed, err := s.Donations.MarkCompleted(ref, intentID, method, at)
	if err != nil {
		return fmt.Errorf("mark donation completed: %w", err)
	}
	if !changed {
		log.Info("donation already completed, skipping receipt")
		return nil
	}

	amount := receipt.FormatAmount(receipt.MajorUnits(sess.AmountTotal), strings.ToUpper(string(sess.Currency)))
	donor := ""
	if sess.CustomerDetails != nil {
		donor = sess.CustomerDetails.Name
	}
	if donor == "" {
		donor = "A donor"
	}
	n := notify.Notification{
		Title:   "Donation",
		Message: fmt.Sprintf("%s donated %s (%s)", donor, amount, ref),
		Color:   notify.ColorGreen,
	}
	if intentID != "" {
		n.URL = "https://dashboard.stripe.com/payments/" + intentID
	}
	s.notify(n)

	if _, err := s.Issuer.Issue(ctx, ref); err != nil {
		log.Error("receipt issuance failed", "error", err)
		s.notify(notify.Notification{
			Title:   "Receipt not issued",
			Message: fmt.Sprintf("No receipt was issued for %s: %v", ref, err),
			Color:   notify.ColorRed,
		})
	}
	return nil
}
