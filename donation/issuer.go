package donation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"yipfoundation/emailsender"
	"yipfoundation/notify"
	"yipfoundation/receipt"
)

type assembler interface {
	Assemble(paymentRef string) (*receipt.ReceiptData, error)
}

type renderer interface {
	Render(ctx context.Context, data *receipt.ReceiptData) ([]byte, error)
}

type receiptSender interface {
	SendReceipt(ctx context.Context, data *receipt.ReceiptData, pdf []byte) emailsender.EmailResult
}

// Issuer runs the receipt pipeline for a completed donation: number,
// assemble, render, email.
type Issuer struct {
	Numbers   receipt.NumberAssigner
	Assembler assembler
	Renderer  renderer
	Mailer    receiptSender
	Notifier  notify.Notifier
	Prefix    string
	Now       func() time.Time
	Logger    *slog.Logger
}

// Outcome is what a single Issue call did.
type Outcome struct {
	ReceiptNumber string                  `json:"receiptNumber"`
	Attached      bool                    `json:"attached"`
	Email         emailsender.EmailResult `json:"email"`
}

// Issue assigns the receipt number (keeping an existing one) and emails
// the receipt. A PDF failure still sends the email without the
// attachment; an email failure raises an admin notification. Nothing is
// retried here.
func (i *Issuer) Issue(ctx context.Context, paymentRef string) (Outcome, error) {
	var out Outcome
	log := i.logger().With("ref", paymentRef)

	number, err := i.Numbers.AssignReceiptNumber(ctx, paymentRef, i.Prefix, i.now())
	if err != nil {
		return out, fmt.Errorf("assign receipt number: %w", err)
	}
	out.ReceiptNumber = number

	data, err := i.Assembler.Assemble(paymentRef)
	if err != nil {
		return out, fmt.Errorf("assemble receipt: %w", err)
	}
	if data == nil {
		return out, ErrNotIssuable
	}

	pdf, err := i.Renderer.Render(ctx, data)
	if err != nil {
		log.Error("receipt pdf render failed, sending without attachment", "receipt", number, "error", err)
		pdf = nil
	}
	out.Attached = len(pdf) > 0

	out.Email = i.Mailer.SendReceipt(ctx, data, pdf)
	switch {
	case out.Email.Success:
		log.Info("receipt emailed", "receipt", number, "messageId", out.Email.MessageID)
	case out.Email.Reason != "":
		log.Warn("receipt email skipped", "receipt", number, "reason", out.Email.Reason)
		i.alert(notify.Notification{
			Title:   "Receipt not emailed",
			Message: fmt.Sprintf("Receipt %s for %s was not emailed (%s).", number, paymentRef, out.Email.Reason),
			Color:   notify.ColorOrange,
		})
	default:
		log.Error("receipt email failed", "receipt", number, "error", out.Email.Error)
		i.alert(notify.Notification{
			Title:   "Receipt email failed",
			Message: fmt.Sprintf("Receipt %s for %s could not be emailed: %s", number, paymentRef, out.Email.Error),
			Color:   notify.ColorRed,
		})
	}
	return out, nil
}

func (i *Issuer) alert(n notify.Notification) {
	if i.Notifier == nil {
		return
	}
	if err := i.Notifier.Notify(n); err != nil {
		i.logger().Error("failed to save notification", "error", err)
	}
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Issuer) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}
