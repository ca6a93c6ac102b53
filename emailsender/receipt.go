package emailsender

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"yipfoundation/receipt"
)

// ReceiptMailer emails donation receipts to donors.
type ReceiptMailer struct {
	Client *Client
	// DownloadURL, when set, adds a signed download link to the email.
	DownloadURL func(paymentRef string) (string, error)
	Logger      *slog.Logger
}

// ReceiptSubject is the bilingual subject line of a receipt email.
func ReceiptSubject(number string) string {
	return fmt.Sprintf("Donation Receipt %s / Resit Derma %s", number, number)
}

// SendReceipt sends data to the donor with pdf attached. A nil pdf sends
// the email without an attachment.
func (m ReceiptMailer) SendReceipt(ctx context.Context, data *receipt.ReceiptData, pdf []byte) EmailResult {
	if !m.Client.Configured() {
		return skipped(ReasonNoAPIKey, ErrNoAPIKey.Error())
	}
	if data == nil || strings.TrimSpace(data.DonorEmail) == "" {
		return skipped(ReasonNoRecipient, ErrNoRecipient.Error())
	}

	subject := ReceiptSubject(data.ReceiptNumber)
	view := receiptView{
		Subject:      subject,
		Organization: data.Organization,
		Receipt:      data,
		Attached:     len(pdf) > 0,
	}
	if m.DownloadURL != nil {
		url, err := m.DownloadURL(data.PaymentReference)
		if err != nil {
			m.logger().Warn("receipt link not signed", "ref", data.PaymentReference, "error", err)
		} else {
			view.DownloadURL = url
		}
	}

	html, err := render(receiptTemplate, view)
	if err != nil {
		return failed(err)
	}

	msg := Message{
		To:      []Contact{{Name: data.DonorName, Email: strings.TrimSpace(data.DonorEmail)}},
		Subject: subject,
		HTML:    html,
	}
	if len(pdf) > 0 {
		msg.Attachments = []Attachment{{
			Name:    data.Filename(),
			Content: base64.StdEncoding.EncodeToString(pdf),
		}}
	}

	id, err := m.Client.Send(ctx, msg)
	if err != nil {
		return failed(err)
	}
	return sent(id)
}

func (m ReceiptMailer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
