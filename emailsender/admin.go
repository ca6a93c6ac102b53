package emailsender

import (
	"context"
	"fmt"
	"log/slog"

	"yipfoundation/settings"
)

// ContactNotice is a public contact form submission.
type ContactNotice struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
}

// FormNotice is a submission to a CMS-defined form.
type FormNotice struct {
	FormTitle string
	Slug      string
	Fields    []Field
}

// AdminNotifier emails notices to the organisation's notification
// address. Both the enabled flag and the address are read on every send.
type AdminNotifier struct {
	Client   *Client
	Settings settings.Provider
	// AdminURL links the email to the admin dashboard when set.
	AdminURL string
	Logger   *slog.Logger
}

func (n AdminNotifier) SendContactNotification(ctx context.Context, c ContactNotice) EmailResult {
	subject := "New contact message / Mesej baharu"
	if c.Subject != "" {
		subject += ": " + c.Subject
	}
	fields := []Field{
		{"Name / Nama", c.Name},
		{"Email / E-mel", c.Email},
	}
	if c.Phone != "" {
		fields = append(fields, Field{"Phone / Telefon", c.Phone})
	}
	if c.Subject != "" {
		fields = append(fields, Field{"Subject / Subjek", c.Subject})
	}
	fields = append(fields, Field{"Message / Mesej", c.Message})
	return n.send(ctx, subject, "New contact form submission", fields)
}

func (n AdminNotifier) SendFormSubmissionNotification(ctx context.Context, f FormNotice) EmailResult {
	title := f.FormTitle
	if title == "" {
		title = f.Slug
	}
	subject := fmt.Sprintf("New form submission: %s", title)
	return n.send(ctx, subject, "New submission to "+title, f.Fields)
}

func (n AdminNotifier) send(ctx context.Context, subject, heading string, fields []Field) EmailResult {
	gate := settings.NotificationGate{Settings: n.Settings}
	if !gate.Enabled() {
		return skipped(ReasonDisabled, "email notifications disabled")
	}
	if !n.Client.Configured() {
		return skipped(ReasonNoAPIKey, ErrNoAPIKey.Error())
	}
	to := gate.Recipient()
	if to == "" {
		return skipped(ReasonNoRecipient, ErrNoRecipient.Error())
	}

	org, err := settings.LoadOrganization(n.Settings)
	if err != nil {
		n.logger().Warn("organization settings unreadable, using defaults", "error", err)
	}
	html, err := render(adminTemplate, adminView{
		Subject:      subject,
		Organization: org,
		Heading:      heading,
		Fields:       fields,
		AdminURL:     n.AdminURL,
	})
	if err != nil {
		return failed(err)
	}

	id, err := n.Client.Send(ctx, Message{
		To:      []Contact{{Email: to}},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return failed(err)
	}
	return sent(id)
}

func (n AdminNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
