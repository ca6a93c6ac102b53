package emailsender

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/pocketbase/pocketbase/core"
)

// RegisterMailer routes PocketBase system mail (verification, password
// reset) through the Brevo client instead of SMTP. Without an API key the
// default mailer is left in place.
func RegisterMailer(app core.App, client *Client) {
	app.OnMailerSend().BindFunc(func(e *core.MailerEvent) error {
		if !client.Configured() {
			return e.Next()
		}

		var to []Contact
		for _, addr := range e.Message.To {
			name := addr.Name
			if name == "" {
				name = addr.Address
			}
			to = append(to, Contact{Name: name, Email: addr.Address})
		}

		msg := Message{
			To:      to,
			Subject: e.Message.Subject,
			HTML:    e.Message.HTML,
		}
		if e.Message.From.Address != "" {
			msg.From = &Contact{Name: e.Message.From.Name, Email: e.Message.From.Address}
		}
		for name, r := range e.Message.Attachments {
			b, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read attachment %s: %w", name, err)
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Name:    name,
				Content: base64.StdEncoding.EncodeToString(b),
			})
		}

		id, err := client.Send(context.Background(), msg)
		if err != nil {
			return err
		}
		e.App.Logger().Debug("system mail sent", "to", len(to), "messageId", id)

		// Not calling e.Next() skips the SMTP mailer.
		return nil
	})
}
