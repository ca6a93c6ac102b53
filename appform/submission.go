package appform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	"yipfoundation/emailsender"
	"yipfoundation/notify"
)

const (
	CollectionContact = "contact_submissions"
	CollectionForms   = "forms"
	CollectionEntries = "form_submissions"
)

type adminMailer interface {
	SendContactNotification(ctx context.Context, c emailsender.ContactNotice) emailsender.EmailResult
	SendFormSubmissionNotification(ctx context.Context, f emailsender.FormNotice) emailsender.EmailResult
}

// Handler receives public form posts.
type Handler struct {
	Turnstile Turnstile
	Mailer    adminMailer
	Bell      notify.Notifier
}

func RegisterRoutes(r *router.Router[*core.RequestEvent], h Handler) {
	r.POST("/api/contact", h.ContactRoute)
	r.POST("/api/forms/{slug}/submissions", h.FormRoute)
}

func (h Handler) ContactRoute(e *core.RequestEvent) error {
	var submission ContactSubmission
	if err := e.BindBody(&submission); err != nil {
		return e.BadRequestError("Invalid request body.", err)
	}
	if err := submission.normalize(); err != nil {
		return e.BadRequestError(err.Error(), nil)
	}
	if err := h.verify(e, submission.Turnstile); err != nil {
		return err
	}

	collection, err := e.App.FindCollectionByNameOrId(CollectionContact)
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("name", submission.Name)
	record.Set("email", submission.Email)
	record.Set("phone", submission.Phone)
	record.Set("subject", submission.Subject)
	record.Set("message", submission.Message)
	record.Set("human", true)
	if err := e.App.Save(record); err != nil {
		return err
	}

	title := submission.Name + " sent a message"
	if submission.Subject != "" {
		title += ": " + submission.Subject
	}
	h.ring(e.App, notify.Notification{Title: "Contact", Message: title, Color: notify.ColorBlue})

	res := h.Mailer.SendContactNotification(context.WithoutCancel(e.Request.Context()), submission.notice())
	logResult(e.App, "contact", res)

	return e.JSON(http.StatusOK, "Message sent successfully")
}

func (h Handler) FormRoute(e *core.RequestEvent) error {
	slug := e.Request.PathValue("slug")
	form, err := e.App.FindFirstRecordByData(CollectionForms, "slug", slug)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !form.GetBool("active")) {
		return e.NotFoundError("Form not found.", err)
	}
	if err != nil {
		return err
	}

	var submission FormSubmission
	if err := e.BindBody(&submission); err != nil {
		return e.BadRequestError("Invalid request body.", err)
	}
	if len(submission.Fields) == 0 {
		return e.BadRequestError(ErrNoFields.Error(), nil)
	}
	if err := h.verify(e, submission.Turnstile); err != nil {
		return err
	}

	collection, err := e.App.FindCollectionByNameOrId(CollectionEntries)
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("form", form.Id)
	record.Set("data", submission.Fields)
	record.Set("human", true)
	if err := e.App.Save(record); err != nil {
		return err
	}

	title := form.GetString("title")
	h.ring(e.App, notify.Notification{
		Title:   "Form submission",
		Message: fmt.Sprintf("New submission to %s", firstNonEmpty(title, slug)),
		Color:   notify.ColorBlue,
	})

	res := h.Mailer.SendFormSubmissionNotification(context.WithoutCancel(e.Request.Context()), emailsender.FormNotice{
		FormTitle: title,
		Slug:      slug,
		Fields:    submission.noticeFields(),
	})
	logResult(e.App, "form "+slug, res)

	return e.JSON(http.StatusOK, "Form submitted successfully")
}

func (h Handler) verify(e *core.RequestEvent, token string) error {
	ok, err := h.Turnstile.Verify(e.Request.Context(), token, e.RealIP())
	if err != nil {
		e.App.Logger().Error("Error verifying turnstile", "error", err)
		return e.BadRequestError("Verification failed.", err)
	}
	if !ok {
		return e.BadRequestError("Verification failed.", nil)
	}
	return nil
}

func (h Handler) ring(app core.App, n notify.Notification) {
	if h.Bell == nil {
		return
	}
	if err := h.Bell.Notify(n); err != nil {
		app.Logger().Error("Error saving notification", "error", err)
	}
}

func logResult(app core.App, source string, res emailsender.EmailResult) {
	switch {
	case res.Success:
		app.Logger().Info("admin notice emailed", "source", source, "messageId", res.MessageID)
	case res.Reason != "":
		app.Logger().Info("admin notice not emailed", "source", source, "reason", res.Reason)
	default:
		app.Logger().Error("Error sending admin notice", "source", source, "error", res.Error)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
