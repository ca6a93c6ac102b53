package appform

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"yipfoundation/emailsender"
)

var (
	ErrMissingFields = errors.New("name, email and message are required")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrNoFields      = errors.New("submission has no fields")
)

const maxFieldLength = 5000

type ContactSubmission struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Turnstile string `json:"turnstile"`
}

func (c *ContactSubmission) normalize() error {
	c.Name = clip(c.Name)
	c.Email = clip(c.Email)
	c.Phone = clip(c.Phone)
	c.Subject = clip(c.Subject)
	c.Message = clip(c.Message)
	if c.Name == "" || c.Email == "" || c.Message == "" {
		return ErrMissingFields
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func (c ContactSubmission) notice() emailsender.ContactNotice {
	return emailsender.ContactNotice{
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Subject: c.Subject,
		Message: c.Message,
	}
}

// FormSubmission is a submission to a form defined in the CMS.
type FormSubmission struct {
	Fields    map[string]any `json:"fields"`
	Turnstile string         `json:"turnstile"`
}

// noticeFields flattens the submitted values into sorted label/value rows.
func (f FormSubmission) noticeFields() []emailsender.Field {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]emailsender.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, emailsender.Field{Label: k, Value: clip(stringify(f.Fields[k]))})
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ", ")
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	}
	return fmt.Sprint(v)
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxFieldLength {
		return string(r[:maxFieldLength])
	}
	return s
}
