package emailsender

// Contact represents a sender, replyTo, or recipient in the request.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// MessageVersion represents one message version for a recipient.
type MessageVersion struct {
	To     []Contact      `json:"to"`
	Params map[string]any `json:"params,omitempty"`
}

// Attachment is sent inline as base64 content.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// EmailData is the payload sent to the API.
type EmailData struct {
	Sender          Contact          `json:"sender"`
	ReplyTo         *Contact         `json:"replyTo,omitempty"`
	Subject         string           `json:"subject"`
	HTMLContent     string           `json:"htmlContent"`
	MessageVersions []MessageVersion `json:"messageVersions"`
	Attachment      []Attachment     `json:"attachment,omitempty"`
}

// Message is one outgoing email.
type Message struct {
	To          []Contact
	Subject     string
	HTML        string
	Attachments []Attachment
	// From overrides the client's default sender when set.
	From *Contact
}

// sendResponse covers both single and versioned Brevo replies.
type sendResponse struct {
	MessageID  string   `json:"messageId"`
	MessageIDs []string `json:"messageIds"`
}

// Reasons an email was not attempted.
const (
	ReasonDisabled    = "disabled"
	ReasonNoRecipient = "no_recipient"
	ReasonNoAPIKey    = "no_api_key"
)

// EmailResult reports what happened to an email. Callers log it; it never
// aborts the flow that triggered the email.
type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func skipped(reason, msg string) EmailResult {
	return EmailResult{Reason: reason, Error: msg}
}

func failed(err error) EmailResult {
	return EmailResult{Error: err.Error()}
}

func sent(id string) EmailResult {
	return EmailResult{Success: true, MessageID: id}
}
