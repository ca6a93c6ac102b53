package emailsender

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yipfoundation/receipt"
	"yipfoundation/settings"
)

type capture struct {
	calls   atomic.Int32
	payload EmailData
	apiKey  string
}

func newServer(t *testing.T, c *capture, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls.Add(1)
		c.apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c.payload))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(endpoint, key string) *Client {
	return &Client{
		APIKey:   key,
		Endpoint: endpoint,
		Sender:   Contact{Name: "YIP Foundation", Email: "noreply@yip.org.my"},
		HTTP:     &http.Client{Timeout: 5 * time.Second},
	}
}

func sampleReceipt() *receipt.ReceiptData {
	return &receipt.ReceiptData{
		ReceiptNumber:    "YIP-2026-000042",
		Prefix:           "YIP",
		DonorName:        "Aisyah",
		DonorEmail:       "aisyah@example.com",
		Amount:           decimal.RequireFromString("100.00"),
		Currency:         "MYR",
		ProjectTitle:     "Clean Water",
		PaymentReference: "DON-42",
		CompletedAt:      time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC),
		Organization:     settings.DefaultOrganization(),
	}
}

func TestSendReceipt(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{"messageId":"<abc@smtp-relay>"}`)
	m := ReceiptMailer{Client: testClient(srv.URL, "key-1")}

	res := m.SendReceipt(context.Background(), sampleReceipt(), []byte("%PDF-1.4"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "<abc@smtp-relay>", res.MessageID)

	assert.Equal(t, "key-1", c.apiKey)
	assert.Contains(t, c.payload.Subject, "YIP-2026-000042")
	assert.Equal(t, "Donation Receipt YIP-2026-000042 / Resit Derma YIP-2026-000042", c.payload.Subject)
	require.Len(t, c.payload.MessageVersions, 1)
	assert.Equal(t, "aisyah@example.com", c.payload.MessageVersions[0].To[0].Email)
	assert.Contains(t, c.payload.HTMLContent, "RM 100.00")
	assert.Contains(t, c.payload.HTMLContent, "Clean Water")

	require.Len(t, c.payload.Attachment, 1)
	assert.Equal(t, "YIP-Receipt-YIP-2026-000042.pdf", c.payload.Attachment[0].Name)
	raw, err := base64.StdEncoding.DecodeString(c.payload.Attachment[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(raw))
}

func TestSendReceiptEscapesDonorText(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{"messageId":"m1"}`)
	m := ReceiptMailer{Client: testClient(srv.URL, "key")}

	data := sampleReceipt()
	data.DonorName = `<script>alert("x")</script>`
	data.Message = `<img src=x onerror=alert(1)>`

	res := m.SendReceipt(context.Background(), data, nil)
	require.True(t, res.Success, res.Error)
	assert.NotContains(t, c.payload.HTMLContent, "<script>")
	assert.NotContains(t, c.payload.HTMLContent, "<img src=x")
	assert.Contains(t, c.payload.HTMLContent, "&lt;script&gt;")
	assert.Empty(t, c.payload.Attachment)
}

func TestSendReceiptWithoutKeyOrRecipient(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{}`)

	res := ReceiptMailer{Client: testClient(srv.URL, "")}.SendReceipt(context.Background(), sampleReceipt(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoAPIKey, res.Reason)

	res = ReceiptMailer{}.SendReceipt(context.Background(), sampleReceipt(), nil)
	assert.Equal(t, ReasonNoAPIKey, res.Reason)

	data := sampleReceipt()
	data.DonorEmail = "  "
	res = ReceiptMailer{Client: testClient(srv.URL, "key")}.SendReceipt(context.Background(), data, nil)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoRecipient, res.Reason)

	assert.Zero(t, c.calls.Load())
}

func TestSendReceiptDownloadLink(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{"messageId":"m1"}`)
	m := ReceiptMailer{
		Client: testClient(srv.URL, "key"),
		DownloadURL: func(ref string) (string, error) {
			return "https://yip.org.my/api/receipts/" + ref + "/pdf?token=t", nil
		},
	}
	res := m.SendReceipt(context.Background(), sampleReceipt(), nil)
	require.True(t, res.Success)
	assert.Contains(t, c.payload.HTMLContent, "/api/receipts/DON-42/pdf?token=t")
}

func TestSendReceiptProviderError(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusUnauthorized, `{"code":"unauthorized"}`)
	res := ReceiptMailer{Client: testClient(srv.URL, "bad")}.SendReceipt(context.Background(), sampleReceipt(), nil)
	assert.False(t, res.Success)
	assert.Empty(t, res.Reason)
	assert.Contains(t, res.Error, "401")
}

func adminSettings(t *testing.T, email string, enabled any) *settings.MemoryProvider {
	t.Helper()
	p := settings.NewMemoryProvider()
	if email != "" {
		require.NoError(t, p.Set(settings.KeyNotificationEmail, email))
	}
	if enabled != nil {
		require.NoError(t, p.Set(settings.KeyEmailNotificationsEnabled, enabled))
	}
	return p
}

func TestAdminNotifierContact(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{"messageIds":["m-1"]}`)
	n := AdminNotifier{Client: testClient(srv.URL, "key"), Settings: adminSettings(t, " admin@yip.org.my ", nil)}

	res := n.SendContactNotification(context.Background(), ContactNotice{
		Name:    "Tan <b>",
		Email:   "tan@example.com",
		Subject: "Volunteering",
		Message: "Hello",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "m-1", res.MessageID)
	assert.Equal(t, "admin@yip.org.my", c.payload.MessageVersions[0].To[0].Email)
	assert.Contains(t, c.payload.Subject, "Volunteering")
	assert.Contains(t, c.payload.HTMLContent, "Tan &lt;b&gt;")
}

func TestAdminNotifierReasons(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{}`)
	ctx := context.Background()

	tests := []struct {
		name   string
		n      AdminNotifier
		reason string
	}{
		{"disabled", AdminNotifier{Client: testClient(srv.URL, "key"), Settings: adminSettings(t, "a@b.co", false)}, ReasonDisabled},
		{"disabled string", AdminNotifier{Client: testClient(srv.URL, "key"), Settings: adminSettings(t, "a@b.co", "false")}, ReasonDisabled},
		{"disabled wins over key", AdminNotifier{Client: testClient(srv.URL, ""), Settings: adminSettings(t, "", false)}, ReasonDisabled},
		{"no key", AdminNotifier{Client: testClient(srv.URL, ""), Settings: adminSettings(t, "a@b.co", nil)}, ReasonNoAPIKey},
		{"no recipient", AdminNotifier{Client: testClient(srv.URL, "key"), Settings: adminSettings(t, "", true)}, ReasonNoRecipient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.n.SendFormSubmissionNotification(ctx, FormNotice{Slug: "volunteer", Fields: []Field{{"Name", "x"}}})
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
	assert.Zero(t, c.calls.Load())
}

func TestAdminNotifierForm(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, `{"messageId":"m"}`)
	n := AdminNotifier{Client: testClient(srv.URL, "key"), Settings: adminSettings(t, "admin@yip.org.my", "true")}

	res := n.SendFormSubmissionNotification(context.Background(), FormNotice{
		FormTitle: "Volunteer Sign-up",
		Slug:      "volunteer",
		Fields:    []Field{{"Name", "Siti"}, {"Skills", "First aid"}},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "New form submission: Volunteer Sign-up", c.payload.Subject)
	assert.True(t, strings.Contains(c.payload.HTMLContent, "First aid"))
}

func TestClientRequiresRecipient(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1", "key").Send(context.Background(), Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestClientAcceptedWithUndecodableResponse(t *testing.T) {
	var c capture
	srv := newServer(t, &c, http.StatusCreated, "<html>queued</html>")

	var logs bytes.Buffer
	client := testClient(srv.URL, "key")
	client.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	id, err := client.Send(context.Background(), Message{
		To:      []Contact{{Name: "Aisyah", Email: "aisyah@example.com"}},
		Subject: "x",
	})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Contains(t, logs.String(), "response not decoded")
	assert.Contains(t, logs.String(), "status=201")
}

func TestClientTruncatedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, "key").Send(context.Background(), Message{
		To:      []Contact{{Email: "aisyah@example.com"}},
		Subject: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "read body")
}
