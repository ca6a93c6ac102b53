package donation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"yipfoundation/emailsender"
	"yipfoundation/notify"
	"yipfoundation/receipt"
	"yipfoundation/settings"
)

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, receipt.Location)

type fakeStore struct {
	mu        sync.Mutex
	donations map[string]*receipt.Donation
	projects  map[string]string
	backlog   []receipt.Donation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		donations: map[string]*receipt.Donation{},
		projects:  map[string]string{"p1": "Clean Water"},
	}
}

func (f *fakeStore) FindDonation(ref string) (*receipt.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[ref]
	if !ok {
		return nil, receipt.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ProjectTitle(id string) (string, error) {
	t, ok := f.projects[id]
	if !ok {
		return "", receipt.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) AssignReceiptNumber(_ context.Context, ref, prefix string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[ref]
	if !ok {
		return "", receipt.ErrNotFound
	}
	if !d.Completed() {
		return "", receipt.ErrNotCompleted
	}
	if d.ReceiptNumber != "" {
		return d.ReceiptNumber, nil
	}
	latest := ""
	for _, other := range f.donations {
		if other.ReceiptNumber > latest {
			latest = other.ReceiptNumber
		}
	}
	d.ReceiptNumber = receipt.NextNumber(prefix, now, latest)
	return d.ReceiptNumber, nil
}

func (f *fakeStore) CreatePending(d receipt.Donation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donations[d.PaymentReference] = &d
	return nil
}

func (f *fakeStore) MarkCompleted(ref, txID, method string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[ref]
	if !ok {
		return false, receipt.ErrNotFound
	}
	if d.Completed() {
		return false, nil
	}
	d.PaymentStatus = receipt.StatusCompleted
	d.TransactionID = txID
	d.PaymentMethod = method
	d.CompletedAt = &at
	return true, nil
}

func (f *fakeStore) MarkFailed(ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[ref]
	if !ok {
		return receipt.ErrNotFound
	}
	if d.PaymentStatus == receipt.StatusPending {
		d.PaymentStatus = receipt.StatusFailed
	}
	return nil
}

func (f *fakeStore) CompletedWithoutReceipt(time.Time) ([]receipt.Donation, error) {
	return f.backlog, nil
}

func (f *fakeStore) status(ref string) string {
	d, _ := f.FindDonation(ref)
	return d.PaymentStatus
}

type fakeRenderer struct{ err error }

func (r fakeRenderer) Render(_ context.Context, data *receipt.ReceiptData) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF " + data.ReceiptNumber), nil
}

type fakeMailer struct {
	result emailsender.EmailResult
	sent   []*receipt.ReceiptData
	pdfs   [][]byte
}

func (m *fakeMailer) SendReceipt(_ context.Context, data *receipt.ReceiptData, pdf []byte) emailsender.EmailResult {
	m.sent = append(m.sent, data)
	m.pdfs = append(m.pdfs, pdf)
	return m.result
}

type recorder struct{ items []notify.Notification }

func (r *recorder) Notify(n notify.Notification) error {
	r.items = append(r.items, n)
	return nil
}

func pendingDonation(ref string) receipt.Donation {
	return receipt.Donation{
		DonorName:        "Aisyah",
		DonorEmail:       "aisyah@example.com",
		Amount:           10000,
		Currency:         "MYR",
		ProjectID:        "p1",
		PaymentReference: ref,
		PaymentStatus:    receipt.StatusPending,
		CreatedAt:        fixedNow.Add(-time.Hour),
	}
}

type fixture struct {
	store    *fakeStore
	mailer   *fakeMailer
	notes    *recorder
	service  *Service
	sessions []*stripe.CheckoutSessionParams
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newFakeStore(),
		mailer: &fakeMailer{result: emailsender.EmailResult{Success: true, MessageID: "m1"}},
		notes:  &recorder{},
	}
	asm := receipt.Assembler{Donations: f.store, Settings: settings.NewMemoryProvider(), Prefix: "YIP"}
	issuer := &Issuer{
		Numbers:   f.store,
		Assembler: asm,
		Renderer:  fakeRenderer{},
		Mailer:    f.mailer,
		Notifier:  f.notes,
		Prefix:    "YIP",
		Now:       func() time.Time { return fixedNow },
	}
	f.service = &Service{
		Donations: f.store,
		Issuer:    issuer,
		Notifier:  f.notes,
		Assembler: asm,
		Renderer:  fakeRenderer{},
		Links:     receipt.LinkSigner{Secret: []byte("secret")},
		NewSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			f.sessions = append(f.sessions, p)
			return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil
		},
		WebhookSecret: "whsec_test",
		Currency:      "MYR",
		SiteURL:       "https://yip.org.my",
		Now:           func() time.Time { return fixedNow },
	}
	return f
}

func (f *fixture) complete(t *testing.T, ref string) {
	t.Helper()
	d := pendingDonation(ref)
	d.PaymentStatus = receipt.StatusCompleted
	at := fixedNow
	d.CompletedAt = &at
	require.NoError(t, f.store.CreatePending(d))
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")

	out, err := f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)
	assert.Equal(t, "YIP-2026-000001", out.ReceiptNumber)
	assert.True(t, out.Attached)
	assert.True(t, out.Email.Success)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "YIP-2026-000001", f.mailer.sent[0].ReceiptNumber)
	assert.Equal(t, "Clean Water", f.mailer.sent[0].ProjectTitle)
	assert.Equal(t, "%PDF YIP-2026-000001", string(f.mailer.pdfs[0]))
	assert.Empty(t, f.notes.items)

	// Re-issuing keeps the number.
	out, err = f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)
	assert.Equal(t, "YIP-2026-000001", out.ReceiptNumber)
}

func TestIssueNumbersAreSequential(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		ref := fmt.Sprintf("DON-%d", i)
		f.complete(t, ref)
		out, err := f.service.Issuer.Issue(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, receipt.FormatNumber("YIP", 2026, i), out.ReceiptNumber)
	}
}

func TestIssueRenderFailureStillEmails(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")
	f.service.Issuer.Renderer = fakeRenderer{err: errors.New("font missing")}

	out, err := f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)
	assert.False(t, out.Attached)
	require.Len(t, f.mailer.pdfs, 1)
	assert.Nil(t, f.mailer.pdfs[0])
}

func TestIssueEmailOutcomesNotifyAdmins(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")
	f.complete(t, "DON-2")

	f.mailer.result = emailsender.EmailResult{Error: "API error (status 500)"}
	_, err := f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)

	f.mailer.result = emailsender.EmailResult{Reason: emailsender.ReasonNoAPIKey}
	_, err = f.service.Issuer.Issue(context.Background(), "DON-2")
	require.NoError(t, err)

	require.Len(t, f.notes.items, 2)
	assert.Equal(t, notify.ColorRed, f.notes.items[0].Color)
	assert.Contains(t, f.notes.items[0].Message, "status 500")
	assert.Equal(t, notify.ColorOrange, f.notes.items[1].Color)
	assert.Contains(t, f.notes.items[1].Message, emailsender.ReasonNoAPIKey)
}

func TestIssueRequiresCompletedDonation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreatePending(pendingDonation("DON-1")))

	_, err := f.service.Issuer.Issue(context.Background(), "DON-1")
	assert.ErrorIs(t, err, receipt.ErrNotCompleted)

	_, err = f.service.Issuer.Issue(context.Background(), "DON-404")
	assert.ErrorIs(t, err, receipt.ErrNotFound)
	assert.Empty(t, f.mailer.sent)
}

func sessionEvent(t *testing.T, typ, ref, paymentStatus string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":                   "cs_1",
		"object":               "checkout.session",
		"metadata":             map[string]string{"type": "donation", "payment_reference": ref},
		"payment_status":       paymentStatus,
		"payment_intent":       "pi_1",
		"amount_total":         10000,
		"currency":             "myr",
		"customer_details":     map[string]any{"name": "Aisyah"},
		"payment_method_types": []string{"fpx"},
	})
	require.NoError(t, err)
	return stripe.Event{
		ID:      "evt_1",
		Type:    stripe.EventType(typ),
		Created: fixedNow.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func TestHandleCompletedEvent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreatePending(pendingDonation("DON-1")))

	handled, err := f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.completed", "DON-1", "paid"))
	require.NoError(t, err)
	assert.True(t, handled)

	d, err := f.store.FindDonation("DON-1")
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusCompleted, d.PaymentStatus)
	assert.Equal(t, "pi_1", d.TransactionID)
	assert.Equal(t, "fpx", d.PaymentMethod)
	assert.Equal(t, "YIP-2026-000001", d.ReceiptNumber)
	require.Len(t, f.mailer.sent, 1)

	require.Len(t, f.notes.items, 1)
	assert.Equal(t, notify.ColorGreen, f.notes.items[0].Color)
	assert.Contains(t, f.notes.items[0].Message, "RM 100.00")
	assert.Equal(t, "https://dashboard.stripe.com/payments/pi_1", f.notes.items[0].URL)

	// Redelivery does not send a second receipt.
	_, err = f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.completed", "DON-1", "paid"))
	require.NoError(t, err)
	assert.Len(t, f.mailer.sent, 1)
}

func TestHandleAsyncPayment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreatePending(pendingDonation("DON-1")))
	require.NoError(t, f.store.CreatePending(pendingDonation("DON-2")))

	_, err := f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.completed", "DON-1", "unpaid"))
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusPending, f.store.status("DON-1"))

	_, err = f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.async_payment_succeeded", "DON-1", "paid"))
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusCompleted, f.store.status("DON-1"))

	_, err = f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.async_payment_failed", "DON-2", "unpaid"))
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusFailed, f.store.status("DON-2"))

	// A completed donation is never downgraded.
	_, err = f.service.HandleEvent(context.Background(), sessionEvent(t, "checkout.session.expired", "DON-1", "paid"))
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusCompleted, f.store.status("DON-1"))
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)

	handled, err := f.service.HandleEvent(context.Background(), stripe.Event{Type: "payment_intent.succeeded"})
	require.NoError(t, err)
	assert.False(t, handled)

	raw := []byte(`{"id":"cs_2","object":"checkout.session","metadata":{"type":"invoice"}}`)
	handled, err = f.service.HandleEvent(context.Background(), stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestParseEventVerifiesSignature(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_test"})
	event, err := f.service.ParseEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})
	_, err = f.service.ParseEvent(forged.Payload, forged.Header)
	assert.Error(t, err)

	_, err = f.service.ParseEvent(payload, "")
	assert.Error(t, err)
}

func TestCheckoutRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CheckoutRequest
		err  error
	}{
		{"ok", CheckoutRequest{Amount: 5000, Name: "Siti", Email: "siti@example.com"}, nil},
		{"min", CheckoutRequest{Amount: MinAmount, Name: "Siti", Email: "siti@example.com"}, nil},
		{"max", CheckoutRequest{Amount: MaxAmount, Name: "Siti", Email: "siti@example.com"}, nil},
		{"too small", CheckoutRequest{Amount: 99, Name: "Siti", Email: "siti@example.com"}, ErrInvalidAmount},
		{"too large", CheckoutRequest{Amount: MaxAmount + 1, Name: "Siti", Email: "siti@example.com"}, ErrInvalidAmount},
		{"no name", CheckoutRequest{Amount: 5000, Name: "  ", Email: "siti@example.com"}, ErrInvalidDonor},
		{"bad email", CheckoutRequest{Amount: 5000, Name: "Siti", Email: "siti"}, ErrInvalidDonor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.normalize()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}

	long := CheckoutRequest{Amount: 5000, Name: "Siti", Email: "siti@example.com", Message: strings.Repeat("é", 1500)}
	require.NoError(t, long.normalize())
	assert.Equal(t, maxMessageRunes, len([]rune(long.Message)))
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)

	url, ref, err := f.service.Checkout(CheckoutRequest{Amount: 2500, ProjectID: "p1", Name: "Siti", Email: "siti@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", url)
	assert.True(t, strings.HasPrefix(ref, "DON-"))

	d, err := f.store.FindDonation(ref)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusPending, d.PaymentStatus)
	assert.Equal(t, int64(2500), d.Amount)
	assert.Equal(t, "MYR", d.Currency)

	require.Len(t, f.sessions, 1)
	p := f.sessions[0]
	assert.Equal(t, "donation", p.Metadata["type"])
	assert.Equal(t, ref, p.Metadata["payment_reference"])
	assert.Equal(t, ref, *p.ClientReferenceID)
	assert.Equal(t, int64(2500), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "myr", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "Donation: Clean Water", *p.LineItems[0].PriceData.ProductData.Name)
	assert.Contains(t, *p.SuccessURL, "ref="+ref)

	_, _, err = f.service.Checkout(CheckoutRequest{Amount: 2500, ProjectID: "nope", Name: "Siti", Email: "siti@example.com"})
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestCheckoutSessionFailureMarksDonationFailed(t *testing.T) {
	f := newFixture(t)
	var ref string
	f.service.NewSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		ref = *p.ClientReferenceID
		return nil, errors.New("stripe down")
	}
	_, _, err := f.service.Checkout(CheckoutRequest{Amount: 2500, Name: "Siti", Email: "siti@example.com"})
	require.Error(t, err)
	assert.Equal(t, receipt.StatusFailed, f.store.status(ref))
}

func TestCheckBacklog(t *testing.T) {
	f := newFixture(t)

	n, err := f.service.CheckBacklog()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notes.items)

	for i := 0; i < 12; i++ {
		f.store.backlog = append(f.store.backlog, receipt.Donation{PaymentReference: fmt.Sprintf("DON-%d", i)})
	}
	n, err = f.service.CheckBacklog()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	require.Len(t, f.notes.items, 1)
	assert.Equal(t, notify.ColorOrange, f.notes.items[0].Color)
	assert.Contains(t, f.notes.items[0].Message, "DON-9")
	assert.Contains(t, f.notes.items[0].Message, "and 2 more")
	assert.NotContains(t, f.notes.items[0].Message, "DON-10")
}

func TestCommand(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")

	var out bytes.Buffer
	cmd := NewCommand(f.service)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"reissue", "DON-1"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "receipt YIP-2026-000001 attached=true emailed=true")

	out.Reset()
	cmd.SetArgs([]string{"backlog"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0 donation(s) without a receipt\n", out.String())

	cmd.SetArgs([]string{"reissue"})
	assert.Error(t, cmd.Execute())
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")

	resp, err := f.service.Status("DON-1")
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusCompleted, resp.Status)
	assert.Equal(t, "RM 100.00", resp.Amount)
	assert.Empty(t, resp.DownloadURL)

	_, err = f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)

	resp, err = f.service.Status("DON-1")
	require.NoError(t, err)
	assert.Equal(t, "YIP-2026-000001", resp.ReceiptNumber)
	require.NotEmpty(t, resp.DownloadURL)
	assert.Contains(t, resp.DownloadURL, "https://yip.org.my/api/receipts/DON-1/pdf?token=")

	_, err = f.service.Status("DON-missing")
	assert.ErrorIs(t, err, receipt.ErrNotFound)
}

func TestStatusLinkExpiresAfterWindow(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "DON-1")
	_, err := f.service.Issuer.Issue(context.Background(), "DON-1")
	require.NoError(t, err)

	f.service.Now = func() time.Time { return fixedNow.Add(StatusLinkWindow + time.Minute) }
	resp, err := f.service.Status("DON-1")
	require.NoError(t, err)
	assert.Equal(t, "YIP-2026-000001", resp.ReceiptNumber)
	assert.Empty(t, resp.DownloadURL)
}
