package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"yipfoundation/receipt"
)

const (
	CollectionDonations = "donations"
	CollectionProjects  = "projects"
)

// Store reads and updates donations in PocketBase.
type Store struct {
	App core.App
	// Sequence, when set, allocates receipt sequences from Postgres instead
	// of deriving them from the donations table.
	Sequence *PgSequence
}

func (s Store) findRecord(app core.App, paymentRef string) (*core.Record, error) {
	record, err := app.FindFirstRecordByData(CollectionDonations, "payment_reference", paymentRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, receipt.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find donation %s: %w", paymentRef, err)
	}
	return record, nil
}

func (s Store) FindDonation(paymentRef string) (*receipt.Donation, error) {
	record, err := s.findRecord(s.App, paymentRef)
	if err != nil {
		return nil, err
	}
	return DecodeDonation(record.PublicExport())
}

func (s Store) ProjectTitle(projectID string) (string, error) {
	record, err := s.App.FindRecordById(CollectionProjects, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", receipt.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find project %s: %w", projectID, err)
	}
	return record.GetString("title"), nil
}

// AssignReceiptNumber runs read-latest, increment and save in one
// transaction. PocketBase runs transactions on its single-connection write
// pool, so two completions cannot read the same latest number.
func (s Store) AssignReceiptNumber(ctx context.Context, paymentRef, prefix string, now time.Time) (string, error) {
	var number string
	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := s.findRecord(txApp, paymentRef)
		if err != nil {
			return err
		}
		if record.GetString("payment_status") != receipt.StatusCompleted {
			return receipt.ErrNotCompleted
		}
		if existing := record.GetString("receipt_number"); existing != "" {
			number = existing
			return nil
		}

		year := now.In(receipt.Location).Year()
		latest, err := latestReceiptNumber(txApp, receipt.YearPrefix(prefix, year))
		if err != nil {
			return err
		}
		if s.Sequence != nil {
			seq, err := s.Sequence.Next(ctx, prefix, year, receipt.SequenceOf(latest, prefix, year)+1)
			if err != nil {
				return err
			}
			number = receipt.FormatNumber(prefix, year, seq)
		} else {
			number = receipt.NextNumber(prefix, now, latest)
		}

		record.Set("receipt_number", number)
		return txApp.Save(record)
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// latestReceiptNumber compares the leading characters of receipt_number
// with the year prefix exactly, so '_' and '%' in a prefix are literal.
func latestReceiptNumber(app core.App, yearPrefix string) (string, error) {
	var row struct {
		ReceiptNumber string `db:"receipt_number"`
	}
	err := app.DB().Select("receipt_number").
		From(CollectionDonations).
		Where(dbx.NewExp("substr(receipt_number, 1, {:n}) = {:prefix}", dbx.Params{
			"n":      utf8.RuneCountInString(yearPrefix),
			"prefix": yearPrefix,
		})).
		OrderBy("receipt_number DESC").
		Limit(1).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest receipt number: %w", err)
	}
	return row.ReceiptNumber, nil
}

// CreatePending stores a donation awaiting payment.
func (s Store) CreatePending(d receipt.Donation) error {
	collection, err := s.App.FindCollectionByNameOrId(CollectionDonations)
	if err != nil {
		return fmt.Errorf("find collection: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("donor_name", d.DonorName)
	record.Set("donor_email", d.DonorEmail)
	record.Set("donor_phone", d.DonorPhone)
	record.Set("amount", d.Amount)
	record.Set("currency", d.Currency)
	record.Set("project", d.ProjectID)
	record.Set("payment_reference", d.PaymentReference)
	record.Set("payment_status", receipt.StatusPending)
	record.Set("message", d.Message)
	if err := s.App.Save(record); err != nil {
		return fmt.Errorf("save donation: %w", err)
	}
	return nil
}

// MarkCompleted records a successful payment. It reports false when the
// donation was already completed, which happens on webhook redelivery.
func (s Store) MarkCompleted(paymentRef, transactionID, method string, at time.Time) (bool, error) {
	changed := false
	err := s.App.RunInTransaction(func(txApp core.App) error {
		record, err := s.findRecord(txApp, paymentRef)
		if err != nil {
			return err
		}
		if record.GetString("payment_status") == receipt.StatusCompleted {
			return nil
		}
		record.Set("payment_status", receipt.StatusCompleted)
		record.Set("transaction_id", transactionID)
		record.Set("payment_method", method)
		record.Set("completed_at", at.UTC())
		changed = true
		return txApp.Save(record)
	})
	return changed, err
}

// MarkFailed flags a pending donation whose payment did not go through.
// Completed donations are never downgraded.
func (s Store) MarkFailed(paymentRef string) error {
	record, err := s.findRecord(s.App, paymentRef)
	if err != nil {
		return err
	}
	if record.GetString("payment_status") != receipt.StatusPending {
		return nil
	}
	record.Set("payment_status", receipt.StatusFailed)
	return s.App.Save(record)
}

// CompletedWithoutReceipt lists completed donations older than before that
// never got a receipt number.
func (s Store) CompletedWithoutReceipt(before time.Time) ([]receipt.Donation, error) {
	records, err := s.App.FindRecordsByFilter(
		CollectionDonations,
		"payment_status = {:status} && receipt_number = '' && completed_at < {:before}",
		"completed_at",
		0,
		0,
		dbx.Params{
			"status": receipt.StatusCompleted,
			"before": before.UTC().Format(types.DefaultDateLayout),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("find receipt backlog: %w", err)
	}
	out := make([]receipt.Donation, 0, len(records))
	for _, r := range records {
		d, err := DecodeDonation(r.PublicExport())
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}
