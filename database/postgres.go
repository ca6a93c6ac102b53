package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq" // Register the Postgres driver
)

const createSequenceTable = `CREATE TABLE IF NOT EXISTS receipt_sequences (
	prefix TEXT NOT NULL,
	year   INTEGER NOT NULL,
	seq    INTEGER NOT NULL,
	PRIMARY KEY (prefix, year)
)`

// nextSequence bumps the yearly counter in one statement. EXCLUDED.seq is
// the floor derived from receipts already issued, so a fresh counter starts
// after any existing numbers.
const nextSequence = `INSERT INTO receipt_sequences (prefix, year, seq) VALUES ($1, $2, $3)
ON CONFLICT (prefix, year) DO UPDATE SET seq = GREATEST(receipt_sequences.seq + 1, EXCLUDED.seq)
RETURNING seq`

// PgSequence allocates receipt sequences from a shared Postgres counter.
// It is used when several app instances issue receipts concurrently.
type PgSequence struct {
	DB *sql.DB
}

// OpenSequence connects using the pgurl environment value and makes sure
// the counter table exists.
func OpenSequence(ctx context.Context, pgURL string) (*PgSequence, error) {
	dsn, err := dsnFromURL(pgURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSequenceTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create receipt_sequences: %w", err)
	}
	return &PgSequence{DB: db}, nil
}

// Next returns the next sequence for prefix/year, never lower than floor.
func (p *PgSequence) Next(ctx context.Context, prefix string, year, floor int) (int, error) {
	if floor < 1 {
		floor = 1
	}
	var seq int
	if err := p.DB.QueryRowContext(ctx, nextSequence, prefix, year, floor).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next receipt sequence: %w", err)
	}
	return seq, nil
}

func (p *PgSequence) Close() error {
	return p.DB.Close()
}

// dsnFromURL normalises pgurl for the pq driver. TLS is required unless
// the URL sets sslmode itself.
func dsnFromURL(pgURL string) (string, error) {
	if pgURL == "" {
		return "", fmt.Errorf("pgurl not set")
	}
	u, err := url.Parse(pgURL)
	if err != nil {
		return "", fmt.Errorf("invalid pgurl: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("invalid pgurl scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid pgurl: missing host")
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	u.Scheme = "postgres"
	u.RawQuery = q.Encode()
	return u.String(), nil
}
