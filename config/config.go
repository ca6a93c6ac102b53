package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var receiptPrefixPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// Config holds everything the server reads from the environment.
type Config struct {
	StripeKey           string
	StripeWebhookSecret string

	BrevoAPIKey string
	SenderName  string
	SenderEmail string
	ReplyName   string
	ReplyEmail  string
	// EmailRatePerSec throttles outbound Brevo calls.
	EmailRatePerSec float64

	ReceiptPrefix     string
	Currency          string
	SiteURL           string
	PublicDir         string
	ReceiptLinkSecret string
	// FontDir holds extra .ttf files for scripts the bundled font lacks.
	FontDir string

	TurnstileSecret string
	PgURL           string
}

// Load reads the configuration. Outside production (is_prod unset or
// "false") a .env file in the working directory is loaded first.
func Load() Config {
	isProd := os.Getenv("is_prod")
	if isProd == "" || isProd == "false" {
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) Config {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	rate, err := strconv.ParseFloat(get("EMAIL_RATE_PER_SEC", "5"), 64)
	if err != nil || rate <= 0 {
		rate = 5
	}
	return Config{
		StripeKey:           get("STRIPE", ""),
		StripeWebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
		BrevoAPIKey:         get("BREVO_API_KEY", ""),
		SenderName:          get("SENDER_NAME", "YIP Foundation"),
		SenderEmail:         get("SENDER_EMAIL", ""),
		ReplyName:           get("REPLY_NAME", ""),
		ReplyEmail:          get("REPLY_EMAIL", ""),
		EmailRatePerSec:     rate,
		ReceiptPrefix:       strings.ToUpper(get("RECEIPT_PREFIX", "YIP")),
		Currency:            strings.ToUpper(get("DONATION_CURRENCY", "MYR")),
		SiteURL:             strings.TrimRight(get("SITE_URL", ""), "/"),
		PublicDir:           get("PUBLIC_DIR", "./public"),
		ReceiptLinkSecret:   get("RECEIPT_LINK_SECRET", ""),
		FontDir:             get("RECEIPT_FONT_DIR", ""),
		TurnstileSecret:     get("turnstile_secret", ""),
		PgURL:               get("pgurl", ""),
	}
}

// Validate reports required keys that are missing. A missing Brevo key is
// not an error here; the email dispatcher reports it per send.
func (c Config) Validate() error {
	var errs []error
	if c.SiteURL == "" {
		errs = append(errs, fmt.Errorf("SITE_URL not set"))
	}
	if c.ReceiptLinkSecret == "" {
		errs = append(errs, fmt.Errorf("RECEIPT_LINK_SECRET not set"))
	}
	if !receiptPrefixPattern.MatchString(c.ReceiptPrefix) {
		errs = append(errs, fmt.Errorf("RECEIPT_PREFIX %q must contain only letters A-Z and digits", c.ReceiptPrefix))
	}
	if c.StripeKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, fmt.Errorf("STRIPE_WEBHOOK_SECRET must be set when STRIPE is set"))
	}
	return errors.Join(errs...)
}
