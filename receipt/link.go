package receipt

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid receipt token")

// DefaultLinkTTL is how long an emailed or success-page download link lives.
const DefaultLinkTTL = 30 * 24 * time.Hour

type linkClaims struct {
	PaymentReference string `json:"ref"`
	jwt.RegisteredClaims
}

// LinkSigner issues and checks receipt download tokens so donors can fetch
// their PDF without an account.
type LinkSigner struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (s LinkSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Sign returns a token bound to paymentRef.
func (s LinkSigner) Sign(paymentRef string) (string, error) {
	if len(s.Secret) == 0 {
		return "", fmt.Errorf("sign receipt token: empty secret")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	now := s.now()
	claims := linkClaims{
		PaymentReference: paymentRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "receipt",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Verify returns the payment reference carried by a valid token.
func (s LinkSigner) Verify(token string) (string, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.PaymentReference == "" {
		return "", ErrInvalidToken
	}
	return claims.PaymentReference, nil
}

// DownloadURL is the public link to a receipt PDF.
func (s LinkSigner) DownloadURL(baseURL, paymentRef string) (string, error) {
	token, err := s.Sign(paymentRef)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/receipts/%s/pdf?token=%s", baseURL, url.PathEscape(paymentRef), url.QueryEscape(token)), nil
}
