// Package token exchanges a service account key for a Google OAuth access token
// using the JWT-bearer grant (RFC 7523).
package token

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dukerupert/haccp/internal/credential"
	"github.com/dukerupert/haccp/internal/metrics"
	"github.com/dukerupert/haccp/internal/syncerr"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	SheetsScope     = "https://www.googleapis.com/auth/spreadsheets"
	grantType       = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Lifetime is the validity window of an assertion and of the token it buys.
	Lifetime = 3600 * time.Second

	maxErrorBody = 512
)

// KeyHandle is an imported RSA signing key.
type KeyHandle struct {
	key *rsa.PrivateKey
}

// AccessToken is a bearer token valid until ExpiresAt (epoch seconds).
type AccessToken struct {
	Value     string
	ExpiresAt int64
}

// TokenSource adapts the token for oauth2-authenticated HTTP clients.
func (t AccessToken) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: t.Value,
		TokenType:   "Bearer",
		Expiry:      time.Unix(t.ExpiresAt, 0),
	})
}

// ImportKey parses PKCS#8 DER bytes into an RSA signing key.
func ImportKey(der []byte) (*KeyHandle, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		e := syncerr.New(syncerr.KindKeyImport,
			"private key is not valid PKCS#8 (likely truncated or wrong format)", err)
		e.Detail = fmt.Sprintf("%d bytes", len(der))
		return nil, e
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, syncerr.New(syncerr.KindKeyImport,
			fmt.Sprintf("private key is %T, RSA is required for RS256", parsed), nil)
	}
	return &KeyHandle{key: key}, nil
}

// Sign returns the RS256 (RSASSA-PKCS1-v1_5 with SHA-256) signature of input.
func Sign(h *KeyHandle, input string) ([]byte, error) {
	sig, err := jwt.SigningMethodRS256.Sign(input, h.key)
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}
	return sig, nil
}

// BuildAssertion returns the signed JWT for clientEmail asking for scope at aud.
func BuildAssertion(h *KeyHandle, clientEmail, scope, aud string, now time.Time) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   clientEmail,
		"scope": scope,
		"aud":   aud,
		"iat":   now.Unix(),
		"exp":   now.Add(Lifetime).Unix(),
	})

	input, err := t.SigningString()
	if err != nil {
		return "", fmt.Errorf("encode assertion: %w", err)
	}
	sig, err := Sign(h, input)
	if err != nil {
		return "", err
	}
	return input + "." + t.EncodeSegment(sig), nil
}

// Signer requests access tokens for service account credentials.
type Signer struct {
	TokenURL   string
	Scope      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	now        func() time.Time
}

// NewSigner returns a Signer posting to tokenURL ("" means Google's endpoint).
func NewSigner(tokenURL string, timeout time.Duration, logger *slog.Logger) *Signer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Signer{
		TokenURL:   tokenURL,
		Scope:      SheetsScope,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RequestAccessToken signs an assertion for cred and exchanges it for an
// access token. Failures are not retried.
func (s *Signer) RequestAccessToken(ctx context.Context, cred *credential.Credential) (AccessToken, error) {
	der, err := cred.DecodeKey(s.Logger)
	if err != nil {
		return AccessToken{}, err
	}
	key, err := ImportKey(der)
	if err != nil {
		return AccessToken{}, err
	}

	endpoint := s.endpoint(cred)
	now := s.clock()
	assertion, err := BuildAssertion(key, cred.ClientEmail, s.Scope, endpoint, now)
	if err != nil {
		return AccessToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	metrics.TokenExchangeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return AccessToken{}, syncerr.New(syncerr.KindTokenExchange, "token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := syncerr.New(syncerr.KindTokenExchange, "token endpoint rejected assertion", nil)
		e.Status = resp.StatusCode
		e.Detail = trimBody(body)
		return AccessToken{}, e
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return AccessToken{}, syncerr.New(syncerr.KindTokenExchange, "decode token response", err)
	}
	if tr.AccessToken == "" {
		return AccessToken{}, syncerr.New(syncerr.KindTokenExchange, "token response has no access_token", nil)
	}

	expiresAt := now.Add(Lifetime).Unix()
	if tr.ExpiresIn > 0 {
		expiresAt = now.Unix() + tr.ExpiresIn
	}
	return AccessToken{Value: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

func (s *Signer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Signer) endpoint(cred *credential.Credential) string {
	switch {
	case s.TokenURL != "":
		return s.TokenURL
	case cred.TokenURI != "":
		return cred.TokenURI
	}
	return DefaultTokenURL
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
