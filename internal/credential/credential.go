// Package credential reads Google service account credentials.
package credential

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/dukerupert/haccp/internal/syncerr"
)

// Credential is the subset of a service account JSON key the backup uses.
// It holds the PEM text only; the decoded key never leaves a backup run.
type Credential struct {
	ClientEmail   string
	ProjectID     string
	PrivateKeyPEM string
	TokenURI      string
}

type serviceAccountJSON struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// Parse validates a service account JSON blob. It performs no network I/O.
func Parse(raw string) (*Credential, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, syncerr.New(syncerr.KindInvalidCredential, "service account JSON is empty", nil)
	}

	var sa serviceAccountJSON
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return nil, syncerr.New(syncerr.KindInvalidCredential, "service account JSON is not valid JSON", err)
	}

	var missing []string
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return nil, syncerr.New(syncerr.KindInvalidCredential,
			"service account JSON is missing "+strings.Join(missing, ", "), nil)
	}

	return &Credential{
		ClientEmail:   sa.ClientEmail,
		ProjectID:     sa.ProjectID,
		PrivateKeyPEM: sa.PrivateKey,
		TokenURI:      sa.TokenURI,
	}, nil
}

// DecodeKey decodes the credential's private key, warning through logger
// when the key body had to be repaired.
func (c *Credential) DecodeKey(logger *slog.Logger) ([]byte, error) {
	der, diag, err := DecodeWithDiagnostics(c.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if diag.Removed > 0 && logger != nil {
		logger.Warn("private key contained non-base64 characters",
			"client_email", c.ClientEmail,
			"removed", diag.Removed,
			"cleaned_len", diag.CleanedLen,
		)
	}
	return der, nil
}
