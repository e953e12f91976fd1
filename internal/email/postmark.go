// Package email sends backup alert mail through Postmark.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/syncerr"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	toEmail     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, toEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		toEmail:     toEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if a token and both addresses are set.
func (c *Client) Configured() bool {
	return c.serverToken != "" && c.fromEmail != "" && c.toEmail != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// BackupFailed mails a summary of a backup run that ended partial or failed.
func (c *Client) BackupFailed(ctx context.Context, entry *model.BackupLogEntry) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token or addresses")
	}

	subject := fmt.Sprintf("HACCP backup %s (%s run)", entry.Status, entry.Trigger)
	lines := alertLines(entry)

	var htmlBody strings.Builder
	htmlBody.WriteString("<p>The HACCP sheet backup did not complete successfully.</p><ul>")
	for _, l := range lines {
		fmt.Fprintf(&htmlBody, "<li>%s</li>", html.EscapeString(l))
	}
	htmlBody.WriteString("</ul>")

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       c.toEmail,
		Subject:  subject,
		HtmlBody: htmlBody.String(),
		TextBody: "The HACCP sheet backup did not complete successfully.\n\n" + strings.Join(lines, "\n"),
		Tag:      "backup-alert",
	}
	return c.send(ctx, payload)
}

// alertLines describes the run, then one line per failed document type.
func alertLines(entry *model.BackupLogEntry) []string {
	lines := []string{
		fmt.Sprintf("Run %s started %s", entry.ID, entry.StartedAt.Format("2006-01-02 15:04:05 MST")),
	}
	if entry.Error != "" {
		lines = append(lines, "Error: "+entry.Error)
	}
	if hint := syncerr.Hint(syncerr.Kind(entry.ErrorKind)); hint != "" {
		lines = append(lines, "What to do: "+hint)
	}
	for _, r := range entry.Results {
		if r.Status == model.BackupStatusSuccess {
			continue
		}
		l := fmt.Sprintf("%s: %s", r.DocumentType, r.Error)
		if hint := syncerr.Hint(syncerr.Kind(r.ErrorKind)); hint != "" {
			l += " (" + hint + ")"
		}
		lines = append(lines, l)
	}
	return lines
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
