package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avolkov/paperboy/internal/model"
)

// EmailDeliverer sends the digest through a Resend-style HTTP API:
// POST {endpoint} with a bearer token and a JSON body.
type EmailDeliverer struct {
	cfg        model.EmailConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Deliverer = (*EmailDeliverer)(nil)

// NewEmailDeliverer creates the deliverer; API key and recipients are
// required.
func NewEmailDeliverer(cfg model.EmailConfig, logger *slog.Logger) (*EmailDeliverer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("email API key is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("email endpoint is required")
	}

	return &EmailDeliverer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

func (d *EmailDeliverer) Name() string {
	return "email"
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

func (d *EmailDeliverer) Deliver(ctx context.Context, digest model.Digest) error {
	html, err := RenderHTML(digest)
	if err != nil {
		return err
	}

	from := d.cfg.From
	if d.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", d.cfg.FromName, d.cfg.From)
	}

	payload, err := json.Marshal(emailRequest{
		From:    from,
		To:      d.cfg.Recipients,
		Subject: Subject(d.cfg.SubjectPrefix, digest),
		HTML:    html,
		Text:    RenderText(digest),
	})
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var sent emailResponse
	_ = json.Unmarshal(body, &sent)
	d.logger.Info("digest delivered",
		"run_id", digest.RunID,
		"recipients", len(d.cfg.Recipients),
		"message_id", sent.ID)

	return nil
}
