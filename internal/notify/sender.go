package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/renewhq/renewd/internal/signing"
)

// HTTPSender hands rendered emails to the platform's notification endpoint
// as a signed POST; the platform does the actual delivery.
type HTTPSender struct {
	url    string
	secret string
	client *http.Client
}

func NewHTTPSender(url, secret string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, e Email) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}

	ts := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "renewd/1.0")
	req.Header.Set("X-Renewd-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Renewd-Signature", signing.Sign(s.secret, payload, ts))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes emails to the log instead of delivering them. Default in
// development.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, e Email) error {
	s.log.Info().
		Str("template", e.Template).
		Str("to", e.To).
		Str("subject", e.Subject).
		Msg("email (log sender)")
	return nil
}
