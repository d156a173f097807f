package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultNotifyTimeout bounds each handoff notification attempt.
const DefaultNotifyTimeout = 4 * time.Second

// HandoffNotification is the webhook payload sent when an exchange
// resolves to a handoff.
type HandoffNotification struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Notifier posts handoff notifications to an external webhook. Delivery is
// best-effort and never blocks the response path: Notify detaches a
// goroutine with its own timeout, and failures are logged, not raised.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// NewNotifier creates a handoff notifier. An empty webhookURL disables it.
func NewNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		timeout:    DefaultNotifyTimeout,
		now:        time.Now,
	}
}

// Notify fires a detached handoff notification. It returns immediately.
func (n *Notifier) Notify(sessionID, reason, text string) {
	if n == nil || n.webhookURL == "" {
		return
	}
	payload := HandoffNotification{
		SessionID: sessionID,
		Reason:    reason,
		Text:      text,
		Timestamp: n.now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.send(ctx, payload); err != nil {
			n.logger.Error("handoff notification failed", "session_id", sessionID, "reason", reason, "error", err)
		}
	}()
}

func (n *Notifier) send(ctx context.Context, payload HandoffNotification) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
