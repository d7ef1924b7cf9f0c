package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/models"
)

// NotifyAlertType is the job type that forwards a new alert to responders.
const NotifyAlertType = "alert.notify"

// NotifyPayload is the body posted to the responder webhook.
type NotifyPayload struct {
	Event string     `json:"event"`
	Text  string     `json:"text,omitempty"`
	Alert models.Row `json:"alert"`
}

// DefaultMessage is the responder text used when no template is configured.
// Chat webhooks display the text field as is.
const DefaultMessage = `SOS from {{.DisplayName}}{{with .RollOrID}} ({{.}}){{end}} at {{.CreatedAt.Format "15:04:05 MST"}}: {{.LocationLabel}}`

// AlertNotifier queues responder notifications on the worker pool.
type AlertNotifier struct {
	pool        *WorkerPool
	maxAttempts int
	message     *template.Template
	logger      *slog.Logger
}

// NewAlertNotifier parses message, a text/template executed against the
// models.Alert. An empty message uses DefaultMessage.
func NewAlertNotifier(pool *WorkerPool, maxAttempts int, message string, logger *slog.Logger) (*AlertNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}
	tpl, err := template.New("message").Option("missingkey=zero").Parse(message)
	if err != nil {
		return nil, fmt.Errorf("parse notify message: %w", err)
	}
	return &AlertNotifier{pool: pool, maxAttempts: maxAttempts, message: tpl, logger: logger}, nil
}

// RenderMessage executes the responder text for a.
func (n *AlertNotifier) RenderMessage(a models.Alert) (string, error) {
	var buf bytes.Buffer
	if err := n.message.Execute(&buf, a); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NotifyAlert enqueues a high priority notification job for a. A template
// failure only costs the payload its text.
func (n *AlertNotifier) NotifyAlert(ctx context.Context, a models.Alert) error {
	text, err := n.RenderMessage(a)
	if err != nil {
		n.logger.Warn("render notify message", "alert_id", a.ID, "err", err)
	}
	p := NotifyPayload{Event: "alert.created", Text: text, Alert: a.ToRow()}
	_, err = n.pool.Enqueue(ctx, NotifyAlertType, p, 0, n.maxAttempts)
	return err
}

// WebhookHandler posts the job payload to url. Any non-2xx answer is an error
// so the pool retries with backoff.
func WebhookHandler(client *http.Client, url string, m *metrics.Metrics, logger *slog.Logger) Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, j *models.BackgroundJob) error {
		var p NotifyPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			m.NotifyJob("invalid")
			return fmt.Errorf("decode notify payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(j.Payload))
		if err != nil {
			m.NotifyJob("error")
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Alert-Id", p.Alert.ID)

		resp, err := client.Do(req)
		if err != nil {
			m.NotifyJob("error")
			return fmt.Errorf("post responder webhook: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			m.NotifyJob("error")
			return fmt.Errorf("responder webhook returned %d", resp.StatusCode)
		}
		m.NotifyJob("ok")
		logger.Info("responders notified", "alert_id", p.Alert.ID, "job_id", j.ID, "attempt", j.Attempts+1)
		return nil
	}
}
