package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hydromet-cloud/internal/alarms/application/events"
)

// WebhookNotifier forwards raised alarms to an operator webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// WebhookOption configures the notifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	notifier := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

type webhookPayload struct {
	StationID      string    `json:"station_id"`
	CSQ            string    `json:"csq"`
	Parameter      string    `json:"parameter"`
	SensorValue    float64   `json:"sensor_value"`
	ThresholdValue float64   `json:"threshold_value"`
	ObservedAt     time.Time `json:"observed_at"`
	Message        string    `json:"message"`
}

// Notify posts the alarm to the webhook endpoint.
func (n *WebhookNotifier) Notify(ctx context.Context, event events.AlarmRaised) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		StationID:      event.StationID,
		CSQ:            event.CSQ,
		Parameter:      event.Parameter,
		SensorValue:    event.SensorValue,
		ThresholdValue: event.ThresholdValue,
		ObservedAt:     event.ObservedAt,
		Message:        event.Message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
