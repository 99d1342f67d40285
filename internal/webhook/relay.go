// Package webhook relays repair events to the external automation
// platform. Delivery is fire-and-forget: one POST, no signature, no retry;
// failures are logged and swallowed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// deliveryTimeout bounds a single delivery attempt.
const deliveryTimeout = 10 * time.Second

// Event is the payload sent when a repair report indicates a charger
// replacement or a protective-component installation.
type Event struct {
	RepairID        string `json:"reparacion_id"`
	Technician      string `json:"tecnico"`
	InstalledSerial string `json:"numero_serie_instalado,omitempty"`
	RemovedSerial   string `json:"numero_serie_retirado,omitempty"`
	ComponentModel  string `json:"modelo_componente,omitempty"`
	ClientAddress   string `json:"direccion,omitempty"`
	ClientCity      string `json:"poblacion,omitempty"`
	ClientPostal    string `json:"codigo_postal,omitempty"`
	ClientProvince  string `json:"provincia,omitempty"`
}

// MetricsRecorder counts delivery outcomes. A nil recorder disables it.
type MetricsRecorder interface {
	RecordWebhookDelivery(ok bool)
}

// Relay posts events to the automation platform.
type Relay struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// NewRelay builds a Relay. An empty endpoint disables delivery entirely;
// callers should pass an SSRF-protected client since the endpoint comes
// from configuration.
func NewRelay(httpClient *http.Client, endpoint string, logger *slog.Logger, metrics MetricsRecorder) *Relay {
	return &Relay{
		httpClient: httpClient,
		endpoint:   endpoint,
		logger:     logger,
		metrics:    metrics,
	}
}

// Enabled reports whether an endpoint is configured.
func (r *Relay) Enabled() bool {
	return r.endpoint != ""
}

// Notify delivers the event in the background and returns immediately.
func (r *Relay) Notify(event Event) {
	if !r.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := r.deliver(ctx, event); err != nil {
			r.logger.Error("webhook delivery failed",
				slog.String("repair_id", event.RepairID),
				slog.String("error", err.Error()),
			)
			if r.metrics != nil {
				r.metrics.RecordWebhookDelivery(false)
			}
			return
		}
		if r.metrics != nil {
			r.metrics.RecordWebhookDelivery(true)
		}
	}()
}

// deliver performs the single POST. The delivery id only serves log
// correlation; the receiving platform ignores it.
func (r *Relay) deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	deliveryID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("automation platform returned status %d", resp.StatusCode)
	}

	r.logger.Info("webhook delivered",
		slog.String("repair_id", event.RepairID),
		slog.String("delivery_id", deliveryID),
	)
	return nil
}
