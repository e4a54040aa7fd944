package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/policetracker/internal/core/ports"
)

const (
	StreamAlerts    = "POLICE_ALERTS"
	SubjectAlerts   = "alerts.>"
	SubjectIngested = "alerts.ingested"
	SubjectPruned   = "alerts.pruned"

	alertStreamMaxAge = 24 * time.Hour
	reconnectWait     = 2 * time.Second
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and makes sure the alerts stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	cfg := &nats.StreamConfig{
		Name:      StreamAlerts,
		Subjects:  []string{SubjectAlerts},
		Retention: nats.LimitsPolicy,
		MaxAge:    alertStreamMaxAge,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

func (p *Publisher) PublishAlertsIngested(ctx context.Context, notice ports.IngestNotice) error {
	return p.publish(ctx, SubjectIngested, notice)
}

func (p *Publisher) PublishAlertsPruned(ctx context.Context, notice ports.IngestNotice) error {
	return p.publish(ctx, SubjectPruned, notice)
}

func (p *Publisher) publish(ctx context.Context, subject string, notice ports.IngestNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// Connect opens a NATS connection that keeps reconnecting.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
