package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/nats-io/nats.go"
)

// Subject suffixes used under the configured prefix.
const (
	SubjectSuggestion = "suggestion"
	SubjectRoute      = "route"
	SubjectPause      = "pause"
	SubjectStart      = "start"
	SubjectStatus     = "status"
)

// Publisher is the part of *nats.Conn the autopilot needs for outbound commands.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// statusMessage is what the autopilot announces on the status subject.
type statusMessage struct {
	Running bool `json:"running"`
}

type routeMessage struct {
	Suggestions []models.Suggestion `json:"suggestions"`
}

// NATSAutopilot talks to an autopilot process over NATS subjects.
type NATSAutopilot struct {
	pub     Publisher
	prefix  string
	log     *slog.Logger
	running atomic.Bool
	sub     *nats.Subscription
}

// NewNATSAutopilot creates an autopilot client publishing under prefix (for example "autopilot").
func NewNATSAutopilot(pub Publisher, prefix string, log *slog.Logger) *NATSAutopilot {
	return &NATSAutopilot{pub: pub, prefix: prefix, log: log}
}

// Connect dials the NATS server and subscribes to the autopilot status subject.
func Connect(url, prefix string, log *slog.Logger) (*NATSAutopilot, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("strider"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ap := NewNATSAutopilot(nc, prefix, log)
	ap.sub, err = nc.Subscribe(ap.subject(SubjectStatus), func(msg *nats.Msg) {
		if errStatus := ap.UpdateStatus(msg.Data); errStatus != nil {
			log.Warn("Ignoring malformed autopilot status", "error", errStatus)
		}
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to autopilot status: %w", err)
	}

	return ap, nc, nil
}

func (a *NATSAutopilot) Suggest(ctx context.Context, suggestion models.Suggestion) error {
	return a.publish(ctx, SubjectSuggestion, suggestion)
}

func (a *NATSAutopilot) Route(ctx context.Context, route []models.Suggestion) error {
	return a.publish(ctx, SubjectRoute, routeMessage{Suggestions: route})
}

func (a *NATSAutopilot) Pause(ctx context.Context) error {
	return a.publish(ctx, SubjectPause, struct{}{})
}

func (a *NATSAutopilot) Start(ctx context.Context) error {
	return a.publish(ctx, SubjectStart, struct{}{})
}

// Running reports the last status announced by the autopilot.
func (a *NATSAutopilot) Running() bool {
	return a.running.Load()
}

// UpdateStatus applies a status announcement payload.
func (a *NATSAutopilot) UpdateStatus(data []byte) error {
	var msg statusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode autopilot status: %w", err)
	}
	a.running.Store(msg.Running)
	return nil
}

// Close drops the status subscription.
func (a *NATSAutopilot) Close() error {
	if a.sub == nil {
		return nil
	}
	return a.sub.Unsubscribe()
}

func (a *NATSAutopilot) publish(ctx context.Context, suffix string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", suffix, err)
	}

	subject := a.subject(suffix)
	if err = a.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	a.log.DebugContext(ctx, "Autopilot command published", "subject", subject)

	return nil
}

func (a *NATSAutopilot) subject(suffix string) string {
	return a.prefix + "." + suffix
}
