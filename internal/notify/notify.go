// Package notify delivers rendered alert content over e-mail and Slack.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
)

type Recipient struct {
	Name  string
	Email string
}

// Message is the channel-independent content of a notification.
type Message struct {
	To      Recipient
	Subject string
	Body    string
	HTML    string // optional HTML alternative of Body
	Level   models.AlertLevel
	Color   string // overrides the level color when set
}

// Notifier sends a message to its recipient. Errors are reported, never retried.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type channel struct {
	name     string
	notifier Notifier
}

// Multi fans a message out to every registered channel.
type Multi struct {
	channels []channel
	metrics  *metrics.Metrics
}

func NewMulti(m *metrics.Metrics) *Multi {
	return &Multi{metrics: m}
}

// Add registers a channel under name; nil notifiers are ignored.
func (m *Multi) Add(name string, n Notifier) *Multi {
	if n != nil {
		m.channels = append(m.channels, channel{name: name, notifier: n})
	}
	return m
}

// Len returns the number of registered channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Send tries every channel. The returned error wraps models.ErrDeliveryFailure
// and joins the individual channel errors.
func (m *Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.notifier.Send(ctx, msg); err != nil {
			m.metrics.NotificationFailed(ch.name)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrDeliveryFailure, errors.Join(errs...))
}

// LogNotifier writes messages to the log. Used when no channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(_ context.Context, msg Message) error {
	l.logger.Info("Notification",
		zap.String("to", msg.To.Email),
		zap.String("level", string(msg.Level)),
		zap.String("subject", msg.Subject))
	return nil
}

func levelColor(msg Message) string {
	if msg.Color != "" {
		return msg.Color
	}
	switch msg.Level {
	case models.AlertLevelInfo:
		return "#36a64f"
	case models.AlertLevelWarning:
		return "#ffcc00"
	case models.AlertLevelUrgent:
		return "#ff8800"
	case models.AlertLevelCritical:
		return "#ff0000"
	default:
		return "#000000"
	}
}
