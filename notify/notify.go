// Package notify delivers run summaries to push and mail channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ytget/checkin/config"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/logger"
)

// Message is one notification.
type Message struct {
	Title string
	Body  string
}

// Notifier delivers a message over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

// Send delivers msg on every channel. Failures are logged and joined; one
// failing channel does not stop the others.
func (m Multi) Send(ctx context.Context, msg Message) error {
	log := logger.WithComponent(logger.ComponentNotify)
	var failed []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			log.Warn("Notification failed", map[string]interface{}{
				"channel": n.Name(),
				"error":   err,
			})
			failed = append(failed, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		log.Info("Notification sent", map[string]interface{}{"channel": n.Name()})
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrNotifyFailed, errors.Join(failed...))
	}
	return nil
}

// FromConfig builds the enabled channels. Bark is enabled by a device key and
// mail by an SMTP host. The result is empty when nothing is configured.
func FromConfig(cfg config.NotifyConfig) Multi {
	var m Multi
	if cfg.Bark.Key != "" {
		m = append(m, NewBark(cfg.Bark.Server, cfg.Bark.Key, cfg.Bark.Sound, cfg.Bark.Group))
	}
	if cfg.SMTP.Host != "" {
		m = append(m, &Mail{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
	}
	return m
}
