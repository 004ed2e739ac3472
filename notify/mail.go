package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

const implicitTLSPort = 465

// Mail sends messages over SMTP.
type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

func (m *Mail) Name() string { return "smtp" }

func (m *Mail) addr() string {
	return m.Host + ":" + strconv.Itoa(m.Port)
}

func (m *Mail) auth() smtp.Auth {
	if m.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", m.Username, m.Password, m.Host)
}

// Send delivers msg. Port 465 uses implicit TLS; other ports upgrade with
// STARTTLS when the server offers it.
func (m *Mail) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mail := email.NewEmail()
	mail.From = m.From
	mail.To = m.To
	mail.Subject = msg.Title
	mail.Text = []byte(msg.Body)

	done := make(chan error, 1)
	go func() {
		if m.Port == implicitTLSPort {
			done <- mail.SendWithTLS(m.addr(), m.auth(), &tls.Config{ServerName: m.Host})
			return
		}
		err := mail.Send(m.addr(), m.auth())
		if err != nil && m.auth() != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
			err = mail.Send(m.addr(), nil)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
