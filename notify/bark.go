package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBarkServer is the public Bark relay.
	DefaultBarkServer = "https://api.day.app"
	// DefaultSound is the Bark sound used when none is configured.
	DefaultSound = "birdsong"

	barkTimeout = 15 * time.Second
)

type barkPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Sound     string `json:"sound,omitempty"`
	Group     string `json:"group,omitempty"`
}

type barkResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Bark pushes messages to an iOS device through a Bark server.
type Bark struct {
	client *resty.Client
	server string
	key    string
	sound  string
	group  string
}

// NewBark creates a Bark notifier for device key.
func NewBark(server, key, sound, group string) *Bark {
	if server == "" {
		server = DefaultBarkServer
	}
	if sound == "" {
		sound = DefaultSound
	}
	return &Bark{
		client: resty.New().SetTimeout(barkTimeout).SetRetryCount(1),
		server: strings.TrimRight(server, "/"),
		key:    key,
		sound:  sound,
		group:  group,
	}
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Send(ctx context.Context, msg Message) error {
	var out barkResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(barkPayload{
			DeviceKey: b.key,
			Title:     msg.Title,
			Body:      msg.Body,
			Sound:     b.sound,
			Group:     b.group,
		}).
		SetResult(&out).
		Post(b.server + "/push")
	if err != nil {
		return fmt.Errorf("bark push: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("bark push: HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if out.Code != 0 && out.Code != http.StatusOK {
		return fmt.Errorf("bark push: code %d: %s", out.Code, out.Message)
	}
	return nil
}
