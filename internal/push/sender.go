// Package push delivers notifications to the push gateway.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/muzz-engagement/internal/config"
)

// Message is one push to one user.
type Message struct {
	ToUser uint64
	Kind   string
	Title  string
	Body   string
	Count  int64
	Data   map[string]string
}

// Sender delivers a message. Delivery is best-effort; callers log errors.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FromConfig returns an HTTP sender when PUSH_GATEWAY_URL is set, otherwise a
// sender that only logs.
func FromConfig(cfg *config.Config, log *slog.Logger) Sender {
	if cfg == nil || cfg.Push.URL == "" {
		return NewLogSender(log)
	}
	return NewHTTPSender(cfg.Push.URL, cfg.Push.APIKey, cfg.Push.Timeout)
}

// HTTPSender posts messages to the gateway.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
}

var _ Sender = (*HTTPSender)(nil)

func NewHTTPSender(url, apiKey string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type gatewayPayload struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	data := map[string]string{"kind": msg.Kind, "count": strconv.FormatInt(msg.Count, 10)}
	for k, v := range msg.Data {
		data[k] = v
	}
	body, err := json.Marshal(gatewayPayload{
		To:    strconv.FormatUint(msg.ToUser, 10),
		Title: msg.Title,
		Body:  msg.Body,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway: status %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes messages to the log. Used when no gateway is configured.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("push.send",
		"to_user", msg.ToUser,
		"kind", msg.Kind,
		"count", msg.Count,
		"body", msg.Body,
	)
	return nil
}
