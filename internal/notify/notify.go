// Package notify publishes the outcome of a scrape to an ntfy topic.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/guild-roster/internal/config"
)

const publishTimeout = 30 * time.Second

// Notifier delivers scrape reports.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// New returns a Publisher for cfg, or a Notifier that drops every report
// when notifications are disabled.
func New(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return discard{}
	}
	return NewPublisher(cfg, logger)
}

type discard struct{}

func (discard) Notify(context.Context, Report) error { return nil }

// Publisher posts reports as JSON messages to an ntfy server.
type Publisher struct {
	httpClient *http.Client
	server     string
	topic      string
	token      string
	tags       []string
	logger     *zap.Logger
}

func NewPublisher(cfg config.NotifyConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		httpClient: &http.Client{Timeout: publishTimeout},
		server:     strings.TrimSuffix(cfg.Server, "/"),
		topic:      cfg.Topic,
		token:      cfg.Token,
		tags:       cfg.TagList(),
		logger:     logger,
	}
}

type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
}

func (p *Publisher) Notify(ctx context.Context, r Report) error {
	msg := message{
		Topic:    p.topic,
		Title:    r.title(),
		Message:  r.body(),
		Priority: r.priority(),
		Tags:     append(append([]string(nil), p.tags...), r.tag()),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publish notification: ntfy returned status %d", resp.StatusCode)
	}

	p.logger.Debug("notification published",
		zap.String("topic", p.topic),
		zap.Stringer("outcome", r.Outcome()),
	)
	return nil
}
