package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dgnsrekt/guild-roster/internal/telemetry"
)

// DefaultGatewayURL is the gateway endpoint, JSON encoded and uncompressed.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Conn is an open gateway connection owned by a single attempt.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens gateway connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// Sink receives every member id exactly once.
type Sink interface {
	Emit(id string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(id string) error

func (f SinkFunc) Emit(id string) error {
	return f(id)
}

// Policy holds the pacing and retry knobs of a scrape.
type Policy struct {
	// BatchSize is the width of every requested range.
	BatchSize int
	// RequestDelay is waited after every range request.
	RequestDelay time.Duration
	// RetryBudget is the number of reconnects allowed after transient failures.
	RetryBudget int
	// RetryDelay is waited before every reconnect.
	RetryDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BatchSize:    25,
		RequestDelay: 3 * time.Second,
		RetryBudget:  5,
		RetryDelay:   3 * time.Second,
	}
}

func (p Policy) Validate() error {
	if p.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1", ErrInvalidPolicy)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("%w: retry budget must be >= 0", ErrInvalidPolicy)
	}
	if p.RequestDelay < 0 || p.RetryDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// Target names the guild and the channel whose member sidebar is scraped.
type Target struct {
	GuildID   string
	ChannelID string
}

// Result is what a scrape collected. It is returned on every exit path.
type Result struct {
	Members  []string
	Attempts int
	Requests int
	// Complete is set when the member list was exhausted.
	Complete bool
}

type Opt func(*Scraper)

func WithLogger(logger *zap.Logger) Opt {
	return func(s *Scraper) {
		s.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(s *Scraper) {
		s.clock = clock
	}
}

func WithPolicy(p Policy) Opt {
	return func(s *Scraper) {
		s.policy = p
	}
}

func WithGatewayURL(url string) Opt {
	return func(s *Scraper) {
		s.url = url
	}
}

// Scraper enumerates guild members through the lazy member list protocol,
// reconnecting on transient failures.
type Scraper struct {
	dialer Dialer
	sink   Sink
	logger *zap.Logger
	clock  clockwork.Clock
	policy Policy
	url    string
}

func New(dialer Dialer, sink Sink, opts ...Opt) (*Scraper, error) {
	s := &Scraper{
		dialer: dialer,
		sink:   sink,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		policy: DefaultPolicy(),
		url:    DefaultGatewayURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Scrape collects the members of target. Cursor and store survive
// reconnects, so no progress is lost when an attempt fails. The returned
// Result is never nil; on budget exhaustion the error wraps
// ErrRetryBudgetExhausted and the Result holds the partial roster.
func (s *Scraper) Scrape(ctx context.Context, target Target) (*Result, error) {
	cursor, err := NewCursor(s.policy.BatchSize)
	if err != nil {
		return &Result{}, err
	}
	store := NewStore()
	res := &Result{}
	retries := s.policy.RetryBudget

	logger := s.logger.With(
		zap.String("guild", target.GuildID),
		zap.String("channel", target.ChannelID),
	)

	for {
		res.Attempts++
		telemetry.AttemptsTotal.Inc()

		err := s.attempt(ctx, logger, target, cursor, store, res)
		res.Members = store.Keys()

		switch {
		case err == nil:
			res.Complete = true
			telemetry.ScrapesTotal.WithLabelValues("complete").Inc()
			logger.Info("scrape complete",
				zap.Int("members", len(res.Members)),
				zap.Int("requests", res.Requests),
				zap.Int("attempts", res.Attempts),
			)
			return res, nil

		case ctx.Err() != nil:
			telemetry.ScrapesTotal.WithLabelValues("cancelled").Inc()
			return res, ctx.Err()

		case !isTransient(err):
			telemetry.ScrapesTotal.WithLabelValues("failed").Inc()
			logger.Error("scrape failed", zap.Int("members", len(res.Members)), zap.Error(err))
			return res, err
		}

		if retries == 0 {
			telemetry.ScrapesTotal.WithLabelValues("exhausted").Inc()
			logger.Error("giving up after retries",
				zap.Int("retries", s.policy.RetryBudget),
				zap.Int("members", len(res.Members)),
				zap.Error(err),
			)
			return res, fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, res.Attempts, err)
		}
		retries--
		telemetry.RetriesTotal.Inc()

		logger.Warn("scrape attempt failed, retrying",
			zap.Int("retry", s.policy.RetryBudget-retries),
			zap.Int("budget", s.policy.RetryBudget),
			zap.Duration("delay", s.policy.RetryDelay),
			zap.Error(err),
		)
		if err := s.sleep(ctx, s.policy.RetryDelay); err != nil {
			telemetry.ScrapesTotal.WithLabelValues("cancelled").Inc()
			return res, err
		}
	}
}

// attempt runs one connection until the list is exhausted or it fails.
func (s *Scraper) attempt(ctx context.Context, logger *zap.Logger, target Target, cursor *Cursor, store *Store, res *Result) error {
	logger = logger.With(
		zap.String("session", uuid.New().String()),
		zap.Int("attempt", res.Attempts),
	)

	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return transient("dial", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debug("closing gateway connection", zap.Error(err))
		}
	}()
	logger.Debug("gateway connected", zap.Int("next_start", cursor.CurrentRange().Start))

	m := NewMachine(cursor, store, s.sink)
	for {
		raw, err := conn.Receive(ctx)
		if err != nil {
			return transient("receive", err)
		}

		msg, err := Classify(raw)
		if err != nil {
			return transient("decode", err)
		}

		step, err := m.Handle(msg)
		if step.Discovered > 0 {
			telemetry.MembersDiscovered.Add(float64(step.Discovered))
			logger.Debug("members discovered",
				zap.Int("new", step.Discovered),
				zap.Int("total", store.Len()),
			)
		}
		if err != nil {
			return err
		}
		if step.Done {
			return nil
		}
		if step.Request == nil {
			continue
		}

		data, err := EncodeSubscribe(target.GuildID, target.ChannelID, *step.Request)
		if err != nil {
			return err
		}
		if err := conn.Send(ctx, data); err != nil {
			return transient("send", err)
		}
		m.Sent()
		res.Requests++
		telemetry.RequestsTotal.Inc()
		logger.Debug("requested member range",
			zap.Int("start", step.Request.Start),
			zap.Int("end", step.Request.End),
		)

		if err := s.sleep(ctx, s.policy.RequestDelay); err != nil {
			return err
		}
	}
}

func (s *Scraper) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

// IsRetryBudgetExhausted reports whether err ended a scrape that kept
// failing transiently.
func IsRetryBudgetExhausted(err error) bool {
	return errors.Is(err, ErrRetryBudgetExhausted)
}
