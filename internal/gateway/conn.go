package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the gateway.
	maxMessageSize = 16 << 20 // 16MB

	// Frames buffered between the reader and Receive.
	inboundBufferSize = 64

	defaultHandshakeTimeout = 10 * time.Second
	userAgent               = "guild-roster (https://github.com/dgnsrekt/guild-roster)"
)

// Dialer opens authenticated gateway connections.
type Dialer struct {
	Token            string
	Properties       Properties
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Dial connects to the gateway at url. The returned connection identifies
// itself and keeps the heartbeat going once the gateway says hello.
func (d *Dialer) Dial(ctx context.Context, url string) (*Conn, error) {
	if d.Token == "" {
		return nil, ErrNoToken
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	wsDialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	ws, resp, err := wsDialer.DialContext(ctx, url, http.Header{"User-Agent": {userAgent}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	props := d.Properties
	if props == (Properties{}) {
		props = DefaultProperties()
	}

	c := &Conn{
		conn:   ws,
		token:  d.Token,
		props:  props,
		logger: logger,
		in:     make(chan []byte, inboundBufferSize),
		done:   make(chan struct{}),
	}
	c.seq.Store(-1)
	c.acked.Store(true)
	c.conn.SetReadLimit(maxMessageSize)

	c.wg.Add(1)
	go c.readPump()
	return c, nil
}

// Conn is a gateway connection. Receive must not be called concurrently;
// Send may be called from any goroutine.
type Conn struct {
	conn   *websocket.Conn
	token  string
	props  Properties
	logger *zap.Logger

	in   chan []byte
	done chan struct{}
	wg   sync.WaitGroup

	writeMu   sync.Mutex
	closeOnce sync.Once
	heartbeat sync.Once

	errMu   sync.Mutex
	readErr error

	// last dispatch sequence number, -1 until the first dispatch
	seq atomic.Int64
	// cleared when a heartbeat is sent, set again by its ack
	acked atomic.Bool
}

// Send writes a text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.write(ctx, data); err != nil {
		return fmt.Errorf("write gateway frame: %w", err)
	}
	return nil
}

// Receive returns the next frame read from the gateway.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, c.err()
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Close sends a close frame, closes the socket and waits for the reader and
// heartbeat goroutines. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

// readPump reads frames until the socket fails or the connection is closed.
func (c *Conn) readPump() {
	defer c.wg.Done()
	defer close(c.in)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("gateway read error", zap.Error(err))
			}
			c.setErr(err)
			return
		}

		c.inspect(data)

		select {
		case c.in <- data:
		case <-c.done:
			return
		}
	}
}

// inspect handles the opcodes that belong to the transport: hello,
// heartbeat requests and sequence tracking.
func (c *Conn) inspect(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	if env.S != nil {
		c.seq.Store(*env.S)
	}

	switch env.Op {
	case opHello:
		var hello helloData
		if err := json.Unmarshal(env.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
			c.logger.Warn("ignoring gateway hello", zap.Error(ErrBadHello))
			return
		}
		if err := c.identify(); err != nil {
			c.logger.Warn("gateway identify failed", zap.Error(err))
		}
		interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
		c.heartbeat.Do(func() {
			c.wg.Add(1)
			go c.heartbeatLoop(interval)
		})

	case opHeartbeat:
		if err := c.sendHeartbeat(); err != nil {
			c.logger.Debug("gateway heartbeat failed", zap.Error(err))
		}

	case opHeartbeatAck:
		c.acked.Store(true)

	case opReconnect:
		c.fail(ErrReconnectRequested)

	case opInvalidSession:
		c.fail(ErrInvalidSession)
	}
}

// fail records err as the reason the connection ended and closes the
// socket, so the reader stops and Receive reports err once the buffered
// frames are drained.
func (c *Conn) fail(err error) {
	c.logger.Debug("dropping gateway connection", zap.Error(err))
	c.setErr(err)
	_ = c.conn.Close()
}

func (c *Conn) identify() error {
	data, err := buildIdentify(c.token, c.props)
	if err != nil {
		return err
	}
	return c.write(context.Background(), data)
}

func (c *Conn) heartbeatLoop(interval time.Duration) {
	defer c.wg.Done()

	// the first beat is jittered so reconnecting clients do not beat in lockstep
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(interval))))
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
			if !c.acked.Load() {
				c.fail(ErrHeartbeatTimeout)
				return
			}
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Debug("gateway heartbeat failed", zap.Error(err))
				return
			}
			timer.Reset(interval)
		}
	}
}

func (c *Conn) sendHeartbeat() error {
	var seq *int64
	if s := c.seq.Load(); s >= 0 {
		seq = &s
	}
	data, err := buildHeartbeat(seq)
	if err != nil {
		return err
	}
	c.acked.Store(false)
	return c.write(context.Background(), data)
}

func (c *Conn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// setErr keeps the first error; a socket closed by fail also fails the
// pending read.
func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

func (c *Conn) err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		return ErrClosed
	}
	return fmt.Errorf("read gateway frame: %w", c.readErr)
}
