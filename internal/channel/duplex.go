package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voicecoach/internal/domain"
	"voicecoach/internal/metrics"
	"voicecoach/internal/ports"
	"voicecoach/internal/protocol"
)

var ErrClosed = errors.New("session channel is closed")

var allStatuses = []string{
	string(domain.ConnectionConnecting),
	string(domain.ConnectionConnected),
	string(domain.ConnectionDisconnected),
	string(domain.ConnectionError),
}

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a transport connection.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error)
}

// WebsocketDialer adapts a gorilla dialer to Dialer.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, urlStr, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: status %d", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// Config controls the endpoint and reconnect policy.
type Config struct {
	URL          string
	APIKey       string
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// Channel is a persistent, auto-reconnecting duplex connection to the
// backend. Handler callbacks are delivered in order on a separate
// goroutine, never under the channel lock.
type Channel struct {
	cfg     Config
	dialer  Dialer
	sched   ports.Scheduler
	handler ports.ChannelHandler
	metrics *metrics.Metrics
	log     zerolog.Logger
	events  serialQueue

	mu          sync.Mutex
	status      domain.ConnectionStatus
	backoff     *Backoff
	opened      bool
	gen         uint64
	conn        Conn
	retry       ports.Timer
	cancelDial  context.CancelFunc
	connectedCh chan struct{}

	writeMu sync.Mutex
}

func New(cfg Config, dialer Dialer, sched ports.Scheduler, handler ports.ChannelHandler, m *metrics.Metrics, log zerolog.Logger) *Channel {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if handler == nil {
		handler = nopHandler{}
	}
	return &Channel{
		cfg:         cfg,
		dialer:      dialer,
		sched:       sched,
		handler:     handler,
		metrics:     m,
		log:         log.With().Str("component", "session_channel").Logger(),
		status:      domain.ConnectionDisconnected,
		backoff:     NewBackoff(cfg.BaseDelay, cfg.MaxDelay),
		connectedCh: make(chan struct{}),
	}
}

// SetHandler replaces the handler. It must be called before Open.
func (c *Channel) SetHandler(h ports.ChannelHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		h = nopHandler{}
	}
	c.handler = h
}

func (c *Channel) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Open starts connecting. It is a no-op while the channel is already open.
func (c *Channel) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return
	}
	c.opened = true
	c.gen++
	c.backoff.Reset()
	c.setStatus(domain.ConnectionConnecting)
	go c.connect(c.gen)
}

// WaitConnected blocks until the channel is connected or ctx is done.
func (c *Channel) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.status == domain.ConnectionConnected {
			c.mu.Unlock()
			return nil
		}
		if !c.opened {
			c.mu.Unlock()
			return ErrClosed
		}
		ready := c.connectedCh
		c.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send writes msg when connected and silently drops it otherwise.
func (c *Channel) Send(msg protocol.Outbound) bool {
	c.mu.Lock()
	conn := c.conn
	gen := c.gen
	connected := c.status == domain.ConnectionConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return false
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		c.log.Warn().Err(err).Str("type", msg.Type).Msg("dropping unencodable message")
		return false
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("type", msg.Type).Msg("send failed")
		c.connectionLost(gen, conn, err)
		return false
	}
	return true
}

// Close shuts the channel down deliberately; no reconnect follows.
func (c *Channel) Close() error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = false
	c.gen++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStatus(domain.ConnectionDisconnected)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Channel) connect(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	c.mu.Lock()
	if gen != c.gen || !c.opened {
		c.mu.Unlock()
		return
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	conn, err := c.dialer.DialContext(ctx, c.cfg.URL, c.header())

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.opened {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		status := domain.ConnectionDisconnected
		if errors.Is(err, websocket.ErrBadHandshake) {
			status = domain.ConnectionError
		}
		c.log.Warn().Err(err).Str("status", string(status)).Int("attempt", c.backoff.Failures()+1).Msg("connect failed")
		c.setStatus(status)
		c.scheduleReconnect(gen)
		return
	}

	c.conn = conn
	c.backoff.Reset()
	c.setStatus(domain.ConnectionConnected)
	c.log.Info().Str("url", c.cfg.URL).Msg("session channel connected")
	go c.readLoop(gen, conn)
}

// scheduleReconnect is the only place reconnect attempts are scheduled.
// Callers hold c.mu.
func (c *Channel) scheduleReconnect(gen uint64) {
	delay := c.backoff.Next()
	c.metrics.RecordReconnect()
	c.log.Debug().Dur("delay", delay).Int("attempt", c.backoff.Failures()).Msg("reconnect scheduled")
	c.retry = c.sched.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen || !c.opened {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.setStatus(domain.ConnectionConnecting)
		c.mu.Unlock()

		c.connect(gen)
	})
}

func (c *Channel) readLoop(gen uint64, conn Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, conn, err)
			return
		}

		msg, err := protocol.DecodeInbound(payload)
		if err != nil {
			c.metrics.RecordInboundError()
			c.log.Warn().Err(err).Msg("ignoring malformed inbound message")
			continue
		}

		c.mu.Lock()
		current := gen == c.gen && c.conn == conn
		handler := c.handler
		if current {
			c.events.push(func() { handler.Inbound(msg) })
		}
		c.mu.Unlock()
		if !current {
			return
		}
	}
}

func (c *Channel) connectionLost(gen uint64, conn Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.conn != conn || !c.opened {
		return
	}
	c.conn = nil
	_ = conn.Close()

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info().Msg("session channel closed by remote")
	} else {
		c.log.Warn().Err(cause).Msg("session channel lost")
	}
	c.setStatus(domain.ConnectionDisconnected)
	c.scheduleReconnect(gen)
}

func (c *Channel) setStatus(status domain.ConnectionStatus) {
	if c.status == status {
		return
	}
	if status == domain.ConnectionConnected {
		close(c.connectedCh)
	} else if c.status == domain.ConnectionConnected {
		c.connectedCh = make(chan struct{})
	}
	c.status = status
	c.metrics.SetConnectionStatus(string(status), allStatuses...)

	handler := c.handler
	c.events.push(func() { handler.ConnectionStatusChanged(status) })
}

func (c *Channel) header() http.Header {
	header := http.Header{}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		header.Set("Authorization", "Bearer "+key)
	}
	return header
}

// BuildURL turns an http(s) backend base URL into the websocket endpoint.
func BuildURL(base string, path string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("backend base URL is empty")
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	wsURL, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid backend base URL: %w", err)
	}
	if wsURL.Scheme != "ws" && wsURL.Scheme != "wss" {
		return "", fmt.Errorf("unsupported backend scheme %q", wsURL.Scheme)
	}
	return wsURL.String(), nil
}

type nopHandler struct{}

func (nopHandler) ConnectionStatusChanged(domain.ConnectionStatus) {}
func (nopHandler) Inbound(protocol.Inbound)                        {}
