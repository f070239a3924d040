package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"kite_guard/internal/models"
	"kite_guard/internal/modules/config"
	"kite_guard/pkg/logger"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("ticker is not connected")
	ErrTokenMissing = errors.New("kite api_key or access_token is empty")
)

const writeTimeout = 5 * time.Second

// Handler получает события тикера. Все вызовы идут из горутины Run.
type Handler interface {
	// OnConnect вызывается после каждого (пере)подключения до чтения кадров.
	OnConnect(ctx context.Context)
	OnTicks(ctx context.Context, ticks []models.PriceTick)
	OnDisconnect(ctx context.Context, err error)
	OnError(ctx context.Context, err error)
	// OnOrderUpdate: брокер прислал постбэк по ордеру.
	OnOrderUpdate(ctx context.Context)
}

type Options struct {
	URL         string
	APIKey      string
	AccessToken string
	Backoff     Backoff
	ReadTimeout time.Duration
}

// Client: websocket тикера Kite.
type Client struct {
	url         string
	dialer      *websocket.Dialer
	backoff     Backoff
	readTimeout time.Duration
	now         func() time.Time

	mu   sync.Mutex // conn и запись в него
	conn *websocket.Conn
}

func NewClient(cfg *config.Config) (*Client, error) {
	b := DefaultBackoff()
	if cfg.Feed.ReconnectMin > 0 {
		b.Min = cfg.Feed.ReconnectMin
	}
	if cfg.Feed.ReconnectMax > 0 {
		b.Max = cfg.Feed.ReconnectMax
	}
	return New(Options{
		URL:         cfg.Kite.WSURL,
		APIKey:      cfg.Kite.APIKey,
		AccessToken: cfg.Kite.AccessToken,
		Backoff:     b,
		ReadTimeout: cfg.Feed.ReadTimeout,
	})
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" || opts.AccessToken == "" {
		return nil, ErrTokenMissing
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ticker url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", opts.APIKey)
	q.Set("access_token", opts.AccessToken)
	u.RawQuery = q.Encode()

	return &Client{
		url:         u.String(),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:     opts.Backoff,
		readTimeout: opts.ReadTimeout,
		now:         time.Now,
	}, nil
}

// Run держит соединение до отмены ctx, переподключаясь с backoff.
func (c *Client) Run(ctx context.Context, h Handler) {
	attempt := 0
	for ctx.Err() == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			attempt++
			h.OnError(ctx, fmt.Errorf("dial ticker: %w", err))
			if !sleepCtx(ctx, c.backoff.Next(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		h.OnConnect(ctx)

		err = c.readLoop(ctx, conn, h)

		c.setConn(nil)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		h.OnDisconnect(ctx, err)

		attempt++
		if !sleepCtx(ctx, c.backoff.Next(attempt)) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if c.readTimeout > 0 {
			// тикер шлёт heartbeat раз в секунду
			_ = conn.SetReadDeadline(c.now().Add(c.readTimeout))
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch mt {
		case websocket.BinaryMessage:
			ticks, err := ParseBinary(data, c.now())
			if err != nil {
				h.OnError(ctx, err)
			}
			if len(ticks) > 0 {
				h.OnTicks(ctx, ticks)
			}
		case websocket.TextMessage:
			c.handleText(ctx, data, h)
		}
	}
}

func (c *Client) handleText(ctx context.Context, data []byte, h Handler) {
	msg, err := parseText(data)
	if err != nil {
		h.OnError(ctx, fmt.Errorf("decode ticker message: %w", err))
		return
	}
	switch msg.Type {
	case "error":
		h.OnError(ctx, fmt.Errorf("ticker: %v", msg.Data))
	case "order":
		h.OnOrderUpdate(ctx)
	default:
		logger.Info("ticker %s: %v", msg.Type, msg.Data)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe подписывает токены и переводит их в режим mode.
func (c *Client) Subscribe(ctx context.Context, tokens []uint32, mode string) error {
	if len(tokens) == 0 {
		return nil
	}
	frames, err := subscribeFrames(tokens, mode)
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	return c.write(ctx, frames...)
}

func (c *Client) Unsubscribe(ctx context.Context, tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	frame, err := unsubscribeFrame(tokens)
	if err != nil {
		return fmt.Errorf("encode unsubscribe: %w", err)
	}
	return c.write(ctx, frame)
}

func (c *Client) write(ctx context.Context, frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := c.now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	for _, f := range frames {
		if err := c.conn.WriteMessage(websocket.TextMessage, f); err != nil {
			return fmt.Errorf("write ticker frame: %w", err)
		}
	}
	return nil
}
