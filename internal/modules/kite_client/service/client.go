package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kite_guard/internal/modules/config"
	"kite_guard/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const kiteVersion = "3"

var ErrTokenMissing = errors.New("kite api_key or access_token is empty")

// APIError: ответ Kite со status=error.
type APIError struct {
	HTTPStatus int
	ErrorType  string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kite %d %s: %s", e.HTTPStatus, e.ErrorType, e.Message)
}

// envelope: общий конверт ответа, data разбираем отдельно.
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

type Options struct {
	RootURL     string
	APIKey      string
	AccessToken string
	Exchange    string
	Product     string
	OrderTag    string
	Timeout     time.Duration
}

// Client: REST Kite Connect: позиции, ордера, рыночный выход.
type Client struct {
	http *http.Client
	opts Options
}

func NewClient(cfg *config.Config) (*Client, error) {
	return New(Options{
		RootURL:     cfg.Kite.RootURL,
		APIKey:      cfg.Kite.APIKey,
		AccessToken: cfg.Kite.AccessToken,
		Exchange:    cfg.Kite.Exchange,
		Product:     cfg.Kite.Product,
		OrderTag:    cfg.Kite.OrderTag,
		Timeout:     cfg.Kite.Timeout,
	})
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" || opts.AccessToken == "" {
		return nil, ErrTokenMissing
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.RootURL = strings.TrimRight(opts.RootURL, "/")

	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) (err error) {
	span, ctx := tracing.StartSpan(ctx, "kite "+method+" "+path)
	defer func() { tracing.Finish(span, err) }()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.RootURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "new request %s %s", method, path)
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", "token "+c.opts.APIKey+":"+c.opts.AccessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s %s", method, path)
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "decode %s %s (http %d)", method, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		return &APIError{HTTPStatus: resp.StatusCode, ErrorType: env.ErrorType, Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(err, "decode data %s %s", method, path)
	}
	return nil
}
