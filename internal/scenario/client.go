package scenario

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/studiowebux/cartload/internal/types"
	"go.uber.org/zap"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second

	// DefaultRequestTimeout applies when ClientOptions.Timeout is zero
	DefaultRequestTimeout = 10 * time.Second
)

// API paths of the shopping-cart service
const (
	PathCarts     = "/shopping-carts"
	PathCart      = "/shopping-carts/{id}"
	PathCartItems = "/shopping-carts/{id}/items"
)

// CartAPI is the subset of the shopping-cart service a simulated user talks to
type CartAPI interface {
	CreateCart(ctx context.Context, customerID int) *Response
	AddItem(ctx context.Context, cartID string, productID, quantity int) *Response
	GetCart(ctx context.Context, cartID string) *Response
}

// Response is the raw result of one call to the service
type Response struct {
	StatusCode   int // 0 when the request failed before a response arrived
	Body         []byte
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
	Err          error
}

// ClientOptions configures the HTTP client shared by all simulated users
type ClientOptions struct {
	BaseURL  string
	Timeout  time.Duration
	MaxConns int // Expected number of concurrent users, sizes the connection pool
	TLS      *types.TLSConfig
	Logger   *zap.Logger
}

// Client talks to the shopping-cart service over HTTP
type Client struct {
	rc *resty.Client
}

// NewClient creates a client with connection pooling sized for the run
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10
	}

	httpClient, err := buildHTTPClient(opts)
	if err != nil {
		return nil, err
	}

	rc := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Logger != nil {
		rc.SetLogger(opts.Logger.Sugar())
	}

	return &Client{rc: rc}, nil
}

// CreateCart sends POST /shopping-carts
func (c *Client) CreateCart(ctx context.Context, customerID int) *Response {
	return c.do(ctx, http.MethodPost, PathCarts, "", types.CreateCartRequest{CustomerID: customerID})
}

// AddItem sends POST /shopping-carts/{id}/items
func (c *Client) AddItem(ctx context.Context, cartID string, productID, quantity int) *Response {
	return c.do(ctx, http.MethodPost, PathCartItems, cartID, types.AddItemRequest{ProductID: productID, Quantity: quantity})
}

// GetCart sends GET /shopping-carts/{id}
func (c *Client) GetCart(ctx context.Context, cartID string) *Response {
	return c.do(ctx, http.MethodGet, PathCart, cartID, nil)
}

func (c *Client) do(ctx context.Context, method, path, cartID string, body any) *Response {
	req := c.rc.R().SetContext(ctx)
	if cartID != "" {
		req.SetPathParam("id", cartID)
	}

	var requestSize int64
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Response{Err: fmt.Errorf("failed to encode request body: %w", err)}
		}
		requestSize = int64(len(payload))
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	duration := time.Since(start)

	result := &Response{
		Duration:    duration,
		RequestSize: requestSize,
		Err:         err,
	}
	if resp != nil && resp.RawResponse != nil {
		result.StatusCode = resp.StatusCode()
		result.Body = resp.Body()
		result.ResponseSize = int64(len(result.Body))
	}
	return result
}

// buildHTTPClient creates an HTTP client tuned for load generation
// with connection pooling, timeouts and optional TLS material
func buildHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        opts.MaxConns,
		MaxIdleConnsPerHost: opts.MaxConns,
		MaxConnsPerHost:     opts.MaxConns * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if !opts.TLS.IsZero() {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: opts.TLS.InsecureSkipVerify,
		}

		// Client certificate for mTLS
		if opts.TLS.CertFile != "" && opts.TLS.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(opts.TLS.CertFile, opts.TLS.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}

		if opts.TLS.CAFile != "" {
			caCert, err := os.ReadFile(opts.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caCertPool
		}

		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}, nil
}
