// Package corrosion is a minimal client for the shared replicated key/value
// store's SQL-over-HTTP interface. The store itself is an opaque
// strongly-replicated table store — this client only needs
// to execute parameterized statements and stream query rows over HTTP/2.
package corrosion

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

const http2ConnectTimeout = 3 * time.Second

// Client is an HTTP client for the store's query/transaction API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a store client for one node address. A Client never
// fails over to another node; cmd/uptimemesh-node builds one from the first
// DATABASE_NODE_URLS entry only.
func NewClient(addr netip.AddrPort, opts ...ClientOption) (*Client, error) {
	baseURL, err := url.Parse(fmt.Sprintf("http://%s", addr))
	if err != nil {
		return nil, fmt.Errorf("parse store node URL: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					return (&net.Dialer{Timeout: http2ConnectTimeout}).DialContext(ctx, network, addr)
				},
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (tests substitute an in-memory
// round tripper here).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// ErrUnavailable wraps any network-level failure reaching the store node.
var ErrUnavailable = errors.New("corrosion: node unavailable")
