// internal/gateway/client.go
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Client talks to the gateway's admin, auth and chat endpoints. A single
// Client (and its underlying connection pool) is shared by every worker in
// a run to amortize connection setup.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the gateway base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Reachable performs a cheap probe of the gateway. Any HTTP response at all
// counts as reachable; only a transport-level failure does not.
func (c *Client) Reachable(ctx context.Context) error {
	probe := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/login", nil)
	if err != nil {
		return err
	}
	resp, err := probe.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// IsTimeout reports whether err is a transport timeout (including a request
// cut off by the client's per-request deadline).
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FaultName normalizes a transport error into a short classification tag.
// Timeouts are always "timeout"; everything else gets a name for the fault
// kind so error breakdowns stay readable.
func FaultName(err error) string {
	if err == nil {
		return ""
	}
	if IsTimeout(err) {
		return "timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection_refused"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "connection_reset"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "connection_error"
	}
	return "transport_error"
}
