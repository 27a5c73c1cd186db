package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-scrape-wools/config"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestClient(t *testing.T, cacheSize int) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheSize = cacheSize

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport := httpmock.NewMockTransport()
	c.WithTransport(transport)
	return c, transport
}

func TestClientFetchMergesParams(t *testing.T) {
	c, transport := newTestClient(t, 0)

	var gotQuery map[string][]string
	transport.RegisterResponder("GET", "http://example.test/search",
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.Query()
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	resp, err := c.Fetch(context.Background(), "http://example.test/search?fixed=1", map[string][]string{
		"searchQuery": {"DMC Natura XL"},
		"limit":       {"16"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(resp.Body) != "ok" || resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, resp.Body)
	}
	if gotQuery["searchQuery"][0] != "DMC Natura XL" || gotQuery["limit"][0] != "16" || gotQuery["fixed"][0] != "1" {
		t.Fatalf("query = %v", gotQuery)
	}
}

func TestClientFetchDoesNotInterpretStatus(t *testing.T) {
	c, transport := newTestClient(t, 0)
	transport.RegisterResponder("GET", "http://example.test/product",
		httpmock.NewStringResponder(http.StatusInternalServerError, "<html>oops</html>"))

	resp, err := c.Fetch(context.Background(), "http://example.test/product", nil)
	if err != nil {
		t.Fatalf("fetch should not fail on status, got %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(resp.Body) != "<html>oops</html>" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestClientFetchTransportError(t *testing.T) {
	c, transport := newTestClient(t, 0)
	transport.RegisterResponder("GET", "http://example.test/down",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := c.Fetch(context.Background(), "http://example.test/down", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if got := ErrorTypeLabel(err); got != "connection" {
		t.Fatalf("label = %q, want connection", got)
	}
}

func TestClientFetchCanceledContext(t *testing.T) {
	c, transport := newTestClient(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Fetch(ctx, "http://example.test/any", nil); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("canceled fetch should not reach the transport")
	}
}

func TestClientFetchRejectsRelativeURL(t *testing.T) {
	c, _ := newTestClient(t, 0)
	if _, err := c.Fetch(context.Background(), "/relative/path", nil); err == nil {
		t.Fatalf("expected error for URL without host")
	}
}

func TestClientCacheServesRepeatedFetch(t *testing.T) {
	c, transport := newTestClient(t, 4)
	transport.RegisterResponder("GET", "http://example.test/product",
		httpmock.NewStringResponder(http.StatusOK, "page"))

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background(), "http://example.test/product", nil); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1", got)
	}
	if got := testutil.ToFloat64(c.Metrics.CacheHitsTotal); got != 2 {
		t.Fatalf("cache hits = %v, want 2", got)
	}
}

func TestClientCacheSkipsErrorStatus(t *testing.T) {
	c, transport := newTestClient(t, 4)
	transport.RegisterResponder("GET", "http://example.test/flaky",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), "http://example.test/flaky", nil); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Fatalf("transport calls = %d, want 2", got)
	}
}

func TestErrorTypeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: classifyError(context.DeadlineExceeded), expected: "timeout"},
		{name: "net timeout", err: classifyError(&net.DNSError{IsTimeout: true}), expected: "timeout"},
		{name: "connection", err: classifyError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), expected: "connection"},
		{name: "transport", err: &TransportError{URL: "http://x", Err: errors.New("eof")}, expected: "transport"},
		{name: "extraction", err: &ExtractionError{Stage: "product", Field: "price", Err: errors.New("missing")}, expected: "extraction"},
		{name: "wrapped extraction", err: fmt.Errorf("wollplatz: %w", &ExtractionError{Stage: "search", Field: "payload", Err: errors.New("x")}), expected: "extraction"},
		{name: "panic", err: fmt.Errorf("%w: boom", ErrScraperPanic), expected: "panic"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("ErrorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestResultConstructors(t *testing.T) {
	if NotFound().Found {
		t.Fatalf("NotFound should not be found")
	}
	if !Found(NotFound().Info).Found {
		t.Fatalf("Found should be found")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncRequest("started")
	m.IncCacheHit()
	m.IncScrape("Wollplatz", "found")
	m.IncError("other")
}
