// Package scraper defines the platform scraper contract and the HTTP client it fetches through.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-wools/config"
	"github.com/aluiziolira/go-scrape-wools/models"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// WoolScraper is implemented once per supported platform.
//
// A search with zero matches yields NotFound and a nil error. Every other
// failure is returned as an error so callers can tell "no such product"
// apart from "could not determine the answer".
type WoolScraper interface {
	ScrapeWoolInfo(ctx context.Context, query models.ProductQuery) (Result, error)
}

// Result is the outcome of a successful scraper invocation.
type Result struct {
	Found bool
	Info  models.ProductInfo
}

// Found wraps a scraped record.
func Found(info models.ProductInfo) Result {
	return Result{Found: true, Info: info}
}

// NotFound reports that the platform has no matching product.
func NotFound() Result {
	return Result{}
}

// Response is a fetched document.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher issues a GET for rawURL with params merged into its query string.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error)
}

// Client is the colly backed Fetcher. Requests are issued one at a time.
type Client struct {
	collector *colly.Collector
	cache     *lru.Cache[string, *Response]
	Metrics   *Metrics
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	c := &Client{
		collector: collector,
		Metrics:   NewMetrics(),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *Response](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// WithTransport replaces the HTTP transport of the underlying collector.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Fetch implements Fetcher. Status codes are logged but not interpreted.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{URL: rawURL, Err: classifyError(err)}
	}

	target, err := buildURL(rawURL, params)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(target); ok {
			c.Metrics.IncCacheHit()
			slog.Debug("response cache hit", slog.String("url", target))
			return cached, nil
		}
	}

	collector := c.collector.Clone()
	var resp *Response

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		c.Metrics.IncRequest("started")
	})

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= http.StatusBadRequest {
			slog.Warn("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		body := make([]byte, len(r.Body))
		copy(body, r.Body)
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       body,
		}
	})

	if err := collector.Visit(target); err != nil {
		c.Metrics.IncRequest("failed")
		return nil, &TransportError{URL: target, Err: classifyError(err)}
	}
	if resp == nil {
		c.Metrics.IncRequest("failed")
		return nil, &TransportError{URL: target, Err: fmt.Errorf("no response received")}
	}
	c.Metrics.IncRequest("completed")

	if c.cache != nil && resp.StatusCode < http.StatusMultipleChoices {
		c.cache.Add(target, resp)
	}
	return resp, nil
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q must include a host", rawURL)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
