package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/uptime-monitor/internal/circuitbreaker"
	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
	"github.com/angeloszaimis/uptime-monitor/internal/metrics"
)

const (
	DefaultPath         = "/proxy"
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultMaxBodyBytes = 10 << 20
	DefaultBreakerLimit = 5
	DefaultCooldown     = 30 * time.Second
	defaultContentType  = "text/html"
)

// ErrCircuitOpen is wrapped in an UpstreamError when a host has failed too
// often and is cooling down.
var ErrCircuitOpen = errors.New("upstream host is failing, retry later")

// UpstreamError reports that the target could not be fetched.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Page is a fetched and rewritten document. UpstreamStatus is informational;
// the proxy serves the body whatever the upstream status was.
type Page struct {
	ContentType    string
	Body           []byte
	UpstreamStatus int
}

type Options struct {
	Path         string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64

	// BreakerThreshold consecutive fetch failures open a host's breaker for
	// BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Proxy struct {
	client    *http.Client
	opts      Options
	breakers  *circuitbreaker.Registry
	logger    *slog.Logger
	collector *metrics.Collector
}

// New creates a proxy. Zero options take their defaults; client and collector
// may be nil.
func New(client *http.Client, opts Options, logger *slog.Logger, collector *metrics.Collector) *Proxy {
	if client == nil {
		client = &http.Client{}
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = DefaultBreakerLimit
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Proxy{
		client:    client,
		opts:      opts,
		breakers:  circuitbreaker.NewRegistry(opts.BreakerThreshold, opts.BreakerCooldown),
		logger:    logger,
		collector: collector,
	}
}

// FetchAndRewrite GETs target and, for HTML responses, rewrites relative links
// through the proxy and injects a base element. Other content types are
// returned untouched. An invalid target yields a *healthcheck.ValidationError;
// a failed fetch yields an *UpstreamError.
func (p *Proxy) FetchAndRewrite(ctx context.Context, target string) (*Page, error) {
	if err := healthcheck.ValidateTarget(target); err != nil {
		return nil, err
	}
	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, &UpstreamError{URL: target, Err: err}
	}

	breaker := p.breakers.Get(targetURL.Host)
	if !breaker.Allow() {
		return nil, &UpstreamError{URL: target, Err: ErrCircuitOpen}
	}

	start := time.Now()
	page, err := p.fetch(ctx, target)
	switch {
	case err != nil && ctx.Err() != nil:
		// The caller went away; says nothing about the upstream.
		breaker.Release()
	case err != nil:
		if breaker.RecordFailure() {
			p.logger.Warn("Upstream breaker opened",
				slog.String("host", targetURL.Host),
				slog.Duration("cooldown", p.opts.BreakerCooldown))
		}
	default:
		breaker.RecordSuccess()
	}

	event := metrics.MetricEvent{
		Type:      metrics.EventProxyFetched,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Failed:    err != nil,
	}
	if page != nil {
		event.StatusCode = page.UpstreamStatus
	}
	p.collector.Emit(event)

	if err != nil {
		p.logger.Warn("Proxy fetch failed",
			slog.String("url", target),
			slog.String("error", err.Error()))
		return nil, err
	}

	if isHTML(page.ContentType) {
		body := Rewrite(string(page.Body), targetURL, p.opts.Path)
		body = InjectBase(body, target)
		page.Body = []byte(body)
	}

	p.logger.Debug("Proxied page",
		slog.String("url", target),
		slog.Int("upstream_status", page.UpstreamStatus),
		slog.String("content_type", page.ContentType),
		slog.Int("bytes", len(page.Body)))

	return page, nil
}

func (p *Proxy) fetch(ctx context.Context, target string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &UpstreamError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &UpstreamError{URL: target, Err: err}
	}
	if int64(len(body)) > p.opts.MaxBodyBytes {
		return nil, &UpstreamError{
			URL: target,
			Err: fmt.Errorf("response body exceeds %d bytes", p.opts.MaxBodyBytes),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &Page{
		ContentType:    contentType,
		Body:           body,
		UpstreamStatus: resp.StatusCode,
	}, nil
}

// Breakers reports the breaker state of every upstream host fetched so far.
func (p *Proxy) Breakers() map[string]circuitbreaker.State {
	return p.breakers.States()
}

// Path is the path the proxy is mounted on.
func (p *Proxy) Path() string {
	return p.opts.Path
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// AllowFraming overrides any framing restriction so the response can be
// embedded by the dashboard.
func AllowFraming(h http.Header) {
	h.Set("X-Frame-Options", "ALLOWALL")
	h.Set("Content-Security-Policy", "frame-ancestors *")
}
