package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultUserAgent      = "UptimeMonitor/1.0"
	DefaultImageThreshold = 5 * time.Second
)

// ResponseHeaders holds the response headers worth showing next to a status.
type ResponseHeaders struct {
	ContentType string `json:"contentType,omitempty"`
	Server      string `json:"server,omitempty"`
}

// Outcome is the result of one probe. ResponseTimeMs is nil when no timing
// could be taken, which only happens for outcomes built outside Probe.
type Outcome struct {
	EndpointID     int              `json:"endpointId,omitempty"`
	Status         Status           `json:"status"`
	StatusCode     int              `json:"statusCode,omitempty"`
	StatusText     string           `json:"statusText,omitempty"`
	ResponseTimeMs *int64           `json:"responseTime,omitempty"`
	CheckedAt      time.Time        `json:"timestamp"`
	Error          string           `json:"error,omitempty"`
	ErrorType      string           `json:"errorType,omitempty"`
	Method         Method           `json:"method,omitempty"`
	Headers        *ResponseHeaders `json:"headers,omitempty"`
}

// AttemptFunc issues one request against target. Any returned response is
// taken as proof that the target answered.
type AttemptFunc func(ctx context.Context, client *http.Client, target, userAgent string) (*http.Response, error)

type Attempt struct {
	Method Method
	Do     AttemptFunc
}

// HeadAttempt sends a HEAD request.
func HeadAttempt() Attempt {
	return Attempt{Method: MethodHead, Do: requestAttempt(http.MethodHead)}
}

// GetAttempt sends a full GET, for servers that reject HEAD.
func GetAttempt() Attempt {
	return Attempt{Method: MethodGet, Do: requestAttempt(http.MethodGet)}
}

// ImageAttempt fetches /favicon.ico from the target's origin and gives up
// after threshold, even when the shared probe deadline is further away.
func ImageAttempt(threshold time.Duration) Attempt {
	if threshold <= 0 {
		threshold = DefaultImageThreshold
	}
	get := requestAttempt(http.MethodGet)

	return Attempt{
		Method: MethodImage,
		Do: func(ctx context.Context, client *http.Client, target, userAgent string) (*http.Response, error) {
			u, err := url.Parse(target)
			if err != nil {
				return nil, err
			}
			favicon := u.ResolveReference(&url.URL{Path: "/favicon.ico"})

			ctx, cancel := context.WithTimeout(ctx, threshold)
			defer cancel()

			resp, err := get(ctx, client, favicon.String(), userAgent)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	}
}

// DefaultAttempts is HEAD followed by GET.
func DefaultAttempts() []Attempt {
	return []Attempt{HeadAttempt(), GetAttempt()}
}

func requestAttempt(method string) AttemptFunc {
	return func(ctx context.Context, client *http.Client, target, userAgent string) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "*/*")

		return client.Do(req)
	}
}

// Prober checks the reachability of a single URL.
type Prober struct {
	client    *http.Client
	userAgent string
	attempts  []Attempt
	logger    *slog.Logger
}

// NewProber creates a prober. A nil client means a fresh http.Client with no
// client-level timeout; the per-probe deadline bounds every request. When no
// attempts are given DefaultAttempts is used.
func NewProber(client *http.Client, userAgent string, logger *slog.Logger, attempts ...Attempt) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if len(attempts) == 0 {
		attempts = DefaultAttempts()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		client:    client,
		userAgent: userAgent,
		attempts:  attempts,
		logger:    logger,
	}
}

// Probe checks target and classifies the result. The returned error is non-nil
// only when target is not a valid http(s) URL; an unreachable target yields a
// nil error and an Outcome describing the failure. All attempts share a single
// deadline of timeout (DefaultTimeout when timeout <= 0).
func (p *Prober) Probe(ctx context.Context, target string, timeout time.Duration) (Outcome, error) {
	if err := ValidateTarget(target); err != nil {
		return Outcome{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	lastMethod := p.attempts[0].Method

	for _, attempt := range p.attempts {
		if ctx.Err() != nil {
			break
		}
		lastMethod = attempt.Method

		resp, err := attempt.Do(ctx, p.client, target, p.userAgent)
		if err != nil {
			p.logger.Debug("Probe attempt failed",
				slog.String("url", target),
				slog.String("method", string(attempt.Method)),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		resp.Body.Close()

		return fromResponse(resp, attempt.Method, start), nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}

	elapsed := time.Since(start).Milliseconds()
	return Outcome{
		Status:         Classify(lastErr),
		ResponseTimeMs: &elapsed,
		CheckedAt:      time.Now().UTC(),
		Error:          lastErr.Error(),
		ErrorType:      errorType(lastErr),
		Method:         lastMethod,
	}, nil
}

func fromResponse(resp *http.Response, method Method, start time.Time) Outcome {
	elapsed := time.Since(start).Milliseconds()

	status := StatusOffline
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = StatusOnline
	}

	out := Outcome{
		Status:         status,
		StatusCode:     resp.StatusCode,
		StatusText:     statusText(resp),
		ResponseTimeMs: &elapsed,
		CheckedAt:      time.Now().UTC(),
		Method:         method,
	}

	contentType := resp.Header.Get("Content-Type")
	server := resp.Header.Get("Server")
	if contentType != "" || server != "" {
		out.Headers = &ResponseHeaders{ContentType: contentType, Server: server}
	}

	return out
}

func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != resp.Status && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// Classify maps a transport error to a Status. Errors that match no known
// signature are reported as offline.
func Classify(err error) Status {
	if err == nil {
		return StatusOnline
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return StatusTimeout
		}
		return StatusDNSError
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusConnectionRefused
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}

	return StatusOffline
}

func errorType(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	return fmt.Sprintf("%T", err)
}
