package fetcher

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBackoff = 30 * time.Second

// HTTPOptions configures the HTTP fetcher. Zero values take the defaults
// applied by NewHTTPFetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	RatePerSec  float64
}

// StatusError is returned when a dataset host answers with a non-200 status
// that is not worth retrying, or keeps answering with a transient one.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return "http " + strconv.Itoa(e.Code) + " from " + e.URL
}

// HTTPFetcher downloads datasets with bounded retries and one rate limiter
// per host.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "fibre-map/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:  opts,
		hosts: make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(rawURL string) *rate.Limiter {
	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.hosts[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(f.opts.RatePerSec), int(math.Max(1, math.Ceil(f.opts.RatePerSec))))
	f.hosts[host] = lim
	return lim
}

func (f *HTTPFetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: build %s request", method)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	return req, nil
}

// get issues a GET for rawURL and returns a 200 response. Network errors
// and transient statuses are retried up to MaxRetries attempts in total.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	lim := f.limiter(rawURL)
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxRetries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil || !retryable(err) {
				return nil, eris.Wrap(err, "fetcher: request")
			}
			lastErr = err
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case retryableStatus(resp.StatusCode):
			wait = retryAfter(resp)
			_ = resp.Body.Close()
			lastErr = &StatusError{URL: rawURL, Code: resp.StatusCode}
		default:
			_ = resp.Body.Close()
			return nil, eris.Wrap(&StatusError{URL: rawURL, Code: resp.StatusCode}, "fetcher: unexpected status")
		}

		if attempt == f.opts.MaxRetries {
			break
		}
		if wait == 0 {
			wait = f.backoff(attempt)
		}
		log.Warn("fetcher: retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
		if err := sleep(ctx, wait); err != nil {
			return nil, eris.Wrap(err, "fetcher: retry wait")
		}
	}
	return nil, eris.Wrapf(lastErr, "fetcher: gave up after %d attempts", f.opts.MaxRetries)
}

// retryable reports whether a failed attempt may succeed on the next one:
// timeouts, temporary DNS failures, refused or reset connections, and bodies
// cut short by the peer.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// retryableStatus lists the statuses a dataset host returns while it is
// overloaded or restarting.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// backoff is exponential in attempt with up to 50% jitter, capped at maxBackoff.
func (f *HTTPFetcher) backoff(attempt int) time.Duration {
	d := time.Duration(float64(f.opts.BackoffBase) * math.Pow(2, float64(attempt-1)))
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return min(d, maxBackoff)
}

// retryAfter reads a Retry-After header given in seconds. Dates and values
// beyond maxBackoff are ignored.
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Download fetches rawURL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadToFile fetches rawURL into path. The body is written to a
// sibling temp file and renamed into place once complete, so path never
// holds a partial dataset. A body shorter than the announced
// Content-Length is an error.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write body")
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, eris.Errorf("fetcher: truncated body from %s: got %d of %d bytes", rawURL, n, resp.ContentLength)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: move download into place")
	}

	zap.L().Debug("fetcher: downloaded", zap.String("url", rawURL), zap.String("path", path), zap.Int64("bytes", n))
	return n, nil
}

// Probe sends one HEAD request and returns the status code. It is not
// retried; a non-2xx status is reported, not treated as an error.
func (f *HTTPFetcher) Probe(ctx context.Context, rawURL string) (int, error) {
	req, err := f.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return 0, err
	}
	if err := f.limiter(rawURL).Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "fetcher: rate limit")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: head request")
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
