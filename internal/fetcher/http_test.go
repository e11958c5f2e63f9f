package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const communesCSV = "code_insee,pct_fibre,nb_locaux\n01004,95.5,8123\n"

func quickFetcher(retries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "fibre-map-test",
		Timeout:     5 * time.Second,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
		RatePerSec:  1000,
	})
}

func TestDownload_SendsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fibre-map-test", r.Header.Get("User-Agent"))
		io.WriteString(w, communesCSV) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := quickFetcher(3).Download(context.Background(), srv.URL+"/fibre_data.csv")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, communesCSV, string(data))
}

func TestDownloadToFile_WritesCompleteFile(t *testing.T) {
	const collection = `{"type":"FeatureCollection","features":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, collection) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "communes.geojson")
	n, err := quickFetcher(3).DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(collection)), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, collection, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no .part file left behind")
}

func TestDownloadToFile_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		io.WriteString(w, `{"type":"Feature`) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "communes.geojson")
	_, err := quickFetcher(1).DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)

	assert.NoFileExists(t, path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadToFile_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "communes.geojson")
	_, err := quickFetcher(3).DownloadToFile(context.Background(), srv.URL, path)
	require.Error(t, err)
	assert.NoFileExists(t, path)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestDownload_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, communesCSV) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := quickFetcher(3).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_GivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := quickFetcher(2).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
	assert.Equal(t, int32(2), attempts.Load())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestDownload_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := quickFetcher(3).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 403 from")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_HonoursRetryAfter(t *testing.T) {
	var first time.Time
	var gap time.Duration
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap = time.Since(first)
		io.WriteString(w, communesCSV) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := quickFetcher(2).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()
	assert.GreaterOrEqual(t, gap, 900*time.Millisecond)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"0", 0},
		{"-5", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{strconv.Itoa(3600), maxBackoff},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("Retry-After", tt.header)
		assert.Equal(t, tt.want, retryAfter(resp), tt.header)
	}
}

func TestBackoff_Bounds(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{BackoffBase: 100 * time.Millisecond})
	for attempt := 1; attempt <= 3; attempt++ {
		base := 100 * time.Millisecond << (attempt - 1)
		d := f.backoff(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2+time.Millisecond)
	}
	assert.Equal(t, maxBackoff, f.backoff(20))
}

func TestLimiter_OnePerHost(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{RatePerSec: 7})
	a := f.limiter("https://raw.githubusercontent.com/owner/repo/main/communes.geojson")
	b := f.limiter("https://raw.githubusercontent.com/owner/repo/main/fibre_data.csv")
	c := f.limiter("https://www.data.gouv.fr/fr/datasets/r/abc")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.InDelta(t, 7.0, float64(a.Limit()), 0.001)
	assert.Equal(t, 7, a.Burst())
	assert.NotNil(t, f.limiter("://bad"))
}

func TestDownload_RateLimited(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 1, RatePerSec: 2})
	for range 4 {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		body.Close()
	}

	require.Len(t, stamps, 4)
	assert.GreaterOrEqual(t, stamps[3].Sub(stamps[0]), 400*time.Millisecond)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"ok", http.StatusOK},
		{"missing", http.StatusNotFound},
		{"down", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				assert.Equal(t, http.MethodHead, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got, err := quickFetcher(3).Probe(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got)
			assert.Equal(t, int32(1), attempts.Load())
		})
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := quickFetcher(3).Probe(context.Background(), addr)
	assert.Error(t, err)
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{MaxRetries: -1})
	assert.Equal(t, HTTPOptions{
		UserAgent:   "fibre-map/1.0",
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
		RatePerSec:  20,
	}, f.opts)
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quickFetcher(3).Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"reset", &url.Error{Op: "Get", URL: "https://x", Err: &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}}, true},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"cut short", &url.Error{Op: "Get", URL: "https://x", Err: io.ErrUnexpectedEOF}, true},
		{"temporary dns", &net.DNSError{Err: "server misbehaving", Name: "raw.githubusercontent.com", IsTemporary: true}, true},
		{"unknown host", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, false},
		{"bad scheme", errors.New("unsupported protocol scheme"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, retryableStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, retryableStatus(code), code)
	}
}

func TestDownload_RetriesRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := quickFetcher(2).Download(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up after 2 attempts")
}
