package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"RegIngest/internal/domain"
	"RegIngest/internal/ports"
)

// ErrBodyTooLarge is returned when a source exceeds the configured body limit.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

const (
	defaultUserAgent      = "RegIngest/1.0 (+regulatory-ingestion)"
	defaultAcceptLanguage = "en-GB,en;q=0.9"
	defaultMaxBodyBytes   = 32 << 20
)

// Options tunes the identity headers and limits of HTTPFetcher.
type Options struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MaxBodyBytes   int64
}

// HTTPFetcher downloads regulation pages. It never retries: a non-2xx answer
// usually means a bad URL or an unavailable source.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
	maxBodyBytes   int64
	logger         *slog.Logger
	now            func() time.Time
}

var _ ports.SourceFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets opts.Timeout (default 30s).
func NewHTTPFetcher(client *http.Client, opts Options, log *slog.Logger) *HTTPFetcher {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	f := &HTTPFetcher{
		client:         client,
		userAgent:      opts.UserAgent,
		acceptLanguage: opts.AcceptLanguage,
		maxBodyBytes:   opts.MaxBodyBytes,
		logger:         log,
		now:            time.Now,
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.acceptLanguage == "" {
		f.acceptLanguage = defaultAcceptLanguage
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = defaultMaxBodyBytes
	}
	return f
}

// Fetch performs a GET and returns the page body as a SourceDocument.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (domain.SourceDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.SourceDocument{}, &domain.FetchError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", f.acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.SourceDocument{}, &domain.FetchError{URL: url, Err: fmt.Errorf("request document: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.SourceDocument{}, &domain.FetchError{
			URL:        url,
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return domain.SourceDocument{}, &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return domain.SourceDocument{}, &domain.FetchError{
			URL: url,
			Err: fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, f.maxBodyBytes),
		}
	}

	f.debug("fetched source", "url", url, "bytes", len(body))

	return domain.SourceDocument{
		URL:       url,
		RawMarkup: string(body),
		FetchedAt: f.now().UTC(),
	}, nil
}

func (f *HTTPFetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
