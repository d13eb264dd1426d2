// Package source loads raw firm and point-of-sale exports from wherever they
// live: a local file, an HTTP(S) export URL or a Cloud Storage object.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrUnsupportedLocation = errors.New("unsupported source location")

// StatusError reports a non-2xx response from an HTTP source.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

func (e *StatusError) transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// ObjectOpener opens a Cloud Storage object for reading.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

type Options struct {
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
	Objects    ObjectOpener
	Logger     *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 32 << 20
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Fetcher struct {
	opts   Options
	logger *slog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	opts.setDefaults()
	return &Fetcher{
		opts:   opts,
		logger: opts.Logger.With("component", "source"),
	}
}

// Fetch returns the full contents at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrUnsupportedLocation)
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme, or a Windows drive letter.
		return f.readFile(location)
	}

	switch u.Scheme {
	case "file":
		return f.readFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, u.String())
	case "gs":
		return f.fetchObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedLocation, u.Scheme)
	}
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer fh.Close()
	return f.readAll(fh, path)
}

func (f *Fetcher) readAll(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("read %s: exceeds %d bytes", location, f.opts.MaxBytes)
	}
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	attempt := 0

	op := func() error {
		attempt++
		body, err := f.get(ctx, rawURL)
		if err == nil {
			data = body
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.transient() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: f.opts.Backoff}, uint64(f.opts.Retries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		f.logger.WarnContext(ctx, "source fetch failed, retrying",
			"url", rawURL,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ze-dashboard/1.0")

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return f.readAll(resp.Body, rawURL)
}

func (f *Fetcher) fetchObject(ctx context.Context, bucket, object string) ([]byte, error) {
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("%w: gs location needs bucket and object", ErrUnsupportedLocation)
	}
	if f.opts.Objects == nil {
		return nil, fmt.Errorf("%w: no Cloud Storage client configured", ErrUnsupportedLocation)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	r, err := f.opts.Objects.Open(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	return f.readAll(r, "gs://"+bucket+"/"+object)
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }
