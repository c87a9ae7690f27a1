// Package download fetches a single object through an ordered list of
// authentication strategies with fallback.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rescale/s3fetch/internal/cloud/storage"
	"github.com/rescale/s3fetch/internal/constants"
	"github.com/rescale/s3fetch/internal/logging"
	"github.com/rescale/s3fetch/internal/sigv4"
)

// ErrAllMethodsFailed is reported when every strategy failed without a
// concrete error to show.
var ErrAllMethodsFailed = errors.New("all download methods failed")

// ProgressFunc receives progress checkpoints. percent never decreases
// within one Download call. url is empty until a request URL is known.
type ProgressFunc func(percent int, message, url string)

// Recorder receives download metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveStrategy(strategy, result string)
	ObserveDownload(size int64, err error, dur time.Duration)
	ObserveWarning(kind string)
}

// Result is a downloaded object. It is not modified after Download returns.
type Result struct {
	Body        []byte
	ContentType string
	Size        int64
	// ResolvedURL is the URL the body came from. For the presigned strategy
	// it carries the signature query; it never contains the secret key.
	ResolvedURL string
	Strategy    Strategy
	Warnings    []Warning
}

// ExhaustedError is returned when no strategy succeeded.
type ExhaustedError struct {
	Attempted int
	Total     int
	Last      error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%v (tried %d of %d methods)", ErrAllMethodsFailed, e.Attempted, e.Total)
	}
	return fmt.Sprintf("download failed (tried %d of %d methods): %v", e.Attempted, e.Total, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return ErrAllMethodsFailed
	}
	return e.Last
}

// Downloader tries each strategy in Order until one returns the object.
// It holds no per-call state and is safe for concurrent use.
type Downloader struct {
	signer     *sigv4.Signer
	fetcher    storage.Fetcher
	logger     *logging.Logger
	metrics    Recorder
	presignTTL time.Duration
	order      []Strategy
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger. Each call logs with its own download_id.
func WithLogger(l *logging.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics reports strategy outcomes and sizes to r.
func WithMetrics(r Recorder) Option {
	return func(d *Downloader) {
		d.metrics = r
	}
}

// WithPresignTTL sets the lifetime of presigned download URLs.
func WithPresignTTL(ttl time.Duration) Option {
	return func(d *Downloader) {
		if ttl > 0 {
			d.presignTTL = ttl
		}
	}
}

// New creates a Downloader that signs with signer and sends through fetcher.
func New(signer *sigv4.Signer, fetcher storage.Fetcher, opts ...Option) *Downloader {
	d := &Downloader{
		signer:     signer,
		fetcher:    fetcher,
		logger:     logging.Nop(),
		presignTTL: constants.DefaultPresignTTL,
		order:      Order,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches loc, trying each strategy in order.
//
// An authorization failure is returned unchanged without trying the next
// strategy: both use the same credentials on the same object. Any other
// failure moves on to the next strategy, which signs afresh. When all
// strategies fail the result is an *ExhaustedError wrapping the last
// failure. Cancellation of ctx is returned as ctx.Err().
func (d *Downloader) Download(ctx context.Context, creds sigv4.Credentials, loc sigv4.Locator, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	log := d.logger.WithField("download_id", uuid.NewString())
	p := &progress{fn: onProgress}

	result, err := d.download(ctx, log, creds, loc, p)

	if d.metrics != nil {
		var size int64
		if result != nil {
			size = result.Size
		}
		d.metrics.ObserveDownload(size, err, time.Since(start))
	}
	if err != nil {
		log.Error().Err(err).Str("bucket", loc.Bucket).Str("key", loc.Key).Msg("Download failed")
	}
	return result, err
}

func (d *Downloader) download(ctx context.Context, log *logging.Logger, creds sigv4.Credentials, loc sigv4.Locator, p *progress) (*Result, error) {
	p.emit(0, "Initializing download", "")

	total := len(d.order)
	span := 90 / total
	attempted := 0
	var last error

	for i, s := range d.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++
		lo := 5 + i*span

		p.emit(lo, fmt.Sprintf("Signing request (%s)", s), "")
		req, err := dispatch[s](d, creds, loc)
		if err != nil {
			// Credentials and locator are shared by every strategy
			return nil, fmt.Errorf("failed to sign %s request: %w", s, err)
		}

		log.Debug().
			Str("strategy", s.String()).
			Str("url", logging.RedactURL(req.URL)).
			Msg("Sending request")
		p.emit(lo+span/3, fmt.Sprintf("Requesting object (%s)", s), req.URL)

		resp, err := d.fetcher.Do(ctx, req.Method, req.URL, req.Header)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			err = tagStrategy(err, s)
			d.observe(s, err)
			if storage.IsAuthorizationError(err) {
				return nil, err
			}
			log.Warn().Err(err).Str("strategy", s.String()).Msg("Strategy failed, trying next")
			last = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			fe := storage.ClassifyResponse(resp)
			fe.Strategy = s.String()
			fe.Attempts = 1
			d.observe(s, fe)
			if fe.Kind == storage.KindAuthorization {
				log.Error().Err(fe).Str("strategy", s.String()).Msg("Access denied, not trying other methods")
				return nil, fe
			}
			log.Warn().Err(fe).Str("strategy", s.String()).Msg("Strategy failed, trying next")
			last = fe
			continue
		}

		p.emit(lo+2*span/3, fmt.Sprintf("Receiving data (%s)", s), req.URL)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			fe := &storage.FetchError{Kind: storage.KindTransport, Strategy: s.String(), Attempts: 1, Err: err}
			d.observe(s, fe)
			log.Warn().Err(fe).Str("strategy", s.String()).Msg("Body read failed, trying next")
			last = fe
			continue
		}
		d.observe(s, nil)

		result := d.buildResult(s, req.URL, loc, resp.Header, body)
		for _, w := range result.Warnings {
			log.Warn().Str("kind", w.Kind).Str("key", loc.Key).Msg(w.String())
			if d.metrics != nil {
				d.metrics.ObserveWarning(w.Kind)
			}
		}

		log.Info().
			Str("strategy", s.String()).
			Int64("size", result.Size).
			Str("content_type", result.ContentType).
			Msg("Download complete")
		p.emit(100, "Download complete", req.URL)
		return result, nil
	}

	return nil, &ExhaustedError{Attempted: attempted, Total: total, Last: last}
}

func (d *Downloader) buildResult(s Strategy, resolvedURL string, loc sigv4.Locator, header http.Header, body []byte) *Result {
	rawType := header.Get("Content-Type")
	contentType := rawType
	if contentType == "" {
		contentType = constants.DefaultContentType
	}

	return &Result{
		Body:        body,
		ContentType: contentType,
		Size:        int64(len(body)),
		ResolvedURL: resolvedURL,
		Strategy:    s,
		Warnings:    validateContent(loc.Key, rawType, header, body),
	}
}

func (d *Downloader) observe(s Strategy, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if k, ok := storage.KindOf(err); ok {
			result = k.String()
		}
	}
	d.metrics.ObserveStrategy(s.String(), result)
}

// tagStrategy records which strategy produced a fetch error.
func tagStrategy(err error, s Strategy) error {
	var fe *storage.FetchError
	if errors.As(err, &fe) && fe.Strategy == "" {
		fe.Strategy = s.String()
	}
	return err
}

// progress forwards checkpoints to a ProgressFunc, never going backwards.
type progress struct {
	fn   ProgressFunc
	last int
}

func (p *progress) emit(percent int, message, url string) {
	if p.fn == nil {
		return
	}
	if percent < p.last {
		percent = p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.fn(percent, message, url)
}
