// Package conntest checks whether credentials, network path and bucket are
// usable without downloading any content.
package conntest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rescale/s3fetch/internal/cloud/storage"
	"github.com/rescale/s3fetch/internal/constants"
	"github.com/rescale/s3fetch/internal/logging"
	"github.com/rescale/s3fetch/internal/sigv4"
)

// Messages reported by Test.
const (
	MsgCredentialsValid = "credentials valid"
	MsgSetupValid       = "setup valid"
	MsgAllFailed        = "all connection test methods failed"
)

// Probe names
const (
	ProbePresignedHead = "presigned-head"
	ProbeBucketHead    = "bucket-head"
)

// ProbeResult records the outcome of one probe.
type ProbeResult struct {
	Name       string
	OK         bool
	StatusCode int    // 0 when no response was received
	Kind       string // failure kind, empty on success
	Err        error
}

// Diagnostic is the result of a connection test.
type Diagnostic struct {
	OK      bool
	Message string
	Probes  []ProbeResult
}

// Recorder receives probe outcomes. *metrics.Metrics implements it.
type Recorder interface {
	ObserveProbe(probe string, ok bool)
}

// Tester runs the connection probes.
type Tester struct {
	signer  *sigv4.Signer
	fetcher storage.Fetcher
	logger  *logging.Logger
	metrics Recorder
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Tester) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics reports probe outcomes to r.
func WithMetrics(r Recorder) Option {
	return func(t *Tester) {
		t.metrics = r
	}
}

// New creates a Tester.
func New(signer *sigv4.Signer, fetcher storage.Fetcher, opts ...Option) *Tester {
	t := &Tester{signer: signer, fetcher: fetcher, logger: logging.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Test runs the probes in order and stops at the first success. It never
// returns an error; every failure is described in the Diagnostic.
//
//  1. HEAD on a presigned URL for a sentinel object: 200 or 404 proves
//     the credentials are accepted for the bucket.
//  2. Unsigned HEAD on the bucket root: 200 or 403 proves DNS, routing
//     and region are right even if the credentials are not. A 403 here
//     does not count when probe 1 was itself refused with 403.
func (t *Tester) Test(ctx context.Context, creds sigv4.Credentials, bucket string) Diagnostic {
	var diag Diagnostic

	probes := []struct {
		name    string
		run     func(context.Context, sigv4.Credentials, string) ProbeResult
		message string
	}{
		{ProbePresignedHead, t.presignedHead, MsgCredentialsValid},
		{ProbeBucketHead, t.bucketHead, MsgSetupValid},
	}

	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			diag.Message = fmt.Sprintf("connection test cancelled: %v", err)
			return diag
		}

		res := p.run(ctx, creds, bucket)
		if res.OK && res.StatusCode == http.StatusForbidden && deniedEarlier(diag.Probes) {
			// The network path was already proven by the signed probe's
			// 403; an unsigned 403 adds nothing and the credentials failed.
			res.OK = false
			res.Kind = storage.KindAuthorization.String()
			res.Err = &storage.FetchError{Kind: storage.KindAuthorization, StatusCode: http.StatusForbidden}
		}
		diag.Probes = append(diag.Probes, res)
		if t.metrics != nil {
			t.metrics.ObserveProbe(p.name, res.OK)
		}

		ev := t.logger.Debug().Str("probe", p.name).Bool("ok", res.OK).Int("status", res.StatusCode)
		if res.Err != nil {
			ev = ev.Err(res.Err)
		}
		ev.Msg("Connection probe finished")

		if res.OK {
			diag.OK = true
			diag.Message = p.message
			return diag
		}
	}

	diag.Message = MsgAllFailed
	return diag
}

func deniedEarlier(probes []ProbeResult) bool {
	for _, p := range probes {
		if p.StatusCode == http.StatusForbidden {
			return true
		}
	}
	return false
}

func (t *Tester) presignedHead(ctx context.Context, creds sigv4.Credentials, bucket string) ProbeResult {
	res := ProbeResult{Name: ProbePresignedHead}

	loc := sigv4.Locator{Bucket: bucket, Key: constants.ConnectionTestObject}
	u, err := t.signer.Presign(http.MethodHead, creds, loc, constants.ProbePresignTTL)
	if err != nil {
		res.Err = err
		return res
	}

	return t.head(ctx, res, u, http.StatusOK, http.StatusNotFound)
}

func (t *Tester) bucketHead(ctx context.Context, creds sigv4.Credentials, bucket string) ProbeResult {
	res := ProbeResult{Name: ProbeBucketHead}
	if bucket == "" {
		res.Err = sigv4.ErrMissingBucket
		return res
	}

	u := t.signer.BucketURL(creds.SigningRegion(), bucket)
	return t.head(ctx, res, u, http.StatusOK, http.StatusForbidden)
}

// head sends a HEAD to u and marks res OK when the status is one of ok.
func (t *Tester) head(ctx context.Context, res ProbeResult, u string, ok ...int) ProbeResult {
	resp, err := t.fetcher.Do(ctx, http.MethodHead, u, nil)
	if err != nil {
		res.Err = err
		if k, found := storage.KindOf(err); found {
			res.Kind = k.String()
		}
		return res
	}

	res.StatusCode = resp.StatusCode
	for _, code := range ok {
		if resp.StatusCode == code {
			resp.Body.Close()
			res.OK = true
			return res
		}
	}

	fe := storage.ClassifyResponse(resp)
	res.Kind = fe.Kind.String()
	res.Err = fe
	return res
}
