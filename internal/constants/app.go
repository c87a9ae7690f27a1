package constants

import (
	"time"
)

// Signing protocol literals
const (
	// SigningAlgorithm is the algorithm identifier placed in X-Amz-Algorithm,
	// the Authorization header and the first line of the string-to-sign.
	SigningAlgorithm = "AWS4-HMAC-SHA256"

	// UnsignedPayload marks the payload as excluded from the signature.
	// Only body-less GET/HEAD requests are issued, so this is always used.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// SigningService is the service component of the credential scope.
	SigningService = "s3"

	// ScopeTerminator closes every credential scope.
	ScopeTerminator = "aws4_request"
)

// Storage defaults
const (
	// DefaultRegion is used when neither config nor environment names a region.
	DefaultRegion = "us-east-1"

	// DefaultContentType is reported when the response has no Content-Type.
	// The documents served through this client are PDFs.
	DefaultContentType = "application/pdf"

	// ConnectionTestObject is the sentinel key probed by the connection tester.
	// It does not need to exist: a 404 proves the bucket and credentials work.
	ConnectionTestObject = "s3fetch-connection-test"
)

// Presigned URL lifetimes
const (
	// DefaultPresignTTL - lifetime of presigned download URLs (1 hour)
	DefaultPresignTTL = 3600 * time.Second

	// ProbePresignTTL - lifetime of presigned URLs used by connection probes (60s)
	ProbePresignTTL = 60 * time.Second

	// MaxPresignTTL - longest lifetime S3 accepts for SigV4 presigned URLs (7 days)
	MaxPresignTTL = 7 * 24 * time.Hour
)

// Retry configuration
const (
	// MaxAttempts - total attempts (first try included) per fetch on transport failure
	MaxAttempts = 3

	// RetryBackoffStep - linear backoff unit; the wait after attempt n is n * step
	RetryBackoffStep = 1 * time.Second

	// DefaultRequestBurst - requests sent back to back before pacing applies
	DefaultRequestBurst = 10
)

// HTTP transport timeouts
const (
	// HTTPRequestTimeout - per-request timeout enforced by the transport (120s)
	HTTPRequestTimeout = 120 * time.Second

	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive interval
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle pooled connections are kept
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - extended for slow networks
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - for HTTP 100-continue
	HTTPExpectContinueTimeout = 1 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// UI Updates
const (
	// ProgressUpdateInterval - refresh interval for multi-bar progress output (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond
)
