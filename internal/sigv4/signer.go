package sigv4

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rescale/s3fetch/internal/constants"
)

// SigV4 query parameter and header names.
const (
	AmzAlgorithmKey     = "X-Amz-Algorithm"
	AmzCredentialKey    = "X-Amz-Credential"
	AmzDateKey          = "X-Amz-Date"
	AmzExpiresKey       = "X-Amz-Expires"
	AmzSignedHeadersKey = "X-Amz-SignedHeaders"
	AmzSignatureKey     = "X-Amz-Signature"
	AmzSecurityTokenKey = "X-Amz-Security-Token"
	ContentSHAKey       = "X-Amz-Content-Sha256"
	ChecksumModeKey     = "X-Amz-Checksum-Mode"
	AuthorizationHeader = "Authorization"
)

// Signer produces presigned URLs and signed header sets for single objects.
// It holds no mutable state and is safe for concurrent use.
type Signer struct {
	endpoint Endpoint
	now      Clock
}

// Option configures a Signer.
type Option func(*Signer)

// WithEndpoint targets an S3-compatible endpoint instead of AWS.
func WithEndpoint(e Endpoint) Option {
	return func(s *Signer) {
		s.endpoint = e
	}
}

// WithClock replaces the wall clock, for deterministic signatures in tests.
func WithClock(c Clock) Option {
	return func(s *Signer) {
		if c != nil {
			s.now = c
		}
	}
}

// NewSigner creates a Signer for AWS unless WithEndpoint says otherwise.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignedRequest is a request ready to send: the URL and any headers that
// must accompany it.
type SignedRequest struct {
	Method string
	URL    string
	Header http.Header
}

// ObjectURL returns the unsigned URL of an object.
func (s *Signer) ObjectURL(region string, loc Locator) string {
	scheme, host, path := s.endpoint.target(region, loc.Bucket, EncodeKey(loc.Key))
	return scheme + "://" + host + path
}

// BucketURL returns the unsigned URL of a bucket root.
func (s *Signer) BucketURL(region, bucket string) string {
	scheme, host, path := s.endpoint.target(region, bucket, "")
	return scheme + "://" + host + path
}

// PresignURL returns a self-authenticating GET URL valid for ttl. A ttl of
// zero or less means constants.DefaultPresignTTL. Expiry is not checked
// locally; an expired URL fails only when the server rejects it.
func (s *Signer) PresignURL(creds Credentials, loc Locator, ttl time.Duration) (string, error) {
	return s.Presign(http.MethodGet, creds, loc, ttl)
}

// Presign is PresignURL for an arbitrary method. The method is part of the
// signature, so a GET URL cannot be replayed as HEAD.
func (s *Signer) Presign(method string, creds Credentials, loc Locator, ttl time.Duration) (string, error) {
	req, err := s.PresignRequest(method, creds, loc, ttl, nil)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PresignRequest is Presign with extra headers added to the signed set.
// The returned request carries them in Header; they must be sent verbatim.
func (s *Signer) PresignRequest(method string, creds Credentials, loc Locator, ttl time.Duration, extra http.Header) (*SignedRequest, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if err := loc.validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = constants.DefaultPresignTTL
	}
	if ttl > constants.MaxPresignTTL {
		return nil, ErrInvalidExpiry
	}

	region := creds.region()
	sc := NewSigningContext(s.now(), region)
	scheme, host, path := s.endpoint.target(region, loc.Bucket, EncodeKey(loc.Key))

	signed := map[string]string{"host": host}
	addHeaders(signed, extra)

	req := CanonicalRequest{
		Method:      method,
		URI:         path,
		Headers:     signed,
		PayloadHash: constants.UnsignedPayload,
	}
	req.Query = map[string]string{
		AmzAlgorithmKey:     constants.SigningAlgorithm,
		AmzCredentialKey:    sc.credential(creds.AccessKey),
		AmzDateKey:          sc.Compact,
		AmzExpiresKey:       strconv.FormatInt(int64(ttl/time.Second), 10),
		AmzSignedHeadersKey: req.SignedHeaders(),
	}
	if creds.SessionToken != "" {
		req.Query[AmzSecurityTokenKey] = creds.SessionToken
	}
	signature := sign(creds.SecretKey, sc, req)

	return &SignedRequest{
		Method: method,
		URL: scheme + "://" + host + path + "?" + req.CanonicalQuery() +
			"&" + AmzSignatureKey + "=" + signature,
		Header: extra.Clone(),
	}, nil
}

// SignHeaders signs a request for loc with host and x-amz-date in the
// signed set and returns the Authorization, X-Amz-Date and
// X-Amz-Content-Sha256 headers to send with the plain object URL.
func (s *Signer) SignHeaders(method string, creds Credentials, loc Locator) (*SignedRequest, error) {
	return s.SignHeadersWith(method, creds, loc, nil)
}

// SignHeadersWith is SignHeaders with extra headers added to the signed set
// and to the returned Header.
func (s *Signer) SignHeadersWith(method string, creds Credentials, loc Locator, extra http.Header) (*SignedRequest, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if err := loc.validate(); err != nil {
		return nil, err
	}

	region := creds.region()
	sc := NewSigningContext(s.now(), region)
	scheme, host, path := s.endpoint.target(region, loc.Bucket, EncodeKey(loc.Key))

	signed := map[string]string{
		"host":       host,
		"x-amz-date": sc.Compact,
	}
	if creds.SessionToken != "" {
		signed["x-amz-security-token"] = creds.SessionToken
	}
	addHeaders(signed, extra)

	req := CanonicalRequest{
		Method:      method,
		URI:         path,
		Headers:     signed,
		PayloadHash: constants.UnsignedPayload,
	}
	signature := sign(creds.SecretKey, sc, req)

	header := extra.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(AuthorizationHeader, constants.SigningAlgorithm+
		" Credential="+sc.credential(creds.AccessKey)+
		", SignedHeaders="+req.SignedHeaders()+
		", Signature="+signature)
	header.Set(AmzDateKey, sc.Compact)
	header.Set(ContentSHAKey, constants.UnsignedPayload)
	if creds.SessionToken != "" {
		header.Set(AmzSecurityTokenKey, creds.SessionToken)
	}

	return &SignedRequest{
		Method: method,
		URL:    scheme + "://" + host + path,
		Header: header,
	}, nil
}

// addHeaders copies extra into a signed header set under lower-cased names.
func addHeaders(signed map[string]string, extra http.Header) {
	for name := range extra {
		signed[strings.ToLower(name)] = extra.Get(name)
	}
}
