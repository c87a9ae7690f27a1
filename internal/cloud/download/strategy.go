package download

import (
	"net/http"

	"github.com/rescale/s3fetch/internal/sigv4"
)

// Strategy is an authentication transport for fetching an object.
type Strategy int

const (
	// StrategyPresigned sends a GET to a presigned URL; the query string
	// carries the signature.
	StrategyPresigned Strategy = iota
	// StrategyHeaderSigned sends a GET to the plain object URL with an
	// Authorization header. It survives proxies that strip query strings.
	StrategyHeaderSigned
)

// Order is the fixed order in which strategies are tried.
var Order = []Strategy{StrategyPresigned, StrategyHeaderSigned}

func (s Strategy) String() string {
	switch s {
	case StrategyPresigned:
		return "presigned"
	case StrategyHeaderSigned:
		return "header-signed"
	default:
		return "unknown"
	}
}

// checksumHeaders asks S3 to return the object's stored checksum so the
// body can be verified.
func checksumHeaders() http.Header {
	h := make(http.Header)
	h.Set(sigv4.ChecksumModeKey, "ENABLED")
	return h
}

// signFunc mints a fresh signed request for one strategy attempt.
type signFunc func(d *Downloader, creds sigv4.Credentials, loc sigv4.Locator) (*sigv4.SignedRequest, error)

var dispatch = map[Strategy]signFunc{
	StrategyPresigned: func(d *Downloader, creds sigv4.Credentials, loc sigv4.Locator) (*sigv4.SignedRequest, error) {
		return d.signer.PresignRequest(http.MethodGet, creds, loc, d.presignTTL, checksumHeaders())
	},
	StrategyHeaderSigned: func(d *Downloader, creds sigv4.Credentials, loc sigv4.Locator) (*sigv4.SignedRequest, error) {
		return d.signer.SignHeadersWith(http.MethodGet, creds, loc, checksumHeaders())
	},
}
