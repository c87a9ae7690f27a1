package sigv4

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/rescale/s3fetch/internal/constants"
)

// CanonicalRequest is the normalized request shape that signer and verifier
// both hash. Method, URI and PayloadHash are used verbatim; Query and
// Headers are normalized when rendered.
type CanonicalRequest struct {
	Method string
	// URI is the already-encoded request path, starting with "/".
	URI     string
	Query   map[string]string
	Headers map[string]string
	// PayloadHash is always constants.UnsignedPayload for this client.
	PayloadHash string
}

// CanonicalQuery serializes Query sorted by encoded key, with keys and
// values URI-encoded including "/".
func (r CanonicalRequest) CanonicalQuery() string {
	if len(r.Query) == 0 {
		return ""
	}

	encoded := make(map[string]string, len(r.Query))
	keys := make([]string, 0, len(r.Query))
	for k, v := range r.Query {
		ek := uriEncode(k, true)
		encoded[ek] = uriEncode(v, true)
		keys = append(keys, ek)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+encoded[k])
	}
	return strings.Join(pairs, "&")
}

func (r CanonicalRequest) headerNames() []string {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, strings.ToLower(strings.TrimSpace(name)))
	}
	sort.Strings(names)
	return names
}

func (r CanonicalRequest) headerValue(lowerName string) string {
	for name, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(name), lowerName) {
			return strings.Join(strings.Fields(value), " ")
		}
	}
	return ""
}

// SignedHeaders lists the lower-cased header names joined by ";".
func (r CanonicalRequest) SignedHeaders() string {
	return strings.Join(r.headerNames(), ";")
}

// CanonicalHeaders renders one "name:value\n" line per header, sorted by name.
func (r CanonicalRequest) CanonicalHeaders() string {
	var b strings.Builder
	for _, name := range r.headerNames() {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(r.headerValue(name))
		b.WriteByte('\n')
	}
	return b.String()
}

// String renders the six newline-separated canonical request fields.
// The canonical headers block carries its own trailing newline.
func (r CanonicalRequest) String() string {
	return strings.Join([]string{
		r.Method,
		r.URI,
		r.CanonicalQuery(),
		r.CanonicalHeaders(),
		r.SignedHeaders(),
		r.PayloadHash,
	}, "\n")
}

// StringToSign embeds a SHA-256 digest of the canonical request, so any
// difference in header formatting changes the signature.
func StringToSign(sc SigningContext, canonicalRequest string) string {
	return strings.Join([]string{
		constants.SigningAlgorithm,
		sc.Compact,
		sc.Scope,
		sha256Hex(canonicalRequest),
	}, "\n")
}

// Signature is hex(HMAC-SHA256(signingKey, stringToSign)).
func Signature(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, stringToSign))
}

// sign derives the key for sc and signs r. It is the single place the
// secret key is touched.
func sign(secretKey string, sc SigningContext, r CanonicalRequest) string {
	key := DeriveSigningKey(secretKey, sc.DateStamp, sc.Region, constants.SigningService)
	return Signature(key, StringToSign(sc, r.String()))
}
