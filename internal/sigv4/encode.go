package sigv4

import (
	"net/url"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// EncodeKey canonicalizes an object key into the path form S3 recomputes
// when it verifies a signature.
//
// The key is percent-decoded first so raw and pre-encoded keys produce the
// same output; a malformed escape sequence leaves the input untouched.
// Slashes separate segments and are never escaped. Inside a segment every
// byte outside A-Z a-z 0-9 - _ . ~ is escaped, which covers the characters
// that break canonicalization (! ' ( ) * [ ] { } # ? & = +) and turns space
// into %20, never +.
//
// Because of the decode step, a literal "%XX" in a key is read as an
// escape. Such keys are not stable under encode(decode(k)): "%2541"
// encodes to itself but decodes to "%41", which then encodes to "A". An
// escaped slash is decoded too, so "a%2Fb" becomes the two segments "a/b".
// Keys that really contain "%XX" or "%2F" cannot be addressed exactly.
//
// EncodeKey cannot fail. A divergence from the server's encoding shows up
// only as a signature mismatch at fetch time.
func EncodeKey(key string) string {
	decoded, err := url.PathUnescape(key)
	if err != nil {
		decoded = key
	}

	segments := strings.Split(decoded, "/")
	for i, segment := range segments {
		segments[i] = uriEncode(segment, true)
	}
	return strings.Join(segments, "/")
}

// uriEncode applies the SigV4 URI encoding rule: unreserved characters pass
// through, every other byte becomes %XX with upper-case hex.
func uriEncode(value string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(value) * 3)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isUnreserved(c) || (c == '/' && !encodeSlash) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
