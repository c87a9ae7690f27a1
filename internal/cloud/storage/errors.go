package storage

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Common storage operation errors
var (
	// ErrChecksumMismatch indicates the body does not match the checksum the server sent
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnexpectedContent indicates the body fails a structural sanity check
	ErrUnexpectedContent = errors.New("unexpected content")
)

// Kind classifies a failed fetch. It is decided once, where the response
// or transport error is first seen, and callers branch on it instead of
// inspecting messages.
type Kind int

const (
	// KindTransport covers connection refused, DNS failure, timeouts and
	// resets: no HTTP response was received.
	KindTransport Kind = iota + 1
	// KindAuthorization is HTTP 401/403 or an AccessDenied error code.
	KindAuthorization
	// KindExpired is a 403 caused by an expired signature or token.
	// Re-signing with a fresh timestamp can succeed; resending cannot.
	KindExpired
	// KindNotFound is HTTP 404.
	KindNotFound
	// KindStatus is any other non-2xx response.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthorization:
		return "authorization"
	case KindExpired:
		return "expired"
	case KindNotFound:
		return "not-found"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// FetchError is the single error type returned for failed requests. It
// never carries URLs, signatures or credentials.
type FetchError struct {
	Kind       Kind
	StatusCode int    // 0 for transport failures
	Code       string // S3 error code from the XML body, if any
	Message    string // S3 error message from the XML body, if any
	Strategy   string // set by the caller that knows which transport was used
	Attempts   int    // transport attempts made before giving up
	Err        error  // underlying transport error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	if e.Strategy != "" {
		b.WriteString(e.Strategy)
		b.WriteString(": ")
	}

	switch {
	case e.Kind == KindTransport:
		fmt.Fprintf(&b, "transport failure after %d attempt(s)", e.Attempts)
		if e.Err != nil {
			fmt.Fprintf(&b, ": %v", e.Err)
		}
	default:
		fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
		if e.Code != "" {
			b.WriteString(" ")
			b.WriteString(e.Code)
		}
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first FetchError in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsAuthorizationError reports whether err is an authorization failure.
// Expired signatures are not authorization failures.
func IsAuthorizationError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAuthorization
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransport
}

// NewTransportError wraps a transport error from the HTTP client.
func NewTransportError(err error, attempts int) *FetchError {
	return &FetchError{Kind: KindTransport, Attempts: attempts, Err: err}
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// s3Error is the XML error document S3 returns with non-2xx responses.
type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// ClassifyResponse turns a non-2xx response into a FetchError. It reads and
// closes the body. HEAD responses carry no body, so only the status counts.
func ClassifyResponse(resp *http.Response) *FetchError {
	fe := &FetchError{StatusCode: resp.StatusCode}

	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		var doc s3Error
		if len(body) > 0 && xml.Unmarshal(body, &doc) == nil {
			fe.Code = doc.Code
			fe.Message = doc.Message
		}
	}

	fe.Kind = classifyStatus(fe.StatusCode, fe.Code, fe.Message)
	return fe
}

func classifyStatus(status int, code, message string) Kind {
	// S3 reports an expired presigned URL as AccessDenied with this message
	if strings.Contains(message, "Request has expired") {
		return KindExpired
	}

	switch code {
	case "RequestExpired", "ExpiredToken", "TokenRefreshRequired":
		return KindExpired
	case "AccessDenied", "SignatureDoesNotMatch", "InvalidAccessKeyId", "RequestTimeTooSkewed":
		return KindAuthorization
	}

	switch status {
	case http.StatusForbidden, http.StatusUnauthorized:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindStatus
	}
}
