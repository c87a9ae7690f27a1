package sigv4

import (
	"strings"
	"time"

	"github.com/rescale/s3fetch/internal/constants"
)

// amzDateFormat is basic ISO-8601 without punctuation or sub-second precision.
const amzDateFormat = "20060102T150405Z"

// Clock returns the current wall-clock time. Tests inject a frozen clock.
type Clock func() time.Time

// Timestamp holds the two time representations the protocol needs.
type Timestamp struct {
	// Compact is YYYYMMDDThhmmssZ in UTC.
	Compact string
	// DateStamp is the first 8 characters of Compact.
	DateStamp string
}

// NewTimestamp formats t in UTC. Sub-second precision is dropped.
func NewTimestamp(t time.Time) Timestamp {
	compact := t.UTC().Format(amzDateFormat)
	return Timestamp{
		Compact:   compact,
		DateStamp: compact[:8],
	}
}

// SigningContext is minted fresh for every signed request and consumed by
// exactly one canonical request.
type SigningContext struct {
	Timestamp
	Region string
	// Scope is dateStamp/region/s3/aws4_request.
	Scope string
}

// NewSigningContext derives the context for a request signed at now.
func NewSigningContext(now time.Time, region string) SigningContext {
	ts := NewTimestamp(now)
	return SigningContext{
		Timestamp: ts,
		Region:    region,
		Scope: strings.Join([]string{
			ts.DateStamp,
			region,
			constants.SigningService,
			constants.ScopeTerminator,
		}, "/"),
	}
}

// credential returns accessKey/scope, the value of X-Amz-Credential.
func (sc SigningContext) credential(accessKey string) string {
	return accessKey + "/" + sc.Scope
}
