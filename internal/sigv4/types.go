// Package sigv4 produces AWS Signature Version 4 authenticated requests for
// read-only access to a single object in an S3-compatible bucket.
//
// Every function here is a pure function of its inputs plus the injected
// clock, so signers are safe for concurrent use without locking.
package sigv4

import (
	"errors"

	"github.com/rescale/s3fetch/internal/constants"
)

var (
	// ErrMissingCredentials is returned when the access key or secret key is empty.
	ErrMissingCredentials = errors.New("access key and secret key are required")
	// ErrMissingBucket is returned when a locator has no bucket.
	ErrMissingBucket = errors.New("bucket is required")
	// ErrInvalidExpiry is returned for presign lifetimes beyond what S3 accepts.
	ErrInvalidExpiry = errors.New("presigned URL lifetime must not exceed 7 days")
)

// Credentials identify the caller to the storage service. They are supplied
// by the caller for each call and are never persisted.
type Credentials struct {
	AccessKey string
	SecretKey string
	Region    string

	// SessionToken is set for temporary credentials (STS, SSO profiles).
	SessionToken string
}

// String redacts everything but the access key id, so Credentials can be
// passed to loggers or %v verbs without leaking the secret.
func (c Credentials) String() string {
	return "Credentials{AccessKey: " + c.AccessKey + ", SecretKey: [REDACTED], Region: " + c.region() + "}"
}

func (c Credentials) validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// SigningRegion is the region used in the credential scope.
func (c Credentials) SigningRegion() string {
	return c.region()
}

func (c Credentials) region() string {
	if c.Region == "" {
		return constants.DefaultRegion
	}
	return c.Region
}

// Locator names one object.
type Locator struct {
	Bucket string
	// Key is the logical object path. It may be raw ("My File.pdf") or
	// already percent-encoded ("My%20File.pdf"); EncodeKey accepts both.
	Key string
}

func (l Locator) validate() error {
	if l.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}
