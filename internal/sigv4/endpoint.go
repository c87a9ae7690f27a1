package sigv4

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint decides where a bucket lives. The zero value targets AWS with
// virtual-hosted addressing: https://{bucket}.s3.{region}.amazonaws.com.
type Endpoint struct {
	base      *url.URL
	pathStyle bool
}

// ParseEndpoint builds an Endpoint for an S3-compatible service. An empty
// raw value yields the AWS default. With pathStyle the bucket becomes the
// first path segment, otherwise it is prefixed to the endpoint host.
func ParseEndpoint(raw string, pathStyle bool) (Endpoint, error) {
	if raw == "" {
		return Endpoint{}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return Endpoint{base: u, pathStyle: pathStyle}, nil
}

// IsAWS reports whether the endpoint is the AWS default.
func (e Endpoint) IsAWS() bool {
	return e.base == nil
}

// target returns scheme, host and encoded path for an object. An empty
// encodedKey addresses the bucket root.
func (e Endpoint) target(region, bucket, encodedKey string) (scheme, host, path string) {
	if e.base == nil {
		return "https", bucket + ".s3." + region + ".amazonaws.com", "/" + encodedKey
	}
	if e.pathStyle {
		path = e.base.Path + "/" + bucket
		if encodedKey != "" {
			path += "/" + encodedKey
		}
		return e.base.Scheme, e.base.Host, path
	}
	return e.base.Scheme, bucket + "." + e.base.Host, e.base.Path + "/" + encodedKey
}
