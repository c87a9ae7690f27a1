// Package storage defines the contract between object transports and the
// code that drives them, plus the error taxonomy they share.
package storage

import (
	"context"
	"net/http"
)

// Fetcher sends a single body-less object request. Implementations retry
// transport failures themselves. Any HTTP response, whatever its status,
// is returned as-is for the caller to classify with ClassifyResponse.
//
// A transport failure that survives all attempts is returned as a
// *FetchError of KindTransport. Cancellation of ctx is returned as ctx.Err().
type Fetcher interface {
	Do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error)
}
