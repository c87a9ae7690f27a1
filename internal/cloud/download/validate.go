package download

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/crc64nvme"

	"github.com/rescale/s3fetch/internal/cloud/storage"
)

// ChecksumHeader carries the full-object CRC64NVME checksum when the object
// was uploaded with one and the request asked for it.
const ChecksumHeader = "X-Amz-Checksum-Crc64nvme"

// Warning kinds
const (
	WarnEmptyBody    = "empty-body"
	WarnPDFSignature = "pdf-signature"
	WarnChecksum     = "checksum"
)

var pdfMagic = []byte("%PDF-")

// Warning is a soft content validation failure. The body is still returned.
type Warning struct {
	Kind string
	Err  error
}

func (w Warning) String() string {
	return w.Err.Error()
}

// validateContent runs the structural checks on a downloaded body.
func validateContent(key, contentType string, header http.Header, body []byte) []Warning {
	var warnings []Warning

	if len(body) == 0 {
		warnings = append(warnings, Warning{
			Kind: WarnEmptyBody,
			Err:  fmt.Errorf("%w: object body is empty", storage.ErrUnexpectedContent),
		})
	} else if expectsPDF(key, contentType) && !bytes.HasPrefix(body, pdfMagic) {
		warnings = append(warnings, Warning{
			Kind: WarnPDFSignature,
			Err:  fmt.Errorf("%w: body does not start with %%PDF-", storage.ErrUnexpectedContent),
		})
	}

	if want := header.Get(ChecksumHeader); want != "" {
		if got := checksumCRC64NVME(body); got != want {
			warnings = append(warnings, Warning{
				Kind: WarnChecksum,
				Err:  fmt.Errorf("%w: crc64nvme is %s, server sent %s", storage.ErrChecksumMismatch, got, want),
			})
		}
	}

	return warnings
}

func expectsPDF(key, contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "pdf") ||
		strings.HasSuffix(strings.ToLower(key), ".pdf")
}

// checksumCRC64NVME returns the base64 big-endian CRC64NVME of body, the
// encoding S3 uses in x-amz-checksum-crc64nvme.
func checksumCRC64NVME(body []byte) string {
	h := crc64nvme.New()
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
