// Package fips reports whether the Go FIPS 140-3 module is active. Request
// signing uses only HMAC-SHA256 and SHA-256, which the module covers, so a
// binary built with GOFIPS140=latest signs through validated code.
package fips

import "crypto/fips140"

// Enabled reports whether FIPS 140-3 mode is active.
func Enabled() bool {
	return fips140.Enabled()
}

// Status returns a short label for version output.
func Status() string {
	if Enabled() {
		return "[FIPS 140-3]"
	}
	return "[FIPS: disabled]"
}
