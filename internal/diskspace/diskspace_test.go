package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "doc.pdf")

	t.Run("SmallFile", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 1024, SafetyMargin); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		if GetAvailableSpace(target) == 0 {
			t.Skip("free space not available on this platform")
		}
		// 1 EiB exceeds any test machine
		err := CheckAvailableSpace(target, 1<<60, SafetyMargin)
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %v", err)
		}
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		// Unknown free space never blocks the write
		err := CheckAvailableSpace(filepath.Join(t.TempDir(), "no", "such", "dir", "f"), 1<<60, SafetyMargin)
		if err != nil {
			t.Errorf("Expected nil when free space is unknown, got: %v", err)
		}
	})
}

func TestInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/out/doc.pdf", RequiredBytes: 2 << 20, AvailableBytes: 1 << 20}
	msg := err.Error()
	if !strings.Contains(msg, "need 2.0 MiB") || !strings.Contains(msg, "have 1.0 MiB") {
		t.Errorf("unexpected message %q", msg)
	}

	wrapped := fmt.Errorf("download failed: %w", err)
	if !IsInsufficientSpaceError(wrapped) {
		t.Error("expected wrapped error to be detected")
	}
	if IsInsufficientSpaceError(fmt.Errorf("other")) {
		t.Error("unexpected match")
	}
}
