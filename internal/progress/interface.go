package progress

import "io"

// Reporter shows the progress of a single download.
type Reporter interface {
	Start(description string)
	// Update moves to percent (0-100) with a status message.
	Update(percent int, message string)
	Finish()
	Error(err error)
}

// BatchUI shows one bar per object while several downloads run at once.
type BatchUI interface {
	// AddFileBar creates a bar for the index-th object of the batch.
	AddFileBar(index int, key, localPath string) FileBarHandle

	// Wait blocks until all bars are complete.
	Wait()

	// Writer returns an io.Writer that prints above the bars.
	Writer() io.Writer

	// IsTerminal returns true if bars are rendered.
	IsTerminal() bool
}

// FileBarHandle is one object's bar in a BatchUI.
type FileBarHandle interface {
	// Update moves the bar to percent (0-100).
	Update(percent int, message string)

	// SetRetry shows the number of transport retries so far.
	SetRetry(count int)

	// Complete finishes the bar and prints a summary line.
	Complete(size int64, err error)
}

// Func adapts r to the downloader's progress callback.
func Func(r Reporter) func(percent int, message, url string) {
	return func(percent int, message, _ string) {
		r.Update(percent, message)
	}
}

// BarFunc adapts a batch bar to the downloader's progress callback.
func BarFunc(h FileBarHandle) func(percent int, message, url string) {
	return func(percent int, message, _ string) {
		h.Update(percent, message)
	}
}
