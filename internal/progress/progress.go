// Package progress renders download progress on the terminal: a single
// bar for one object, or a multi-bar view for batches.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// CLIProgress reports a single download with a percentage bar.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a reporter writing to stderr. When stderr is not
// a terminal it returns a NoOpProgress.
func NewCLIProgress() Reporter {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return NewNoOpProgress()
	}
	return NewCLIProgressTo(os.Stderr)
}

// NewCLIProgressTo creates a reporter writing to out.
func NewCLIProgressTo(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// Start initializes the bar.
func (p *CLIProgress) Start(description string) {
	p.bar = progressbar.NewOptions64(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar and shows message as its description.
func (p *CLIProgress) Update(percent int, message string) {
	if p.bar == nil {
		return
	}
	if message != "" {
		p.bar.Describe(message)
	}
	_ = p.bar.Set(percent)
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error clears the bar and prints err.
func (p *CLIProgress) Error(err error) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// NoOpProgress discards progress (quiet mode, non-terminal output).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Start does nothing.
func (p *NoOpProgress) Start(description string) {}

// Update does nothing.
func (p *NoOpProgress) Update(percent int, message string) {}

// Finish does nothing.
func (p *NoOpProgress) Finish() {}

// Error does nothing.
func (p *NoOpProgress) Error(err error) {}
