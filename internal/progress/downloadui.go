package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/s3fetch/internal/constants"
)

// DownloadUI manages concurrent download bars using mpb.
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	completed  atomic.Int32
	failed     atomic.Int32

	mu sync.Mutex // serializes plain-text output
}

// DownloadFileBar is one object's bar.
type DownloadFileBar struct {
	bar       *mpb.Bar
	ui        *DownloadUI
	index     int
	key       string
	localPath string
	retries   atomic.Int32
	startTime time.Time

	mu      sync.Mutex
	current int
	status  string
}

// NewDownloadUI creates a UI for totalFiles downloads on stderr. Bars are
// only drawn when stderr is a terminal; otherwise one line per event.
func NewDownloadUI(totalFiles int) *DownloadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return newDownloadUI(os.Stderr, isTerminal, totalFiles)
}

func newDownloadUI(out io.Writer, isTerminal bool, totalFiles int) *DownloadUI {
	u := &DownloadUI{out: out, isTerminal: isTerminal, totalFiles: totalFiles}
	if isTerminal {
		u.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(100),
		)
	}
	return u
}

// AddFileBar creates a bar for the index-th object.
func (u *DownloadUI) AddFileBar(index int, key, localPath string) FileBarHandle {
	fb := &DownloadFileBar{
		ui:        u,
		index:     index,
		key:       key,
		localPath: localPath,
		startTime: time.Now(),
	}

	if !u.isTerminal {
		u.println(fmt.Sprintf("Downloading [%d/%d]: %s -> %s", index, u.totalFiles, key, truncatePath(localPath, 2)))
		return fb
	}

	fb.bar = u.progress.New(100,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				label := fmt.Sprintf("[%d/%d] %s", fb.index, u.totalFiles, truncatePath(fb.key, 2))
				if r := fb.retries.Load(); r > 0 {
					label = fmt.Sprintf("%s (retry %d)", label, r)
				}
				return label
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Any(func(decor.Statistics) string {
				fb.mu.Lock()
				defer fb.mu.Unlock()
				return fb.status
			}),
		),
		mpb.BarRemoveOnComplete(),
	)
	return fb
}

// Update moves the bar to percent.
func (f *DownloadFileBar) Update(percent int, message string) {
	f.mu.Lock()
	f.status = message
	if percent < f.current {
		percent = f.current
	}
	f.current = percent
	f.mu.Unlock()

	if f.bar != nil {
		f.bar.SetCurrent(int64(percent))
	}
}

// SetRetry records the number of transport retries so far.
func (f *DownloadFileBar) SetRetry(count int) {
	f.retries.Store(int32(count))
}

// Complete finishes the bar and prints a summary line above the bars.
func (f *DownloadFileBar) Complete(size int64, err error) {
	elapsed := time.Since(f.startTime).Round(time.Millisecond)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(100)
			f.bar.SetTotal(100, true)
		}
		msg = fmt.Sprintf("✓ %s -> %s (%s, %s)", f.key, truncatePath(f.localPath, 2), humanize.IBytes(uint64(size)), elapsed)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		f.ui.failed.Add(1)
		msg = fmt.Sprintf("✗ %s: %v", f.key, err)
	}

	f.ui.completed.Add(1)
	f.ui.println(msg)
}

func (u *DownloadUI) println(msg string) {
	if u.isTerminal && u.progress != nil {
		fmt.Fprintln(u.progress, msg)
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.out, msg)
}

// Wait blocks until all bars complete.
func (u *DownloadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that prints above the bars.
func (u *DownloadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns whether bars are rendered.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// Completed returns the number of finished downloads, failed ones included.
func (u *DownloadUI) Completed() int {
	return int(u.completed.Load())
}

// Failed returns the number of failed downloads.
func (u *DownloadUI) Failed() int {
	return int(u.failed.Load())
}

// truncatePath keeps the last maxComponents path elements.
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return path
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}
