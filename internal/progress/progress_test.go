package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"docs/report.pdf", "docs/report.pdf"},
		{"a/b/docs/report.pdf", "…/docs/report.pdf"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, 2); got != tt.want {
			t.Errorf("truncatePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

type recordingReporter struct {
	percents []int
	messages []string
}

func (r *recordingReporter) Start(string) {}
func (r *recordingReporter) Update(percent int, message string) {
	r.percents = append(r.percents, percent)
	r.messages = append(r.messages, message)
}
func (r *recordingReporter) Finish()     {}
func (r *recordingReporter) Error(error) {}

func TestFuncForwardsCheckpoints(t *testing.T) {
	r := &recordingReporter{}
	fn := Func(r)
	fn(0, "Initializing download", "")
	fn(35, "Requesting object", "https://example.com/k")

	if len(r.percents) != 2 || r.percents[1] != 35 || r.messages[1] != "Requesting object" {
		t.Errorf("unexpected updates %v %v", r.percents, r.messages)
	}
}

func TestCLIProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIProgressTo(&buf)
	p.Update(10, "before start") // ignored without a bar
	p.Start("report.pdf")
	p.Update(50, "Receiving data")
	p.Finish()

	if !strings.Contains(buf.String(), "report.pdf") {
		t.Errorf("expected the bar description, got %q", buf.String())
	}
}

func TestDownloadUIPlainText(t *testing.T) {
	var buf bytes.Buffer
	ui := newDownloadUI(&buf, false, 2)

	ok := ui.AddFileBar(1, "docs/a.pdf", "/tmp/out/a.pdf")
	ok.Update(50, "Receiving data")
	ok.Update(20, "late checkpoint")
	ok.Complete(2048, nil)

	bad := ui.AddFileBar(2, "docs/b.pdf", "/tmp/out/b.pdf")
	bad.Complete(0, errors.New("access denied"))
	ui.Wait()

	out := buf.String()
	for _, want := range []string{"Downloading [1/2]: docs/a.pdf", "✓ docs/a.pdf", "2.0 KiB", "✗ docs/b.pdf: access denied"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if ui.Completed() != 2 || ui.Failed() != 1 {
		t.Errorf("expected 2 completed 1 failed, got %d %d", ui.Completed(), ui.Failed())
	}
	if ok.(*DownloadFileBar).current != 50 {
		t.Errorf("bar went backwards: %d", ok.(*DownloadFileBar).current)
	}
}
