package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rescale/s3fetch/internal/config"
)

const pdfBody = "%PDF-1.7\nfake document\n"

// fakeBucket serves objects from a path-style "docs" bucket and rejects
// requests that carry no signature.
type fakeBucket struct {
	objects map[string]string
	gets    atomic.Int32
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	signed := r.URL.Query().Get("X-Amz-Signature") != "" || r.Header.Get("Authorization") != ""

	if r.URL.Path == "/docs" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !signed {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/docs/")
	body, ok := f.objects[key]
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		return
	}
	if r.Method == http.MethodGet {
		f.gets.Add(1)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write([]byte(body))
}

// runCLI executes the command line args against a fresh root command.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// endpointArgs points the CLI at srv with static credentials and no config file.
func endpointArgs(t *testing.T, srv *httptest.Server) []string {
	return []string{
		"--config", filepath.Join(t.TempDir(), "missing.conf"),
		"--endpoint", srv.URL,
		"--path-style",
		"--access-key", "AKIDEXAMPLE",
		"--secret-key", "secret",
	}
}

func TestDownloadCommand(t *testing.T) {
	fake := &fakeBucket{objects: map[string]string{"folder/My File.pdf": pdfBody}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.pdf")
	args := append([]string{"download", "docs", "folder/My File.pdf", "-o", dest, "-q"}, endpointArgs(t, srv)...)
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("download failed: %v\n%s", err, out)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != pdfBody {
		t.Errorf("unexpected content %q", data)
	}
	if !strings.Contains(out, "via presigned") {
		t.Errorf("expected strategy in summary, got %q", out)
	}
}

func TestDownloadCommandRefusesOverwrite(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(dest, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "download", "docs", "a.pdf", "-o", dest, "--config", filepath.Join(t.TempDir(), "x.conf"))
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected overwrite refusal, got %v", err)
	}
}

func TestDownloadCommandNotFound(t *testing.T) {
	srv := httptest.NewServer(&fakeBucket{objects: map[string]string{}})
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "missing.pdf")
	args := append([]string{"download", "docs", "missing.pdf", "-o", dest, "-q"}, endpointArgs(t, srv)...)
	_, err := runCLI(t, args...)
	if err == nil || !strings.Contains(err.Error(), "tried 2 of 2 methods") {
		t.Errorf("expected exhausted error, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should be written on failure")
	}
}

func TestBatchCommand(t *testing.T) {
	fake := &fakeBucket{objects: map[string]string{
		"a.pdf":         pdfBody,
		"reports/b.pdf": pdfBody,
		"c.pdf":         pdfBody,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	args := append([]string{"batch", "docs", "a.pdf", "reports/b.pdf", "c.pdf", "gone.pdf", "--dir", dir, "--skip-existing"}, endpointArgs(t, srv)...)
	out, err := runCLI(t, args...)
	if err == nil || !strings.Contains(err.Error(), "1 of 4 downloads failed") {
		t.Fatalf("expected one failure, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "Downloaded 2, skipped 1, failed 1 of 4") {
		t.Errorf("unexpected summary %q", out)
	}

	for _, p := range []string{"a.pdf", filepath.Join("reports", "b.pdf")} {
		if data, err := os.ReadFile(filepath.Join(dir, p)); err != nil || string(data) != pdfBody {
			t.Errorf("%s: expected downloaded body, got %q (%v)", p, data, err)
		}
	}
	if data, _ := os.ReadFile(filepath.Join(dir, "c.pdf")); string(data) != "existing" {
		t.Errorf("existing file was overwritten: %q", data)
	}
}

func TestBatchCommandRejectsEscapingKeys(t *testing.T) {
	fake := &fakeBucket{objects: map[string]string{"a.pdf": pdfBody}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	dir := t.TempDir()
	args := append([]string{"batch", "docs", "a.pdf", "../a.pdf", "x/../a.pdf", "--dir", dir, "--overwrite"}, endpointArgs(t, srv)...)
	out, err := runCLI(t, args...)
	if err == nil || !strings.Contains(err.Error(), "2 of 3 downloads failed") {
		t.Fatalf("expected two rejected keys, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "Downloaded 1, skipped 0, failed 2 of 3") {
		t.Errorf("unexpected summary %q", out)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "a.pdf")); err == nil {
		t.Error("key escaped the output directory")
	}
}

func TestPresignCommand(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	args := append([]string{"presign", "docs", "folder/My File (final).pdf", "--ttl", "15m"}, endpointArgs(t, srv)...)
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("presign failed: %v", err)
	}

	u := strings.TrimSpace(out)
	if !strings.HasPrefix(u, srv.URL+"/docs/folder/My%20File%20%28final%29.pdf?") {
		t.Errorf("unexpected URL %s", u)
	}
	for _, want := range []string{"X-Amz-Algorithm=AWS4-HMAC-SHA256", "X-Amz-Expires=900", "X-Amz-Signature="} {
		if !strings.Contains(u, want) {
			t.Errorf("expected %s in %s", want, u)
		}
	}
}

func TestPresignCommandRejectsMethod(t *testing.T) {
	_, err := runCLI(t, "presign", "docs", "a.pdf", "--method", "PUT")
	if err == nil {
		t.Error("expected error for PUT")
	}
}

func TestTestConnectionCommand(t *testing.T) {
	srv := httptest.NewServer(&fakeBucket{objects: map[string]string{}})
	defer srv.Close()

	args := append([]string{"test-connection", "docs"}, endpointArgs(t, srv)...)
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("test-connection failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "credentials valid") || !strings.Contains(out, "HTTP 404") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConfigShowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3fetch.conf")
	cfg := config.NewConfig()
	cfg.Storage.Endpoint = "http://127.0.0.1:9000"
	cfg.Storage.PathStyle = true
	if err := config.Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "config", "show", "--config", path, "--region", "eu-central-1")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"Region:     eu-central-1", "Endpoint:   http://127.0.0.1:9000", "Path style: true"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3fetch.conf")

	root := NewRootCmd()
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("eu-west-1\nhttp://minio:9000\n\n\n5\n\n\nn\n"))
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Region != "eu-west-1" || cfg.Storage.Endpoint != "http://minio:9000" || !cfg.Storage.PathStyle {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Transfer.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Transfer.MaxAttempts)
	}
	if cfg.Proxy.Mode != config.ProxyModeNone {
		t.Errorf("expected no proxy, got %s", cfg.Proxy.Mode)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "doc.pdf")
	if err := writeFileAtomic(dest, []byte(pdfBody)); err != nil {
		t.Fatalf("writeFileAtomic: %v", err)
	}
	if err := writeFileAtomic(dest, []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestPromptDownloadConflict(t *testing.T) {
	var out bytes.Buffer
	action, err := promptDownloadConflict(strings.NewReader("9\n4\n"), &out, "a.pdf", "/out/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if action != DownloadOverwriteAll {
		t.Errorf("expected overwrite-all, got %v", action)
	}
	if !strings.Contains(out.String(), "Invalid choice") {
		t.Error("expected invalid choice message")
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "FIPS") {
		t.Errorf("expected FIPS status in version output, got %q", out)
	}
}

func TestVerboseEnablesDebugLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if _, err := runCLI(t, "--verbose", "--config", filepath.Join(t.TempDir(), "s3fetch.conf"), "config", "path"); err != nil {
		t.Fatal(err)
	}
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("expected debug level with --verbose, got %v", got)
	}
}
