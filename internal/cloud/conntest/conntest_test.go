package conntest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	s3http "github.com/rescale/s3fetch/internal/http"
	"github.com/rescale/s3fetch/internal/sigv4"
)

var testCreds = sigv4.Credentials{AccessKey: "AKIDEXAMPLE", SecretKey: "secret", Region: "us-east-1"}

// fakeS3 answers the sentinel-object probe and the bucket-root probe with
// fixed statuses and records what it saw.
type fakeS3 struct {
	objectStatus int
	bucketStatus int

	mu       sync.Mutex
	requests []*http.Request
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	switch r.URL.Path {
	case "/docs/s3fetch-connection-test":
		w.WriteHeader(f.objectStatus)
	case "/docs":
		w.WriteHeader(f.bucketStatus)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTester(t *testing.T, srv *httptest.Server) *Tester {
	t.Helper()
	ep, err := sigv4.ParseEndpoint(srv.URL, true)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	signer := sigv4.NewSigner(sigv4.WithEndpoint(ep))
	fetcher := s3http.NewFetcher(srv.Client(), 1, time.Millisecond)
	return New(signer, fetcher)
}

func TestConnectionTest(t *testing.T) {
	tests := []struct {
		name         string
		objectStatus int
		bucketStatus int
		wantOK       bool
		wantMessage  string
		wantProbes   int
	}{
		{"object exists", http.StatusOK, http.StatusOK, true, MsgCredentialsValid, 1},
		{"object absent", http.StatusNotFound, http.StatusOK, true, MsgCredentialsValid, 1},
		{"denied then public bucket", http.StatusForbidden, http.StatusOK, true, MsgSetupValid, 2},
		{"denied on both", http.StatusForbidden, http.StatusForbidden, false, MsgAllFailed, 2},
		{"server errors", http.StatusInternalServerError, http.StatusBadGateway, false, MsgAllFailed, 2},
		{"server error then bucket denied", http.StatusServiceUnavailable, http.StatusForbidden, true, MsgSetupValid, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{objectStatus: tt.objectStatus, bucketStatus: tt.bucketStatus}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			diag := newTester(t, srv).Test(context.Background(), testCreds, "docs")

			if diag.OK != tt.wantOK {
				t.Errorf("expected OK=%v, got %v (%s)", tt.wantOK, diag.OK, diag.Message)
			}
			if diag.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, diag.Message)
			}
			if len(diag.Probes) != tt.wantProbes {
				t.Errorf("expected %d probes, got %d", tt.wantProbes, len(diag.Probes))
			}
		})
	}
}

func TestConnectionTestRequests(t *testing.T) {
	fake := &fakeS3{objectStatus: http.StatusForbidden, bucketStatus: http.StatusOK}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	newTester(t, srv).Test(context.Background(), testCreds, "docs")

	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(fake.requests))
	}

	signed := fake.requests[0]
	if signed.Method != http.MethodHead {
		t.Errorf("expected HEAD, got %s", signed.Method)
	}
	q := signed.URL.Query()
	if q.Get("X-Amz-Expires") != "60" {
		t.Errorf("expected 60s probe lifetime, got %q", q.Get("X-Amz-Expires"))
	}
	if len(q.Get("X-Amz-Signature")) != 64 {
		t.Errorf("expected 64-hex signature, got %q", q.Get("X-Amz-Signature"))
	}

	unsigned := fake.requests[1]
	if unsigned.Method != http.MethodHead {
		t.Errorf("expected HEAD, got %s", unsigned.Method)
	}
	if unsigned.URL.RawQuery != "" || unsigned.Header.Get("Authorization") != "" {
		t.Error("bucket probe must not be signed")
	}
}

func TestConnectionTestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tester := newTester(t, srv)
	srv.Close()

	diag := tester.Test(context.Background(), testCreds, "docs")
	if diag.OK {
		t.Fatal("expected failure with server down")
	}
	if diag.Message != MsgAllFailed {
		t.Errorf("expected %q, got %q", MsgAllFailed, diag.Message)
	}
	for _, p := range diag.Probes {
		if p.Kind != "transport" {
			t.Errorf("probe %s: expected transport failure, got %q (%v)", p.Name, p.Kind, p.Err)
		}
	}
}

func TestConnectionTestMissingCredentials(t *testing.T) {
	fake := &fakeS3{objectStatus: http.StatusOK, bucketStatus: http.StatusOK}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	diag := newTester(t, srv).Test(context.Background(), sigv4.Credentials{}, "docs")
	if !diag.OK || diag.Message != MsgSetupValid {
		t.Errorf("expected unsigned probe to succeed, got %+v", diag)
	}
	if diag.Probes[0].Err == nil {
		t.Error("expected signing error recorded on the first probe")
	}
}

func TestConnectionTestCancelled(t *testing.T) {
	fake := &fakeS3{objectStatus: http.StatusOK, bucketStatus: http.StatusOK}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	diag := newTester(t, srv).Test(ctx, testCreds, "docs")
	if diag.OK {
		t.Error("expected cancelled test to fail")
	}
	if !strings.Contains(diag.Message, "cancelled") {
		t.Errorf("unexpected message %q", diag.Message)
	}
	if len(fake.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(fake.requests))
	}
}

type probeRecorder struct {
	probes []string
}

func (r *probeRecorder) ObserveProbe(probe string, ok bool) {
	result := "fail"
	if ok {
		result = "ok"
	}
	r.probes = append(r.probes, probe+":"+result)
}

func TestConnectionTestMetrics(t *testing.T) {
	fake := &fakeS3{objectStatus: http.StatusForbidden, bucketStatus: http.StatusOK}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ep, _ := sigv4.ParseEndpoint(srv.URL, true)
	rec := &probeRecorder{}
	tester := New(sigv4.NewSigner(sigv4.WithEndpoint(ep)), s3http.NewFetcher(srv.Client(), 1, time.Millisecond), WithMetrics(rec))
	tester.Test(context.Background(), testCreds, "docs")

	want := "presigned-head:fail,bucket-head:ok"
	if got := strings.Join(rec.probes, ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
