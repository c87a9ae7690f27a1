package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/rescale/s3fetch/internal/config"
	"github.com/rescale/s3fetch/internal/logging"
)

// TestProxyFuncWithBypass_EmptyNoProxy verifies that an empty noProxy always routes through proxy.
func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "", logging.Nop())

	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_WildcardDomain verifies *.example.com bypasses api.example.com.
func TestProxyFuncWithBypass_WildcardDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com", logging.Nop())

	// Subdomain should bypass proxy
	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result)
	}
}

// TestProxyFuncWithBypass_ExactDomain verifies example.com bypasses root and subdomains.
func TestProxyFuncWithBypass_ExactDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "example.com", logging.Nop())

	// Root domain should bypass
	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for example.com, got %v", result)
	}

	// Subdomain should also bypass (a domain without a leading dot matches subdomains)
	req2, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result2, err := proxyFunc(req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result2)
	}
}

// TestProxyFuncWithBypass_CIDR verifies IP/CIDR range matching.
func TestProxyFuncWithBypass_CIDR(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "10.0.0.0/8", logging.Nop())

	// IP in range should bypass
	req, _ := http.NewRequest("GET", "http://10.1.2.3:8080/api", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for 10.1.2.3, got %v", result)
	}
}

// TestProxyFuncWithBypass_NonMatchingHost verifies non-matching hosts route through proxy.
func TestProxyFuncWithBypass_NonMatchingHost(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.internal.corp,10.0.0.0/8", logging.Nop())

	// External host should use proxy
	req, _ := http.NewRequest("GET", "https://docs.s3.us-east-1.amazonaws.com/a.pdf", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL for docs.s3.us-east-1.amazonaws.com, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_MultiplePatterns verifies comma-separated patterns work.
func TestProxyFuncWithBypass_MultiplePatterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp", logging.Nop())

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://api.example.com/data", true},
		{"cidr match", "http://192.168.1.100/api", true},
		{"exact domain match", "https://internal.corp/status", true},
		{"non-match", "https://docs.s3.us-east-1.amazonaws.com/a.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp", User: "alice", Password: "s3cret"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("expected default port 8080, got %s", u.Host)
	}
	if pw, ok := u.User.Password(); !ok || pw != "s3cret" {
		t.Error("expected credentials embedded in proxy URL")
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "alice"})
	if u.Host != "proxy.corp:3128" {
		t.Errorf("expected port 3128, got %s", u.Host)
	}
	if u.User != nil {
		t.Error("credentials must not be embedded without a password")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		mode, user, password string
		want                 bool
	}{
		{config.ProxyModeNone, "alice", "", false},
		{config.ProxyModeSystem, "alice", "", false},
		{config.ProxyModeBasic, "alice", "", true},
		{config.ProxyModeNTLM, "alice", "", true},
		{config.ProxyModeNTLM, "alice", "pw", false},
		{config.ProxyModeBasic, "", "", false},
	}

	for _, tt := range tests {
		cfg := config.NewConfig()
		cfg.Proxy.Mode = tt.mode
		cfg.Proxy.User = tt.user
		cfg.Proxy.Password = tt.password
		if got := NeedsProxyPassword(cfg); got != tt.want {
			t.Errorf("NeedsProxyPassword(%s, %q, %q) = %v, want %v", tt.mode, tt.user, tt.password, got, tt.want)
		}
	}
}

func TestConfigureHTTPClientModes(t *testing.T) {
	cfg := config.NewConfig()
	client, err := ConfigureHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != cfg.RequestTimeout() {
		t.Errorf("expected timeout %v, got %v", cfg.RequestTimeout(), client.Timeout)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok || tr.Proxy != nil {
		t.Error("no-proxy mode should use a plain transport without proxy")
	}

	cfg.Proxy.Mode = config.ProxyModeBasic
	cfg.Proxy.Host = "proxy.corp"
	client, err = ConfigureHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, ok = client.Transport.(*http.Transport)
	if !ok || tr.Proxy == nil {
		t.Error("basic mode should set a proxy func")
	}

	cfg.Proxy.Mode = config.ProxyModeNTLM
	client, err = ConfigureHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.Transport.(*http.Transport); ok {
		t.Error("ntlm mode should wrap the transport")
	}

	cfg.Proxy.Mode = "socks"
	if _, err := ConfigureHTTPClient(cfg, nil); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestCreateOptimizedClientDisablesHTTP2BehindProxy(t *testing.T) {
	t.Setenv("FORCE_HTTP2", "")
	t.Setenv("DISABLE_HTTP2", "")

	cfg := config.NewConfig()
	cfg.Proxy.Mode = config.ProxyModeBasic
	cfg.Proxy.Host = "proxy.corp"

	client, err := CreateOptimizedClient(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be disabled behind a proxy")
	}
	if !tr.DisableCompression {
		t.Error("compression should be disabled")
	}

	client, err = CreateOptimizedClient(config.NewConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.Transport.(*http.Transport).ForceAttemptHTTP2 {
		t.Error("HTTP/2 should be attempted without a proxy")
	}
}
