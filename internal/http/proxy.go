package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/s3fetch/internal/config"
	"github.com/rescale/s3fetch/internal/constants"
	"github.com/rescale/s3fetch/internal/logging"
)

// DefaultWarmupURL is probed when warmup is enabled and no custom endpoint is set.
const DefaultWarmupURL = "https://s3.amazonaws.com/"

// ConfigureHTTPClient builds an HTTP client honouring the proxy settings
// in cfg. The client timeout is the per-request timeout from cfg.
func ConfigureHTTPClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	timeout := cfg.RequestTimeout()
	p := cfg.Proxy

	switch strings.ToLower(p.Mode) {
	case config.ProxyModeNone, "":
		transport.Proxy = nil

	case config.ProxyModeSystem:
		transport.Proxy = nethttp.ProxyFromEnvironment

	case config.ProxyModeNTLM:
		if p.Host == "" {
			logger.Warn().Msg("Proxy mode is ntlm but host is missing, falling back to no-proxy mode")
			return &nethttp.Client{Transport: transport, Timeout: timeout}, nil
		}

		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy, logger)

		client := &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
			Timeout: timeout,
		}

		// Warmup only with complete credentials; otherwise the caller prompts first
		if p.Warmup && p.User != "" && p.Password != "" {
			if err := warmupProxy(client, warmupURL(cfg)); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	case config.ProxyModeBasic:
		if p.Host == "" {
			logger.Warn().Msg("Proxy mode is basic but host is missing, falling back to no-proxy mode")
			return &nethttp.Client{Transport: transport, Timeout: timeout}, nil
		}

		transport.Proxy = proxyFuncWithBypass(buildProxyURL(p), p.NoProxy, logger)

		if p.User != "" && p.Password == "" {
			logger.Warn().Msg("Proxy user configured but password missing, proxy auth disabled until password is set")
		}

		client := &nethttp.Client{Transport: transport, Timeout: timeout}
		if p.Warmup && p.User != "" && p.Password != "" {
			if err := warmupProxy(client, warmupURL(cfg)); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}

	client := &nethttp.Client{Transport: transport, Timeout: timeout}

	if p.Warmup && transport.Proxy != nil {
		if err := warmupProxy(client, warmupURL(cfg)); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}

	return client, nil
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(p config.ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(p.Host, fmt.Sprintf("%d", port)),
	}

	// Empty password in URL can cause auth failures with some proxies
	if p.User != "" && p.Password != "" {
		proxyURL.User = url.UserPassword(p.User, p.Password)
	}

	return proxyURL
}

func warmupURL(cfg *config.Config) string {
	if cfg.Storage.Endpoint != "" {
		return cfg.Storage.Endpoint
	}
	return DefaultWarmupURL
}

// warmupProxy sends one unauthenticated HEAD through the proxy so the
// tunnel and any proxy authentication are established before the first
// signed request. Any response below 500 counts as success.
func warmupProxy(client *nethttp.Client, target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), constants.ProxyWarmupTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodHead, target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}

	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy bypass list.
// If noProxy is empty, behaves identically to nethttp.ProxyURL.
// When noProxy is set, uses golang.org/x/net/http/httpproxy to match hosts/CIDRs.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("Proxy bypass (direct connection)")
		} else {
			logger.Debug().Str("host", req.URL.Host).Str("proxy", result.Host).Msg("Proxied")
		}
		return result, err
	}
}

// NeedsProxyPassword returns true if the proxy configuration requires a password
// but one has not been provided. Used by the CLI to decide whether to prompt.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Proxy.Mode)
	if mode != config.ProxyModeBasic && mode != config.ProxyModeNTLM {
		return false
	}
	return cfg.Proxy.User != "" && cfg.Proxy.Password == ""
}
