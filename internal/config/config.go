// Package config provides configuration management for s3fetch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/s3fetch/internal/constants"
)

// Config is the s3fetch configuration.
//
// Config file location:
//   - Windows: %APPDATA%\s3fetch\s3fetch.conf
//   - Unix: ~/.config/s3fetch/s3fetch.conf
//
// INI format:
//
//	[storage]
//	region = us-east-1
//	endpoint =
//	path_style = false
//	profile =
//
//	[transfer]
//	max_attempts = 3
//	backoff_step_seconds = 1
//	request_timeout_seconds = 120
//	presign_ttl_seconds = 3600
//	max_requests_per_second = 0
//	request_burst = 10
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
//	warmup = false
//
//	[logging]
//	level = info
//	file =
//
// Credentials are never stored here.
type Config struct {
	Storage  StorageConfig
	Transfer TransferConfig
	Proxy    ProxyConfig
	Logging  LoggingConfig
}

// StorageConfig selects the storage service.
type StorageConfig struct {
	// Region used for signing when credentials do not name one.
	// Default: us-east-1
	Region string `ini:"region"`

	// Endpoint overrides the AWS endpoint for S3-compatible services,
	// e.g. http://127.0.0.1:9000. Empty means AWS.
	Endpoint string `ini:"endpoint"`

	// PathStyle addresses objects as {endpoint}/{bucket}/{key}.
	// Only meaningful with Endpoint. Default: false
	PathStyle bool `ini:"path_style"`

	// Profile is the shared AWS config profile used when no keys are
	// given on the command line or in the environment.
	Profile string `ini:"profile"`
}

// TransferConfig controls retry and timeout behaviour.
type TransferConfig struct {
	// MaxAttempts is the total number of tries per request on transport failure.
	// Minimum: 1, Maximum: 10, Default: 3
	MaxAttempts int `ini:"max_attempts"`

	// BackoffStepSeconds is the linear backoff unit.
	// Minimum: 0, Maximum: 60, Default: 1
	BackoffStepSeconds int `ini:"backoff_step_seconds"`

	// RequestTimeoutSeconds bounds a single HTTP request.
	// Minimum: 1, Maximum: 3600, Default: 120
	RequestTimeoutSeconds int `ini:"request_timeout_seconds"`

	// PresignTTLSeconds is the lifetime of presigned download URLs.
	// Minimum: 1, Maximum: 604800, Default: 3600
	PresignTTLSeconds int `ini:"presign_ttl_seconds"`

	// MaxRequestsPerSecond paces requests to the storage service.
	// 0 disables pacing. Minimum: 0, Maximum: 10000, Default: 0
	MaxRequestsPerSecond float64 `ini:"max_requests_per_second"`

	// RequestBurst is how many requests may be sent back to back before
	// pacing applies. Minimum: 1, Maximum: 1000, Default: 10
	RequestBurst int `ini:"request_burst"`
}

// ProxyConfig contains outbound proxy settings.
type ProxyConfig struct {
	// Mode is one of no-proxy, system, basic, ntlm. Default: no-proxy
	Mode string `ini:"mode"`

	Host string `ini:"host"`
	Port int    `ini:"port"`
	User string `ini:"user"`

	// Password is never persisted; it is prompted for or taken from
	// S3FETCH_PROXY_PASSWORD.
	Password string `ini:"-"`

	// NoProxy is a comma-separated bypass list (hosts, *.domains, CIDRs).
	NoProxy string `ini:"no_proxy"`

	// Warmup sends one request through the proxy when the client is built.
	Warmup bool `ini:"warmup"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `ini:"level"`

	// File, when set, receives a rotating copy of the log.
	File string `ini:"file"`
}

// Config validation errors
var (
	ErrInvalidMaxAttempts    = errors.New("max_attempts must be between 1 and 10")
	ErrInvalidBackoffStep    = errors.New("backoff_step_seconds must be between 0 and 60")
	ErrInvalidRequestTimeout = errors.New("request_timeout_seconds must be between 1 and 3600")
	ErrInvalidPresignTTL     = errors.New("presign_ttl_seconds must be between 1 and 604800")
	ErrInvalidRequestRate    = errors.New("max_requests_per_second must be between 0 and 10000")
	ErrInvalidRequestBurst   = errors.New("request_burst must be between 1 and 1000")
	ErrInvalidProxyMode      = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost      = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidLogLevel       = errors.New("log level must be one of debug, info, warn, error")
	ErrInvalidEndpoint       = errors.New("endpoint must be an http or https URL")
)

// Proxy modes
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// DefaultConfigPath returns the default path for the s3fetch.conf file.
//   - Windows: %APPDATA%\s3fetch\s3fetch.conf
//   - Unix: ~/.config/s3fetch/s3fetch.conf
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "s3fetch")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "s3fetch")
	}

	return filepath.Join(configDir, "s3fetch.conf"), nil
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Region: constants.DefaultRegion,
		},
		Transfer: TransferConfig{
			MaxAttempts:           constants.MaxAttempts,
			BackoffStepSeconds:    int(constants.RetryBackoffStep / time.Second),
			RequestTimeoutSeconds: int(constants.HTTPRequestTimeout / time.Second),
			PresignTTLSeconds:     int(constants.DefaultPresignTTL / time.Second),
			RequestBurst:          constants.DefaultRequestBurst,
		},
		Proxy: ProxyConfig{
			Mode: ProxyModeNone,
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path. If path is empty, the default path
// is used. A missing file yields defaults and no error; a malformed file
// is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	storage := iniFile.Section("storage")
	cfg.Storage.Region = storage.Key("region").MustString(constants.DefaultRegion)
	cfg.Storage.Endpoint = storage.Key("endpoint").String()
	cfg.Storage.PathStyle = storage.Key("path_style").MustBool(false)
	cfg.Storage.Profile = storage.Key("profile").String()

	transfer := iniFile.Section("transfer")
	cfg.Transfer.MaxAttempts = transfer.Key("max_attempts").MustInt(cfg.Transfer.MaxAttempts)
	cfg.Transfer.BackoffStepSeconds = transfer.Key("backoff_step_seconds").MustInt(cfg.Transfer.BackoffStepSeconds)
	cfg.Transfer.RequestTimeoutSeconds = transfer.Key("request_timeout_seconds").MustInt(cfg.Transfer.RequestTimeoutSeconds)
	cfg.Transfer.PresignTTLSeconds = transfer.Key("presign_ttl_seconds").MustInt(cfg.Transfer.PresignTTLSeconds)
	cfg.Transfer.MaxRequestsPerSecond = transfer.Key("max_requests_per_second").MustFloat64(0)
	cfg.Transfer.RequestBurst = transfer.Key("request_burst").MustInt(cfg.Transfer.RequestBurst)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(ProxyModeNone)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(8080)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()
	cfg.Proxy.Warmup = proxy.Key("warmup").MustBool(false)

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString("info")
	cfg.Logging.File = logging.Key("file").String()

	return cfg, nil
}

// Save writes cfg to path, or the default path if path is empty.
// Parent directories are created as needed. The proxy password is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	storage, err := iniFile.NewSection("storage")
	if err != nil {
		return fmt.Errorf("failed to create storage section: %w", err)
	}
	storage.Key("region").SetValue(cfg.Storage.Region)
	storage.Key("endpoint").SetValue(cfg.Storage.Endpoint)
	storage.Key("path_style").SetValue(fmt.Sprintf("%t", cfg.Storage.PathStyle))
	storage.Key("profile").SetValue(cfg.Storage.Profile)

	transfer, err := iniFile.NewSection("transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("max_attempts").SetValue(fmt.Sprintf("%d", cfg.Transfer.MaxAttempts))
	transfer.Key("backoff_step_seconds").SetValue(fmt.Sprintf("%d", cfg.Transfer.BackoffStepSeconds))
	transfer.Key("request_timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.Transfer.RequestTimeoutSeconds))
	transfer.Key("presign_ttl_seconds").SetValue(fmt.Sprintf("%d", cfg.Transfer.PresignTTLSeconds))
	transfer.Key("max_requests_per_second").SetValue(fmt.Sprintf("%g", cfg.Transfer.MaxRequestsPerSecond))
	transfer.Key("request_burst").SetValue(fmt.Sprintf("%d", cfg.Transfer.RequestBurst))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	proxy.Key("host").SetValue(cfg.Proxy.Host)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	proxy.Key("user").SetValue(cfg.Proxy.User)
	proxy.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)
	proxy.Key("warmup").SetValue(fmt.Sprintf("%t", cfg.Proxy.Warmup))

	logging, err := iniFile.NewSection("logging")
	if err != nil {
		return fmt.Errorf("failed to create logging section: %w", err)
	}
	logging.Key("level").SetValue(cfg.Logging.Level)
	logging.Key("file").SetValue(cfg.Logging.File)

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (cfg *Config) Validate() error {
	if ep := strings.TrimSpace(cfg.Storage.Endpoint); ep != "" {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			return ErrInvalidEndpoint
		}
	}

	if cfg.Transfer.MaxAttempts < 1 || cfg.Transfer.MaxAttempts > 10 {
		return ErrInvalidMaxAttempts
	}
	if cfg.Transfer.BackoffStepSeconds < 0 || cfg.Transfer.BackoffStepSeconds > 60 {
		return ErrInvalidBackoffStep
	}
	if cfg.Transfer.RequestTimeoutSeconds < 1 || cfg.Transfer.RequestTimeoutSeconds > 3600 {
		return ErrInvalidRequestTimeout
	}
	if cfg.Transfer.PresignTTLSeconds < 1 || time.Duration(cfg.Transfer.PresignTTLSeconds)*time.Second > constants.MaxPresignTTL {
		return ErrInvalidPresignTTL
	}
	if cfg.Transfer.MaxRequestsPerSecond < 0 || cfg.Transfer.MaxRequestsPerSecond > 10000 {
		return ErrInvalidRequestRate
	}
	if cfg.Transfer.RequestBurst < 1 || cfg.Transfer.RequestBurst > 1000 {
		return ErrInvalidRequestBurst
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case ProxyModeNone, "", ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// BackoffStep returns the linear backoff unit.
func (cfg *Config) BackoffStep() time.Duration {
	return time.Duration(cfg.Transfer.BackoffStepSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout.
func (cfg *Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.Transfer.RequestTimeoutSeconds) * time.Second
}

// PresignTTL returns the lifetime of presigned download URLs.
func (cfg *Config) PresignTTL() time.Duration {
	return time.Duration(cfg.Transfer.PresignTTLSeconds) * time.Second
}

// ProxyActive reports whether requests may go through a proxy.
func (cfg *Config) ProxyActive() bool {
	switch strings.ToLower(cfg.Proxy.Mode) {
	case ProxyModeNone, "":
		return false
	case ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
