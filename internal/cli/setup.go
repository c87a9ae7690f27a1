package cli

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/rescale/s3fetch/internal/cloud/conntest"
	"github.com/rescale/s3fetch/internal/cloud/credentials"
	"github.com/rescale/s3fetch/internal/cloud/download"
	"github.com/rescale/s3fetch/internal/config"
	s3http "github.com/rescale/s3fetch/internal/http"
	"github.com/rescale/s3fetch/internal/logging"
	"github.com/rescale/s3fetch/internal/metrics"
	"github.com/rescale/s3fetch/internal/ratelimit"
	"github.com/rescale/s3fetch/internal/sigv4"
)

// proxyPasswordEnv supplies the proxy password without a prompt.
const proxyPasswordEnv = "S3FETCH_PROXY_PASSWORD"

// session is everything a command needs to talk to the storage service.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	client  *nethttp.Client
	fetcher *s3http.Fetcher
	signer  *sigv4.Signer
	metrics *metrics.Metrics
	creds   *credentials.Manager
}

// loadConfig reads the config file and applies the global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with the global flags that were set.
func applyFlags(cfg *config.Config) {
	if region != "" {
		cfg.Storage.Region = region
	}
	if endpoint != "" {
		cfg.Storage.Endpoint = endpoint
	}
	if pathStyle {
		cfg.Storage.PathStyle = true
	}
	if profile != "" {
		cfg.Storage.Profile = profile
	}
	if maxRPS > 0 {
		cfg.Transfer.MaxRequestsPerSecond = maxRPS
	}
}

// newSession builds the HTTP client, fetcher and signer from config. When
// withCreds is set it also resolves credentials, prompting for a missing
// secret key on a terminal.
func newSession(ctx context.Context, withCreds bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	if cfg.Logging.File != "" {
		log = logging.NewLogger(os.Stderr, config.ResolveLogFile(cfg.Logging.File))
		logger = log
	}
	if !verbose && !debug {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	if s3http.NeedsProxyPassword(cfg) {
		cfg.Proxy.Password = os.Getenv(proxyPasswordEnv)
		if cfg.Proxy.Password == "" {
			pw, err := promptSecret(fmt.Sprintf("Proxy password for %s: ", cfg.Proxy.User))
			if err != nil {
				return nil, fmt.Errorf("proxy password required (set %s): %w", proxyPasswordEnv, err)
			}
			cfg.Proxy.Password = pw
		}
	}

	client, err := s3http.CreateOptimizedClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var signerOpts []sigv4.Option
	if cfg.Storage.Endpoint != "" {
		ep, err := sigv4.ParseEndpoint(cfg.Storage.Endpoint, cfg.Storage.PathStyle)
		if err != nil {
			return nil, err
		}
		signerOpts = append(signerOpts, sigv4.WithEndpoint(ep))
	}

	m := metrics.New()
	s := &session{
		cfg:     cfg,
		logger:  log,
		client:  client,
		signer:  sigv4.NewSigner(signerOpts...),
		metrics: m,
		fetcher: s3http.NewFetcher(client, cfg.Transfer.MaxAttempts, cfg.BackoffStep(),
			s3http.WithLogger(log),
			s3http.WithRetryObserver(m),
			s3http.WithRateLimit(ratelimit.New(cfg.Transfer.MaxRequestsPerSecond, cfg.Transfer.RequestBurst, log)),
		),
	}

	if withCreds {
		if s.creds, err = resolveCredentials(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func resolveCredentials(ctx context.Context, cfg *config.Config) (*credentials.Manager, error) {
	opts := credentials.Options{
		AccessKey:    accessKey,
		SecretKey:    secretKey,
		SessionToken: sessionToken,
		Region:       region,
		Profile:      cfg.Storage.Profile,
	}
	if opts.AccessKey != "" && opts.SecretKey == "" {
		secret, err := promptSecret("Secret access key: ")
		if err != nil {
			return nil, fmt.Errorf("secret key required: %w", err)
		}
		opts.SecretKey = secret
	}

	src, err := credentials.NewSource(ctx, opts)
	if err != nil {
		return nil, err
	}
	if src.Region == "" {
		src.Region = cfg.Storage.Region
	}
	return credentials.NewManager(src), nil
}

func (s *session) downloader() *download.Downloader {
	return download.New(s.signer, s.fetcher,
		download.WithLogger(s.logger),
		download.WithMetrics(s.metrics),
		download.WithPresignTTL(s.cfg.PresignTTL()),
	)
}

func (s *session) tester() *conntest.Tester {
	return conntest.New(s.signer, s.fetcher,
		conntest.WithLogger(s.logger),
		conntest.WithMetrics(s.metrics),
	)
}

// close writes the metrics textfile if requested and releases the log file.
func (s *session) close() {
	if metricsTextfile != "" {
		if err := s.metrics.WriteTextfile(metricsTextfile); err != nil {
			s.logger.Warn().Err(err).Str("path", metricsTextfile).Msg("Failed to write metrics")
		}
	}
	_ = s.logger.Close()
}
