// Package credentials resolves the signing credentials handed to the
// downloader. Keys given on the command line win; otherwise the standard
// AWS chain (environment, shared config and credentials files, SSO) is
// consulted through the SDK.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// ErrNoCredentials is returned when no source yields an access key pair.
var ErrNoCredentials = errors.New("no credentials found: pass --access-key/--secret-key, set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY or configure a profile")

// Options selects the credential source.
type Options struct {
	AccessKey    string
	SecretKey    string
	SessionToken string

	// Region overrides the region from the environment or profile.
	Region string
	// Profile names a section of the shared AWS config files.
	Profile string
}

// Static reports whether the key pair was given explicitly.
func (o Options) Static() bool {
	return o.AccessKey != "" || o.SecretKey != ""
}

// Source is a credential provider plus the region that goes with it.
type Source struct {
	Provider aws.CredentialsProvider
	Region   string
}

// NewSource builds the provider for opts. Temporary credentials are wrapped
// in a cache that refreshes them ahead of expiry.
func NewSource(ctx context.Context, opts Options) (*Source, error) {
	if opts.Static() {
		if opts.AccessKey == "" || opts.SecretKey == "" {
			return nil, fmt.Errorf("%w: both access key and secret key must be given", ErrNoCredentials)
		}
		return &Source{
			Provider: awscreds.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
			Region:   opts.Region,
		}, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	// Off EC2 the IMDS probe stalls for seconds
	loadOpts = append(loadOpts, awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled))

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Credentials == nil {
		return nil, ErrNoCredentials
	}

	provider := cfg.Credentials
	if _, cached := provider.(*aws.CredentialsCache); !cached {
		provider = aws.NewCredentialsCache(provider, func(o *aws.CredentialsCacheOptions) {
			o.ExpiryWindow = 5 * time.Minute
		})
	}

	return &Source{Provider: provider, Region: cfg.Region}, nil
}
