package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/rescale/s3fetch/internal/sigv4"
)

// Manager hands out signing credentials to concurrent downloads. It
// retrieves from the provider once and reuses the result until it is close
// to expiry, so a batch does not hit the SSO or STS endpoints per object.
//
// Double-checked locking:
//   - Fast path: read lock, return cached credentials if still fresh
//   - Slow path: write lock, re-check, then retrieve
type Manager struct {
	provider aws.CredentialsProvider
	region   string
	window   time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	cached  *aws.Credentials
	fetched time.Time
}

// NewManager creates a Manager over src.
func NewManager(src *Source) *Manager {
	return &Manager{
		provider: src.Provider,
		region:   src.Region,
		window:   5 * time.Minute,
		now:      time.Now,
	}
}

// Get returns credentials ready for signing.
func (m *Manager) Get(ctx context.Context) (sigv4.Credentials, error) {
	m.mu.RLock()
	if m.fresh() {
		creds := m.convert(*m.cached)
		m.mu.RUnlock()
		return creds, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fresh() {
		return m.convert(*m.cached), nil
	}

	c, err := m.provider.Retrieve(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sigv4.Credentials{}, err
		}
		return sigv4.Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return sigv4.Credentials{}, ErrNoCredentials
	}

	m.cached = &c
	m.fetched = m.now()
	return m.convert(c), nil
}

// ForceRefresh drops the cached credentials so the next Get retrieves anew.
// Used after the server reports an expired token.
func (m *Manager) ForceRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
	if c, ok := m.provider.(*aws.CredentialsCache); ok {
		c.Invalidate()
	}
}

// Region is the region the credentials were resolved with. Empty means the
// signer default.
func (m *Manager) Region() string {
	return m.region
}

// fresh must be called with mu held.
func (m *Manager) fresh() bool {
	if m.cached == nil {
		return false
	}
	if !m.cached.CanExpire {
		return true
	}
	return m.now().Add(m.window).Before(m.cached.Expires)
}

func (m *Manager) convert(c aws.Credentials) sigv4.Credentials {
	return sigv4.Credentials{
		AccessKey:    c.AccessKeyID,
		SecretKey:    c.SecretAccessKey,
		SessionToken: c.SessionToken,
		Region:       m.region,
	}
}
