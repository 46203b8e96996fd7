package delta

import (
	"time"

	"github.com/Cyvadra/tv-autotrade/broker"
	"golang.org/x/time/rate"
)

// Options configure every client the factory builds
type Options struct {
	Region    string
	Testnet   bool
	Timeout   time.Duration
	RateLimit float64 // requests per second across all accounts, 0 disables
	Burst     int
	BaseURL   string // overrides region/testnet resolution
}

// Factory builds per-account clients that share one outbound limiter
type Factory struct {
	opts    Options
	limiter *rate.Limiter
}

// NewFactory creates a gateway factory
func NewFactory(opts Options) *Factory {
	f := &Factory{opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return f
}

// New returns a gateway for credentials; account-level region/testnet win over defaults
func (f *Factory) New(credentials *broker.Credentials) (broker.Gateway, error) {
	if !credentials.Valid() {
		return nil, broker.NewBrokerError(name, "INVALID_CREDENTIALS", "API key and secret are required", broker.ErrInvalidCredentials)
	}

	baseURL := f.opts.BaseURL
	if baseURL == "" {
		region := credentials.Region
		if region == "" {
			region = f.opts.Region
		}
		baseURL = BaseURL(region, credentials.Testnet || f.opts.Testnet)
	}

	return NewClient(baseURL, credentials, f.opts.Timeout, f.limiter), nil
}
