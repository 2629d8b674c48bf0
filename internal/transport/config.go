package transport

import "time"

// Config holds backend connection settings.
type Config struct {
	// Endpoints are candidate base URLs, in preference order.
	Endpoints []string

	// AuthToken, if set, is sent as a bearer token.
	AuthToken string

	HealthPath       string
	HealthTimeout    time.Duration
	HealthAttempts   int
	HealthRetryDelay time.Duration

	// RequestTimeout bounds a single remote call including retries.
	RequestTimeout time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	// ProbeURL is the well-known host used for the connectivity pre-flight.
	ProbeURL     string
	ProbeTimeout time.Duration

	UserAgent string
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		HealthPath:       "/api/health",
		HealthTimeout:    3 * time.Second,
		HealthAttempts:   2,
		HealthRetryDelay: 400 * time.Millisecond,
		RequestTimeout:   30 * time.Second,
		RetryMax:         2,
		RetryWaitMin:     200 * time.Millisecond,
		RetryWaitMax:     2 * time.Second,
		RateLimit:        10,
		RateBurst:        20,
		ProbeURL:         "https://www.google.com",
		ProbeTimeout:     3 * time.Second,
		UserAgent:        "meshsync/1.0",
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.HealthPath == "" {
		c.HealthPath = d.HealthPath
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = d.HealthTimeout
	}
	if c.HealthAttempts <= 0 {
		c.HealthAttempts = d.HealthAttempts
	}
	if c.HealthRetryDelay < 0 {
		c.HealthRetryDelay = d.HealthRetryDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = d.RetryWaitMin
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = c.RetryWaitMin
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
}
