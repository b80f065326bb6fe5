package config

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the civil date format used in configuration and checkpoints
const DateLayout = "2006-01-02"

// State backends
const (
	StateBackendFile     = "file"
	StateBackendRedis    = "redis"
	StateBackendPostgres = "postgres"
)

// Output modes
const (
	OutputModeSinger = "singer"
	OutputModeFile   = "file"
)

// TapConfig is the single configuration structure for a sync run.
type TapConfig struct {
	// Name identifies the tap instance in logs and metrics
	Name string `yaml:"name" json:"name"`

	Credentials   CredentialsConfig   `yaml:"credentials" json:"credentials"`
	Sync          SyncConfig          `yaml:"sync" json:"sync"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts"`
	State         StateConfig         `yaml:"state" json:"state"`
	Output        OutputConfig        `yaml:"output" json:"output"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// CredentialsConfig holds the WSSE API user.
type CredentialsConfig struct {
	Username string `yaml:"username" json:"username"`
	Secret   string `yaml:"secret" json:"secret"`
	// BaseURL is the API root, e.g. https://api.emarsys.net/api/v2
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// SyncConfig controls what is extracted.
type SyncConfig struct {
	// StartDate is the first metric date (YYYY-MM-DD or RFC 3339). Empty means today.
	StartDate string `yaml:"start_date" json:"start_date"`
	// EndDate is the last metric date, inclusive. Empty means today.
	EndDate string `yaml:"end_date" json:"end_date"`
	// ContactsPageSize is the limit used by the two-step contact query
	ContactsPageSize int `yaml:"contacts_page_size" json:"contacts_page_size"`
	// MembershipsPageSize is the limit used for contact list memberships
	MembershipsPageSize int `yaml:"memberships_page_size" json:"memberships_page_size"`
}

// ReliabilityConfig contains rate limiting and job polling settings.
type ReliabilityConfig struct {
	// RateLimitWindow is the rolling window allowing one metric job creation
	RateLimitWindow time.Duration `yaml:"rate_limit_window" json:"rate_limit_window"`
	// RateLimitMaxAttempts caps job creation attempts on rate limit rejections
	RateLimitMaxAttempts int `yaml:"rate_limit_max_attempts" json:"rate_limit_max_attempts"`
	// RateLimitInitialBackoff is the first backoff delay after a rejection
	RateLimitInitialBackoff time.Duration `yaml:"rate_limit_initial_backoff" json:"rate_limit_initial_backoff"`
	// RateLimitMaxBackoff caps the exponential backoff delay
	RateLimitMaxBackoff time.Duration `yaml:"rate_limit_max_backoff" json:"rate_limit_max_backoff"`
	// PollInterval is the fixed delay between job result polls
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// PollMaxAttempts is the number of polls before a job is declared timed out
	PollMaxAttempts int `yaml:"poll_max_attempts" json:"poll_max_attempts"`
}

// TimeoutConfig contains timeout settings.
type TimeoutConfig struct {
	// Request timeout for individual API calls
	Request time.Duration `yaml:"request" json:"request"`
}

// StateConfig selects and configures the checkpoint backend.
type StateConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Path          string `yaml:"path" json:"path"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
	PostgresDSN   string `yaml:"postgres_dsn" json:"postgres_dsn"`
	// TapID keys the checkpoint row when several taps share a database
	TapID string `yaml:"tap_id" json:"tap_id"`
	// EmitMessages echoes every checkpoint as a Singer STATE message on stdout
	EmitMessages bool `yaml:"emit_messages" json:"emit_messages"`
}

// OutputConfig selects the record sink.
type OutputConfig struct {
	Mode string `yaml:"mode" json:"mode"`
	// Dir is the output directory for file mode
	Dir string `yaml:"dir" json:"dir"`
	// Compression for file mode (none, gzip, zstd, snappy, s2, lz4)
	Compression string `yaml:"compression" json:"compression"`
}

// ObservabilityConfig contains logging, tracing and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// EnableTracing exports spans to stderr
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// MetricsPushgateway, when set, receives the run's metrics at exit
	MetricsPushgateway string `yaml:"metrics_pushgateway" json:"metrics_pushgateway"`
}

// NewTapConfig creates a TapConfig with production defaults.
func NewTapConfig() *TapConfig {
	return &TapConfig{
		Name: "emarsys",
		Credentials: CredentialsConfig{
			BaseURL: "https://api.emarsys.net/api/v2",
		},
		Sync: SyncConfig{
			ContactsPageSize:    1000,
			MembershipsPageSize: 1000000,
		},
		Reliability: ReliabilityConfig{
			// 60 seconds needs padding by 1 second to stay under the provider quota
			RateLimitWindow:         61 * time.Second,
			RateLimitMaxAttempts:    5,
			RateLimitInitialBackoff: time.Second,
			RateLimitMaxBackoff:     5 * time.Minute,
			PollInterval:            5 * time.Second,
			PollMaxAttempts:         10,
		},
		Timeouts: TimeoutConfig{
			Request: 60 * time.Second,
		},
		State: StateConfig{
			Backend:  StateBackendFile,
			Path:     "state.json",
			RedisKey: "emarsys-tap:state",
			TapID:    "emarsys",
		},
		Output: OutputConfig{
			Mode:        OutputModeSinger,
			Dir:         "output",
			Compression: "none",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "json",
		},
	}
}

// Validate validates the configuration for correctness and returns the first problem found.
func (c *TapConfig) Validate() error {
	if c.Credentials.Username == "" {
		return fmt.Errorf("credentials.username is required")
	}
	if c.Credentials.Secret == "" {
		return fmt.Errorf("credentials.secret is required")
	}
	if c.Credentials.BaseURL == "" {
		return fmt.Errorf("credentials.base_url is required")
	}
	if c.Sync.StartDate != "" {
		if _, err := ParseDate(c.Sync.StartDate); err != nil {
			return fmt.Errorf("sync.start_date: %w", err)
		}
	}
	if c.Sync.EndDate != "" {
		if _, err := ParseDate(c.Sync.EndDate); err != nil {
			return fmt.Errorf("sync.end_date: %w", err)
		}
	}
	if c.Sync.ContactsPageSize <= 0 {
		return fmt.Errorf("sync.contacts_page_size must be positive")
	}
	if c.Sync.MembershipsPageSize <= 0 {
		return fmt.Errorf("sync.memberships_page_size must be positive")
	}
	if c.Reliability.RateLimitWindow <= 0 {
		return fmt.Errorf("reliability.rate_limit_window must be positive")
	}
	if c.Reliability.RateLimitMaxAttempts < 1 {
		return fmt.Errorf("reliability.rate_limit_max_attempts must be at least 1")
	}
	if c.Reliability.RateLimitInitialBackoff < 0 {
		return fmt.Errorf("reliability.rate_limit_initial_backoff cannot be negative")
	}
	if c.Reliability.PollInterval < 0 {
		return fmt.Errorf("reliability.poll_interval cannot be negative")
	}
	if c.Reliability.PollMaxAttempts < 1 {
		return fmt.Errorf("reliability.poll_max_attempts must be at least 1")
	}

	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case StateBackendRedis:
		if c.State.RedisAddr == "" {
			return fmt.Errorf("state.redis_addr is required for the redis backend")
		}
	case StateBackendPostgres:
		if c.State.PostgresDSN == "" {
			return fmt.Errorf("state.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown state.backend %q", c.State.Backend)
	}

	switch c.Output.Mode {
	case OutputModeSinger:
	case OutputModeFile:
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir is required for file output")
		}
	default:
		return fmt.Errorf("unknown output.mode %q", c.Output.Mode)
	}

	return nil
}

// ParseDate parses a civil date or an RFC 3339 timestamp and returns midnight UTC of that date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
