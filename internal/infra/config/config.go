package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Pairing      PairingConfig      `yaml:"pairing"`
	Backend      BackendConfig      `yaml:"backend"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	Setup        SetupConfig        `yaml:"setup"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Reporting    ReportingConfig    `yaml:"reporting"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// DeviceConfig describes the local device.
type DeviceConfig struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Lang     string `yaml:"lang"`
	DataDir  string `yaml:"data_dir"`
}

// PairingConfig holds the device-code flow timings.
type PairingConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	CodeTTL          time.Duration `yaml:"code_ttl"`
	ReminderEvery    int           `yaml:"reminder_every"`
	IssueBackoff     time.Duration `yaml:"issue_backoff"`
	IssueMaxFailures int           `yaml:"issue_max_failures"`
	// PairingURL is shown to the user as the place to enter the code.
	PairingURL string `yaml:"pairing_url"`
}

// BackendConfig holds identity backend client settings.
type BackendConfig struct {
	URL            string               `yaml:"url"`
	Version        string               `yaml:"version"`
	Timeout        time.Duration        `yaml:"timeout"`
	RatePerSec     float64              `yaml:"rate_per_sec"`
	Burst          int                  `yaml:"burst"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for backend calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// CredentialsConfig selects where device identity is stored.
type CredentialsConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlite"
	Path   string `yaml:"path"`
	// Key encrypts tokens at rest in the file driver. Prefer the
	// DEVICEPAIR_CREDENTIALS_KEY env var over storing it here.
	Key string `yaml:"key,omitempty"`
}

// SetupConfig holds setup wizard settings.
type SetupConfig struct {
	Mode             string        `yaml:"mode"` // auto, voice, gui, hybrid
	VoiceRetryPause  time.Duration `yaml:"voice_retry_pause"`
	VoiceMaxAttempts int           `yaml:"voice_max_attempts"`
	ConfirmPause     time.Duration `yaml:"confirm_pause"`
	DisplayLinger    time.Duration `yaml:"display_linger"`
	SettingsPath     string        `yaml:"settings_path"`
	UserConfigPath   string        `yaml:"user_config_path"`
	DialogsPath      string        `yaml:"dialogs_path,omitempty"`
}

// ConnectivityConfig holds the boot-time internet check.
type ConnectivityConfig struct {
	CheckURL string        `yaml:"check_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled bool       `yaml:"enabled"`
	Addr    string     `yaml:"addr"`
	Auth    AuthConfig `yaml:"auth"`
	// RequestsPerMin limits HTTP requests per client IP. 0 disables it.
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// DiscoveryConfig holds LAN backend discovery settings.
type DiscoveryConfig struct {
	MDNS    bool          `yaml:"mdns"`
	Service string        `yaml:"service"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReportingConfig holds device attribute reporting settings.
type ReportingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// defaultDataDir returns the persistent data directory under $HOME/.devicepair.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".devicepair")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Device: DeviceConfig{
			Name:     "devicepair",
			Platform: "linux",
			Lang:     "en-us",
			DataDir:  dataDir,
		},
		Pairing: PairingConfig{
			PollInterval:     5 * time.Second,
			CodeTTL:          72000 * time.Second,
			ReminderEvery:    6,
			IssueBackoff:     10 * time.Second,
			IssueMaxFailures: 30,
			PairingURL:       "home.mycroft.ai",
		},
		Backend: BackendConfig{
			URL:        "https://api.mycroft.ai",
			Version:    "v1",
			Timeout:    15 * time.Second,
			RatePerSec: 2,
			Burst:      4,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Credentials: CredentialsConfig{
			Driver: "file",
			Path:   filepath.Join(dataDir, "identity2.json"),
		},
		Setup: SetupConfig{
			Mode:             "auto",
			VoiceRetryPause:  2 * time.Second,
			VoiceMaxAttempts: 5,
			ConfirmPause:     3 * time.Second,
			DisplayLinger:    5 * time.Second,
			SettingsPath:     filepath.Join(dataDir, "setup_settings.yaml"),
			UserConfigPath:   filepath.Join(dataDir, "user.yaml"),
		},
		Connectivity: ConnectivityConfig{
			CheckURL: "https://connectivitycheck.gstatic.com/generate_204",
			Timeout:  5 * time.Second,
		},
		Gateway: GatewayConfig{
			Enabled:        false,
			Addr:           ":8090",
			RequestsPerMin: 120,
			Burst:          30,
		},
		Discovery: DiscoveryConfig{
			MDNS:    false,
			Service: "_ovos-backend._tcp",
			Timeout: 3 * time.Second,
		},
		Reporting: ReportingConfig{
			Enabled:  true,
			Schedule: "@every 12h",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("DEVICEPAIR_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps DEVICEPAIR_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVICEPAIR_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}
	if v := os.Getenv("DEVICEPAIR_DATA_DIR"); v != "" {
		cfg.Device.DataDir = v
	}
	if v := os.Getenv("DEVICEPAIR_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("DEVICEPAIR_PAIRING_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pairing.PollInterval = d
		}
	}
	if v := os.Getenv("DEVICEPAIR_PAIRING_ISSUE_MAX_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pairing.IssueMaxFailures = n
		}
	}
	if v := os.Getenv("DEVICEPAIR_CREDENTIALS_DRIVER"); v != "" {
		cfg.Credentials.Driver = v
	}
	if v := os.Getenv("DEVICEPAIR_CREDENTIALS_PATH"); v != "" {
		cfg.Credentials.Path = v
	}
	if v := os.Getenv("DEVICEPAIR_CREDENTIALS_KEY"); v != "" {
		cfg.Credentials.Key = v
	}
	if v := os.Getenv("DEVICEPAIR_SETUP_MODE"); v != "" {
		cfg.Setup.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("DEVICEPAIR_GATEWAY_ENABLED"); v != "" {
		cfg.Gateway.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DEVICEPAIR_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("DEVICEPAIR_DISCOVERY_MDNS"); v == "true" {
		cfg.Discovery.MDNS = true
	}
	if v := os.Getenv("DEVICEPAIR_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DEVICEPAIR_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("DEVICEPAIR_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("DEVICEPAIR_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("DEVICEPAIR_GATEWAY_TOKENS"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = nil
		for i, tok := range splitAndTrim(v, ",") {
			if tok == "" {
				continue
			}
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
				Token: tok,
				Name:  fmt.Sprintf("env-%d", i),
			})
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
