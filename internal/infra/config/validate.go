package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validatePairing(cfg, ve)
	validateBackend(cfg, ve)
	validateCredentials(cfg, ve)
	validateSetup(cfg, ve)
	validateGateway(cfg, ve)
	validateReporting(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validatePairing(cfg *Config, ve *ValidationError) {
	p := cfg.Pairing
	if p.PollInterval <= 0 {
		ve.Add("pairing.poll_interval must be > 0")
	}
	if p.CodeTTL <= p.PollInterval {
		ve.Add("pairing.code_ttl must be greater than poll_interval")
	}
	if p.ReminderEvery <= 0 {
		ve.Add("pairing.reminder_every must be > 0")
	}
	if p.IssueBackoff < 0 {
		ve.Add("pairing.issue_backoff must be >= 0")
	}
	if p.IssueMaxFailures <= 0 {
		ve.Add("pairing.issue_max_failures must be > 0")
	}
}

func validateBackend(cfg *Config, ve *ValidationError) {
	b := cfg.Backend
	if b.URL == "" {
		ve.Add("backend.url is required")
	} else if u, err := url.Parse(b.URL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("backend.url %q is not an absolute URL", b.URL)
	}
	if b.Timeout <= 0 {
		ve.Add("backend.timeout must be > 0")
	}
	if b.RatePerSec < 0 {
		ve.Add("backend.rate_per_sec must be >= 0")
	}
	if b.RatePerSec > 0 && b.Burst <= 0 {
		ve.Add("backend.burst must be > 0 when rate_per_sec is set")
	}
	if b.CircuitBreaker.Enabled && b.CircuitBreaker.MaxFailures == 0 {
		ve.Add("backend.circuit_breaker.max_failures must be > 0")
	}
}

var validCredentialDrivers = map[string]bool{"file": true, "sqlite": true}

func validateCredentials(cfg *Config, ve *ValidationError) {
	if !validCredentialDrivers[cfg.Credentials.Driver] {
		ve.Add("credentials.driver %q is invalid (want file or sqlite)", cfg.Credentials.Driver)
	}
	if cfg.Credentials.Path == "" {
		ve.Add("credentials.path is required")
	}
}

var validSetupModes = map[string]bool{"auto": true, "voice": true, "gui": true, "hybrid": true}

func validateSetup(cfg *Config, ve *ValidationError) {
	s := cfg.Setup
	if !validSetupModes[s.Mode] {
		ve.Add("setup.mode %q is invalid (want auto, voice, gui or hybrid)", s.Mode)
	}
	if (s.Mode == "gui" || s.Mode == "hybrid") && !cfg.Gateway.Enabled {
		ve.Add("setup.mode %q requires gateway.enabled", s.Mode)
	}
	if s.VoiceMaxAttempts <= 0 {
		ve.Add("setup.voice_max_attempts must be > 0")
	}
	if s.VoiceRetryPause < 0 || s.ConfirmPause < 0 || s.DisplayLinger < 0 {
		ve.Add("setup pauses must be >= 0")
	}
	if s.SettingsPath == "" {
		ve.Add("setup.settings_path is required")
	}
	if s.UserConfigPath == "" {
		ve.Add("setup.user_config_path is required")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.Auth.Type == "static" && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty for static auth")
	}
}

func validateReporting(cfg *Config, ve *ValidationError) {
	if !cfg.Reporting.Enabled {
		return
	}
	if _, err := cron.ParseStandard(cfg.Reporting.Schedule); err != nil {
		ve.Add("reporting.schedule %q: %v", cfg.Reporting.Schedule, err)
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want text or json)", f)
	}
}
