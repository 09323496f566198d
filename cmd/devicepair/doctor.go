package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devicepair/internal/adapter/credential"
	"devicepair/internal/adapter/netcheck"
	"devicepair/internal/adapter/settings"
	"devicepair/internal/adapter/voice"
	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const doctorTimeout = 10 * time.Second

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer) error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Device identity", Fn: checkIdentity},
		{Name: "Dialogs", Fn: checkDialogs},
		{Name: "Network", Fn: checkNetwork},
		{Name: "Backend", Fn: checkBackend},
		{Name: "Gateway port", Fn: checkGatewayPort},
	}
	return report(w, checks, cfg)
}

func report(w io.Writer, checks []Check, cfg *config.Config) error {
	fmt.Fprintln(w, "devicepair doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before running devicepair.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\ndevicepair should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports on the config file. A missing file is only a
// warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and file permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkDataDir verifies the data directory exists and is writable.
func checkDataDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	absDir, _ := filepath.Abs(cfg.Device.DataDir)

	info, err := os.Stat(absDir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(absDir, 0o700); mkErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("data directory %s does not exist and cannot be created: %v", absDir, mkErr),
				Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("data directory created at %s", absDir)}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot stat data directory: %v", err)}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s exists but is not a directory", absDir)}
	}

	probe := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(probe)

	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("data directory %s writable", absDir)}
}

// checkIdentity loads the stored device identity.
func checkIdentity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	creds, err := credential.Open(cfg.Credentials)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Set credentials.driver to file or sqlite"}
	}
	defer creds.Close()

	identity, err := creds.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCredentialsNotFound):
		return CheckResult{Status: StatusWarn, Message: "device not paired, setup will run on start"}
	case errors.Is(err, domain.ErrEncryption):
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot decrypt identity: %v", err),
			Fix:     "Set DEVICEPAIR_CREDENTIALS_KEY to the key used when pairing, or run 'devicepair unpair'",
		}
	case err != nil:
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot read identity: %v", err)}
	}

	msg := fmt.Sprintf("paired as %s (%s)", identity.UUID, cfg.Credentials.Driver)
	if !identity.ExpiresAt.IsZero() && identity.ExpiresAt.Before(time.Now()) {
		return CheckResult{Status: StatusWarn, Message: msg + ", access token expired"}
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

// checkDialogs verifies a dialog override file parses.
func checkDialogs(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if _, err := voice.LoadCatalog(cfg.Setup.DialogsPath); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("dialog overrides: %v", err),
			Fix:     "Fix or remove setup.dialogs_path",
		}
	}
	if cfg.Setup.DialogsPath == "" {
		return CheckResult{Status: StatusPass, Message: "built-in dialogs"}
	}
	return CheckResult{Status: StatusPass, Message: "dialog overrides loaded from " + cfg.Setup.DialogsPath}
}

// checkNetwork runs the same connectivity probe as the wizard.
func checkNetwork(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	checker := netcheck.New(cfg.Connectivity, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !checker.Connected(ctx) {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no internet connection, the wizard will start at wifi setup",
		}
	}
	return CheckResult{Status: StatusPass, Message: "internet reachable"}
}

// checkBackend tests whether the identity backend answers. Offline setups
// skip it.
func checkBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	ws, err := settings.New(cfg.Setup.SettingsPath).Load(ctx)
	if err == nil && ws.SelectedBackend == domain.BackendOffline {
		return CheckResult{Status: StatusPass, Message: "offline backend selected, skipped"}
	}
	endpoint := cfg.Backend.URL
	if err == nil && ws.SelectedBackend == domain.BackendPersonal && ws.PairingURL != "" {
		endpoint = ws.PairingURL
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("bad backend url %q: %v", endpoint, err)}
	}
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check backend.url and your firewall settings",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}

// checkGatewayPort verifies the gateway address can be bound.
func checkGatewayPort(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Another devicepair may already be running; check 'devicepair service status'",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s available", cfg.Gateway.Addr)}
}
