package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"devicepair/internal/adapter/backend"
	"devicepair/internal/adapter/credential"
	"devicepair/internal/adapter/discovery"
	"devicepair/internal/adapter/gateway"
	"devicepair/internal/adapter/netcheck"
	"devicepair/internal/adapter/settings"
	"devicepair/internal/adapter/userconfig"
	"devicepair/internal/adapter/voice"
	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
	"devicepair/internal/infra/logger"
	"devicepair/internal/infra/metrics"
	"devicepair/internal/infra/tracer"
	"devicepair/internal/usecase/eventbus"
	"devicepair/internal/usecase/pairing"
	"devicepair/internal/usecase/scheduling"
	"devicepair/internal/usecase/setup"
)

const shutdownTimeout = 10 * time.Second

func run() error {
	ctx := context.Background()

	// 1. Config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	log.Info("devicepair starting", "version", version, "device", cfg.Device.Name, "config", configPath())

	// 3. Event bus
	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()

	// 4. Identity and settings storage
	if err := os.MkdirAll(cfg.Device.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	creds, err := credential.Open(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	defer creds.Close()

	// 5. Backend client and pairing coordinator
	client := backend.New(cfg.Backend, backend.DeviceInfo{
		CoreVersion: version,
		Platform:    cfg.Device.Platform,
	}, creds, logger.Component(log, "backend"))

	coordinator := pairing.New(client, creds, bus, pairingConfig(cfg.Pairing), logger.Component(log, "pairing"))

	// 6. Setup wizard
	mode := setup.ResolveMode(cfg.Setup.Mode, cfg.Gateway.Enabled)
	manager := setup.NewManager(userconfig.New(cfg.Setup.UserConfigPath), creds, client, bus, logger.Component(log, "setup"))

	var console *voice.Console
	if mode.UsesVoiceInput() {
		catalog, err := voice.LoadCatalog(cfg.Setup.DialogsPath)
		if err != nil {
			return fmt.Errorf("dialogs: %w", err)
		}
		console = voice.NewConsole(os.Stdin, os.Stdout, catalog, logger.Component(log, "voice"))
	}

	deps := setup.Deps{
		Pairing:  coordinator,
		Manager:  manager,
		Settings: settings.New(cfg.Setup.SettingsPath),
		Creds:    creds,
		Network:  netcheck.New(cfg.Connectivity, logger.Component(log, "netcheck")),
		Bus:      bus,
		Logger:   logger.Component(log, "wizard"),
	}
	if console != nil {
		deps.Voice = console
	}
	wizard, err := setup.New(deps, setupConfig(cfg.Setup, mode))
	if err != nil {
		return fmt.Errorf("setup wizard: %w", err)
	}
	coordinator.SetCallbacks(wizard.PairingCallbacks())
	defer coordinator.Shutdown()
	defer wizard.Close()

	if console != nil {
		console.SetUtteranceHandler(func(u string) {
			routeUtterance(ctx, u, wizard.Converse, bus, log)
		})
		defer console.Stop()
	}

	// 7. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 8. Scheduler
	var nextReport func() *time.Time
	if cfg.Reporting.Enabled {
		sched, err := startReporting(ctx, cfg.Reporting, manager, logger.Component(log, "scheduler"))
		if err != nil {
			return err
		}
		nextReport = func() *time.Time { return sched.NextRun(reportTask) }
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", "error", err)
			}
		}()
	}

	// 9. Gateway
	if cfg.Gateway.Enabled {
		gw, err := startGateway(ctx, cfg, bus, wizard, coordinator, creds, nextReport, log)
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := gw.Stop(stopCtx); err != nil {
				log.Warn("gateway stop failed", "error", err)
			}
		}()
	}

	// 10. Start the wizard, then look for personal backends in the background.
	if err := wizard.Initialize(ctx); err != nil {
		return fmt.Errorf("setup wizard: %w", err)
	}
	go discovery.Announce(ctx, discovery.New(cfg.Discovery, logger.Component(log, "discovery")), bus, log)

	log.Info("devicepair ready", "mode", string(mode), "state", string(wizard.State()))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func pairingConfig(c config.PairingConfig) pairing.Config {
	return pairing.Config{
		PollInterval:     c.PollInterval,
		CodeTTL:          c.CodeTTL,
		ReminderEvery:    c.ReminderEvery,
		IssueBackoff:     c.IssueBackoff,
		IssueMaxFailures: c.IssueMaxFailures,
	}
}

func setupConfig(c config.SetupConfig, mode domain.PairingMode) setup.Config {
	return setup.Config{
		Mode:             mode,
		VoiceRetryPause:  c.VoiceRetryPause,
		VoiceMaxAttempts: c.VoiceMaxAttempts,
		ConfirmPause:     c.ConfirmPause,
		DisplayLinger:    c.DisplayLinger,
	}
}

const reportTask = "device-attributes"

func startReporting(ctx context.Context, cfg config.ReportingConfig, manager *setup.Manager, log *slog.Logger) (*scheduling.Scheduler, error) {
	sched := scheduling.NewScheduler(log)
	sched.RegisterAction(scheduling.ActionReportAttributes, func(ctx context.Context) error {
		manager.ReportDeviceAttributes(ctx)
		return nil
	})
	if err := sched.AddTask(scheduling.ScheduledTask{
		Name:     reportTask,
		Schedule: cfg.Schedule,
		Action:   scheduling.ActionReportAttributes,
		Timeout:  time.Minute,
	}); err != nil {
		return nil, fmt.Errorf("schedule attribute reports: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return sched, nil
}

func startGateway(ctx context.Context, cfg *config.Config, bus domain.EventBus, wizard *setup.Wizard, coordinator *pairing.Coordinator, creds domain.CredentialStore, nextReport func() *time.Time, log *slog.Logger) (*gateway.Server, error) {
	gwLog := logger.Component(log, "gateway")
	srv := gateway.NewServer(bus, gateway.NewAuthenticator(cfg.Gateway.Auth), cfg.Gateway.Addr, gateway.Options{
		RequestsPerMin: cfg.Gateway.RequestsPerMin,
		Burst:          cfg.Gateway.Burst,
	}, gwLog)

	deps := gateway.HandlerDeps{
		Bus:           bus,
		State:         wizard.State,
		Settings:      wizard.Settings,
		Creds:         creds,
		PairingActive: coordinator.Active,
		PairingCycle: func() gateway.PairingCycle {
			snap := coordinator.Snapshot()
			return gateway.PairingCycle{Code: snap.Code, ExpiresAt: snap.ExpiresAt, IssueFailures: snap.Failures}
		},
		CancelStep: wizard.CancelStep,
		NextReport: nextReport,
		Logger:     gwLog,
	}
	if wizard.Mode().UsesVoiceInput() {
		deps.Converse = wizard.Converse
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.Handler()
	}
	if err := gateway.RegisterHandlers(srv, deps); err != nil {
		return nil, fmt.Errorf("gateway handlers: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	log.Info("gateway listening", "addr", srv.BoundAddr())
	return srv, nil
}

var pairIntent = regexp.MustCompile(`(?i)\bpair\b.*\b(device|unit|me)\b`)

// routeUtterance offers an unsolicited utterance to the wizard first. Outside
// of setup, "pair my device" becomes a pairing intent.
func routeUtterance(ctx context.Context, u string, converse func(string) bool, bus domain.EventBus, log *slog.Logger) {
	if converse(u) {
		return
	}
	if pairIntent.MatchString(u) {
		bus.Publish(ctx, domain.NewEvent(domain.EventPairingIntent, "voice", nil))
		return
	}
	log.Debug("utterance ignored", "utterance", u)
}
