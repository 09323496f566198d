package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"devicepair/internal/adapter/credential"
	"devicepair/internal/adapter/settings"
	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

// deviceStatus is what "devicepair status" reports.
type deviceStatus struct {
	Paired    bool
	UUID      string
	ExpiresAt time.Time
	Settings  domain.WizardSettings
}

func loadStatus(ctx context.Context, cfg *config.Config) (*deviceStatus, error) {
	creds, err := credential.Open(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	defer creds.Close()

	st := &deviceStatus{}
	identity, err := creds.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCredentialsNotFound):
	case err != nil:
		return nil, fmt.Errorf("load credentials: %w", err)
	case identity.Valid():
		st.Paired = true
		st.UUID = identity.UUID
		st.ExpiresAt = identity.ExpiresAt
	}

	st.Settings, err = settings.New(cfg.Setup.SettingsPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

func printStatus(w io.Writer, st *deviceStatus) {
	paired := "no"
	if st.Paired {
		paired = "yes"
	}
	fmt.Fprintf(w, "Paired:    %s\n", paired)
	if st.Paired {
		fmt.Fprintf(w, "UUID:      %s\n", st.UUID)
		if !st.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "Expires:   %s\n", st.ExpiresAt.Format(time.RFC3339))
		}
	}
	s := st.Settings
	if s.SelectedBackend == "" {
		fmt.Fprintln(w, "Backend:   not selected")
		return
	}
	backend := string(s.SelectedBackend)
	if s.PairingURL != "" {
		backend += " (" + s.PairingURL + ")"
	}
	fmt.Fprintf(w, "Backend:   %s\n", backend)
	fmt.Fprintf(w, "STT:       %s\n", orDash(string(s.SelectedSTT)))
	fmt.Fprintf(w, "TTS:       %s\n", orDash(string(s.SelectedTTS)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runStatus(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := loadStatus(context.Background(), cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Device:    %s\n", cfg.Device.Name)
	printStatus(w, st)
	return nil
}

// unpair removes the device identity and the wizard choices so the next run
// starts setup from the beginning.
func unpair(ctx context.Context, cfg *config.Config) error {
	creds, err := credential.Open(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	defer creds.Close()

	if err := creds.Delete(ctx); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	if err := settings.New(cfg.Setup.SettingsPath).Delete(ctx); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

func runUnpair(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := unpair(context.Background(), cfg); err != nil {
		return err
	}
	fmt.Fprintln(w, "Device unpaired. Setup runs again on next start.")
	return nil
}
