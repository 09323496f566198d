package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"devicepair/internal/adapter/tui/surface"
	"devicepair/internal/adapter/tui/uxerror"
)

const dialTimeout = 5 * time.Second

var errNoGateway = errors.New("gateway is disabled in config")

// runSurface attaches the terminal setup screen to a running service.
func runSurface() error {
	addr := flagValue("addr")
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Gateway.Enabled {
			return fmt.Errorf("%w: set gateway.enabled or pass --addr", errNoGateway)
		}
		addr = cfg.Gateway.Addr
	}
	token := flagValue("token")
	if token == "" {
		token = os.Getenv("DEVICEPAIR_SURFACE_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	client, err := surface.Dial(ctx, dialAddr(addr), token)
	if err != nil {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
		return err
	}
	defer client.Close()

	p := tea.NewProgram(surface.New(client, client.Events()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("surface: %w", err)
	}
	if err := client.Err(); err != nil && !errors.Is(err, surface.ErrClosed) {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
	}
	return nil
}

// dialAddr turns a listen address such as ":8090" into one a client can
// dial.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
