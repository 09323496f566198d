package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"devicepair/cmd/devicepair/service"
	"devicepair/internal/infra/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "--version", "version":
			fmt.Println("devicepair", version)
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		exitOn("fatal", run())
		return
	}

	switch os.Args[1] {
	case "run":
		exitOn("fatal", run())
	case "surface":
		exitOn("surface", runSurface())
	case "status":
		exitOn("status", runStatus(os.Stdout))
	case "unpair":
		exitOn("unpair", runUnpair(os.Stdout))
	case "doctor":
		exitOn("doctor", runDoctor(os.Stdout))
	case "service":
		exitOn("service", runService(os.Stdout))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'devicepair --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func exitOn(prefix string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`devicepair - device pairing and first-run setup

USAGE:
    devicepair [COMMAND] [FLAGS]

COMMANDS:
    run         Run the pairing and setup service (default)
    surface     Open the terminal setup surface of a running service
    status      Show the stored device identity and wizard choices
    unpair      Delete the device identity and wizard choices
    doctor      Check configuration, storage and connectivity
    service     Manage the systemd unit
                Subcommands: install [--env-file PATH], uninstall, status
    version     Print the version

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file (default: ./devicepair.yaml)
    --addr HOST:PORT    Gateway address for 'surface' (default: from config)
    --token TOKEN       Gateway token for 'surface'

CONFIGURATION:
    Config file: ./devicepair.yaml, or DEVICEPAIR_CONFIG
    Environment: DEVICEPAIR_* variables override the file

EXAMPLES:
    devicepair                       # Run with ./devicepair.yaml
    devicepair surface               # Attach a terminal setup screen
    devicepair status                # Is this device paired?
    devicepair service install       # Install as a systemd service`)
}

// flagValue returns the value of --name VALUE or --name=VALUE.
func flagValue(name string) string {
	flag := "--" + name
	for i, arg := range os.Args {
		if arg == flag && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, flag+"=") {
			return strings.TrimPrefix(arg, flag+"=")
		}
	}
	return ""
}

func configPath() string {
	if p := flagValue("config"); p != "" {
		return p
	}
	if p := os.Getenv("DEVICEPAIR_CONFIG"); p != "" {
		return p
	}
	return "devicepair.yaml"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runService(w io.Writer) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: devicepair service install|uninstall|status")
	}
	m := service.NewManager()
	switch os.Args[2] {
	case "install":
		unit := service.DefaultUnit(configPath())
		unit.EnvFile = flagValue("env-file")
		if err := m.Install(unit); err != nil {
			return err
		}
		fmt.Fprintf(w, "Installed and started %s.service\n", unit.Name)
	case "uninstall":
		if err := m.Uninstall("devicepair"); err != nil {
			return err
		}
		fmt.Fprintln(w, "Removed devicepair.service")
	case "status":
		st, err := m.Status("devicepair")
		if err != nil {
			return err
		}
		switch {
		case !st.Installed:
			fmt.Fprintln(w, "devicepair.service is not installed")
		case st.Running:
			fmt.Fprintf(w, "devicepair.service is running (pid %d)\n", st.PID)
		default:
			fmt.Fprintln(w, "devicepair.service is installed but not running")
		}
	default:
		return fmt.Errorf("unknown service command %q", os.Args[2])
	}
	return nil
}
