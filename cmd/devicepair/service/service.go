// Package service installs devicepair as a systemd unit.
package service

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"devicepair/internal/infra/fsutil"
)

// Unit holds the parameters of the generated unit file.
type Unit struct {
	Name       string
	BinaryPath string
	ConfigPath string
	WorkDir    string
	User       string
	// EnvFile is an optional systemd EnvironmentFile, typically holding
	// DEVICEPAIR_CREDENTIALS_KEY.
	EnvFile string
}

// Status is the runtime state of an installed unit.
type Status struct {
	Installed bool
	Running   bool
	PID       int
}

// Runner executes systemctl. Tests replace it.
type Runner func(args ...string) ([]byte, error)

func systemctl(args ...string) ([]byte, error) {
	return exec.Command("systemctl", args...).CombinedOutput()
}

// Manager installs and inspects units under Dir.
type Manager struct {
	Dir string
	Run Runner
}

// NewManager returns a Manager for /etc/systemd/system.
func NewManager() *Manager {
	return &Manager{Dir: "/etc/systemd/system", Run: systemctl}
}

// DefaultUnit returns a Unit for the running binary and current user.
func DefaultUnit(configPath string) Unit {
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/devicepair"
	}
	username, home := "root", "/root"
	if u, err := user.Current(); err == nil {
		username, home = u.Username, u.HomeDir
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	return Unit{
		Name:       "devicepair",
		BinaryPath: binary,
		ConfigPath: configPath,
		WorkDir:    filepath.Join(home, ".devicepair"),
		User:       username,
	}
}

// Validate checks that the unit can be installed.
func (u Unit) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("unit name is required")
	}
	if strings.ContainsAny(u.Name, "/ ") {
		return fmt.Errorf("invalid unit name %q", u.Name)
	}
	info, err := os.Stat(u.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", u.BinaryPath, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("binary %q is not executable", u.BinaryPath)
	}
	return nil
}

const unitTemplate = `[Unit]
Description={{.Name}} device pairing and setup
Wants=network-online.target
After=network-online.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} run --config {{.ConfigPath}}
WorkingDirectory={{.WorkDir}}
User={{.User}}
{{- if .EnvFile}}
EnvironmentFile=-{{.EnvFile}}
{{- end}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

// Render returns the unit file content.
func Render(u Unit) (string, error) {
	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, u); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (m *Manager) unitPath(name string) string {
	return filepath.Join(m.Dir, name+".service")
}

// Install writes the unit file, then enables and starts it.
func (m *Manager) Install(u Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	content, err := Render(u)
	if err != nil {
		return fmt.Errorf("render unit: %w", err)
	}
	if err := os.MkdirAll(u.WorkDir, 0o700); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := fsutil.WriteFileAtomic(m.unitPath(u.Name), 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	}); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", u.Name},
		{"start", u.Name},
	} {
		if out, err := m.Run(args...); err != nil {
			return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), bytes.TrimSpace(out), err)
		}
	}
	return nil
}

// Uninstall stops and removes the unit. Stop and disable are best effort.
func (m *Manager) Uninstall(name string) error {
	_, _ = m.Run("stop", name)
	_, _ = m.Run("disable", name)
	if err := fsutil.RemoveIfExists(m.unitPath(name)); err != nil {
		return fmt.Errorf("remove unit file: %w", err)
	}
	if out, err := m.Run("daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %s: %w", bytes.TrimSpace(out), err)
	}
	return nil
}

// Status reports whether the unit is installed and running.
func (m *Manager) Status(name string) (*Status, error) {
	st := &Status{}
	if _, err := os.Stat(m.unitPath(name)); err == nil {
		st.Installed = true
	}
	out, _ := m.Run("is-active", name)
	st.Running = strings.TrimSpace(string(out)) == "active"
	if !st.Running {
		return st, nil
	}
	if out, err := m.Run("show", "--property=MainPID", name); err == nil {
		if _, pid, ok := strings.Cut(strings.TrimSpace(string(out)), "="); ok {
			st.PID, _ = strconv.Atoi(pid)
		}
	}
	return st, nil
}
