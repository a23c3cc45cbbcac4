// Package container runs short-lived tool containers through the docker CLI
// and owns every container and scratch workspace they use until CleanUp.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	// ErrRuntimeUnavailable is returned when the container CLI cannot be found
	ErrRuntimeUnavailable = errors.New("container runtime not available")
	// ErrRunFailed is returned when a container exits unsuccessfully
	ErrRunFailed = errors.New("container run failed")
	// ErrCleanedUp is returned when the manager is used after CleanUp
	ErrCleanedUp = errors.New("container manager already cleaned up")
)

// Label marks every container started by nightwatch
const Label = "io.nightwatch.managed=true"

// CommandRunner executes an external command and returns its combined output
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs commands with os/exec
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// RunOptions describes one container invocation
type RunOptions struct {
	// Image is the container image, e.g. "composer:7.1"
	Image string
	// WorkDir is a host directory mounted at /app
	WorkDir string
	// Args are passed to the image entrypoint
	Args []string
	// Env holds KEY=VALUE pairs
	Env []string
}

// Manager starts containers and tracks what must be removed on CleanUp
type Manager struct {
	binary     string
	runner     CommandRunner
	workRoot   string
	user       string
	mu         sync.Mutex
	seq        int
	containers []string
	workspaces []string
	cleaned    bool
}

// Option configures a Manager
type Option func(*Manager)

// WithBinary selects the container CLI (docker or podman)
func WithBinary(binary string) Option {
	return func(m *Manager) {
		m.binary = binary
	}
}

// WithCommandRunner replaces the command runner (useful for testing)
func WithCommandRunner(r CommandRunner) Option {
	return func(m *Manager) {
		m.runner = r
	}
}

// WithWorkRoot sets the parent directory for scratch workspaces
func WithWorkRoot(dir string) Option {
	return func(m *Manager) {
		m.workRoot = dir
	}
}

// NewManager creates a manager. Containers run as the current user so the
// files they write into workspaces stay removable.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		binary: "docker",
		runner: execRunner{},
	}
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 {
		m.user = fmt.Sprintf("%d:%d", uid, gid)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAvailable verifies that the container CLI can reach its daemon
func (m *Manager) CheckAvailable(ctx context.Context) error {
	if _, ok := m.runner.(execRunner); ok {
		if _, err := exec.LookPath(m.binary); err != nil {
			return fmt.Errorf("%w: %s not found in PATH", ErrRuntimeUnavailable, m.binary)
		}
	}
	if out, err := m.runner.Run(ctx, m.binary, "version", "--format", "{{.Server.Version}}"); err != nil {
		return fmt.Errorf("%w: %s", ErrRuntimeUnavailable, strings.TrimSpace(out))
	}
	return nil
}

// Workspace creates a scratch directory removed by CleanUp
func (m *Manager) Workspace(prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cleaned {
		return "", ErrCleanedUp
	}

	dir, err := os.MkdirTemp(m.workRoot, "nightwatch-"+prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	m.workspaces = append(m.workspaces, dir)
	return dir, nil
}

// Run starts a container in the foreground and waits for it to exit.
// The container is tracked before it starts so CleanUp removes it even when
// the run fails or ctx is cancelled.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (string, error) {
	if opts.Image == "" {
		return "", fmt.Errorf("%w: no image given", ErrRunFailed)
	}

	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		return "", ErrCleanedUp
	}
	m.seq++
	name := fmt.Sprintf("nightwatch-%d-%d", os.Getpid(), m.seq)
	m.containers = append(m.containers, name)
	m.mu.Unlock()

	args := []string{"run", "--name", name, "--label", Label}
	if m.user != "" {
		args = append(args, "--user", m.user)
	}
	if opts.WorkDir != "" {
		args = append(args, "--volume", opts.WorkDir+":/app", "--workdir", "/app")
	}
	for _, env := range opts.Env {
		args = append(args, "--env", env)
	}
	args = append(args, opts.Image)
	args = append(args, opts.Args...)

	out, err := m.runner.Run(ctx, m.binary, args...)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrRunFailed, opts.Image, err)
	}
	return out, nil
}

// Containers returns the names of tracked containers
func (m *Manager) Containers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.containers...)
}

// CleanUp force-removes every tracked container and workspace.
// Calls after the first are no-ops.
func (m *Manager) CleanUp() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cleaned {
		return nil
	}
	m.cleaned = true

	var errs []error
	if len(m.containers) > 0 {
		args := append([]string{"rm", "--force", "--volumes"}, m.containers...)
		if out, err := m.runner.Run(context.Background(), m.binary, args...); err != nil {
			errs = append(errs, fmt.Errorf("removing containers: %v: %s", err, strings.TrimSpace(out)))
		}
	}
	for _, dir := range m.workspaces {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("removing workspace %s: %w", dir, err))
		}
	}

	m.containers = nil
	m.workspaces = nil
	return errors.Join(errs...)
}
