// server.go starts and stops a local opencode server process.
package opencode

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	stopTimeout       = 5 * time.Second
	readyPollInterval = 100 * time.Millisecond
	authCheckTimeout  = 15 * time.Second
)

// instance is a running backend the gateway owns.
type instance interface {
	URL() string
	Stop() error
}

// ServerOptions configures StartServer.
type ServerOptions struct {
	Binary         string
	Dir            string
	StartupTimeout time.Duration
	ProbeTimeout   time.Duration
	LogPath        string // stdout/stderr of the server; discarded when empty
}

// Server is a spawned `opencode serve` process.
type Server struct {
	cmd     *exec.Cmd
	url     string
	logFile *os.File
	exited  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// StartServer spawns `opencode serve` on a free loopback port and waits until
// it answers the liveness probe or the startup timeout elapses.
func StartServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("opencode: picking a port: %w", err)
	}

	cmd := exec.Command(opts.Binary, "serve", "--hostname", "127.0.0.1", "--port", strconv.Itoa(port))
	cmd.Dir = opts.Dir

	var logFile *os.File
	if opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0755); err != nil {
			return nil, fmt.Errorf("opencode: creating log directory: %w", err)
		}
		logFile, err = os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opencode: opening server log: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("opencode: starting %s serve: %w", opts.Binary, err)
	}

	s := &Server{
		cmd:     cmd,
		url:     fmt.Sprintf("http://127.0.0.1:%d", port),
		logFile: logFile,
		exited:  make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	if err := s.waitReady(ctx, opts.StartupTimeout, opts.ProbeTimeout); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

// waitReady polls the liveness probe until it succeeds.
func (s *Server) waitReady(ctx context.Context, timeout, probeTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		if err := Probe(ctx, s.url, probeTimeout); err == nil {
			return nil
		}
		select {
		case <-s.exited:
			return fmt.Errorf("opencode: server exited during startup")
		case <-ctx.Done():
			return fmt.Errorf("opencode: server not ready after %s", timeout)
		case <-ticker.C:
		}
	}
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.url
}

// Stop interrupts the server, killing it if it has not exited within
// stopTimeout. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		defer func() {
			if s.logFile != nil {
				_ = s.logFile.Close()
			}
		}()

		select {
		case <-s.exited:
			return
		default:
		}

		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			// Interrupt is unsupported on some platforms; go straight to kill.
			_ = s.cmd.Process.Kill()
			<-s.exited
			return
		}

		select {
		case <-s.exited:
		case <-time.After(stopTimeout):
			s.stopErr = s.cmd.Process.Kill()
			<-s.exited
		}
	})
	return s.stopErr
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

var zeroCredentials = regexp.MustCompile(`(?i)\b0 credentials\b`)

// CheckAuth runs `opencode auth list` once and fails with ErrNotAuthenticated
// when no provider credentials are configured.
func CheckAuth(ctx context.Context, binary string) error {
	ctx, cancel := context.WithTimeout(ctx, authCheckTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "auth", "list").CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return fmt.Errorf("%w (%s auth list: %s: %v)", ErrNotAuthenticated, binary, output, err)
	}
	if !credentialsConfigured(output) {
		return ErrNotAuthenticated
	}
	return nil
}

// credentialsConfigured interprets `opencode auth list` output. Credentials may
// come from the auth store or from provider environment variables.
func credentialsConfigured(output string) bool {
	if strings.Contains(strings.ToLower(output), "environment") {
		return true
	}
	return !zeroCredentials.MatchString(output)
}
