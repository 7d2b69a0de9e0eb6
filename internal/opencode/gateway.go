// gateway.go resolves how to reach the backend and owns the process-wide
// spawned instance.
package opencode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iHildy/ocmt/internal/log"
)

const (
	// DefaultURL is the well-known local endpoint of an already running backend.
	DefaultURL = "http://127.0.0.1:4096"
	// DefaultBinary is the backend executable spawned when nothing answers.
	DefaultBinary = "opencode"

	defaultProbeTimeout   = time.Second
	defaultStartupTimeout = 10 * time.Second
)

// ErrGatewayClosed is returned by Resolve after Shutdown.
var ErrGatewayClosed = errors.New("backend gateway is shut down")

// GatewayConfig controls where the gateway looks for a backend.
type GatewayConfig struct {
	URL            string // operator-specified endpoint; probed first
	DefaultURL     string // probed second; DefaultURL when empty
	Binary         string // spawned when nothing answers; DefaultBinary when empty
	Dir            string // working directory of a spawned instance
	ProbeTimeout   time.Duration
	StartupTimeout time.Duration
	LogPath        string
}

// Handle is a resolved backend.
type Handle struct {
	URL     string
	Spawned bool
	client  *Client
}

// Backend returns the backend scoped to dir (no scope when dir is empty).
func (h *Handle) Backend(dir string) Backend {
	if dir == "" {
		return h.client
	}
	return h.client.WithDirectory(dir)
}

// Gateway resolves a Handle once and tears down any instance it spawned
// exactly once.
type Gateway struct {
	cfg    GatewayConfig
	logger *zap.Logger

	probe     func(ctx context.Context, url string, timeout time.Duration) error
	lookPath  func(file string) (string, error)
	launch    func(ctx context.Context) (instance, error)
	checkAuth func(ctx context.Context, binary string) error

	mu       sync.Mutex
	handle   *Handle
	instance instance
	closed   bool

	shutdownOnce sync.Once
}

// NewGateway creates a Gateway. Nothing is probed or spawned until Resolve.
func NewGateway(cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if cfg.DefaultURL == "" {
		cfg.DefaultURL = DefaultURL
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		cfg:       cfg,
		logger:    logger,
		probe:     Probe,
		lookPath:  exec.LookPath,
		checkAuth: CheckAuth,
	}
	g.launch = func(ctx context.Context) (instance, error) {
		return StartServer(ctx, ServerOptions{
			Binary:         g.cfg.Binary,
			Dir:            g.cfg.Dir,
			StartupTimeout: g.cfg.StartupTimeout,
			ProbeTimeout:   g.cfg.ProbeTimeout,
			LogPath:        g.cfg.LogPath,
		})
	}
	return g
}

// Resolve returns the backend handle, resolving it on first use: the
// configured endpoint, then the default endpoint, then a freshly spawned
// local instance.
func (g *Gateway) Resolve(ctx context.Context) (*Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrGatewayClosed
	}
	if g.handle != nil {
		return g.handle, nil
	}

	if url := g.cfg.URL; url != "" {
		err := g.probe(ctx, url, g.cfg.ProbeTimeout)
		if err == nil {
			return g.useLocked(url, false), nil
		}
		g.logger.Warn("configured backend is not reachable; falling back",
			zap.String("url", url), zap.Error(err))
	}

	if url := g.cfg.DefaultURL; url != g.cfg.URL {
		if err := g.probe(ctx, url, g.cfg.ProbeTimeout); err == nil {
			return g.useLocked(url, false), nil
		}
		g.logger.Debug("no backend at default endpoint", zap.String("url", url))
	}

	if _, err := g.lookPath(g.cfg.Binary); err != nil {
		return nil, ErrBackendNotInstalled
	}

	g.logger.Debug("spawning local backend", zap.String("binary", g.cfg.Binary))
	inst, err := g.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	g.instance = inst

	if err := g.checkAuth(ctx, g.cfg.Binary); err != nil {
		g.stopLocked()
		return nil, err
	}
	return g.useLocked(inst.URL(), true), nil
}

func (g *Gateway) useLocked(url string, spawned bool) *Handle {
	g.handle = &Handle{
		URL:     url,
		Spawned: spawned,
		client:  NewClient(url, WithLogger(g.logger)),
	}
	g.logger.Info("backend resolved", log.Event(log.EventBackendResolved),
		zap.String("url", url), zap.Bool("spawned", spawned))
	return g.handle
}

func (g *Gateway) stopLocked() {
	if g.instance == nil {
		return
	}
	if err := g.instance.Stop(); err != nil {
		g.logger.Warn("stopping local backend failed", zap.Error(err))
	}
	g.instance = nil
}

// Shutdown tears down a spawned instance. Only the first call has an effect;
// Resolve fails afterwards.
func (g *Gateway) Shutdown() {
	g.shutdownOnce.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.closed = true
		g.handle = nil
		g.stopLocked()
	})
}

// ShutdownOnSignal registers the process's interrupt handling: the first
// SIGINT/SIGTERM calls cancel so in-flight work can clean up its session; a
// second signal shuts the gateway down and calls exit(1). The returned func
// unregisters the handler.
func (g *Gateway) ShutdownOnSignal(cancel context.CancelFunc, exit func(code int)) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		interrupted := false
		for {
			select {
			case sig := <-sigCh:
				g.logger.Debug("received signal", zap.Stringer("signal", sig))
				if !interrupted {
					interrupted = true
					cancel()
					continue
				}
				g.Shutdown()
				exit(1)
				return
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}
