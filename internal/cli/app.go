// app.go wires configuration, logging, the backend gateway and the generator
// for a single command invocation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iHildy/ocmt/internal/cleanup"
	"github.com/iHildy/ocmt/internal/config"
	"github.com/iHildy/ocmt/internal/generate"
	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/log"
	"github.com/iHildy/ocmt/internal/opencode"
	"github.com/iHildy/ocmt/internal/ui"
)

const serverLogFile = "opencode-serve.log"

// app holds everything a command needs. It is built by newApp and released
// by close.
type app struct {
	cfg         *config.Config
	repo        *git.Repo
	logger      *zap.Logger
	gateway     *opencode.Gateway
	gen         *generate.Generator
	spinner     *ui.Spinner
	input       *ui.Input
	prompt      *ui.Prompter
	out         io.Writer
	errOut      io.Writer
	interactive bool

	closers []func()
}

// appOptions tweak newApp for a command.
type appOptions struct {
	// negotiator overrides how permission requests are decided.
	negotiator func(a *app) opencode.Negotiator
}

// newApp opens the repository at the working directory and wires the stack.
// The returned context is cancelled by the first SIGINT/SIGTERM.
func newApp(cmd *cobra.Command, opts appOptions) (*app, context.Context, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	a := &app{
		out:         cmd.OutOrStdout(),
		errOut:      cmd.ErrOrStderr(),
		interactive: ui.IsInteractive(),
		closers:     []func(){cancel},
	}

	wd, err := os.Getwd()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("getting working directory: %w", err)
	}
	repo, err := git.Open(ctx, wd)
	if err != nil {
		cancel()
		if errors.Is(err, git.ErrNotARepo) {
			return nil, nil, fmt.Errorf("not inside a git repository")
		}
		return nil, nil, err
	}
	a.repo = repo

	cfg, err := config.Load(repo.Dir)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	applyFlags(cfg)
	a.cfg = cfg

	logDir, dirErr := log.DefaultDir()
	if dirErr != nil {
		logDir = ""
	}
	logger, closeLog, err := log.New(log.Options{Debug: flags.debug, Dir: logDir, Console: a.errOut})
	if err != nil {
		ui.Warn(a.errOut, "file logging disabled: %v", err)
		logDir = ""
		logger, closeLog, _ = log.New(log.Options{Debug: flags.debug, Console: a.errOut})
	}
	a.logger = logger.With(zap.String("command", cmd.Name()))
	a.closers = append(a.closers, closeLog)

	pruneStale(a.logger)

	serverLog := ""
	if logDir != "" {
		serverLog = filepath.Join(logDir, serverLogFile)
	}
	a.gateway = opencode.NewGateway(opencode.GatewayConfig{
		URL:            cfg.Backend.URL,
		Binary:         cfg.Backend.Binary,
		Dir:            repo.Dir,
		ProbeTimeout:   cfg.ProbeTimeout(),
		StartupTimeout: cfg.StartupTimeout(),
		LogPath:        serverLog,
	}, a.logger)
	unregister := a.gateway.ShutdownOnSignal(cancel, os.Exit)
	a.closers = append(a.closers, unregister, a.gateway.Shutdown)

	a.spinner = ui.NewSpinner(a.errOut)
	a.closers = append(a.closers, a.spinner.Stop)
	a.input = ui.NewInput(cmd.InOrStdin())
	a.prompt = ui.NewPrompter(a.input, a.errOut)

	var negotiator opencode.Negotiator
	switch {
	case opts.negotiator != nil:
		negotiator = opts.negotiator(a)
	case a.interactive:
		negotiator = a.terminalNegotiator()
	default:
		negotiator = opencode.AutoNegotiator{Decision: opencode.DecisionReject}
	}

	orchestrator := opencode.NewOrchestrator(a.gateway,
		opencode.WithTimeout(cfg.OperationTimeout()),
		opencode.WithNegotiator(negotiator),
		opencode.WithOrchestratorLogger(a.logger),
	)
	a.gen = generate.New(orchestrator, generate.Options{
		Model:     cfg.Model,
		Agent:     cfg.Agent,
		Dir:       repo.Dir,
		MaxInline: cfg.Commit.MaxDiffBytes,
		Logger:    a.logger,
	})

	a.logger.Info("run started", log.Event(log.EventRunStarted),
		zap.String("repo", repo.Dir), zap.String("model", modelName(cfg.Model)))
	return a, ctx, nil
}

// applyFlags layers the persistent flags over the loaded configuration.
func applyFlags(cfg *config.Config) {
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.agent != "" {
		cfg.Agent = flags.agent
	}
	if flags.timeout > 0 {
		cfg.Timeouts.Operation = int(flags.timeout.Seconds())
		if cfg.Timeouts.Operation == 0 {
			cfg.Timeouts.Operation = 1
		}
	}
}

func (a *app) terminalNegotiator() opencode.Negotiator {
	return opencode.NewTerminalNegotiator(a.input, a.errOut, a.cfg.PermissionTimeout(), a.spinner, a.logger)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// generating runs fn behind the spinner.
func (a *app) generating(label string, fn func() error) error {
	a.spinner.Start(label)
	err := fn()
	a.spinner.Stop()
	if err != nil {
		a.logger.Info("generation failed", log.Event(log.EventRunFailed), zap.String("step", label), zap.Error(err))
		return err
	}
	a.logger.Info("generated", log.Event(log.EventGenerated), zap.String("step", label))
	return nil
}

// autoAccept reports whether results are taken without asking.
func (a *app) autoAccept() bool {
	return flags.yes
}

// pruneStale removes attachment directories left by interrupted runs.
func pruneStale(logger *zap.Logger) {
	pruned, err := cleanup.PruneStale(os.TempDir(), opencode.AttachmentDirPrefix, cleanup.DefaultMaxAge, false)
	if err != nil {
		logger.Debug("pruning stale attachment directories", zap.Error(err))
		return
	}
	if len(pruned) > 0 {
		logger.Debug("pruned stale attachment directories", zap.Strings("dirs", pruned))
	}
}

func modelName(model string) string {
	if model == "" {
		return "backend default"
	}
	return model
}
