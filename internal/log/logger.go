// Package log builds the process logger.
// Console output goes to stderr; every event is also appended as JSON to log.jsonl.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event names, logged under the "event" key.
const (
	EventRunStarted      = "run_started"
	EventBackendResolved = "backend_resolved"
	EventGenerated       = "generated"
	EventCommitted       = "committed"
	EventBranchCreated   = "branch_created"
	EventChangelogSaved  = "changelog_saved"
	EventPRCreated       = "pr_created"
	EventDeslopApplied   = "deslop_applied"
	EventDeslopReverted  = "deslop_reverted"
	EventRunFailed       = "run_failed"
)

// FileName is the JSON lines log inside the log directory.
const FileName = "log.jsonl"

// Options configures New.
type Options struct {
	// Debug lowers the console level from warn to debug.
	Debug bool
	// Dir holds log.jsonl; no file is written when empty.
	Dir string
	// Console receives human-readable output; os.Stderr when nil.
	Console io.Writer
}

// DefaultDir returns <user cache dir>/ocmt.
func DefaultDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache directory: %w", err)
	}
	return filepath.Join(cache, "ocmt"), nil
}

// New creates a logger and a close func that flushes and releases the log file.
func New(opts Options) (*zap.Logger, func(), error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleLevel := zapcore.WarnLevel
	if opts.Debug {
		consoleLevel = zapcore.DebugLevel
	}

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	consoleEnc.TimeKey = ""
	consoleEnc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.Lock(zapcore.AddSync(console)), consoleLevel),
	}

	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		var err error
		file, err = os.OpenFile(filepath.Join(opts.Dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}

		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.TimeKey = "time"
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.Lock(file), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closeFn, nil
}

// Event returns the field that tags an entry with one of the Event constants.
func Event(name string) zap.Field {
	return zap.String("event", name)
}
