// Package main is the entry point for the gosudo credential validator. It
// checks and refreshes the invoking user's cached authentication for a
// target user, prompting for a password when the session cache cannot answer,
// and can invalidate cached sessions. Evaluating privilege policy and
// executing commands are handled elsewhere.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"

	"github.com/gosudo/gosudo/internal/audit"
	"github.com/gosudo/gosudo/internal/auth"
	"github.com/gosudo/gosudo/internal/bootstrap"
	"github.com/gosudo/gosudo/internal/config"
	"github.com/gosudo/gosudo/internal/session"
	"github.com/gosudo/gosudo/internal/terminal"
	"github.com/gosudo/gosudo/internal/timestamp"
)

// Exit codes
const (
	exitOK     = 0
	exitDenied = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		targetUser     = flag.String("u", "root", "Target user to authenticate for")
		invalidate     = flag.Bool("k", false, "Invalidate the current session's cached credentials")
		reset          = flag.Bool("K", false, "Remove all cached credentials of the invoking user")
		nonInteractive = flag.Bool("n", false, "Non-interactive mode: fail instead of prompting")
		configPath     = flag.String("config", config.DefaultPath, "Path to the configuration file")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-u user] [-k | -K] [-n]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := bootstrap.SetupLogger(os.Stderr)
	slog.SetDefault(logger)

	if *invalidate && *reset {
		fmt.Fprintln(os.Stderr, "gosudo: -k and -K are mutually exclusive")
		flag.Usage()
		return exitUsage
	}

	cfg, err := config.NewLoader().Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosudo: %v\n", err)
		return exitUsage
	}

	invoking, err := user.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosudo: cannot determine invoking user: %v\n", err)
		return exitDenied
	}
	target, err := user.Lookup(*targetUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosudo: unknown user %s\n", *targetUser)
		return exitUsage
	}
	targetUID, err := strconv.ParseUint(target.Uid, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gosudo: unusable uid for %s: %v\n", target.Username, err)
		return exitUsage
	}

	scope := resolveScope(cfg, logger)
	store := openStore(cfg, invoking.Username, *reset, logger)
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close session records file", slog.Any("error", err))
			}
		}()
	}

	auditLogger := audit.NewLogger(logger, bootstrap.NewRunID())
	flow := auth.New(auth.DenyChecker{}, auth.Options{
		Store: storeOrNil(store),
		Detector: terminal.NewInteractiveDetector(terminal.DetectorOptions{
			ForceNonInteractive: *nonInteractive,
		}),
		Audit:  auditLogger,
		Logger: logger,
	})

	switch {
	case *reset:
		if err := flow.ResetAll(invoking.Username); err != nil {
			fmt.Fprintf(os.Stderr, "gosudo: %v\n", err)
			return exitDenied
		}
		return exitOK
	case *invalidate:
		if err := flow.Invalidate(invoking.Username, scope); err != nil {
			fmt.Fprintf(os.Stderr, "gosudo: %v\n", err)
			return exitDenied
		}
		return exitOK
	}

	err = flow.Authenticate(auth.Request{
		Scope:        scope,
		InvokingUser: invoking.Username,
		AuthUID:      uint32(targetUID),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPasswordRequired):
			fmt.Fprintln(os.Stderr, "gosudo: a password is required")
		case errors.Is(err, auth.ErrAuthenticationFailed):
			fmt.Fprintln(os.Stderr, "gosudo: authentication failed")
		default:
			fmt.Fprintf(os.Stderr, "gosudo: %v\n", err)
		}
		return exitDenied
	}
	return exitOK
}

// resolveScope derives the session scope per configuration. Failure to
// introspect the session degrades to no caching rather than aborting:
// forcing a prompt is always safe.
func resolveScope(cfg *config.Config, logger *slog.Logger) timestamp.RecordScope {
	var preferTTY bool
	switch cfg.Timestamp.Type {
	case config.ScopeOff:
		return nil
	case config.ScopeTTY:
		preferTTY = true
	case config.ScopePPID:
		preferTTY = false
	}
	scope, err := session.CurrentScope(preferTTY)
	if err != nil {
		logger.Warn("cannot determine session scope, credential caching disabled",
			slog.Any("error", err))
		return nil
	}
	return scope
}

// openStore opens the invoking user's session record file. Like scope
// resolution, failure degrades to no caching. The store is still opened with
// caching disabled when a reset was requested, so -K can clear records left
// behind by an earlier configuration.
func openStore(cfg *config.Config, username string, forReset bool, logger *slog.Logger) *timestamp.SessionRecordFile {
	if cfg.Timestamp.Timeout.Duration <= 0 && !forReset {
		return nil
	}
	store, err := timestamp.OpenForUser(username, cfg.Timestamp.Timeout.Duration, timestamp.OpenOptions{
		Dir:         cfg.Timestamp.Dir,
		LockTimeout: cfg.Timestamp.LockTimeout.Duration,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("cannot open session records file, credential caching disabled",
			slog.String("user", username),
			slog.Any("error", err))
		return nil
	}
	return store
}

// storeOrNil avoids handing the flow a non-nil interface holding a nil
// pointer.
func storeOrNil(store *timestamp.SessionRecordFile) auth.Store {
	if store == nil {
		return nil
	}
	return store
}
