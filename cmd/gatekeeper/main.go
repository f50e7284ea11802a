package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/gatekeeper/pkg/catalog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/config"
	"github.com/Mindburn-Labs/gatekeeper/pkg/engine"
	"github.com/Mindburn-Labs/gatekeeper/pkg/observability"
	"github.com/Mindburn-Labs/gatekeeper/pkg/store"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. Exit codes: 0 ok, 1 the check failed
// (lint findings, blocked advance), 2 usage or runtime error.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "parse":
		return runParseCmd(args[2:], stdout, stderr)
	case "lint":
		return runLintCmd(args[2:], stdout, stderr)
	case "classify":
		return runClassifyCmd(args[2:], stdout, stderr)
	case "resolve":
		return runResolveCmd(args[2:], stdout, stderr)
	case "advance":
		return runAdvanceCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "gatekeeper %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorRed   = "\033[31m"
	ColorGreen = "\033[32m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sgatekeeper %s%s\n", ColorBold+ColorCyan, version, ColorReset)
	fmt.Fprintf(w, "%sPolicy evaluation and workflow gating.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  gatekeeper <command> [flags]")
	fmt.Fprintln(w, "")
	printCommand(w, "parse", "Convert a condition expression to its structured form")
	printCommand(w, "lint", "Load a catalog and report configuration diagnostics")
	printCommand(w, "classify", "Assess a record against the catalog's bands")
	printCommand(w, "resolve", "List a record's checkpoints for a phase (--toggle to complete one)")
	printCommand(w, "advance", "Check whether a record may leave a phase")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Environment: GATEKEEPER_CATALOG, GATEKEEPER_STATE_DB, GATEKEEPER_REMOTE_DSN,\n")
	fmt.Fprintf(w, "LOG_LEVEL, GATEKEEPER_TELEMETRY, OTEL_EXPORTER_OTLP_ENDPOINT.\n")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// env carries what every catalog-backed command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
}

func newEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	oc := observability.DefaultConfig()
	oc.ServiceVersion = version
	oc.Environment = cfg.Environment
	oc.OTLPEndpoint = cfg.OTLPEndpoint
	oc.Enabled = cfg.Telemetry
	obs, err := observability.New(ctx, oc)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, obs: obs}, nil
}

func (e *env) close(ctx context.Context) { _ = e.obs.Shutdown(ctx) }

func (e *env) engine(ctx context.Context, location string) (*engine.Engine, error) {
	if location == "" {
		location = e.cfg.Catalog
	}
	src, err := catalog.NewSource(ctx, location)
	if err != nil {
		return nil, err
	}
	c, err := catalog.LoadFrom(ctx, src)
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, c, engine.WithLogger(e.logger), engine.WithObservability(e.obs))
}

// openStore picks the state store: memory when no database is configured,
// SQLite otherwise, mirrored to Postgres when a remote DSN is set.
func (e *env) openStore(ctx context.Context, path string) (store.StateStore, func(), error) {
	if path == "" {
		path = e.cfg.StateDB
	}
	if path == "" {
		return store.NewMemoryStateStore(), func() {}, nil
	}
	local, err := store.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.RemoteDSN == "" {
		return local, func() { _ = local.Close() }, nil
	}
	remote, err := store.OpenPostgres(e.cfg.RemoteDSN)
	if err != nil {
		_ = local.Close()
		return nil, nil, err
	}
	if err := remote.Migrate(ctx); err != nil {
		e.logger.WarnContext(ctx, "remote state store unavailable", "error", err)
	}
	return store.NewMirrorStore(local, remote), func() {
		_ = local.Close()
		_ = remote.Close()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
