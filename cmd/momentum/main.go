package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hpungsan/momentum/internal/config"
	"github.com/hpungsan/momentum/internal/journal"
	"github.com/hpungsan/momentum/internal/logging"
	"github.com/hpungsan/momentum/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// envBaseDir overrides the default ~/.momentum data directory.
const envBaseDir = "MOMENTUM_DIR"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "get": true, "open": true, "update": true, "delete": true,
	"list": true, "search": true, "title": true, "render": true,
	"versions": true, "version": true, "changes": true, "restore": true,
	"repair": true, "verify": true, "export": true, "import": true,
	"prompt": true, "serve": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   __  __                            _
  |  \/  | ___  _ __ ___   ___ _ __ | |_ _   _ _ __ ___
  | |\/| |/ _ \| '_ ' _ \ / _ \ '_ \| __| | | | '_ ' _ \
  | |  | | (_) | | | | | |  __/ | | | |_| |_| | | | | | |
  |_|  |_|\___/|_| |_| |_|\___|_| |_|\__|\__,_|_| |_| |_|

  Versioned markdown journal

  Usage: momentum <command> [options]
         momentum --help

  MCP server mode requires piped input.`)
}

// baseDir returns $MOMENTUM_DIR, or ~/.momentum when unset.
func baseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(envBaseDir)); dir != "" {
		return dir, nil
	}
	return journal.DefaultBaseDir()
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening the journal
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil, nil, nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode(os.Args) && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'momentum --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	dir, err := baseDir()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}
	cfg, err := config.LoadWithRepo(dir, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to stderr: stdout carries JSON output and the MCP stdio stream.
	logger := logging.NewText(os.Stderr, cfg.LogLevel)

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn(ctx, "unknown tools in disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn(ctx, "unknown types in disabled_types", "types", unknown)
	}

	c, err := journal.Init(ctx, dir, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if err := journal.Shutdown(); err != nil {
			logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	if isCLIMode(os.Args) {
		return newCLIApp(c, cfg, logger).RunContext(ctx, os.Args)
	}

	// MCP server mode (default)
	return mcp.Run(c, cfg, Version)
}
