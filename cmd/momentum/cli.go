package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/momentum/internal/assist"
	"github.com/hpungsan/momentum/internal/config"
	"github.com/hpungsan/momentum/internal/errors"
	"github.com/hpungsan/momentum/internal/journal"
	"github.com/hpungsan/momentum/internal/logging"
	"github.com/hpungsan/momentum/internal/mcp"
	"github.com/hpungsan/momentum/internal/render"
	"github.com/hpungsan/momentum/internal/web"
)

// maxStdinBytes bounds entry content read from stdin.
const maxStdinBytes = 10 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(j *journal.Coordinator, cfg *config.Config, logger logging.Logger) *cli.App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	app := &cli.App{
		Name:    "momentum",
		Usage:   "Versioned markdown journal",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(j),
			getCmd(j),
			openCmd(j),
			updateCmd(j),
			deleteCmd(j),
			listCmd(j),
			searchCmd(j),
			titleCmd(),
			renderCmd(j),
			versionsCmd(j),
			versionCmd(j),
			changesCmd(j),
			restoreCmd(j),
			repairCmd(j),
			verifyCmd(j),
			exportCmd(j),
			importCmd(j),
			promptCmd(cfg, logger),
			serveCmd(j, cfg, logger),
			mcpCmd(j, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// createCmd creates the create command.
func createCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a new entry (reads content from stdin)",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}
			content, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			output, err := j.CreateEntry(c.Context, content)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get an entry from the index",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			output, err := j.GetEntry(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// openCmd creates the open command.
func openCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open an entry with its title and metadata",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			output, err := j.OpenEntry(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace an entry's content (reads content from stdin)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
			}
			content, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			output, err := j.UpdateEntry(c.Context, id, content)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entry and its history",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			output, err := j.DeleteEntry(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entries, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := j.ListEntries(c.Context, journal.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find entries containing text (case-insensitive)",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			query, err := requireArg(c, "query")
			if err != nil {
				return err
			}
			output, err := j.SearchEntries(c.Context, journal.SearchInput{
				Query:  query,
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// titleCmd creates the title command.
func titleCmd() *cli.Command {
	return &cli.Command{
		Name:  "title",
		Usage: "Print the title of content read from stdin",
		Action: func(_ *cli.Context) error {
			content := ""
			if stdinHasData() {
				var err error
				if content, err = readStdin(maxStdinBytes); err != nil {
					return outputError(err)
				}
			}
			return outputJSON(map[string]string{"title": journal.ExtractTitle(content)})
		},
	}
}

// renderCmd creates the render command.
func renderCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render an entry's markdown to HTML",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			e, err := j.GetEntry(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			html, err := render.ToHTML(e.Content)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]string{"id": e.ID, "html": html})
		},
	}
}

// versionsCmd creates the versions command.
func versionsCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "versions",
		Usage:     "List an entry's versions, newest first",
		ArgsUsage: "<entry-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			versions, err := j.GetVersions(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"entry_id": id, "versions": versions})
		},
	}
}

// versionCmd creates the version command.
func versionCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "version",
		Usage:     "Get one version snapshot",
		ArgsUsage: "<version-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "version id")
			if err != nil {
				return err
			}
			output, err := j.GetVersion(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// changesCmd creates the changes command.
func changesCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "changes",
		Usage:     "Show the change list recorded with a version",
		ArgsUsage: "<version-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "version id")
			if err != nil {
				return err
			}
			changes, err := j.GetVersionChanges(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"version_id": id, "changes": changes})
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore an entry to a version's content (recorded as a new version)",
		ArgsUsage: "<version-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "version id")
			if err != nil {
				return err
			}
			output, err := j.RestoreVersion(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// repairCmd creates the repair command.
func repairCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "repair",
		Usage: "Rewrite missing or stale content mirrors from the index",
		Action: func(c *cli.Context) error {
			output, err := j.RepairMirrors(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// verifyCmd creates the verify command.
func verifyCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check an entry's history replays to its content and its mirror is current",
		ArgsUsage: "<entry-id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "entry id")
			if err != nil {
				return err
			}
			output, err := j.Verify(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export entries and versions to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.momentum/exports/journal-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := j.Export(c.Context, journal.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(j *journal.Coordinator) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import entries and versions from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := j.Import(c.Context, journal.ImportInput{
				Path: c.String("path"),
				Mode: journal.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// promptCmd creates the prompt command.
func promptCmd(cfg *config.Config, logger logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Ask the writing assistant for a prompt (reads text from stdin)",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("text must be piped via stdin"))
			}
			text, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			gen := newAssistant(cfg)
			if gen == nil {
				return outputJSON(map[string]any{"prompt": assist.Fallback, "fallback": true})
			}

			timeout := time.Duration(cfg.AssistantTimeoutSec) * time.Second
			ctx := c.Context
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			task := assist.Start(ctx, gen, text)
			res, err := task.Wait(ctx)
			if err == nil {
				err = res.Err
			}
			if err != nil {
				logger.Warn(ctx, "prompt generation failed", "task_id", task.ID(), "error", err)
				return outputJSON(map[string]any{"task_id": task.ID(), "prompt": assist.Fallback, "fallback": true})
			}
			return outputJSON(map[string]any{"task_id": task.ID(), "prompt": res.Prompt})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(j *journal.Coordinator, cfg *config.Config, logger logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the journal JSON API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(j, newAssistant(cfg), logger, c.String("bind"), c.Int("port"))
			if err := web.Run(c.Context, srv, logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command. Running with no arguments does the same.
func mcpCmd(j *journal.Coordinator, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server over stdio",
		Action: func(_ *cli.Context) error {
			return mcp.Run(j, cfg, Version)
		},
	}
}

// Helper functions

// newAssistant returns the Ollama client for cfg, or nil when no URL is set.
func newAssistant(cfg *config.Config) assist.Generator {
	if cfg.AssistantURL == "" {
		return nil
	}
	return assist.NewOllamaClient(cfg.AssistantURL, cfg.AssistantModel,
		time.Duration(cfg.AssistantTimeoutSec)*time.Second)
}

// requireArg returns the first positional argument or an INVALID_REQUEST exit.
func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() == 0 || c.Args().First() == "" {
		return "", outputError(errors.NewInvalidRequest(name + " is required"))
	}
	return c.Args().First(), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if jErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", jErr.Code, jErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of stdin, failing when it exceeds limit bytes.
// Content is kept exactly as written.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds maximum size of %d bytes", limit))
	}
	return string(data), nil
}
