package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/ops"
)

// maxStdinBytes caps part text read from stdin.
const maxStdinBytes = 4 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "loom",
		Usage:   "Serialized novel drafting",
		Version: Version,
		Commands: []*cli.Command{
			chaptersCmd(e),
			showCmd(e),
			editCmd(e),
			generateCmd(e),
			exportCmd(e),
			historyCmd(e),
			statusCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// chaptersCmd creates the chapters command.
func chaptersCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "chapters",
		Usage: "List chapters with draft progress",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Skip first N results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListChapters(e.store, ops.ListInput{
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

// showCmd creates the show command.
func showCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a chapter's title, context, and draft parts",
		ArgsUsage: "<chapter>",
		Action: func(c *cli.Context) error {
			index, err := chapterArg(c, e)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Fetch(e.store, ops.FetchInput{Chapter: index})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// editCmd creates the edit command.
func editCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace one part of a chapter (reads text from stdin)",
		ArgsUsage: "<chapter>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "part", Aliases: []string{"p"}, Required: true, Usage: "Part number: 1, 2, or 3"},
		},
		Action: func(c *cli.Context) error {
			index, err := chapterArg(c, e)
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("part text must be piped via stdin"))
			}
			text, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Update(e.store, ops.UpdateInput{
				Chapter: index,
				Part:    c.Int("part"),
				Text:    text,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// generateCmd creates the generate command.
func generateCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate one part of a chapter with the backend",
		ArgsUsage: "<chapter>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "part", Aliases: []string{"p"}, Required: true, Usage: "Part number: 1, 2, or 3"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress progress on stderr"},
		},
		Action: func(c *cli.Context) error {
			index, err := chapterArg(c, e)
			if err != nil {
				return outputError(err)
			}

			var onProgress func(ops.Progress)
			if !c.Bool("quiet") {
				onProgress = func(p ops.Progress) {
					fmt.Fprintf(os.Stderr, "\rgenerating chapter %d part %d... %.1fs", p.Chapter+1, p.Part,
						(time.Duration(p.ElapsedMS) * time.Millisecond).Seconds())
				}
			}

			output, err := e.orch.Generate(c.Context, ops.GenerateInput{
				Chapter:    index,
				Part:       c.Int("part"),
				OnProgress: onProgress,
			})
			if onProgress != nil {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return outputError(err)
			}
			if output.Warning != "" {
				fmt.Fprintf(os.Stderr, "warning: %s\n", output.Warning)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Compile drafted chapters into a manuscript",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output file (.md or .html; default: ~/.loom/exports/)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Format: markdown|html (default: from path)"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Manuscript heading"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, e.store, e.cfg, filepath.Join(e.baseDir, "exports"), ops.ExportInput{
				Path:   c.String("path"),
				Format: c.String("format"),
				Title:  c.String("title"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent generation jobs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "chapter", Aliases: []string{"c"}, Usage: "Only jobs for this chapter (1-based)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max results"},
		},
		Action: func(c *cli.Context) error {
			input := ops.HistoryInput{Limit: c.Int("limit")}
			if c.IsSet("chapter") {
				index := e.store.Clamp(c.Int("chapter") - 1)
				input.Chapter = &index
			}
			output, err := ops.History(c.Context, e.journal, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the generation state of this process",
		Action: func(c *cli.Context) error {
			return outputJSON(e.orch.Status())
		},
	}
}

// Helper functions

// chapterArg parses the 1-based chapter argument into a clamped zero-based index.
func chapterArg(c *cli.Context, e *env) (int, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidRequest("chapter number is required")
	}
	n, err := strconv.Atoi(strings.TrimSpace(c.Args().First()))
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid chapter number: %q", c.Args().First()))
	}
	return e.store.Clamp(n - 1), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var loomErr *errors.LoomError
	if stderrors.As(err, &loomErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", loomErr.Code, loomErr.Message), 1)
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

// readStdin reads up to limit bytes from stdin, dropping the trailing newline
// a pipe usually adds.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
