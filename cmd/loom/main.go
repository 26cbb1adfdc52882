package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/loom/internal/config"
	"github.com/hpungsan/loom/internal/db"
	"github.com/hpungsan/loom/internal/draft"
	"github.com/hpungsan/loom/internal/errors"
	"github.com/hpungsan/loom/internal/llm"
	"github.com/hpungsan/loom/internal/logger"
	"github.com/hpungsan/loom/internal/mcp"
	"github.com/hpungsan/loom/internal/ops"
	"github.com/hpungsan/loom/internal/outline"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"chapters": true, "show": true, "edit": true,
	"generate": true, "export": true, "history": true,
	"status": true, "help": true,
}

// env is everything a command or tool handler operates on.
type env struct {
	baseDir string
	cfg     *config.Config
	log     *logger.Logger
	store   *draft.Store
	orch    *ops.Orchestrator
	journal *sql.DB
}

// mcpDeps adapts env for the MCP server.
func (e *env) mcpDeps() mcp.Deps {
	return mcp.Deps{
		Store:        e.store,
		Orchestrator: e.orch,
		Journal:      e.journal,
		Config:       e.cfg,
		ExportsDir:   filepath.Join(e.baseDir, "exports"),
	}
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _
  | |    ___   ___  _ __ ___
  | |   / _ \ / _ \| '_ ' _ \
  | |__| (_) | (_) | | | | | |
  |_____\___/ \___/|_| |_| |_|

  Serialized novel drafting

  Usage: loom <command> [options]
         loom --help

  MCP server mode requires piped input.`)
}

// resolveBaseDir returns LOOM_HOME, or ~/.loom.
func resolveBaseDir() (string, error) {
	if dir := os.Getenv("LOOM_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".loom"), nil
}

// bootstrap loads configuration, reference data, credentials, and the draft
// store, and builds the generation orchestrator. A store that could not be
// written at startup is still returned; the failure is logged.
func bootstrap(baseDir, workDir string, log *logger.Logger) (*env, error) {
	config.LoadDotEnv()

	cfg, err := config.LoadWithRepo(baseDir, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	// The journal is optional; without it jobs still run but are not recorded.
	database, err := db.Init(baseDir)
	if err != nil {
		log.Warn("job journal unavailable; history is disabled", "path", filepath.Join(baseDir, db.FileName), "error", err)
		database = nil
	}

	bundle, index := outline.LoadBundle(cfg.SearchDirs(workDir, baseDir), log)
	total := index.Total(cfg.DefaultChapterCount)

	store, err := draft.Open(cfg.StorePath(baseDir), index, total, log)
	if err != nil {
		if !errors.Is(err, errors.ErrPersistenceFailure) {
			closeJournal(database)
			return nil, err
		}
		log.Warn("draft store could not be written at startup", "path", cfg.StorePath(baseDir), "error", err)
	}

	selector, err := llm.NewSelector(cfg.KeySelection)
	if err != nil {
		closeJournal(database)
		return nil, err
	}
	credentials := config.LoadCredentials([]string{workDir, baseDir})
	if len(credentials) == 0 {
		log.Warn("no API credentials configured; generation is disabled", "env", config.CredentialsEnv)
	}
	log.Info("loom ready", "chapters", total, "credentials", len(credentials), "store", store.Path())

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	orch := ops.NewOrchestrator(ops.OrchestratorDeps{
		Store:   store,
		Bundle:  bundle,
		Backend: llm.NewGemini(cfg.BaseURL, nil, timeout),
		Keys:    llm.NewKeyPool(credentials, selector),
		Config:  cfg,
		Journal: database,
		Log:     log,
	})

	return &env{
		baseDir: baseDir,
		cfg:     cfg,
		log:     log,
		store:   store,
		orch:    orch,
		journal: database,
	}, nil
}

// closeJournal closes the journal if one was opened.
func closeJournal(database *sql.DB) {
	if database != nil {
		database.Close()
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before loading anything
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'loom --help' for usage.\n")
		os.Exit(1)
	}

	log, err := logger.New(os.Getenv("LOOM_LOG_MODE"))
	if err != nil {
		fatal("failed to build logger: %v", err)
	}
	defer log.Sync()

	baseDir, err := resolveBaseDir()
	if err != nil {
		fatal("%v", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		fatal("could not determine working directory: %v", err)
	}

	e, err := bootstrap(baseDir, workDir, log)
	if err != nil {
		fatal("%v", err)
	}
	defer closeJournal(e.journal)

	if isCLIMode() {
		app := newCLIApp(e)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default)
	if err := mcp.Run(e.mcpDeps(), Version); err != nil {
		fatal("%v", err)
	}
}
