package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/common"
)

// Exit codes form the CLI contract: success, usage error, not found,
// analyzer findings, internal failure.
const (
	exitOK       = 0
	exitUsage    = 2
	exitNotFound = 3
	exitFindings = 4
	exitInternal = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}

	switch args[0] {
	case "version", "-v", "--version":
		fmt.Printf("sitewarden version %s\n", common.GetFullVersion())
		return exitOK
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	}

	configPath := os.Getenv("SITEWARDEN_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("sitewarden.toml"); err == nil {
			configPath = "sitewarden.toml"
		}
	}
	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitUsage
	}
	logger := common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		return reportError(err)
	}
	defer application.Close()

	// Ctrl-C cancels the in-flight crawl or test run; partial artefacts stay
	// on disk, clearly marked.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "project":
		return runProject(application, args[1:])
	case "crawl":
		return runCrawl(ctx, application, args[1:])
	case "test":
		return runTest(ctx, application, args[1:])
	case "issue":
		return runIssue(application, args[1:])
	case "report":
		return runReport(application, args[1:])
	case "serve":
		return runServe(ctx, application, config, logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		printUsage()
		return exitUsage
	}
}

// reportError maps the library error envelope onto an exit code.
func reportError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var env *common.Envelope
	if errors.As(err, &env) {
		switch env.Kind {
		case common.ErrUsage:
			return exitUsage
		case common.ErrNotFound:
			return exitNotFound
		}
	}
	return exitInternal
}

func printUsage() {
	fmt.Print(`sitewarden - website analysis engine

Usage:
  sitewarden project new <url>
  sitewarden project list
  sitewarden crawl site <slug> [--max-pages N] [--max-depth N] [--include GLOB]... [--exclude GLOB]... [--render]
  sitewarden test list-plugins
  sitewarden test run <slug> [--test NAME]... [--snapshot TS] [--timeout SEC] [--config NAME:JSON]...
  sitewarden test view-issues <slug> [--status S] [--plugin P]
  sitewarden issue transition <slug> <id> <status> [--actor NAME]
  sitewarden report generate <slug> [--format html|pdf] [--out DIR]
  sitewarden serve
  sitewarden version

Configuration is read from sitewarden.toml (or $SITEWARDEN_CONFIG), with
SITEWARDEN_* environment variables overriding file values.
`)
}
