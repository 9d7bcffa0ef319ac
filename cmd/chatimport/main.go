// Command chatimport fixes the archive-importer CLI's flag contract
// and exit codes and hands everything else to internal/pipeline, with
// a rematch-media subcommand and --watch mode for re-resolving media
// against an existing output tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatgpt-export-corpus/internal/config"
	"chatgpt-export-corpus/internal/logging"
	"chatgpt-export-corpus/internal/pipeline"
	"chatgpt-export-corpus/internal/pipelineerr"
	"chatgpt-export-corpus/internal/watch"
	"chatgpt-export-corpus/internal/writer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "rematch-media" {
		return runRematch(args[1:])
	}
	return runDefault(args)
}

func runDefault(args []string) int {
	defaults := config.Load()

	fs := flag.NewFlagSet("chatimport", flag.ContinueOnError)
	outDir := fs.String("o", defaults.OutputDir, "output directory (must be empty or non-existent)")
	recoveryDir := fs.String("recovered-files", defaults.RecoveryDir, "recovery folder treated as an additional media source")
	dataPath := fs.String("data", "data/conversations_store.json", "conversation store served by cmd/browse")
	workers := fs.Int("workers", defaults.Workers, "number of conversation-processing workers")
	verbose := fs.Bool("v", defaults.Verbose, "verbose diagnostics")
	flat := fs.Bool("flat", false, "accepted for compatibility; has no effect (conversation folders are always dated)")
	outputFormat := fs.String("output-format", "json", "one of json, html, both")
	// flag stops at the first positional argument, so parsing resumes
	// after each one to accept options that follow the archive path.
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	_ = flat // conversation folder layout is always the dated form; --flat is accepted for CLI-contract compatibility

	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "usage: chatimport <archive> [-o OUT] [-v] [--flat]")
		return 2
	}
	archivePath := positional[0]

	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := logging.New("[chatimport]", *verbose)

	summary, err := pipeline.Run(pipeline.Options{
		ArchivePath: archivePath,
		OutputDir:   *outDir,
		RecoveryDir: *recoveryDir,
		DataPath:    *dataPath,
		Workers:     *workers,
		Format:      format,
		Log:         log,
	})
	if err != nil {
		return reportFailure(err)
	}

	printSummary(*verbose, summary)
	return 0
}

func runRematch(args []string) int {
	defaults := config.Load()

	fs := flag.NewFlagSet("rematch-media", flag.ContinueOnError)
	recoveryDir := fs.String("recovered-files", defaults.RecoveryDir, "recovery folder treated as an additional media source")
	dataPath := fs.String("data", "data/conversations_store.json", "conversation store served by cmd/browse")
	workers := fs.Int("workers", defaults.Workers, "number of conversation-processing workers")
	verbose := fs.Bool("v", defaults.Verbose, "verbose diagnostics")
	outputFormat := fs.String("output-format", "json", "one of json, html, both")
	watchMode := fs.Bool("watch", false, "keep running, re-matching whenever recovered-files changes")
	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		rest = fs.Args()[1:]
	}

	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "usage: chatimport rematch-media <OUT> [--recovered-files DIR] [--watch]")
		return 2
	}
	outDir := positional[0]

	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := logging.New("[rematch-media]", *verbose)

	opts := pipeline.RematchOptions{
		OutputDir:   outDir,
		RecoveryDir: *recoveryDir,
		DataPath:    *dataPath,
		Workers:     *workers,
		Format:      format,
		Log:         log,
	}

	summary, err := pipeline.Rematch(opts)
	if err != nil {
		return reportFailure(err)
	}
	printSummary(*verbose, summary)

	if !*watchMode {
		return 0
	}
	return runWatch(opts)
}

// runWatch keeps rematch-media alive, re-running resolution whenever
// the recovery folder changes, until interrupted.
func runWatch(opts pipeline.RematchOptions) int {
	if err := os.MkdirAll(opts.RecoveryDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "watch: cannot ensure recovery folder %s: %v\n", opts.RecoveryDir, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onChange := func(changed []string) {
		if opts.Log != nil {
			opts.Log.Debugf("watch: re-matching after change to %v", changed)
		}
		summary, err := pipeline.Rematch(opts)
		if err != nil {
			if opts.Log != nil {
				opts.Log.Errorf("watch: rematch failed: %v", err)
			}
			return
		}
		printSummary(opts.Log != nil && opts.Log.Verbose(), summary)
	}

	w, err := watch.New(opts.RecoveryDir, onChange, opts.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return 1
	}
	defer w.Close()

	w.Run(ctx)
	return 0
}

func parseFormat(s string) (writer.Format, error) {
	switch writer.Format(s) {
	case writer.FormatJSON, writer.FormatHTML, writer.FormatBoth:
		return writer.Format(s), nil
	default:
		return "", fmt.Errorf("invalid --output-format %q (want json, html or both)", s)
	}
}

// reportFailure classifies a pipeline error into the exit codes
// spec.md §6 fixes: 2 for malformed input, 1 for other fatal failures.
func reportFailure(err error) int {
	var perr *pipelineerr.Error
	if e, ok := err.(*pipelineerr.Error); ok {
		perr = e
	}
	if perr != nil && perr.Kind == pipelineerr.ArchiveMalformed {
		fmt.Fprintf(os.Stderr, "malformed input: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	return 1
}

func printSummary(verbose bool, summary pipeline.Summary) {
	fmt.Printf("processed %d conversations (%d unresolved citations)\n", len(summary.Entries), summary.Stats.Unresolved)
	if len(summary.SkippedNested) > 0 {
		fmt.Printf("skipped %d nested archives that could not be extracted\n", len(summary.SkippedNested))
	}
	if !verbose {
		return
	}
	fmt.Println("resolutions credited by strategy:")
	for strategy, count := range summary.Stats.CreditedByStrategy {
		fmt.Printf("  %-12s %d\n", strategy, count)
	}
	if len(summary.Stats.CitationKinds) > 0 {
		fmt.Println("citations observed by kind:")
		for kind, count := range summary.Stats.CitationKinds {
			fmt.Printf("  %-24s %d\n", kind, count)
		}
	}
}
