package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kingrea/stepwise/internal/config"
	"github.com/kingrea/stepwise/internal/invoker"
	"github.com/kingrea/stepwise/internal/logbook"
	"github.com/kingrea/stepwise/internal/logging"
	"github.com/kingrea/stepwise/internal/tui"
	"github.com/kingrea/stepwise/internal/workflow"
	"github.com/kingrea/stepwise/internal/workflow/engine"
	"github.com/kingrea/stepwise/internal/workflow/recovery"
)

type runFlags struct {
	testMode      bool
	noInteractive bool
	linePrompts   bool
	logLevel      string
	logFormat     string
	logFile       bool
	journal       bool
	journalSet    bool
	report        string
}

func runWorkflow(ctx context.Context, global globalFlags, opts runFlags, name string, stdin io.Reader, stdout, stderr io.Writer) error {
	cwd, err := workingDir(global)
	if err != nil {
		return err
	}
	path, err := workflow.FindDefinitionFile(cwd, name)
	if err != nil {
		return err
	}
	def, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	projectDir := filepath.Dir(path)
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return err
	}

	var logOut io.Writer = stderr
	if opts.logFile {
		file, err := logging.OpenFile(projectDir)
		if err != nil {
			return err
		}
		defer file.Close()
		logOut = file
	}
	logger, err := logging.Configure(firstNonEmpty(opts.logLevel, cfg.Project.LogLevel), firstNonEmpty(opts.logFormat, cfg.Project.LogFormat), logOut)
	if err != nil {
		return err
	}

	tui.ConfigureColors(stdout)
	console := tui.NewConsole(stdout, tui.WithInput(stdin))
	defer console.Close()

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(console),
	}

	interactive := cfg.Interactive() && !opts.noInteractive && !opts.testMode
	switch {
	case !interactive:
	case opts.linePrompts:
		engineOpts = append(engineOpts, engine.WithPrompter(recovery.NewLinePrompter(stdin, stdout)))
	case tui.DetectInteractive(stdin, stdout):
		engineOpts = append(engineOpts, engine.WithPrompter(console))
	default:
		logger.Debug("no terminal attached; recovery prompts disabled")
		interactive = false
	}

	journal := cfg.Project.Journal
	if opts.journalSet {
		journal = opts.journal
	}
	if journal {
		book, err := logbook.New(cfg.JournalPath())
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, engine.WithObserver(book))
	}

	shell := invoker.NewShell(cfg.Shell(), invoker.WithDir(projectDir), invoker.WithEnv(cfg.Env()...))
	eng, err := engine.New(shell, engineOpts...)
	if err != nil {
		return err
	}

	report, runErr := eng.Run(ctx, def, engine.RunOptions{Interactive: interactive, TestMode: opts.testMode})
	if opts.report != "" {
		reportPath := opts.report
		if !filepath.IsAbs(reportPath) {
			reportPath = filepath.Join(cwd, reportPath)
		}
		if err := engine.WriteReport(reportPath, report); err != nil {
			if runErr != nil {
				return fmt.Errorf("%w (report: %v)", runErr, err)
			}
			return err
		}
	}
	return runErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
