package app

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"bomsort/internal/config"
	"bomsort/internal/convert"
	"bomsort/internal/httpx"
	"bomsort/internal/integrations/llm"
	slackbot "bomsort/internal/integrations/slack"
	"bomsort/internal/logging"
	"bomsort/internal/metrics"
	"bomsort/internal/pipeline"
	"bomsort/internal/schedule"
	"bomsort/internal/storage/sqlite"
)

const usage = `usage: bomsort [-config path] <command>

commands:
  detect     print the detected header row of the parts list
  classify   sort drawings into result/1_classified/<material>/<thickness>
  annotate   label every classified drawing into result/2_annotated
  merge      merge each material/thickness directory into result/3_merged
  run        classify, annotate and merge
  watch      run merge on sweep_schedule until interrupted
  history    list recent runs
`

// ErrUsage is returned for a missing or unknown command.
var ErrUsage = errors.New("unknown command")

const historyLimit = 20

func Main() {
	fs := flag.NewFlagSet("bomsort", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg, fs.Arg(0), os.Stdout, logger); err != nil {
		if errors.Is(err, ErrUsage) {
			fs.Usage()
			os.Exit(2)
		}
		logger.Fatal("bomsort failed", zap.String("command", fs.Arg(0)), zap.Error(err))
	}
}

// Run executes one command against the project in cfg, writing progress and
// results to out.
func Run(ctx context.Context, cfg config.Config, command string, out io.Writer, logger *zap.Logger) error {
	command = strings.ToLower(strings.TrimSpace(command))
	task, isPass := pipeline.ParseTask(command)
	if !isPass && command != "detect" && command != "watch" && command != "history" {
		return fmt.Errorf("%w: %q", ErrUsage, command)
	}
	logger.Info("config loaded",
		zap.String("project", cfg.ProjectDir),
		zap.String("source", cfg.SourceDir),
		zap.String("policy", cfg.UnmatchedPolicy),
		zap.String("llm", cfg.LLMProvider),
		zap.Bool("converter", cfg.ConverterConfigured()),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.String("timezone", cfg.Location.String()))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	defer db.Close()
	logger.Debug("ledger initialized", zap.String("path", cfg.DBPath))

	if command == "history" {
		return printHistory(db, out)
	}

	runner := pipeline.NewRunner(cfg, deps(cfg, db, logger))
	switch command {
	case "detect":
		return detect(runner, out)
	case "watch":
		return watch(ctx, cfg, runner, out, logger)
	}
	return runPass(ctx, runner, task, out)
}

func deps(cfg config.Config, db *sql.DB, logger *zap.Logger) pipeline.Deps {
	d := pipeline.Deps{
		Logger:  logger,
		DB:      db,
		Metrics: metrics.New(),
	}
	client := httpx.NewClient(cfg.ExternalHTTPTimeoutSeconds)
	if n := slackbot.New(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackMention, logger, slack.OptionHTTPClient(client)); n != nil {
		d.Notifier = n
	}
	if cfg.ConverterConfigured() {
		backend := convert.ParseCommand(cfg.ConverterCommand)
		backend.Timeout = cfg.ConverterTimeout()
		d.Converter = convert.NewRunner(backend, logger)
	}
	if cfg.LLMProvider == "anthropic" {
		d.Guesser = llm.New(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.LLMConfidence, logger, option.WithHTTPClient(client))
	}
	return d
}

func detect(runner *pipeline.Runner, out io.Writer) error {
	path, h, err := runner.Detect()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\nheader row: %d\ncolumns: %s\n", path, h.RowIndex+1, strings.Join(h.Columns, ", "))
	return nil
}

func runPass(ctx context.Context, runner *pipeline.Runner, task pipeline.Task, out io.Writer) error {
	runner.OnProgress(func(e pipeline.Event) {
		fmt.Fprintf(out, "[%s %d/%d] %s\n", e.Task, e.Done, e.Total, e.Line)
	})
	rep, err := runner.Start(ctx, task).Wait()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, rep.Summary())
	if rep.Failed() {
		return fmt.Errorf("%s finished with failures", task)
	}
	return nil
}

func watch(ctx context.Context, cfg config.Config, runner *pipeline.Runner, out io.Writer, logger *zap.Logger) error {
	sched, err := schedule.Parse(cfg.SweepSchedule)
	if err != nil {
		return fmt.Errorf("sweep_schedule: %w", err)
	}
	logger.Info("watching", zap.String("schedule", cfg.SweepSchedule))
	runs := schedule.Loop(ctx, sched, cfg.Location, logger, func(ctx context.Context) error {
		rep, err := runner.Execute(ctx, pipeline.TaskMerge)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rep.Summary())
		return nil
	})
	logger.Info("watch stopped", zap.Int("sweeps", runs))
	return nil
}

func printHistory(db *sql.DB, out io.Writer) error {
	runs, err := sqlite.GetRecentRuns(db, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		elapsed := "-"
		if r.FinishedAt.Valid {
			elapsed = r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "%s  %-8s  %-8s  %8s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Task, r.Status, elapsed, r.Project)
		if s := strings.TrimSpace(r.Summary); s != "" {
			for _, line := range strings.Split(s, "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}
	return nil
}
