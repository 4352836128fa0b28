package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/HZeroxium/KAT-RBC/internal/executor"
	"github.com/HZeroxium/KAT-RBC/internal/expressions"
	"github.com/HZeroxium/KAT-RBC/internal/graph"
	"github.com/HZeroxium/KAT-RBC/internal/logging"
	"github.com/HZeroxium/KAT-RBC/internal/mining"
	"github.com/HZeroxium/KAT-RBC/internal/pipeline"
	"github.com/HZeroxium/KAT-RBC/internal/reinforcement"
	"github.com/HZeroxium/KAT-RBC/internal/scheduler"
	"github.com/HZeroxium/KAT-RBC/internal/specparse"
	"github.com/HZeroxium/KAT-RBC/internal/validation"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "katrbc:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	flag.StringVar(&cfg.SpecPath, "spec", cfg.SpecPath, "path to the OpenAPI document")
	flag.StringVar(&cfg.ScriptsDir, "scripts", cfg.ScriptsDir, "directory of generated test scripts")
	flag.StringVar(&cfg.ExchangesPath, "exchanges", cfg.ExchangesPath, "recorded exchanges JSON file")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "target API base URL")
	flag.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "path for the results JSON report")
	dataPath := flag.String("check-data", "", "test-data JSON file to validate before running")
	dataComponent := flag.String("check-component", "", "component schema name for -check-data")
	cronExpr := flag.String("cron", "", "cron expression for recurring runs (runs once when empty)")
	flag.Parse()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.SpecPath == "" {
		return fmt.Errorf("no spec path configured (use -spec or KATRBC_SPEC_PATH)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec, err := specparse.ParseFile(cfg.SpecPath)
	if err != nil {
		return err
	}
	logger.Info("spec parsed",
		slog.String("title", spec.Title),
		slog.Int("operations", len(spec.Operations)))

	if *dataPath != "" {
		if err := checkData(logger, spec, *dataPath, *dataComponent); err != nil {
			return err
		}
	}

	scripts, err := loadScripts(cfg.ScriptsDir)
	if err != nil {
		return err
	}
	exchanges, err := loadExchanges(cfg.ExchangesPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(katrbcDir(), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	repo, err := reinforcement.NewLibSQLRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Migrate(ctx); err != nil {
		return err
	}

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	exec := executor.NewExecutor(cfg.BaseURL,
		executor.WithPoolSize(cfg.PoolSize),
		executor.WithTimeout(time.Duration(cfg.TimeoutSec)*time.Second),
		executor.WithLogger(logger),
	)
	engine := reinforcement.NewEngine(repo, reinforcement.WithLogger(logger))

	p := pipeline.New(exec,
		pipeline.WithStaticMiner(mining.NewHeuristicStaticMiner(
			[]expressions.Compiler{celEngine, expressions.NewExprEngine()}, logger)),
		pipeline.WithSequencerOptions(
			graph.WithMaxLength(cfg.MaxSeqLength),
			graph.WithMaxSequences(cfg.MaxSequences),
		),
		pipeline.WithReinforcement(engine),
		pipeline.WithLogger(logger),
	)

	runOnce := func(ctx context.Context) error {
		out, err := p.Run(ctx, pipeline.Input{
			Spec:      spec,
			Exchanges: exchanges,
			Scripts:   scripts,
		})
		if err != nil {
			logger.Warn("run finished with reinforcement errors", slog.String("error", err.Error()))
		}
		if err := writeReport(cfg.ReportPath, out); err != nil {
			return err
		}
		logSummary(logger, out)
		return nil
	}

	if *cronExpr == "" {
		return runOnce(ctx)
	}

	sched := scheduler.NewScheduler(runStarterFunc(func(ctx context.Context, _ string) error {
		return runOnce(ctx)
	}), scheduler.WithLogger(logger))
	if err := sched.AddJob("recurring", *cronExpr); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

// runStarterFunc adapts a closure to scheduler.RunStarter.
type runStarterFunc func(ctx context.Context, jobID string) error

func (f runStarterFunc) StartRun(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// loadScripts reads generated test scripts from a directory. The runtime tag
// comes from the file extension and the sequence id from the base name.
func loadScripts(dir string) ([]schema.TestScript, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}

	var scripts []schema.TestScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var runtime schema.ScriptRuntime
		switch filepath.Ext(entry.Name()) {
		case ".py":
			runtime = schema.RuntimePython
		case ".groovy":
			runtime = schema.RuntimeGroovy
		default:
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, schema.TestScript{
			SequenceID: strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Runtime:    runtime,
			Content:    string(content),
		})
	}
	return scripts, nil
}

// checkData validates a test-data file against a component schema before the
// run. Divergent items are logged as warnings; they do not stop the run.
func checkData(logger *slog.Logger, spec *schema.ParsedSpec, path, componentName string) error {
	if componentName == "" {
		return fmt.Errorf("-check-data requires -check-component")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	var file schema.TestDataFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse data file: %w", err)
	}

	issues, err := validation.NewValidator(spec).CheckDataFile(file, componentName)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		logger.Warn("test-data item diverges from its declared kind",
			slog.Int("index", issue.Index),
			slog.String("kind", string(issue.Kind)),
			slog.String("reason", issue.Reason))
	}
	logger.Info("test-data check complete",
		slog.String("component", componentName),
		slog.Int("items", len(file.Items)),
		slog.Int("issues", len(issues)))
	return nil
}

func loadExchanges(path string) ([]schema.RecordedExchange, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exchanges file: %w", err)
	}
	var exchanges []schema.RecordedExchange
	if err := json.Unmarshal(data, &exchanges); err != nil {
		return nil, fmt.Errorf("parse exchanges file: %w", err)
	}
	return exchanges, nil
}

// report is the JSON artifact handed to external reporting.
type report struct {
	RunID       string                     `json:"run_id"`
	Results     schema.TestResults         `json:"results"`
	Constraints []schema.UnifiedConstraint `json:"constraints"`
	Sequences   schema.SequenceCollection  `json:"sequences"`
	Update      *schema.ReinforcementUpdate `json:"reinforcement_update,omitempty"`
}

func writeReport(path string, out *pipeline.Output) error {
	data, err := json.MarshalIndent(report{
		RunID:       out.RunID,
		Results:     out.Results,
		Constraints: out.Constraints,
		Sequences:   out.Sequences,
		Update:      out.Update,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func logSummary(logger *slog.Logger, out *pipeline.Output) {
	var matched, mismatched, unknown int
	for _, o := range out.Results.Outcomes {
		switch o.Status {
		case schema.StatusMatched:
			matched++
		case schema.StatusMismatched:
			mismatched++
		default:
			unknown++
		}
	}
	logger.Info("testing run complete",
		slog.String("suite_id", out.Results.SuiteID),
		slog.Int("matched", matched),
		slog.Int("mismatched", mismatched),
		slog.Int("unknown", unknown),
		slog.Int("sequences", len(out.Sequences.Sequences)),
		slog.Int("constraints", len(out.Constraints)),
	)
}
