package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/internal/logging"
	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

const (
	// BaseURLEnvVar is the well-known environment variable scripts read the
	// target API base URL from.
	BaseURLEnvVar = "API_BASE_URL"

	defaultTimeout       = 60 * time.Second
	defaultMaxOutputSize = 1 * 1024 * 1024
	stdoutSnippetLen     = 200
)

// Executor runs verified test scripts against a target base URL inside
// isolated disposable workspaces and classifies the results. A run always
// completes and always yields a suite: scripts that cannot execute become
// unknown outcomes, never batch failures.
type Executor struct {
	baseURL   string
	timeout   time.Duration
	poolSize  int
	maxOutput int64
	runtimes  map[schema.ScriptRuntime]Runtime
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout overrides the per-script wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPoolSize bounds concurrent script executions. The default of 1 runs
// scripts serially.
func WithPoolSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.poolSize = n
		}
	}
}

// WithMaxOutputSize caps captured process output.
func WithMaxOutputSize(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// WithRuntime registers or replaces a runtime definition.
func WithRuntime(tag schema.ScriptRuntime, rt Runtime) Option {
	return func(e *Executor) { e.runtimes[tag] = rt }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor targeting the given base URL.
func NewExecutor(baseURL string, opts ...Option) *Executor {
	e := &Executor{
		baseURL:   baseURL,
		timeout:   defaultTimeout,
		poolSize:  1,
		maxOutput: defaultMaxOutputSize,
		runtimes:  defaultRuntimes(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the batch and returns the suite. Outcomes within one script's
// report preserve that script's internal order; ordering across scripts is
// not guaranteed. Cancelling the context stops launching new scripts while
// running ones finish or hit their own timeout; scripts that never launched
// are recorded as unknown.
func (e *Executor) Execute(ctx context.Context, scripts []schema.TestScript) schema.TestResults {
	suiteID := fmt.Sprintf("suite-%s", uuid.New())
	ctx = logging.WithSuiteID(ctx, suiteID)

	var (
		mu       sync.Mutex
		outcomes []schema.TestOutcome
	)
	collect := func(batch []schema.TestOutcome) {
		mu.Lock()
		outcomes = append(outcomes, batch...)
		mu.Unlock()
	}

	pool := NewWorkerPool(e.poolSize)
	for _, script := range scripts {
		script := script
		err := pool.Submit(ctx, func(ctx context.Context) error {
			collect(e.runScript(logging.WithScriptID(ctx, script.SequenceID), script))
			return nil
		})
		if err != nil {
			collect([]schema.TestOutcome{{
				TestName: script.SequenceID,
				Status:   schema.StatusUnknown,
				Details:  schema.NewErrorf(schema.ErrCodeCancelled, "script not started: %v", err).Error(),
			}})
		}
	}
	pool.Wait()
	pool.Shutdown()

	return schema.TestResults{
		SuiteID:    suiteID,
		Outcomes:   outcomes,
		ExecutedAt: time.Now().UTC(),
	}
}

// runScript executes one script in a disposable workspace. Every exit path
// releases the workspace and yields at least one outcome.
func (e *Executor) runScript(ctx context.Context, script schema.TestScript) []schema.TestOutcome {
	rt, ok := e.runtimes[script.Runtime]
	if !ok {
		return e.singleUnknown(script,
			schema.NewErrorf(schema.ErrCodeRuntimeUnavailable, "unsupported runtime %q", script.Runtime).Error())
	}

	binPath, err := exec.LookPath(rt.Binary)
	if err != nil {
		return e.singleUnknown(script,
			schema.NewErrorf(schema.ErrCodeRuntimeUnavailable,
				"runtime %s unavailable: binary %q not found in PATH", script.Runtime, rt.Binary).Error())
	}

	ws, err := newWorkspace()
	if err != nil {
		return e.singleUnknown(script, fmt.Sprintf("create workspace: %v", err))
	}
	defer ws.Release()

	if err := ws.WriteFile(rt.ScriptFile, script.Content); err != nil {
		return e.singleUnknown(script, fmt.Sprintf("materialize script: %v", err))
	}
	if rt.Prepare != nil {
		if err := rt.Prepare(ws); err != nil {
			return e.singleUnknown(script, fmt.Sprintf("prepare workspace: %v", err))
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd := exec.CommandContext(execCtx, binPath, rt.Args...)
	cmd.Dir = ws.dir
	// Shared env is intentionally limited to the base-URL variable; the rest
	// is the parent environment, never mutated per test.
	cmd.Env = append(os.Environ(), BaseURLEnvVar+"="+e.baseURL)
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, limit: e.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: e.maxOutput}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	e.logger.DebugContext(ctx, "script finished",
		slog.Duration("duration", time.Since(start)),
		slog.String("runtime", string(script.Runtime)))

	if execCtx.Err() == context.DeadlineExceeded {
		return e.singleUnknown(script,
			schema.NewErrorf(schema.ErrCodeTimeout, "test execution timed out after %s", e.timeout).Error())
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Non-exit error: the process never ran properly.
			return e.singleUnknown(script, fmt.Sprintf("error during test execution: %v", runErr))
		}
	}

	data, readErr := os.ReadFile(ws.Path(reportFileName))
	if readErr != nil {
		// No structured report: synthesize one outcome from the exit code.
		status := schema.StatusMatched
		if exitCode != 0 {
			status = schema.StatusUnknown
		}
		return []schema.TestOutcome{{
			TestName: script.SequenceID,
			Status:   status,
			Details:  fmt.Sprintf("exit code: %d, output: %s", exitCode, snippet(stdoutBuf.String())),
		}}
	}

	parsed, parseErr := parseReport(data)
	if parseErr != nil {
		return e.singleUnknown(script, fmt.Sprintf("error parsing test results: %v", parseErr))
	}
	if len(parsed) == 0 {
		return e.singleUnknown(script, "test report contained no cases")
	}
	return parsed
}

func (e *Executor) singleUnknown(script schema.TestScript, details string) []schema.TestOutcome {
	return []schema.TestOutcome{{
		TestName: script.SequenceID,
		Status:   schema.StatusUnknown,
		Details:  details,
	}}
}

// snippet truncates captured output for outcome details.
func snippet(s string) string {
	if len(s) > stdoutSnippetLen {
		return s[:stdoutSnippetLen] + "..."
	}
	return s
}

// limitedWriter wraps a writer and silently discards bytes beyond the limit.
// Write always reports the full len(p) consumed to prevent the subprocess
// from blocking on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}
