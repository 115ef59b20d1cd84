package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dcb/internal/dcberr"
)

// DefaultTimeout bounds a single compiler run.
const DefaultTimeout = 5 * time.Minute

// Command lines longer than this go through a response file. The Windows
// process argument limit is 32k, but dcc itself chokes well before that.
const responseFileThreshold = 8000

// RunResult is the raw outcome of a compiler invocation.
type RunResult struct {
	Output   string
	ExitCode int
	TimedOut bool
	Elapsed  time.Duration
}

// Runner executes synthesized compiler commands.
type Runner struct {
	// Timeout per invocation; DefaultTimeout when zero.
	Timeout time.Duration
	Log     *slog.Logger
}

func (r *Runner) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run executes argv in workDir and captures the combined output. A timeout
// yields a RunResult with TimedOut set rather than an error; an error is
// returned only when the compiler could not be started at all.
func (r *Runner) Run(ctx context.Context, argv []string, workDir string) (*RunResult, error) {
	if len(argv) == 0 {
		return nil, dcberr.New(dcberr.ValueError, "empty command")
	}

	args := argv[1:]
	if commandLength(args) > responseFileThreshold {
		rspArgs, cleanup, err := responseFile(args, workDir)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		args = rspArgs
		r.log().Debug("using response file", "args", len(argv)-1)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = workDir

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.log().Warn("compiler timed out", "after", r.timeout())
		return &RunResult{
			Output:   fmt.Sprintf("Compilation timed out after %s", formatTimeout(r.timeout())),
			ExitCode: 1,
			TimedOut: true,
			Elapsed:  elapsed,
		}, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &RunResult{Output: string(out), ExitCode: exitErr.ExitCode(), Elapsed: elapsed}, nil
		}
		return nil, dcberr.Wrap(dcberr.InternalError, err, "starting compiler %s", argv[0])
	}
	return &RunResult{Output: string(out), ExitCode: 0, Elapsed: elapsed}, nil
}

func commandLength(args []string) int {
	n := 0
	for _, a := range args {
		n += len(a) + 1
	}
	return n
}

// responseFile writes args into a temporary @file, one per line, and
// returns the replacement argument list plus a cleanup func. Arguments
// containing spaces are quoted unless already quoted.
func responseFile(args []string, dir string) ([]string, func(), error) {
	var sb strings.Builder
	for _, a := range args {
		if strings.Contains(a, " ") && !strings.HasPrefix(a, `"`) {
			sb.WriteString(`"` + a + `"`)
		} else {
			sb.WriteString(a)
		}
		sb.WriteByte('\n')
	}

	path := filepath.Join(dir, "dcb_"+uuid.NewString()+".rsp")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return nil, nil, dcberr.Wrap(dcberr.InternalError, err, "writing response file")
	}
	return []string{"@" + path}, func() { os.Remove(path) }, nil
}

func formatTimeout(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
