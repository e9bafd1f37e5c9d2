package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"posevault/internal/domain"
)

// Runner invokes the external pose engine as a child process: a dependency
// self-check first, then the extraction with the image path as its sole
// argument. It implements domain.PoseExtractor. Every invocation carries a
// wall-clock limit; an overrun force-terminates the child.
type Runner struct {
	python   string
	diagnose string
	extract  string
	timeout  time.Duration
}

// NewRunner creates a Runner for the engine scripts under scriptsDir,
// executed with pythonBin.
func NewRunner(pythonBin, scriptsDir string, timeout time.Duration) *Runner {
	return &Runner{
		python:   pythonBin,
		diagnose: filepath.Join(scriptsDir, "diagnose.py"),
		extract:  filepath.Join(scriptsDir, "extract_pose.py"),
		timeout:  timeout,
	}
}

// selfCheck is the single JSON line the diagnose script prints.
type selfCheck struct {
	PythonVersion string          `json:"python_version"`
	Dependencies  map[string]bool `json:"dependencies"`
	AllAvailable  bool            `json:"all_dependencies_available"`
}

func (c *selfCheck) missing() []string {
	var names []string
	for name, present := range c.Dependencies {
		if !present {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Verify runs the dependency self-check alone. A missing capability yields
// a DependencyError naming every absent package. The check is read-only and
// idempotent, so concurrent callers may race on it safely.
func (r *Runner) Verify(ctx context.Context) error {
	out, err := r.run(ctx, r.diagnose)
	if err != nil {
		return err
	}

	check, err := parseSelfCheck(out)
	if err != nil {
		return err
	}
	if missing := check.missing(); len(missing) > 0 {
		return &domain.DependencyError{Missing: missing}
	}
	return nil
}

// Extract runs the self-check and, only when every capability is present,
// the extraction process. Dependency classification happens here, from the
// self-check result — a run that is guaranteed to fail is never spawned,
// and a later non-zero exit is a ProcessError without any re-reading of
// diagnostic text.
func (r *Runner) Extract(ctx context.Context, imagePath string) (*domain.PoseResult, error) {
	if err := r.Verify(ctx); err != nil {
		return nil, err
	}

	out, err := r.run(ctx, r.extract, imagePath)
	if err != nil {
		return nil, err
	}
	return Parse(out)
}

// run executes one engine script under the wall-clock limit and returns its
// stdout. Stderr is diagnostic noise: it is logged, never a failure signal
// by itself — only a non-zero exit fails.
func (r *Runner) run(ctx context.Context, script string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.python, append([]string{script}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		slog.Debug("pose engine stderr", "script", filepath.Base(script), "output", stderr.String())
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &domain.TimeoutError{Limit: r.timeout}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &domain.ProcessError{
				ExitCode:   exitErr.ExitCode(),
				Diagnostic: strings.TrimSpace(stderr.String()),
			}
		}
		return "", &domain.ProcessError{ExitCode: -1, Diagnostic: err.Error()}
	}
	return stdout.String(), nil
}

// parseSelfCheck decodes the last brace-delimited line of the self-check
// output, tolerating any preamble the runtime prints before it.
func parseSelfCheck(raw string) (*selfCheck, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var check selfCheck
		if err := json.Unmarshal([]byte(line), &check); err != nil {
			continue
		}
		return &check, nil
	}
	return nil, &domain.ParseError{Reason: "no self-check line in engine output"}
}
