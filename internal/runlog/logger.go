package runlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benchforge/portcore/internal/core/resilience"
	"github.com/benchforge/portcore/internal/protocol"
	"github.com/benchforge/portcore/internal/workflow"
)

// Logger implements workflow.RunLogger: one append-only file per workflow
// run and a daily summary file under <base>/BIB_<id>/YYYY-MM-DD/, and a
// "latest" marker under <base>/BIB_<id>/latest/.
type Logger struct {
	cfg     Config
	limiter interface {
		Allow() bool
	}

	mu    sync.Mutex
	days  map[string]*dayState
	files map[string]*sync.Mutex
}

// New constructs a Logger. BaseDir is required; the directory itself need
// not exist yet (it is created lazily, per BIB, on first use).
func New(cfg Config) (*Logger, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("runlog: BaseDir is required")
	}
	cfg.setDefaults()
	return &Logger{
		cfg:     cfg,
		limiter: newLimiter(cfg.DegradedWarnThrottle),
		days:    make(map[string]*dayState),
		files:   make(map[string]*sync.Mutex),
	}, nil
}

// LogEntry appends one command result to the run's log file, or falls back
// to the shared logger when the run directory is degraded.
func (l *Logger) LogEntry(bibID, uutID string, portNumber int, phase string, result protocol.CommandResult) {
	state := l.ensureDay(bibID)

	line := fmt.Sprintf("%s phase=%s command=%q success=%t response=%q duration=%s\n",
		result.StartedAt.Format(time.RFC3339), phase, result.Command, result.Success, result.RawResponse, result.Duration)

	if state.degraded {
		l.warnDegraded(bibID, state.reason)
		l.cfg.Logger.Info("run log entry (degraded mode)", "bib_id", bibID, "uut_id", uutID, "port", portNumber, "phase", phase, "success", result.Success)
		return
	}

	runFile := filepath.Join(state.dir, fmt.Sprintf("%s_port%d_%s.log", uutID, portNumber, time.Now().Format("1504")))
	l.appendLine(runFile, line)
	l.appendLine(l.latestMarkerPath(state.dir, uutID), line)
}

// LogSummary writes the workflow's one-line outcome to the daily summary
// file and the latest marker, or falls back to the shared logger when
// degraded. The per-run file does not receive the summary line.
func (l *Logger) LogSummary(bibID, uutID string, portNumber int, summary workflow.Summary) {
	state := l.ensureDay(bibID)

	line := fmt.Sprintf("%s uut=%s port=%d %s duration=%s\n",
		summary.EndedAt.Format(time.RFC3339), uutID, portNumber, summary.String(), summary.Duration)

	if state.degraded {
		l.warnDegraded(bibID, state.reason)
		l.cfg.Logger.Info("run summary (degraded mode)", "bib_id", bibID, "uut_id", uutID, "port", portNumber, "summary", summary.String())
		return
	}

	dailyFile := filepath.Join(state.dir, fmt.Sprintf("daily_summary_%s.log", time.Now().Format("2006-01-02")))
	l.appendLine(dailyFile, line)
	l.appendLine(l.latestMarkerPath(state.dir, uutID), line)
}

func (l *Logger) latestMarkerPath(dayDir, uutID string) string {
	latestDir := filepath.Join(filepath.Dir(dayDir), "latest")
	return filepath.Join(latestDir, fmt.Sprintf("%s_current.log", uutID))
}

// ensureDay returns the cached dayState for (bibID, today), creating and
// probing the directory on first use for that combination.
func (l *Logger) ensureDay(bibID string) *dayState {
	today := time.Now().Format("2006-01-02")
	key := bibID + "|" + today

	l.mu.Lock()
	if state, ok := l.days[key]; ok {
		l.mu.Unlock()
		return state
	}
	l.mu.Unlock()

	dir := filepath.Join(l.cfg.BaseDir, "BIB_"+bibID, today)
	state := &dayState{dir: dir}

	err := resilience.WithRetry(context.Background(), retryPolicy(l.cfg.ProbeRetryMaxAttempts, l.cfg.Logger), func() error {
		return probeWritable(dir)
	})
	if err != nil {
		state.degraded = true
		state.reason = err.Error()
		l.cfg.Logger.Warn("run log directory unavailable, degrading to shared logger", "bib_id", bibID, "dir", dir, "error", err)
	} else {
		latestDir := filepath.Join(filepath.Dir(dir), "latest")
		_ = os.MkdirAll(latestDir, 0o755)
	}

	l.mu.Lock()
	l.days[key] = state
	l.mu.Unlock()

	return state
}

// probeWritable creates dir (and parents) and writes+removes a small probe
// file to confirm the path is actually writable, not just creatable.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return fmt.Errorf("probe write %s: %w", dir, err)
	}
	_ = os.Remove(probe)
	return nil
}

func (l *Logger) warnDegraded(bibID, reason string) {
	if !l.limiter.Allow() {
		return
	}
	l.cfg.Logger.Warn("run logging remains degraded", "bib_id", bibID, "reason", reason)
}

// appendLine opens path in append mode and writes line, serialized by a
// per-path mutex. All failures are logged and swallowed — per-run logging
// never propagates an error back to the workflow.
func (l *Logger) appendLine(path, line string) {
	mu := l.fileMutex(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.cfg.Logger.Warn("run log write failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		l.cfg.Logger.Warn("run log write failed", "path", path, "error", err)
	}
}

func (l *Logger) fileMutex(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.files[path]
	if !ok {
		mu = &sync.Mutex{}
		l.files[path] = mu
	}
	return mu
}
