package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/benchforge/portcore/internal/bibconfig"
	"github.com/benchforge/portcore/internal/config"
	"github.com/benchforge/portcore/internal/protocol"
	"github.com/benchforge/portcore/pkg/metrics"
)

// RunLogger is the per-workflow structured logger contract; internal/runlog
// implements it. Declared here so the engine doesn't import runlog, and so
// a workflow can run perfectly well against only the shared slog.Logger in
// tests or degraded mode.
type RunLogger interface {
	LogEntry(bibID, uutID string, portNumber int, phase string, result protocol.CommandResult)
	LogSummary(bibID, uutID string, portNumber int, summary Summary)
}

// Config wires the engine's collaborators.
type Config struct {
	Registry  *protocol.Registry
	RunLogger RunLogger
	Logger    *slog.Logger
	Metrics   *metrics.WorkflowMetrics

	// Sanitizer redacts credential-shaped port.Settings values before
	// they're logged. Defaults to config.NewDefaultSanitizer().
	Sanitizer config.Sanitizer
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Sanitizer == nil {
		c.Sanitizer = config.NewDefaultSanitizer()
	}
}

// Engine runs start/test/stop workflows against a protocol handler.
type Engine struct {
	cfg Config
}

// New constructs an Engine. Registry must be non-nil; RunLogger and Metrics
// are optional.
func New(cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{cfg: cfg}
}

// Run executes start/test/stop for one UUT port over physicalPort, using
// the protocol tag and command sequences declared in port.
func (e *Engine) Run(ctx context.Context, bib bibconfig.BibDefinition, uut bibconfig.UutDefinition, port bibconfig.PortDefinition, physicalPort string) (*Summary, error) {
	logger := e.cfg.Logger.With(
		"bib_id", bib.ID,
		"uut_id", uut.ID,
		"port_number", port.Number,
		"physical_port", physicalPort,
	)

	if len(port.Settings) > 0 {
		logger.Debug("port settings", "settings", e.cfg.Sanitizer.SanitizeSettings(port.Settings))
	}

	handler, err := e.cfg.Registry.New(port.Protocol)
	if err != nil {
		logger.Error("unsupported protocol", "protocol", port.Protocol, "error", err)
		return nil, err
	}

	portCfg := toPortConfig(port)

	summary := &Summary{
		BibID:        bib.ID,
		UutID:        uut.ID,
		PortNumber:   port.Number,
		PhysicalPort: physicalPort,
		StartedAt:    time.Now(),
		Success:      true,
	}

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ActiveRuns.Inc()
		defer e.cfg.Metrics.ActiveRuns.Dec()
	}

	session, err := handler.OpenSession(ctx, physicalPort, portCfg)
	if err != nil {
		logger.Error("session open failed", "error", err)
		e.recordRun("session_open_failed")
		return nil, err
	}
	defer func() {
		if cerr := handler.CloseSession(ctx, session); cerr != nil {
			logger.Warn("session close failed", "error", cerr)
		}
	}()

	startResult := e.runPhase(ctx, handler, session, PhaseStart, port.StartCommands, bib.ID, uut.ID, port.Number, logger)
	summary.Phases = append(summary.Phases, startResult)
	summary.CommandCount += len(startResult.Results)
	e.recordPhaseDuration(PhaseStart, startResult.Duration)
	if !startResult.Success {
		summary.Success = false
		summary.FailureNote = "start phase failed"
	}

	if summary.Success {
		testResult := e.runPhase(ctx, handler, session, PhaseTest, port.TestCommands, bib.ID, uut.ID, port.Number, logger)
		summary.Phases = append(summary.Phases, testResult)
		summary.CommandCount += len(testResult.Results)
		e.recordPhaseDuration(PhaseTest, testResult.Duration)
		if !testResult.Success {
			summary.Success = false
			summary.FailureNote = "test phase failed"
		}
	}

	// Stop runs unconditionally, even over a cancelled context or a prior
	// phase failure, to leave the UUT in a safe state. Its own failure is
	// reported but only marks the workflow failed if it was previously
	// successful.
	stopCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	stopResult := e.runPhase(stopCtx, handler, session, PhaseStop, port.StopCommands, bib.ID, uut.ID, port.Number, logger)
	summary.Phases = append(summary.Phases, stopResult)
	summary.CommandCount += len(stopResult.Results)
	e.recordPhaseDuration(PhaseStop, stopResult.Duration)
	if !stopResult.Success && summary.Success {
		summary.Success = false
		summary.FailureNote = "stop phase failed"
	}

	summary.EndedAt = time.Now()
	summary.Duration = summary.EndedAt.Sub(summary.StartedAt)

	if e.cfg.RunLogger != nil {
		e.cfg.RunLogger.LogSummary(bib.ID, uut.ID, port.Number, *summary)
	} else {
		logger.Info("workflow finished", "summary", summary.String(), "duration", summary.Duration)
	}

	outcome := "success"
	if !summary.Success {
		outcome = "failure"
	}
	e.recordRun(outcome)

	return summary, nil
}

func (e *Engine) recordPhaseDuration(phase Phase, d time.Duration) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

// runPhase executes cmds in order, stopping at the first non-success
// result, and logs each CommandResult through the run logger if present.
func (e *Engine) runPhase(ctx context.Context, handler protocol.Handler, session *protocol.SessionState, phase Phase, cmds bibconfig.CommandSequence, bibID, uutID string, portNumber int, logger *slog.Logger) PhaseResult {
	start := time.Now()
	result := PhaseResult{Phase: phase}

	for _, def := range cmds {
		cmd := toCommand(def)
		cr, err := handler.ExecuteCommand(ctx, session, cmd)
		if cr != nil {
			result.Results = append(result.Results, *cr)
			if e.cfg.RunLogger != nil {
				e.cfg.RunLogger.LogEntry(bibID, uutID, portNumber, string(phase), *cr)
			}
		}
		if err != nil {
			logger.Warn("command failed", "phase", phase, "command", def.Command, "error", err)
			result.Aborted = true
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (e *Engine) recordRun(outcome string) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.RunsTotal.WithLabelValues(outcome).Inc()
}

func toPortConfig(port bibconfig.PortDefinition) protocol.PortConfig {
	return protocol.PortConfig{
		Protocol:      port.Protocol,
		Speed:         port.Speed,
		DataPattern:   port.DataPattern,
		ReadTimeoutMs: port.ReadTimeoutMs,
		Settings:      port.Settings,
	}
}

func toCommand(def bibconfig.CommandDefinition) protocol.Command {
	return protocol.Command{
		Text:             def.Command,
		ExpectedResponse: def.ExpectedResponse,
		IsRegex:          def.IsRegex,
		RegexValid:       def.IsRegex && def.RegexValidationError == "" && def.Compiled() != nil,
		Compiled:         def.Compiled(),
		TimeoutMs:        def.TimeoutMs,
		RetryCount:       def.RetryCount,
	}
}
