package rs232

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benchforge/portcore/internal/core/resilience"
	"github.com/benchforge/portcore/internal/protocol"
	"github.com/benchforge/portcore/pkg/metrics"
)

const (
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 2 * time.Second
	defaultBaud         = 9600
	interCommandDelay   = 50 * time.Millisecond
	lineDelimiter       = '\n'
)

// TransportFactory builds the WireTransport used for a session; tests
// substitute a fake, production wiring uses newSerialTransport.
type TransportFactory func(portName string, cfg protocol.PortConfig) protocol.WireTransport

// Handler implements protocol.Handler for RS-232 serial links.
type Handler struct {
	mu        sync.Mutex
	logger    *slog.Logger
	metrics   *metrics.ProtocolMetrics
	transport func(portName string, cfg protocol.PortConfig) protocol.WireTransport
	sessions  map[string]protocol.WireTransport

	stats protocol.HandlerStats
}

// Option configures a Handler at construction.
type Option func(*Handler)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics attaches protocol metrics.
func WithMetrics(m *metrics.ProtocolMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTransportFactory overrides how the underlying WireTransport is built,
// primarily for tests that substitute an in-memory transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(h *Handler) { h.transport = f }
}

// New constructs an RS-232 handler. It is intended to be used as a
// protocol.Factory: `func() protocol.Handler { return rs232.New() }`.
func New(opts ...Option) *Handler {
	h := &Handler{
		logger:   slog.Default(),
		sessions: make(map[string]protocol.WireTransport),
	}
	h.transport = func(portName string, cfg protocol.PortConfig) protocol.WireTransport {
		baud := cfg.Speed
		if baud == 0 {
			baud = defaultBaud
		}
		readTimeout := time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
		if readTimeout <= 0 {
			readTimeout = defaultReadTimeout
		}
		return newSerialTransport(portName, baud, cfg.DataPattern, readTimeout)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OpenSession opens the physical transport and registers a SessionState.
func (h *Handler) OpenSession(ctx context.Context, portName string, cfg protocol.PortConfig) (*protocol.SessionState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tr := h.transport(portName, cfg)
	if err := tr.Open(ctx); err != nil {
		return nil, fmt.Errorf("rs232: open session on %s: %w", portName, err)
	}

	h.sessions[portName] = tr

	return &protocol.SessionState{
		SessionID: fmt.Sprintf("rs232-%s-%d", portName, time.Now().UnixNano()),
		PortName:  portName,
		Protocol:  "rs232",
		ConfigSnapshot: map[string]string{
			"speed":        fmt.Sprintf("%d", cfg.Speed),
			"data_pattern": cfg.DataPattern,
		},
		Active:       true,
		LastActivity: time.Now(),
	}, nil
}

// CloseSession closes the underlying transport and marks the session inactive.
func (h *Handler) CloseSession(ctx context.Context, session *protocol.SessionState) error {
	h.mu.Lock()
	tr, ok := h.sessions[session.PortName]
	if ok {
		delete(h.sessions, session.PortName)
	}
	h.mu.Unlock()

	session.Active = false
	if !ok {
		return nil
	}
	if err := tr.Close(ctx); err != nil {
		return fmt.Errorf("rs232: close session on %s: %w", session.PortName, err)
	}
	return nil
}

// TestConnectivity opens and immediately closes a transport to verify a
// port is reachable, without running any command sequence.
func (h *Handler) TestConnectivity(ctx context.Context, cfg protocol.PortConfig) bool {
	tr := h.transport("connectivity-probe", cfg)
	if err := tr.Open(ctx); err != nil {
		return false
	}
	_ = tr.Close(ctx)
	return true
}

// ExecuteCommand runs a single command with retry on Timeout or
// ResponseMismatch (never on a transport error), up to cmd.RetryCount+1
// attempts with no backoff delay between attempts.
func (h *Handler) ExecuteCommand(ctx context.Context, session *protocol.SessionState, cmd protocol.Command) (*protocol.CommandResult, error) {
	h.mu.Lock()
	tr, ok := h.sessions[session.PortName]
	h.mu.Unlock()
	if !ok {
		return nil, protocol.ErrNoActiveSession
	}

	writeTimeout := defaultWriteTimeout
	readTimeout := time.Duration(cmd.TimeoutMs) * time.Millisecond
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	result := &protocol.CommandResult{
		Command:   cmd.Text,
		Protocol:  "rs232",
		SessionID: session.SessionID,
		StartedAt: time.Now(),
	}

	policy := &resilience.RetryPolicy{
		MaxRetries:   cmd.RetryCount,
		BaseDelay:    0,
		MaxDelay:     0,
		Multiplier:   1,
		Jitter:       false,
		ErrorChecker: &resilience.CommandErrorChecker{},
		Logger:       h.logger,
	}

	var lastRaw string
	var lastCaptured map[string]string
	runErr := resilience.WithRetry(ctx, policy, func() error {
		if err := tr.Write(ctx, []byte(cmd.Text+"\r\n"), writeTimeout); err != nil {
			return fmt.Errorf("%w: %w", resilience.ErrTransportError, err)
		}

		raw, err := tr.ReadUntil(ctx, lineDelimiter, readTimeout)
		if err != nil {
			// raw may hold bytes buffered before the deadline fired; keep
			// them as the visible partial response even though the command
			// itself is failing.
			lastRaw = strings.TrimSpace(string(raw))
			if errors.Is(err, protocol.ErrTimeout) {
				h.recordRetryReason("timeout")
				return fmt.Errorf("%w: %w", resilience.ErrCommandTimeout, err)
			}
			return fmt.Errorf("%w: %w", resilience.ErrTransportError, err)
		}
		lastRaw = strings.TrimSpace(string(raw))

		ok, captured := protocol.ValidateResponse(lastRaw, cmd.ExpectedResponse, cmd.IsRegex && cmd.RegexValid, cmd.Compiled)
		if !ok {
			h.recordRetryReason("response_mismatch")
			return resilience.ErrResponseMismatch
		}
		lastCaptured = captured
		return nil
	})

	result.EndedAt = time.Now()
	result.Duration = result.EndedAt.Sub(result.StartedAt)
	result.RawResponse = lastRaw
	result.CapturedGroups = lastCaptured

	h.mu.Lock()
	h.stats.Total++
	h.stats.LastCommandAt = result.EndedAt
	h.stats.CumulativeExecution += result.Duration
	h.mu.Unlock()

	session.LastActivity = result.EndedAt

	if runErr != nil {
		result.Success = false
		result.FailureReason = classifyFailure(runErr)
		h.mu.Lock()
		h.stats.Failed++
		if result.FailureReason == "timeout" {
			h.stats.Timeouts++
		}
		session.FailureCount++
		h.mu.Unlock()
		h.recordOutcome("failure")
		return result, runErr
	}

	result.Success = true
	h.mu.Lock()
	h.stats.Successful++
	session.SuccessCount++
	h.mu.Unlock()
	h.recordOutcome("success")
	return result, nil
}

// ExecuteSequence runs commands in order, stopping at the first failure.
// Each command result, including the failing one, is appended before
// returning.
func (h *Handler) ExecuteSequence(ctx context.Context, session *protocol.SessionState, cmds []protocol.Command) ([]protocol.CommandResult, error) {
	results := make([]protocol.CommandResult, 0, len(cmds))

	for i, cmd := range cmds {
		result, err := h.ExecuteCommand(ctx, session, cmd)
		if result != nil {
			results = append(results, *result)
		}
		if err != nil {
			return results, fmt.Errorf("command %d (%q) failed: %w", i, cmd.Text, err)
		}
		if i < len(cmds)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(interCommandDelay):
			}
		}
	}

	return results, nil
}

// Stats returns a snapshot of accumulated execution counters.
func (h *Handler) Stats() protocol.HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) recordOutcome(outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.CommandsTotal.WithLabelValues("rs232", outcome).Inc()
}

func (h *Handler) recordRetryReason(reason string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RetriesTotal.WithLabelValues("rs232", reason).Inc()
}

func classifyFailure(err error) string {
	return resilience.ClassifyError(err)
}
