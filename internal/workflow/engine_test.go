package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/portcore/internal/bibconfig"
	"github.com/benchforge/portcore/internal/protocol"
)

// recordingSanitizer records the settings map it was asked to sanitize so
// tests can assert the engine actually routes port.Settings through it,
// rather than just trusting config.Sanitizer's own unit tests.
type recordingSanitizer struct {
	calls []map[string]string
}

func (r *recordingSanitizer) SanitizeSettings(settings map[string]string) map[string]string {
	r.calls = append(r.calls, settings)
	out := make(map[string]string, len(settings))
	for k := range settings {
		out[k] = "***REDACTED***"
	}
	return out
}

// scriptedHandler returns a success/failure outcome per command text,
// recording every command it executes for assertions.
type scriptedHandler struct {
	failCommands map[string]bool
	executed     []string
	closed       bool
}

func (s *scriptedHandler) OpenSession(ctx context.Context, portName string, cfg protocol.PortConfig) (*protocol.SessionState, error) {
	return &protocol.SessionState{PortName: portName, Active: true}, nil
}

func (s *scriptedHandler) ExecuteCommand(ctx context.Context, session *protocol.SessionState, cmd protocol.Command) (*protocol.CommandResult, error) {
	s.executed = append(s.executed, cmd.Text)
	if s.failCommands[cmd.Text] {
		return &protocol.CommandResult{Command: cmd.Text, Success: false}, protocol.ErrResponseMismatch
	}
	return &protocol.CommandResult{Command: cmd.Text, Success: true}, nil
}

func (s *scriptedHandler) ExecuteSequence(ctx context.Context, session *protocol.SessionState, cmds []protocol.Command) ([]protocol.CommandResult, error) {
	return nil, nil
}

func (s *scriptedHandler) CloseSession(ctx context.Context, session *protocol.SessionState) error {
	s.closed = true
	return nil
}

func (s *scriptedHandler) TestConnectivity(ctx context.Context, cfg protocol.PortConfig) bool {
	return true
}

func (s *scriptedHandler) Stats() protocol.HandlerStats { return protocol.HandlerStats{} }

type recordingRunLogger struct {
	entries int
	summary *Summary
}

func (r *recordingRunLogger) LogEntry(bibID, uutID string, portNumber int, phase string, result protocol.CommandResult) {
	r.entries++
}

func (r *recordingRunLogger) LogSummary(bibID, uutID string, portNumber int, summary Summary) {
	s := summary
	r.summary = &s
}

func newRegistry(h *scriptedHandler) *protocol.Registry {
	r := protocol.NewRegistry()
	r.Register("rs232", func() protocol.Handler { return h })
	return r
}

func demoBibUutPort(fail map[string]bool) (bibconfig.BibDefinition, bibconfig.UutDefinition, bibconfig.PortDefinition) {
	port := bibconfig.PortDefinition{
		Number:   1,
		Protocol: "rs232",
		Speed:    9600,
		StartCommands: bibconfig.CommandSequence{
			{Command: "INIT", ExpectedResponse: "READY"},
		},
		TestCommands: bibconfig.CommandSequence{
			{Command: "PING", ExpectedResponse: "PONG"},
		},
		StopCommands: bibconfig.CommandSequence{
			{Command: "BYE", ExpectedResponse: "OK"},
		},
	}
	uut := bibconfig.UutDefinition{ID: "u1", Ports: []bibconfig.PortDefinition{port}}
	bib := bibconfig.BibDefinition{ID: "demo", Uuts: []bibconfig.UutDefinition{uut}}
	return bib, uut, port
}

func TestEngine_HappyPathAllPhasesSucceed(t *testing.T) {
	h := &scriptedHandler{failCommands: map[string]bool{}}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	summary, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 3, summary.CommandCount)
	assert.Equal(t, "SUCCESS - 3 commands", summary.String())
	assert.True(t, h.closed)
}

func TestEngine_StartFailureSkipsTestButRunsStop(t *testing.T) {
	h := &scriptedHandler{failCommands: map[string]bool{"INIT": true}}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	summary, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Contains(t, h.executed, "INIT")
	assert.NotContains(t, h.executed, "PING")
	assert.Contains(t, h.executed, "BYE")
}

func TestEngine_TestFailureStillRunsStop(t *testing.T) {
	h := &scriptedHandler{failCommands: map[string]bool{"PING": true}}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	summary, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Contains(t, h.executed, "PING")
	assert.Contains(t, h.executed, "BYE")
}

func TestEngine_StopFailureMarksOtherwiseSuccessfulRunFailed(t *testing.T) {
	h := &scriptedHandler{failCommands: map[string]bool{"BYE": true}}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	summary, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, "stop phase failed", summary.FailureNote)
}

func TestEngine_StopFailureDoesNotClearEarlierFailure(t *testing.T) {
	h := &scriptedHandler{failCommands: map[string]bool{"INIT": true, "BYE": true}}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	summary, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.False(t, summary.Success)
	assert.Equal(t, "start phase failed", summary.FailureNote)
}

func TestEngine_UnsupportedProtocolReturnsError(t *testing.T) {
	h := &scriptedHandler{}
	engine := New(Config{Registry: newRegistry(h)})

	bib, uut, port := demoBibUutPort(nil)
	port.Protocol = "can"
	_, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.Error(t, err)
	var unsupported *protocol.ErrProtocolUnsupported
	assert.True(t, errors.As(err, &unsupported))
}

func TestEngine_UsesRunLoggerWhenPresent(t *testing.T) {
	h := &scriptedHandler{}
	rl := &recordingRunLogger{}
	engine := New(Config{Registry: newRegistry(h), RunLogger: rl})

	bib, uut, port := demoBibUutPort(nil)
	_, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.Equal(t, 3, rl.entries)
	require.NotNil(t, rl.summary)
	assert.True(t, rl.summary.Success)
}

func TestEngine_RoutesPortSettingsThroughSanitizerBeforeLogging(t *testing.T) {
	h := &scriptedHandler{}
	san := &recordingSanitizer{}
	engine := New(Config{Registry: newRegistry(h), Sanitizer: san})

	bib, uut, port := demoBibUutPort(nil)
	port.Settings = map[string]string{"physical_port": "COM1", "auth_token": "s3cr3t"}
	_, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)

	require.Len(t, san.calls, 1)
	assert.Equal(t, "s3cr3t", san.calls[0]["auth_token"])
}

func TestEngine_SkipsSanitizerCallWhenNoPortSettings(t *testing.T) {
	h := &scriptedHandler{}
	san := &recordingSanitizer{}
	engine := New(Config{Registry: newRegistry(h), Sanitizer: san})

	bib, uut, port := demoBibUutPort(nil)
	_, err := engine.Run(context.Background(), bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.Empty(t, san.calls)
}

func TestEngine_StopRunsEvenWhenContextAlreadyCancelled(t *testing.T) {
	h := &scriptedHandler{}
	engine := New(Config{Registry: newRegistry(h)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bib, uut, port := demoBibUutPort(nil)
	_, err := engine.Run(ctx, bib, uut, port, "COM1")
	require.NoError(t, err)
	assert.Contains(t, h.executed, "BYE")
}
