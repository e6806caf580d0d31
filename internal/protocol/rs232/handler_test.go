package rs232

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/portcore/internal/protocol"
)

// fakeTransport is an in-memory WireTransport: writes are recorded, and
// responses are served from a queue (or computed by a responder func) so
// tests can script handler behavior without real serial hardware.
type fakeTransport struct {
	mu         sync.Mutex
	opened     bool
	openErr    error
	writes     []string
	responses  []string
	responder  func(written string) (string, error)
	readErr    error
	partialRaw string // bytes "buffered" before readErr fired, as ReadUntil now returns on timeout
	writeErr   error
	closeCalls int
}

func (f *fakeTransport) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeTransport) Close(ctx context.Context) error {
	f.closeCalls++
	f.opened = false
	return nil
}

func (f *fakeTransport) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	f.writes = append(f.writes, string(data))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ReadUntil(ctx context.Context, delim byte, timeout time.Duration) ([]byte, error) {
	if f.readErr != nil {
		if f.partialRaw != "" {
			return []byte(f.partialRaw), f.readErr
		}
		return nil, f.readErr
	}
	if f.responder != nil {
		f.mu.Lock()
		last := ""
		if len(f.writes) > 0 {
			last = f.writes[len(f.writes)-1]
		}
		f.mu.Unlock()
		resp, err := f.responder(last)
		if err != nil {
			return nil, err
		}
		return []byte(resp), nil
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return []byte(resp), nil
}

func newHandlerWithTransport(tr *fakeTransport) *Handler {
	return New(WithTransportFactory(func(portName string, cfg protocol.PortConfig) protocol.WireTransport {
		return tr
	}))
}

func TestHandler_OpenSessionSetsActiveState(t *testing.T) {
	tr := &fakeTransport{}
	h := newHandlerWithTransport(tr)

	session, err := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{Speed: 115200})
	require.NoError(t, err)
	assert.True(t, session.Active)
	assert.Equal(t, "rs232", session.Protocol)
	assert.True(t, tr.opened)
}

func TestHandler_OpenSessionPropagatesTransportError(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("device busy")}
	h := newHandlerWithTransport(tr)

	_, err := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})
	require.Error(t, err)
}

func TestHandler_ExecuteCommandSuccess(t *testing.T) {
	tr := &fakeTransport{responses: []string{"OK\n"}}
	h := newHandlerWithTransport(tr)

	session, err := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})
	require.NoError(t, err)

	result, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "PING",
		ExpectedResponse: "OK",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "OK", result.RawResponse)
	assert.Contains(t, tr.writes[0], "PING")
}

func TestHandler_ExecuteCommandRetriesOnMismatchThenSucceeds(t *testing.T) {
	tr := &fakeTransport{responses: []string{"NOPE\n", "OK\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	result, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "PING",
		ExpectedResponse: "OK",
		RetryCount:       1,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, tr.writes, 2)
}

func TestHandler_ExecuteCommandExhaustsRetriesOnPersistentMismatch(t *testing.T) {
	tr := &fakeTransport{responses: []string{"NOPE\n", "NOPE\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	result, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "PING",
		ExpectedResponse: "OK",
		RetryCount:       1,
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Len(t, tr.writes, 2)
}

func TestHandler_ExecuteCommandDoesNotRetryTransportError(t *testing.T) {
	tr := &fakeTransport{writeErr: errors.New("broken pipe")}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	_, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "PING",
		ExpectedResponse: "OK",
		RetryCount:       3,
	})
	require.Error(t, err)
	assert.Len(t, tr.writes, 0)
}

func TestHandler_ExecuteCommandWithRegexCapture(t *testing.T) {
	tr := &fakeTransport{responses: []string{"OK 42\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	re := regexp.MustCompile(`^OK\s+(?P<code>\d+)$`)
	result, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "READ",
		ExpectedResponse: `^OK\s+(?P<code>\d+)$`,
		IsRegex:          true,
		RegexValid:       true,
		Compiled:         re,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "42", result.CapturedGroups["code"])
}

func TestHandler_ExecuteCommandNoActiveSessionErrors(t *testing.T) {
	tr := &fakeTransport{}
	h := newHandlerWithTransport(tr)

	_, err := h.ExecuteCommand(context.Background(), &protocol.SessionState{PortName: "COM9"}, protocol.Command{Text: "X"})
	require.ErrorIs(t, err, protocol.ErrNoActiveSession)
}

func TestHandler_ExecuteSequenceStopsOnFirstFailure(t *testing.T) {
	tr := &fakeTransport{responses: []string{"OK\n", "FAIL\n", "OK\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	results, err := h.ExecuteSequence(context.Background(), session, []protocol.Command{
		{Text: "ONE", ExpectedResponse: "OK"},
		{Text: "TWO", ExpectedResponse: "OK"},
		{Text: "THREE", ExpectedResponse: "OK"},
	})
	require.Error(t, err)
	assert.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
}

func TestHandler_ExecuteSequenceAllSucceed(t *testing.T) {
	tr := &fakeTransport{responses: []string{"OK\n", "OK\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	results, err := h.ExecuteSequence(context.Background(), session, []protocol.Command{
		{Text: "ONE", ExpectedResponse: "OK"},
		{Text: "TWO", ExpectedResponse: "OK"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestHandler_CloseSessionMarksInactive(t *testing.T) {
	tr := &fakeTransport{}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	err := h.CloseSession(context.Background(), session)
	require.NoError(t, err)
	assert.False(t, session.Active)
	assert.Equal(t, 1, tr.closeCalls)
}

func TestHandler_TestConnectivity(t *testing.T) {
	h := newHandlerWithTransport(&fakeTransport{})
	assert.True(t, h.TestConnectivity(context.Background(), protocol.PortConfig{}))

	hFail := newHandlerWithTransport(&fakeTransport{openErr: errors.New("no device")})
	assert.False(t, hFail.TestConnectivity(context.Background(), protocol.PortConfig{}))
}

func TestHandler_StatsAccumulate(t *testing.T) {
	tr := &fakeTransport{responses: []string{"OK\n", "OK\n"}}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	h.ExecuteCommand(context.Background(), session, protocol.Command{Text: "A", ExpectedResponse: "OK"})
	h.ExecuteCommand(context.Background(), session, protocol.Command{Text: "B", ExpectedResponse: "OK"})

	stats := h.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Successful)
}

func TestHandler_ExecuteCommandSurfacesPartialResponseOnTimeout(t *testing.T) {
	tr := &fakeTransport{readErr: protocol.ErrTimeout, partialRaw: "OK 4"}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	result, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "READ",
		ExpectedResponse: "OK 42",
	})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "OK 4", result.RawResponse)
	assert.Equal(t, "timeout", result.FailureReason)
}

func TestHandler_StatsCountTimeoutsSeparatelyFromOtherFailures(t *testing.T) {
	tr := &fakeTransport{readErr: protocol.ErrTimeout}
	h := newHandlerWithTransport(tr)
	session, _ := h.OpenSession(context.Background(), "COM3", protocol.PortConfig{})

	_, err := h.ExecuteCommand(context.Background(), session, protocol.Command{
		Text:             "PING",
		ExpectedResponse: "OK",
	})
	require.Error(t, err)

	stats := h.Stats()
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Timeouts)
}
