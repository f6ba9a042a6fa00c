package plugin

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/parley/internal/wire"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	sent   chan []byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sent: make(chan []byte, 8)}
}

func (f *fakeConn) Send(_ context.Context, payload []byte) error {
	f.mu.Lock()
	f.frames = append(f.frames, payload)
	f.mu.Unlock()
	f.sent <- payload
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func frame(t *testing.T, message string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(Envelope{Message: message, Data: raw})
	require.NoError(t, err)
	return out
}

func TestDispatchRegistersPluginAndNormalizesIntellij(t *testing.T) {
	var installed []string
	m := NewManager(nil, WithInstallHandler(func(app string) { installed = append(installed, app) }))
	conn := newFakeConn()

	require.NoError(t, m.Dispatch(conn, frame(t, "active", identity{ID: "p1", App: "intellij"})))
	require.True(t, m.Connected("jetbrains"))
	require.False(t, m.Connected("vscode"))
	require.Equal(t, []string{"jetbrains"}, installed)

	require.NoError(t, m.Dispatch(conn, frame(t, "heartbeat", identity{ID: "p1", App: "intellij"})))
	require.Len(t, m.Plugins(), 1)
	require.Equal(t, []string{"jetbrains"}, installed)
}

func TestConnectedFallsBackToMatchPattern(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Dispatch(newFakeConn(), frame(t, "active", identity{ID: "p1", App: "chrome", Match: "^brave"})))

	require.True(t, m.Connected("chrome"))
	require.True(t, m.Connected("Brave-browser"))
	require.False(t, m.Connected("firefox"))
}

func TestDispatchRejectsOversizedIcon(t *testing.T) {
	m := NewManager(nil)
	icon := "data:" + strings.Repeat("a", maximumIconLength)
	require.NoError(t, m.Dispatch(newFakeConn(), frame(t, "active", identity{ID: "p1", App: "vscode", Icon: icon})))
	require.Empty(t, m.Plugins()[0].Icon)
}

func TestSendWaitsForCallback(t *testing.T) {
	m := NewManager(nil)
	conn := newFakeConn()
	require.NoError(t, m.Dispatch(conn, frame(t, "active", identity{ID: "p1", App: "vscode"})))

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := m.SendCommand(context.Background(), "vscode", wire.Command{Type: wire.CommandGetEditorState})
		done <- result{payload, err}
	}()

	sent := <-conn.sent
	var env Envelope
	require.NoError(t, json.Unmarshal(sent, &env))
	require.Equal(t, "response", env.Message)

	var data struct {
		Callback string `json:"callback"`
		Response struct {
			Execute struct {
				Commands []struct {
					Type string `json:"type"`
				} `json:"commands"`
			} `json:"execute"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Callback)
	require.Equal(t, "COMMAND_TYPE_GET_EDITOR_STATE", data.Response.Execute.Commands[0].Type)

	require.NoError(t, m.Dispatch(conn, frame(t, "callback", callbackData{
		Callback: data.Callback,
		Data:     json.RawMessage(`{"source":"abc","cursor":1}`),
	})))

	res := <-done
	require.NoError(t, res.err)
	require.JSONEq(t, `{"source":"abc","cursor":1}`, string(res.payload))
}

func TestSendWithoutPluginReturnsNil(t *testing.T) {
	m := NewManager(nil)
	payload, err := m.SendCommand(context.Background(), "vscode", wire.Command{Type: wire.CommandGetEditorState})
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestSendTimeoutDropsPlugin(t *testing.T) {
	var timedOut []string
	m := NewManager(nil, WithTimeout(20*time.Millisecond), WithTimeoutHandler(func(app string) {
		timedOut = append(timedOut, app)
	}))
	conn := newFakeConn()
	require.NoError(t, m.Dispatch(conn, frame(t, "active", identity{ID: "p1", App: "vscode"})))

	_, err := m.SendCommand(context.Background(), "vscode", wire.Command{Type: wire.CommandGetEditorState})
	require.ErrorIs(t, err, ErrTimeout)
	require.False(t, m.Connected("vscode"))
	require.True(t, conn.isClosed())
	require.Equal(t, []string{"vscode"}, timedOut)
}

func TestSweepDropsStaleHeartbeats(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewManager(nil, WithClock(func() time.Time { return now }))
	require.NoError(t, m.Dispatch(newFakeConn(), frame(t, "active", identity{ID: "p1", App: "vscode"})))

	now = now.Add(DefaultHeartbeatTTL - time.Second)
	m.Sweep()
	require.True(t, m.Connected("vscode"))

	now = now.Add(2 * time.Second)
	m.Sweep()
	require.False(t, m.Connected("vscode"))
}

func TestDispatchForwardsSendText(t *testing.T) {
	var got string
	m := NewManager(nil, WithTextHandler(func(text string) { got = text }))
	require.NoError(t, m.Dispatch(newFakeConn(), frame(t, "sendText", textData{Text: "open file"})))
	require.Equal(t, "open file", got)
}

func TestDispatchDisconnectRemovesPlugin(t *testing.T) {
	m := NewManager(nil)
	conn := newFakeConn()
	require.NoError(t, m.Dispatch(conn, frame(t, "active", identity{ID: "p1", App: "vscode"})))
	require.NoError(t, m.Dispatch(conn, frame(t, "disconnect", struct{}{})))
	require.False(t, m.Connected("vscode"))
}

func TestDispatchRejectsMalformedFrame(t *testing.T) {
	m := NewManager(nil)
	err := m.Dispatch(newFakeConn(), []byte("not-json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode plugin frame")
}

func TestServeRegistersWebsocketPlugin(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(nil)
	serveDone := make(chan error, 1)
	go func() { serveDone <- m.Serve(ctx, listener) }()

	conn, _, err := websocket.Dial(ctx, "ws://"+listener.Addr().String(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame(t, "active", identity{ID: "p1", App: "vscode"})))
	require.Eventually(t, func() bool { return m.Connected("vscode") }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return !m.Connected("vscode") }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-serveDone)
}
