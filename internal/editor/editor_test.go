package editor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/host/hosttest"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
)

type stubPlugins struct {
	app     string
	payload string
	err     error
	sent    []wire.Command
}

func (s *stubPlugins) Connected(app string) bool { return app == s.app }

func (s *stubPlugins) SendCommand(_ context.Context, _ string, cmd wire.Command) (json.RawMessage, error) {
	s.sent = append(s.sent, cmd)
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.payload), nil
}

func TestInsertHistoryLatestExpiresAndTracksApp(t *testing.T) {
	now := time.Unix(100, 0)
	h := NewInsertHistory(func() time.Time { return now })

	h.Add("slack", "hello")
	require.Equal(t, "hello", h.Latest("slack"))

	now = now.Add(InsertExpiry + time.Millisecond)
	require.Empty(t, h.Latest("slack"))

	h.Add("slack", "again")
	require.Empty(t, h.Latest("firefox"))
	require.Empty(t, h.Latest("slack"), "focus change clears the history")
}

func newTracker(env *hosttest.Fake, plugins PluginChannel) *Tracker {
	return NewTracker(env, policy.Default(), plugins, nil, "client-1", nil)
}

func TestRefreshClassifiesActiveWindow(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "code-oss"}}
	tr := newTracker(env, nil)
	require.Equal(t, "vscode", tr.Refresh(context.Background()))

	env.Fail = map[string]error{"active": errors.New("no hyprctl")}
	require.Equal(t, "vscode", tr.Refresh(context.Background()), "failed lookups keep the last app")
}

func TestStatePrefersPlugin(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "vscode"}}
	plugins := &stubPlugins{payload: `{"source":"abc","cursor":2,"filename":"a.go"}`}
	tr := newTracker(env, plugins)
	plugins.app = tr.Refresh(context.Background())

	state := tr.State(context.Background(), false)
	require.Equal(t, "abc", state.Source)
	require.Equal(t, 2, state.Cursor)
	require.Equal(t, "a.go", state.Filename)
	require.True(t, state.CanGetState)
	require.True(t, state.CanSetState)
	require.Equal(t, "client-1", state.ClientIdentifier)
	require.Equal(t, wire.CommandGetEditorState, plugins.sent[0].Type)
}

func TestStateUsesPluginAvailability(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "vscode"}}
	plugins := &stubPlugins{payload: `{"source":"","cursor":0,"available":false}`}
	tr := newTracker(env, plugins)
	plugins.app = tr.Refresh(context.Background())

	state := tr.State(context.Background(), false)
	require.False(t, state.CanGetState)
	require.False(t, state.CanSetState)
}

func TestStateFallsBackToInsertHistory(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "slack"}}
	tr := newTracker(env, nil)
	app := tr.Refresh(context.Background())
	tr.Inserts().Add(app, "héllo")

	state := tr.State(context.Background(), false)
	require.False(t, state.CanGetState)
	require.False(t, state.CanSetState)
	require.Equal(t, "héllo", state.Source)
	require.Equal(t, 5, state.Cursor)
}

func TestStateReadsDesktopButNeverSetsIt(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "slack"}, Readable: true}
	env.SetText("abc", 1)
	tr := newTracker(env, nil)
	tr.Refresh(context.Background())

	state := tr.State(context.Background(), false)
	require.True(t, state.CanGetState)
	require.False(t, state.CanSetState)
	require.Equal(t, "abc", state.Source)
	require.Equal(t, 1, state.Cursor)
}

func TestStateTerminalCannotSet(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "kitty"}}
	plugins := &stubPlugins{app: "terminal", payload: `{"source":"ls","cursor":2}`}
	tr := newTracker(env, plugins)
	require.Equal(t, "terminal", tr.Refresh(context.Background()))

	state := tr.State(context.Background(), false)
	require.True(t, state.CanGetState)
	require.False(t, state.CanSetState)
}

func TestStateIncludesClipboard(t *testing.T) {
	env := &hosttest.Fake{Window: host.Window{Class: "slack"}, ClipText: "copied"}
	tr := newTracker(env, nil)
	require.Equal(t, "copied", tr.State(context.Background(), true).Clipboard)
	require.Empty(t, tr.State(context.Background(), false).Clipboard)
}
