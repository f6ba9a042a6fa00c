package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/microphone"
	"github.com/rbright/parley/internal/wire"
	"github.com/stretchr/testify/require"
)

var insertHello = wire.Command{Type: wire.CommandInsert, Text: "hello"}

func TestChunkStreamsInitializeAudioAndFinalEndpoint(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	h.speak(2)
	h.waitKinds("initialize", "audio", "audio", "audio", "editor_state", "endpoint")

	sent := h.engine.sent()
	init := sent[0].(wire.InitializeRequest)
	require.Equal(t, "hello", init.EditorState.Source)
	audio := sent[1].(wire.AudioRequest)
	require.Equal(t, "c1", audio.ChunkID)
	end := sent[len(sent)-1].(wire.EndpointRequest)
	require.Equal(t, "c1", end.ChunkID)
	require.True(t, end.Finalize)
	require.NotEmpty(t, end.EndpointID)
}

func TestConsecutiveChunksGetDistinctIDs(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	first := h.speak(1)
	second := h.speak(1)
	require.Equal(t, "c1", first)
	require.Equal(t, "c2", second)

	require.Eventually(t, func() bool {
		for _, req := range h.engine.sent() {
			if end, ok := req.(wire.EndpointRequest); ok && end.ChunkID == second {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	ids := map[string]bool{}
	for _, req := range h.engine.sent() {
		if audio, ok := req.(wire.AudioRequest); ok {
			ids[audio.ChunkID] = true
		}
	}
	require.Equal(t, map[string]bool{"c1": true, "c2": true}, ids)
}

func TestPartialEndpointsAreSentPeriodically(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	h.mic.emit(microphone.Event{Kind: microphone.EventChunkStart, Audio: []byte{1}})
	for range 30 {
		h.mic.emit(microphone.Event{Kind: microphone.EventAudio, Audio: []byte{2}})
	}
	// A quiet frame past the cadence does not trigger a partial.
	for range 15 {
		h.mic.emit(microphone.Event{Kind: microphone.EventAudio, Audio: []byte{2}, Silence: 5})
	}

	require.Eventually(t, func() bool { return len(h.engine.sent()) == 49 }, time.Second, 5*time.Millisecond)
	var partials []int
	audio := 0
	for _, req := range h.engine.sent() {
		switch r := req.(type) {
		case wire.AudioRequest:
			audio++
		case wire.EndpointRequest:
			require.False(t, r.Finalize)
			partials = append(partials, audio-1)
		}
	}
	require.Equal(t, []int{15, 30}, partials)
}

func TestFinalResponseExecutesOnceSilenceReached(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	id := h.speak(3)
	h.waitKinds("editor_state", "endpoint")

	h.orch.HandleCommands(finalResponse(id, 3, true, command("insert hello", insertHello)))
	require.Eventually(t, func() bool {
		partial, ok := h.presenter.lastPartial()
		return ok && partial
	}, time.Second, 5*time.Millisecond)
	require.Empty(t, h.exec.executions())
	require.Equal(t, 1, h.exec.shownCount())

	h.silence(1)
	h.silence(2)
	h.silence(3)
	got := h.waitExecutions(1)
	require.Equal(t, "insert hello", got[0].Execute.Transcript)
	require.Equal(t, 1, h.recorder.count("executed"))

	// Further silence never executes the same chunk twice.
	h.silence(3)
	h.orch.HandleCommands(finalResponse(id, 3, true, command("insert hello", insertHello)))
	time.Sleep(30 * time.Millisecond)
	require.Len(t, h.exec.executions(), 1)
}

func TestFinalResponseAfterSilenceExecutesImmediately(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	id := h.speak(1)
	h.silence(4)
	h.waitKinds("editor_state", "endpoint")

	h.orch.HandleCommands(finalResponse(id, 2, true, command("insert hello", insertHello)))
	h.waitExecutions(1)
	partial, ok := h.presenter.lastPartial()
	require.True(t, ok)
	require.False(t, partial)
}

func TestPartialResponseNeverExecutes(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	id := h.speak(1)
	h.silence(10)
	resp := finalResponse(id, 1, true, command("insert hello", insertHello))
	resp.Final = false
	h.orch.HandleCommands(resp)

	require.Eventually(t, func() bool { return h.exec.shownCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, h.exec.executions())
	require.Zero(t, h.exec.processed.Load())
}

func TestResponseForSupersededChunkIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	first := h.speak(1)
	second := h.speak(1)
	require.NotEqual(t, first, second)
	h.silence(5)

	h.orch.HandleCommands(finalResponse(first, 1, true, command("insert hello", insertHello)))
	h.orch.HandleCommands(finalResponse(second, 1, true, command("insert second", insertHello)))

	got := h.waitExecutions(1)
	require.Equal(t, "insert second", got[0].Execute.Transcript)
	time.Sleep(30 * time.Millisecond)
	require.Len(t, h.exec.executions(), 1)
}

func TestNoiseContinuesEngineContext(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()

	id := h.speak(1)
	h.silence(2)
	h.orch.HandleCommands(finalResponse(id, 1, false))
	require.Eventually(t, func() bool { return h.recorder.count("noise") == 1 }, time.Second, 5*time.Millisecond)

	h.engine.reset()
	h.speak(0)
	h.waitKinds("editor_state", "audio", "editor_state", "endpoint")

	// Once the grace period lapses the next chunk starts a fresh context.
	next := h.speak(0)
	h.silence(2)
	h.orch.HandleCommands(finalResponse(next, 1, false))
	require.Eventually(t, func() bool { return h.recorder.count("noise") == 2 }, time.Second, 5*time.Millisecond)
	h.advance(time.Second)
	h.engine.reset()
	h.speak(0)
	h.waitKinds("initialize", "audio", "editor_state", "endpoint")
}

func TestGateBuffersRequestsWhileExecuting(t *testing.T) {
	h := newHarness(t)
	h.exec.block = make(chan struct{})
	h.start()
	h.listen()

	id := h.speak(1)
	h.silence(1)
	h.orch.HandleCommands(finalResponse(id, 1, true, command("insert hello", insertHello)))
	h.waitExecutions(1)
	h.waitKinds("editor_state", "endpoint")

	h.engine.reset()
	h.speak(2)
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, h.engine.sent())

	h.exec.mu.Lock()
	close(h.exec.block)
	h.exec.mu.Unlock()
	h.waitKinds("initialize", "audio", "audio", "audio", "editor_state", "endpoint")
}

func TestAppendToPreviousRevertsAndReevaluates(t *testing.T) {
	h := newHarness(t)
	h.editor.plugin.Store(true)
	h.editor.editor.Store(true)
	h.start()
	h.listen()

	first := h.speak(1)
	h.silence(1)
	h.orch.HandleCommands(finalResponse(first, 1, true, command("type hello", insertHello)))
	h.waitExecutions(1)

	second := h.speak(1)
	h.silence(1)
	invalid := command("world", wire.Command{Type: wire.CommandInvalid})
	h.orch.HandleCommands(finalResponse(second, 1, false, invalid))
	require.Eventually(t, func() bool { return h.recorder.count("reverted") == 1 }, time.Second, 5*time.Millisecond)
	h.waitKinds("append_to_previous", "endpoint")
	require.Len(t, h.exec.executions(), 1)

	h.silence(1)
	h.orch.HandleCommands(finalResponse(second, 1, true, command("type hello world", insertHello)))
	got := h.waitExecutions(2)
	require.Equal(t, "type hello world", got[1].Execute.Transcript)
}

func TestAppendToPreviousDisabledWhileDictating(t *testing.T) {
	h := newHarness(t)
	h.editor.plugin.Store(true)
	h.editor.editor.Store(true)
	h.editor.dictating.Store(true)
	h.start()
	h.listen()

	first := h.speak(1)
	h.silence(1)
	h.orch.HandleCommands(finalResponse(first, 1, true, command("type hello", insertHello)))
	h.waitExecutions(1)

	second := h.speak(1)
	h.silence(1)
	invalid := command("world", wire.Command{Type: wire.CommandInvalid})
	h.orch.HandleCommands(finalResponse(second, 1, false, invalid))
	h.waitExecutions(2)
	require.Zero(t, h.recorder.count("reverted"))
}

func TestTextResponsesBypassChunks(t *testing.T) {
	h := newHarness(t)
	h.start()

	resp := finalResponse("", 0, true, command("go to line five", wire.Command{Type: wire.CommandPress, Key: "down"}))
	resp.TextResponse = true
	h.orch.HandleCommands(resp)

	got := h.waitExecutions(1)
	require.Equal(t, "go to line five", got[0].Execute.Transcript)
	require.EqualValues(t, 1, h.exec.processed.Load())
}

func TestFaultStopsListening(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()
	h.speak(1)

	h.orch.HandleFault(context.DeadlineExceeded)
	require.Eventually(t, func() bool { return !h.orch.Listening() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.engine.closes.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, h.mic.registered())
	require.Equal(t, []string{"Engine connection lost"}, h.presenter.errorTexts())
	require.EqualValues(t, 1, h.exec.aborts.Load())
}

func TestConnectFailureStopsListening(t *testing.T) {
	h := newHarness(t)
	h.engine.connectErr = errDial
	h.start()

	h.orch.SetListening(true)
	require.Eventually(t, func() bool {
		return len(h.presenter.errorTexts()) == 1 && !h.orch.Listening()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"Engine unreachable"}, h.presenter.errorTexts())
	require.False(t, h.mic.registered())
}

func TestMicrophoneFailureStopsListening(t *testing.T) {
	h := newHarness(t)
	h.mic.registerErr = errDial
	h.start()

	h.orch.SetListening(true)
	require.Eventually(t, func() bool { return len(h.presenter.errorTexts()) == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, h.orch.Listening())
	require.Zero(t, h.engine.connects.Load())
}

func TestStopListeningDisablesAndForgetsChunks(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.listen()
	id := h.speak(1)

	h.orch.Pause(context.Background())
	h.waitKinds("disable")
	require.Eventually(t, func() bool { return h.engine.closes.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.orch.HandleCommands(finalResponse(id, 0, true, command("insert hello", insertHello)))
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, h.exec.executions())
}

func TestHandleIntents(t *testing.T) {
	h := newHarness(t)
	h.start()
	ctx := context.Background()

	resp := h.orch.Handle(ctx, ipc.Request{Command: "status"})
	require.True(t, resp.OK)
	require.Equal(t, "paused", resp.State)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "text", Text: "go to line five"})
	require.False(t, resp.OK)
	require.Equal(t, "not listening", resp.Error)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	require.Equal(t, "listening", resp.State)
	require.Eventually(t, h.orch.Listening, time.Second, 5*time.Millisecond)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "text", Text: "  go to line five "})
	require.True(t, resp.OK)
	h.waitKinds("initialize", "text")
	text := h.engine.sent()[len(h.engine.sent())-1].(wire.TextRequest)
	require.Equal(t, "go to line five", text.Text)
	require.True(t, text.IncludeAlternatives)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "use", Index: 0})
	require.False(t, resp.OK)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "use", Index: 2})
	require.True(t, resp.OK)
	got := h.waitExecutions(1)
	require.Equal(t, wire.CommandUse, got[0].Execute.Commands[0].Type)
	require.Equal(t, 2, got[0].Execute.Commands[0].Index)

	require.True(t, h.orch.Handle(ctx, ipc.Request{Command: "undo"}).OK)
	got = h.waitExecutions(2)
	require.Equal(t, wire.CommandUndo, got[1].Execute.Commands[0].Type)

	require.True(t, h.orch.Handle(ctx, ipc.Request{Command: "redo"}).OK)
	got = h.waitExecutions(3)
	require.Equal(t, wire.CommandRedo, got[2].Execute.Commands[0].Type)

	resp = h.orch.Handle(ctx, ipc.Request{Command: "bogus"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")

	resp = h.orch.Handle(ctx, ipc.Request{Command: "stop"})
	require.True(t, resp.OK)
	require.Eventually(t, func() bool { return !h.orch.Listening() }, time.Second, 5*time.Millisecond)
}
