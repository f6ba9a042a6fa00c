package orchestrator

import (
	"math"
	"time"

	"github.com/rbright/parley/internal/chunk"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/microphone"
	"github.com/rbright/parley/internal/wire"
)

const (
	// Chunks shorter than this many frames that come back empty are noise.
	noiseAudioSize = 6
	noiseGrace     = 200 * time.Millisecond

	appendWindow   = 5 * time.Second
	previousWindow = 10

	youngChunkFrames  = 66
	youngPartialEvery = 15
	oldPartialEvery   = 66
	partialMaxSilence = 4
)

// never is a noise deadline that keeps the current engine context alive
// until a response decides otherwise.
var never = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

func (o *Orchestrator) onChunkStart(ev microphone.Event) {
	id := o.newID()
	o.store.Add(id)
	o.logger.Debug("chunk start", "chunk_id", id)

	if !o.speaking {
		o.presenter.SetSpeaking(true)
	}

	// A chunk starting inside the noise grace period continues the
	// current engine context instead of opening a new one.
	if o.noiseDeadline.Before(o.now()) {
		o.noiseDeadline = never
		o.enqueue(wire.InitializeRequest{}, false)
	} else {
		o.enqueue(wire.EditorStateRequest{}, false)
	}

	o.speaking = true
	o.enqueue(wire.AudioRequest{Audio: ev.Audio, ChunkID: id}, true)
}

func (o *Orchestrator) onAudio(ev microphone.Event) {
	current, ok := o.store.Head()
	if !ok {
		return
	}
	current.Silence = ev.Silence

	if o.speaking {
		current.AudioSize++
		o.enqueue(wire.AudioRequest{Audio: ev.Audio, ChunkID: current.ID}, true)

		every := oldPartialEvery
		if current.AudioSize < youngChunkFrames {
			every = youngPartialEvery
		}
		if current.AudioSize%every == 0 && current.Silence < partialMaxSilence {
			o.enqueue(wire.EndpointRequest{ChunkID: current.ID}, true)
		}
	}

	resp := current.Current()
	if resp == nil {
		return
	}
	if current.Silence == int(math.Ceil(o.cfg.SilenceThreshold*resp.SilenceThreshold)) {
		o.logger.Debug("silence reached", "chunk_id", current.ID)
		o.evaluate(current)
	}
}

func (o *Orchestrator) onChunkEnd() {
	o.speaking = false
	o.presenter.SetSpeaking(false)

	current, ok := o.store.Head()
	if !ok {
		return
	}
	o.logger.Debug("chunk end", "chunk_id", current.ID)
	o.enqueue(wire.EditorStateRequest{}, false)
	o.enqueue(wire.EndpointRequest{ChunkID: current.ID, Finalize: true}, true)
	o.advance(current, fsm.EventEndpoint)
}

func (o *Orchestrator) onCommandsResponse(resp *wire.CommandsResponse) {
	rec, ok := o.store.Get(resp.ChunkID)
	if !ok {
		o.logger.Debug("response for unknown chunk", "chunk_id", resp.ChunkID)
		return
	}
	o.logger.Debug("response received",
		"chunk_id", rec.ID,
		"final", resp.Final,
		"alternatives", len(resp.Alternatives),
	)

	if resp.Final {
		if rec.Reverted.IsZero() {
			rec.Response = resp
		} else {
			rec.RevertedResponse = resp
		}
		o.advance(rec, fsm.EventFinal)
	}

	if !o.shouldAppendToPrevious(resp) && !resp.IsMeta() && len(resp.Alternatives) > 0 {
		partial := rec.Executed.IsZero() && (!resp.Final || !o.reachedSilence(rec))
		o.presenter.SetPartial(partial)
		if partial {
			o.exec.ShowAlternatives(o.exec.Truncate(resp))
		}
	}

	if resp.Final {
		o.evaluate(rec)
	}
}

// evaluate executes rec when every guard passes. A failing guard is a
// skip, never an error.
func (o *Orchestrator) evaluate(rec *chunk.Record) {
	head, ok := o.store.Head()
	switch {
	case !ok:
		o.logger.Debug("evaluation skipped: no chunks", "chunk_id", rec.ID)
		return
	case rec.Reverted.IsZero() && !rec.Executed.IsZero():
		o.logger.Debug("evaluation skipped: already executed", "chunk_id", rec.ID)
		return
	case head.ID != rec.ID:
		o.logger.Debug("evaluation skipped: newer chunk started", "chunk_id", rec.ID, "head", head.ID)
		return
	case rec.Reverted.IsZero() && rec.Response == nil:
		o.logger.Debug("evaluation skipped: no final response", "chunk_id", rec.ID)
		return
	case !rec.Reverted.IsZero() && rec.RevertedResponse == nil:
		o.logger.Debug("evaluation skipped: no reverted response", "chunk_id", rec.ID)
		return
	case !o.reachedSilence(rec):
		o.logger.Debug("evaluation skipped: waiting for silence", "chunk_id", rec.ID, "silence", rec.Silence)
		return
	}

	if rec.Reverted.IsZero() && len(rec.Response.Alternatives) == 0 && rec.Response.Execute == nil {
		o.logger.Debug("chunk classified as noise", "chunk_id", rec.ID, "audio_size", rec.AudioSize)
		if rec.AudioSize < noiseAudioSize {
			o.noiseDeadline = o.now().Add(noiseGrace)
		} else {
			o.noiseDeadline = time.Time{}
		}
		o.recorder.ChunkOutcome(o.ctx, "noise")
		return
	}

	if rec.Response != nil && rec.Response.Final && o.shouldAppendToPrevious(rec.Response) {
		o.logger.Debug("appending chunk to previous command", "chunk_id", rec.ID)
		rec.Reverted = o.now()
		rec.Executed = time.Time{}
		rec.Silence = 0
		o.advance(rec, fsm.EventRevert)
		o.out.Forward(wire.AppendToPreviousRequest{})
		o.enqueue(wire.EndpointRequest{ChunkID: rec.ID, Finalize: true}, true)
		o.advance(rec, fsm.EventEndpoint)
		o.recorder.ChunkOutcome(o.ctx, "reverted")
		return
	}

	o.presenter.SetPartial(false)
	o.noiseDeadline = time.Time{}
	rec.Executed = o.now()
	o.advance(rec, fsm.EventExecute)
	o.recorder.ChunkOutcome(o.ctx, "executed")
	o.logger.Debug("executing chunk", "chunk_id", rec.ID)
	o.execute(rec.Current())
}

// execute runs resp off the loop with the gate held. The completion is
// dropped if listening stopped in the meantime.
func (o *Orchestrator) execute(resp *wire.CommandsResponse) {
	o.hold()
	epoch := o.epoch
	ctx := o.ctx
	started := time.Now()

	o.work.Add(1)
	go func() {
		defer o.work.Done()
		o.exec.Execute(ctx, resp)
		o.recorder.ExecuteCompleted(ctx, time.Since(started).Seconds())
		o.post(executedEvent{epoch: epoch})
	}()
}

func (o *Orchestrator) reachedSilence(rec *chunk.Record) bool {
	resp := rec.Current()
	return resp != nil && float64(rec.Silence) >= o.cfg.SilenceThreshold*resp.SilenceThreshold
}

// shouldAppendToPrevious detects an utterance that only makes sense as the
// tail of a dictation command resolved moments ago. The dictation prefix
// table is a heuristic, not a classifier.
func (o *Orchestrator) shouldAppendToPrevious(resp *wire.CommandsResponse) bool {
	if !o.editor.PluginConnected() ||
		o.store.Size() < 2 ||
		o.editor.Dictating() ||
		resp == nil ||
		len(resp.Alternatives) == 0 {
		return false
	}

	current, _ := o.store.Head()
	var previous *chunk.Record
	for i := 1; i < min(o.store.Size(), previousWindow); i++ {
		rec, _ := o.store.Index(i)
		if !rec.Executed.IsZero() || !rec.Reverted.IsZero() {
			previous = rec
			break
		}
	}
	if previous == nil {
		return false
	}

	return o.editor.IsFirstPartyEditor() &&
		current.Reverted.IsZero() &&
		o.now().Sub(previous.Resolved()) < appendWindow &&
		!resp.IsMeta() &&
		len(resp.ValidAlternatives()) == 0 &&
		o.startsWithDictation(previous.Current()) &&
		!o.startsWithDictation(resp)
}

func (o *Orchestrator) startsWithDictation(resp *wire.CommandsResponse) bool {
	return resp != nil && len(resp.Alternatives) > 0 && o.policy.IsDictation(resp.Alternatives[0].Transcript)
}

func (o *Orchestrator) advance(rec *chunk.Record, ev fsm.Event) {
	if err := rec.Advance(ev); err != nil {
		o.logger.Debug("chunk transition ignored", "chunk_id", rec.ID, "error", err)
	}
}

// enqueue appends req to the gate. Requests reach the engine in FIFO
// order, and not at all while an execution or connect holds the gate.
func (o *Orchestrator) enqueue(req wire.Request, flush bool) {
	o.queue = append(o.queue, req)
	if flush {
		o.flush()
	}
}

func (o *Orchestrator) flush() {
	if o.holds > 0 {
		return
	}
	for _, req := range o.queue {
		o.out.Forward(req)
	}
	o.queue = nil
}

func (o *Orchestrator) hold() {
	o.holds++
}

func (o *Orchestrator) release() {
	if o.holds > 0 {
		o.holds--
	}
	o.flush()
}
