package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// FrameBytes is one 20ms frame of 16kHz mono s16 PCM.
	FrameBytes = 640
	SampleRate = 16000

	frameBacklog = 256
)

// Stats counts capture traffic.
type Stats struct {
	Bytes   int64
	Frames  int64
	Dropped int64
}

// framer cuts an arbitrary byte stream into FrameBytes frames and keeps the
// remainder for the next push.
type framer struct {
	rest []byte
}

func (f *framer) push(buffer []byte) [][]byte {
	f.rest = append(f.rest, buffer...)
	out := make([][]byte, 0, len(f.rest)/FrameBytes)
	for len(f.rest) >= FrameBytes {
		out = append(out, append([]byte(nil), f.rest[:FrameBytes]...))
		f.rest = f.rest[FrameBytes:]
	}
	if len(f.rest) == 0 {
		f.rest = nil
	}
	return out
}

// Capture streams whole PCM frames from one Pulse source. Delivery never
// blocks the Pulse client; frames that find the backlog full are dropped
// and counted.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte

	mu      sync.Mutex
	framer  framer
	stopped bool

	bytes   atomic.Int64
	emitted atomic.Int64
	dropped atomic.Int64
}

func newCapture(device Device) *Capture {
	return &Capture{device: device, frames: make(chan []byte, frameBacklog)}
}

// StartCapture opens a 16kHz mono s16 record stream on selected. The
// capture stops when ctx is done.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected)
	capture.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(FrameBytes),
		pulse.RecordMediaName("parley voice commands"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	capture.stream = stream
	stream.Start()

	context.AfterFunc(ctx, capture.Close)
	return capture, nil
}

func (c *Capture) Device() Device {
	return c.device
}

// Frames yields FrameBytes slices and closes after Stop.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

func (c *Capture) Stats() Stats {
	return Stats{Bytes: c.bytes.Load(), Frames: c.emitted.Load(), Dropped: c.dropped.Load()}
}

// Stop halts the stream and closes Frames exactly once. A trailing partial
// frame is discarded.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.mu.Lock()
	c.framer = framer{}
	close(c.frames)
	c.mu.Unlock()
	return nil
}

func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM is the Pulse writer callback. Framing and delivery happen under
// mu, so Stop cannot close frames mid-send.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0, io.EOF
	}

	c.bytes.Add(int64(len(buffer)))
	for _, frame := range c.framer.push(buffer) {
		select {
		case c.frames <- frame:
			c.emitted.Add(1)
		default:
			c.dropped.Add(1)
		}
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
