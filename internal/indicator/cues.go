package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/parley/internal/config"
)

type cueKind int

const (
	cueListen cueKind = iota + 1
	cuePause
	cueExecute
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueEdge       = 5 * time.Millisecond
	cueFileLimit  = 4 * time.Second
)

// tone is one sine segment of a cue.
type tone struct {
	hz   float64
	ms   int
	gain float64
}

var cueTones = map[cueKind][]tone{
	cueListen:  {{hz: 660, ms: 60, gain: 0.16}, {hz: 990, ms: 80, gain: 0.16}},
	cuePause:   {{hz: 990, ms: 60, gain: 0.16}, {hz: 660, ms: 80, gain: 0.16}},
	cueExecute: {{hz: 1320, ms: 35, gain: 0.12}},
	cueError:   {{hz: 440, ms: 90, gain: 0.18}, {hz: 330, ms: 120, gain: 0.18}},
}

// cue is a configured sound file, or synthesized PCM when none is set.
type cue struct {
	file string
	pcm  []int16
}

func newCueBank(cfg config.IndicatorConfig) map[cueKind]cue {
	files := map[cueKind]string{
		cueListen:  cfg.SoundListenFile,
		cuePause:   cfg.SoundPauseFile,
		cueExecute: cfg.SoundExecuteFile,
		cueError:   cfg.SoundErrorFile,
	}
	bank := make(map[cueKind]cue, len(cueTones))
	for kind, tones := range cueTones {
		bank[kind] = cue{file: expandUserPath(files[kind]), pcm: render(tones...)}
	}
	return bank
}

// cuePlayer plays one cue at a time over a Pulse connection opened on
// first use and kept until close.
type cuePlayer struct {
	bank map[cueKind]cue

	mu     sync.Mutex
	client *pulse.Client
	closed bool
}

func newCuePlayer(cfg config.IndicatorConfig) *cuePlayer {
	return &cuePlayer{bank: newCueBank(cfg)}
}

func (c *cuePlayer) play(kind cueKind) error {
	entry, ok := c.bank[kind]
	if !ok {
		return fmt.Errorf("unknown cue %d", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("cue player closed")
	}

	if entry.file != "" {
		err := playFile(entry.file)
		if err == nil {
			return nil
		}
		if len(entry.pcm) == 0 {
			return err
		}
	}
	return c.playPCM(entry.pcm)
}

func (c *cuePlayer) playPCM(samples []int16) error {
	if c.client == nil {
		client, err := pulse.NewClient(
			pulse.ClientApplicationName("parley"),
			pulse.ClientApplicationIconName("audio-volume-high"),
		)
		if err != nil {
			return fmt.Errorf("connect pulse server: %w", err)
		}
		c.client = client
	}

	remaining := samples
	stream, err := c.client.NewPlayback(
		pulse.Int16Reader(func(buf []int16) (int, error) {
			n := copy(buf, remaining)
			remaining = remaining[n:]
			if len(remaining) == 0 {
				return n, pulse.EndOfData
			}
			return n, nil
		}),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("parley cue"),
	)
	if err != nil {
		// The connection may have gone stale; reconnect on the next cue.
		c.client.Close()
		c.client = nil
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

func (c *cuePlayer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func playFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cueFileLimit)
	defer cancel()

	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

// render concatenates tones separated by short silences.
func render(tones ...tone) []int16 {
	gap := samples(cueGap)
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, t.render()...)
	}
	return pcm
}

// render synthesizes a sine with linear attack and release ramps so the
// cue does not click.
func (t tone) render() []int16 {
	n := samples(time.Duration(t.ms) * time.Millisecond)
	if n <= 0 || t.hz <= 0 || t.gain <= 0 {
		return nil
	}
	edge := max(1, min(n/10, samples(cueEdge)))

	pcm := make([]int16, n)
	for i := range pcm {
		envelope := math.Min(1, float64(min(i, n-1-i))/float64(edge))
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * t.gain * envelope * math.MaxInt16))
	}
	return pcm
}

func samples(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
