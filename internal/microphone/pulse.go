package microphone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/parley/internal/audio"
)

// Pulse opens PulseAudio captures using the configured device preferences.
type Pulse struct {
	Input    string
	Fallback string
	Logger   *slog.Logger
}

func (p Pulse) Open(ctx context.Context) (Stream, error) {
	selection, err := audio.SelectDevice(ctx, p.Input, p.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && p.Logger != nil {
		p.Logger.Warn(selection.Warning)
	}

	capture, err := audio.StartCapture(ctx, selection.Device)
	if err != nil {
		return nil, err
	}
	if p.Logger != nil {
		p.Logger.Info("microphone capture started", "device", DescribeDevice(selection.Device))
	}
	return capture, nil
}

// DescribeDevice formats device metadata for logs and status output.
func DescribeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
