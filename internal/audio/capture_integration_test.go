//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureDefaultSourceIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	selection, err := SelectDevice(ctx, "default", "default")
	require.NoError(t, err)

	capture, err := StartCapture(ctx, selection.Device)
	require.NoError(t, err)
	defer capture.Close()

	frame := <-capture.Frames()
	require.Len(t, frame, FrameBytes)
}
