// Package audio discovers PulseAudio sources and captures 16kHz mono PCM frames.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const applicationName = "parley"

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// problem names why a device cannot capture, or "" when it can.
func (d Device) problem() string {
	switch {
	case d.Muted:
		return "muted"
	case !d.Available:
		return "unavailable"
	default:
		return ""
	}
}

// Selection is the source to capture from. Warning is set when the
// preferred input was skipped.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns the server's input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var replies pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &replies); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(replies))
	for _, source := range replies {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultSource.ID(),
		})
	}
	return devices, nil
}

// SelectDevice resolves the audio.input and audio.fallback preferences
// against the live source list.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// preference is one configured device term; "" and "default" both mean
// the server's default source.
type preference string

func parsePreference(raw string) preference {
	term := strings.ToLower(strings.TrimSpace(raw))
	if term == "default" {
		term = ""
	}
	return preference(term)
}

func (p preference) resolve(devices []Device) (Device, error) {
	for _, dev := range devices {
		if p == "" && dev.Default {
			return dev, nil
		}
		if p != "" && deviceMatches(dev, string(p)) {
			return dev, nil
		}
	}
	if p == "" {
		return Device{}, errors.New("default audio source is unavailable")
	}
	return Device{}, fmt.Errorf("audio.input %q did not match any device", string(p))
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primary, err := parsePreference(input).resolve(devices)
	if err != nil {
		return Selection{}, err
	}
	reason := primary.problem()
	if reason == "" {
		return Selection{Device: primary}, nil
	}

	backupPref := parsePreference(fallback)
	backup, err := backupPref.resolve(devices)
	if err != nil {
		if backupPref == "" {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, reason, err)
		}
		return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, string(backupPref))
	}
	if problem := backup.problem(); problem != "" {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", backup.ID, problem)
	}

	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, backup.ID),
		Fallback: primary.ID != backup.ID,
	}, nil
}

// deviceMatches reports whether term is a substring of the device id or
// description, case-insensitively.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// Pulse port availability: unknown=0, no=1, yes=2.
const portUnavailable = 1

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != portUnavailable
		}
	}
	return true
}
