package config

// DefaultEndpoint is the local engine address used when none is configured.
const DefaultEndpoint = "ws://127.0.0.1:17202/stream"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Endpoint:      DefaultEndpoint,
			DialTimeoutMS: 3000,
		},
		Stream: StreamConfig{
			KeepAliveIntervalMS: 30_000,
			KeepAliveTimeoutMS:  3_000,
			IdleTimeoutMS:       3_600_000,
			IdleCheckIntervalMS: 300_000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		VAD: VADConfig{
			SpeechThreshold:  300,
			StartFrames:      3,
			EndSilenceFrames: 40,
			PrerollFrames:    10,
		},
		Execute: ExecuteConfig{
			SilenceThreshold: 1,
			MaxKeystrokes:    250,
			UndoDepth:        20,
			ChunkCapacity:    50,
		},
		Display: DisplayConfig{
			Alternatives:  3,
			HideTimeoutMS: 4000,
		},
		Plugin: PluginConfig{
			Listen:    "127.0.0.1:17373",
			TimeoutMS: 3000,
		},
		Keyboard: KeyboardConfig{
			PasteShortcut: "CTRL,V",
			KeyDelayMS:    50,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard:     command("wl-copy --trim-newline"),
		ClipboardRead: command("wl-paste --no-newline"),
		Type:          command("wtype -"),
	}
}

func command(raw string) CommandConfig {
	return CommandConfig{Raw: raw, Argv: mustParseArgv(raw)}
}
