// Package config resolves, parses, validates, and defaults parley configuration.
package config

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Engine        EngineConfig
	Stream        StreamConfig
	Audio         AudioConfig
	VAD           VADConfig
	Execute       ExecuteConfig
	Display       DisplayConfig
	Plugin        PluginConfig
	Keyboard      KeyboardConfig
	Indicator     IndicatorConfig
	Clipboard     CommandConfig
	ClipboardRead CommandConfig
	Type          CommandConfig
	PolicyFile    string
	Debug         DebugConfig
}

// EngineConfig locates the speech engine. The endpoint scheme picks the
// transport: ws/wss for websocket, grpc for gRPC.
type EngineConfig struct {
	Endpoint      string
	DialTimeoutMS int
	Token         string
}

// StreamConfig controls keepalive and idle disconnect timers.
type StreamConfig struct {
	KeepAliveIntervalMS int
	KeepAliveTimeoutMS  int
	IdleTimeoutMS       int
	IdleCheckIntervalMS int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// VADConfig tunes chunk segmentation of microphone frames.
type VADConfig struct {
	SpeechThreshold  float64
	StartFrames      int
	EndSilenceFrames int
	PrerollFrames    int
}

// ExecuteConfig tunes when and how much a chunk executes.
type ExecuteConfig struct {
	// SilenceThreshold multiplies the engine-provided silence threshold.
	SilenceThreshold float64
	MaxKeystrokes    int
	UndoDepth        int
	ChunkCapacity    int
}

// DisplayConfig controls how alternatives are presented.
type DisplayConfig struct {
	MiniMode          bool
	FewerAlternatives bool
	Alternatives      int
	HideTimeoutMS     int
}

// PluginConfig controls the local editor-plugin server.
type PluginConfig struct {
	Listen    string
	TimeoutMS int
}

// KeyboardConfig controls synthesized typing.
type KeyboardConfig struct {
	TypeViaClipboard bool
	PasteShortcut    string
	KeyDelayMS       int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable           bool
	SoundEnable      bool
	ErrorTimeoutMS   int
	SoundListenFile  string
	SoundPauseFile   string
	SoundExecuteFile string
	SoundErrorFile   string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls verbose logging and debug artifact output.
type DebugConfig struct {
	Verbose    bool
	StreamDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
