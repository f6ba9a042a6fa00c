package wire

import "strings"

// CommandType identifies the action a Command asks the client to perform.
type CommandType int32

const (
	CommandNone CommandType = iota
	CommandInvalid
	CommandDiff
	CommandInsert
	CommandPress
	CommandUndo
	CommandRedo
	CommandFocus
	CommandLaunch
	CommandQuit
	CommandCustom
	CommandClick
	CommandClickable
	CommandUse
	CommandCancel
	CommandClipboard
	CommandCopy
	CommandPaste
	CommandScroll
	CommandSelect
	CommandLanguageMode
	CommandNext
	CommandPause
	CommandSave
	CommandShow
	CommandRun
	CommandStartDictate
	CommandStopDictate
	CommandShowRevisionBox
	CommandHideRevisionBox
	CommandGetEditorState
	CommandCallback
	CommandDebuggerContinue
	CommandDebuggerInlineBreakpoint
	CommandDebuggerPause
	CommandDebuggerShowHover
	CommandDebuggerStart
	CommandDebuggerStepInto
	CommandDebuggerStepOut
	CommandDebuggerStepOver
	CommandDebuggerStop
	CommandDebuggerToggleBreakpoint
)

var commandTypeNames = map[CommandType]string{
	CommandNone:                     "NONE",
	CommandInvalid:                  "INVALID",
	CommandDiff:                     "DIFF",
	CommandInsert:                   "INSERT",
	CommandPress:                    "PRESS",
	CommandUndo:                     "UNDO",
	CommandRedo:                     "REDO",
	CommandFocus:                    "FOCUS",
	CommandLaunch:                   "LAUNCH",
	CommandQuit:                     "QUIT",
	CommandCustom:                   "CUSTOM",
	CommandClick:                    "CLICK",
	CommandClickable:                "CLICKABLE",
	CommandUse:                      "USE",
	CommandCancel:                   "CANCEL",
	CommandClipboard:                "CLIPBOARD",
	CommandCopy:                     "COPY",
	CommandPaste:                    "PASTE",
	CommandScroll:                   "SCROLL",
	CommandSelect:                   "SELECT",
	CommandLanguageMode:             "LANGUAGE_MODE",
	CommandNext:                     "NEXT",
	CommandPause:                    "PAUSE",
	CommandSave:                     "SAVE",
	CommandShow:                     "SHOW",
	CommandRun:                      "RUN",
	CommandStartDictate:             "START_DICTATE",
	CommandStopDictate:              "STOP_DICTATE",
	CommandShowRevisionBox:          "SHOW_REVISION_BOX",
	CommandHideRevisionBox:          "HIDE_REVISION_BOX",
	CommandGetEditorState:           "GET_EDITOR_STATE",
	CommandCallback:                 "CALLBACK",
	CommandDebuggerContinue:         "DEBUGGER_CONTINUE",
	CommandDebuggerInlineBreakpoint: "DEBUGGER_INLINE_BREAKPOINT",
	CommandDebuggerPause:            "DEBUGGER_PAUSE",
	CommandDebuggerShowHover:        "DEBUGGER_SHOW_HOVER",
	CommandDebuggerStart:            "DEBUGGER_START",
	CommandDebuggerStepInto:         "DEBUGGER_STEP_INTO",
	CommandDebuggerStepOut:          "DEBUGGER_STEP_OUT",
	CommandDebuggerStepOver:         "DEBUGGER_STEP_OVER",
	CommandDebuggerStop:             "DEBUGGER_STOP",
	CommandDebuggerToggleBreakpoint: "DEBUGGER_TOGGLE_BREAKPOINT",
}

var commandTypesByName = func() map[string]CommandType {
	out := make(map[string]CommandType, len(commandTypeNames))
	for t, name := range commandTypeNames {
		out[name] = t
	}
	return out
}()

func (t CommandType) String() string {
	if name, ok := commandTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCommandType accepts both "DIFF" and "COMMAND_TYPE_DIFF" spellings.
func ParseCommandType(raw string) (CommandType, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "COMMAND_TYPE_")
	t, ok := commandTypesByName[name]
	return t, ok
}

// MarshalText renders the command type by name for JSON and YAML.
func (t CommandType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a command type name.
func (t *CommandType) UnmarshalText(text []byte) error {
	parsed, ok := ParseCommandType(string(text))
	if !ok {
		return &UnknownCommandTypeError{Name: string(text)}
	}
	*t = parsed
	return nil
}

// UnknownCommandTypeError reports a command type name with no mapping.
type UnknownCommandTypeError struct {
	Name string
}

func (e *UnknownCommandTypeError) Error() string {
	return "unknown command type " + strings.TrimSpace(e.Name)
}
