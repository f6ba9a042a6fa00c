// Package sanitize invalidates and ranks a final multi-alternative response
// against live desktop facts before it is acted on.
package sanitize

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/wire"
)

const tooManyKeystrokes = "Too many keystrokes: "

// Environment is the slice of the desktop the sanitizer queries.
type Environment interface {
	InstalledApplications(ctx context.Context) ([]string, error)
	RunningApplications(ctx context.Context) ([]string, error)
	ClickableTargets(ctx context.Context) ([]string, error)
}

// Editor reports the focused application and its editor state.
type Editor interface {
	App() string
	PluginConnected() bool
	IsFirstPartyBrowser() bool
	State(ctx context.Context, includeClipboard bool) wire.EditorState
}

// Plugins asks a connected plugin whether a target is clickable.
type Plugins interface {
	SendCommand(ctx context.Context, app string, cmd wire.Command) (json.RawMessage, error)
}

// Costs is the authoritative keystroke cost model.
type Costs interface {
	AlternativeCost(state wire.EditorState, alt wire.Alternative) int
	MaxKeystrokes() int
}

// Pending is the list of alternatives a "use N" command selects from.
type Pending interface {
	PendingCount() (int, bool)
	ClearPending()
}

// Display describes the alternatives list the user sees.
type Display struct {
	// Constrained trims alternatives to Max when set.
	Constrained bool
	Max         int
}

// Sanitizer applies the fixed invalidation and promotion pipeline.
type Sanitizer struct {
	env     Environment
	editor  Editor
	plugins Plugins
	costs   Costs
	policy  policy.Policy
	logger  *slog.Logger

	Display func() Display
}

func New(env Environment, editor Editor, plugins Plugins, costs Costs, p policy.Policy, logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sanitizer{env: env, editor: editor, plugins: plugins, costs: costs, policy: p, logger: logger}
}

// Sanitize returns an invalidated, collapsed, truncated copy of resp with a
// default execute target chosen when one is safe. Alternatives are never
// reordered.
func (s *Sanitizer) Sanitize(ctx context.Context, resp *wire.CommandsResponse, pending Pending) *wire.CommandsResponse {
	out := resp.Clone()
	if out == nil || len(out.Alternatives) == 0 {
		return out
	}

	s.invalidateApplications(ctx, out, isLaunch, s.env.InstalledApplications)
	s.invalidateApplications(ctx, out, isFocusOrQuit, s.env.RunningApplications)
	s.invalidateClicks(ctx, out)
	s.invalidateUses(ctx, out, pending)
	s.invalidateKeystrokeBudget(ctx, out)
	collapseMeta(out)
	s.truncate(out)
	s.promoteDefault(out)
	return out
}

func isLaunch(c wire.Command) bool { return c.Type == wire.CommandLaunch }

func isFocusOrQuit(c wire.Command) bool {
	return c.Type == wire.CommandFocus || c.Type == wire.CommandQuit
}

// invalidateApplications keeps one valid alternative per resolved application.
func (s *Sanitizer) invalidateApplications(
	ctx context.Context,
	resp *wire.CommandsResponse,
	check func(wire.Command) bool,
	list func(context.Context) ([]string, error),
) {
	if !slices.ContainsFunc(resp.Alternatives, func(a wire.Alternative) bool {
		return slices.ContainsFunc(a.Commands, check)
	}) {
		return
	}

	apps, err := list(ctx)
	if err != nil {
		s.logger.Debug("application list unavailable", "error", err)
		return
	}

	seen := make(map[string]bool)
	for i := range resp.Alternatives {
		alt := &resp.Alternatives[i]
		if !alt.Valid() {
			continue
		}
		idx := slices.IndexFunc(alt.Commands, check)
		if idx < 0 {
			continue
		}
		matches := s.policy.MatchApplications(alt.Commands[idx].Text, apps)
		if len(matches) == 0 || seen[matches[0]] {
			alt.Commands[idx].Type = wire.CommandInvalid
			continue
		}
		seen[matches[0]] = true
	}

	if exec := resp.Execute; exec != nil && len(exec.Commands) > 0 {
		if idx := slices.IndexFunc(exec.Commands, check); idx >= 0 &&
			len(s.policy.MatchApplications(exec.Commands[idx].Text, apps)) == 0 {
			resp.Execute = nil
		}
	}
}

func isClick(a wire.Alternative) bool {
	return strings.HasPrefix(a.Transcript, "click ")
}

func (s *Sanitizer) invalidateClicks(ctx context.Context, resp *wire.CommandsResponse) {
	if !slices.ContainsFunc(resp.Alternatives, func(a wire.Alternative) bool { return a.Valid() && isClick(a) }) {
		return
	}

	clickables, err := s.env.ClickableTargets(ctx)
	if err != nil {
		s.logger.Debug("clickable targets unavailable", "error", err)
	}
	for i := range resp.Alternatives {
		alt := &resp.Alternatives[i]
		if !isClick(*alt) || len(alt.Commands) == 0 || alt.Commands[0].Type == wire.CommandInvalid {
			continue
		}
		if !s.clickable(ctx, alt.Commands[0].Path, clickables, err == nil) {
			alt.Commands[0].Type = wire.CommandInvalid
		}
	}
}

func (s *Sanitizer) clickable(ctx context.Context, path string, clickables []string, listed bool) bool {
	if s.editor.IsFirstPartyBrowser() && s.editor.PluginConnected() {
		return s.pluginClickable(ctx, path)
	}
	return listed && slices.Contains(clickables, path)
}

func (s *Sanitizer) pluginClickable(ctx context.Context, path string) bool {
	if s.plugins == nil {
		return false
	}
	payload, err := s.plugins.SendCommand(ctx, s.editor.App(), wire.Command{Type: wire.CommandClickable, Path: path})
	if err != nil || len(payload) == 0 {
		return false
	}
	var result struct {
		Data struct {
			Clickable bool `json:"clickable"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return false
	}
	return result.Data.Clickable
}

func (s *Sanitizer) invalidateUses(ctx context.Context, resp *wire.CommandsResponse, pending Pending) {
	for i := range resp.Alternatives {
		alt := &resp.Alternatives[i]
		if s.useInvalid(ctx, *alt, pending) {
			alt.Invalidate()
		}
	}
	if resp.Execute != nil && s.useInvalid(ctx, *resp.Execute, pending) {
		resp.Execute = nil
	}
}

func (s *Sanitizer) useInvalid(ctx context.Context, alt wire.Alternative, pending Pending) bool {
	idx := slices.IndexFunc(alt.Commands, func(c wire.Command) bool { return c.Type == wire.CommandUse })
	if idx < 0 {
		return false
	}
	use := alt.Commands[idx]

	count, ok := 0, false
	if pending != nil {
		count, ok = pending.PendingCount()
	}
	invalidPending := !ok || use.Index > count

	if !s.editor.IsFirstPartyBrowser() || !s.editor.PluginConnected() {
		return invalidPending
	}
	if s.pluginClickable(ctx, strconv.Itoa(use.Index)) {
		// The page owns this selection, so nothing pending runs locally.
		if pending != nil {
			pending.ClearPending()
		}
		return false
	}
	return invalidPending
}

func (s *Sanitizer) invalidateKeystrokeBudget(ctx context.Context, resp *wire.CommandsResponse) {
	if s.costs == nil {
		return
	}
	state := s.editor.State(ctx, false)
	limit := s.costs.MaxKeystrokes()
	for i := range resp.Alternatives {
		alt := &resp.Alternatives[i]
		if cost := s.costs.AlternativeCost(state, *alt); cost >= limit {
			alt.Description = tooManyKeystrokes + alt.Description
			alt.Invalidate()
		}
	}
}

// collapseMeta promotes a top-ranked use or cancel to execute.
func collapseMeta(resp *wire.CommandsResponse) {
	if !resp.IsMeta() {
		return
	}
	exec := resp.Alternatives[0]
	resp.Execute = &exec
	resp.Alternatives = nil
}

func (s *Sanitizer) truncate(resp *wire.CommandsResponse) {
	if s.Display == nil {
		return
	}
	d := s.Display()
	if !d.Constrained {
		return
	}
	limit := max(1, d.Max)
	if len(resp.Alternatives) > limit {
		resp.Alternatives = resp.Alternatives[:limit]
	}
}

func hasExecute(resp *wire.CommandsResponse) bool {
	return resp.Execute != nil && len(resp.Execute.Commands) > 0
}

func (s *Sanitizer) promoteDefault(resp *wire.CommandsResponse) {
	valid := resp.ValidAlternatives()
	if hasExecute(resp) || len(valid) == 0 {
		return
	}
	top := valid[0]
	if top.Transcript == "" || len(top.Commands) == 0 {
		return
	}
	if s.policy.NeverAuto(top.Transcript) {
		return
	}

	if len(valid) == 1 || allAuto(s.policy, top.Commands) {
		resp.Execute = &top
		return
	}
	if top.Commands[0].Type == wire.CommandCustom {
		if custom, ok := s.policy.Custom(top.Commands[0].CustomID); ok && custom.AutoExecute {
			resp.Execute = &top
		}
	}
}

func allAuto(p policy.Policy, commands []wire.Command) bool {
	for _, c := range commands {
		if !p.AutoExecutes(c) {
			return false
		}
	}
	return true
}
