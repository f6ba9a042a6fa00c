// Package policy loads the command policy table: aliases, auto-execute rules,
// application classes, and user-authored commands.
package policy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rbright/parley/internal/wire"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Policy is the decoded policy table.
type Policy struct {
	Aliases           map[string]string `yaml:"aliases"`
	DictationPrefixes []string          `yaml:"dictation_prefixes"`
	NeverAutoPrefixes []string          `yaml:"never_auto_prefixes"`
	AutoExecute       AutoExecute       `yaml:"auto_execute"`
	Applications      []Application     `yaml:"applications"`
	Terminals         []string          `yaml:"terminals"`
	Editors           []string          `yaml:"editors"`
	Browsers          []string          `yaml:"browsers"`
	FuzzyThreshold    float64           `yaml:"fuzzy_threshold"`
	CustomCommands    []CustomCommand   `yaml:"custom_commands"`
}

// AutoExecute lists command types and pressed keys that are safe to run unprompted.
type AutoExecute struct {
	Commands []wire.CommandType `yaml:"commands"`
	Keys     []string           `yaml:"keys"`
}

// Application maps raw window classes onto one canonical application name.
type Application struct {
	Name  string   `yaml:"name"`
	Match []string `yaml:"match"`
}

// CustomCommand is a user-authored command bound to a local argv.
type CustomCommand struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Argv        []string `yaml:"argv"`
	AutoExecute bool     `yaml:"auto_execute"`
}

// Default returns the built-in policy.
func Default() Policy {
	p, err := Parse(bytes.NewReader(defaultYAML), Policy{})
	if err != nil {
		panic(fmt.Sprintf("policy: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a policy file over the built-in defaults. A missing file yields defaults.
func Load(path string) (Policy, error) {
	base := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("policy: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := Parse(f, base)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: parse %q: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML over base and validates the result.
func Parse(r io.Reader, base Policy) (Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&base); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(base); err != nil {
		return Policy{}, err
	}
	return normalize(base), nil
}

// Validate checks that the policy is coherent.
func Validate(p Policy) error {
	var errs []error
	if p.FuzzyThreshold < 0 || p.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("fuzzy_threshold %.2f must be within [0,1]", p.FuzzyThreshold))
	}
	seen := map[string]bool{}
	for i, c := range p.CustomCommands {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("custom_commands[%d].id must not be empty", i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("custom_commands[%d].id %q is duplicated", i, id))
		}
		seen[id] = true
		if len(c.Argv) == 0 {
			errs = append(errs, fmt.Errorf("custom_commands[%d].argv must not be empty", i))
		}
	}
	for i, a := range p.Applications {
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Errorf("applications[%d].name must not be empty", i))
		}
	}
	return errors.Join(errs...)
}

func normalize(p Policy) Policy {
	aliases := make(map[string]string, len(p.Aliases))
	for k, v := range p.Aliases {
		aliases[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	p.Aliases = aliases
	p.DictationPrefixes = lowerAll(p.DictationPrefixes)
	p.NeverAutoPrefixes = lowerAll(p.NeverAutoPrefixes)
	p.AutoExecute.Keys = lowerAll(p.AutoExecute.Keys)
	p.Terminals = lowerAll(p.Terminals)
	p.Editors = lowerAll(p.Editors)
	p.Browsers = lowerAll(p.Browsers)
	for i := range p.Applications {
		p.Applications[i].Name = strings.ToLower(strings.TrimSpace(p.Applications[i].Name))
		p.Applications[i].Match = lowerAll(p.Applications[i].Match)
	}
	return p
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsDictation reports whether a transcript starts with a dictation prefix,
// so "typed" and "adding" count as well as "type" and "add".
func (p Policy) IsDictation(transcript string) bool {
	transcript = strings.ToLower(strings.TrimSpace(transcript))
	if transcript == "" {
		return false
	}
	for _, prefix := range p.DictationPrefixes {
		if prefix != "" && strings.HasPrefix(transcript, prefix) {
			return true
		}
	}
	return false
}

// NeverAuto reports whether a transcript must never run without confirmation.
func (p Policy) NeverAuto(transcript string) bool {
	transcript = strings.ToLower(strings.TrimSpace(transcript))
	for _, prefix := range p.NeverAutoPrefixes {
		if strings.HasPrefix(transcript, prefix) {
			return true
		}
	}
	return false
}

// AutoExecutes reports whether one command is on the safe-to-run list.
func (p Policy) AutoExecutes(cmd wire.Command) bool {
	if slices.Contains(p.AutoExecute.Commands, cmd.Type) {
		return true
	}
	if cmd.Type == wire.CommandPress {
		return slices.Contains(p.AutoExecute.Keys, strings.ToLower(cmd.PressedKey()))
	}
	return false
}

// Custom finds a user-authored command by id.
func (p Policy) Custom(id string) (CustomCommand, bool) {
	for _, c := range p.CustomCommands {
		if c.ID == id {
			return c, true
		}
	}
	return CustomCommand{}, false
}

// Classify maps a raw window class onto a canonical application name.
func (p Policy) Classify(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	for _, app := range p.Applications {
		for _, m := range app.Match {
			if strings.Contains(raw, m) {
				return app.Name
			}
		}
	}
	if p.IsTerminal(raw) {
		return "terminal"
	}
	return raw
}

func (p Policy) IsTerminal(app string) bool {
	app = strings.ToLower(app)
	for _, t := range p.Terminals {
		if strings.Contains(app, t) {
			return true
		}
	}
	return false
}

func (p Policy) IsEditor(app string) bool {
	return slices.Contains(p.Editors, strings.ToLower(app))
}

func (p Policy) IsBrowser(app string) bool {
	return slices.Contains(p.Browsers, strings.ToLower(app))
}
