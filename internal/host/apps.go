package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rbright/parley/internal/hypr"
	"golang.org/x/sync/errgroup"
)

type desktopEntry struct {
	ID   string
	Name string
}

// ActiveWindow reports the focused window.
func (h *Hyprland) ActiveWindow(ctx context.Context) (Window, error) {
	w, err := hypr.QueryActiveWindow(ctx)
	if err != nil {
		return Window{}, err
	}
	class := w.Class
	if class == "" {
		class = w.InitialClass
	}
	return Window{Address: w.Address, Class: class, Title: w.Title}, nil
}

// RunningApplications lists the distinct classes of mapped windows.
func (h *Hyprland) RunningApplications(ctx context.Context) ([]string, error) {
	clients, err := hypr.QueryClients(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range clients {
		if c.Class == "" || seen[c.Class] {
			continue
		}
		seen[c.Class] = true
		out = append(out, c.Class)
	}
	return out, nil
}

// InstalledApplications lists launchable desktop entry names.
func (h *Hyprland) InstalledApplications(ctx context.Context) ([]string, error) {
	entries, err := h.desktopEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out, nil
}

// Focus raises the first running window matching the spoken application name.
func (h *Hyprland) Focus(ctx context.Context, app string) error {
	classes, err := h.RunningApplications(ctx)
	if err != nil {
		return err
	}
	matches := h.policy.MatchApplications(app, classes)
	if len(matches) == 0 {
		return fmt.Errorf("focus %q: no running application matches", app)
	}
	return hypr.FocusWindow(ctx, "^("+regexp.QuoteMeta(matches[0])+")$")
}

// Launch starts the desktop entry matching the spoken application name.
func (h *Hyprland) Launch(ctx context.Context, app string) error {
	entries, err := h.desktopEntries(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	byName := make(map[string]desktopEntry, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
		byName[e.Name] = e
	}
	matches := h.policy.MatchApplications(app, names)
	if len(matches) == 0 {
		return fmt.Errorf("launch %q: no installed application matches", app)
	}
	return hypr.Exec(ctx, "gtk-launch "+byName[matches[0]].ID)
}

// Quit closes every window of the running application matching the spoken name.
func (h *Hyprland) Quit(ctx context.Context, app string) error {
	clients, err := hypr.QueryClients(ctx)
	if err != nil {
		return err
	}
	classes := make([]string, 0, len(clients))
	for _, c := range clients {
		classes = append(classes, c.Class)
	}
	matches := h.policy.MatchApplications(app, classes)
	if len(matches) == 0 {
		return fmt.Errorf("quit %q: no running application matches", app)
	}
	var errs []error
	for _, c := range clients {
		if c.Class == matches[0] {
			errs = append(errs, hypr.CloseWindow(ctx, c.Address))
		}
	}
	return errors.Join(errs...)
}

// desktopEntries scans application directories in parallel; earlier directories win.
func (h *Hyprland) desktopEntries(ctx context.Context) ([]desktopEntry, error) {
	dirs := h.opts.ApplicationDirs
	results := make([][]desktopEntry, len(dirs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		eg.Go(func() error {
			entries, err := scanApplicationDir(egCtx, dir)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []desktopEntry
	for _, entries := range results {
		for _, e := range entries {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out, nil
}

func scanApplicationDir(ctx context.Context, dir string) ([]desktopEntry, error) {
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read application dir %q: %w", dir, err)
	}

	var out []desktopEntry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".desktop") {
			continue
		}
		entry, ok, err := parseDesktopEntry(filepath.Join(dir, f.Name()))
		if err != nil || !ok {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func parseDesktopEntry(path string) (desktopEntry, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return desktopEntry{}, false, err
	}
	defer f.Close()

	entry := desktopEntry{ID: strings.TrimSuffix(filepath.Base(path), ".desktop")}
	inMain := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inMain = line == "[Desktop Entry]"
			continue
		}
		if !inMain {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Name":
			entry.Name = strings.TrimSpace(value)
		case "NoDisplay", "Hidden":
			if strings.EqualFold(strings.TrimSpace(value), "true") {
				return desktopEntry{}, false, nil
			}
		case "Type":
			if strings.TrimSpace(value) != "Application" {
				return desktopEntry{}, false, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return desktopEntry{}, false, err
	}
	if entry.Name == "" {
		entry.Name = entry.ID
	}
	return entry, true, nil
}

func defaultApplicationDirs() []string {
	var dirs []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "applications"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	dataDirs := strings.TrimSpace(os.Getenv("XDG_DATA_DIRS"))
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, d := range strings.Split(dataDirs, ":") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	return dirs
}
