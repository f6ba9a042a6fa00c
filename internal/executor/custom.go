package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parley/internal/wire"
)

const customTimeout = 10 * time.Second

// custom runs a user-authored command. "{text}" in argv is replaced with the
// spoken argument.
func (e *Executor) custom(ctx context.Context, cmd wire.Command) error {
	def, ok := e.policy.Custom(cmd.CustomID)
	if !ok {
		return fmt.Errorf("unknown custom command %q", cmd.CustomID)
	}
	if len(def.Argv) == 0 {
		return fmt.Errorf("custom command %s has no argv", def.ID)
	}

	argv := make([]string, len(def.Argv))
	for i, arg := range def.Argv {
		argv[i] = strings.ReplaceAll(arg, "{text}", cmd.Text)
	}

	runCtx, cancel := context.WithTimeout(ctx, customTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("custom command %s: %w", def.ID, err)
		}
		return fmt.Errorf("custom command %s: %w (%s)", def.ID, err, trimmed)
	}
	e.logger.Debug("custom command finished", "id", def.ID)
	return nil
}
