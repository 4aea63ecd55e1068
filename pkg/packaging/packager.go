package packaging

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// CommandPackager builds a component by invoking an external build command
// in the component directory.
type CommandPackager struct {
	logger  zerolog.Logger
	command string
	args    []string
}

// NewCommandPackager creates a packager running command with args inside the
// component directory. When production is set, "--production" is appended.
func NewCommandPackager(logger zerolog.Logger, command string, args ...string) *CommandPackager {
	return &CommandPackager{
		logger:  logger.With().Str("component", "packager").Logger(),
		command: command,
		args:    args,
	}
}

// Package runs the build command for one component directory.
func (p *CommandPackager) Package(ctx context.Context, componentDir string, production bool) error {
	args := append([]string{}, p.args...)
	if production {
		args = append(args, "--production")
	}

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Dir = componentDir

	output, err := cmd.CombinedOutput()
	if err == nil {
		p.logger.Debug().
			Str("dir", componentDir).
			Msg("Build command finished")
		return nil
	}

	// Build tools report parse failures on their output stream; classify
	// them so the coordinator can report them as developer-correctable.
	if strings.Contains(string(output), "SyntaxError") {
		return NewSyntaxError(strings.TrimSpace(string(output)), err)
	}
	return NewTransientError(strings.TrimSpace(string(output)), err)
}
