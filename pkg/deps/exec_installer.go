package deps

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// ExecInstaller installs modules by invoking an external package manager
// command in the target directory.
type ExecInstaller struct {
	logger  zerolog.Logger
	command string
	args    []string
}

// NewExecInstaller creates an installer that runs command with args followed
// by the module names, e.g. NewExecInstaller(logger, "npm", "install").
func NewExecInstaller(logger zerolog.Logger, command string, args ...string) *ExecInstaller {
	return &ExecInstaller{
		logger:  logger.With().Str("component", "installer").Logger(),
		command: command,
		args:    args,
	}
}

// Install runs the configured command for the given modules.
func (i *ExecInstaller) Install(ctx context.Context, modules []string, targetDir string) error {
	args := append(append([]string{}, i.args...), modules...)

	i.logger.Info().
		Str("command", i.command).
		Strs("modules", modules).
		Str("dir", targetDir).
		Msg("Running install")

	cmd := exec.CommandContext(ctx, i.command, args...)
	cmd.Dir = targetDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("install command failed: %w: %s", err, output)
	}

	i.logger.Debug().
		Str("output", string(output)).
		Msg("Install finished")
	return nil
}
