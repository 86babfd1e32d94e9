// Package actuator runs remediation commands and executes approved plans.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrCommandNotAllowed is returned for binaries outside the allowlist.
var ErrCommandNotAllowed = errors.New("command not allowed")

// DefaultAllowedCommands are the binaries remediation steps may invoke.
var DefaultAllowedCommands = []string{
	"systemctl", "journalctl", "ps", "top", "df", "du", "free", "ls", "cat", "grep",
	"find", "which", "kubectl", "docker", "gluster", "mount", "umount",
	"ping", "curl", "wget", "ssh", "scp", "rsync", "tar", "gzip",
	"ip", "uptime", "swapon", "apt-get",
}

// Actuator runs a single resolved command and returns its output.
type Actuator interface {
	Run(ctx context.Context, command string) (string, error)
}

// DryRun logs commands without running them. Every command succeeds.
type DryRun struct {
	Logger *slog.Logger
}

// Run implements Actuator.
func (d DryRun) Run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry-run remediation command", "command", command)
	return "dry-run: " + command, nil
}

// CommandActuator executes allowlisted binaries directly, without a shell.
type CommandActuator struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewCommandActuator builds an actuator for the given allowlist; an empty
// list selects DefaultAllowedCommands.
func NewCommandActuator(allowed []string, logger *slog.Logger) *CommandActuator {
	if len(allowed) == 0 {
		allowed = DefaultAllowedCommands
	}
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return &CommandActuator{allowed: set, logger: logger}
}

// Allowed reports whether command starts with an allowlisted binary.
func (a *CommandActuator) Allowed(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	_, ok := a.allowed[fields[0]]
	return ok
}

// Run implements Actuator.
func (a *CommandActuator) Run(ctx context.Context, command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", errors.New("empty command")
	}
	if !a.Allowed(command) {
		return "", fmt.Errorf("%w: %s", ErrCommandNotAllowed, fields[0])
	}

	a.logger.Info("running remediation command", "command", command)
	out, err := exec.CommandContext(ctx, fields[0], fields[1:]...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, ctxErr
		}
		if output != "" {
			return output, fmt.Errorf("%w: %s", err, lastLine(output))
		}
		return output, err
	}
	return output, nil
}

func lastLine(output string) string {
	if i := strings.LastIndexByte(output, '\n'); i >= 0 {
		return output[i+1:]
	}
	return output
}
