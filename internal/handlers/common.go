// Package handlers implements the broker's action handlers: one file
// per concern (media, memory, network, package, power, system, tools,
// ui), mirroring the Rust original's handlers/*.rs module split per
// SPEC_FULL.md §4. Handler bodies are out of scope for the core per
// spec §1 — they are thin wrappers that invoke external tools through
// the Runner seam, not a reimplementation of the OS-facing side effects.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// Runner abstracts external-process invocation so handlers can be
// exercised in tests without depending on host tooling (pactl, nmcli,
// systemctl, ...). The default implementation shells out via os/exec.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner is the production Runner: os/exec.CommandContext.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", name, msg)
	}
	return strings.TrimSpace(string(out)), nil
}

// Deps bundles the dependencies every handler family needs: a Runner
// seam, a logger, and the on-disk memory directory.
type Deps struct {
	Runner    Runner
	Log       *slog.Logger
	MemoryDir string
	// SkillsDir is the base directory external tool scripts (tools.go)
	// resolve against when a tool-specific path env var is unset
	// (spec §6: "skills directory").
	SkillsDir string
	// ToolTimeout bounds external-tool subprocess invocations (spec
	// §4.8/§5: "handler subprocesses are bounded by the OS and the
	// handler's own logic").
	ToolTimeout time.Duration
}

func (d Deps) runner() Runner {
	if d.Runner != nil {
		return d.Runner
	}
	return ExecRunner{}
}

func (d Deps) timeout() time.Duration {
	if d.ToolTimeout > 0 {
		return d.ToolTimeout
	}
	return 10 * time.Second
}

func (d Deps) run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	return d.runner().Run(ctx, name, args...)
}

func (d Deps) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func ok(action, message string) wire.Response  { return wire.OK(action, message) }
func fail(action, message string) wire.Response { return wire.Errorf(action, message) }
