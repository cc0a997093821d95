// Package nlbridge invokes an external intent-parser executable to
// translate a natural_language request's free text into a canonical
// wire.Request (spec §4.8).
package nlbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrBothParsersFailed is returned when the primary and fallback
// parsers both fail or produce unparseable output.
var ErrBothParsersFailed = errors.New("unable to parse natural language request")

// Runner abstracts subprocess invocation for the intent parser,
// mirroring internal/handlers.Runner so tests can avoid real
// executables.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner shells out via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Bridge translates free text into a wire request by invoking a
// primary parser and, on failure, a fallback parser (spec §4.8).
type Bridge struct {
	Runner          Runner
	PrimaryPath     string
	FallbackPath    string
	Timeout         time.Duration
}

func New(primary, fallback string) *Bridge {
	return &Bridge{Runner: ExecRunner{}, PrimaryPath: primary, FallbackPath: fallback, Timeout: 10 * time.Second}
}

// ParsedRequest is the minimal wire shape an intent parser must emit
// on stdout: {version?, name, payload?}.
type ParsedRequest struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// Translate runs the primary parser, falling back to the secondary
// parser if configured and the primary fails or its output is
// unparseable. Both parsers failing is reported as ErrBothParsersFailed.
func (b *Bridge) Translate(ctx context.Context, text string) (ParsedRequest, error) {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	if b.PrimaryPath != "" {
		if req, err := b.runParser(ctx, b.PrimaryPath, text); err == nil {
			return req, nil
		}
	}
	if b.FallbackPath != "" {
		if req, err := b.runParser(ctx, b.FallbackPath, text); err == nil {
			return req, nil
		}
	}
	return ParsedRequest{}, ErrBothParsersFailed
}

func (b *Bridge) runParser(ctx context.Context, path, text string) (ParsedRequest, error) {
	runner := b.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(ctx, path, text)
	if err != nil {
		return ParsedRequest{}, fmt.Errorf("intent parser %s failed: %w", path, err)
	}

	var req ParsedRequest
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(out)))
	if err := dec.Decode(&req); err != nil {
		return ParsedRequest{}, fmt.Errorf("intent parser %s produced unparseable output: %w", path, err)
	}
	if req.Name == "" {
		return ParsedRequest{}, fmt.Errorf("intent parser %s produced a request with no name", path)
	}
	return req, nil
}
