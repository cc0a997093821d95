// Package policy implements the broker's declarative security policy
// engine: allow / deny / confirm decisions over action x payload (spec
// §4.2).
package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Decision is the outcome of evaluating a request against policy.
type Decision int

const (
	Allow Decision = iota
	RequireConfirmation
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireConfirmation:
		return "require_confirmation"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// CustomRule is an optional CEL-expressed rule consulted only as a
// tie-breaker after the four mandatory spec §4.2 rules — see
// SPEC_FULL.md §3 and DESIGN.md's policy-engine entry.
type CustomRule struct {
	Expression string   `json:"expression"`
	Result     Decision `json:"-"`
	// ResultName is the JSON-facing spelling of Result ("deny",
	// "require_confirmation"). Evaluate reads only Result, and
	// config.LoadPolicy does not read custom rules from the policy
	// file, so nothing converts ResultName into Result.
	ResultName string `json:"result"`
}

// Config is the declarative policy loaded from the policy file
// (spec §6's "constraints" object).
type Config struct {
	Mode string

	DenyActions           []string
	RequireConfirmActions []string

	PackageInstallDeny    []string
	PackageInstallConfirm []string

	OpenURLAllowedDomains      []string
	OpenAppAllowed             []string
	ListFilesAllowedPrefixes   []string

	RateLimitPerMinuteDefault   int
	RateLimitPerMinuteOverrides map[string]int

	CustomRules []CustomRule
}

// Engine evaluates requests against a Config. Evaluation is pure: the
// config is read-only for the lifetime of the engine, matching spec
// §4.2's "policy is loaded once at startup".
type Engine struct {
	cfg Config

	mu       sync.Mutex
	celEnv   *cel.Env
	celCache map[string]cel.Program
}

// New builds an Engine. If cfg contains CustomRules, a CEL environment
// is lazily compiled per expression and cached.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, celCache: make(map[string]cel.Program)}
}

// Evaluate applies the spec §4.2 decision rules in order, first match
// wins: action deny list, then (for package_install) package-level deny/
// confirm, then action confirm list, then the optional CEL tie-breaker,
// then Allow.
func (e *Engine) Evaluate(action, payload string) (Decision, string) {
	for _, a := range e.cfg.DenyActions {
		if a == action {
			return Deny, fmt.Sprintf("action '%s' denied by policy", action)
		}
	}

	if action == "package_install" {
		pkgs := splitPackages(payload)
		for _, p := range pkgs {
			for _, denied := range e.cfg.PackageInstallDeny {
				if p == denied {
					return Deny, fmt.Sprintf("package '%s' denied by policy", p)
				}
			}
		}
		for _, p := range pkgs {
			for _, confirm := range e.cfg.PackageInstallConfirm {
				if p == confirm {
					return RequireConfirmation, fmt.Sprintf("package '%s' requires confirmation", p)
				}
			}
		}
	}

	for _, a := range e.cfg.RequireConfirmActions {
		if a == action {
			return RequireConfirmation, fmt.Sprintf("action '%s' requires confirmation", action)
		}
	}

	if d, reason, ok := e.evaluateCustomRules(action, payload); ok {
		return d, reason
	}

	return Allow, ""
}

// splitPackages splits a comma-separated package_install payload,
// trimming whitespace and dropping empties (spec §4.2 rule 2).
func splitPackages(payload string) []string {
	parts := strings.Split(payload, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) evaluateCustomRules(action, payload string) (Decision, string, bool) {
	if len(e.cfg.CustomRules) == 0 {
		return Allow, "", false
	}
	if err := e.ensureCELEnv(); err != nil {
		return Allow, "", false
	}

	input := map[string]interface{}{"action": action, "payload": payload}
	for _, rule := range e.cfg.CustomRules {
		prog, err := e.compileCached(rule.Expression)
		if err != nil {
			continue
		}
		out, _, err := prog.Eval(map[string]interface{}{"input": input})
		if err != nil {
			continue
		}
		matched, ok := out.Value().(bool)
		if ok && matched {
			return rule.Result, fmt.Sprintf("custom rule matched: %s", rule.Expression), true
		}
	}
	return Allow, "", false
}

func (e *Engine) ensureCELEnv() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.celEnv != nil {
		return nil
	}
	env, err := cel.NewEnv(cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return err
	}
	e.celEnv = env
	return nil
}

func (e *Engine) compileCached(expr string) (cel.Program, error) {
	e.mu.Lock()
	if p, ok := e.celCache[expr]; ok {
		e.mu.Unlock()
		return p, nil
	}
	e.mu.Unlock()

	ast, issues := e.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prog, err := e.celEnv.Program(ast)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.celCache[expr] = prog
	e.mu.Unlock()
	return prog, nil
}
