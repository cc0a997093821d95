// Package pipeline implements the broker's request-lifecycle state
// machine: Received -> Translated -> AllowlistChecked -> RateLimited ->
// PolicyDecided -> {Dispatched | Queued | Denied | Errored}, with every
// terminal state passing through Audited before a response is returned
// (spec §4.7).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/helm-broker/internal/audit"
	"github.com/Mindburn-Labs/helm-broker/internal/confirm"
	"github.com/Mindburn-Labs/helm-broker/internal/events"
	"github.com/Mindburn-Labs/helm-broker/internal/nlbridge"
	"github.com/Mindburn-Labs/helm-broker/internal/policy"
	"github.com/Mindburn-Labs/helm-broker/internal/ratelimit"
	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/validate"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"github.com/google/uuid"
)

// confirmAction is the special-cased action that bypasses allowlist
// and rate-limit checks and resolves directly against the confirmation
// store (spec §4.7).
const confirmAction = "confirm"

// naturalLanguageAction triggers the NL bridge translation step.
const naturalLanguageAction = "natural_language"

// AllowlistConfig carries the policy-sourced allowlists §4.3 checks
// against. It is a narrow view of policy.Config so the pipeline does
// not need to reach back into the engine for raw constraint data.
type AllowlistConfig struct {
	OpenURLAllowedDomains    []string
	OpenAppAllowed           []string
	ListFilesAllowedPrefixes []string
}

// Pipeline wires every component a request passes through.
type Pipeline struct {
	Registry  *registry.Registry
	Policy    *policy.Engine
	RateLimit *ratelimit.Limiter
	Confirm   *confirm.Store
	Audit     *audit.Chain
	NLBridge  *nlbridge.Bridge
	Allowlist AllowlistConfig
	Log       *slog.Logger
}

func (p *Pipeline) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// Handle runs req through the full state machine and returns the
// response that should be written back to the caller. It never panics:
// every failure path resolves to a wire.Response.
func (p *Pipeline) Handle(ctx context.Context, req wire.Request) wire.Response {
	if req.Name == confirmAction {
		return p.handleConfirm(ctx, req)
	}

	if req.Name == naturalLanguageAction {
		return p.handleNaturalLanguage(ctx, req)
	}

	return p.runFromTranslated(ctx, req)
}

// handleConfirm bypasses allowlist/rate-limit (spec §4.7 "confirm
// action (special)") and resolves directly.
func (p *Pipeline) handleConfirm(ctx context.Context, req wire.Request) wire.Response {
	stored, err := p.Confirm.Resolve(req.Payload)
	if err != nil {
		resp := wire.Errorf(confirmAction, err.Error())
		p.audit(confirmAction, resp, req, events.Expired)
		return resp
	}

	decision, reason := p.Policy.Evaluate(stored.Name, stored.Payload)
	if decision == policy.Deny {
		resp := wire.Deny(stored.Name, reason)
		p.audit(stored.Name, resp, stored, events.Denied)
		return resp
	}

	resp := p.Registry.Dispatch(ctx, stored)
	p.audit(stored.Name, resp, stored, events.Dispatched)
	return resp
}

// handleNaturalLanguage invokes the NL bridge and, on success, restarts
// the pipeline with the translated request (spec §4.7).
func (p *Pipeline) handleNaturalLanguage(ctx context.Context, req wire.Request) wire.Response {
	// correlationID ties the translation attempt to its downstream
	// dispatch in logs; it never reaches the wire or the audit record,
	// which are keyed by the chain's own sequence number instead.
	correlationID := uuid.NewString()

	if p.NLBridge == nil {
		resp := wire.Errorf(naturalLanguageAction, "natural language bridge not configured")
		p.audit(naturalLanguageAction, resp, req, events.NLFailed)
		return resp
	}

	parsed, err := p.NLBridge.Translate(ctx, req.Payload)
	if err != nil {
		p.log().Warn("nl translation failed", "correlation_id", correlationID, "error", err)
		resp := wire.Errorf(naturalLanguageAction, "unable to parse natural language request")
		p.audit(naturalLanguageAction, resp, req, events.NLFailed)
		return resp
	}
	p.log().Debug("nl translation succeeded", "correlation_id", correlationID, "translated_action", parsed.Name)

	translated := wire.Request{Version: parsed.Version, Name: parsed.Name, Payload: parsed.Payload}
	if translated.Version == 0 {
		translated.Version = wire.ProtocolVersion
	}
	return p.runFromTranslated(ctx, translated)
}

// runFromTranslated implements Translated -> ... -> terminal for any
// request, whether it arrived directly or via NL translation.
func (p *Pipeline) runFromTranslated(ctx context.Context, req wire.Request) wire.Response {
	if !wire.SupportedVersion(req.Version) {
		resp := wire.Errorf(req.Name, fmt.Sprintf("unsupported protocol version %d", req.Version))
		p.audit(req.Name, resp, req, events.Errored)
		return resp
	}

	if ok, reason := p.checkAllowlist(req); !ok {
		resp := wire.Deny(req.Name, reason)
		p.audit(req.Name, resp, req, events.Denied)
		return resp
	}

	if ok, reason := p.RateLimit.Allow(req.Name); !ok {
		resp := wire.Deny(req.Name, reason)
		p.audit(req.Name, resp, req, events.RateLimited)
		return resp
	}

	decision, reason := p.Policy.Evaluate(req.Name, req.Payload)
	switch decision {
	case policy.Deny:
		resp := wire.Deny(req.Name, reason)
		p.audit(req.Name, resp, req, events.Denied)
		return resp
	case policy.RequireConfirmation:
		id, err := p.Confirm.Queue(req)
		if err != nil {
			resp := wire.Errorf(req.Name, err.Error())
			p.audit(req.Name, resp, req, events.Errored)
			return resp
		}
		resp := wire.Confirm(req.Name, id)
		p.audit(req.Name, resp, req, events.Queued)
		return resp
	default:
		resp := p.Registry.Dispatch(ctx, req)
		p.audit(req.Name, resp, req, events.Dispatched)
		return resp
	}
}

// checkAllowlist runs the per-action §4.3 validators. Actions with no
// external-surface payload pass through unchecked.
func (p *Pipeline) checkAllowlist(req wire.Request) (bool, string) {
	switch req.Name {
	case "open_url":
		return validate.OpenURL(req.Payload, p.Allowlist.OpenURLAllowedDomains)
	case "open_app":
		return validate.OpenApp(req.Payload, p.Allowlist.OpenAppAllowed)
	case "list_files":
		return validate.ListFiles(req.Payload, p.Allowlist.ListFilesAllowedPrefixes)
	default:
		return true, ""
	}
}

// audit appends exactly one action_outcome record per terminal state,
// per spec §4.6. Audit failures are logged, never returned to the
// caller: the response already computed is authoritative.
func (p *Pipeline) audit(action string, resp wire.Response, req wire.Request, outcome events.Outcome) {
	if p.Audit == nil {
		return
	}
	_, err := p.Audit.AppendOutcome(action, resp.Status, resp.Message, req.Version, resp.ConfirmationID != "", req.Payload)
	if err != nil {
		p.log().Error("audit append failed", "outcome", outcome.String(), "action", action, "error", err)
	}
}
