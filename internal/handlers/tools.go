package handlers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// toolPath resolves an external tool's path: an explicit env var wins,
// otherwise it falls back to skillsDir/defaultName, otherwise a fixed
// system default — mirroring the configurable AI_DISTRO_* tool paths
// in tools.rs while also exercising the "skills directory" env var
// spec §6 names alongside the tool-specific ones.
func toolPath(envVar, skillsDir, defaultName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if skillsDir != "" {
		return filepath.Join(skillsDir, defaultName)
	}
	return filepath.Join("/usr/libexec/helm-broker", defaultName)
}

// RegisterTools wires the day-planning / weather / calendar / email
// actions, each a thin python3 subprocess call to a configurable
// external router (grounded on handlers/tools.rs).
func RegisterTools(r *registry.Registry, d Deps) {
	r.Register("plan_day_outfit", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_DAY_PLANNER", d.SkillsDir, "day_planner.py")
		out, err := d.run(ctx, "python3", tool, req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("weather_get", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_WEATHER_TOOL", d.SkillsDir, "weather_tool.py")
		out, err := d.run(ctx, "python3", tool, req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("calendar_add_event", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_CALENDAR_ROUTER", d.SkillsDir, "calendar_router.py")
		out, err := d.run(ctx, "python3", tool, "add", req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("calendar_list_day", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_CALENDAR_ROUTER", d.SkillsDir, "calendar_router.py")
		out, err := d.run(ctx, "python3", tool, "list", req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("email_inbox_summary", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_EMAIL_ROUTER", d.SkillsDir, "email_router.py")
		out, err := d.run(ctx, "python3", tool, "summary")
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("email_search", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_EMAIL_ROUTER", d.SkillsDir, "email_router.py")
		out, err := d.run(ctx, "python3", tool, "search", req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})

	r.Register("email_draft", func(ctx context.Context, req wire.Request) wire.Response {
		tool := toolPath("HELM_BROKER_EMAIL_ROUTER", d.SkillsDir, "email_router.py")
		out, err := d.run(ctx, "python3", tool, "draft", req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, out)
	})
}
