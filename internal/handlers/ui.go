package handlers

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/validate"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// RegisterUI wires open_url / open_app / list_files (grounded on
// handlers/ui.rs). Policy-level allowlist checks already ran in the
// pipeline (spec §4.3); the validators here are re-run as a second,
// handler-local defense rather than trusted blindly.
func RegisterUI(r *registry.Registry, d Deps) {
	r.Register("open_url", func(ctx context.Context, req wire.Request) wire.Response {
		if safe, reason := validate.OpenURL(req.Payload, nil); !safe {
			return fail(req.Name, reason)
		}
		if _, err := d.run(ctx, "xdg-open", req.Payload); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Opening URL.")
	})

	r.Register("open_app", func(ctx context.Context, req wire.Request) wire.Response {
		if safe, reason := validate.OpenApp(req.Payload, nil); !safe {
			return fail(req.Name, reason)
		}
		if out, err := d.run(ctx, "gtk-launch", req.Payload); err == nil {
			_ = out
			return ok(req.Name, "Launching "+req.Payload+".")
		}
		if out, err := d.run(ctx, "kstart5", req.Payload); err == nil {
			_ = out
			return ok(req.Name, "Launching "+req.Payload+".")
		}
		if _, err := d.run(ctx, "xdg-open", req.Payload); err != nil {
			return fail(req.Name, fmt.Sprintf("unable to launch %s: %v", req.Payload, err))
		}
		return ok(req.Name, "Launching "+req.Payload+".")
	})

	r.Register("list_files", func(ctx context.Context, req wire.Request) wire.Response {
		entries, err := os.ReadDir(req.Payload)
		if err != nil {
			return fail(req.Name, err.Error())
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return ok(req.Name, strings.Join(names, ", "))
	})
}
