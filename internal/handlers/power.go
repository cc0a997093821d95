package handlers

import (
	"context"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// RegisterPower wires power_reboot / power_shutdown / power_sleep
// (grounded on handlers/power.rs). The handlers run systemctl directly;
// a confirmation is collected first only when the policy lists the
// action in require_confirmation_for. There is no built-in entry, so
// an empty policy allows all three.
func RegisterPower(r *registry.Registry, d Deps) {
	r.Register("power_reboot", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "systemctl", "reboot"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Rebooting.")
	})

	r.Register("power_shutdown", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "systemctl", "poweroff"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Shutting down.")
	})

	r.Register("power_sleep", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "systemctl", "suspend"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Sleeping.")
	})
}
