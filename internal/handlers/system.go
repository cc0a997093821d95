package handlers

import (
	"context"
	"os"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// immutableMarker is the file the Rust original checks to detect an
// immutable-partition image before attempting a package-manager-based
// system update (system.rs).
const immutableMarker = "/etc/helm-broker/immutable"

// RegisterSystem wires system_update (grounded on handlers/system.rs).
func RegisterSystem(r *registry.Registry, d Deps) {
	r.Register("system_update", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := os.Stat(immutableMarker); err == nil {
			return fail(req.Name, "system_update is disabled on immutable images")
		}

		if _, err := d.run(ctx, "apt-get", "update"); err != nil {
			return fail(req.Name, err.Error())
		}
		if _, err := d.run(ctx, "apt-get", "upgrade", "-y"); err != nil {
			return fail(req.Name, err.Error())
		}
		// flatpak update failures are non-fatal: not every host has flatpak.
		d.run(ctx, "flatpak", "update", "-y")

		return ok(req.Name, "System updated.")
	})
}
