package handlers

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/validate"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// RegisterMedia wires the set_volume / set_brightness actions
// (grounded on handlers/media.rs).
func RegisterMedia(r *registry.Registry, d Deps) {
	r.Register("set_volume", func(ctx context.Context, req wire.Request) wire.Response {
		pct, ok2 := validate.Percentage(req.Payload)
		if !ok2 {
			return fail(req.Name, "invalid volume percentage")
		}
		if _, err := d.run(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", pct)); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Volume updated.")
	})

	r.Register("set_brightness", func(ctx context.Context, req wire.Request) wire.Response {
		pct, ok2 := validate.Percentage(req.Payload)
		if !ok2 {
			return fail(req.Name, "invalid brightness percentage")
		}
		if _, err := d.run(ctx, "brightnessctl", "set", fmt.Sprintf("%d%%", pct)); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Brightness updated.")
	})
}
