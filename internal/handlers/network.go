package handlers

import (
	"context"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// RegisterNetwork wires the wifi_on / wifi_off / bluetooth_on /
// bluetooth_off actions (grounded on handlers/network.rs).
func RegisterNetwork(r *registry.Registry, d Deps) {
	r.Register("wifi_on", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "nmcli", "radio", "wifi", "on"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Wi-Fi enabled.")
	})

	r.Register("wifi_off", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "nmcli", "radio", "wifi", "off"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Wi-Fi disabled.")
	})

	r.Register("bluetooth_on", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "nmcli", "radio", "bluetooth", "on"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Bluetooth enabled.")
	})

	r.Register("bluetooth_off", func(ctx context.Context, req wire.Request) wire.Response {
		if _, err := d.run(ctx, "nmcli", "radio", "bluetooth", "off"); err != nil {
			return fail(req.Name, err.Error())
		}
		return ok(req.Name, "Bluetooth disabled.")
	})
}
