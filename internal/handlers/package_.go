package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/validate"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"golang.org/x/time/rate"
)

const maxPackagesPerRequest = 20

// installPacer throttles package-manager invocations client-side so a
// single comma-heavy payload can't hammer apt-get/flatpak back to back.
// This is advisory pacing local to this handler, distinct from the
// mandatory per-action rate limiter in internal/ratelimit (spec §4.4
// governs admission into the pipeline; this governs how fast the
// handler itself shells out once admitted).
var installPacer = rate.NewLimiter(rate.Limit(2), 2)

// RegisterPackage wires package_install / package_remove (grounded on
// handlers/package.rs). Package names are comma-separated and capped
// at maxPackagesPerRequest; each is validated before any package
// manager is invoked.
func RegisterPackage(r *registry.Registry, d Deps) {
	r.Register("package_install", func(ctx context.Context, req wire.Request) wire.Response {
		return installOrRemove(ctx, d, req, "--install")
	})
	r.Register("package_remove", func(ctx context.Context, req wire.Request) wire.Response {
		return installOrRemove(ctx, d, req, "--remove")
	})
}

func installOrRemove(ctx context.Context, d Deps, req wire.Request, mode string) wire.Response {
	names := splitAndTrim(req.Payload)
	if len(names) == 0 {
		return fail(req.Name, "no packages specified")
	}
	if len(names) > maxPackagesPerRequest {
		return fail(req.Name, fmt.Sprintf("too many packages (max %d)", maxPackagesPerRequest))
	}
	for _, n := range names {
		if !validate.PackageName(n) {
			return fail(req.Name, fmt.Sprintf("invalid package name %q", n))
		}
	}

	var errs []string
	for _, n := range names {
		if err := installPacer.Wait(ctx); err != nil {
			return fail(req.Name, err.Error())
		}
		if _, err := runPackageTool(ctx, d, mode, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", n, err))
		}
	}
	if len(errs) > 0 {
		return fail(req.Name, strings.Join(errs, "; "))
	}
	verb := "installed"
	if mode == "--remove" {
		verb = "removed"
	}
	return ok(req.Name, fmt.Sprintf("Package(s) %s: %s", verb, strings.Join(names, ", ")))
}

// runPackageTool tries apt-get first and falls back to flatpak, mirroring
// the dual-source package resolution in package.rs.
func runPackageTool(ctx context.Context, d Deps, mode, name string) (string, error) {
	var aptArgs []string
	if mode == "--install" {
		aptArgs = []string{"install", "-y", name}
	} else {
		aptArgs = []string{"remove", "-y", name}
	}
	if out, err := d.run(ctx, "apt-get", aptArgs...); err == nil {
		return out, nil
	}

	var flatArgs []string
	if mode == "--install" {
		flatArgs = []string{"install", "-y", "flathub", name}
	} else {
		flatArgs = []string{"uninstall", "-y", name}
	}
	return d.run(ctx, "flatpak", flatArgs...)
}

func splitAndTrim(payload string) []string {
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
