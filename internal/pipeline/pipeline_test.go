package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/audit"
	"github.com/Mindburn-Labs/helm-broker/internal/confirm"
	"github.com/Mindburn-Labs/helm-broker/internal/nlbridge"
	"github.com/Mindburn-Labs/helm-broker/internal/policy"
	"github.com/Mindburn-Labs/helm-broker/internal/ratelimit"
	"github.com/Mindburn-Labs/helm-broker/internal/registry"
	"github.com/Mindburn-Labs/helm-broker/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, cfg policy.Config) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	chain, err := audit.Open(filepath.Join(dir, "audit.jsonl"), filepath.Join(dir, "state.json"), 0, nil)
	require.NoError(t, err)

	store, err := confirm.NewStore(filepath.Join(dir, "confirm"), 5*time.Second, nil)
	require.NoError(t, err)

	reg := registry.New()
	reg.Register("package_install", func(ctx context.Context, req wire.Request) wire.Response {
		return wire.OK(req.Name, "installed")
	})
	reg.Register("open_url", func(ctx context.Context, req wire.Request) wire.Response {
		return wire.OK(req.Name, "opened")
	})

	return &Pipeline{
		Registry:  reg,
		Policy:    policy.New(cfg),
		RateLimit: ratelimit.New(cfg.RateLimitPerMinuteDefault, cfg.RateLimitPerMinuteOverrides),
		Confirm:   store,
		Audit:     chain,
		Allowlist: AllowlistConfig{
			OpenURLAllowedDomains: cfg.OpenURLAllowedDomains,
		},
	}
}

func TestHandlePingLikeAllowPassesThrough(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 10})
	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "package_install", Payload: "curl"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestHandleUnsupportedVersion(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 10})
	resp := p.Handle(context.Background(), wire.Request{Version: 2, Name: "package_install"})
	require.Equal(t, wire.StatusError, resp.Status)
}

func TestHandleAllowlistDeny(t *testing.T) {
	p := newTestPipeline(t, policy.Config{
		RateLimitPerMinuteDefault: 10,
		OpenURLAllowedDomains:     []string{"example.com"},
	})
	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "open_url", Payload: "https://evil.com"})
	require.Equal(t, wire.StatusDeny, resp.Status)
}

func TestHandleRateLimited(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 1})
	first := p.Handle(context.Background(), wire.Request{Version: 1, Name: "package_install", Payload: "curl"})
	require.Equal(t, wire.StatusOK, first.Status)

	second := p.Handle(context.Background(), wire.Request{Version: 1, Name: "package_install", Payload: "curl"})
	require.Equal(t, wire.StatusDeny, second.Status)
}

func TestHandlePolicyDeny(t *testing.T) {
	p := newTestPipeline(t, policy.Config{
		RateLimitPerMinuteDefault: 10,
		DenyActions:               []string{"package_install"},
	})
	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "package_install", Payload: "curl"})
	require.Equal(t, wire.StatusDeny, resp.Status)
}

func TestHandleRequiresConfirmationThenConfirm(t *testing.T) {
	p := newTestPipeline(t, policy.Config{
		RateLimitPerMinuteDefault: 10,
		RequireConfirmActions:     []string{"package_install"},
	})

	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "package_install", Payload: "docker"})
	require.Equal(t, wire.StatusConfirm, resp.Status)
	require.NotEmpty(t, resp.ConfirmationID)

	confirmResp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "confirm", Payload: resp.ConfirmationID})
	require.Equal(t, wire.StatusOK, confirmResp.Status)

	replay := p.Handle(context.Background(), wire.Request{Version: 1, Name: "confirm", Payload: resp.ConfirmationID})
	require.Equal(t, wire.StatusError, replay.Status)
}

func TestHandleUnknownHandler(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 10})
	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "does_not_exist"})
	require.Equal(t, wire.StatusError, resp.Status)
}

func TestHandleNaturalLanguageTranslatesAndDispatches(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 10})
	p.NLBridge = &nlbridge.Bridge{
		Runner: fakeNLRunner{output: `{"name":"open_url","payload":"https://example.com"}`},
		PrimaryPath: "primary",
	}

	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "natural_language", Payload: "open example dot com"})
	require.Equal(t, wire.StatusOK, resp.Status)
}

func TestHandleNaturalLanguageFailureSurfacesAsError(t *testing.T) {
	p := newTestPipeline(t, policy.Config{RateLimitPerMinuteDefault: 10})
	p.NLBridge = &nlbridge.Bridge{
		Runner: fakeNLRunner{err: true},
		PrimaryPath: "primary",
	}

	resp := p.Handle(context.Background(), wire.Request{Version: 1, Name: "natural_language", Payload: "garbage"})
	require.Equal(t, wire.StatusError, resp.Status)
}

type fakeNLRunner struct {
	output string
	err    bool
}

func (f fakeNLRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if f.err {
		return "", context.DeadlineExceeded
	}
	return f.output, nil
}
