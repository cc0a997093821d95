// Command broker is the helm-broker service entrypoint: it wires
// configuration, policy, audit, confirmation, the handler registry and
// the request pipeline to the local IPC socket (spec §2, §4.9).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/helm-broker/internal/audit"
	"github.com/Mindburn-Labs/helm-broker/internal/config"
	"github.com/Mindburn-Labs/helm-broker/internal/confirm"
	"github.com/Mindburn-Labs/helm-broker/internal/handlers"
	"github.com/Mindburn-Labs/helm-broker/internal/ipc"
	"github.com/Mindburn-Labs/helm-broker/internal/nlbridge"
	"github.com/Mindburn-Labs/helm-broker/internal/pipeline"
	"github.com/Mindburn-Labs/helm-broker/internal/policy"
	"github.com/Mindburn-Labs/helm-broker/internal/ratelimit"
	"github.com/Mindburn-Labs/helm-broker/internal/registry"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint (mirrors cmd/helm/main.go's Run).
func Run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewJSONHandler(stderr, nil))
	slog.SetDefault(logger)

	svc, err := config.LoadService()
	if err != nil {
		fmt.Fprintf(stderr, "loading service config: %v\n", err)
		return 1
	}

	policyPath := os.Getenv("HELM_BROKER_POLICY_FILE")
	var policyCfg policy.Config
	if policyPath != "" {
		cfg, err := config.LoadPolicy(policyPath)
		if err != nil {
			fmt.Fprintf(stderr, "loading policy file: %v\n", err)
			return 1
		}
		policyCfg = cfg
	}

	chain, err := audit.Open(svc.AuditLogPath, svc.AuditStatePath, svc.AuditRotateBytes, nil)
	if err != nil {
		fmt.Fprintf(stderr, "opening audit chain: %v\n", err)
		return 1
	}

	confirmStore, err := confirm.NewStore(svc.ConfirmDir, svc.ConfirmTTL, nil)
	if err != nil {
		fmt.Fprintf(stderr, "opening confirmation store: %v\n", err)
		return 1
	}

	reg := registry.New()
	deps := handlers.Deps{MemoryDir: svc.MemoryDir, SkillsDir: svc.SkillsDir, Log: logger}
	handlers.RegisterMedia(reg, deps)
	handlers.RegisterMemory(reg, deps)
	handlers.RegisterNetwork(reg, deps)
	handlers.RegisterPackage(reg, deps)
	handlers.RegisterPower(reg, deps)
	handlers.RegisterSystem(reg, deps)
	handlers.RegisterTools(reg, deps)
	handlers.RegisterUI(reg, deps)

	bridge := nlbridge.New(svc.NLParserPrimary, svc.NLParserFallback)

	p := &pipeline.Pipeline{
		Registry:  reg,
		Policy:    policy.New(policyCfg),
		RateLimit: ratelimit.New(policyCfg.RateLimitPerMinuteDefault, policyCfg.RateLimitPerMinuteOverrides),
		Confirm:   confirmStore,
		Audit:     chain,
		NLBridge:  bridge,
		Allowlist: pipeline.AllowlistConfig{
			OpenURLAllowedDomains:    policyCfg.OpenURLAllowedDomains,
			OpenAppAllowed:           policyCfg.OpenAppAllowed,
			ListFilesAllowedPrefixes: policyCfg.ListFilesAllowedPrefixes,
		},
		Log: logger,
	}

	srv := &ipc.Server{
		Path:   svc.SocketPath,
		Mode:   svc.SocketMode,
		Handle: p.Handle,
		Log:    logger,
	}
	if err := srv.Listen(); err != nil {
		fmt.Fprintf(stderr, "binding socket %s: %v\n", svc.SocketPath, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := confirmStore.Reap(); err != nil {
		logger.Warn("startup reap failed", "error", err)
	}
	go runReaper(ctx, confirmStore, svc.ConfirmReapInterval, logger)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("helm-broker listening", "socket", svc.SocketPath)

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error("ipc server exited", "error", err)
		}
	}

	cancel()
	srv.Close()
	return 0
}

func runReaper(ctx context.Context, store *confirm.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Reap()
			if err != nil {
				logger.Warn("confirmation reap failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("reaped expired confirmations", "count", n)
			}
		}
	}
}
