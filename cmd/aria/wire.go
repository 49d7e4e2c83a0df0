package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ariarun/aria/internal/breaker"
	"github.com/ariarun/aria/internal/config"
	"github.com/ariarun/aria/internal/kernel"
	"github.com/ariarun/aria/internal/logging"
	"github.com/ariarun/aria/internal/permission"
	"github.com/ariarun/aria/internal/registry"
	"github.com/ariarun/aria/internal/router"
	"github.com/ariarun/aria/internal/router/providers"
	"github.com/ariarun/aria/internal/sandbox"
	"github.com/ariarun/aria/internal/scrub"
	"github.com/ariarun/aria/internal/store"
	"github.com/ariarun/aria/pkg/types"
)

// app bundles the constructed runtime graph and its owned resources, ready
// for the Kernel to drive a session or for the audit subcommands to
// inspect the store directly.
type app struct {
	cfg    *config.Config
	kernel *kernel.Kernel
	store  *store.Store
	logger *slog.Logger

	logCloser io.Closer
}

// buildApp wires the composition root: config -> logging -> providers ->
// router -> registry -> sandbox -> store -> kernel. manifestsDir is scanned
// for tool manifests; it is not an error for it to be empty.
func buildApp(manifestsDir string) (*app, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, logCloser, err := logging.Open(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	primary, fallback, err := buildProviders(cfg)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("providers: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{})
	r := router.New(primary, fallback, breakers)

	reg := registry.New()
	if manifestsDir != "" {
		if mErr := reg.LoadDir(manifestsDir); mErr != nil {
			logger.Warn("manifest directory load failed", "dir", manifestsDir, "error", mErr.Error())
		}
	}

	sb := sandbox.New(reg)

	scrubber := scrub.New([]string{cfg.AnthropicAPIKey})
	auditStore, sErr := store.Open(cfg.DBPath, scrubber)
	if sErr != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("store: %w", sErr)
	}

	grant := permission.NewGrant(defaultGrantedPermissions(), nil)

	k := kernel.New(r, reg, sb, scrubber, auditStore, grant, defaultSystemPrompt, cfg.PrimaryModel)

	return &app{
		cfg:       cfg,
		kernel:    k,
		store:     auditStore,
		logger:    logger,
		logCloser: logCloser,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

const defaultSystemPrompt = "You are ARIA, a local-first autonomous agent. Use the available tools to complete the given task, then finalize with a direct textual answer."

// defaultGrantedPermissions grants every declared permission; the CLI has no
// per-run permission flags yet, so a session may exercise any registered
// tool's declared permission set.
func defaultGrantedPermissions() []types.Permission {
	return []types.Permission{
		types.PermissionFilesystemRead,
		types.PermissionFilesystemWrite,
		types.PermissionNetwork,
		types.PermissionSubprocess,
	}
}

func buildProviders(cfg *config.Config) (router.Provider, router.Provider, error) {
	switch cfg.PrimaryProvider {
	case config.ProviderOllama:
		p, err := providers.NewOllama(providers.OllamaConfig{DefaultModel: cfg.PrimaryModel})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case config.ProviderGoogle:
		p, err := providers.NewGoogle(context.Background(), providers.GoogleConfig{
			APIKey:       cfg.GoogleAPIKey,
			DefaultModel: cfg.PrimaryModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	case config.ProviderBedrock:
		p, err := providers.NewBedrock(context.Background(), providers.BedrockConfig{
			Region:       cfg.BedrockRegion,
			DefaultModel: cfg.PrimaryModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		p, err := providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:       cfg.AnthropicAPIKey,
			DefaultModel: cfg.PrimaryModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	}
}
