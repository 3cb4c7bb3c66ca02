package cli

import (
	"context"

	"missioncontrol/internal/account"
	"missioncontrol/internal/backend"
	"missioncontrol/internal/cache"
	"missioncontrol/internal/common"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/formatters"
)

// localIdentity is used by CLI commands when auth.devIdentity is unset
const localIdentity = "local"

// accounts bundles the gate with the resources behind it
type accounts struct {
	gate   *account.Gate
	store  account.Store
	redis  *cache.RedisCache
	logger *errors.Logger
}

// openAccounts opens the account store and the credit display cache
func openAccounts(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*accounts, error) {
	store, err := account.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &accounts{store: store, logger: logger}
	var credits cache.JSON = cache.NewMemory()
	if cfg.Redis.Enabled {
		rc, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			// The cache only speeds up balance reads; the store stays authoritative
			logger.LogError(err, "Redis unavailable, using in-process credit cache", "addr", cfg.Redis.Addr)
		} else {
			a.redis = rc
			credits = rc
		}
	}
	a.gate = account.NewGate(store, credits, cfg, logger)
	return a, nil
}

func (a *accounts) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close account store", "error", err)
	}
}

// cliIdentity is who local commands act as
func cliIdentity(cfg *config.Config) account.Identity {
	if id, ok := account.NewVerifier(cfg.Auth).DevIdentity(); ok {
		if id.Email == "" {
			id.Email = cfg.Mission.DefaultUserEmail
		}
		id.Name = cfg.Mission.DefaultUserName
		return id
	}
	return account.Identity{
		ID:    localIdentity,
		Email: cfg.Mission.DefaultUserEmail,
		Name:  cfg.Mission.DefaultUserName,
	}
}

func newBackendClient(cfg *config.Config, logger *errors.Logger) *backend.Client {
	return backend.NewClient(cfg, logger)
}

func newOutputHandler(logger *errors.Logger) *common.OutputHandler {
	return common.NewOutputHandler(logger, formatters.NewFormatterRegistry())
}
