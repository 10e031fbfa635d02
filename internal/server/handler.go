package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jacksonlee411/fleet-console/internal/routing"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/infrastructure/persistence"
	"github.com/jacksonlee411/fleet-console/modules/access/presentation/controllers"
	"github.com/jacksonlee411/fleet-console/modules/access/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const entrypoint = "device"

type HandlerOptions struct {
	// Pool backs the postgres store. Required when Config.Store is postgres.
	Pool *pgxpool.Pool
	// Memory overrides the seeded in-memory store.
	Memory *persistence.MemoryStore
	Logger *zerolog.Logger
	Now    func() time.Time
}

type accessStores struct {
	rules   ports.RuleStore
	tenants ports.TenantDirectory
	devices ports.DeviceDirectory
	logs    ports.VerificationLogStore
	audit   ports.AuditStore
}

func NewHandlerWithOptions(cfg Config, opts HandlerOptions) (http.Handler, error) {
	allowlistPath, err := cfg.allowlistPath()
	if err != nil {
		return nil, err
	}
	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, entrypoint)
	if err != nil {
		return nil, err
	}

	az, err := loadAuthorizer(cfg)
	if err != nil {
		return nil, err
	}

	stores, err := buildStores(cfg, opts)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	svc := services.NewAccessService(stores.rules, stores.tenants, stores.devices, stores.logs, services.AccessServiceOptions{
		TimeGap: cfg.TimeGap,
		Fanout:  cfg.Fanout,
		Now:     now,
	})
	access := controllers.AccessController{
		Capability: currentCapability,
		Engine:     svc,
		Audit:      services.NewAuditor(stores.audit, now),
	}

	router := routing.NewRouter(classifier)
	routes := []struct {
		method string
		path   string
		h      http.Handler
	}{
		{http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})},
		{http.MethodGet, "/metrics", promhttp.Handler()},
		{http.MethodGet, "/device/api/access", http.HandlerFunc(access.HandleAccessAPI)},
		{http.MethodPost, "/device/api/verifications", http.HandlerFunc(access.HandleVerificationsAPI)},
	}
	for _, rt := range routes {
		if err := router.Handle(rt.method, rt.path, rt.h); err != nil {
			return nil, err
		}
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger.Info().
		Str("store", cfg.Store).
		Str("authz_mode", string(az.Mode())).
		Dur("time_gap", cfg.TimeGap).
		Msg("device access handler ready")

	var h http.Handler = router
	h = withAuthz(classifier, az, h)
	h = withAuthn(classifier, tokenVerifier{secret: cfg.JWTSecret}, h)
	h = withRequestLog(logger, classifier, h)
	return h, nil
}

func buildStores(cfg Config, opts HandlerOptions) (accessStores, error) {
	switch cfg.Store {
	case StoreMemory:
		mem := opts.Memory
		if mem == nil {
			var err error
			mem, err = persistence.NewMemoryStore()
			if err != nil {
				return accessStores{}, err
			}
			if cfg.SeedPath != "" {
				seed, err := persistence.LoadSeedFile(cfg.SeedPath)
				if err != nil {
					return accessStores{}, err
				}
				if err := seed.Apply(mem); err != nil {
					return accessStores{}, err
				}
			}
		}
		return accessStores{rules: mem, tenants: mem, devices: mem, logs: mem, audit: mem}, nil
	case StorePostgres:
		if opts.Pool == nil {
			return accessStores{}, errors.New("server: postgres store requires a pool")
		}
		pg := persistence.NewAccessPGStore(opts.Pool)
		return accessStores{
			rules:   pg,
			tenants: pg,
			devices: pg,
			logs:    persistence.NewVerificationPGStore(opts.Pool),
			audit:   pg,
		}, nil
	default:
		return accessStores{}, errors.New("server: unknown store " + cfg.Store)
	}
}
