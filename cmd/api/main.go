package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/liwaywai/lending-api/internal/config"
	"github.com/liwaywai/lending-api/internal/domain/admin"
	"github.com/liwaywai/lending-api/internal/domain/auth"
	"github.com/liwaywai/lending-api/internal/domain/claims"
	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/domain/profile"
	"github.com/liwaywai/lending-api/internal/domain/realtime"
	"github.com/liwaywai/lending-api/internal/domain/share"
	"github.com/liwaywai/lending-api/internal/domain/user"
	"github.com/liwaywai/lending-api/internal/domain/wallet"
	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/database"
	"github.com/liwaywai/lending-api/internal/pkg/jwt"
	"github.com/liwaywai/lending-api/internal/pkg/logger"
	pkgresponse "github.com/liwaywai/lending-api/internal/pkg/response"
	"github.com/liwaywai/lending-api/internal/pkg/scoring"
	"github.com/liwaywai/lending-api/internal/pkg/storage"
)

const version = "1.0.0"

// handlers is everything the router mounts
type handlers struct {
	auth     *auth.Handler
	profile  *profile.Handler
	level    *level.Handler
	loan     *loan.Handler
	share    *share.Handler
	wallet   *wallet.Handler
	realtime *realtime.Handler
	admin    *admin.Handler
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting lending API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applied, err := database.Migrate(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("Migrations applied")
	}

	// Redis is optional: without it the policy cache is off and realtime stays local.
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, continuing without it")
		redisClient = nil
	}
	defer database.CloseRedis(redisClient)

	archive, err := storage.New(storage.Config{
		Driver:      cfg.ArchiveDriver,
		LocalPath:   cfg.ArchiveLocalPath,
		S3Endpoint:  cfg.S3Endpoint,
		S3Region:    cfg.S3Region,
		S3Bucket:    cfg.S3Bucket,
		S3AccessKey: cfg.S3AccessKey,
		S3SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create archive storage")
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Policy ----------
	policyService := policy.NewService(policy.NewRepository(db), policy.NewCache(redisClient, cfg.PolicyCacheTTL))
	if err := policyService.EnsureDefault(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to install default policy")
	}
	if cfg.PolicySeedFile != "" {
		seedPolicy(ctx, policyService, cfg.PolicySeedFile)
	}

	// ---------- Realtime ----------
	hub := realtime.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	h, reaper := wire(cfg, db, jwtService, policyService, hub, archive)

	if cfg.ShareReaperEnabled {
		go reaper.Start(ctx, cfg.ShareReaperInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, jwtService, h, healthCheck(db, redisClient)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// wire builds repositories, services and handlers. Lock order across services
// is wallet, loan, repayment, level.
func wire(cfg *config.Config, db *sqlx.DB, jwtService *jwt.Service, policies *policy.Service, hub *realtime.Hub, archive storage.Storage) (handlers, *share.Reaper) {
	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	profileRepo := profile.NewRepository(db)
	levelRepo := level.NewRepository(db)
	loanRepo := loan.NewRepository(db)
	shareRepo := share.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	adminRepo := admin.NewRepository(db)

	// ---------- Services ----------
	scorer := scoring.NewClient(cfg.ScoringServiceURL, cfg.ScoringTimeout, "lending-api/"+version)

	levelService := level.NewService(levelRepo, policies)
	loanService := loan.NewService(loanRepo, levelService, policies, scorer, hub)
	walletService := wallet.NewService(walletRepo, loanService, loanRepo, levelRepo, hub)
	profileService := profile.NewService(profileRepo)
	authService := auth.NewService(db, userRepo, profileRepo, levelService, levelRepo, walletRepo, jwtService)

	builder := claims.NewBuilder(levelService, loanService, policies)
	signer := claims.NewSigner(cfg.ClaimsSigningSecret, cfg.ClaimsIssuer)
	shareService := share.NewService(shareRepo, builder, levelService, signer, hub, cfg.FrontendURL)

	adminService := admin.NewService(adminRepo, admin.Deps{
		Loans:    loanService,
		Users:    userRepo,
		Profiles: profileRepo,
		Levels:   levelService,
		Shares:   shareService,
		Wallets:  walletService,
		Policies: policies,
	})

	// ---------- Handlers ----------
	h := handlers{
		auth:     auth.NewHandler(authService),
		profile:  profile.NewHandler(profileService),
		level:    level.NewHandler(levelService),
		loan:     loan.NewHandler(loanService),
		share:    share.NewHandler(shareService),
		wallet:   wallet.NewHandler(walletService),
		realtime: realtime.NewHandler(hub, cfg.AllowedOrigins),
		admin:    admin.NewHandler(adminService),
	}
	return h, share.NewReaper(shareRepo, archive, cfg.ShareRetention)
}

func newRouter(cfg *config.Config, jwtService *jwt.Service, h handlers, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	authMiddleware := middleware.Auth(jwtService)

	r.Get("/health", health)
	if cfg.IsDevelopment() {
		r.Handle("/debug/vars", expvar.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint (before Compress)
		r.Mount("/ws", h.realtime.Routes(middleware.AuthWebSocket(jwtService)))

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))

			r.Mount("/auth", h.auth.Routes(authMiddleware))
			r.Mount("/profile", h.profile.Routes(authMiddleware))
			r.Mount("/level", h.level.Routes(authMiddleware))
			r.Mount("/loans", h.loan.Routes(authMiddleware))
			r.Mount("/shares", h.share.Routes(authMiddleware))
			r.Mount("/wallet", h.wallet.Routes(authMiddleware))
			r.Mount("/rp", h.share.RPRoutes())
		})
	})

	r.Mount("/api/admin", h.admin.Routes(authMiddleware, h.share.Audit))

	return r
}

func healthCheck(db *sqlx.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "version": version, "database": "ok", "redis": "disabled"}
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status["status"], status["database"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = "unreachable"
			}
		}
		pkgresponse.JSON(w, code, status)
	}
}

// seedPolicy publishes and activates the version in path unless it already exists
func seedPolicy(ctx context.Context, policies *policy.Service, path string) {
	v, params, err := policy.LoadSeedFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read policy seed")
	}
	if _, err := policies.Publish(ctx, v, params, nil, true); err != nil {
		if errors.Is(err, policy.ErrVersionExists) {
			log.Info().Str("policy_version", v).Msg("Policy seed already published")
			return
		}
		log.Fatal().Err(err).Str("file", path).Msg("Failed to publish policy seed")
	}
}
