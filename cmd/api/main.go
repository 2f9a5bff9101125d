package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/scamnemesis/authcore/internal/attempts"
	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/background"
	"github.com/scamnemesis/authcore/internal/config"
	"github.com/scamnemesis/authcore/internal/database"
	"github.com/scamnemesis/authcore/internal/handlers"
	middlewareCustom "github.com/scamnemesis/authcore/internal/middleware"
	"github.com/scamnemesis/authcore/internal/models"
	"github.com/scamnemesis/authcore/internal/repositories"
	"github.com/scamnemesis/authcore/internal/routes"
	"github.com/scamnemesis/authcore/internal/services"
	pkgauth "github.com/scamnemesis/authcore/pkg/auth"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
)

const (
	passwordGuardPrefix     = "brute_force:"
	secondFactorGuardPrefix = "2fa:"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, cfg.Database.DSN(), cfg.Database.MigrationsDir, logger); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Attempt stores: shared Redis when configured, process memory otherwise
	var redisClient *redis.Client
	var passwordStore, secondFactorStore attempts.Store
	if cfg.Redis.Enabled() {
		redisClient, err = database.ConnectRedis(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()

		passwordStore = attempts.NewRedisStore(redisClient,
			attempts.WithRedisKeyPrefix(passwordGuardPrefix),
			attempts.WithTTL(max(cfg.BruteForce.AttemptWindow, cfg.BruteForce.LockoutDuration)))
		secondFactorStore = attempts.NewRedisStore(redisClient,
			attempts.WithRedisKeyPrefix(secondFactorGuardPrefix),
			attempts.WithTTL(max(cfg.SecondFactor.AttemptWindow, cfg.SecondFactor.LockoutDuration)))
	} else {
		logger.Warn("REDIS_URL not set, attempt counters are kept in process memory")
		passwordStore = attempts.NewMemoryStore(attempts.WithKeyPrefix(passwordGuardPrefix))
		secondFactorStore = attempts.NewMemoryStore(attempts.WithKeyPrefix(secondFactorGuardPrefix))
	}

	// Initialize repositories
	credentialRepo := repositories.NewCredentialRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	if err := ensureAdminUser(ctx, credentialRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
		os.Exit(1)
	}

	// Audit trail: log + database, plus Kafka when brokers are configured
	var publisher services.AuditPublisher
	var kafkaPublisher *services.KafkaAuditPublisher
	if cfg.Kafka.Enabled() {
		kafkaPublisher = services.NewKafkaAuditPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		publisher = kafkaPublisher
		logger.Info("audit stream enabled", slog.String("topic", cfg.Kafka.AuditTopic))
	}
	auditService := services.NewAuditService(auditLogRepo, publisher, logger)

	var notifier services.SecurityNotifier = services.NewLogNotifier(logger)
	if cfg.Email.Enabled() {
		sesNotifier, err := services.NewSESNotifier(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.AppName, logger)
		if err != nil {
			logger.Error("failed to configure SES notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Crypto primitives
	secretBox, err := auth.NewSecretBox(cfg.TOTP.EncryptionKey)
	if err != nil {
		logger.Error("failed to configure secret encryption", slog.Any("error", err))
		os.Exit(1)
	}
	if !secretBox.Enabled() {
		logger.Warn("TOTP_ENCRYPTION_KEY not set, TOTP secrets are stored unencrypted")
	}

	totpEngine, err := auth.NewTOTPEngine(auth.TOTPConfig{
		Issuer:    cfg.TOTP.Issuer,
		Step:      cfg.TOTP.Step,
		Digits:    cfg.TOTP.Digits,
		Tolerance: cfg.TOTP.Tolerance,
	})
	if err != nil {
		logger.Error("failed to configure TOTP", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(auth.TokenConfig{
		Secret:             cfg.Auth.JWTSecret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
		PendingTokenExpiry: cfg.Auth.PendingTokenExpiry,
	})

	// Brute-force guards
	passwordGuard := services.NewBruteForceGuard(passwordStore, auditService, services.BruteForceConfig{
		MaxAttempts:     cfg.BruteForce.MaxAttempts,
		LockoutDuration: cfg.BruteForce.LockoutDuration,
		AttemptWindow:   cfg.BruteForce.AttemptWindow,
		BaseDelay:       cfg.BruteForce.BaseDelay,
		MaxDelay:        cfg.BruteForce.MaxDelay,
		KeyPrefix:       passwordGuardPrefix,
	}, logger)
	secondFactorGuard := services.NewBruteForceGuard(secondFactorStore, auditService, services.BruteForceConfig{
		MaxAttempts:     cfg.SecondFactor.MaxAttempts,
		LockoutDuration: cfg.SecondFactor.LockoutDuration,
		AttemptWindow:   cfg.SecondFactor.AttemptWindow,
		KeyPrefix:       secondFactorGuardPrefix,
	}, logger)

	// Services
	sessionService := services.NewSessionService(credentialRepo, refreshTokenRepo, tokenManager, auditService, logger)
	loginService := services.NewLoginService(services.LoginServiceConfig{
		Credentials:  credentialRepo,
		Sessions:     sessionService,
		Tokens:       tokenManager,
		TOTP:         totpEngine,
		Secrets:      secretBox,
		Guard:        passwordGuard,
		SecondFactor: secondFactorGuard,
		Delayer:      auth.NewTimingDelay(cfg.Auth.MaxTimingJitter),
		Audit:        auditService,
		Logger:       logger,
	})
	twoFactorService := services.NewTwoFactorService(credentialRepo, sessionService, totpEngine, secretBox, auditService, notifier,
		services.TwoFactorConfig{SecretSize: cfg.TOTP.SecretSize, BackupCodeCount: cfg.TOTP.BackupCodeCount}, logger)
	accountService := services.NewAccountService(credentialRepo, sessionService, auditService, notifier, logger)

	// Handlers
	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}
	cookieConfig := auth.CookieConfig{
		Domain:   cfg.Cookie.Domain,
		Secure:   cfg.Cookie.Secure,
		SameSite: cfg.Cookie.SameSite,
	}

	healthChecks := []handlers.HealthCheck{{Name: "database", Check: db.HealthCheck}}
	if redisClient != nil {
		healthChecks = append(healthChecks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return database.RedisHealthCheck(ctx, redisClient) },
		})
	}

	h := routes.Handlers{
		Auth:      handlers.NewAuthHandler(loginService, sessionService, cookieConfig, ipConfig, logger),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, ipConfig, logger),
		Account:   handlers.NewAccountHandler(accountService, twoFactorService, ipConfig, logger),
		Admin:     handlers.NewAdminHandler(passwordGuard, secondFactorGuard, auditService, ipConfig, logger),
		Health:    handlers.NewHealthHandler(healthChecks...),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))

	routes.RegisterRoutes(router, h, tokenManager, middlewareCustom.AuthRateLimits{
		Login:     middlewareCustom.RateLimitConfig{Requests: cfg.RateLimit.LoginRequests, Window: cfg.RateLimit.LoginWindow},
		TwoFactor: middlewareCustom.RateLimitConfig{Requests: cfg.RateLimit.TwoFactorRequests, Window: cfg.RateLimit.TwoFactorWindow},
		Refresh:   middlewareCustom.RateLimitConfig{Requests: cfg.RateLimit.RefreshRequests, Window: cfg.RateLimit.RefreshWindow},
	}, ipConfig)

	// Maintenance
	cleanupManager := background.NewCleanupManager(logger,
		background.Task{Name: "password_attempt_sweep", Interval: cfg.BruteForce.SweepInterval, Run: passwordGuard.Sweep},
		background.Task{Name: "second_factor_attempt_sweep", Interval: cfg.SecondFactor.SweepInterval, Run: secondFactorGuard.Sweep},
		background.Task{Name: "refresh_token_cleanup", Interval: cfg.Auth.CleanupInterval, Run: sessionService.CleanupExpired},
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	cleanupCancel()
	cleanupManager.Stop()

	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first super admin if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, creds *repositories.CredentialRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := creds.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	if _, err := creds.Create(ctx, &models.Credential{
		Email:         adminEmail,
		PasswordHash:  hashedPassword,
		Role:          models.RoleSuperAdmin,
		IsActive:      true,
		EmailVerified: true,
	}); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
