package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/audit"
	auditrepo "storefront/backend/internal/audit/repository"
	authhandler "storefront/backend/internal/auth/handler"
	authservice "storefront/backend/internal/auth/service"
	"storefront/backend/internal/config"
	"storefront/backend/internal/db"
	"storefront/backend/internal/devmail"
	devmailhandler "storefront/backend/internal/devmail/handler"
	"storefront/backend/internal/events"
	healthhandler "storefront/backend/internal/health/handler"
	"storefront/backend/internal/identity/oauth"
	identityservice "storefront/backend/internal/identity/service"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/logging"
	policyengine "storefront/backend/internal/policy/engine"
	"storefront/backend/internal/ratelimit"
	"storefront/backend/internal/security"
	"storefront/backend/internal/server"
	"storefront/backend/internal/server/middleware"
	sessionrepo "storefront/backend/internal/session/repository"
	telemetryotel "storefront/backend/internal/telemetry/otel"
	"storefront/backend/internal/verification"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis: invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup; codes, OAuth state and throttling will fail until it recovers", zap.Error(err))
	}

	tokens, err := security.NewTokenProviderFromConfig(security.TokenProviderConfig{
		PrivateKey:    cfg.JWTPrivateKey,
		PublicKey:     cfg.JWTPublicKey,
		Secret:        cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		RememberMeTTL: cfg.RememberMeTTL(),
	})
	if err != nil {
		logger.Fatal("token provider: set JWT_PRIVATE_KEY/JWT_PUBLIC_KEY or JWT_SECRET", zap.Error(err))
	}

	policy, err := policyengine.NewOPAEvaluator(ctx, "", logger)
	if err != nil {
		logger.Fatal("policy", zap.Error(err))
	}

	accounts := accountrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	auditRepo := auditrepo.NewPostgresRepository(database)
	auditLogger := audit.NewLogger(auditRepo, middleware.ClientIP, logger)

	mailer, closeMailer := newMailer(cfg, logger)
	defer closeMailer()
	var devMail http.Handler
	if cfg.Env == "development" {
		outbox := devmail.NewMemoryStore()
		mailer = devmail.NewRecorder(mailer, outbox, devmail.DefaultTTL)
		devMail = devmailhandler.New(outbox)
		logger.Warn("dev mail outbox enabled at GET /dev/mail")
	}

	publisher := telemetryotel.NewEventPublisher(events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger), providers.LoggerProvider)
	defer publisher.Close()

	svc := authservice.NewAuthService(authservice.Deps{
		Accounts:         accounts,
		Sessions:         sessions,
		Hasher:           security.NewHasher(cfg.BcryptCost),
		Tokens:           tokens,
		Verification:     verification.NewManager(accounts, cfg.VerificationTTL(), cfg.ResetTTL()),
		Codes:            verification.NewCodeStore(rdb, cfg.CodeTTL()),
		Throttle:         ratelimit.New(rdb, cfg.MailRateLimit, cfg.MailWindow()),
		Linker:           identityservice.NewLinker(accounts, logger),
		Notifier:         notification.NewEmailNotifier(mailer, cfg.FrontendURL),
		Events:           publisher,
		Audit:            auditLogger,
		Activity:         auditRepo,
		Policy:           policy,
		Logger:           logger,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockDuration(),
	})

	oauthClient := oauth.NewClient(oauth.NewStateStore(rdb), cfg.OAuthRedirectBaseURL,
		oauth.ProviderConfig{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret},
		oauth.ProviderConfig{ClientID: cfg.FacebookClientID, ClientSecret: cfg.FacebookClientSecret},
		logger)

	checker := healthhandler.NewChecker(database, healthhandler.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}), policy)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Auth:          authhandler.New(svc, oauthClient, cfg.FrontendURL, logger),
			Authenticator: svc,
			Audit:         auditLogger,
			Health:        checker,
			DevMail:       devMail,
			CORSOrigins:   cfg.CORSOrigins(),
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("grpc health listen", zap.String("addr", cfg.GRPCHealthAddr), zap.Error(err))
		}
		grpcSrv = server.NewGRPCServer(checker)
		go func() {
			logger.Info("grpc health server listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newMailer queues mail on Kafka when brokers are configured, and otherwise sends directly
// over SMTP, or logs when SMTP is not configured either.
func newMailer(cfg *config.Config, logger *zap.Logger) (notification.Mailer, func()) {
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		q, err := notification.NewKafkaQueue(brokers, cfg.MailKafkaTopic)
		if err != nil {
			logger.Fatal("mail queue", zap.Error(err))
		}
		logger.Info("queuing mail on kafka", zap.String("topic", cfg.MailKafkaTopic))
		return q, func() { _ = q.Close() }
	}
	if cfg.SMTPHost != "" {
		return notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}), func() {}
	}
	logger.Warn("SMTP_HOST not set; mail is logged, not sent")
	return notification.NewLogMailer(logger), func() {}
}
