// Точка входа eventgate: регистрация участников мероприятия и отметка прохода.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает репозитории, сервисы и транспорт писем, запускает фоновые задачи
// (worker очереди писем, topologymetrics) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigkaa/eventgate/internal/api/handlers"
	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/api/openapi"
	"github.com/bigkaa/eventgate/internal/config"
	"github.com/bigkaa/eventgate/internal/database"
	"github.com/bigkaa/eventgate/internal/domain/token"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/ratelimit"
	"github.com/bigkaa/eventgate/internal/repository"
	"github.com/bigkaa/eventgate/internal/server"
	"github.com/bigkaa/eventgate/internal/service"
)

// emailWorkerPrefetch: сколько писем worker обрабатывает параллельно.
const emailWorkerPrefetch = 4

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("eventgate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("timezone", cfg.EventLocation.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Сервис остановлен с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("eventgate остановлен")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := database.OpenDB(pool)
	defer pgDB.Close()

	// 5. Repositories
	regRepo := repository.NewRegistrationRepository(pool)
	auditRepo := repository.NewAuditLogRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	// 6. Транспорт писем
	sender, closeSender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	renderer, err := notify.NewRenderer(cfg.EmailFrom)
	if err != nil {
		return err
	}
	mailer := notify.NewMailer(renderer, sender, logger)

	// 7. Services
	settingsSvc := service.NewSettingsService(settingsRepo, logger)
	usersSvc := service.NewUserService(userRepo, logger)
	intakeSvc := service.NewIntakeService(regRepo, settingsRepo, token.NewDefault(), mailer, cfg.AgeReferenceDate, logger)
	checkInSvc := service.NewCheckInService(regRepo, logger)
	registrationsSvc := service.NewRegistrationService(regRepo, cfg.EventLocation, logger)
	statsSvc := service.NewStatsService(regRepo, cfg.EventLocation, cfg.StatsCacheTTL, logger)
	exportSvc := service.NewExportService(regRepo, auditRepo, cfg.EventLocation, logger)
	auditSvc := service.NewAuditService(auditRepo, logger)
	inviteSvc := service.NewInviteService(settingsSvc, mailer, cfg.PublicURL, logger)

	// 8. Начальный администратор
	if cfg.BootstrapAdminEmail != "" {
		if err := usersSvc.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail); err != nil {
			return err
		}
	}

	// 9. Rate limiter: Redis (общий для реплик) или память процесса
	limiterStore, closeStore, err := buildLimiterStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	registrationLimiter := ratelimit.NewLimiter(limiterStore, "registration",
		cfg.RateRegistration.Limit, cfg.RateRegistration.Window, logger)
	apiLimiter := ratelimit.NewLimiter(limiterStore, "api", cfg.RateAPI.Limit, cfg.RateAPI.Window, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		usersSvc,
		cfg.PrincipalCacheTTL,
		logger,
	)
	if err != nil {
		return err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics: мониторинг зависимостей (PostgreSQL + JWKS)
	var deps handlers.DependencyHealth
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "eventgate",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Контракт API и обработчики
	spec, err := openapi.Load(ctx, logger)
	if err != nil {
		return err
	}

	apiHandler := handlers.NewAPIHandler(handlers.Services{
		Intake:        intakeSvc,
		Gate:          checkInSvc,
		Registrations: registrationsSvc,
		Export:        exportSvc,
		Stats:         statsSvc,
		Users:         usersSvc,
		Settings:      settingsSvc,
		Audit:         auditSvc,
		Invite:        inviteSvc,
		Principals:    jwtAuth,
	}, cfg.StatsStreamInterval, logger)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), deps)

	// 13. HTTP-сервер (блокируется до сигнала завершения)
	srv := server.New(cfg, logger, server.Deps{
		API:                 apiHandler,
		Health:              healthHandler,
		Spec:                spec,
		JWTAuth:             jwtAuth,
		RegistrationLimiter: registrationLimiter,
		APILimiter:          apiLimiter,
	})
	runErr := srv.Run(ctx)

	// 14. Дожидаемся асинхронных писем о регистрации
	logger.Info("Ожидание отправки писем...")
	intakeSvc.Wait()

	return runErr
}

// buildSender создаёт транспорт писем по EG_EMAIL_TRANSPORT.
// Для queue при EG_EMAIL_WORKER=true в процессе запускается потребитель,
// доставляющий письма через SMTP или HTTP-провайдер.
func buildSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sender, func(), error) {
	noop := func() {}

	switch cfg.EmailTransport {
	case config.EmailTransportSMTP:
		return notify.Instrument(smtpSender(cfg, logger), "smtp"), noop, nil

	case config.EmailTransportHTTP:
		return notify.Instrument(notify.NewHTTPSender(cfg.EmailAPIURL, cfg.EmailAPIKey, logger), "http"), noop, nil

	case config.EmailTransportQueue:
		queue, err := notify.DialQueue(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.EmailWorker {
			delivery, transport := workerDelivery(cfg, logger)
			go func() {
				if err := queue.Consume(ctx, notify.Instrument(delivery, transport), emailWorkerPrefetch); err != nil {
					logger.Error("Worker очереди писем остановлен", slog.String("error", err.Error()))
				}
			}()
			logger.Info("Worker очереди писем запущен",
				slog.String("queue", cfg.AMQPQueue),
				slog.String("delivery", transport),
			)
		}
		closeQueue := func() {
			if err := queue.Close(); err != nil {
				logger.Warn("Ошибка закрытия соединения RabbitMQ", slog.String("error", err.Error()))
			}
		}
		// Публикация в очередь учитывается отдельно от доставки worker'ом
		return notify.Instrument(queue, "queue"), closeQueue, nil

	default:
		logger.Warn("EG_EMAIL_TRANSPORT=none: письма не отправляются")
		return notify.NewNoopSender(logger), noop, nil
	}
}

func smtpSender(cfg *config.Config, logger *slog.Logger) notify.Sender {
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	}, logger)
}

// workerDelivery выбирает транспорт доставки для worker'а очереди: SMTP, если
// задан EG_SMTP_HOST, иначе HTTP-провайдер.
func workerDelivery(cfg *config.Config, logger *slog.Logger) (notify.Sender, string) {
	if cfg.SMTPHost != "" {
		return smtpSender(cfg, logger), "smtp"
	}
	return notify.NewHTTPSender(cfg.EmailAPIURL, cfg.EmailAPIKey, logger), "http"
}

// buildLimiterStore выбирает хранилище окон rate limiter.
func buildLimiterStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, func(), error) {
	if cfg.RedisURL == "" {
		store := ratelimit.NewMemoryStore()
		go store.RunSweeper(ctx, time.Minute)
		logger.Warn("EG_REDIS_URL не задан: лимиты хранятся в памяти процесса и не разделяются между репликами")
		return store, func() {}, nil
	}

	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Rate limiter использует Redis")
	return ratelimit.NewRedisStore(client), func() { _ = client.Close() }, nil
}
