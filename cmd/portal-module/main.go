// Точка входа Portal Module — портал заказов детских ортезов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиенты Keycloak, GraphQL-бэкенда и хранилища снимков,
// создаёт сервисный слой и API handlers, запускает фоновые задачи
// (сборщик мусора, topologymetrics), HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ortokids/ortokids/portal-module/internal/api/handlers"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/blobstore"
	"github.com/ortokids/ortokids/portal-module/internal/config"
	"github.com/ortokids/ortokids/portal-module/internal/database"
	"github.com/ortokids/ortokids/portal-module/internal/keycloak"
	"github.com/ortokids/ortokids/portal-module/internal/repository"
	"github.com/ortokids/ortokids/portal-module/internal/server"
	"github.com/ortokids/ortokids/portal-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Portal Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("PM_DEPHEALTH_GROUP") == "" {
		logger.Warn("PM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA (для Keycloak)
	var httpClientCA *http.Client
	if cfg.JWTCACert != "" {
		httpClientCA, err = buildHTTPClientWithCA(cfg.JWTCACert)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата", slog.String("path", cfg.JWTCACert), slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.JWTCACert))
	}

	// 6. Keycloak Admin API клиент
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClientCA, // nil — стандартный пул CA
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 7. Клиент GraphQL-бэкенда
	backendClient := backend.New(cfg.BackendURL, cfg.BackendTimeout, logger)
	logger.Info("Клиент бэкенда создан", slog.String("url", cfg.BackendURL))

	// 8. Клиент хранилища снимков
	blobClient, err := blobstore.New(ctx, blobstore.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
		PresignTTL:   cfg.PresignTTL,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Repositories
	sessionRepo := repository.NewWizardSessionRepository(pool)
	imageRepo := repository.NewOrderImageRepository(pool)

	// 10. Services
	progress := service.NewProgressRegistry()
	uploadSvc := service.NewUploadService(backendClient, blobClient, imageRepo, progress, logger)
	calculator := service.NewCalculator(cfg.MeasureDelay)
	wizardSvc := service.NewWizardService(sessionRepo, uploadSvc, backendClient, calculator, logger)
	resultSvc := service.NewResultService(backendClient, logger)
	userSvc := service.NewUserService(kcClient, backendClient, logger)
	companySvc := service.NewCompanyConfigService(backendClient, logger)

	// 11. Сборщик мусора хранилища и брошенных заказов.
	// Фоновые запросы к бэкенду идут под сервисной учётной записью.
	gcSvc := service.NewGCService(
		backendClient, blobClient, imageRepo,
		kcClient.TokenProvider(),
		cfg.GCInterval, cfg.ProvisionalTTL,
		logger,
	)

	// 12. Readiness checkers
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.JWTCACert, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	backendChecker := backend.NewReadinessChecker(backendClient, kcClient.TokenProvider())
	storageChecker := blobstore.NewReadinessChecker(blobClient)
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker, backendChecker, storageChecker)

	// 13. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		userSvc,
		wizardSvc,
		uploadSvc,
		resultSvc,
		companySvc,
		logger,
	)

	// 14. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTCACert,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleUserGroups,
		cfg.JWTRolesClaim,
		cfg.JWTGroupsClaim,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 15. Запуск фоновых задач
	gcSvc.Start(ctx)

	// 15.1 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "portal-module",
		Group:           cfg.DephealthGroup,
		PGConnURL:       cfg.DatabaseDSN(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		BackendURL:      cfg.BackendURL,
		S3Endpoint:      cfg.S3Endpoint,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 16. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 17. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	gcSvc.Stop()

	logger.Info("Portal Module остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
