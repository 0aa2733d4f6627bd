// Пакет config — загрузка и валидация конфигурации Portal Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Portal Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.ortokids.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Claim для ролей в JWT
	JWTRolesClaim string
	// Claim для групп в JWT
	JWTGroupsClaim string
	// Путь к CA-сертификату для TLS к Keycloak (опционально)
	JWTCACert string
	// Таймаут HTTP-клиента для загрузки JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допуск рассинхронизации часов при валидации JWT
	JWTLeeway time.Duration

	// --- Backend GraphQL ---

	// URL GraphQL-бэкенда (обязательный)
	BackendURL string
	// Таймаут запросов к бэкенду
	BackendTimeout time.Duration

	// --- Хранилище снимков (S3-совместимое) ---

	// Endpoint S3-совместимого хранилища (пустой — стандартный AWS)
	S3Endpoint string
	// Регион S3
	S3Region string
	// Имя bucket для снимков
	S3Bucket string
	// Access key
	S3AccessKey string
	// Secret key
	S3SecretKey string
	// Path-style адресация (для MinIO и совместимых)
	S3UsePathStyle bool
	// Время жизни подписанных URL
	PresignTTL time.Duration

	// --- Фоновые процессы ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Интервал запуска сборщика мусора хранилища
	GCInterval time.Duration
	// TTL временных заказов без снимков и результатов
	ProvisionalTTL time.Duration
	// Длительность имитации расчёта мерок
	MeasureDelay time.Duration

	// --- Маппинг групп → ролей ---

	// Группы Keycloak, дающие роль app_admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль user (через запятую)
	RoleUserGroups []string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("PM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("PM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("PM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// PM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PM_LOG_LEVEL: %w", err)
	}

	// PM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// PM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// PM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("PM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PM_DB_PORT: %w", err)
	}

	// PM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// PM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PM_DB_USER")
	if err != nil {
		return nil, err
	}

	// PM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("PM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	// PM_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("PM_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// PM_KEYCLOAK_REALM — realm (по умолчанию ortokids)
	cfg.KeycloakRealm = getEnvDefault("PM_KEYCLOAK_REALM", "ortokids")

	// PM_KEYCLOAK_CLIENT_ID — обязательный
	cfg.KeycloakClientID, err = getEnvRequired("PM_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// PM_KEYCLOAK_CLIENT_SECRET — обязательный
	cfg.KeycloakClientSecret, err = getEnvRequired("PM_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// --- JWT ---

	// PM_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("PM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// PM_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("PM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// PM_JWT_ROLES_CLAIM — claim для ролей (по умолчанию realm_access.roles)
	cfg.JWTRolesClaim = getEnvDefault("PM_JWT_ROLES_CLAIM", "realm_access.roles")

	// PM_JWT_GROUPS_CLAIM — claim для групп (по умолчанию groups)
	cfg.JWTGroupsClaim = getEnvDefault("PM_JWT_GROUPS_CLAIM", "groups")

	// PM_JWT_CA_CERT — путь к CA-сертификату для TLS к Keycloak (опционально)
	cfg.JWTCACert = getEnvDefault("PM_JWT_CA_CERT", "")

	// PM_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("PM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// PM_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("PM_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// PM_JWT_LEEWAY — допуск часов при валидации JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("PM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_JWT_LEEWAY: %w", err)
	}

	// --- Backend GraphQL ---

	// PM_BACKEND_URL — обязательный
	cfg.BackendURL, err = getEnvRequired("PM_BACKEND_URL")
	if err != nil {
		return nil, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	// PM_BACKEND_TIMEOUT — таймаут запросов к бэкенду (по умолчанию 30s)
	cfg.BackendTimeout, err = getEnvDuration("PM_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_BACKEND_TIMEOUT: %w", err)
	}

	// --- Хранилище снимков ---

	// PM_S3_ENDPOINT — endpoint хранилища (опционально, для MinIO и совместимых)
	cfg.S3Endpoint = getEnvDefault("PM_S3_ENDPOINT", "")

	// PM_S3_REGION — регион (по умолчанию us-east-1)
	cfg.S3Region = getEnvDefault("PM_S3_REGION", "us-east-1")

	// PM_S3_BUCKET — обязательный
	cfg.S3Bucket, err = getEnvRequired("PM_S3_BUCKET")
	if err != nil {
		return nil, err
	}

	// PM_S3_ACCESS_KEY — обязательный
	cfg.S3AccessKey, err = getEnvRequired("PM_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// PM_S3_SECRET_KEY — обязательный
	cfg.S3SecretKey, err = getEnvRequired("PM_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// PM_S3_USE_PATH_STYLE — path-style адресация (по умолчанию true)
	cfg.S3UsePathStyle, err = getEnvBool("PM_S3_USE_PATH_STYLE", true)
	if err != nil {
		return nil, fmt.Errorf("PM_S3_USE_PATH_STYLE: %w", err)
	}

	// PM_PRESIGN_TTL — время жизни подписанных URL (по умолчанию 5m)
	cfg.PresignTTL, err = getEnvDuration("PM_PRESIGN_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PM_PRESIGN_TTL: %w", err)
	}

	// --- Фоновые процессы ---

	// PM_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "ortokids")
	cfg.DephealthGroup = getEnvDefault("PM_DEPHEALTH_GROUP", "ortokids")

	// PM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// PM_GC_INTERVAL — интервал сборки мусора хранилища (по умолчанию 1h)
	cfg.GCInterval, err = getEnvDuration("PM_GC_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PM_GC_INTERVAL: %w", err)
	}

	// PM_PROVISIONAL_TTL — TTL временных заказов (по умолчанию 72h)
	cfg.ProvisionalTTL, err = getEnvDuration("PM_PROVISIONAL_TTL", 72*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PM_PROVISIONAL_TTL: %w", err)
	}

	// PM_MEASURE_DELAY — длительность имитации расчёта мерок (по умолчанию 3s)
	cfg.MeasureDelay, err = getEnvDuration("PM_MEASURE_DELAY", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_MEASURE_DELAY: %w", err)
	}

	// --- Маппинг групп → ролей ---

	// PM_ROLE_ADMIN_GROUPS — группы для роли app_admin (по умолчанию "ortokids-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("PM_ROLE_ADMIN_GROUPS", "ortokids-admins"))

	// PM_ROLE_USER_GROUPS — группы для роли user (по умолчанию "ortokids-users")
	cfg.RoleUserGroups = parseCSV(getEnvDefault("PM_ROLE_USER_GROUPS", "ortokids-users"))

	// --- Graceful shutdown ---

	// PM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
