// Пакет config: загрузка и валидация конфигурации eventgate
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // часовые пояса в минимальных образах
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Транспорты доставки email.
const (
	EmailTransportNone  = "none"
	EmailTransportSMTP  = "smtp"
	EmailTransportHTTP  = "http"
	EmailTransportQueue = "queue"
)

// RateLimit задаёт скользящее окно: не более Limit запросов за Window.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// Config содержит все параметры конфигурации eventgate.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Подсети прокси, которым доверяем X-Forwarded-For
	TrustedProxies []*net.IPNet

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- JWT (identity provider) ---

	// URL JWKS endpoint провайдера идентификации
	JWTJWKSURL string
	// Ожидаемый issuer (пусто: не проверяется)
	JWTIssuer string
	// Ожидаемая audience (пусто: не проверяется)
	JWTAudience string
	// Email администратора, создаваемого при старте (опционально)
	BootstrapAdminEmail string
	// TTL кэша разрешённых принципалов
	PrincipalCacheTTL time.Duration

	// --- Redis ---

	// URL Redis для rate limiter (пусто: in-memory)
	RedisURL string

	// --- Rate limiting ---

	RateRegistration RateLimit
	RateAPI          RateLimit

	// --- Email ---

	EmailTransport string
	EmailFrom      string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	EmailAPIURL    string
	EmailAPIKey    string
	AMQPURL        string
	AMQPQueue      string
	// Запускать consumer очереди писем в этом процессе
	EmailWorker bool

	// --- Мероприятие ---

	// Часовой пояс мероприятия (границы суток в статистике)
	EventLocation *time.Location
	// Дата, относительно которой вычисляется возрастная группа по QID
	AgeReferenceDate time.Time
	// Публичный URL формы регистрации (ссылка в приглашениях, опционально)
	PublicURL string

	// --- Статистика ---

	StatsCacheTTL       time.Duration
	StatsStreamInterval time.Duration

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("EG_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("EG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EG_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("EG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("EG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EG_SHUTDOWN_TIMEOUT: %w", err)
	}

	for _, cidr := range parseCSV(getEnvDefault("EG_TRUSTED_PROXIES", "")) {
		_, ipNet, parseErr := net.ParseCIDR(cidr)
		if parseErr != nil {
			return nil, fmt.Errorf("EG_TRUSTED_PROXIES: некорректная подсеть %q", cidr)
		}
		cfg.TrustedProxies = append(cfg.TrustedProxies, ipNet)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("EG_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("EG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EG_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("EG_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("EG_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("EG_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("EG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("EG_DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("EG_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("EG_DB_MAX_CONNS: значение должно быть положительным")
	}

	// --- JWT ---

	if cfg.JWTJWKSURL, err = getEnvRequired("EG_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	if _, parseErr := url.ParseRequestURI(cfg.JWTJWKSURL); parseErr != nil {
		return nil, fmt.Errorf("EG_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
	}
	cfg.JWTIssuer = getEnvDefault("EG_JWT_ISSUER", "")
	cfg.JWTAudience = getEnvDefault("EG_JWT_AUDIENCE", "")
	cfg.BootstrapAdminEmail = strings.ToLower(getEnvDefault("EG_BOOTSTRAP_ADMIN_EMAIL", ""))

	cfg.PrincipalCacheTTL, err = getEnvDuration("EG_PRINCIPAL_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EG_PRINCIPAL_CACHE_TTL: %w", err)
	}

	// --- Redis ---

	cfg.RedisURL = getEnvDefault("EG_REDIS_URL", "")

	// --- Rate limiting ---

	cfg.RateRegistration, err = parseRateLimit(getEnvDefault("EG_RATE_REGISTRATION", "5/1m"))
	if err != nil {
		return nil, fmt.Errorf("EG_RATE_REGISTRATION: %w", err)
	}
	cfg.RateAPI, err = parseRateLimit(getEnvDefault("EG_RATE_API", "100/1m"))
	if err != nil {
		return nil, fmt.Errorf("EG_RATE_API: %w", err)
	}

	// --- Email ---

	if err := loadEmail(cfg); err != nil {
		return nil, err
	}

	// --- Мероприятие ---

	tz := getEnvDefault("EG_EVENT_TIMEZONE", "Asia/Qatar")
	cfg.EventLocation, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("EG_EVENT_TIMEZONE: неизвестный часовой пояс %q", tz)
	}

	refDate := getEnvDefault("EG_AGE_REFERENCE_DATE", "2026-02-10")
	cfg.AgeReferenceDate, err = time.ParseInLocation(time.DateOnly, refDate, cfg.EventLocation)
	if err != nil {
		return nil, fmt.Errorf("EG_AGE_REFERENCE_DATE: ожидается формат YYYY-MM-DD, получено %q", refDate)
	}

	cfg.PublicURL = strings.TrimRight(getEnvDefault("EG_PUBLIC_URL", ""), "/")
	if cfg.PublicURL != "" {
		if _, err := url.ParseRequestURI(cfg.PublicURL); err != nil {
			return nil, fmt.Errorf("EG_PUBLIC_URL: некорректный URL %q", cfg.PublicURL)
		}
	}

	// --- Статистика ---

	cfg.StatsCacheTTL, err = getEnvDuration("EG_STATS_CACHE_TTL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EG_STATS_CACHE_TTL: %w", err)
	}
	cfg.StatsStreamInterval, err = getEnvDuration("EG_STATS_STREAM_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EG_STATS_STREAM_INTERVAL: %w", err)
	}
	if cfg.StatsStreamInterval <= 0 {
		return nil, fmt.Errorf("EG_STATS_STREAM_INTERVAL: значение должно быть положительным")
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("EG_DEPHEALTH_GROUP", "eventgate")
	cfg.DephealthCheckInterval, err = getEnvDuration("EG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// loadEmail читает параметры доставки писем. Набор обязательных
// переменных зависит от выбранного транспорта.
func loadEmail(cfg *Config) error {
	var err error

	cfg.EmailTransport = strings.ToLower(getEnvDefault("EG_EMAIL_TRANSPORT", EmailTransportNone))
	switch cfg.EmailTransport {
	case EmailTransportNone, EmailTransportSMTP, EmailTransportHTTP, EmailTransportQueue:
	default:
		return fmt.Errorf("EG_EMAIL_TRANSPORT: недопустимое значение %q, допустимые: none, smtp, http, queue", cfg.EmailTransport)
	}

	cfg.EmailFrom = getEnvDefault("EG_EMAIL_FROM", "noreply@eventgate.local")
	cfg.SMTPHost = getEnvDefault("EG_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("EG_SMTP_PORT", 587)
	if err != nil {
		return fmt.Errorf("EG_SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = getEnvDefault("EG_SMTP_USER", "")
	cfg.SMTPPassword = getEnvDefault("EG_SMTP_PASSWORD", "")
	cfg.EmailAPIURL = getEnvDefault("EG_EMAIL_API_URL", "https://api.resend.com")
	cfg.EmailAPIKey = getEnvDefault("EG_EMAIL_API_KEY", "")
	cfg.AMQPURL = getEnvDefault("EG_AMQP_URL", "")
	cfg.AMQPQueue = getEnvDefault("EG_AMQP_QUEUE", "eventgate.emails")
	cfg.EmailWorker, err = getEnvBool("EG_EMAIL_WORKER", true)
	if err != nil {
		return fmt.Errorf("EG_EMAIL_WORKER: %w", err)
	}

	switch cfg.EmailTransport {
	case EmailTransportSMTP:
		if cfg.SMTPHost == "" {
			return fmt.Errorf("EG_SMTP_HOST: обязателен для транспорта smtp")
		}
	case EmailTransportHTTP:
		if cfg.EmailAPIKey == "" {
			return fmt.Errorf("EG_EMAIL_API_KEY: обязателен для транспорта http")
		}
	case EmailTransportQueue:
		if cfg.AMQPURL == "" {
			return fmt.Errorf("EG_AMQP_URL: обязателен для транспорта queue")
		}
		// Worker доставляет письма через SMTP или HTTP-провайдер
		if cfg.EmailWorker && cfg.SMTPHost == "" && cfg.EmailAPIKey == "" {
			return fmt.Errorf("EG_EMAIL_WORKER: для доставки нужен EG_SMTP_HOST или EG_EMAIL_API_KEY")
		}
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для лейблов dephealth).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

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

// parseRateLimit разбирает лимит в формате "<n>/<длительность>", например "5/1m".
func parseRateLimit(s string) (RateLimit, error) {
	countPart, windowPart, ok := strings.Cut(s, "/")
	if !ok {
		return RateLimit{}, fmt.Errorf("ожидается формат <n>/<длительность>, получено %q", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || n < 1 {
		return RateLimit{}, fmt.Errorf("некорректное количество запросов: %q", countPart)
	}
	window, err := time.ParseDuration(strings.TrimSpace(windowPart))
	if err != nil || window <= 0 {
		return RateLimit{}, fmt.Errorf("некорректное окно: %q", windowPart)
	}
	return RateLimit{Limit: n, Window: window}, nil
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
