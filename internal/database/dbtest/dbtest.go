// Пакет dbtest: PostgreSQL в Docker-контейнере для интеграционных тестов.
// Тесты пропускаются, если не установлена переменная TEST_INTEGRATION.
package dbtest

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/bigkaa/eventgate/internal/config"
	"github.com/bigkaa/eventgate/internal/database"
)

const (
	image      = "docker.io/postgres:17-alpine"
	dbName     = "eventgate_test"
	dbUser     = "eventgate"
	dbPassword = "test-password"
)

// Config запускает контейнер PostgreSQL и возвращает конфигурацию для него.
func Config(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("PostgreSQL контейнер не запустился: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("порт контейнера: %v", err)
	}

	t.Setenv("EG_DB_HOST", host)
	t.Setenv("EG_DB_PORT", port.Port())
	t.Setenv("EG_DB_NAME", dbName)
	t.Setenv("EG_DB_USER", dbUser)
	t.Setenv("EG_DB_PASSWORD", dbPassword)
	t.Setenv("EG_DB_SSL_MODE", "disable")
	t.Setenv("EG_JWT_JWKS_URL", "http://localhost:8180/certs")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

// Pool запускает контейнер, применяет миграции и возвращает пул соединений.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	cfg := Config(t)
	logger := Logger()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// Logger возвращает логгер уровня debug для тестов.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
