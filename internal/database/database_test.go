package database_test

import (
	"context"
	"testing"

	"github.com/bigkaa/eventgate/internal/database"
	"github.com/bigkaa/eventgate/internal/database/dbtest"
)

// TestMigrate проверяет применение миграций и начальные данные.
func TestMigrate(t *testing.T) {
	cfg := dbtest.Config(t)
	logger := dbtest.Logger()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение: без ошибки (ErrNoChange)
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "registrations", "audit_logs", "system_settings"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	var maxRegistrations int
	var open bool
	err = pool.QueryRow(ctx,
		`SELECT max_registrations, registration_open FROM system_settings WHERE id = 'default'`,
	).Scan(&maxRegistrations, &open)
	if err != nil {
		t.Fatalf("Начальная запись system_settings не найдена: %v", err)
	}
	if maxRegistrations != 6000 || !open {
		t.Errorf("system_settings = (%d, %v), ожидали (6000, true)", maxRegistrations, open)
	}
}

// TestAuditLogsAppendOnly проверяет, что записи аудита нельзя изменить или удалить.
func TestAuditLogsAppendOnly(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role) VALUES
			('00000000-0000-0000-0000-000000000001', 'a@example.com', 'Admin', 'ADMIN')`)
	if err != nil {
		t.Fatalf("вставка пользователя: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity) VALUES
			('00000000-0000-0000-0000-0000000000a1', '00000000-0000-0000-0000-000000000001', 'EXPORT', 'Registration')`)
	if err != nil {
		t.Fatalf("вставка записи аудита: %v", err)
	}

	if _, err := pool.Exec(ctx, `UPDATE audit_logs SET action = 'DELETE'`); err == nil {
		t.Error("UPDATE audit_logs выполнен, ожидалась ошибка")
	}
	if _, err := pool.Exec(ctx, `DELETE FROM audit_logs`); err == nil {
		t.Error("DELETE FROM audit_logs выполнен, ожидалась ошибка")
	}
}

// TestReadinessChecker проверяет ReadinessChecker.
func TestReadinessChecker(t *testing.T) {
	pool := dbtest.Pool(t)

	status, msg := database.NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали ok", status, msg)
	}
}
