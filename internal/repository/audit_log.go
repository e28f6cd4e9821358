package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// AuditFilter: фильтры журнала аудита.
type AuditFilter struct {
	Action   *model.AuditAction
	Entity   string
	EntityID string
	UserID   string
	From     *time.Time
	To       *time.Time
}

// AuditLogRepository: журнал аудита. Поддерживает только добавление и чтение:
// изменение и удаление записей запрещены триггером БД.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *model.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*model.AuditLogEntry, int, error)
}

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт реализацию AuditLogRepository.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	return insertAudit(ctx, r.db, entry)
}

// insertAudit добавляет запись аудита; используется внутри транзакций других репозиториев.
func insertAudit(ctx context.Context, db DBTX, entry *model.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}

	err := db.QueryRow(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		entry.ID, entry.UserID, entry.Action, entry.Entity, entry.EntityID, entry.Metadata,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита %s %s: %w", entry.Action, entry.Entity, err)
	}
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, filter AuditFilter, limit, offset int) ([]*model.AuditLogEntry, int, error) {
	where, args := buildAuditWhere(filter, 1)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs a"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}

	argIdx := len(args) + 1
	query := fmt.Sprintf(`
		SELECT a.id, a.user_id, a.action, a.entity, a.entity_id, a.metadata, a.created_at, u.name
		FROM audit_logs a
		JOIN users u ON u.id = a.user_id%s
		ORDER BY a.created_at DESC, a.id
		LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Entity, &e.EntityID, &e.Metadata, &e.CreatedAt, &e.UserName); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации журнала аудита: %w", err)
	}
	return result, total, nil
}

// buildAuditWhere строит WHERE-клаузулу для фильтрации журнала аудита.
func buildAuditWhere(filter AuditFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argIdx := startArg

	add := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, arg)
		argIdx++
	}

	if filter.Action != nil {
		add("a.action = $%d", *filter.Action)
	}
	if filter.Entity != "" {
		add("a.entity = $%d", filter.Entity)
	}
	if filter.EntityID != "" {
		add("a.entity_id = $%d", filter.EntityID)
	}
	if filter.UserID != "" {
		add("a.user_id = $%d", filter.UserID)
	}
	if filter.From != nil {
		add("a.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("a.created_at < $%d", *filter.To)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
