package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// UserRepository: CRUD для сотрудников.
type UserRepository interface {
	// Create создаёт сотрудника и пишет аудит CREATE от имени actorID.
	Create(ctx context.Context, u *model.User, actorID string) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetBySubject(ctx context.Context, subject string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List возвращает всех сотрудников с количеством отмеченных проходов.
	List(ctx context.Context) ([]*model.User, error)
	// Update сохраняет email, имя, роль и активность; metadata: содержимое записи аудита.
	Update(ctx context.Context, u *model.User, actorID string, metadata map[string]any) error
	// Deactivate выключает сотрудника (мягкое удаление) и пишет аудит DELETE.
	Deactivate(ctx context.Context, id, actorID string) error
	// LinkSubject связывает запись с subject из IdP, если связь ещё не установлена.
	LinkSubject(ctx context.Context, id, subject string) error
	TouchLogin(ctx context.Context, id string) error
	// EnsureAdmin создаёт администратора с указанным email, если такого email ещё нет.
	EnsureAdmin(ctx context.Context, email, name string) (created bool, err error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт реализацию UserRepository.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, subject, email, name, role, is_active, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User, actorID string) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (id, subject, email, name, role, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`,
			u.ID, u.Subject, u.Email, u.Name, u.Role, u.IsActive,
		).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if ce := asConflict(err); ce != nil {
				return ce
			}
			return fmt.Errorf("ошибка создания сотрудника: %w", err)
		}

		return insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditCreate,
			Entity:   model.EntityUser,
			EntityID: &u.ID,
			Metadata: map[string]any{"email": u.Email, "role": u.Role},
		})
	})
}

func (r *userRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сотрудника: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *userRepo) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	return r.getOne(ctx, "subject = $1", subject)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *userRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.subject, u.email, u.name, u.role, u.is_active, u.last_login, u.created_at, u.updated_at,
		       (SELECT COUNT(*) FROM registrations r WHERE r.checked_in_by = u.id)
		FROM users u
		ORDER BY u.created_at DESC, u.id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сотрудников: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.LastLogin,
			&u.CreatedAt, &u.UpdatedAt, &u.CheckInsCount); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сотрудника: %w", err)
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации сотрудников: %w", err)
	}
	return result, nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User, actorID string, metadata map[string]any) error {
	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE users SET email = $2, name = $3, role = $4, is_active = $5, updated_at = now()
			WHERE id = $1
			RETURNING updated_at`,
			u.ID, u.Email, u.Name, u.Role, u.IsActive,
		).Scan(&u.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if ce := asConflict(err); ce != nil {
				return ce
			}
			return fmt.Errorf("ошибка обновления сотрудника %s: %w", u.ID, err)
		}

		return insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditUpdate,
			Entity:   model.EntityUser,
			EntityID: &u.ID,
			Metadata: metadata,
		})
	})
}

func (r *userRepo) Deactivate(ctx context.Context, id, actorID string) error {
	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("ошибка деактивации сотрудника %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		return insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditDelete,
			Entity:   model.EntityUser,
			EntityID: &id,
			Metadata: map[string]any{"isActive": false},
		})
	})
}

func (r *userRepo) LinkSubject(ctx context.Context, id, subject string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET subject = $2, updated_at = now() WHERE id = $1 AND subject IS NULL`, id, subject)
	if err != nil {
		if ce := asConflict(err); ce != nil {
			return ce
		}
		return fmt.Errorf("ошибка привязки subject к сотруднику %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) TouchLogin(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления времени входа %s: %w", id, err)
	}
	return nil
}

func (r *userRepo) EnsureAdmin(ctx context.Context, email, name string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, name, role, is_active)
		VALUES ($1, $2, $3, 'ADMIN', TRUE)
		ON CONFLICT (email) DO NOTHING`,
		uuid.New().String(), email, name)
	if err != nil {
		return false, fmt.Errorf("ошибка создания администратора %s: %w", email, err)
	}
	return tag.RowsAffected() > 0, nil
}
