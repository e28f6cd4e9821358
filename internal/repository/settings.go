package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// SettingsRepository: чтение и запись глобальных настроек (одна строка).
type SettingsRepository interface {
	Get(ctx context.Context) (*model.SystemSettings, error)
	// Update сохраняет настройки и пишет аудит UPDATE; metadata: изменённые поля.
	Update(ctx context.Context, s *model.SystemSettings, actorID string, metadata map[string]any) error
}

type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт реализацию SettingsRepository.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context) (*model.SystemSettings, error) {
	var s model.SystemSettings
	err := r.db.QueryRow(ctx, `
		SELECT registration_open, max_registrations, event_name, event_date,
		       event_location, contact_email, updated_at
		FROM system_settings WHERE id = $1`, model.SettingsID,
	).Scan(&s.RegistrationOpen, &s.MaxRegistrations, &s.EventName, &s.EventDate,
		&s.EventLocation, &s.ContactEmail, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения настроек: %w", err)
	}
	return &s, nil
}

func (r *settingsRepo) Update(ctx context.Context, s *model.SystemSettings, actorID string, metadata map[string]any) error {
	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO system_settings (id, registration_open, max_registrations, event_name,
				event_date, event_location, contact_email, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (id) DO UPDATE SET
				registration_open = EXCLUDED.registration_open,
				max_registrations = EXCLUDED.max_registrations,
				event_name = EXCLUDED.event_name,
				event_date = EXCLUDED.event_date,
				event_location = EXCLUDED.event_location,
				contact_email = EXCLUDED.contact_email,
				updated_at = now()
			RETURNING updated_at`,
			model.SettingsID, s.RegistrationOpen, s.MaxRegistrations, s.EventName,
			s.EventDate, s.EventLocation, s.ContactEmail,
		).Scan(&s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка сохранения настроек: %w", err)
		}

		id := model.SettingsID
		return insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditUpdate,
			Entity:   model.EntitySystemSettings,
			EntityID: &id,
			Metadata: metadata,
		})
	})
}
