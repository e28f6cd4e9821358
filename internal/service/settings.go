// settings.go: глобальные настройки мероприятия.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/repository"
)

// SettingsUpdate: частичное обновление настроек (nil, поле не меняется).
type SettingsUpdate struct {
	RegistrationOpen *bool   `json:"registrationOpen"`
	MaxRegistrations *int    `json:"maxRegistrations" validate:"omitempty,gte=0,lte=1000000"`
	EventName        *string `json:"eventName" validate:"omitempty,max=200"`
	// EventDate: YYYY-MM-DD; пустая строка очищает дату
	EventDate     *string `json:"eventDate" validate:"omitempty,datetime=2006-01-02"`
	EventLocation *string `json:"eventLocation" validate:"omitempty,max=300"`
	ContactEmail  *string `json:"contactEmail" validate:"omitempty,email"`
}

// SettingsService: чтение и изменение глобальных настроек.
type SettingsService struct {
	repo     repository.SettingsRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewSettingsService создаёт сервис настроек.
func NewSettingsService(repo repository.SettingsRepository, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "settings_service")),
	}
}

// Get возвращает текущие настройки.
func (s *SettingsService) Get(ctx context.Context) (*model.SystemSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение настроек: %w", err)
	}
	return settings, nil
}

// Update применяет изменения и пишет аудит с изменёнными полями.
func (s *SettingsService) Update(ctx context.Context, upd *SettingsUpdate, actor *model.User) (*model.SystemSettings, error) {
	if err := validateStruct(s.validate, upd); err != nil {
		return nil, err
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение настроек: %w", err)
	}

	changes := map[string]any{}
	if upd.RegistrationOpen != nil && *upd.RegistrationOpen != settings.RegistrationOpen {
		settings.RegistrationOpen = *upd.RegistrationOpen
		changes["registrationOpen"] = settings.RegistrationOpen
	}
	if upd.MaxRegistrations != nil && *upd.MaxRegistrations != settings.MaxRegistrations {
		settings.MaxRegistrations = *upd.MaxRegistrations
		changes["maxRegistrations"] = settings.MaxRegistrations
	}
	if upd.EventName != nil && strings.TrimSpace(*upd.EventName) != settings.EventName {
		settings.EventName = strings.TrimSpace(*upd.EventName)
		changes["eventName"] = settings.EventName
	}
	if upd.EventDate != nil {
		var date *time.Time
		if *upd.EventDate != "" {
			d, _ := time.Parse(time.DateOnly, *upd.EventDate) // формат проверен валидатором
			date = &d
		}
		if !sameDate(date, settings.EventDate) {
			settings.EventDate = date
			changes["eventDate"] = *upd.EventDate
		}
	}
	if upd.EventLocation != nil && strings.TrimSpace(*upd.EventLocation) != settings.EventLocation {
		settings.EventLocation = strings.TrimSpace(*upd.EventLocation)
		changes["eventLocation"] = settings.EventLocation
	}
	if upd.ContactEmail != nil && strings.ToLower(strings.TrimSpace(*upd.ContactEmail)) != settings.ContactEmail {
		settings.ContactEmail = strings.ToLower(strings.TrimSpace(*upd.ContactEmail))
		changes["contactEmail"] = settings.ContactEmail
	}

	if len(changes) == 0 {
		return settings, nil
	}

	if err := s.repo.Update(ctx, settings, actor.ID, changes); err != nil {
		return nil, fmt.Errorf("сохранение настроек: %w", err)
	}

	s.logger.Info("Настройки изменены",
		slog.String("user_id", actor.ID),
		slog.Any("changes", changes),
	)
	return settings, nil
}

// EventInfo возвращает данные мероприятия для писем.
func (s *SettingsService) EventInfo(ctx context.Context) (notify.EventInfo, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notify.EventInfo{}, nil
		}
		return notify.EventInfo{}, fmt.Errorf("получение настроек: %w", err)
	}
	return eventInfo(settings), nil
}

func eventInfo(s *model.SystemSettings) notify.EventInfo {
	return notify.EventInfo{
		Name:         s.EventName,
		Date:         s.EventDate,
		Location:     s.EventLocation,
		ContactEmail: s.ContactEmail,
	}
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}
