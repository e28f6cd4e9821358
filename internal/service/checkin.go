// checkin.go: отметка прохода на входе и ручной поиск регистрации.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/qid"
	"github.com/bigkaa/eventgate/internal/domain/status"
	"github.com/bigkaa/eventgate/internal/repository"
)

// Типы ручного поиска.
const (
	LookupByQID   = "qid"
	LookupByEmail = "email"
)

// CheckInService: рабочее место валидатора.
type CheckInService struct {
	regs   repository.RegistrationRepository
	logger *slog.Logger
}

// NewCheckInService создаёт сервис отметки прохода.
func NewCheckInService(regs repository.RegistrationRepository, logger *slog.Logger) *CheckInService {
	return &CheckInService{
		regs:   regs,
		logger: logger.With(slog.String("component", "checkin_service")),
	}
}

// CheckIn отмечает проход по коду из QR. Повторная отметка и отметка
// отменённой регистрации отклоняются; состояние и журнал при этом не меняются.
func (s *CheckInService) CheckIn(ctx context.Context, code string, actor *model.User) (*model.Registration, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError(map[string]string{"qrCode": "обязательное поле"})
	}

	reg, err := s.regs.CheckIn(ctx, code, actor.ID, nil)
	if err == nil {
		checkIns.WithLabelValues("ok").Inc()
		s.logger.Info("Проход отмечен",
			slog.String("registration_id", reg.ID),
			slog.String("user_id", actor.ID),
		)
		return reg, nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		checkIns.WithLabelValues("not_found").Inc()
		return nil, newError(KindNotFound, "недействительный QR-код")
	}

	if errors.Is(err, repository.ErrCheckInRace) {
		checkIns.WithLabelValues("race").Inc()
		return nil, newError(KindConflict, "регистрация изменена другим сотрудником, повторите отметку")
	}

	var rejected *repository.CheckInRejectedError
	var te *status.TransitionError
	if errors.As(err, &rejected) && errors.As(err, &te) {
		cur := rejected.Current
		switch te.Code {
		case status.CodeAlreadyCheckedIn:
			checkIns.WithLabelValues("already_checked_in").Inc()
			facts := &CheckInFacts{ID: cur.ID, FullName: cur.FullName, AgeGroup: cur.AgeGroup}
			if cur.CheckedInAt != nil {
				facts.CheckedInAt = *cur.CheckedInAt
			}
			return nil, &Error{Kind: KindAlreadyCheckedIn, Message: "проход уже отмечен", CheckIn: facts}
		case status.CodeCancelled:
			checkIns.WithLabelValues("cancelled").Inc()
			return nil, newError(KindCancelled, "регистрация отменена")
		}
	}

	checkIns.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("отметка прохода: %w", err)
}

// Lookup ищет регистрацию по QID или email основного регистранта. Только чтение.
func (s *CheckInService) Lookup(ctx context.Context, lookupType, value string) (*model.Registration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, validationError(map[string]string{"value": "обязательное поле"})
	}

	var (
		reg *model.Registration
		err error
	)
	switch lookupType {
	case LookupByQID:
		reg, err = s.regs.GetByQID(ctx, qid.Normalize(value))
	case LookupByEmail:
		reg, err = s.regs.GetPrimaryByEmail(ctx, strings.ToLower(value))
	default:
		return nil, validationError(map[string]string{"type": "допустимые значения: qid, email"})
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "регистрация не найдена")
		}
		return nil, fmt.Errorf("поиск регистрации: %w", err)
	}
	return reg, nil
}
