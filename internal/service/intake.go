// intake.go: публичная регистрация участников (основной регистрант + семья).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/qid"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/repository"
)

// maxTokenAttempts: число попыток выделить уникальный код доступа.
const maxTokenAttempts = 10

// TokenGenerator: генератор кодов доступа.
type TokenGenerator interface {
	Generate() (string, error)
}

// RegistrationMailer: отправка письма о регистрации.
type RegistrationMailer interface {
	SendRegistration(ctx context.Context, to string, event notify.EventInfo, people []notify.Person) error
}

// FamilyMemberInput: член семьи в заявке. Email и гражданство берутся у основного регистранта.
type FamilyMemberInput struct {
	QID      string         `json:"qid" validate:"required,qid"`
	FullName string         `json:"fullName" validate:"required,min=3,max=100,personname"`
	AgeGroup model.AgeGroup `json:"ageGroup" validate:"required,oneof=KIDS YOUTH ADULT SENIOR"`
	Gender   model.Gender   `json:"gender" validate:"required,oneof=MALE FEMALE"`
}

// IntakeRequest: заявка на регистрацию.
type IntakeRequest struct {
	QID           string              `json:"qid" validate:"required,qid"`
	FullName      string              `json:"fullName" validate:"required,min=3,max=100,personname"`
	AgeGroup      model.AgeGroup      `json:"ageGroup" validate:"required,oneof=KIDS YOUTH ADULT SENIOR"`
	Email         string              `json:"email" validate:"required,email,max=254"`
	Nationality   string              `json:"nationality" validate:"required,min=2,max=100,personname"`
	Gender        model.Gender        `json:"gender" validate:"required,oneof=MALE FEMALE"`
	FamilyMembers []FamilyMemberInput `json:"familyMembers" validate:"max=10,dive"`
}

// normalize приводит поля к каноническому виду до валидации.
func (r *IntakeRequest) normalize() {
	r.QID = qid.Normalize(strings.TrimSpace(r.QID))
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Nationality = strings.TrimSpace(r.Nationality)
	for i := range r.FamilyMembers {
		m := &r.FamilyMembers[i]
		m.QID = qid.Normalize(strings.TrimSpace(m.QID))
		m.FullName = strings.TrimSpace(m.FullName)
	}
}

// IntakeResult: результат регистрации.
type IntakeResult struct {
	// Primary: запись основного регистранта
	Primary *model.Registration
	// Family: созданные записи членов семьи (пропущенные не входят)
	Family []*model.Registration
}

// FamilyCount: количество фактически созданных членов семьи.
func (r *IntakeResult) FamilyCount() int {
	return len(r.Family)
}

// DuplicateCheck: результат проверки занятости QID и email.
type DuplicateCheck struct {
	QIDExists   bool
	EmailExists bool
}

// IntakeService: рабочий процесс публичной регистрации.
type IntakeService struct {
	regs         repository.RegistrationRepository
	settings     repository.SettingsRepository
	tokens       TokenGenerator
	mailer       RegistrationMailer
	validate     *validator.Validate
	ageRef       time.Time
	emailTimeout time.Duration
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewIntakeService создаёт сервис регистрации.
// ageRef: дата, относительно которой вычисляется возрастная группа по QID.
func NewIntakeService(
	regs repository.RegistrationRepository,
	settings repository.SettingsRepository,
	tokens TokenGenerator,
	mailer RegistrationMailer,
	ageRef time.Time,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		regs:         regs,
		settings:     settings,
		tokens:       tokens,
		mailer:       mailer,
		validate:     newValidator(),
		ageRef:       ageRef,
		emailTimeout: 30 * time.Second,
		logger:       logger.With(slog.String("component", "intake_service")),
	}
}

// Submit регистрирует основного участника и членов семьи.
//
// Проверки (формат, дубликаты, открытость регистрации, лимит) выполняются
// до выделения ресурсов. Члены семьи с уже зарегистрированным QID
// пропускаются. Все записи создаются в одной транзакции; письмо уходит
// асинхронно после её фиксации, и его ошибка не влияет на результат.
func (s *IntakeService) Submit(ctx context.Context, req *IntakeRequest) (*IntakeResult, error) {
	req.normalize()
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	if exists, err := s.regs.ExistsQID(ctx, req.QID); err != nil {
		return nil, fmt.Errorf("проверка QID: %w", err)
	} else if exists {
		return nil, conflictError("qid")
	}
	if exists, err := s.regs.ExistsPrimaryEmail(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("проверка email: %w", err)
	} else if exists {
		return nil, conflictError("email")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение настроек: %w", err)
	}
	if !settings.RegistrationOpen {
		return nil, newError(KindClosed, "регистрация закрыта")
	}
	total, err := s.regs.Count(ctx, repository.RegistrationFilter{})
	if err != nil {
		return nil, fmt.Errorf("подсчёт регистраций: %w", err)
	}
	if total >= settings.MaxRegistrations {
		return nil, newError(KindCapacity, "достигнут лимит регистраций (%d)", settings.MaxRegistrations)
	}

	var result *IntakeResult
	err = s.regs.InTx(ctx, func(regs repository.RegistrationRepository) error {
		res, err := s.createAll(ctx, regs, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	registrationsCreated.WithLabelValues("primary").Inc()
	registrationsCreated.WithLabelValues("family").Add(float64(result.FamilyCount()))
	familySkipped.Add(float64(len(req.FamilyMembers) - result.FamilyCount()))

	s.logger.Info("Регистрация создана",
		slog.String("registration_id", result.Primary.ID),
		slog.Int("family_count", result.FamilyCount()),
		slog.Int("family_requested", len(req.FamilyMembers)),
	)

	s.sendConfirmation(settings, result)
	return result, nil
}

// createAll создаёт основного регистранта и членов семьи в транзакции regs.
// Любая ошибка, кроме уже занятого QID члена семьи, откатывает все записи.
func (s *IntakeService) createAll(ctx context.Context, regs repository.RegistrationRepository, req *IntakeRequest) (*IntakeResult, error) {
	primary := &model.Registration{
		QID:         req.QID,
		FullName:    req.FullName,
		AgeGroup:    req.AgeGroup,
		Email:       req.Email,
		Nationality: req.Nationality,
		Gender:      req.Gender,
		IsPrimary:   true,
	}
	if err := s.createWithToken(ctx, regs, primary); err != nil {
		return nil, err
	}

	result := &IntakeResult{Primary: primary}
	for _, m := range req.FamilyMembers {
		member, err := s.createFamilyMember(ctx, regs, primary, m)
		if err != nil {
			s.logger.Error("Ошибка регистрации члена семьи, заявка откатывается",
				slog.String("qid", model.MaskQID(m.QID)),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		if member == nil {
			s.logger.Info("Член семьи пропущен: QID уже зарегистрирован",
				slog.String("qid", model.MaskQID(m.QID)),
			)
			continue
		}
		result.Family = append(result.Family, member)
	}
	return result, nil
}

// createFamilyMember создаёт запись члена семьи. Возвращает nil без ошибки,
// если QID уже зарегистрирован (в том числе при гонке на вставке).
func (s *IntakeService) createFamilyMember(ctx context.Context, regs repository.RegistrationRepository, primary *model.Registration, m FamilyMemberInput) (*model.Registration, error) {
	exists, err := regs.ExistsQID(ctx, m.QID)
	if err != nil {
		return nil, fmt.Errorf("проверка QID члена семьи: %w", err)
	}
	if exists {
		return nil, nil
	}

	member := &model.Registration{
		QID:         m.QID,
		FullName:    m.FullName,
		AgeGroup:    m.AgeGroup,
		Email:       primary.Email,
		Nationality: primary.Nationality,
		Gender:      m.Gender,
		IsPrimary:   false,
	}
	if err := s.createWithToken(ctx, regs, member); err != nil {
		if se, ok := AsError(err); ok && se.Kind == KindConflict && se.Field == "qid" {
			return nil, nil
		}
		return nil, err
	}
	return member, nil
}

// createWithToken создаёт запись, выделяя код доступа; при коллизии кода
// повторяет вставку с новым кодом. Уникальность гарантирует ограничение БД.
func (s *IntakeService) createWithToken(ctx context.Context, regs repository.RegistrationRepository, reg *model.Registration) error {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		tok, err := s.tokens.Generate()
		if err != nil {
			return err
		}
		reg.ID = ""
		reg.AccessToken = tok

		err = regs.Create(ctx, reg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("создание регистрации: %w", err)
		}

		field := repository.ConflictField(err)
		if field != "accessToken" {
			return conflictError(field)
		}
		s.logger.Debug("Коллизия кода доступа, повтор",
			slog.String("token", tok),
			slog.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("не удалось выделить уникальный код доступа за %d попыток", maxTokenAttempts)
}

// sendConfirmation отправляет одно письмо со всеми созданными участниками в фоне.
func (s *IntakeService) sendConfirmation(settings *model.SystemSettings, result *IntakeResult) {
	people := make([]notify.Person, 0, 1+len(result.Family))
	people = append(people, notify.PersonFromRegistration(result.Primary))
	for _, m := range result.Family {
		people = append(people, notify.PersonFromRegistration(m))
	}
	event := eventInfo(settings)
	to := result.Primary.Email
	regID := result.Primary.ID

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.emailTimeout)
		defer cancel()

		if err := s.mailer.SendRegistration(ctx, to, event, people); err != nil {
			s.logger.Error("Ошибка отправки письма о регистрации",
				slog.String("registration_id", regID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait дожидается завершения фоновых отправок писем (graceful shutdown, тесты).
func (s *IntakeService) Wait() {
	s.wg.Wait()
}

// CheckDuplicate сообщает, заняты ли QID и email. Пустые значения не проверяются.
func (s *IntakeService) CheckDuplicate(ctx context.Context, rawQID, email string) (*DuplicateCheck, error) {
	var res DuplicateCheck
	if q := qid.Normalize(strings.TrimSpace(rawQID)); q != "" {
		exists, err := s.regs.ExistsQID(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("проверка QID: %w", err)
		}
		res.QIDExists = exists
	}
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		exists, err := s.regs.ExistsPrimaryEmail(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("проверка email: %w", err)
		}
		res.EmailExists = exists
	}
	return &res, nil
}

// Prefill разбирает QID для автозаполнения формы.
func (s *IntakeService) Prefill(raw string) qid.Prefill {
	return qid.PrefillFor(raw, s.ageRef)
}

func conflictError(field string) *Error {
	return &Error{Kind: KindConflict, Message: "регистрация с такими данными уже существует", Field: field}
}
