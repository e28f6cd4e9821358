package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRegistrationRepo: реализация RegistrationRepository на функциях.
// Неустановленная функция вызывает панику, чтобы тест явно видел лишний вызов.
type mockRegistrationRepo struct {
	createFn            func(ctx context.Context, r *model.Registration) error
	getByIDFn           func(ctx context.Context, id string) (*model.Registration, error)
	getByTokenFn        func(ctx context.Context, token string) (*model.Registration, error)
	getByQIDFn          func(ctx context.Context, qid string) (*model.Registration, error)
	getPrimaryByEmailFn func(ctx context.Context, email string) (*model.Registration, error)
	existsQIDFn         func(ctx context.Context, qid string) (bool, error)
	existsEmailFn       func(ctx context.Context, email string) (bool, error)
	inTxFn              func(ctx context.Context, fn func(repository.RegistrationRepository) error) error
	updateStatusFn      func(ctx context.Context, id string, to model.Status, actorID string) (*model.Registration, bool, error)
	checkInFn           func(ctx context.Context, token, actorID string, metadata map[string]any) (*model.Registration, error)
	deleteFn            func(ctx context.Context, id, actorID string) error
	countFn             func(ctx context.Context, filter repository.RegistrationFilter) (int, error)
	listFn              func(ctx context.Context, filter repository.RegistrationFilter, opts repository.ListOptions) ([]*model.Registration, int, error)
	forEachFn           func(ctx context.Context, filter repository.RegistrationFilter, fn func(*model.Registration) error) error
	groupCountFn        func(ctx context.Context, dim repository.Dimension, limit int) ([]repository.GroupCount, error)
	dailyCountsFn       func(ctx context.Context, from, to time.Time, tz string) ([]repository.DailyCount, error)
	recentCheckInsFn    func(ctx context.Context, limit int) ([]repository.CheckInRecord, error)
}

func (m *mockRegistrationRepo) Create(ctx context.Context, r *model.Registration) error {
	return m.createFn(ctx, r)
}
func (m *mockRegistrationRepo) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	return m.getByIDFn(ctx, id)
}
func (m *mockRegistrationRepo) GetByToken(ctx context.Context, token string) (*model.Registration, error) {
	return m.getByTokenFn(ctx, token)
}
func (m *mockRegistrationRepo) GetByQID(ctx context.Context, qid string) (*model.Registration, error) {
	return m.getByQIDFn(ctx, qid)
}
func (m *mockRegistrationRepo) GetPrimaryByEmail(ctx context.Context, email string) (*model.Registration, error) {
	return m.getPrimaryByEmailFn(ctx, email)
}
func (m *mockRegistrationRepo) ExistsQID(ctx context.Context, qid string) (bool, error) {
	return m.existsQIDFn(ctx, qid)
}
func (m *mockRegistrationRepo) ExistsPrimaryEmail(ctx context.Context, email string) (bool, error) {
	return m.existsEmailFn(ctx, email)
}
func (m *mockRegistrationRepo) InTx(ctx context.Context, fn func(repository.RegistrationRepository) error) error {
	return m.inTxFn(ctx, fn)
}
func (m *mockRegistrationRepo) UpdateStatus(ctx context.Context, id string, to model.Status, actorID string) (*model.Registration, bool, error) {
	return m.updateStatusFn(ctx, id, to, actorID)
}
func (m *mockRegistrationRepo) CheckIn(ctx context.Context, token, actorID string, metadata map[string]any) (*model.Registration, error) {
	return m.checkInFn(ctx, token, actorID, metadata)
}
func (m *mockRegistrationRepo) Delete(ctx context.Context, id, actorID string) error {
	return m.deleteFn(ctx, id, actorID)
}
func (m *mockRegistrationRepo) Count(ctx context.Context, filter repository.RegistrationFilter) (int, error) {
	return m.countFn(ctx, filter)
}
func (m *mockRegistrationRepo) List(ctx context.Context, filter repository.RegistrationFilter, opts repository.ListOptions) ([]*model.Registration, int, error) {
	return m.listFn(ctx, filter, opts)
}
func (m *mockRegistrationRepo) ForEach(ctx context.Context, filter repository.RegistrationFilter, fn func(*model.Registration) error) error {
	return m.forEachFn(ctx, filter, fn)
}
func (m *mockRegistrationRepo) GroupCount(ctx context.Context, dim repository.Dimension, limit int) ([]repository.GroupCount, error) {
	return m.groupCountFn(ctx, dim, limit)
}
func (m *mockRegistrationRepo) DailyCounts(ctx context.Context, from, to time.Time, tz string) ([]repository.DailyCount, error) {
	return m.dailyCountsFn(ctx, from, to, tz)
}
func (m *mockRegistrationRepo) RecentCheckIns(ctx context.Context, limit int) ([]repository.CheckInRecord, error) {
	return m.recentCheckInsFn(ctx, limit)
}

// memoryLedger: простой реестр в памяти для тестов рабочего процесса регистрации.
// Уникальность QID, email основного регистранта и кода доступа проверяется
// так же, как ограничениями БД.
type memoryLedger struct {
	mu   sync.Mutex
	rows []*model.Registration
	seq  int
	// failCreate: номер вызова Create (с 1), который вернёт failCreateErr; 0 отключает
	failCreate    int
	failCreateErr error
	creates       int
}

func (l *memoryLedger) repo() *mockRegistrationRepo {
	m := &mockRegistrationRepo{
		createFn: func(_ context.Context, r *model.Registration) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.creates++
			if l.failCreate == l.creates {
				return l.failCreateErr
			}
			for _, row := range l.rows {
				switch {
				case row.QID == r.QID:
					return &repository.ConflictError{Field: "qid", Constraint: "registrations_qid_key"}
				case r.IsPrimary && row.IsPrimary && row.Email == r.Email:
					return &repository.ConflictError{Field: "email", Constraint: "registrations_primary_email_key"}
				case row.AccessToken == r.AccessToken:
					return &repository.ConflictError{Field: "accessToken", Constraint: "registrations_access_token_key"}
				}
			}
			l.seq++
			r.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", l.seq)
			r.Status = model.StatusRegistered
			r.CreatedAt = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
			r.UpdatedAt = r.CreatedAt
			cp := *r
			l.rows = append(l.rows, &cp)
			return nil
		},
		existsQIDFn: func(_ context.Context, q string) (bool, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, row := range l.rows {
				if row.QID == q {
					return true, nil
				}
			}
			return false, nil
		},
		existsEmailFn: func(_ context.Context, email string) (bool, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, row := range l.rows {
				if row.IsPrimary && row.Email == email {
					return true, nil
				}
			}
			return false, nil
		},
		countFn: func(_ context.Context, _ repository.RegistrationFilter) (int, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			return len(l.rows), nil
		},
	}
	// Транзакция: при ошибке fn строки возвращаются к снимку.
	m.inTxFn = func(_ context.Context, fn func(repository.RegistrationRepository) error) error {
		l.mu.Lock()
		snapshot := append([]*model.Registration(nil), l.rows...)
		l.mu.Unlock()

		if err := fn(m); err != nil {
			l.mu.Lock()
			l.rows = snapshot
			l.mu.Unlock()
			return err
		}
		return nil
	}
	return m
}

func (l *memoryLedger) add(r *model.Registration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	if r.ID == "" {
		r.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", l.seq)
	}
	if r.Status == "" {
		r.Status = model.StatusRegistered
	}
	l.rows = append(l.rows, r)
}

func (l *memoryLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

type mockSettingsRepo struct {
	getFn    func(ctx context.Context) (*model.SystemSettings, error)
	updateFn func(ctx context.Context, s *model.SystemSettings, actorID string, metadata map[string]any) error
}

func (m *mockSettingsRepo) Get(ctx context.Context) (*model.SystemSettings, error) {
	return m.getFn(ctx)
}
func (m *mockSettingsRepo) Update(ctx context.Context, s *model.SystemSettings, actorID string, metadata map[string]any) error {
	return m.updateFn(ctx, s, actorID, metadata)
}

// staticSettings возвращает копию настроек при каждом вызове Get.
func staticSettings(s model.SystemSettings) *mockSettingsRepo {
	return &mockSettingsRepo{
		getFn: func(context.Context) (*model.SystemSettings, error) {
			cp := s
			return &cp, nil
		},
	}
}

type mockUserRepo struct {
	createFn       func(ctx context.Context, u *model.User, actorID string) error
	getByIDFn      func(ctx context.Context, id string) (*model.User, error)
	getBySubjectFn func(ctx context.Context, subject string) (*model.User, error)
	getByEmailFn   func(ctx context.Context, email string) (*model.User, error)
	listFn         func(ctx context.Context) ([]*model.User, error)
	updateFn       func(ctx context.Context, u *model.User, actorID string, metadata map[string]any) error
	deactivateFn   func(ctx context.Context, id, actorID string) error
	linkSubjectFn  func(ctx context.Context, id, subject string) error
	touchLoginFn   func(ctx context.Context, id string) error
	ensureAdminFn  func(ctx context.Context, email, name string) (bool, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *model.User, actorID string) error {
	return m.createFn(ctx, u, actorID)
}
func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return m.getByIDFn(ctx, id)
}
func (m *mockUserRepo) GetBySubject(ctx context.Context, subject string) (*model.User, error) {
	return m.getBySubjectFn(ctx, subject)
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.getByEmailFn(ctx, email)
}
func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	return m.listFn(ctx)
}
func (m *mockUserRepo) Update(ctx context.Context, u *model.User, actorID string, metadata map[string]any) error {
	return m.updateFn(ctx, u, actorID, metadata)
}
func (m *mockUserRepo) Deactivate(ctx context.Context, id, actorID string) error {
	return m.deactivateFn(ctx, id, actorID)
}
func (m *mockUserRepo) LinkSubject(ctx context.Context, id, subject string) error {
	return m.linkSubjectFn(ctx, id, subject)
}
func (m *mockUserRepo) TouchLogin(ctx context.Context, id string) error {
	if m.touchLoginFn == nil {
		return nil
	}
	return m.touchLoginFn(ctx, id)
}
func (m *mockUserRepo) EnsureAdmin(ctx context.Context, email, name string) (bool, error) {
	return m.ensureAdminFn(ctx, email, name)
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditLogEntry
	err     error
}

func (m *mockAuditRepo) Append(_ context.Context, e *model.AuditLogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) List(context.Context, repository.AuditFilter, int, int) ([]*model.AuditLogEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, len(m.entries), nil
}

// seqTokens выдаёт коды из списка по порядку.
type seqTokens struct {
	mu     sync.Mutex
	tokens []string
	i      int
}

func (g *seqTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() { g.i++ }()
	if g.i >= len(g.tokens) {
		return fmt.Sprintf("SV-X%04d", g.i), nil
	}
	return g.tokens[g.i], nil
}

type sentRegistration struct {
	to     string
	event  notify.EventInfo
	people []notify.Person
}

// mockMailer записывает отправленные письма.
type mockMailer struct {
	mu     sync.Mutex
	sent   []sentRegistration
	invite []string
	err    error
}

func (m *mockMailer) SendRegistration(_ context.Context, to string, event notify.EventInfo, people []notify.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentRegistration{to: to, event: event, people: people})
	return m.err
}

func (m *mockMailer) SendInvite(_ context.Context, to, inviterName, registerURL string, _ notify.EventInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invite = append(m.invite, to+"|"+inviterName+"|"+registerURL)
	return m.err
}

func (m *mockMailer) registrations() []sentRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentRegistration(nil), m.sent...)
}

var testActor = &model.User{ID: "11111111-1111-1111-1111-111111111111", Name: "Admin", Role: "ADMIN", IsActive: true}
