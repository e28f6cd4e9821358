package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/status"
)

// RegistrationFilter: фильтры для поиска регистраций.
type RegistrationFilter struct {
	// Query: подстрока имени, QID или email (без учёта регистра)
	Query       string
	Status      *model.Status
	AgeGroup    *model.AgeGroup
	Gender      *model.Gender
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// SortField: поле сортировки списка регистраций.
type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortFullName    SortField = "fullName"
	SortEmail       SortField = "email"
	SortAgeGroup    SortField = "ageGroup"
	SortQID         SortField = "qid"
	SortStatus      SortField = "status"
	SortCheckedInAt SortField = "checkedInAt"
)

// sortColumns: белый список полей сортировки → колонка SQL.
var sortColumns = map[SortField]string{
	SortCreatedAt:   "r.created_at",
	SortFullName:    "r.full_name",
	SortEmail:       "r.email",
	SortAgeGroup:    "r.age_group",
	SortQID:         "r.qid",
	SortStatus:      "r.status",
	SortCheckedInAt: "r.checked_in_at",
}

// ValidSortField проверяет, поддерживается ли поле сортировки.
func ValidSortField(f SortField) bool {
	_, ok := sortColumns[f]
	return ok
}

// ListOptions: сортировка и пагинация.
type ListOptions struct {
	Sort   SortField
	Desc   bool
	Limit  int
	Offset int
}

// Dimension: измерение для группировки.
type Dimension string

const (
	DimStatus      Dimension = "status"
	DimAgeGroup    Dimension = "age_group"
	DimGender      Dimension = "gender"
	DimNationality Dimension = "nationality"
)

// GroupCount: количество регистраций в группе.
type GroupCount struct {
	Key   string
	Count int
}

// DailyCount: количество регистраций за календарный день.
type DailyCount struct {
	Day   time.Time
	Count int
}

// CheckInRecord: отметка прохода для ленты последних проходов.
type CheckInRecord struct {
	RegistrationID string
	FullName       string
	AgeGroup       model.AgeGroup
	CheckedInAt    time.Time
	StaffName      string
}

// CheckInRejectedError возвращается, когда регистрация не в состоянии REGISTERED.
// Current: текущее состояние записи, Cause, *status.TransitionError.
type CheckInRejectedError struct {
	Current *model.Registration
	Cause   error
}

func (e *CheckInRejectedError) Error() string {
	return fmt.Sprintf("проход отклонён: %v", e.Cause)
}

func (e *CheckInRejectedError) Unwrap() error {
	return e.Cause
}

// RegistrationRepository: реестр регистраций (ledger). Единственный
// владелец строк регистраций: все изменения проходят через него.
type RegistrationRepository interface {
	// Create создаёт регистрацию. ID и временные метки заполняются.
	// Нарушение уникальности → *ConflictError (qid, email, accessToken).
	Create(ctx context.Context, r *model.Registration) error
	// GetByID возвращает регистрацию с данными отметившего сотрудника.
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	GetByToken(ctx context.Context, token string) (*model.Registration, error)
	GetByQID(ctx context.Context, qid string) (*model.Registration, error)
	// GetPrimaryByEmail ищет основного регистранта по email.
	GetPrimaryByEmail(ctx context.Context, email string) (*model.Registration, error)
	ExistsQID(ctx context.Context, qid string) (bool, error)
	ExistsPrimaryEmail(ctx context.Context, email string) (bool, error)
	// InTx выполняет fn с реестром, привязанным к одной транзакции: записи,
	// созданные внутри fn, фиксируются вместе или откатываются все.
	InTx(ctx context.Context, fn func(RegistrationRepository) error) error

	// UpdateStatus меняет статус по общему автомату и пишет аудит в той же транзакции.
	// changed=false: статус уже равен целевому, аудит не пишется.
	UpdateStatus(ctx context.Context, id string, to model.Status, actorID string) (reg *model.Registration, changed bool, err error)
	// CheckIn атомарно переводит REGISTERED → CHECKED_IN по токену и пишет аудит CHECK_IN.
	// Если регистрация в другом состоянии: *CheckInRejectedError.
	CheckIn(ctx context.Context, token, actorID string, metadata map[string]any) (*model.Registration, error)
	// Delete удаляет регистрацию и пишет аудит DELETE в той же транзакции.
	Delete(ctx context.Context, id, actorID string) error

	Count(ctx context.Context, filter RegistrationFilter) (int, error)
	// List возвращает страницу и общее количество записей по фильтру.
	List(ctx context.Context, filter RegistrationFilter, opts ListOptions) ([]*model.Registration, int, error)
	// ForEach обходит все записи по фильтру в порядке created_at (выгрузка).
	ForEach(ctx context.Context, filter RegistrationFilter, fn func(*model.Registration) error) error
	// GroupCount группирует записи по измерению; limit > 0: top-N по убыванию.
	GroupCount(ctx context.Context, dim Dimension, limit int) ([]GroupCount, error)
	// DailyCounts: регистрации по дням [from, to) в часовом поясе tz.
	DailyCounts(ctx context.Context, from, to time.Time, tz string) ([]DailyCount, error)
	// RecentCheckIns: последние отметки прохода.
	RecentCheckIns(ctx context.Context, limit int) ([]CheckInRecord, error)
}

type registrationRepo struct {
	db DBTX
}

// NewRegistrationRepository создаёт реализацию RegistrationRepository.
func NewRegistrationRepository(db DBTX) RegistrationRepository {
	return &registrationRepo{db: db}
}

const registrationColumns = `r.id, r.qid, r.full_name, r.age_group, r.email, r.nationality, r.gender,
	r.access_token, r.is_primary, r.status, r.checked_in_at, r.checked_in_by, r.created_at, r.updated_at`

const registrationWithStaffColumns = registrationColumns + `, u.id, u.name, u.email`

// scanRegistration сканирует строку из registrations в модель.
func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(
		&r.ID, &r.QID, &r.FullName, &r.AgeGroup, &r.Email, &r.Nationality, &r.Gender,
		&r.AccessToken, &r.IsPrimary, &r.Status, &r.CheckedInAt, &r.CheckedInBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// scanRegistrationWithStaff сканирует строку с присоединённым сотрудником.
func scanRegistrationWithStaff(row pgx.Row) (*model.Registration, error) {
	var (
		r                              model.Registration
		staffID, staffName, staffEmail *string
	)
	err := row.Scan(
		&r.ID, &r.QID, &r.FullName, &r.AgeGroup, &r.Email, &r.Nationality, &r.Gender,
		&r.AccessToken, &r.IsPrimary, &r.Status, &r.CheckedInAt, &r.CheckedInBy, &r.CreatedAt, &r.UpdatedAt,
		&staffID, &staffName, &staffEmail,
	)
	if err != nil {
		return nil, err
	}
	if staffID != nil {
		r.CheckedInByUser = &model.StaffSummary{ID: *staffID, Name: deref(staffName), Email: deref(staffEmail)}
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *registrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	if reg.Status == "" {
		reg.Status = model.StatusRegistered
	}

	// Внутри транзакции Begin создаёт savepoint: нарушение уникальности
	// откатывает только эту вставку, и вызывающий может повторить её
	// с другим кодом доступа или пропустить члена семьи.
	err := NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO registrations (
				id, qid, full_name, age_group, email, nationality, gender,
				access_token, is_primary, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at`,
			reg.ID, reg.QID, reg.FullName, reg.AgeGroup, reg.Email, reg.Nationality, reg.Gender,
			reg.AccessToken, reg.IsPrimary, reg.Status,
		).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	})
	if err != nil {
		if ce := asConflict(err); ce != nil {
			return ce
		}
		return fmt.Errorf("ошибка создания регистрации: %w", err)
	}
	return nil
}

func (r *registrationRepo) InTx(ctx context.Context, fn func(RegistrationRepository) error) error {
	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(&registrationRepo{db: tx})
	})
}

func (r *registrationRepo) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistrationWithStaff(r.db.QueryRow(ctx, `
		SELECT `+registrationWithStaffColumns+`
		FROM registrations r
		LEFT JOIN users u ON u.id = r.checked_in_by
		WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения регистрации %s: %w", id, err)
	}
	return reg, nil
}

// getOne: выборка одной регистрации по произвольной колонке.
func (r *registrationRepo) getOne(ctx context.Context, where string, arg any) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения регистрации: %w", err)
	}
	return reg, nil
}

func (r *registrationRepo) GetByToken(ctx context.Context, token string) (*model.Registration, error) {
	return r.getOne(ctx, "r.access_token = $1", token)
}

func (r *registrationRepo) GetByQID(ctx context.Context, qid string) (*model.Registration, error) {
	return r.getOne(ctx, "r.qid = $1", qid)
}

func (r *registrationRepo) GetPrimaryByEmail(ctx context.Context, email string) (*model.Registration, error) {
	return r.getOne(ctx, "r.email = $1 AND r.is_primary", email)
}

func (r *registrationRepo) ExistsQID(ctx context.Context, qid string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE qid = $1)`, qid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки QID: %w", err)
	}
	return exists, nil
}

func (r *registrationRepo) ExistsPrimaryEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE email = $1 AND is_primary)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки email: %w", err)
	}
	return exists, nil
}

func (r *registrationRepo) UpdateStatus(ctx context.Context, id string, to model.Status, actorID string) (*model.Registration, bool, error) {
	var (
		result  *model.Registration
		changed bool
	)

	err := NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		current, err := scanRegistration(tx.QueryRow(ctx,
			`SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки регистрации %s: %w", id, err)
		}

		if err := status.Validate(current.Status, to); err != nil {
			if errors.Is(err, status.ErrNoop) {
				result = current
				return nil
			}
			return err
		}

		// Факты прохода задаются при переходе в CHECKED_IN и сбрасываются при выходе из него
		var checkedInBy *string
		if to == model.StatusCheckedIn {
			checkedInBy = &actorID
		}
		updated, err := scanRegistration(tx.QueryRow(ctx, `
			UPDATE registrations r SET
				status = $2,
				checked_in_at = CASE WHEN $2 = 'CHECKED_IN' THEN now() ELSE NULL END,
				checked_in_by = $3,
				updated_at = now()
			WHERE r.id = $1
			RETURNING `+registrationColumns,
			id, to, checkedInBy))
		if err != nil {
			return fmt.Errorf("ошибка обновления статуса регистрации %s: %w", id, err)
		}

		if err := insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   status.AuditAction(to),
			Entity:   model.EntityRegistration,
			EntityID: &id,
			Metadata: map[string]any{"status": string(to), "previousStatus": string(current.Status)},
		}); err != nil {
			return err
		}

		result = updated
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// checkInAttempts: сколько раз повторяется отметка, если строка изменилась
// между условным UPDATE и повторным чтением.
const checkInAttempts = 2

func (r *registrationRepo) CheckIn(ctx context.Context, token, actorID string, metadata map[string]any) (*model.Registration, error) {
	var (
		reg *model.Registration
		err error
	)
	for attempt := 0; attempt < checkInAttempts; attempt++ {
		reg, err = r.checkInOnce(ctx, token, actorID, metadata)
		if !errors.Is(err, ErrCheckInRace) {
			break
		}
	}
	return reg, err
}

func (r *registrationRepo) checkInOnce(ctx context.Context, token, actorID string, metadata map[string]any) (*model.Registration, error) {
	var result *model.Registration

	err := NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		// Условное обновление: при гонке двух валидаторов строку меняет только первый,
		// второй после снятия блокировки видит CHECKED_IN и получает 0 строк.
		updated, err := scanRegistration(tx.QueryRow(ctx, `
			UPDATE registrations r SET
				status = 'CHECKED_IN',
				checked_in_at = now(),
				checked_in_by = $2,
				updated_at = now()
			WHERE r.access_token = $1 AND r.status = 'REGISTERED'
			RETURNING `+registrationColumns,
			token, actorID))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("ошибка отметки прохода: %w", err)
			}
			current, err := scanRegistration(tx.QueryRow(ctx,
				`SELECT `+registrationColumns+` FROM registrations r WHERE r.access_token = $1`, token))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("ошибка получения регистрации по токену: %w", err)
			}
			cause := status.ValidateCheckIn(current.Status)
			if cause == nil {
				// Строку изменили между UPDATE и чтением (отмена и восстановление),
				// сейчас она снова REGISTERED: повторная отметка безопасна.
				return ErrCheckInRace
			}
			return &CheckInRejectedError{Current: current, Cause: cause}
		}

		meta := map[string]any{"status": string(model.StatusCheckedIn)}
		for k, v := range metadata {
			meta[k] = v
		}
		if err := insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditCheckIn,
			Entity:   model.EntityRegistration,
			EntityID: &updated.ID,
			Metadata: meta,
		}); err != nil {
			return err
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *registrationRepo) Delete(ctx context.Context, id, actorID string) error {
	return NewTxRunner(r.db).RunInTx(ctx, func(tx pgx.Tx) error {
		var qid, token string
		err := tx.QueryRow(ctx,
			`DELETE FROM registrations WHERE id = $1 RETURNING qid, access_token`, id,
		).Scan(&qid, &token)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка удаления регистрации %s: %w", id, err)
		}

		return insertAudit(ctx, tx, &model.AuditLogEntry{
			UserID:   actorID,
			Action:   model.AuditDelete,
			Entity:   model.EntityRegistration,
			EntityID: &id,
			Metadata: map[string]any{"qid": model.MaskQID(qid), "accessToken": token},
		})
	})
}

func (r *registrationRepo) Count(ctx context.Context, filter RegistrationFilter) (int, error) {
	where, args := buildRegistrationWhere(filter, 1)

	var total int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM registrations r"+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта регистраций: %w", err)
	}
	return total, nil
}

func (r *registrationRepo) List(ctx context.Context, filter RegistrationFilter, opts ListOptions) ([]*model.Registration, int, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := buildRegistrationWhere(filter, 1)
	argIdx := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM registrations r
		LEFT JOIN users u ON u.id = r.checked_in_by%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		registrationWithStaffColumns, where, orderBy(opts), argIdx, argIdx+1)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка регистраций: %w", err)
	}
	defer rows.Close()

	var result []*model.Registration
	for rows.Next() {
		reg, err := scanRegistrationWithStaff(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования регистрации: %w", err)
		}
		result = append(result, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации регистраций: %w", err)
	}
	return result, total, nil
}

func (r *registrationRepo) ForEach(ctx context.Context, filter RegistrationFilter, fn func(*model.Registration) error) error {
	where, args := buildRegistrationWhere(filter, 1)

	rows, err := r.db.Query(ctx, `
		SELECT `+registrationWithStaffColumns+`
		FROM registrations r
		LEFT JOIN users u ON u.id = r.checked_in_by`+where+`
		ORDER BY r.created_at, r.id`, args...)
	if err != nil {
		return fmt.Errorf("ошибка выборки регистраций: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		reg, err := scanRegistrationWithStaff(rows)
		if err != nil {
			return fmt.Errorf("ошибка сканирования регистрации: %w", err)
		}
		if err := fn(reg); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ошибка итерации регистраций: %w", err)
	}
	return nil
}

// dimensionColumns: белый список измерений группировки.
var dimensionColumns = map[Dimension]string{
	DimStatus:      "status",
	DimAgeGroup:    "age_group",
	DimGender:      "gender",
	DimNationality: "nationality",
}

func (r *registrationRepo) GroupCount(ctx context.Context, dim Dimension, limit int) ([]GroupCount, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return nil, fmt.Errorf("неизвестное измерение группировки: %q", dim)
	}

	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM registrations
		GROUP BY %[1]s
		ORDER BY COUNT(*) DESC, %[1]s`, col)
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка группировки регистраций по %s: %w", col, err)
	}
	defer rows.Close()

	var result []GroupCount
	for rows.Next() {
		var gc GroupCount
		if err := rows.Scan(&gc.Key, &gc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования группы: %w", err)
		}
		result = append(result, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации групп: %w", err)
	}
	return result, nil
}

func (r *registrationRepo) DailyCounts(ctx context.Context, from, to time.Time, tz string) ([]DailyCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT (created_at AT TIME ZONE $3)::date AS day, COUNT(*)
		FROM registrations
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day`, from, to, tz)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта регистраций по дням: %w", err)
	}
	defer rows.Close()

	var result []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования дня: %w", err)
		}
		result = append(result, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации дней: %w", err)
	}
	return result, nil
}

func (r *registrationRepo) RecentCheckIns(ctx context.Context, limit int) ([]CheckInRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.full_name, r.age_group, r.checked_in_at, COALESCE(u.name, '')
		FROM registrations r
		LEFT JOIN users u ON u.id = r.checked_in_by
		WHERE r.status = 'CHECKED_IN'
		ORDER BY r.checked_in_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последних проходов: %w", err)
	}
	defer rows.Close()

	var result []CheckInRecord
	for rows.Next() {
		var rec CheckInRecord
		if err := rows.Scan(&rec.RegistrationID, &rec.FullName, &rec.AgeGroup, &rec.CheckedInAt, &rec.StaffName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования прохода: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации проходов: %w", err)
	}
	return result, nil
}

// buildRegistrationWhere строит WHERE-клаузулу для фильтрации регистраций.
func buildRegistrationWhere(filter RegistrationFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argIdx := startArg

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(r.full_name ILIKE $%[1]d OR r.qid LIKE $%[1]d OR r.email ILIKE $%[1]d)", argIdx))
		args = append(args, "%"+escapeLike(q)+"%")
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.AgeGroup != nil {
		conditions = append(conditions, fmt.Sprintf("r.age_group = $%d", argIdx))
		args = append(args, *filter.AgeGroup)
		argIdx++
	}
	if filter.Gender != nil {
		conditions = append(conditions, fmt.Sprintf("r.gender = $%d", argIdx))
		args = append(args, *filter.Gender)
		argIdx++
	}
	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("r.created_at >= $%d", argIdx))
		args = append(args, *filter.CreatedFrom)
		argIdx++
	}
	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("r.created_at < $%d", argIdx))
		args = append(args, *filter.CreatedTo)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// orderBy строит ORDER BY по белому списку; по умолчанию: новые первыми.
func orderBy(opts ListOptions) string {
	col, ok := sortColumns[opts.Sort]
	if !ok {
		return "r.created_at DESC, r.id"
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	nulls := ""
	if opts.Sort == SortCheckedInAt {
		nulls = " NULLS LAST"
	}
	return col + " " + dir + nulls + ", r.id"
}
