// Пакет repository: слой доступа к данным PostgreSQL.
// Все запросы: чистый SQL через pgx, без ORM.
//
// Операции, меняющие состояние и требующие записи аудита, выполняются
// внутри одной транзакции: изменение и запись журнала фиксируются
// вместе или не фиксируются вовсе.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict: конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: запись уже существует")
	// ErrCheckInRace: регистрация менялась параллельно с отметкой прохода,
	// и повторные попытки не дали стабильного состояния.
	ErrCheckInRace = errors.New("регистрация изменена во время отметки прохода")
)

// ConflictError: нарушение ограничения уникальности с указанием поля.
// errors.Is(err, ErrConflict) возвращает true.
type ConflictError struct {
	// Field: имя поля в терминах API (qid, email, accessToken, subject)
	Field string
	// Constraint: имя нарушенного ограничения PostgreSQL
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: поле %s", ErrConflict.Error(), e.Field)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// conflictFields: имя ограничения → поле API.
var conflictFields = map[string]string{
	"registrations_qid_key":           "qid",
	"registrations_primary_email_key": "email",
	"registrations_access_token_key":  "accessToken",
	"users_email_key":                 "email",
	"users_subject_key":               "subject",
}

// ConflictField возвращает поле, вызвавшее конфликт, или пустую строку.
func ConflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

// DBTX: интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций
// (Begin внутри транзакции создаёт savepoint).
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	db DBTX
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(db DBTX) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn: транзакция откатывается.
// При успехе: коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита, no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// asConflict превращает нарушение уникальности в *ConflictError.
// Для остальных ошибок возвращает nil.
func asConflict(err error) *ConflictError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	field, ok := conflictFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return &ConflictError{Field: field, Constraint: pgErr.ConstraintName}
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
