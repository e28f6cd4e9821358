// errors.go: ошибки бизнес-логики сервисного слоя.
//
// Каждая ошибка рабочего процесса несёт вид (Kind) из закрытого набора,
// по которому слой API выбирает HTTP-статус и код, не разбирая текст.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// Kind: вид ошибки рабочего процесса.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindConflict         Kind = "CONFLICT"
	KindClosed           Kind = "CLOSED"
	KindCapacity         Kind = "CAPACITY"
	KindNotFound         Kind = "NOT_FOUND"
	KindAlreadyCheckedIn Kind = "ALREADY_CHECKED_IN"
	KindCancelled        Kind = "CANCELLED"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindForbidden        Kind = "FORBIDDEN"
)

// CheckInFacts: данные предыдущего прохода для AlreadyCheckedIn.
type CheckInFacts struct {
	ID          string
	FullName    string
	AgeGroup    model.AgeGroup
	CheckedInAt time.Time
}

// Error: ошибка рабочего процесса.
type Error struct {
	Kind    Kind
	Message string
	// Fields: сообщения по полям (Validation)
	Fields map[string]string
	// Field: поле, вызвавшее конфликт (Conflict)
	Field string
	// CheckIn: факты предыдущего прохода (AlreadyCheckedIn)
	CheckIn *CheckInFacts
	// Err: исходная ошибка
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError создаёт ошибку вида kind.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// validationError: ошибка валидации с сообщениями по полям.
func validationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "ошибка валидации входных данных", Fields: fields}
}

// KindOf возвращает вид ошибки или пустую строку для прочих ошибок.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind проверяет вид ошибки.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsError извлекает *Error из цепочки.
func AsError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
