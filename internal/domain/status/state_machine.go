// Пакет status: конечный автомат состояний регистрации.
//
// Общий автомат (административное изменение статуса) допускает любой
// переход между REGISTERED, CHECKED_IN и CANCELLED; переход в то же
// состояние: no-op. Автомат прохода на входе строже: отметить можно
// только регистрацию в состоянии REGISTERED.
package status

import (
	"errors"
	"fmt"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// Коды ошибок переходов.
const (
	CodeInvalidStatus     = "INVALID_STATUS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyCheckedIn  = "ALREADY_CHECKED_IN"
	CodeCancelled         = "REGISTRATION_CANCELLED"
)

// ErrNoop: переход в текущее состояние, изменений нет.
var ErrNoop = errors.New("статус не изменился")

// validTransitions: матрица допустимых переходов общего автомата.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusRegistered: {model.StatusCheckedIn: true, model.StatusCancelled: true},
	model.StatusCheckedIn:  {model.StatusCancelled: true, model.StatusRegistered: true},
	// CANCELLED → CHECKED_IN разрешён только здесь, проход на входе его запрещает
	model.StatusCancelled: {model.StatusRegistered: true, model.StatusCheckedIn: true},
}

// TransitionError: ошибка перехода между состояниями.
type TransitionError struct {
	Code    string
	From    model.Status
	To      model.Status
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validate проверяет переход from → to общего автомата.
// Возвращает ErrNoop, если from == to.
func Validate(from, to model.Status) error {
	if !to.Valid() {
		return &TransitionError{
			Code:    CodeInvalidStatus,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("недопустимый статус %q, допустимые: REGISTERED, CHECKED_IN, CANCELLED", to),
		}
	}
	if from == to {
		return ErrNoop
	}
	if !validTransitions[from][to] {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
		}
	}
	return nil
}

// ValidateCheckIn проверяет, можно ли отметить проход регистрации
// в состоянии current через рабочее место валидатора.
func ValidateCheckIn(current model.Status) error {
	switch current {
	case model.StatusRegistered:
		return nil
	case model.StatusCheckedIn:
		return &TransitionError{
			Code: CodeAlreadyCheckedIn, From: current, To: model.StatusCheckedIn,
			Message: "проход уже отмечен",
		}
	case model.StatusCancelled:
		return &TransitionError{
			Code: CodeCancelled, From: current, To: model.StatusCheckedIn,
			Message: "регистрация отменена",
		}
	default:
		return &TransitionError{
			Code: CodeInvalidStatus, From: current, To: model.StatusCheckedIn,
			Message: fmt.Sprintf("неизвестный статус %q", current),
		}
	}
}

// AuditAction возвращает действие аудита для перехода в target:
// CHECK_IN для прохода, UPDATE для остальных изменений.
func AuditAction(target model.Status) model.AuditAction {
	if target == model.StatusCheckedIn {
		return model.AuditCheckIn
	}
	return model.AuditUpdate
}

// Parse преобразует строку в Status.
func Parse(s string) (model.Status, error) {
	st := model.Status(s)
	if !st.Valid() {
		return "", &TransitionError{
			Code:    CodeInvalidStatus,
			To:      st,
			Message: fmt.Sprintf("недопустимый статус %q, допустимые: REGISTERED, CHECKED_IN, CANCELLED", s),
		}
	}
	return st, nil
}
