// validate.go: валидация входных данных через go-playground/validator.
package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/eventgate/internal/domain/qid"
)

// personNameRe: буквы любых алфавитов, пробелы, дефисы и апострофы.
var personNameRe = regexp.MustCompile(`^[\p{L}\p{M}\s\-']+$`)

// newValidator создаёт валидатор с именами полей из json-тегов
// и пользовательскими правилами qid и personname.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("qid", func(fl validator.FieldLevel) bool {
		return qid.IsWellFormed(fl.Field().String())
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRe.MatchString(fl.Field().String())
	})

	return v
}

// validateStruct проверяет структуру и возвращает *Error вида Validation
// с сообщениями по полям.
func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка валидации: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}
	return validationError(fields)
}

// fieldPath убирает имя корневой структуры: IntakeRequest.familyMembers[0].qid → familyMembers[0].qid.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "email":
		return "некорректный email"
	case "qid":
		return "QID должен состоять ровно из 11 цифр"
	case "personname":
		return "допустимы только буквы, пробелы, дефисы и апострофы"
	case "oneof":
		return "допустимые значения: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("не менее %s элементов", fe.Param())
		}
		return fmt.Sprintf("минимальная длина %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("не более %s элементов", fe.Param())
		}
		return fmt.Sprintf("максимальная длина %s", fe.Param())
	case "gte":
		return fmt.Sprintf("значение должно быть не меньше %s", fe.Param())
	case "lte":
		return fmt.Sprintf("значение должно быть не больше %s", fe.Param())
	default:
		return fmt.Sprintf("не прошло проверку %s", fe.Tag())
	}
}
