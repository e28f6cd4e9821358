// Пакет qid: разбор национального идентификатора (QID) и
// классификация возраста для предзаполнения формы регистрации.
//
// Структура QID (11 цифр):
//   - цифра 1: век (2 означает 1900-е, 3 означает 2000-е)
//   - цифры 2-3: год рождения внутри века
//   - цифры 4-6: ISO 3166-1 numeric код страны
//   - цифры 7-11: порядковый номер
//
// Функции чистые, без ввода-вывода. Результат используется только
// для подсказок в форме и не переопределяет введённые пользователем данные.
package qid

import (
	"strings"
	"time"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

// Length: количество цифр в QID.
const Length = 11

// Границы возраста, за пределами которых классификация не выполняется.
const (
	minAge = 0
	maxAge = 120
)

// Parsed: результат разбора QID.
type Parsed struct {
	Valid     bool
	BirthYear int
	// CountryCode: трёхзначный ISO 3166-1 numeric код
	CountryCode string
	// Country: название страны, пусто если код не найден в справочнике
	Country string
}

// Normalize удаляет пробелы и дефисы.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

// IsWellFormed проверяет, что строка состоит ровно из 11 цифр.
func IsWellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Parse разбирает QID. Пробелы и дефисы игнорируются.
// Некорректный ввод даёт Parsed{Valid: false}, ошибки не возвращаются.
func Parse(s string) Parsed {
	clean := Normalize(s)
	if !IsWellFormed(clean) {
		return Parsed{}
	}

	var century int
	switch clean[0] {
	case '2':
		century = 1900
	case '3':
		century = 2000
	default:
		return Parsed{}
	}

	year := int(clean[1]-'0')*10 + int(clean[2]-'0')
	code := clean[3:6]

	return Parsed{
		Valid:       true,
		BirthYear:   century + year,
		CountryCode: code,
		Country:     CountryName(code),
	}
}

// CountryName возвращает название страны по numeric-коду.
// Короткие коды дополняются нулями слева ("48" → "048").
func CountryName(code string) string {
	if len(code) < 3 {
		code = strings.Repeat("0", 3-len(code)) + code
	}
	return countries[code]
}

// ClassifyAge относит возраст к группе по разнице лет, без учёта
// месяца и дня рождения. Возвращает false для возраста вне [0, 120].
func ClassifyAge(birthYear int, reference time.Time) (model.AgeGroup, bool) {
	age := reference.Year() - birthYear
	if age < minAge || age > maxAge {
		return "", false
	}

	switch {
	case age < 12:
		return model.AgeGroupKids, true
	case age <= 17:
		return model.AgeGroupYouth, true
	case age <= 45:
		return model.AgeGroupAdult, true
	default:
		return model.AgeGroupSenior, true
	}
}

// Prefill: подсказки для формы регистрации.
type Prefill struct {
	Parsed
	AgeGroup model.AgeGroup
}

// PrefillFor разбирает QID и вычисляет возрастную группу относительно reference.
func PrefillFor(s string, reference time.Time) Prefill {
	p := Prefill{Parsed: Parse(s)}
	if !p.Valid {
		return p
	}
	if group, ok := ClassifyAge(p.BirthYear, reference); ok {
		p.AgeGroup = group
	}
	return p
}
