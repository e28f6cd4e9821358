// Пакет model: доменные модели eventgate.
package model

import "time"

// AgeGroup: возрастная группа участника.
type AgeGroup string

const (
	AgeGroupKids   AgeGroup = "KIDS"
	AgeGroupYouth  AgeGroup = "YOUTH"
	AgeGroupAdult  AgeGroup = "ADULT"
	AgeGroupSenior AgeGroup = "SENIOR"
)

// AgeGroups: все возрастные группы в порядке возрастания.
var AgeGroups = []AgeGroup{AgeGroupKids, AgeGroupYouth, AgeGroupAdult, AgeGroupSenior}

// Valid проверяет принадлежность значения перечислению.
func (a AgeGroup) Valid() bool {
	switch a {
	case AgeGroupKids, AgeGroupYouth, AgeGroupAdult, AgeGroupSenior:
		return true
	}
	return false
}

// Label возвращает подпись группы для писем и выгрузок.
func (a AgeGroup) Label() string {
	switch a {
	case AgeGroupKids:
		return "Kids (Under 12)"
	case AgeGroupYouth:
		return "Youth (12-17)"
	case AgeGroupAdult:
		return "Adult (18-45)"
	case AgeGroupSenior:
		return "Senior (46+)"
	}
	return string(a)
}

// Gender: пол участника.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Genders: все значения пола.
var Genders = []Gender{GenderMale, GenderFemale}

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Status: состояние регистрации.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses: все состояния регистрации.
var Statuses = []Status{StatusRegistered, StatusCheckedIn, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusCheckedIn, StatusCancelled:
		return true
	}
	return false
}

// Registration: регистрация одного участника мероприятия.
// Хранится в таблице registrations.
type Registration struct {
	// ID: UUID записи
	ID string
	// QID: 11-значный национальный идентификатор (уникален)
	QID string
	// FullName: полное имя
	FullName string
	// AgeGroup: возрастная группа
	AgeGroup AgeGroup
	// Email: адрес основного регистранта (члены семьи используют его же)
	Email string
	// Nationality: гражданство (свободный текст)
	Nationality string
	// Gender: пол
	Gender Gender
	// AccessToken: код, закодированный в QR (уникален)
	AccessToken string
	// IsPrimary: основной регистрант (false для членов семьи)
	IsPrimary bool
	// Status: текущее состояние
	Status Status
	// CheckedInAt: время прохода, задано только при Status = CHECKED_IN
	CheckedInAt *time.Time
	// CheckedInBy: ID сотрудника, отметившего проход
	CheckedInBy *string
	// CreatedAt: время создания
	CreatedAt time.Time
	// UpdatedAt: время последнего изменения
	UpdatedAt time.Time

	// CheckedInByUser: сотрудник, отметивший проход (заполняется по запросу)
	CheckedInByUser *StaffSummary
}

// StaffSummary: краткие данные сотрудника для отображения рядом с регистрацией.
type StaffSummary struct {
	ID    string
	Name  string
	Email string
}

// MaskQID скрывает середину QID: 29012345601 → 290-XXXX-5601.
func MaskQID(qid string) string {
	if len(qid) < 8 {
		return qid
	}
	return qid[:3] + "-XXXX-" + qid[7:]
}
