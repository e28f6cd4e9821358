// Пакет rbac: роли сотрудников и права на операции.
//
// Каждая операция объявляет требуемое право (Capability); право
// проверяется один раз на границе API по фиксированной матрице ролей.
package rbac

import "slices"

// Роли сотрудников.
const (
	RoleAdmin     = "ADMIN"
	RoleManager   = "MANAGER"
	RoleValidator = "VALIDATOR"
)

// Roles: все допустимые роли.
var Roles = []string{RoleAdmin, RoleManager, RoleValidator}

// Capability: право на выполнение операции.
type Capability string

const (
	// Просмотр регистраций, статистики и настроек
	CapViewRegistrations Capability = "registrations:view"
	// Изменение статуса регистрации
	CapUpdateRegistration Capability = "registrations:update"
	// Удаление регистрации
	CapDeleteRegistration Capability = "registrations:delete"
	// Выгрузка регистраций в CSV/XLSX
	CapExportRegistrations Capability = "registrations:export"
	// Отметка прохода и ручной поиск на входе
	CapCheckIn Capability = "validation:check-in"
	// Управление сотрудниками
	CapManageUsers Capability = "users:manage"
	// Изменение глобальных настроек
	CapManageSettings Capability = "settings:manage"
	// Просмотр журнала аудита
	CapViewAudit Capability = "audit:view"
	// Отправка приглашений
	CapInvite Capability = "invite:send"
)

// grants: матрица прав по ролям.
var grants = map[string][]Capability{
	RoleAdmin: {
		CapViewRegistrations, CapUpdateRegistration, CapDeleteRegistration,
		CapExportRegistrations, CapCheckIn, CapManageUsers, CapManageSettings,
		CapViewAudit, CapInvite,
	},
	RoleManager: {
		CapViewRegistrations, CapUpdateRegistration, CapExportRegistrations, CapCheckIn,
	},
	RoleValidator: {
		CapViewRegistrations, CapUpdateRegistration, CapCheckIn,
	},
}

// Can проверяет, есть ли у роли право cap.
func Can(role string, cap Capability) bool {
	return slices.Contains(grants[role], cap)
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := grants[role]
	return ok
}
