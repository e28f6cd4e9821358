package model

import "time"

// AuditAction: тип действия в журнале аудита.
type AuditAction string

const (
	AuditCreate  AuditAction = "CREATE"
	AuditUpdate  AuditAction = "UPDATE"
	AuditDelete  AuditAction = "DELETE"
	AuditCheckIn AuditAction = "CHECK_IN"
	AuditExport  AuditAction = "EXPORT"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditUpdate, AuditDelete, AuditCheckIn, AuditExport:
		return true
	}
	return false
}

// Имена сущностей в журнале аудита.
const (
	EntityRegistration   = "Registration"
	EntityUser           = "User"
	EntitySystemSettings = "SystemSettings"
)

// AuditLogEntry: запись журнала аудита. Записи только добавляются.
type AuditLogEntry struct {
	ID string
	// UserID: ID сотрудника, выполнившего действие
	UserID string
	Action AuditAction
	Entity string
	// EntityID: nil для массовых действий (EXPORT)
	EntityID  *string
	Metadata  map[string]any
	CreatedAt time.Time

	// UserName: имя сотрудника (заполняется при чтении журнала)
	UserName string
}
