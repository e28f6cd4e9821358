package model

import "time"

// SettingsID: идентификатор единственной строки system_settings.
const SettingsID = "default"

// SystemSettings: глобальные настройки мероприятия (singleton).
type SystemSettings struct {
	RegistrationOpen bool
	MaxRegistrations int
	EventName        string
	EventDate        *time.Time
	EventLocation    string
	ContactEmail     string
	UpdatedAt        time.Time
}
