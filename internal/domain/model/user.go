package model

import "time"

// User: сотрудник (администратор, менеджер, валидатор).
// Хранится в таблице users; аутентификация выполняется внешним IdP,
// связь с IdP: через Subject (claim sub).
type User struct {
	// ID: UUID записи
	ID string
	// Subject: идентификатор пользователя в IdP (nil до первого входа)
	Subject *string
	Email   string
	Name    string
	// Role: ADMIN, MANAGER или VALIDATOR
	Role string
	// IsActive: false после «удаления» (деактивации)
	IsActive  bool
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// CheckInsCount: количество отмеченных проходов (только в списке)
	CheckInsCount int
}
