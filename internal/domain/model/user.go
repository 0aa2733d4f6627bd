// Пакет model — доменные модели Portal Module.
package model

import "time"

// PortalUser — пользователь из Keycloak с данными зеркала в бэкенде.
// Формируется из данных Keycloak + таблицы users бэкенда.
type PortalUser struct {
	// ID — Keycloak user ID (sub)
	ID string
	// Username — имя пользователя в Keycloak
	Username string
	// Email — адрес электронной почты
	Email string
	// FirstName — имя
	FirstName string
	// LastName — фамилия
	LastName string
	// Enabled — активен ли аккаунт в Keycloak
	Enabled bool
	// Groups — группы пользователя из IdP
	Groups []string
	// Role — роль приложения (app_admin, user)
	Role string
	// CreatedAt — дата создания в Keycloak
	CreatedAt time.Time
}
