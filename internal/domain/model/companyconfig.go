package model

import "time"

// CompanyConfig — настройки компании, редактируемые администратором.
// Хранится в бэкенде единственной записью.
type CompanyConfig struct {
	// Name — название компании
	Name string
	// Email — контактный адрес
	Email string
	// Phone — контактный телефон
	Phone string
	// Address — почтовый адрес
	Address string
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
