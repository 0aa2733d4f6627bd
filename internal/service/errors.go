// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrBackendUnavailable — GraphQL-бэкенд недоступен.
	ErrBackendUnavailable = errors.New("GraphQL-бэкенд недоступен")
	// ErrStorageUnavailable — хранилище снимков недоступно.
	ErrStorageUnavailable = errors.New("хранилище снимков недоступно")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)
