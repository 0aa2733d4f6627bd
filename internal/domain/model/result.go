package model

import (
	"fmt"
	"time"
)

// ProcessingStatus — канонический статус обработки результата.
// Исторически клиентский список и админский детальный вид использовали
// разные словари; здесь статус обработки и вердикт проверки разведены
// в два независимых поля.
type ProcessingStatus string

const (
	// StatusPendente — результат ожидает обработки
	StatusPendente ProcessingStatus = "pendente"
	// StatusEmAnalise — результат на проверке у администратора
	StatusEmAnalise ProcessingStatus = "em_analise"
	// StatusConcluido — обработка завершена
	StatusConcluido ProcessingStatus = "concluido"
)

// ParseProcessingStatus проверяет строку статуса обработки.
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch ProcessingStatus(s) {
	case StatusPendente, StatusEmAnalise, StatusConcluido:
		return ProcessingStatus(s), nil
	}
	return "", fmt.Errorf("недопустимый статус обработки: %q (допустимые: pendente, em_analise, concluido)", s)
}

// IsValid проверяет допустимость статуса обработки.
func (s ProcessingStatus) IsValid() bool {
	_, err := ParseProcessingStatus(string(s))
	return err == nil
}

// ReviewOutcome — вердикт администратора по завершённому результату.
type ReviewOutcome string

const (
	// OutcomeAprovado — результат одобрен
	OutcomeAprovado ReviewOutcome = "aprovado"
	// OutcomeRecusado — результат отклонён
	OutcomeRecusado ReviewOutcome = "recusado"
)

// ParseReviewOutcome проверяет строку вердикта.
func ParseReviewOutcome(s string) (ReviewOutcome, error) {
	switch ReviewOutcome(s) {
	case OutcomeAprovado, OutcomeRecusado:
		return ReviewOutcome(s), nil
	}
	return "", fmt.Errorf("недопустимый вердикт: %q (допустимые: aprovado, recusado)", s)
}

// IsValid проверяет допустимость вердикта.
func (o ReviewOutcome) IsValid() bool {
	_, err := ParseReviewOutcome(string(o))
	return err == nil
}

// Measurements — четыре расчётные мерки стопы в миллиметрах.
type Measurements struct {
	// Heel — высота пятки
	Heel float64 `json:"heel"`
	// Width — ширина стопы
	Width float64 `json:"width"`
	// Length — длина стопы
	Length float64 `json:"length"`
	// Circumference — обхват стопы
	Circumference float64 `json:"circumference"`
}

// MeasurementResult — результат расчёта мерок по заказу.
// Хранится в бэкенде; здесь — проекция для клиентского и админского API.
type MeasurementResult struct {
	// ID — UUID результата
	ID string
	// OrderID — UUID заказа
	OrderID string
	// UserID — Keycloak user ID владельца заказа
	UserID string
	// Status — канонический статус обработки
	Status ProcessingStatus
	// Outcome — вердикт администратора (nil, пока статус не concluido)
	Outcome *ReviewOutcome
	// Measurements — расчётные мерки (nil до завершения расчёта)
	Measurements *Measurements
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
