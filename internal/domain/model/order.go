package model

import (
	"fmt"
	"time"
)

// ImageSlot — одна из четырёх фиксированных ролей снимка заказа.
type ImageSlot string

const (
	// SlotA — снимок пятки
	SlotA ImageSlot = "A"
	// SlotB — снимок ширины стопы
	SlotB ImageSlot = "B"
	// SlotC — снимок длины стопы
	SlotC ImageSlot = "C"
	// SlotD — снимок обхвата
	SlotD ImageSlot = "D"
)

// Slots — все слоты в порядке прохождения мастера.
var Slots = []ImageSlot{SlotA, SlotB, SlotC, SlotD}

// slotLabels — человекочитаемые метки слотов.
var slotLabels = map[ImageSlot]string{
	SlotA: "heel",
	SlotB: "width",
	SlotC: "length",
	SlotD: "circumference",
}

// Label возвращает человекочитаемую метку слота.
func (s ImageSlot) Label() string {
	return slotLabels[s]
}

// IsValid проверяет допустимость слота.
func (s ImageSlot) IsValid() bool {
	_, ok := slotLabels[s]
	return ok
}

// ParseSlot проверяет и нормализует строку слота.
func ParseSlot(s string) (ImageSlot, error) {
	slot := ImageSlot(s)
	if _, ok := slotLabels[slot]; !ok {
		return "", fmt.Errorf("недопустимый слот снимка: %q (допустимые: A, B, C, D)", s)
	}
	return slot, nil
}

// OrderStatus — статус заказа.
type OrderStatus string

const (
	// OrderProvisional — временный заказ, созданный мастером до отправки
	OrderProvisional OrderStatus = "provisional"
	// OrderSubmitted — заказ отправлен на расчёт
	OrderSubmitted OrderStatus = "submitted"
)

// Order — заказ: одна отправка четырёх снимков ортеза на расчёт мерок.
// Хранится в бэкенде, здесь — проекция для оркестрации загрузки.
type Order struct {
	// ID — UUID заказа
	ID string
	// UserID — Keycloak user ID владельца
	UserID string
	// Status — статус заказа
	Status OrderStatus
	// CreatedAt — время создания
	CreatedAt time.Time
}

// OrderImage — запись снимка в локальном реестре хранилища.
// Хранится в таблице order_images; бэкенд получает свою копию
// метаданных через GraphQL, локальная запись нужна сборщику мусора.
type OrderImage struct {
	// ID — UUID записи
	ID string
	// OrderID — UUID заказа
	OrderID string
	// Slot — слот снимка (A, B, C, D)
	Slot ImageSlot
	// StorageKey — ключ объекта в хранилище
	StorageKey string
	// PublicURL — публичный URL объекта
	PublicURL string
	// ContentType — MIME-тип снимка
	ContentType string
	// Size — размер снимка в байтах
	Size int64
	// UploadedBy — Keycloak user ID загрузившего
	UploadedBy string
	// Superseded — снимок заменён повторной съёмкой
	Superseded bool
	// UploadedAt — время загрузки
	UploadedAt time.Time
}
