// Пакет wizard — конечный автомат мастера фотосъёмки.
//
// Линейный жизненный цикл сессии:
//   intro → capture_a → capture_b → capture_c → capture_d → result
//
// Переходы только на один шаг вперёд/назад, без пропусков.
// Уйти вперёд с шага съёмки можно только после фиксации снимка
// текущего слота — это правило обеспечивает сам автомат, а не
// слой представления. Сброс возвращает сессию в intro и очищает
// снимки, мерки и идентификатор временного заказа.
//
// Экземпляр Session не потокобезопасен: он загружается из БД на
// время одного запроса и сохраняется обратно под ключом пользователя.
package wizard

import (
	"fmt"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// Step — шаг мастера.
type Step int

const (
	// StepIntro — приветственный шаг
	StepIntro Step = 0
	// StepCaptureA — съёмка пятки
	StepCaptureA Step = 1
	// StepCaptureB — съёмка ширины
	StepCaptureB Step = 2
	// StepCaptureC — съёмка длины
	StepCaptureC Step = 3
	// StepCaptureD — съёмка обхвата
	StepCaptureD Step = 4
	// StepResult — результат расчёта
	StepResult Step = 5
)

// stepNames — машиночитаемые имена шагов.
var stepNames = map[Step]string{
	StepIntro:    "intro",
	StepCaptureA: "capture_a",
	StepCaptureB: "capture_b",
	StepCaptureC: "capture_c",
	StepCaptureD: "capture_d",
	StepResult:   "result",
}

// captureSlots — соответствие шагов съёмки слотам снимков.
var captureSlots = map[Step]model.ImageSlot{
	StepCaptureA: model.SlotA,
	StepCaptureB: model.SlotB,
	StepCaptureC: model.SlotC,
	StepCaptureD: model.SlotD,
}

// String возвращает машиночитаемое имя шага.
func (s Step) String() string {
	name, ok := stepNames[s]
	if !ok {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return name
}

// IsValid проверяет, является ли значение допустимым шагом.
func (s Step) IsValid() bool {
	_, ok := stepNames[s]
	return ok
}

// Session — состояние мастера одного пользователя.
// Хранится в таблице wizard_sessions, одна активная сессия на пользователя.
type Session struct {
	// ID — UUID сессии
	ID string
	// UserID — Keycloak user ID владельца
	UserID string
	// Step — текущий шаг
	Step Step
	// OrderID — UUID временного заказа (пустой до первой загрузки)
	OrderID string
	// Photos — URL зафиксированных снимков по слотам
	Photos map[model.ImageSlot]string
	// Measurements — расчётные мерки (nil до завершения расчёта)
	Measurements *model.Measurements
	// Calculating — идёт имитация расчёта мерок
	Calculating bool
	// CreatedAt — время создания сессии
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// NewSession создаёт сессию мастера на шаге intro.
func NewSession(id, userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		UserID:    userID,
		Step:      StepIntro,
		Photos:    make(map[model.ImageSlot]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentSlot возвращает слот текущего шага съёмки.
// Для intro и result второй результат — false.
func (s *Session) CurrentSlot() (model.ImageSlot, bool) {
	slot, ok := captureSlots[s.Step]
	return slot, ok
}

// Next переходит на один шаг вперёд.
//
// Ошибки:
//   - PHOTO_REQUIRED — на шаге съёмки нет снимка текущего слота
//   - AT_END — мастер уже на шаге result
func (s *Session) Next() error {
	if s.Step == StepResult {
		return &TransitionError{
			Code:    "AT_END",
			Message: "мастер уже на последнем шаге",
		}
	}

	// С шага съёмки уходим вперёд только после фиксации снимка
	if slot, ok := captureSlots[s.Step]; ok {
		if s.Photos[slot] == "" {
			return &TransitionError{
				Code: "PHOTO_REQUIRED",
				Message: fmt.Sprintf("шаг %s: нет снимка слота %s (%s)",
					s.Step, slot, slot.Label()),
			}
		}
	}

	s.Step++
	s.touch()
	return nil
}

// Prev переходит на один шаг назад.
//
// Ошибки:
//   - AT_START — мастер уже на шаге intro
func (s *Session) Prev() error {
	if s.Step == StepIntro {
		return &TransitionError{
			Code:    "AT_START",
			Message: "мастер уже на первом шаге",
		}
	}
	s.Step--
	s.touch()
	return nil
}

// Reset возвращает мастер на шаг intro и очищает все снимки,
// мерки и идентификатор временного заказа.
func (s *Session) Reset() {
	s.Step = StepIntro
	s.OrderID = ""
	s.Photos = make(map[model.ImageSlot]string)
	s.Measurements = nil
	s.Calculating = false
	s.touch()
}

// SetPhoto фиксирует URL снимка слота текущего шага съёмки.
//
// Ошибки:
//   - NOT_CAPTURE_STEP — текущий шаг не является шагом съёмки
//   - SLOT_MISMATCH — слот не соответствует текущему шагу
func (s *Session) SetPhoto(slot model.ImageSlot, url string) error {
	current, ok := captureSlots[s.Step]
	if !ok {
		return &TransitionError{
			Code:    "NOT_CAPTURE_STEP",
			Message: fmt.Sprintf("шаг %s не является шагом съёмки", s.Step),
		}
	}
	if slot != current {
		return &TransitionError{
			Code: "SLOT_MISMATCH",
			Message: fmt.Sprintf("шаг %s ожидает слот %s, получен %s",
				s.Step, current, slot),
		}
	}

	s.Photos[slot] = url
	s.touch()
	return nil
}

// AllPhotos сообщает, зафиксированы ли снимки всех четырёх слотов.
func (s *Session) AllPhotos() bool {
	for _, slot := range model.Slots {
		if s.Photos[slot] == "" {
			return false
		}
	}
	return true
}

// BeginCalculation помечает начало имитации расчёта мерок.
//
// Ошибки:
//   - NOT_RESULT_STEP — расчёт доступен только на шаге result
//   - CALCULATION_IN_PROGRESS — расчёт уже идёт
func (s *Session) BeginCalculation() error {
	if s.Step != StepResult {
		return &TransitionError{
			Code:    "NOT_RESULT_STEP",
			Message: fmt.Sprintf("расчёт мерок доступен только на шаге result, текущий шаг %s", s.Step),
		}
	}
	if s.Calculating {
		return &TransitionError{
			Code:    "CALCULATION_IN_PROGRESS",
			Message: "расчёт мерок уже выполняется",
		}
	}
	s.Calculating = true
	s.touch()
	return nil
}

// CompleteCalculation фиксирует расчётные мерки и снимает флаг расчёта.
func (s *Session) CompleteCalculation(m model.Measurements) {
	s.Measurements = &m
	s.Calculating = false
	s.touch()
}

// touch обновляет время последнего изменения.
func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// TransitionError — ошибка перехода мастера.
type TransitionError struct {
	Code    string // Машиночитаемый код (PHOTO_REQUIRED, AT_END, ...)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
