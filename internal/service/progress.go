// progress.go — реестр прогресса загрузки снимков.
//
// Прогресс отражает этапы конвейера загрузки, а не байты:
//   0   — загрузка начата
//   25  — заказ проверен/создан
//   75  — объект записан в хранилище
//   100 — метаданные зафиксированы в бэкенде
//
// Ключ записи — "{orderID}_{slot}". Реестр живёт в памяти процесса.
// Терминальное состояние (100 или текст ошибки) остаётся под ключом,
// чтобы опрос после завершения загрузки видел итог; устаревшие записи
// вытесняются по TTL при следующей записи или чтении.
package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// Этапы конвейера загрузки.
const (
	ProgressStarted  = 0
	ProgressOrder    = 25
	ProgressStored   = 75
	ProgressComplete = 100
)

// progressTTL — срок жизни записи прогресса после последнего обновления.
const progressTTL = time.Hour

// ProgressEntry — состояние загрузки одного слота.
type ProgressEntry struct {
	// Percent — достигнутый этап конвейера (0, 25, 75, 100)
	Percent int
	// Error — текст ошибки, прервавшей конвейер; пустой при успехе
	Error string
	// UpdatedAt — момент последнего обновления записи
	UpdatedAt time.Time
}

// ProgressRegistry — потокобезопасный реестр прогресса загрузок.
type ProgressRegistry struct {
	mu      sync.Mutex
	entries map[string]ProgressEntry
	ttl     time.Duration
}

// NewProgressRegistry создаёт пустой реестр прогресса.
func NewProgressRegistry() *ProgressRegistry {
	return newProgressRegistry(progressTTL)
}

// newProgressRegistry — конструктор с настраиваемым TTL для тестов.
func newProgressRegistry(ttl time.Duration) *ProgressRegistry {
	return &ProgressRegistry{
		entries: make(map[string]ProgressEntry),
		ttl:     ttl,
	}
}

// progressKey строит ключ записи прогресса.
func progressKey(orderID string, slot model.ImageSlot) string {
	return fmt.Sprintf("%s_%s", orderID, slot)
}

// Set устанавливает прогресс загрузки слота и сбрасывает прежнюю ошибку.
func (p *ProgressRegistry) Set(orderID string, slot model.ImageSlot, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictStale()
	p.entries[progressKey(orderID, slot)] = ProgressEntry{
		Percent:   value,
		UpdatedAt: time.Now(),
	}
}

// Fail записывает текст ошибки под ключом слота, сохраняя достигнутый
// этап. Запись остаётся доступной для опроса до вытеснения по TTL.
func (p *ProgressRegistry) Fail(orderID string, slot model.ImageSlot, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictStale()
	key := progressKey(orderID, slot)
	entry := p.entries[key]
	entry.Error = message
	entry.UpdatedAt = time.Now()
	p.entries[key] = entry
}

// Get возвращает состояние загрузки слота.
// Второй результат — false, если загрузка не отслеживается
// или запись устарела.
func (p *ProgressRegistry) Get(orderID string, slot model.ImageSlot) (ProgressEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[progressKey(orderID, slot)]
	if !ok || time.Since(e.UpdatedAt) > p.ttl {
		return ProgressEntry{}, false
	}
	return e, true
}

// Clear удаляет запись прогресса. Используется при сбросе мастера.
func (p *ProgressRegistry) Clear(orderID string, slot model.ImageSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, progressKey(orderID, slot))
}

// evictStale удаляет записи, не обновлявшиеся дольше TTL.
// Вызывается под p.mu.
func (p *ProgressRegistry) evictStale() {
	for key, e := range p.entries {
		if time.Since(e.UpdatedAt) > p.ttl {
			delete(p.entries, key)
		}
	}
}
