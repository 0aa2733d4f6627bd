// measure.go — имитация расчёта мерок по снимкам.
//
// Реальный фотограмметрический расчёт не входит в задачи Portal Module:
// заказ уходит на ручной анализ, а пользователю сразу показываются
// предварительные мерки. Имитация занимает настраиваемое время
// (PM_MEASURE_DELAY) и возвращает значения в правдоподобных для
// детской стопы диапазонах.
package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// measureRange — диапазон значения мерки в миллиметрах.
type measureRange struct {
	min, max float64
}

// Диапазоны детской стопы (мм).
var (
	rangeHeel          = measureRange{40, 80}
	rangeWidth         = measureRange{50, 90}
	rangeLength        = measureRange{100, 180}
	rangeCircumference = measureRange{120, 200}
)

// Calculator — имитатор расчёта мерок.
type Calculator struct {
	delay time.Duration
}

// NewCalculator создаёт имитатор с указанной длительностью расчёта.
func NewCalculator(delay time.Duration) *Calculator {
	return &Calculator{delay: delay}
}

// Calculate имитирует расчёт мерок: ждёт настроенную длительность
// и возвращает четыре значения. Прерывается по ctx.
func (c *Calculator) Calculate(ctx context.Context) (model.Measurements, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.Measurements{}, ctx.Err()
		case <-timer.C:
		}
	}

	return model.Measurements{
		Heel:          roundMm(randomIn(rangeHeel)),
		Width:         roundMm(randomIn(rangeWidth)),
		Length:        roundMm(randomIn(rangeLength)),
		Circumference: roundMm(randomIn(rangeCircumference)),
	}, nil
}

// randomIn возвращает случайное значение в диапазоне.
func randomIn(r measureRange) float64 {
	return r.min + rand.Float64()*(r.max-r.min)
}

// roundMm округляет до одного знака после запятой.
func roundMm(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
