// results.go — сервис результатов расчёта мерок.
// Чтение — сквозь бэкенд с токеном пользователя; изменение статуса
// и мерок — административные операции.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// ResultService — сервис результатов расчёта.
type ResultService struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewResultService создаёт сервис результатов.
func NewResultService(bc *backend.Client, logger *slog.Logger) *ResultService {
	return &ResultService{
		backend: bc,
		logger:  logger.With(slog.String("component", "result_service")),
	}
}

// ListMine возвращает результаты текущего пользователя.
func (s *ResultService) ListMine(ctx context.Context, token, userID string) ([]model.MeasurementResult, error) {
	results, err := s.backend.ListResults(ctx, token, userID)
	if err != nil {
		return nil, fmt.Errorf("получение результатов пользователя: %w", err)
	}
	return results, nil
}

// ListAll возвращает все результаты с пагинацией (административная операция).
func (s *ResultService) ListAll(ctx context.Context, token string, limit, offset int) ([]model.MeasurementResult, int, error) {
	results, total, err := s.backend.ListAllResults(ctx, token, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка результатов: %w", err)
	}
	return results, total, nil
}

// Get возвращает результат по идентификатору.
func (s *ResultService) Get(ctx context.Context, token, id string) (*model.MeasurementResult, error) {
	res, err := s.backend.GetResult(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("получение результата %s: %w", id, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: результат %s", ErrNotFound, id)
	}
	return res, nil
}

// UpdateStatus изменяет статус обработки результата.
//
// Итог проверки (aprovado/recusado) допустим только вместе со статусом
// concluido: пока анализ не завершён, у результата нет итога.
func (s *ResultService) UpdateStatus(ctx context.Context, token, id string, status model.ProcessingStatus, outcome *model.ReviewOutcome) (*model.MeasurementResult, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}
	if outcome != nil {
		if !outcome.IsValid() {
			return nil, fmt.Errorf("%w: недопустимый итог проверки %q", ErrValidation, *outcome)
		}
		if status != model.StatusConcluido {
			return nil, fmt.Errorf("%w: итог проверки допустим только со статусом concluido", ErrValidation)
		}
	}

	if err := s.backend.UpdateResultStatus(ctx, token, id, status, outcome); err != nil {
		return nil, fmt.Errorf("обновление статуса результата %s: %w", id, err)
	}

	s.logger.Info("Статус результата обновлён",
		slog.String("result_id", id),
		slog.String("status", string(status)),
	)

	return s.Get(ctx, token, id)
}

// UpdateMeasurements корректирует мерки результата (административная операция).
func (s *ResultService) UpdateMeasurements(ctx context.Context, token, id string, m model.Measurements) (*model.MeasurementResult, error) {
	if m.Heel <= 0 || m.Width <= 0 || m.Length <= 0 || m.Circumference <= 0 {
		return nil, fmt.Errorf("%w: мерки должны быть положительными", ErrValidation)
	}

	if err := s.backend.UpdateMeasurements(ctx, token, id, m); err != nil {
		return nil, fmt.Errorf("обновление мерок результата %s: %w", id, err)
	}

	s.logger.Info("Мерки результата обновлены", slog.String("result_id", id))
	return s.Get(ctx, token, id)
}
