// Пакет service — бизнес-логика Portal Module.
// wizard.go — сервис мастера снятия мерок: загрузка и сохранение сессий,
// переходы между шагами, фиксация снимков и расчёт мерок.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/domain/wizard"
	"github.com/ortokids/ortokids/portal-module/internal/repository"
)

// resultBackend — операции бэкенда, нужные мастеру.
type resultBackend interface {
	InsertResult(ctx context.Context, token string, res model.MeasurementResult) error
	SubmitOrder(ctx context.Context, token, orderID string) error
}

// WizardService — сервис мастера снятия мерок.
// Сессия загружается из PostgreSQL на время запроса, изменяется
// конечным автоматом и сохраняется обратно под ключом пользователя.
type WizardService struct {
	sessions repository.WizardSessionRepository
	uploads  *UploadService
	backend  resultBackend
	calc     *Calculator
	logger   *slog.Logger
}

// NewWizardService создаёт сервис мастера.
func NewWizardService(
	sessions repository.WizardSessionRepository,
	uploads *UploadService,
	bc *backend.Client,
	calc *Calculator,
	logger *slog.Logger,
) *WizardService {
	return &WizardService{
		sessions: sessions,
		uploads:  uploads,
		backend:  bc,
		calc:     calc,
		logger:   logger.With(slog.String("component", "wizard_service")),
	}
}

// GetOrCreate возвращает сессию пользователя, создавая её на шаге intro
// при первом обращении.
func (s *WizardService) GetOrCreate(ctx context.Context, userID string) (*wizard.Session, error) {
	sess, err := s.sessions.GetByUserID(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	sess = wizard.NewSession(uuid.NewString(), userID)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("создание сессии мастера: %w", err)
	}
	s.logger.Info("Создана сессия мастера", slog.String("user_id", userID))
	return sess, nil
}

// Next переводит мастер на следующий шаг.
// С шага съёмки переход возможен только после фиксации снимка слота.
func (s *WizardService) Next(ctx context.Context, userID string) (*wizard.Session, error) {
	return s.transition(ctx, userID, func(sess *wizard.Session) error {
		return sess.Next()
	})
}

// Prev переводит мастер на предыдущий шаг.
func (s *WizardService) Prev(ctx context.Context, userID string) (*wizard.Session, error) {
	return s.transition(ctx, userID, func(sess *wizard.Session) error {
		return sess.Prev()
	})
}

// Reset возвращает мастер на шаг intro, очищая снимки, мерки,
// идентификатор временного заказа и записи прогресса его загрузок.
func (s *WizardService) Reset(ctx context.Context, userID string) (*wizard.Session, error) {
	return s.transition(ctx, userID, func(sess *wizard.Session) error {
		if sess.OrderID != "" {
			s.uploads.ClearProgress(sess.OrderID)
		}
		sess.Reset()
		return nil
	})
}

// transition загружает сессию, применяет fn и сохраняет результат.
func (s *WizardService) transition(ctx context.Context, userID string, fn func(*wizard.Session) error) (*wizard.Session, error) {
	sess, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("сохранение сессии мастера: %w", err)
	}
	return sess, nil
}

// CapturePhotoInput — параметры фиксации снимка.
type CapturePhotoInput struct {
	// Token — bearer-токен пользователя
	Token string
	// UserID — Keycloak user ID
	UserID string
	// Slot — слот снимка; должен соответствовать текущему шагу
	Slot model.ImageSlot
	// ContentType — MIME-тип файла
	ContentType string
	// Size — размер файла в байтах
	Size int64
	// Body — содержимое файла
	Body io.Reader
}

// CapturePhoto загружает снимок текущего шага съёмки и фиксирует его
// в сессии. Идентификатор заказа берётся из сессии; при первой загрузке
// заказ создаётся конвейером, и его ID сохраняется в сессии.
func (s *WizardService) CapturePhoto(ctx context.Context, in CapturePhotoInput) (*wizard.Session, *UploadResult, error) {
	sess, err := s.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, nil, err
	}

	// Слот проверяется до записи в хранилище:
	// неподходящий шаг не порождает сирот в bucket.
	current, ok := sess.CurrentSlot()
	if !ok {
		return nil, nil, &wizard.TransitionError{
			Code:    "NOT_CAPTURE_STEP",
			Message: fmt.Sprintf("шаг %s не является шагом съёмки", sess.Step),
		}
	}
	if current != in.Slot {
		return nil, nil, &wizard.TransitionError{
			Code: "SLOT_MISMATCH",
			Message: fmt.Sprintf("шаг %s ожидает слот %s, получен %s",
				sess.Step, current, in.Slot),
		}
	}

	res, err := s.uploads.Upload(ctx, UploadInput{
		Token:       in.Token,
		UserID:      in.UserID,
		OrderID:     sess.OrderID,
		Slot:        in.Slot,
		ContentType: in.ContentType,
		Size:        in.Size,
		Body:        in.Body,
	})
	if err != nil {
		return nil, nil, err
	}

	sess.OrderID = res.OrderID
	if err := sess.SetPhoto(in.Slot, res.URL); err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("сохранение сессии мастера: %w", err)
	}
	return sess, res, nil
}

// Calculate выполняет имитацию расчёта мерок на шаге result.
//
// Последовательность: пометка "расчёт идёт" сохраняется в сессии,
// имитация занимает настроенную длительность, затем мерки фиксируются
// в сессии, заказ переводится в submitted и в бэкенде создаётся
// результат со статусом pendente.
func (s *WizardService) Calculate(ctx context.Context, token, userID string) (*wizard.Session, error) {
	sess, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sess.AllPhotos() {
		return nil, &wizard.TransitionError{
			Code:    "PHOTO_REQUIRED",
			Message: "для расчёта мерок нужны снимки всех четырёх слотов",
		}
	}
	if err := sess.BeginCalculation(); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("сохранение сессии мастера: %w", err)
	}

	m, err := s.calc.Calculate(ctx)
	if err != nil {
		// Прерванный расчёт снимает флаг, чтобы не блокировать повтор
		sess.Calculating = false
		if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
			s.logger.Error("Сессия не сохранена после прерванного расчёта",
				slog.String("user_id", userID),
				slog.String("error", saveErr.Error()),
			)
		}
		return nil, fmt.Errorf("расчёт мерок прерван: %w", err)
	}

	sess.CompleteCalculation(m)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("сохранение сессии мастера: %w", err)
	}

	// Фиксация результата в бэкенде
	if sess.OrderID != "" {
		if err := s.backend.SubmitOrder(ctx, token, sess.OrderID); err != nil {
			return nil, fmt.Errorf("перевод заказа в submitted: %w", err)
		}
		res := model.MeasurementResult{
			OrderID:      sess.OrderID,
			UserID:       userID,
			Status:       model.StatusPendente,
			Measurements: &m,
		}
		if err := s.backend.InsertResult(ctx, token, res); err != nil {
			return nil, fmt.Errorf("создание результата: %w", err)
		}
		s.logger.Info("Расчёт мерок завершён",
			slog.String("user_id", userID),
			slog.String("order_id", sess.OrderID),
		)
	}

	return sess, nil
}
