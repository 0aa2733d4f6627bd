package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/domain/wizard"
)

// WizardSessionRepository — доступ к таблице wizard_sessions.
// Одна активная сессия мастера на пользователя.
type WizardSessionRepository interface {
	// GetByUserID возвращает сессию пользователя.
	GetByUserID(ctx context.Context, userID string) (*wizard.Session, error)
	// Save вставляет или обновляет сессию (upsert по user_id).
	Save(ctx context.Context, s *wizard.Session) error
	// Delete удаляет сессию пользователя.
	Delete(ctx context.Context, userID string) error
}

// wizardSessionRepo — реализация WizardSessionRepository.
type wizardSessionRepo struct {
	db DBTX
}

// NewWizardSessionRepository создаёт репозиторий сессий мастера.
func NewWizardSessionRepository(db DBTX) WizardSessionRepository {
	return &wizardSessionRepo{db: db}
}

func (r *wizardSessionRepo) GetByUserID(ctx context.Context, userID string) (*wizard.Session, error) {
	query := `
		SELECT id, user_id, step, order_id, photos, measurements, calculating,
			created_at, updated_at
		FROM wizard_sessions
		WHERE user_id = $1`

	s := &wizard.Session{}
	var photosJSON []byte
	var measurementsJSON []byte

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.Step, &s.OrderID, &photosJSON, &measurementsJSON,
		&s.Calculating, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии мастера: %w", err)
	}

	s.Photos = make(map[model.ImageSlot]string)
	if len(photosJSON) > 0 {
		if err := json.Unmarshal(photosJSON, &s.Photos); err != nil {
			return nil, fmt.Errorf("ошибка разбора снимков сессии: %w", err)
		}
	}
	if len(measurementsJSON) > 0 {
		m := &model.Measurements{}
		if err := json.Unmarshal(measurementsJSON, m); err != nil {
			return nil, fmt.Errorf("ошибка разбора мерок сессии: %w", err)
		}
		s.Measurements = m
	}

	return s, nil
}

func (r *wizardSessionRepo) Save(ctx context.Context, s *wizard.Session) error {
	photosJSON, err := json.Marshal(s.Photos)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимков сессии: %w", err)
	}

	var measurementsJSON []byte
	if s.Measurements != nil {
		measurementsJSON, err = json.Marshal(s.Measurements)
		if err != nil {
			return fmt.Errorf("ошибка сериализации мерок сессии: %w", err)
		}
	}

	query := `
		INSERT INTO wizard_sessions (id, user_id, step, order_id, photos,
			measurements, calculating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			step = EXCLUDED.step,
			order_id = EXCLUDED.order_id,
			photos = EXCLUDED.photos,
			measurements = EXCLUDED.measurements,
			calculating = EXCLUDED.calculating,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		s.ID, s.UserID, int(s.Step), s.OrderID, photosJSON,
		measurementsJSON, s.Calculating, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии мастера: %w", err)
	}
	return nil
}

func (r *wizardSessionRepo) Delete(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM wizard_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления сессии мастера: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
