package repository

import (
	"context"
	"fmt"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// OrderImageRepository — реестр снимков заказов в хранилище.
// Каждая загрузка в bucket фиксируется здесь; перезаснятые снимки
// помечаются superseded и позже удаляются сборщиком мусора.
type OrderImageRepository interface {
	// Register фиксирует новую загрузку снимка.
	Register(ctx context.Context, img *model.OrderImage) error
	// SupersedePrevious помечает прежние снимки слота как superseded,
	// кроме записи с указанным ключом. Возвращает количество помеченных.
	SupersedePrevious(ctx context.Context, orderID string, slot model.ImageSlot, keepKey string) (int, error)
	// ListByOrder возвращает актуальные (не superseded) снимки заказа.
	ListByOrder(ctx context.Context, orderID string) ([]*model.OrderImage, error)
	// ListSuperseded возвращает снимки, подлежащие удалению из хранилища.
	ListSuperseded(ctx context.Context, limit int) ([]*model.OrderImage, error)
	// ListByOrderAll возвращает все снимки заказа, включая superseded.
	ListByOrderAll(ctx context.Context, orderID string) ([]*model.OrderImage, error)
	// Delete удаляет запись реестра (после удаления объекта из bucket).
	Delete(ctx context.Context, id string) error
	// DeleteByOrder удаляет все записи заказа.
	DeleteByOrder(ctx context.Context, orderID string) (int, error)
}

// orderImageRepo — реализация OrderImageRepository.
type orderImageRepo struct {
	db DBTX
}

// NewOrderImageRepository создаёт репозиторий реестра снимков.
func NewOrderImageRepository(db DBTX) OrderImageRepository {
	return &orderImageRepo{db: db}
}

const orderImageColumns = `id, order_id, slot, storage_key, public_url,
	content_type, size, uploaded_by, superseded, uploaded_at`

func (r *orderImageRepo) Register(ctx context.Context, img *model.OrderImage) error {
	query := `
		INSERT INTO order_images (order_id, slot, storage_key, public_url,
			content_type, size, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uploaded_at`

	err := r.db.QueryRow(ctx, query,
		img.OrderID, string(img.Slot), img.StorageKey, img.PublicURL,
		img.ContentType, img.Size, img.UploadedBy,
	).Scan(&img.ID, &img.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: снимок с таким ключом уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации снимка: %w", err)
	}
	return nil
}

func (r *orderImageRepo) SupersedePrevious(ctx context.Context, orderID string, slot model.ImageSlot, keepKey string) (int, error) {
	query := `
		UPDATE order_images
		SET superseded = TRUE
		WHERE order_id = $1 AND slot = $2 AND storage_key != $3
			AND superseded = FALSE`

	tag, err := r.db.Exec(ctx, query, orderID, string(slot), keepKey)
	if err != nil {
		return 0, fmt.Errorf("ошибка пометки устаревших снимков: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *orderImageRepo) ListByOrder(ctx context.Context, orderID string) ([]*model.OrderImage, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM order_images
		WHERE order_id = $1 AND superseded = FALSE
		ORDER BY slot`, orderImageColumns)

	return r.queryImages(ctx, query, orderID)
}

func (r *orderImageRepo) ListByOrderAll(ctx context.Context, orderID string) ([]*model.OrderImage, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM order_images
		WHERE order_id = $1
		ORDER BY uploaded_at`, orderImageColumns)

	return r.queryImages(ctx, query, orderID)
}

func (r *orderImageRepo) ListSuperseded(ctx context.Context, limit int) ([]*model.OrderImage, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM order_images
		WHERE superseded = TRUE
		ORDER BY uploaded_at
		LIMIT $1`, orderImageColumns)

	return r.queryImages(ctx, query, limit)
}

// queryImages выполняет запрос списка снимков и сканирует результат.
func (r *orderImageRepo) queryImages(ctx context.Context, query string, args ...any) ([]*model.OrderImage, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка снимков: %w", err)
	}
	defer rows.Close()

	var result []*model.OrderImage
	for rows.Next() {
		img := &model.OrderImage{}
		var slot string
		if err := rows.Scan(
			&img.ID, &img.OrderID, &slot, &img.StorageKey, &img.PublicURL,
			&img.ContentType, &img.Size, &img.UploadedBy, &img.Superseded, &img.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования снимка: %w", err)
		}
		img.Slot = model.ImageSlot(slot)
		result = append(result, img)
	}
	return result, rows.Err()
}

func (r *orderImageRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM order_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи снимка: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderImageRepo) DeleteByOrder(ctx context.Context, orderID string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM order_images WHERE order_id = $1`, orderID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления снимков заказа: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
