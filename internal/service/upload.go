// upload.go — конвейер загрузки снимка заказа.
//
// Четыре этапа, прогресс публикуется в ProgressRegistry:
//  1. (0)   проверка существования заказа в бэкенде
//  2. (25)  создание временного заказа, если его ещё нет — ровно один раз
//  3. (75)  запись объекта в S3-совместимое хранилище
//  4. (100) фиксация метаданных снимка в бэкенде и локальном реестре
//
// Ошибка любого этапа прерывает конвейер, её текст публикуется
// в реестре прогресса под тем же ключом: если заказ не создан,
// объект в хранилище не пишется; если запись метаданных не удалась,
// загруженный объект остаётся сиротой до прохода сборщика мусора.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/blobstore"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/repository"
)

// UploadResult — результат конвейера загрузки.
type UploadResult struct {
	// OrderID — идентификатор заказа (созданного или существующего)
	OrderID string `json:"order_id"`
	// OrderCreated — заказ был создан в рамках этой загрузки
	OrderCreated bool `json:"order_created"`
	// Slot — слот снимка
	Slot model.ImageSlot `json:"slot"`
	// StorageKey — ключ объекта в хранилище
	StorageKey string `json:"storage_key"`
	// URL — адрес загруженного снимка
	URL string `json:"url"`
}

// blobUploader — операции хранилища, нужные конвейеру загрузки.
type blobUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	PresignPut(ctx context.Context, key, contentType string) (string, time.Duration, error)
	SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// orderBackend — операции бэкенда, нужные конвейеру загрузки.
type orderBackend interface {
	OrderExists(ctx context.Context, token, orderID string) (bool, error)
	CreateProvisionalOrder(ctx context.Context, token, orderID, userID string) error
	InsertOrderImage(ctx context.Context, token string, img model.OrderImage) error
}

// UploadService — сервис загрузки снимков заказов.
type UploadService struct {
	backend  orderBackend
	blobs    blobUploader
	images   repository.OrderImageRepository
	progress *ProgressRegistry
	logger   *slog.Logger
}

// NewUploadService создаёт сервис загрузки снимков.
func NewUploadService(
	bc *backend.Client,
	blobs *blobstore.Client,
	images repository.OrderImageRepository,
	progress *ProgressRegistry,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		backend:  bc,
		blobs:    blobs,
		images:   images,
		progress: progress,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// newUploadService — конструктор для тестов с подставными зависимостями.
func newUploadService(
	bc orderBackend,
	blobs blobUploader,
	images repository.OrderImageRepository,
	progress *ProgressRegistry,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		backend:  bc,
		blobs:    blobs,
		images:   images,
		progress: progress,
		logger:   logger.With(slog.String("component", "upload_service")),
	}
}

// UploadInput — параметры загрузки снимка.
type UploadInput struct {
	// Token — bearer-токен пользователя для запросов к бэкенду
	Token string
	// UserID — Keycloak user ID владельца
	UserID string
	// OrderID — идентификатор заказа; пустой — заказ создаётся
	OrderID string
	// Slot — слот снимка (A-D)
	Slot model.ImageSlot
	// ContentType — MIME-тип файла
	ContentType string
	// Size — размер файла в байтах
	Size int64
	// Body — содержимое файла
	Body io.Reader
}

// Upload выполняет конвейер загрузки снимка.
//
// Заказ создаётся не более одного раза: если OrderID пуст, генерируется
// новый UUID; если переданный OrderID не найден в бэкенде (например,
// брошенный временный заказ уже удалён сборщиком мусора), заказ
// пересоздаётся с тем же идентификатором. В обоих случаях заказ
// регистрируется со статусом provisional.
// Повторная загрузка того же слота (переснятие) даёт новый ключ
// в хранилище; прежний снимок помечается superseded в локальном реестре.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (res *UploadResult, err error) {
	if !in.Slot.IsValid() {
		return nil, fmt.Errorf("%w: неизвестный слот снимка %q", ErrValidation, in.Slot)
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	created := false

	s.progress.Set(orderID, in.Slot, ProgressStarted)
	defer func() {
		if err != nil {
			s.progress.Fail(orderID, in.Slot, err.Error())
		}
	}()

	// Этап 1: проверка заказа
	exists := false
	if in.OrderID != "" {
		exists, err = s.backend.OrderExists(ctx, in.Token, orderID)
		if err != nil {
			return nil, fmt.Errorf("проверка заказа %s: %w", orderID, err)
		}
	}

	// Этап 2: создание временного заказа — ровно один раз
	if !exists {
		if err := s.backend.CreateProvisionalOrder(ctx, in.Token, orderID, in.UserID); err != nil {
			return nil, fmt.Errorf("создание временного заказа: %w", err)
		}
		created = true
		s.logger.Info("Создан временный заказ",
			slog.String("order_id", orderID),
			slog.String("user_id", in.UserID),
		)
	}
	s.progress.Set(orderID, in.Slot, ProgressOrder)

	// Этап 3: запись объекта в хранилище
	ext := blobstore.ExtFromContentType(in.ContentType)
	key := blobstore.BuildKey(orderID, in.Slot, ext, time.Now().UTC())

	url, err := s.blobs.Upload(ctx, key, in.ContentType, in.Body, in.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: запись снимка %s: %v", ErrStorageUnavailable, key, err)
	}
	s.progress.Set(orderID, in.Slot, ProgressStored)

	// Этап 4: фиксация метаданных
	img := model.OrderImage{
		OrderID:     orderID,
		Slot:        in.Slot,
		StorageKey:  key,
		PublicURL:   url,
		ContentType: in.ContentType,
		Size:        in.Size,
		UploadedBy:  in.UserID,
	}
	if err := s.backend.InsertOrderImage(ctx, in.Token, img); err != nil {
		return nil, fmt.Errorf("фиксация метаданных снимка %s: %w", key, err)
	}

	// Локальный реестр для сборщика мусора. Ошибка реестра не прерывает
	// загрузку: объект уже в хранилище, метаданные в бэкенде.
	if err := s.images.Register(ctx, &img); err != nil {
		s.logger.Warn("Снимок не зарегистрирован в локальном реестре",
			slog.String("storage_key", key),
			slog.String("error", err.Error()),
		)
	} else if marked, err := s.images.SupersedePrevious(ctx, orderID, in.Slot, key); err != nil {
		s.logger.Warn("Прежние снимки слота не помечены superseded",
			slog.String("order_id", orderID),
			slog.String("slot", string(in.Slot)),
			slog.String("error", err.Error()),
		)
	} else if marked > 0 {
		s.logger.Debug("Прежние снимки слота помечены superseded",
			slog.String("order_id", orderID),
			slog.String("slot", string(in.Slot)),
			slog.Int("count", marked),
		)
	}

	s.progress.Set(orderID, in.Slot, ProgressComplete)

	s.logger.Info("Снимок загружен",
		slog.String("order_id", orderID),
		slog.String("slot", string(in.Slot)),
		slog.String("storage_key", key),
		slog.Int64("size", in.Size),
	)

	return &UploadResult{
		OrderID:      orderID,
		OrderCreated: created,
		Slot:         in.Slot,
		StorageKey:   key,
		URL:          url,
	}, nil
}

// PresignUpload выдаёт короткоживущий подписанный URL для прямой загрузки
// снимка в хранилище из браузера. Статические ключи доступа не покидают
// сервер. Заказ создаётся по тем же правилам, что и в Upload.
func (s *UploadService) PresignUpload(ctx context.Context, in UploadInput) (orderID, key, uploadURL string, ttl time.Duration, err error) {
	if !in.Slot.IsValid() {
		return "", "", "", 0, fmt.Errorf("%w: неизвестный слот снимка %q", ErrValidation, in.Slot)
	}

	orderID = in.OrderID
	exists := false
	if orderID != "" {
		exists, err = s.backend.OrderExists(ctx, in.Token, orderID)
		if err != nil {
			return "", "", "", 0, fmt.Errorf("проверка заказа %s: %w", orderID, err)
		}
	} else {
		orderID = uuid.NewString()
	}
	if !exists {
		if err := s.backend.CreateProvisionalOrder(ctx, in.Token, orderID, in.UserID); err != nil {
			return "", "", "", 0, fmt.Errorf("создание временного заказа: %w", err)
		}
	}

	ext := blobstore.ExtFromContentType(in.ContentType)
	key = blobstore.BuildKey(orderID, in.Slot, ext, time.Now().UTC())

	uploadURL, ttl, err = s.blobs.PresignPut(ctx, key, in.ContentType)
	if err != nil {
		return "", "", "", 0, fmt.Errorf("%w: подпись URL загрузки: %v", ErrStorageUnavailable, err)
	}
	return orderID, key, uploadURL, ttl, nil
}

// ListOrderImages возвращает актуальные снимки заказа из локального
// реестра с подписанными URL чтения.
func (s *UploadService) ListOrderImages(ctx context.Context, orderID string, ttl time.Duration) ([]model.OrderImage, error) {
	images, err := s.images.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("список снимков заказа %s: %w", orderID, err)
	}

	out := make([]model.OrderImage, 0, len(images))
	for _, img := range images {
		signed, err := s.blobs.SignedGetURL(ctx, img.StorageKey, ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: подпись URL чтения %s: %v", ErrStorageUnavailable, img.StorageKey, err)
		}
		cp := *img
		cp.PublicURL = signed
		out = append(out, cp)
	}
	return out, nil
}

// Progress возвращает текущее состояние загрузки слота: достигнутый
// этап и текст ошибки, если конвейер прервался.
func (s *UploadService) Progress(orderID string, slot model.ImageSlot) (ProgressEntry, bool) {
	return s.progress.Get(orderID, slot)
}

// ClearProgress удаляет записи прогресса всех слотов заказа.
// Вызывается при сбросе мастера.
func (s *UploadService) ClearProgress(orderID string) {
	for _, slot := range model.Slots {
		s.progress.Clear(orderID, slot)
	}
}
