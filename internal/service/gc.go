// gc.go — сборщик мусора хранилища снимков.
//
// Две категории мусора:
//   - superseded-снимки: переснятый слот оставляет прежний объект
//     в bucket; реестр order_images помечает его к удалению
//   - брошенные временные заказы: заказ создан первой загрузкой, но
//     пользователь так и не дошёл до расчёта; по истечении TTL заказ,
//     его снимки и объекты в хранилище удаляются
//
// Запросы к бэкенду идут под сервисной учётной записью Keycloak,
// а не под токеном пользователя: сборка выполняется в фоне.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/blobstore"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/repository"
)

// Метрики сборщика мусора.
var (
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gc_runs_total",
		Help: "Количество проходов сборщика мусора хранилища",
	})
	gcBlobsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gc_blobs_deleted_total",
		Help: "Количество удалённых объектов хранилища",
	})
	gcOrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gc_orders_deleted_total",
		Help: "Количество удалённых брошенных временных заказов",
	})
	gcErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gc_errors_total",
		Help: "Количество ошибок сборщика мусора",
	})
)

// supersededBatchSize — размер пачки superseded-снимков за один проход.
const supersededBatchSize = 200

// gcBackend — операции бэкенда, нужные сборщику.
type gcBackend interface {
	ListStaleProvisionalOrders(ctx context.Context, token string, before time.Time) ([]model.Order, error)
	DeleteOrder(ctx context.Context, token, orderID string) error
}

// blobDeleter — операция удаления объекта хранилища.
type blobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// GCService — сборщик мусора хранилища и брошенных заказов.
type GCService struct {
	backend        gcBackend
	blobs          blobDeleter
	images         repository.OrderImageRepository
	tokenProvider  func(ctx context.Context) (string, error)
	interval       time.Duration
	provisionalTTL time.Duration
	logger         *slog.Logger
	stop           chan struct{}
	done           chan struct{}
}

// NewGCService создаёт сборщик мусора.
// tokenProvider выдаёт сервисный токен для запросов к бэкенду.
func NewGCService(
	bc *backend.Client,
	blobs *blobstore.Client,
	images repository.OrderImageRepository,
	tokenProvider func(ctx context.Context) (string, error),
	interval time.Duration,
	provisionalTTL time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		backend:        bc,
		blobs:          blobs,
		images:         images,
		tokenProvider:  tokenProvider,
		interval:       interval,
		provisionalTTL: provisionalTTL,
		logger:         logger.With(slog.String("component", "gc_service")),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start запускает периодические проходы сборщика.
func (s *GCService) Start(ctx context.Context) {
	go s.run(ctx)
	s.logger.Info("Сборщик мусора запущен",
		slog.Duration("interval", s.interval),
		slog.Duration("provisional_ttl", s.provisionalTTL),
	)
}

// Stop останавливает сборщик и дожидается завершения текущего прохода.
func (s *GCService) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info("Сборщик мусора остановлен")
}

// run — основной цикл сборщика.
func (s *GCService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				gcErrorsTotal.Inc()
				s.logger.Error("Проход сборщика мусора завершился с ошибкой",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce выполняет один проход сборщика: удаляет superseded-объекты
// и брошенные временные заказы.
func (s *GCService) RunOnce(ctx context.Context) error {
	gcRunsTotal.Inc()

	blobs, err := s.collectSuperseded(ctx)
	if err != nil {
		return err
	}

	orders, err := s.collectStaleOrders(ctx)
	if err != nil {
		return err
	}

	if blobs > 0 || orders > 0 {
		s.logger.Info("Проход сборщика мусора завершён",
			slog.Int("blobs_deleted", blobs),
			slog.Int("orders_deleted", orders),
		)
	}
	return nil
}

// collectSuperseded удаляет объекты переснятых снимков.
func (s *GCService) collectSuperseded(ctx context.Context) (int, error) {
	stale, err := s.images.ListSuperseded(ctx, supersededBatchSize)
	if err != nil {
		return 0, fmt.Errorf("список superseded-снимков: %w", err)
	}

	deleted := 0
	for _, img := range stale {
		if err := s.blobs.Delete(ctx, img.StorageKey); err != nil {
			gcErrorsTotal.Inc()
			s.logger.Warn("Объект не удалён из хранилища",
				slog.String("storage_key", img.StorageKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.images.Delete(ctx, img.ID); err != nil {
			gcErrorsTotal.Inc()
			s.logger.Warn("Запись реестра не удалена",
				slog.String("image_id", img.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
		gcBlobsDeletedTotal.Inc()
	}
	return deleted, nil
}

// collectStaleOrders удаляет брошенные временные заказы старше TTL:
// объекты в хранилище, записи реестра и сам заказ в бэкенде.
func (s *GCService) collectStaleOrders(ctx context.Context) (int, error) {
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return 0, fmt.Errorf("получение сервисного токена: %w", err)
	}

	before := time.Now().UTC().Add(-s.provisionalTTL)
	orders, err := s.backend.ListStaleProvisionalOrders(ctx, token, before)
	if err != nil {
		return 0, fmt.Errorf("список брошенных заказов: %w", err)
	}

	deleted := 0
	for _, order := range orders {
		images, err := s.images.ListByOrderAll(ctx, order.ID)
		if err != nil {
			gcErrorsTotal.Inc()
			s.logger.Warn("Снимки заказа недоступны",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		failed := false
		for _, img := range images {
			if err := s.blobs.Delete(ctx, img.StorageKey); err != nil {
				gcErrorsTotal.Inc()
				failed = true
				s.logger.Warn("Объект заказа не удалён из хранилища",
					slog.String("storage_key", img.StorageKey),
					slog.String("error", err.Error()),
				)
			}
		}
		if failed {
			// Заказ оставляем до следующего прохода
			continue
		}

		if _, err := s.images.DeleteByOrder(ctx, order.ID); err != nil {
			gcErrorsTotal.Inc()
			continue
		}
		if err := s.backend.DeleteOrder(ctx, token, order.ID); err != nil {
			gcErrorsTotal.Inc()
			s.logger.Warn("Заказ не удалён из бэкенда",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
		gcOrdersDeletedTotal.Inc()
		s.logger.Info("Брошенный временный заказ удалён",
			slog.String("order_id", order.ID),
			slog.Int("images", len(images)),
		)
	}
	return deleted, nil
}
