package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// fakeGCBackend — подставной бэкенд для сборщика мусора.
type fakeGCBackend struct {
	stale      []model.Order
	staleErr   error
	deleted    []string
	deleteErr  error
	tokensSeen []string
}

func (f *fakeGCBackend) ListStaleProvisionalOrders(_ context.Context, token string, _ time.Time) ([]model.Order, error) {
	f.tokensSeen = append(f.tokensSeen, token)
	if f.staleErr != nil {
		return nil, f.staleErr
	}
	return f.stale, nil
}

func (f *fakeGCBackend) DeleteOrder(_ context.Context, _, orderID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, orderID)
	return nil
}

// newTestGCService собирает GCService на подставных зависимостях.
func newTestGCService(bc *fakeGCBackend, blobs *fakeBlobs, images *fakeImageRepo) *GCService {
	return &GCService{
		backend: bc,
		blobs:   blobs,
		images:  images,
		tokenProvider: func(_ context.Context) (string, error) {
			return "service-token", nil
		},
		interval:       time.Hour,
		provisionalTTL: 72 * time.Hour,
		logger:         testLogger(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// TestGC_DeletesSuperseded — переснятые снимки удаляются из хранилища
// и реестра.
func TestGC_DeletesSuperseded(t *testing.T) {
	images := &fakeImageRepo{
		superseded: []model.OrderImage{
			{ID: "img-1", OrderID: "order-1", Slot: model.SlotA, StorageKey: "orders/order-1/A_1.jpg", Superseded: true},
			{ID: "img-2", OrderID: "order-1", Slot: model.SlotA, StorageKey: "orders/order-1/A_2.jpg", Superseded: true},
		},
	}
	blobs := &fakeBlobs{}
	svc := newTestGCService(&fakeGCBackend{}, blobs, images)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() вернул ошибку: %v", err)
	}
	if len(blobs.deleted) != 2 {
		t.Errorf("из хранилища удалено %d объектов, ожидали 2", len(blobs.deleted))
	}
	if len(images.deleted) != 2 {
		t.Errorf("из реестра удалено %d записей, ожидали 2", len(images.deleted))
	}
}

// TestGC_SupersededBlobErrorKeepsRegistry — при ошибке хранилища запись
// реестра сохраняется до следующего прохода.
func TestGC_SupersededBlobErrorKeepsRegistry(t *testing.T) {
	images := &fakeImageRepo{
		superseded: []model.OrderImage{
			{ID: "img-1", OrderID: "order-1", Slot: model.SlotB, StorageKey: "orders/order-1/B_1.jpg", Superseded: true},
		},
	}
	blobs := &fakeBlobs{deleteErr: errors.New("bucket недоступен")}
	svc := newTestGCService(&fakeGCBackend{}, blobs, images)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() вернул ошибку: %v", err)
	}
	if len(images.deleted) != 0 {
		t.Error("запись реестра не должна удаляться при ошибке хранилища")
	}
}

// TestGC_DeletesStaleOrders — брошенный временный заказ удаляется вместе
// со снимками под сервисным токеном.
func TestGC_DeletesStaleOrders(t *testing.T) {
	bc := &fakeGCBackend{
		stale: []model.Order{{ID: "order-1", UserID: "user-1", Status: model.OrderProvisional}},
	}
	images := &fakeImageRepo{
		registered: []model.OrderImage{
			{ID: "img-1", OrderID: "order-1", Slot: model.SlotA, StorageKey: "orders/order-1/A_1.jpg"},
			{ID: "img-2", OrderID: "order-1", Slot: model.SlotB, StorageKey: "orders/order-1/B_1.jpg"},
		},
	}
	blobs := &fakeBlobs{}
	svc := newTestGCService(bc, blobs, images)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() вернул ошибку: %v", err)
	}
	if len(blobs.deleted) != 2 {
		t.Errorf("из хранилища удалено %d объектов, ожидали 2", len(blobs.deleted))
	}
	if len(images.registered) != 0 {
		t.Errorf("в реестре осталось %d записей, ожидали 0", len(images.registered))
	}
	if len(bc.deleted) != 1 || bc.deleted[0] != "order-1" {
		t.Errorf("из бэкенда удалены заказы %v, ожидали [order-1]", bc.deleted)
	}
	if len(bc.tokensSeen) == 0 || bc.tokensSeen[0] != "service-token" {
		t.Errorf("запросы шли с токенами %v, ожидали сервисный токен", bc.tokensSeen)
	}
}

// TestGC_StaleOrderKeptOnBlobError — заказ не удаляется, пока все его
// объекты не удалены из хранилища.
func TestGC_StaleOrderKeptOnBlobError(t *testing.T) {
	bc := &fakeGCBackend{
		stale: []model.Order{{ID: "order-1", UserID: "user-1", Status: model.OrderProvisional}},
	}
	images := &fakeImageRepo{
		registered: []model.OrderImage{
			{ID: "img-1", OrderID: "order-1", Slot: model.SlotA, StorageKey: "orders/order-1/A_1.jpg"},
		},
	}
	blobs := &fakeBlobs{deleteErr: errors.New("bucket недоступен")}
	svc := newTestGCService(bc, blobs, images)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() вернул ошибку: %v", err)
	}
	if len(bc.deleted) != 0 {
		t.Error("заказ не должен удаляться при ошибке хранилища")
	}
	if len(images.registered) != 1 {
		t.Error("записи реестра должны сохраниться до следующего прохода")
	}
}

// TestGC_TokenProviderError — без сервисного токена проход прерывается.
func TestGC_TokenProviderError(t *testing.T) {
	svc := newTestGCService(&fakeGCBackend{}, &fakeBlobs{}, &fakeImageRepo{})
	svc.tokenProvider = func(_ context.Context) (string, error) {
		return "", errors.New("keycloak недоступен")
	}

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("ожидали ошибку при недоступном токене")
	}
}
