package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/domain/wizard"
	"github.com/ortokids/ortokids/portal-module/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Подставные зависимости ---

// fakeOrderBackend — подставной бэкенд заказов.
type fakeOrderBackend struct {
	orders      map[string]bool
	createCalls int
	createErr   error
	existsErr   error
	insertCalls int
	insertErr   error
	submitCalls []string
	results     []model.MeasurementResult
}

func newFakeOrderBackend() *fakeOrderBackend {
	return &fakeOrderBackend{orders: make(map[string]bool)}
}

func (f *fakeOrderBackend) OrderExists(_ context.Context, _, orderID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.orders[orderID], nil
}

func (f *fakeOrderBackend) CreateProvisionalOrder(_ context.Context, _, orderID, _ string) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[orderID] = true
	return nil
}

func (f *fakeOrderBackend) InsertOrderImage(_ context.Context, _ string, _ model.OrderImage) error {
	f.insertCalls++
	return f.insertErr
}

func (f *fakeOrderBackend) SubmitOrder(_ context.Context, _, orderID string) error {
	f.submitCalls = append(f.submitCalls, orderID)
	return nil
}

func (f *fakeOrderBackend) InsertResult(_ context.Context, _ string, res model.MeasurementResult) error {
	f.results = append(f.results, res)
	return nil
}

// fakeBlobs — подставное хранилище.
type fakeBlobs struct {
	uploaded  []string
	uploadErr error
	deleted   []string
	deleteErr error
}

func (f *fakeBlobs) Upload(_ context.Context, key, _ string, _ io.Reader, _ int64) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, key)
	return "https://storage.test/" + key, nil
}

func (f *fakeBlobs) PresignPut(_ context.Context, key, _ string) (string, time.Duration, error) {
	return "https://storage.test/presigned/" + key, 5 * time.Minute, nil
}

func (f *fakeBlobs) SignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/signed/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

// fakeImageRepo — подставной реестр снимков.
type fakeImageRepo struct {
	registered []model.OrderImage
	superseded []model.OrderImage
	deleted    []string
}

func (f *fakeImageRepo) Register(_ context.Context, img *model.OrderImage) error {
	img.ID = "img-" + img.StorageKey
	f.registered = append(f.registered, *img)
	return nil
}

func (f *fakeImageRepo) SupersedePrevious(_ context.Context, orderID string, slot model.ImageSlot, keepKey string) (int, error) {
	marked := 0
	for i, img := range f.registered {
		if img.OrderID == orderID && img.Slot == slot && img.StorageKey != keepKey && !img.Superseded {
			f.registered[i].Superseded = true
			f.superseded = append(f.superseded, f.registered[i])
			marked++
		}
	}
	return marked, nil
}

func (f *fakeImageRepo) ListByOrder(_ context.Context, orderID string) ([]*model.OrderImage, error) {
	var out []*model.OrderImage
	for i := range f.registered {
		if f.registered[i].OrderID == orderID && !f.registered[i].Superseded {
			out = append(out, &f.registered[i])
		}
	}
	return out, nil
}

func (f *fakeImageRepo) ListByOrderAll(_ context.Context, orderID string) ([]*model.OrderImage, error) {
	var out []*model.OrderImage
	for i := range f.registered {
		if f.registered[i].OrderID == orderID {
			out = append(out, &f.registered[i])
		}
	}
	return out, nil
}

func (f *fakeImageRepo) ListSuperseded(_ context.Context, limit int) ([]*model.OrderImage, error) {
	var out []*model.OrderImage
	for i := range f.superseded {
		if len(out) >= limit {
			break
		}
		out = append(out, &f.superseded[i])
	}
	return out, nil
}

func (f *fakeImageRepo) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeImageRepo) DeleteByOrder(_ context.Context, orderID string) (int, error) {
	n := 0
	kept := f.registered[:0]
	for _, img := range f.registered {
		if img.OrderID == orderID {
			n++
			continue
		}
		kept = append(kept, img)
	}
	f.registered = kept
	return n, nil
}

// memSessionRepo — сессии мастера в памяти.
type memSessionRepo struct {
	sessions map[string]*wizard.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*wizard.Session)}
}

func (m *memSessionRepo) GetByUserID(_ context.Context, userID string) (*wizard.Session, error) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Копия, как при загрузке из БД
	cp := *s
	cp.Photos = make(map[model.ImageSlot]string, len(s.Photos))
	for k, v := range s.Photos {
		cp.Photos[k] = v
	}
	return &cp, nil
}

func (m *memSessionRepo) Save(_ context.Context, s *wizard.Session) error {
	cp := *s
	m.sessions[s.UserID] = &cp
	return nil
}

func (m *memSessionRepo) Delete(_ context.Context, userID string) error {
	if _, ok := m.sessions[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.sessions, userID)
	return nil
}

// newTestUploadService собирает UploadService на подставных зависимостях.
func newTestUploadService(bc *fakeOrderBackend, blobs *fakeBlobs, images *fakeImageRepo) *UploadService {
	return newUploadService(bc, blobs, images, NewProgressRegistry(), testLogger())
}

// --- Тесты конвейера загрузки ---

// TestUpload_CreatesOrderOnce — первый снимок создаёт заказ ровно один раз.
func TestUpload_CreatesOrderOnce(t *testing.T) {
	bc := newFakeOrderBackend()
	blobs := &fakeBlobs{}
	images := &fakeImageRepo{}
	svc := newTestUploadService(bc, blobs, images)

	res, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		Slot:        model.SlotA,
		ContentType: "image/jpeg",
		Size:        100,
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err != nil {
		t.Fatalf("Upload() вернул ошибку: %v", err)
	}
	if !res.OrderCreated {
		t.Error("ожидали OrderCreated=true для первой загрузки")
	}
	if bc.createCalls != 1 {
		t.Errorf("создание заказа вызвано %d раз, ожидали 1", bc.createCalls)
	}

	// Следующий снимок того же заказа — заказ не создаётся повторно
	res2, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		OrderID:     res.OrderID,
		Slot:        model.SlotB,
		ContentType: "image/jpeg",
		Size:        100,
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err != nil {
		t.Fatalf("Upload() второго снимка вернул ошибку: %v", err)
	}
	if res2.OrderCreated {
		t.Error("ожидали OrderCreated=false для существующего заказа")
	}
	if res2.OrderID != res.OrderID {
		t.Errorf("OrderID сменился: %s → %s", res.OrderID, res2.OrderID)
	}
	if bc.createCalls != 1 {
		t.Errorf("создание заказа вызвано %d раз, ожидали 1", bc.createCalls)
	}
}

// TestUpload_NoBlobWhenOrderFails — ошибка создания заказа не оставляет
// сирот в хранилище.
func TestUpload_NoBlobWhenOrderFails(t *testing.T) {
	bc := newFakeOrderBackend()
	bc.createErr = errors.New("бэкенд недоступен")
	blobs := &fakeBlobs{}
	images := &fakeImageRepo{}
	svc := newTestUploadService(bc, blobs, images)

	_, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		Slot:        model.SlotA,
		ContentType: "image/jpeg",
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err == nil {
		t.Fatal("ожидали ошибку при недоступном бэкенде")
	}
	if len(blobs.uploaded) != 0 {
		t.Errorf("в хранилище записано %d объектов, ожидали 0", len(blobs.uploaded))
	}
	if bc.insertCalls != 0 {
		t.Errorf("метаданные вставлены %d раз, ожидали 0", bc.insertCalls)
	}
}

// TestUpload_RecreatesMissingOrder — переданный OrderID не найден
// в бэкенде (брошенный заказ удалён сборщиком мусора): заказ
// пересоздаётся с тем же идентификатором ровно один раз,
// загрузка продолжается.
func TestUpload_RecreatesMissingOrder(t *testing.T) {
	bc := newFakeOrderBackend()
	blobs := &fakeBlobs{}
	svc := newTestUploadService(bc, blobs, &fakeImageRepo{})

	res, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		OrderID:     "stale-order-1",
		Slot:        model.SlotA,
		ContentType: "image/jpeg",
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err != nil {
		t.Fatalf("Upload() вернул ошибку: %v", err)
	}
	if bc.createCalls != 1 {
		t.Errorf("создание заказа вызвано %d раз, ожидали 1", bc.createCalls)
	}
	if res.OrderID != "stale-order-1" {
		t.Errorf("OrderID = %s, ожидали переданный stale-order-1", res.OrderID)
	}
	if !res.OrderCreated {
		t.Error("ожидали OrderCreated=true для пересозданного заказа")
	}
	if len(blobs.uploaded) != 1 {
		t.Errorf("в хранилище записано %d объектов, ожидали 1", len(blobs.uploaded))
	}
}

// TestUpload_StorageError — ошибка хранилища не фиксирует метаданные.
func TestUpload_StorageError(t *testing.T) {
	bc := newFakeOrderBackend()
	bc.orders["order-1"] = true
	blobs := &fakeBlobs{uploadErr: errors.New("bucket недоступен")}
	svc := newTestUploadService(bc, blobs, &fakeImageRepo{})

	_, err := svc.Upload(context.Background(), UploadInput{
		Token:   "token",
		UserID:  "user-1",
		OrderID: "order-1",
		Slot:    model.SlotC,
		Body:    bytes.NewReader(nil),
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("ожидали ErrStorageUnavailable, получили %v", err)
	}
	if bc.insertCalls != 0 {
		t.Errorf("метаданные вставлены %d раз, ожидали 0", bc.insertCalls)
	}
}

// TestUpload_RetakeMarksSuperseded — переснятие слота помечает прежний
// снимок к удалению.
func TestUpload_RetakeMarksSuperseded(t *testing.T) {
	bc := newFakeOrderBackend()
	bc.orders["order-1"] = true
	images := &fakeImageRepo{}
	svc := newTestUploadService(bc, &fakeBlobs{}, images)

	for i := 0; i < 2; i++ {
		_, err := svc.Upload(context.Background(), UploadInput{
			Token:       "token",
			UserID:      "user-1",
			OrderID:     "order-1",
			Slot:        model.SlotD,
			ContentType: "image/png",
			Body:        bytes.NewReader([]byte("фото")),
		})
		if err != nil {
			t.Fatalf("Upload() #%d вернул ошибку: %v", i+1, err)
		}
		// Ключи различаются временной меткой
		time.Sleep(2 * time.Millisecond)
	}

	if len(images.registered) != 2 {
		t.Fatalf("в реестре %d записей, ожидали 2", len(images.registered))
	}
	if len(images.superseded) != 1 {
		t.Errorf("superseded-записей %d, ожидали 1", len(images.superseded))
	}
	if images.registered[1].Superseded {
		t.Error("последний снимок не должен быть superseded")
	}
}

// TestUpload_InvalidSlot — неизвестный слот отклоняется до любых вызовов.
func TestUpload_InvalidSlot(t *testing.T) {
	bc := newFakeOrderBackend()
	svc := newTestUploadService(bc, &fakeBlobs{}, &fakeImageRepo{})

	_, err := svc.Upload(context.Background(), UploadInput{
		Token:  "token",
		UserID: "user-1",
		Slot:   model.ImageSlot("X"),
		Body:   strings.NewReader(""),
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидали ErrValidation, получили %v", err)
	}
	if bc.createCalls != 0 {
		t.Error("заказ не должен создаваться при невалидном слоте")
	}
}

// TestUpload_ProgressComplete — после фиксации метаданных опрос
// прогресса видит терминальные 100 без ошибки.
func TestUpload_ProgressComplete(t *testing.T) {
	bc := newFakeOrderBackend()
	svc := newTestUploadService(bc, &fakeBlobs{}, &fakeImageRepo{})

	res, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		Slot:        model.SlotA,
		ContentType: "image/jpeg",
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err != nil {
		t.Fatalf("Upload() вернул ошибку: %v", err)
	}

	entry, ok := svc.Progress(res.OrderID, model.SlotA)
	if !ok {
		t.Fatal("прогресс завершённой загрузки должен остаться доступным")
	}
	if entry.Percent != ProgressComplete {
		t.Errorf("Percent = %d, ожидали 100", entry.Percent)
	}
	if entry.Error != "" {
		t.Errorf("Error = %q, ожидали пустой", entry.Error)
	}
}

// TestUpload_ProgressKeepsError — сбой конвейера записывает текст
// ошибки под тем же ключом, сохраняя достигнутый этап.
func TestUpload_ProgressKeepsError(t *testing.T) {
	bc := newFakeOrderBackend()
	bc.orders["order-1"] = true
	blobs := &fakeBlobs{uploadErr: errors.New("bucket недоступен")}
	svc := newTestUploadService(bc, blobs, &fakeImageRepo{})

	_, err := svc.Upload(context.Background(), UploadInput{
		Token:   "token",
		UserID:  "user-1",
		OrderID: "order-1",
		Slot:    model.SlotB,
		Body:    bytes.NewReader(nil),
	})
	if err == nil {
		t.Fatal("ожидали ошибку хранилища")
	}

	entry, ok := svc.Progress("order-1", model.SlotB)
	if !ok {
		t.Fatal("запись прогресса должна сохраниться после сбоя")
	}
	if entry.Error == "" {
		t.Error("ожидали текст ошибки в записи прогресса")
	}
	if entry.Percent != ProgressOrder {
		t.Errorf("Percent = %d, ожидали 25 (этап до сбоя)", entry.Percent)
	}
}

// TestUpload_ClearProgress — сброс мастера удаляет записи прогресса
// всех слотов заказа.
func TestUpload_ClearProgress(t *testing.T) {
	bc := newFakeOrderBackend()
	svc := newTestUploadService(bc, &fakeBlobs{}, &fakeImageRepo{})

	res, err := svc.Upload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		Slot:        model.SlotA,
		ContentType: "image/jpeg",
		Body:        bytes.NewReader([]byte("фото")),
	})
	if err != nil {
		t.Fatalf("Upload() вернул ошибку: %v", err)
	}

	svc.ClearProgress(res.OrderID)
	if _, ok := svc.Progress(res.OrderID, model.SlotA); ok {
		t.Error("после ClearProgress записей быть не должно")
	}
}

// TestPresignUpload — подписанный URL выдаётся, заказ создаётся при
// отсутствии OrderID.
func TestPresignUpload(t *testing.T) {
	bc := newFakeOrderBackend()
	svc := newTestUploadService(bc, &fakeBlobs{}, &fakeImageRepo{})

	orderID, key, uploadURL, ttl, err := svc.PresignUpload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		Slot:        model.SlotB,
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("PresignUpload() вернул ошибку: %v", err)
	}
	if orderID == "" || key == "" {
		t.Error("ожидали непустые orderID и key")
	}
	if !strings.HasPrefix(uploadURL, "https://storage.test/presigned/") {
		t.Errorf("неожиданный URL: %s", uploadURL)
	}
	if ttl != 5*time.Minute {
		t.Errorf("ttl = %v, ожидали 5m", ttl)
	}
	if bc.createCalls != 1 {
		t.Errorf("создание заказа вызвано %d раз, ожидали 1", bc.createCalls)
	}
}

// TestPresignUpload_RecreatesMissingOrder — выдача подписанного URL
// пересоздаёт отсутствующий заказ по тем же правилам, что и Upload.
func TestPresignUpload_RecreatesMissingOrder(t *testing.T) {
	bc := newFakeOrderBackend()
	svc := newTestUploadService(bc, &fakeBlobs{}, &fakeImageRepo{})

	orderID, _, _, _, err := svc.PresignUpload(context.Background(), UploadInput{
		Token:       "token",
		UserID:      "user-1",
		OrderID:     "stale-order-2",
		Slot:        model.SlotC,
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("PresignUpload() вернул ошибку: %v", err)
	}
	if orderID != "stale-order-2" {
		t.Errorf("orderID = %s, ожидали переданный stale-order-2", orderID)
	}
	if bc.createCalls != 1 {
		t.Errorf("создание заказа вызвано %d раз, ожидали 1", bc.createCalls)
	}
}

// --- Тесты реестра прогресса ---

// TestProgressRegistry — базовые операции реестра.
func TestProgressRegistry(t *testing.T) {
	reg := NewProgressRegistry()

	if _, ok := reg.Get("order-1", model.SlotA); ok {
		t.Error("пустой реестр не должен содержать записей")
	}

	reg.Set("order-1", model.SlotA, ProgressStored)
	if e, ok := reg.Get("order-1", model.SlotA); !ok || e.Percent != ProgressStored {
		t.Errorf("Get() = (%+v, %v), ожидали Percent=75", e, ok)
	}

	// Разные слоты одного заказа не пересекаются
	if _, ok := reg.Get("order-1", model.SlotB); ok {
		t.Error("слот B не должен наследовать прогресс слота A")
	}

	reg.Clear("order-1", model.SlotA)
	if _, ok := reg.Get("order-1", model.SlotA); ok {
		t.Error("запись должна быть удалена после Clear")
	}
}

// TestProgressRegistry_Fail — Fail сохраняет достигнутый этап
// и добавляет текст ошибки; Set сбрасывает ошибку.
func TestProgressRegistry_Fail(t *testing.T) {
	reg := NewProgressRegistry()

	reg.Set("order-1", model.SlotA, ProgressOrder)
	reg.Fail("order-1", model.SlotA, "bucket недоступен")

	e, ok := reg.Get("order-1", model.SlotA)
	if !ok {
		t.Fatal("запись должна остаться после Fail")
	}
	if e.Percent != ProgressOrder {
		t.Errorf("Percent = %d, ожидали 25", e.Percent)
	}
	if e.Error != "bucket недоступен" {
		t.Errorf("Error = %q, ожидали текст ошибки", e.Error)
	}

	// Повторная попытка начинает с чистой записи
	reg.Set("order-1", model.SlotA, ProgressStarted)
	if e, _ := reg.Get("order-1", model.SlotA); e.Error != "" {
		t.Errorf("Error = %q, ожидали сброс после Set", e.Error)
	}
}

// TestProgressRegistry_TTL — устаревшие записи вытесняются.
func TestProgressRegistry_TTL(t *testing.T) {
	reg := newProgressRegistry(time.Millisecond)

	reg.Set("order-1", model.SlotA, ProgressComplete)
	time.Sleep(5 * time.Millisecond)

	if _, ok := reg.Get("order-1", model.SlotA); ok {
		t.Error("запись старше TTL должна считаться отсутствующей")
	}

	// Новая запись под другим ключом вытесняет устаревшие из карты
	reg.Set("order-2", model.SlotB, ProgressStarted)
	reg.mu.Lock()
	if _, exists := reg.entries[progressKey("order-1", model.SlotA)]; exists {
		t.Error("устаревшая запись должна быть удалена при следующей записи")
	}
	reg.mu.Unlock()
}
