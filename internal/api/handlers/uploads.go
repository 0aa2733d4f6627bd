// uploads.go — обработчики /api/v1/uploads endpoints.
// Прогресс конвейера загрузки и выдача подписанных URL для прямой
// загрузки в хранилище. Статические ключи доступа остаются на сервере.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/service"
)

// presignRequest — запрос подписанного URL загрузки.
type presignRequest struct {
	OrderID     string `json:"order_id,omitempty"`
	Slot        string `json:"slot"`
	ContentType string `json:"content_type"`
}

// presignResponse — ответ с подписанным URL.
type presignResponse struct {
	OrderID    string `json:"order_id"`
	StorageKey string `json:"storage_key"`
	UploadURL  string `json:"upload_url"`
	ExpiresIn  int    `json:"expires_in"`
}

// progressResponse — текущее состояние загрузки слота.
type progressResponse struct {
	OrderID  string `json:"order_id"`
	Slot     string `json:"slot"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// UploadProgress — GET /api/v1/uploads/progress?order_id=...&slot=...
// Возвращает этап конвейера (0, 25, 75, 100) и текст ошибки, если
// конвейер прервался. 404 — если загрузка по ключу не отслеживается.
func (h *APIHandler) UploadProgress(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	slot := model.ImageSlot(r.URL.Query().Get("slot"))
	if orderID == "" || !slot.IsValid() {
		apierrors.ValidationError(w, "Требуются параметры order_id и slot (A-D)")
		return
	}

	entry, ok := h.uploads.Progress(orderID, slot)
	if !ok {
		apierrors.NotFound(w, "Загрузка не выполняется")
		return
	}

	writeJSON(w, http.StatusOK, progressResponse{
		OrderID:  orderID,
		Slot:     string(slot),
		Progress: entry.Percent,
		Error:    entry.Error,
	})
}

// PresignUpload — POST /api/v1/uploads/presign.
// Выдаёт короткоживущий подписанный URL для прямой загрузки снимка
// из браузера. Заказ создаётся по тем же правилам, что и при
// серверной загрузке.
func (h *APIHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	orderID, key, uploadURL, ttl, err := h.uploads.PresignUpload(r.Context(), service.UploadInput{
		Token:       middleware.TokenFromContext(r.Context()),
		UserID:      claims.Subject,
		OrderID:     req.OrderID,
		Slot:        model.ImageSlot(req.Slot),
		ContentType: req.ContentType,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка выдачи подписанного URL")
		return
	}

	writeJSON(w, http.StatusOK, presignResponse{
		OrderID:    orderID,
		StorageKey: key,
		UploadURL:  uploadURL,
		ExpiresIn:  int(ttl.Seconds()),
	})
}
