// orders.go — обработчики /api/v1/orders endpoints.
// Снимки заказа из локального реестра с подписанными URL чтения.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/domain/rbac"
)

// signedURLTTL — срок жизни подписанных URL чтения снимков.
const signedURLTTL = 5 * time.Minute

// orderImageResponse — проекция снимка заказа для API.
type orderImageResponse struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Slot        string `json:"slot"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	UploadedAt  string `json:"uploaded_at"`
}

// ListOrderImages — GET /api/v1/orders/{id}/images.
// Возвращает актуальные снимки заказа. Пользователь видит только
// собственные заказы; администратор — любые.
func (h *APIHandler) ListOrderImages(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	orderID := chi.URLParam(r, "id")
	images, err := h.uploads.ListOrderImages(r.Context(), orderID, signedURLTTL)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения снимков заказа")
		return
	}

	// Заказы чужих пользователей доступны только администратору
	if !claims.HasRole(rbac.RoleAdmin) {
		for _, img := range images {
			if img.UploadedBy != claims.Subject {
				apierrors.Forbidden(w, "Снимки чужого заказа недоступны")
				return
			}
		}
	}

	items := make([]orderImageResponse, len(images))
	for i, img := range images {
		items[i] = mapOrderImage(img)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// mapOrderImage конвертирует снимок заказа в ответ API.
func mapOrderImage(img model.OrderImage) orderImageResponse {
	return orderImageResponse{
		ID:          img.ID,
		OrderID:     img.OrderID,
		Slot:        string(img.Slot),
		URL:         img.PublicURL,
		ContentType: img.ContentType,
		Size:        img.Size,
		UploadedAt:  img.UploadedAt.UTC().Format(time.RFC3339),
	}
}
