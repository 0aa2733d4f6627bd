// results.go — обработчики /api/v1/results endpoints.
// Результаты расчёта мерок текущего пользователя.
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

// resultResponse — проекция результата расчёта для API.
type resultResponse struct {
	ID           string              `json:"id"`
	OrderID      string              `json:"order_id"`
	UserID       string              `json:"user_id"`
	Status       string              `json:"status"`
	Outcome      *string             `json:"outcome"`
	Measurements *model.Measurements `json:"measurements,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

// ListMyResults — GET /api/v1/results.
// Возвращает результаты расчёта мерок текущего пользователя.
func (h *APIHandler) ListMyResults(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	results, err := h.results.ListMine(r.Context(), middleware.TokenFromContext(r.Context()), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения результатов")
		return
	}

	items := make([]resultResponse, len(results))
	for i, res := range results {
		items[i] = mapResult(&res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetResult — GET /api/v1/results/{id}.
// Пользователь видит только собственные результаты; администратор — любые.
func (h *APIHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id := chi.URLParam(r, "id")
	res, err := h.results.Get(r.Context(), middleware.TokenFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения результата")
		return
	}

	if res.UserID != claims.Subject && !claims.HasRole(rbac.RoleAdmin) {
		apierrors.Forbidden(w, "Чужой результат недоступен")
		return
	}

	writeJSON(w, http.StatusOK, mapResult(res))
}

// mapResult конвертирует результат расчёта в ответ API.
func mapResult(res *model.MeasurementResult) resultResponse {
	out := resultResponse{
		ID:           res.ID,
		OrderID:      res.OrderID,
		UserID:       res.UserID,
		Status:       string(res.Status),
		Measurements: res.Measurements,
		CreatedAt:    res.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    res.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if res.Outcome != nil {
		s := string(*res.Outcome)
		out.Outcome = &s
	}
	return out
}
