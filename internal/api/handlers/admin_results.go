// admin_results.go — обработчики /api/v1/admin/results endpoints.
// Ревью результатов: список всех, смена статуса, правка мерок.
// Доступ: app_admin (гарантируется RequireRole на поддереве /admin).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// resultListResponse — ответ со списком результатов.
type resultListResponse struct {
	Items   []resultResponse `json:"items"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

// resultStatusRequest — запрос смены статуса результата.
type resultStatusRequest struct {
	Status  string  `json:"status"`
	Outcome *string `json:"outcome"`
}

// ListAllResults — GET /api/v1/admin/results?limit=&offset=.
// Возвращает результаты всех пользователей.
func (h *APIHandler) ListAllResults(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationDefaults(r)

	results, total, err := h.results.ListAll(r.Context(), middleware.TokenFromContext(r.Context()), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения результатов")
		return
	}

	items := make([]resultResponse, len(results))
	for i, res := range results {
		items[i] = mapResult(&res)
	}

	writeJSON(w, http.StatusOK, resultListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// UpdateResultStatus — PUT /api/v1/admin/results/{id}/status.
// Меняет статус обработки; вердикт допустим только вместе со
// статусом concluido.
func (h *APIHandler) UpdateResultStatus(w http.ResponseWriter, r *http.Request) {
	var req resultStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	status, err := model.ParseProcessingStatus(req.Status)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var outcome *model.ReviewOutcome
	if req.Outcome != nil {
		o, err := model.ParseReviewOutcome(*req.Outcome)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		outcome = &o
	}

	res, err := h.results.UpdateStatus(r.Context(), middleware.TokenFromContext(r.Context()), chi.URLParam(r, "id"), status, outcome)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка смены статуса результата")
		return
	}
	writeJSON(w, http.StatusOK, mapResult(res))
}

// UpdateResultMeasurements — PUT /api/v1/admin/results/{id}/measurements.
// Корректирует расчётные мерки результата.
func (h *APIHandler) UpdateResultMeasurements(w http.ResponseWriter, r *http.Request) {
	var req model.Measurements
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	res, err := h.results.UpdateMeasurements(r.Context(), middleware.TokenFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка правки мерок")
		return
	}
	writeJSON(w, http.StatusOK, mapResult(res))
}
