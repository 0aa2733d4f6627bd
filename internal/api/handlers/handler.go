// handler.go — основной обработчик API Portal Module.
// Объединяет все доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/domain/wizard"
	"github.com/ortokids/ortokids/portal-module/internal/service"
)

// APIHandler — основной обработчик API Portal Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health  *HealthHandler
	users   *service.UserService
	wizard  *service.WizardService
	uploads *service.UploadService
	results *service.ResultService
	company *service.CompanyConfigService
	logger  *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	users *service.UserService,
	wizardSvc *service.WizardService,
	uploads *service.UploadService,
	results *service.ResultService,
	company *service.CompanyConfigService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:  health,
		users:   users,
		wizard:  wizardSvc,
		uploads: uploads,
		results: results,
		company: company,
		logger:  logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации из query string.
// Возвращает корректные limit и offset.
func paginationDefaults(r *http.Request) (int, int) {
	l := 100
	o := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			l = n
		}
	}
	if l < 1 {
		l = 1
	}
	if l > 1000 {
		l = 1000
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o = n
		}
	}
	if o < 0 {
		o = 0
	}

	return l, o
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// fallback — сообщение для неожиданных ошибок (статус 500).
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var terr *wizard.TransitionError
	if errors.As(err, &terr) {
		apierrors.WriteError(w, http.StatusConflict, terr.Code, terr.Message)
		return
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		apierrors.BackendUnavailable(w, apiErr.Message)
		return
	}
	var trErr *backend.TransportError
	if errors.As(err, &trErr) {
		apierrors.BackendUnavailable(w, "Бэкенд недоступен")
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrBackendUnavailable):
		apierrors.BackendUnavailable(w, "Бэкенд недоступен")
	case errors.Is(err, service.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, "Хранилище снимков недоступно")
	case errors.Is(err, service.ErrIDPUnavailable):
		apierrors.IDPUnavailable(w, "Keycloak недоступен")
	default:
		h.logger.Error(fallback, "error", err)
		apierrors.InternalError(w, fallback)
	}
}
