// company_config.go — обработчики /api/v1/admin/config endpoints.
// Настройки компании, редактируемые администратором.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// companyConfigResponse — проекция настроек компании для API.
type companyConfigResponse struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// companyConfigRequest — запрос обновления настроек компании.
type companyConfigRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// GetCompanyConfig — GET /api/v1/admin/config.
func (h *APIHandler) GetCompanyConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.company.Get(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения настроек компании")
		return
	}
	writeJSON(w, http.StatusOK, mapCompanyConfig(cfg))
}

// UpdateCompanyConfig — PUT /api/v1/admin/config.
func (h *APIHandler) UpdateCompanyConfig(w http.ResponseWriter, r *http.Request) {
	var req companyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	cfg, err := h.company.Update(r.Context(), middleware.TokenFromContext(r.Context()), model.CompanyConfig{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обновления настроек компании")
		return
	}
	writeJSON(w, http.StatusOK, mapCompanyConfig(cfg))
}

// mapCompanyConfig конвертирует настройки компании в ответ API.
func mapCompanyConfig(cfg *model.CompanyConfig) companyConfigResponse {
	resp := companyConfigResponse{
		Name:    cfg.Name,
		Email:   cfg.Email,
		Phone:   cfg.Phone,
		Address: cfg.Address,
	}
	if !cfg.UpdatedAt.IsZero() {
		resp.UpdatedAt = cfg.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
