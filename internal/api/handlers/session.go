// session.go — обработчики /api/v1/session endpoints.
// Текущий пользователь из JWT и синхронизация зеркала в бэкенде.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// userResponse — проекция пользователя для API.
type userResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Enabled   bool     `json:"enabled"`
	Groups    []string `json:"groups,omitempty"`
	Role      string   `json:"role,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// GetSession — GET /api/v1/session.
// Возвращает текущего пользователя из claims токена.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(h.users.CurrentUser(claims)))
}

// SyncSession — POST /api/v1/session/sync.
// Синхронизирует пользователя из Keycloak в зеркало бэкенда.
// Вызывается фронтендом после входа.
func (h *APIHandler) SyncSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	user, err := h.users.SyncUser(r.Context(), middleware.TokenFromContext(r.Context()), claims)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка синхронизации пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// mapUser конвертирует доменную модель пользователя в ответ API.
func mapUser(u *model.PortalUser) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Enabled:   u.Enabled,
		Groups:    u.Groups,
		Role:      u.Role,
	}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
