// admin_users.go — обработчики /api/v1/admin/users endpoints.
// Управление пользователями из Keycloak: список, карточка, блокировка.
// Доступ: app_admin (гарантируется RequireRole на поддереве /admin).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
)

// userListResponse — ответ со списком пользователей.
type userListResponse struct {
	Items   []userResponse `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

// userEnabledRequest — запрос блокировки/разблокировки пользователя.
type userEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// ListUsers — GET /api/v1/admin/users?search=&limit=&offset=.
// Возвращает список пользователей из Keycloak.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationDefaults(r)
	search := r.URL.Query().Get("search")

	users, total, err := h.users.ListUsers(r.Context(), search, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetUser — GET /api/v1/admin/users/{id}.
// Возвращает карточку пользователя с группами.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя")
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// SetUserEnabled — PUT /api/v1/admin/users/{id}/enabled.
// Блокирует или разблокирует аккаунт в Keycloak.
func (h *APIHandler) SetUserEnabled(w http.ResponseWriter, r *http.Request) {
	var req userEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Enabled == nil {
		apierrors.ValidationError(w, "Требуется поле enabled")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.users.SetUserEnabled(r.Context(), id, *req.Enabled); err != nil {
		h.writeServiceError(w, err, "Ошибка изменения статуса пользователя")
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя")
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}
