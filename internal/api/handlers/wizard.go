// wizard.go — обработчики /api/v1/wizard endpoints.
// Состояние мастера, переходы, фиксация снимков и расчёт мерок.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ortokids/ortokids/portal-module/internal/api/errors"
	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/domain/wizard"
	"github.com/ortokids/ortokids/portal-module/internal/service"
)

// maxPhotoSize — максимальный размер снимка (10 MiB).
const maxPhotoSize = 10 << 20

// wizardResponse — проекция сессии мастера для API.
type wizardResponse struct {
	Step         int                 `json:"step"`
	StepName     string              `json:"step_name"`
	OrderID      string              `json:"order_id,omitempty"`
	Photos       map[string]string   `json:"photos"`
	Measurements *model.Measurements `json:"measurements,omitempty"`
	Calculating  bool                `json:"calculating"`
}

// capturePhotoResponse — ответ на фиксацию снимка.
type capturePhotoResponse struct {
	Session wizardResponse        `json:"session"`
	Upload  *service.UploadResult `json:"upload"`
}

// GetWizard — GET /api/v1/wizard.
// Возвращает сессию мастера, создавая её при первом обращении.
func (h *APIHandler) GetWizard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	sess, err := h.wizard.GetOrCreate(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки сессии мастера")
		return
	}
	writeJSON(w, http.StatusOK, mapWizardSession(sess))
}

// WizardNext — POST /api/v1/wizard/next.
// Переход на следующий шаг; с шага съёмки — только после снимка.
func (h *APIHandler) WizardNext(w http.ResponseWriter, r *http.Request) {
	h.wizardTransition(w, r, h.wizard.Next)
}

// WizardPrev — POST /api/v1/wizard/prev.
func (h *APIHandler) WizardPrev(w http.ResponseWriter, r *http.Request) {
	h.wizardTransition(w, r, h.wizard.Prev)
}

// WizardReset — POST /api/v1/wizard/reset.
// Возврат на intro с очисткой снимков, мерок и идентификатора заказа.
func (h *APIHandler) WizardReset(w http.ResponseWriter, r *http.Request) {
	h.wizardTransition(w, r, h.wizard.Reset)
}

// wizardTransition — общий каркас переходов мастера.
func (h *APIHandler) wizardTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, userID string) (*wizard.Session, error),
) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	sess, err := fn(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка перехода мастера")
		return
	}
	writeJSON(w, http.StatusOK, mapWizardSession(sess))
}

// CapturePhoto — POST /api/v1/wizard/photos/{slot}.
// Принимает multipart-форму с полем "photo" и фиксирует снимок
// слота текущего шага съёмки.
func (h *APIHandler) CapturePhoto(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	slot := model.ImageSlot(chi.URLParam(r, "slot"))
	if !slot.IsValid() {
		apierrors.ValidationError(w, "Неизвестный слот снимка: "+string(slot))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		apierrors.ValidationError(w, "В форме нет файла в поле photo")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sess, res, err := h.wizard.CapturePhoto(r.Context(), service.CapturePhotoInput{
		Token:       middleware.TokenFromContext(r.Context()),
		UserID:      claims.Subject,
		Slot:        slot,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки снимка")
		return
	}

	writeJSON(w, http.StatusOK, capturePhotoResponse{
		Session: mapWizardSession(sess),
		Upload:  res,
	})
}

// WizardCalculate — POST /api/v1/wizard/calculate.
// Запускает имитацию расчёта мерок на шаге result.
func (h *APIHandler) WizardCalculate(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	sess, err := h.wizard.Calculate(r.Context(), middleware.TokenFromContext(r.Context()), claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка расчёта мерок")
		return
	}
	writeJSON(w, http.StatusOK, mapWizardSession(sess))
}

// mapWizardSession конвертирует сессию мастера в ответ API.
func mapWizardSession(sess *wizard.Session) wizardResponse {
	photos := make(map[string]string, len(sess.Photos))
	for slot, url := range sess.Photos {
		photos[string(slot)] = url
	}
	return wizardResponse{
		Step:         int(sess.Step),
		StepName:     sess.Step.String(),
		OrderID:      sess.OrderID,
		Photos:       photos,
		Measurements: sess.Measurements,
		Calculating:  sess.Calculating,
	}
}
