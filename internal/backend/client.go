// Пакет backend — клиент GraphQL-бэкенда, в котором хранятся
// бизнес-данные (заказы, снимки, результаты, пользователи, настройки).
//
// Контракт Execute: непустой bearer-токен обязателен; тело запроса —
// {"query": ..., "variables": ...}. Ответ с непустым массивом errors
// превращается в APIError с первым сообщением независимо от HTTP-статуса;
// не-2xx без массива errors — в TransportError. Автоматических повторов нет.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrEmptyToken — вызов без bearer-токена.
var ErrEmptyToken = errors.New("backend: пустой bearer-токен")

// TransportError — не-2xx ответ бэкенда без массива errors в теле.
type TransportError struct {
	// StatusCode — HTTP статус-код
	StatusCode int
	// Status — строка статуса (например, "502 Bad Gateway")
	Status string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: транспортная ошибка: %s", e.Status)
}

// APIError — ошибка уровня приложения, полученная в массиве errors.
// Message — сообщение первого элемента массива.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: ошибка API: %s", e.Message)
}

// Client — HTTP-клиент GraphQL-бэкенда.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// New создаёт клиент бэкенда.
func New(url string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		logger:     logger.With(slog.String("component", "backend_client")),
	}
}

// graphqlRequest — тело POST-запроса к бэкенду.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlError — элемент массива errors в ответе.
type graphqlError struct {
	Message string `json:"message"`
}

// graphqlResponse — ответ бэкенда: {data} или {data, errors}.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Execute выполняет GraphQL-операцию от имени обладателя токена
// и декодирует поле data в out (out == nil — результат отбрасывается).
//
// Ошибки:
//   - ErrEmptyToken — токен пуст
//   - *APIError — ответ содержит непустой массив errors
//   - *TransportError — не-2xx статус без массива errors
func (c *Client) Execute(ctx context.Context, token, query string, variables map[string]any, out any) error {
	if token == "" {
		return ErrEmptyToken
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("backend: сериализация запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: выполнение запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: чтение ответа: %w", err)
	}

	// Массив errors имеет приоритет над HTTP-статусом
	var gqlResp graphqlResponse
	if jsonErr := json.Unmarshal(respBody, &gqlResp); jsonErr == nil && len(gqlResp.Errors) > 0 {
		c.logger.Debug("бэкенд вернул ошибку приложения",
			slog.String("message", gqlResp.Errors[0].Message),
			slog.Int("status", resp.StatusCode),
		)
		return &APIError{Message: gqlResp.Errors[0].Message}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("бэкенд вернул транспортную ошибку",
			slog.Int("status", resp.StatusCode),
		)
		return &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("backend: декодирование data: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность бэкенда тривиальным запросом.
// Используется в readiness probe и dephealth.
func (c *Client) CheckReady(ctx context.Context, token string) error {
	var out struct {
		Typename string `json:"__typename"`
	}
	return c.Execute(ctx, token, `query Ready { __typename }`, nil, &out)
}

// ReadinessChecker — проверка готовности бэкенда для health endpoint.
// Запросы идут под сервисным токеном: у readiness probe нет
// пользовательского. Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	client        *Client
	tokenProvider func(ctx context.Context) (string, error)
}

// NewReadinessChecker создаёт проверку готовности бэкенда.
func NewReadinessChecker(client *Client, tokenProvider func(ctx context.Context) (string, error)) *ReadinessChecker {
	return &ReadinessChecker{client: client, tokenProvider: tokenProvider}
}

// CheckReady проверяет доступность бэкенда тривиальным GraphQL-запросом.
// Возвращает статус ("ok", "degraded", "fail") и сообщение.
func (r *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	token, err := r.tokenProvider(ctx)
	if err != nil {
		// Бэкенд может быть жив, но проверить это без токена нельзя
		return "degraded", fmt.Sprintf("сервисный токен недоступен: %v", err)
	}
	if err := r.client.CheckReady(ctx, token); err != nil {
		return "fail", fmt.Sprintf("бэкенд недоступен: %v", err)
	}
	return "ok", "бэкенд отвечает"
}
