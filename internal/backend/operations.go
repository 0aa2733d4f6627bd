package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// Каждая операция — тонкая обёртка над Execute с фиксированным
// текстом операции и типизированными переменными.

// userRow — строка таблицы users бэкенда.
type userRow struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// orderRow — строка таблицы orders бэкенда.
type orderRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// resultRow — строка таблицы results бэкенда.
type resultRow struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	Status        string     `json:"status"`
	Outcome       *string    `json:"outcome"`
	Heel          *float64   `json:"heel"`
	Width         *float64   `json:"width"`
	Length        *float64   `json:"length"`
	Circumference *float64   `json:"circumference"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// configRow — единственная строка таблицы company_config бэкенда.
type configRow struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toModel конвертирует строку результата в доменную модель.
func (r resultRow) toModel() model.MeasurementResult {
	res := model.MeasurementResult{
		ID:        r.ID,
		OrderID:   r.OrderID,
		UserID:    r.UserID,
		Status:    model.ProcessingStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Outcome != nil {
		outcome := model.ReviewOutcome(*r.Outcome)
		res.Outcome = &outcome
	}
	if r.Heel != nil && r.Width != nil && r.Length != nil && r.Circumference != nil {
		res.Measurements = &model.Measurements{
			Heel:          *r.Heel,
			Width:         *r.Width,
			Length:        *r.Length,
			Circumference: *r.Circumference,
		}
	}
	return res
}

const opCurrentUser = `query CurrentUser($id: uuid!) {
  users_by_pk(id: $id) { id username email first_name last_name role created_at }
}`

// CurrentUser читает зеркальную запись пользователя из бэкенда.
// Возвращает nil, если записи ещё нет (пользователь не синхронизирован).
func (c *Client) CurrentUser(ctx context.Context, token, userID string) (*model.PortalUser, error) {
	var out struct {
		User *userRow `json:"users_by_pk"`
	}
	if err := c.Execute(ctx, token, opCurrentUser, map[string]any{"id": userID}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, nil
	}
	return &model.PortalUser{
		ID:        out.User.ID,
		Username:  out.User.Username,
		Email:     out.User.Email,
		FirstName: out.User.FirstName,
		LastName:  out.User.LastName,
		Role:      out.User.Role,
		CreatedAt: out.User.CreatedAt,
	}, nil
}

const opUpsertUser = `mutation UpsertUser($user: users_insert_input!) {
  insert_users_one(object: $user, on_conflict: {
    constraint: users_pkey,
    update_columns: [username, email, first_name, last_name, role]
  }) { id }
}`

// UpsertUser создаёт или обновляет зеркальную запись пользователя.
// Вызывается при синхронизации сессии после логина.
func (c *Client) UpsertUser(ctx context.Context, token string, u model.PortalUser) error {
	vars := map[string]any{
		"user": map[string]any{
			"id":         u.ID,
			"username":   u.Username,
			"email":      u.Email,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"role":       u.Role,
		},
	}
	return c.Execute(ctx, token, opUpsertUser, vars, nil)
}

const opOrderExists = `query OrderExists($id: uuid!) {
  orders_by_pk(id: $id) { id }
}`

// OrderExists проверяет существование заказа.
func (c *Client) OrderExists(ctx context.Context, token, orderID string) (bool, error) {
	var out struct {
		Order *struct {
			ID string `json:"id"`
		} `json:"orders_by_pk"`
	}
	if err := c.Execute(ctx, token, opOrderExists, map[string]any{"id": orderID}, &out); err != nil {
		return false, err
	}
	return out.Order != nil, nil
}

const opCreateOrder = `mutation CreateOrder($order: orders_insert_input!) {
  insert_orders_one(object: $order) { id }
}`

// CreateProvisionalOrder создаёт временный заказ под загрузку снимков.
func (c *Client) CreateProvisionalOrder(ctx context.Context, token, orderID, userID string) error {
	vars := map[string]any{
		"order": map[string]any{
			"id":      orderID,
			"user_id": userID,
			"status":  string(model.OrderProvisional),
		},
	}
	return c.Execute(ctx, token, opCreateOrder, vars, nil)
}

const opSubmitOrder = `mutation SubmitOrder($id: uuid!) {
  update_orders_by_pk(pk_columns: {id: $id}, _set: {status: "submitted"}) { id }
}`

// SubmitOrder переводит заказ из временного в отправленный.
func (c *Client) SubmitOrder(ctx context.Context, token, orderID string) error {
	return c.Execute(ctx, token, opSubmitOrder, map[string]any{"id": orderID}, nil)
}

const opInsertOrderImage = `mutation InsertOrderImage($image: order_images_insert_input!) {
  insert_order_images_one(object: $image) { id }
}`

// InsertOrderImage записывает метаданные загруженного снимка.
// Пустой ID не передаётся: идентификатор генерирует бэкенд.
func (c *Client) InsertOrderImage(ctx context.Context, token string, img model.OrderImage) error {
	obj := map[string]any{
		"order_id":     img.OrderID,
		"slot":         string(img.Slot),
		"storage_key":  img.StorageKey,
		"url":          img.PublicURL,
		"content_type": img.ContentType,
		"size":         img.Size,
		"uploaded_by":  img.UploadedBy,
	}
	if img.ID != "" {
		obj["id"] = img.ID
	}
	return c.Execute(ctx, token, opInsertOrderImage, map[string]any{"image": obj}, nil)
}

const opInsertResult = `mutation InsertResult($result: results_insert_input!) {
  insert_results_one(object: $result) { id }
}`

// InsertResult создаёт запись результата расчёта в статусе pendente.
// Пустой ID не передаётся: идентификатор генерирует бэкенд.
func (c *Client) InsertResult(ctx context.Context, token string, res model.MeasurementResult) error {
	obj := map[string]any{
		"order_id": res.OrderID,
		"user_id":  res.UserID,
		"status":   string(res.Status),
	}
	if res.ID != "" {
		obj["id"] = res.ID
	}
	if res.Measurements != nil {
		obj["heel"] = res.Measurements.Heel
		obj["width"] = res.Measurements.Width
		obj["length"] = res.Measurements.Length
		obj["circumference"] = res.Measurements.Circumference
	}
	return c.Execute(ctx, token, opInsertResult, map[string]any{"result": obj}, nil)
}

const opListResults = `query ListResults($userId: uuid!) {
  results(where: {user_id: {_eq: $userId}}, order_by: {created_at: desc}) {
    id order_id user_id status outcome heel width length circumference created_at updated_at
  }
}`

// ListResults возвращает результаты пользователя, новые первыми.
func (c *Client) ListResults(ctx context.Context, token, userID string) ([]model.MeasurementResult, error) {
	var out struct {
		Results []resultRow `json:"results"`
	}
	if err := c.Execute(ctx, token, opListResults, map[string]any{"userId": userID}, &out); err != nil {
		return nil, err
	}
	results := make([]model.MeasurementResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, r.toModel())
	}
	return results, nil
}

const opListAllResults = `query ListAllResults($limit: Int!, $offset: Int!) {
  results(order_by: {created_at: desc}, limit: $limit, offset: $offset) {
    id order_id user_id status outcome heel width length circumference created_at updated_at
  }
  results_aggregate { aggregate { count } }
}`

// ListAllResults возвращает страницу всех результатов и общее число.
// Доступно только администратору.
func (c *Client) ListAllResults(ctx context.Context, token string, limit, offset int) ([]model.MeasurementResult, int, error) {
	var out struct {
		Results   []resultRow `json:"results"`
		Aggregate struct {
			Aggregate struct {
				Count int `json:"count"`
			} `json:"aggregate"`
		} `json:"results_aggregate"`
	}
	vars := map[string]any{"limit": limit, "offset": offset}
	if err := c.Execute(ctx, token, opListAllResults, vars, &out); err != nil {
		return nil, 0, err
	}
	results := make([]model.MeasurementResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, r.toModel())
	}
	return results, out.Aggregate.Aggregate.Count, nil
}

const opGetResult = `query GetResult($id: uuid!) {
  results_by_pk(id: $id) {
    id order_id user_id status outcome heel width length circumference created_at updated_at
  }
}`

// GetResult читает один результат. Возвращает nil, если его нет.
func (c *Client) GetResult(ctx context.Context, token, id string) (*model.MeasurementResult, error) {
	var out struct {
		Result *resultRow `json:"results_by_pk"`
	}
	if err := c.Execute(ctx, token, opGetResult, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, nil
	}
	res := out.Result.toModel()
	return &res, nil
}

const opUpdateResultStatus = `mutation UpdateResultStatus($id: uuid!, $status: String!, $outcome: String) {
  update_results_by_pk(pk_columns: {id: $id}, _set: {status: $status, outcome: $outcome}) { id }
}`

// UpdateResultStatus меняет статус обработки и вердикт результата.
func (c *Client) UpdateResultStatus(ctx context.Context, token, id string, status model.ProcessingStatus, outcome *model.ReviewOutcome) error {
	vars := map[string]any{
		"id":     id,
		"status": string(status),
	}
	if outcome != nil {
		vars["outcome"] = string(*outcome)
	} else {
		vars["outcome"] = nil
	}
	return c.Execute(ctx, token, opUpdateResultStatus, vars, nil)
}

const opUpdateMeasurements = `mutation UpdateMeasurements($id: uuid!, $heel: float8!, $width: float8!, $length: float8!, $circumference: float8!) {
  update_results_by_pk(pk_columns: {id: $id},
    _set: {heel: $heel, width: $width, length: $length, circumference: $circumference}) { id }
}`

// UpdateMeasurements корректирует расчётные мерки результата.
func (c *Client) UpdateMeasurements(ctx context.Context, token, id string, m model.Measurements) error {
	vars := map[string]any{
		"id":            id,
		"heel":          m.Heel,
		"width":         m.Width,
		"length":        m.Length,
		"circumference": m.Circumference,
	}
	return c.Execute(ctx, token, opUpdateMeasurements, vars, nil)
}

const opGetCompanyConfig = `query GetCompanyConfig {
  company_config(limit: 1) { name email phone address updated_at }
}`

// GetCompanyConfig читает настройки компании.
func (c *Client) GetCompanyConfig(ctx context.Context, token string) (*model.CompanyConfig, error) {
	var out struct {
		Config []configRow `json:"company_config"`
	}
	if err := c.Execute(ctx, token, opGetCompanyConfig, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Config) == 0 {
		return nil, fmt.Errorf("backend: настройки компании не найдены")
	}
	row := out.Config[0]
	return &model.CompanyConfig{
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Address:   row.Address,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

const opUpdateCompanyConfig = `mutation UpdateCompanyConfig($name: String!, $email: String!, $phone: String!, $address: String!) {
  update_company_config(where: {},
    _set: {name: $name, email: $email, phone: $phone, address: $address}) { affected_rows }
}`

// UpdateCompanyConfig обновляет настройки компании.
// Доступно только администратору.
func (c *Client) UpdateCompanyConfig(ctx context.Context, token string, cfg model.CompanyConfig) error {
	vars := map[string]any{
		"name":    cfg.Name,
		"email":   cfg.Email,
		"phone":   cfg.Phone,
		"address": cfg.Address,
	}
	return c.Execute(ctx, token, opUpdateCompanyConfig, vars, nil)
}

const opListStaleProvisionalOrders = `query ListStaleProvisionalOrders($before: timestamptz!) {
  orders(where: {status: {_eq: "provisional"}, created_at: {_lt: $before}}) {
    id user_id status created_at
  }
}`

// ListStaleProvisionalOrders возвращает временные заказы старше before.
// Используется сборщиком мусора под сервисным токеном.
func (c *Client) ListStaleProvisionalOrders(ctx context.Context, token string, before time.Time) ([]model.Order, error) {
	var out struct {
		Orders []orderRow `json:"orders"`
	}
	vars := map[string]any{"before": before.UTC().Format(time.RFC3339)}
	if err := c.Execute(ctx, token, opListStaleProvisionalOrders, vars, &out); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(out.Orders))
	for _, o := range out.Orders {
		orders = append(orders, model.Order{
			ID:        o.ID,
			UserID:    o.UserID,
			Status:    model.OrderStatus(o.Status),
			CreatedAt: o.CreatedAt,
		})
	}
	return orders, nil
}

const opDeleteOrder = `mutation DeleteOrder($id: uuid!) {
  delete_order_images(where: {order_id: {_eq: $id}}) { affected_rows }
  delete_orders_by_pk(id: $id) { id }
}`

// DeleteOrder удаляет заказ вместе с метаданными снимков.
// Используется сборщиком мусора для брошенных временных заказов.
func (c *Client) DeleteOrder(ctx context.Context, token, orderID string) error {
	return c.Execute(ctx, token, opDeleteOrder, map[string]any{"id": orderID}, nil)
}
