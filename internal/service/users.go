// users.go — сервис пользователей: профиль текущего пользователя,
// синхронизация с бэкендом и административные операции через Keycloak.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ortokids/ortokids/portal-module/internal/api/middleware"
	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
	"github.com/ortokids/ortokids/portal-module/internal/keycloak"
)

// UserService — сервис пользователей.
// Источник истины об учётных записях — Keycloak; бэкенд хранит
// проекцию пользователя для связей заказов и результатов.
type UserService struct {
	kcClient *keycloak.Client
	backend  *backend.Client
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(kcClient *keycloak.Client, bc *backend.Client, logger *slog.Logger) *UserService {
	return &UserService{
		kcClient: kcClient,
		backend:  bc,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// CurrentUser формирует профиль текущего пользователя из JWT claims.
func (s *UserService) CurrentUser(claims *middleware.AuthClaims) *model.PortalUser {
	return &model.PortalUser{
		ID:        claims.Subject,
		Username:  claims.PreferredUsername,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		Enabled:   true,
		Groups:    claims.Groups,
		Role:      claims.Role,
	}
}

// SyncUser регистрирует или обновляет проекцию пользователя в бэкенде.
// Вызывается после входа: заказы и результаты ссылаются на эту запись.
func (s *UserService) SyncUser(ctx context.Context, token string, claims *middleware.AuthClaims) (*model.PortalUser, error) {
	user := s.CurrentUser(claims)
	if err := s.backend.UpsertUser(ctx, token, *user); err != nil {
		return nil, fmt.Errorf("синхронизация пользователя %s: %w", user.ID, err)
	}
	s.logger.Debug("Пользователь синхронизирован с бэкендом",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// ListUsers возвращает пользователей из Keycloak (административная операция).
func (s *UserService) ListUsers(ctx context.Context, search string, limit, offset int) ([]*model.PortalUser, int, error) {
	kcUsers, err := s.kcClient.ListUsers(ctx, search, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: получение пользователей: %v", ErrIDPUnavailable, err)
	}

	total, err := s.kcClient.CountUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: подсчёт пользователей: %v", ErrIDPUnavailable, err)
	}

	users := make([]*model.PortalUser, 0, len(kcUsers))
	for i := range kcUsers {
		users = append(users, s.fromKeycloak(&kcUsers[i]))
	}
	return users, total, nil
}

// GetUser возвращает пользователя по Keycloak ID с его группами.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.PortalUser, error) {
	kcUser, err := s.kcClient.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: получение пользователя %s: %v", ErrIDPUnavailable, id, err)
	}

	user := s.fromKeycloak(kcUser)

	groups, err := s.kcClient.GetUserGroups(ctx, id)
	if err != nil {
		s.logger.Warn("Группы пользователя недоступны",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return user, nil
	}
	for _, g := range groups {
		user.Groups = append(user.Groups, g.Name)
	}
	return user, nil
}

// SetUserEnabled включает или отключает учётную запись в Keycloak.
func (s *UserService) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	if err := s.kcClient.SetUserEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("%w: изменение статуса пользователя %s: %v", ErrIDPUnavailable, id, err)
	}
	s.logger.Info("Статус учётной записи изменён",
		slog.String("user_id", id),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// fromKeycloak преобразует пользователя Keycloak в модель Portal Module.
func (s *UserService) fromKeycloak(u *keycloak.KeycloakUser) *model.PortalUser {
	return &model.PortalUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Enabled:   u.Enabled,
		CreatedAt: u.CreatedAtTime(),
	}
}
