// companyconfig.go — сервис реквизитов компании.
// Данные хранятся в бэкенде одной записью; чтение доступно всем
// аутентифицированным пользователям, изменение — администраторам.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ortokids/ortokids/portal-module/internal/backend"
	"github.com/ortokids/ortokids/portal-module/internal/domain/model"
)

// CompanyConfigService — сервис реквизитов компании.
type CompanyConfigService struct {
	backend *backend.Client
	logger  *slog.Logger
}

// NewCompanyConfigService создаёт сервис реквизитов компании.
func NewCompanyConfigService(bc *backend.Client, logger *slog.Logger) *CompanyConfigService {
	return &CompanyConfigService{
		backend: bc,
		logger:  logger.With(slog.String("component", "company_config_service")),
	}
}

// Get возвращает реквизиты компании.
func (s *CompanyConfigService) Get(ctx context.Context, token string) (*model.CompanyConfig, error) {
	cfg, err := s.backend.GetCompanyConfig(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("получение реквизитов компании: %w", err)
	}
	return cfg, nil
}

// Update изменяет реквизиты компании (административная операция).
func (s *CompanyConfigService) Update(ctx context.Context, token string, cfg model.CompanyConfig) (*model.CompanyConfig, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: название компании не может быть пустым", ErrValidation)
	}
	if cfg.Email != "" && !strings.Contains(cfg.Email, "@") {
		return nil, fmt.Errorf("%w: некорректный email %q", ErrValidation, cfg.Email)
	}

	if err := s.backend.UpdateCompanyConfig(ctx, token, cfg); err != nil {
		return nil, fmt.Errorf("обновление реквизитов компании: %w", err)
	}

	s.logger.Info("Реквизиты компании обновлены", slog.String("name", cfg.Name))
	return s.Get(ctx, token)
}
