// Package services holds the business logic between HTTP handlers and
// repositories.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/crypto"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// DatasourceInput carries the writable datasource fields. The password is
// accepted here and nowhere else; readers never see it again.
type DatasourceInput struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// DatasourceService manages registered datasources and their credentials.
type DatasourceService interface {
	Create(ctx context.Context, input DatasourceInput) (*models.DataSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	List(ctx context.Context) ([]*models.DataSource, error)

	// Update changes a datasource. An empty input password keeps the stored
	// one.
	Update(ctx context.Context, id uuid.UUID, input DatasourceInput) (*models.DataSource, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// TestStored checks connectivity for a saved datasource using its stored
	// credentials.
	TestStored(ctx context.Context, id uuid.UUID) error

	// TestInput checks connectivity for yet-unsaved settings, so the UI can
	// verify before creating.
	TestInput(ctx context.Context, input DatasourceInput) error

	// ConnConfig resolves a datasource's connection settings, password
	// decrypted, for the extraction pipeline.
	ConnConfig(ctx context.Context, id uuid.UUID) (*models.DataSource, source.ConnConfig, error)

	SupportedTypes() []source.DriverInfo
}

type datasourceService struct {
	repo      repositories.DatasourceRepository
	factory   source.ConnectorFactory
	encryptor *crypto.CredentialEncryptor
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDatasourceService creates a DatasourceService. timeout caps connector
// dials and queries.
func NewDatasourceService(
	repo repositories.DatasourceRepository,
	factory source.ConnectorFactory,
	encryptor *crypto.CredentialEncryptor,
	timeout time.Duration,
	logger *zap.Logger,
) DatasourceService {
	return &datasourceService{
		repo:      repo,
		factory:   factory,
		encryptor: encryptor,
		timeout:   timeout,
		logger:    logger.Named("datasource-service"),
	}
}

var _ DatasourceService = (*datasourceService)(nil)

func (s *datasourceService) Create(ctx context.Context, input DatasourceInput) (*models.DataSource, error) {
	if err := s.validate(input, true); err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(input.Password)
	if err != nil {
		s.logger.Error("Failed to encrypt credentials", zap.Error(err))
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	ds := &models.DataSource{
		Name:     input.Name,
		Type:     input.Type,
		Host:     input.Host,
		Port:     input.Port,
		Username: input.Username,
		Database: input.Database,
	}
	if err := s.repo.Create(ctx, ds, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("Datasource created",
		zap.String("datasource_id", ds.ID.String()),
		zap.String("name", ds.Name),
		zap.String("type", ds.Type))
	return ds, nil
}

func (s *datasourceService) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	ds, _, err := s.repo.GetByID(ctx, id)
	return ds, err
}

func (s *datasourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	return s.repo.List(ctx)
}

func (s *datasourceService) Update(ctx context.Context, id uuid.UUID, input DatasourceInput) (*models.DataSource, error) {
	if err := s.validate(input, false); err != nil {
		return nil, err
	}

	ds, _, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Empty password means keep the stored secret; the repository treats an
	// empty ciphertext the same way.
	encrypted := ""
	if input.Password != "" {
		if encrypted, err = s.encryptor.Encrypt(input.Password); err != nil {
			s.logger.Error("Failed to encrypt credentials", zap.Error(err))
			return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
		}
	}

	ds.Name = input.Name
	ds.Type = input.Type
	ds.Host = input.Host
	ds.Port = input.Port
	ds.Username = input.Username
	ds.Database = input.Database

	if err := s.repo.Update(ctx, ds, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("Datasource updated", zap.String("datasource_id", id.String()))
	return ds, nil
}

func (s *datasourceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Datasource deleted", zap.String("datasource_id", id.String()))
	return nil
}

func (s *datasourceService) TestStored(ctx context.Context, id uuid.UUID) error {
	ds, cfg, err := s.ConnConfig(ctx, id)
	if err != nil {
		return err
	}
	return s.test(ctx, ds.Type, cfg)
}

func (s *datasourceService) TestInput(ctx context.Context, input DatasourceInput) error {
	if err := s.validate(input, true); err != nil {
		return err
	}
	return s.test(ctx, input.Type, source.ConnConfig{
		Host:     input.Host,
		Port:     input.Port,
		Username: input.Username,
		Password: input.Password,
		Database: input.Database,
		Timeout:  s.timeout,
	})
}

func (s *datasourceService) test(ctx context.Context, dsType string, cfg source.ConnConfig) error {
	conn, err := s.factory.NewConnector(ctx, dsType, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.TestConnection(ctx)
}

func (s *datasourceService) ConnConfig(ctx context.Context, id uuid.UUID) (*models.DataSource, source.ConnConfig, error) {
	ds, encrypted, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, source.ConnConfig{}, err
	}
	password, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		s.logger.Error("Failed to decrypt credentials",
			zap.String("datasource_id", id.String()),
			zap.Error(err))
		return nil, source.ConnConfig{}, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return ds, source.ConnConfig{
		Host:     ds.Host,
		Port:     ds.Port,
		Username: ds.Username,
		Password: password,
		Database: ds.Database,
		Timeout:  s.timeout,
	}, nil
}

func (s *datasourceService) SupportedTypes() []source.DriverInfo {
	return s.factory.ListTypes()
}

func (s *datasourceService) validate(input DatasourceInput, passwordRequired bool) error {
	if input.Name == "" {
		return fmt.Errorf("name is required: %w", apperrors.ErrValidation)
	}
	if input.Host == "" {
		return fmt.Errorf("host is required: %w", apperrors.ErrValidation)
	}
	if input.Port < 1 || input.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535: %w", apperrors.ErrValidation)
	}
	if input.Username == "" {
		return fmt.Errorf("username is required: %w", apperrors.ErrValidation)
	}
	if input.Database == "" {
		return fmt.Errorf("database is required: %w", apperrors.ErrValidation)
	}
	if passwordRequired && input.Password == "" {
		return fmt.Errorf("password is required: %w", apperrors.ErrValidation)
	}
	for _, info := range s.factory.ListTypes() {
		if info.Type == input.Type {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedType, input.Type)
}
