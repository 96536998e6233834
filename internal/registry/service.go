package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingCodeProvider = errors.New("code provider is required")
	noOpLogger             = zap.NewNop()
)

// ServiceError wraps a failure with a stable dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code identifying the failure site.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "registry.service.new"
	opCreateBundle   = "registry.create_bundle"
	opAddFile        = "registry.add_file"
	opGetBundle      = "registry.get_bundle"
	opListFiles      = "registry.list_files"
	opExportBundle   = "registry.export_bundle"
	opUpdateBundle   = "registry.update_bundle"
	opFinalizeBundle = "registry.finalize_bundle"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig carries the dependencies required to build a Service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	CodeProvider CodeProvider
	Logger       *zap.Logger
}

// Service implements the bundle registry operations over the relational store.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	codes  CodeProvider
	logger *zap.Logger
}

// NewService validates the configuration and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.CodeProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_code_provider", errMissingCodeProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		codes:  cfg.CodeProvider,
		logger: logger,
	}, nil
}

func (s *Service) nowMillis() int64 {
	return s.clock().UnixMilli()
}

// CreateBundle inserts a new bundle row, generating a code when the request
// does not supply one. Client-supplied codes pass the same validation the
// read paths enforce, so every stored bundle stays fetchable. A duplicate
// code fails the insert; there is no retry.
func (s *Service) CreateBundle(ctx context.Context, request CreateBundleRequest) (*Bundle, error) {
	var code string
	if strings.TrimSpace(request.Code) == "" {
		generated, err := s.codes.NewCode()
		if err != nil {
			return nil, newServiceError(opCreateBundle, "code_generation_failed", err)
		}
		code = generated
	} else {
		validated, err := NewBundleCode(request.Code)
		if err != nil {
			return nil, newServiceError(opCreateBundle, "invalid_code", err)
		}
		code = validated.String()
	}

	createdAt := request.CreatedAtMillis
	if createdAt == 0 {
		createdAt = s.nowMillis()
	}

	bundle := Bundle{
		Code:            code,
		OwnerID:         request.OwnerID,
		OwnerName:       request.OwnerName,
		HeaderChatID:    request.HeaderChatID,
		HeaderMsgID:     request.HeaderMsgID,
		CreatedAtMillis: createdAt,
		FilesCount:      0,
	}

	if err := s.db.WithContext(ctx).Create(&bundle).Error; err != nil {
		return nil, newServiceError(opCreateBundle, "store_failure", err)
	}

	s.logger.Info("bundle created",
		zap.String("code", bundle.Code),
		zap.String("owner_id", bundle.OwnerID))

	return &bundle, nil
}

// AddFile inserts a file row and increments the owning bundle's counter in a
// single transaction. The increment matches zero rows when the code points at
// no bundle; the file row is still created.
func (s *Service) AddFile(ctx context.Context, request AddFileRequest) (*File, error) {
	addedAt := request.AddedAtMillis
	if addedAt == 0 {
		addedAt = s.nowMillis()
	}

	file := File{
		Code:          request.Code.String(),
		ChannelMsgID:  request.ChannelMsgID,
		HeaderChatID:  request.HeaderChatID,
		Caption:       request.Caption,
		AddedAtMillis: addedAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		return tx.Model(&Bundle{}).
			Where("id = ?", file.Code).
			UpdateColumn("files_count", gorm.Expr("files_count + 1")).Error
	})
	if err != nil {
		return nil, newServiceError(opAddFile, "store_failure", err)
	}

	s.logger.Info("file added",
		zap.String("code", file.Code),
		zap.Int64("file_id", file.ID))

	return &file, nil
}

// GetBundle loads a single bundle row by code.
func (s *Service) GetBundle(ctx context.Context, code BundleCode) (*Bundle, error) {
	var bundle Bundle
	err := s.db.WithContext(ctx).Where("id = ?", code.String()).Take(&bundle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opGetBundle, "not_found", ErrBundleNotFound)
	}
	if err != nil {
		return nil, newServiceError(opGetBundle, "store_failure", err)
	}
	return &bundle, nil
}

// ListFiles returns every file attached to the code in insertion order. No
// bundle existence check is performed; an unknown code yields an empty slice.
func (s *Service) ListFiles(ctx context.Context, code BundleCode) ([]File, error) {
	files := make([]File, 0)
	err := s.db.WithContext(ctx).
		Where("code = ?", code.String()).
		Order("id ASC").
		Find(&files).Error
	if err != nil {
		return nil, newServiceError(opListFiles, "store_failure", err)
	}
	return files, nil
}

// ExportBundle loads a bundle together with its files.
func (s *Service) ExportBundle(ctx context.Context, code BundleCode) (*Bundle, []File, error) {
	var bundle Bundle
	err := s.db.WithContext(ctx).Where("id = ?", code.String()).Take(&bundle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, newServiceError(opExportBundle, "not_found", ErrBundleNotFound)
	}
	if err != nil {
		return nil, nil, newServiceError(opExportBundle, "store_failure", err)
	}

	files := make([]File, 0)
	err = s.db.WithContext(ctx).
		Where("code = ?", code.String()).
		Order("id ASC").
		Find(&files).Error
	if err != nil {
		return nil, nil, newServiceError(opExportBundle, "store_failure", err)
	}

	return &bundle, files, nil
}

// UpdateBundle applies a partial update and returns the refreshed row.
func (s *Service) UpdateBundle(ctx context.Context, code BundleCode, update BundleUpdate) (*Bundle, error) {
	if update.Empty() {
		return nil, newServiceError(opUpdateBundle, "empty_update", ErrEmptyBundleUpdate)
	}

	result := s.db.WithContext(ctx).
		Model(&Bundle{}).
		Where("id = ?", code.String()).
		Updates(update.columns())
	if result.Error != nil {
		return nil, newServiceError(opUpdateBundle, "store_failure", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, newServiceError(opUpdateBundle, "not_found", ErrBundleNotFound)
	}

	var bundle Bundle
	if err := s.db.WithContext(ctx).Where("id = ?", code.String()).Take(&bundle).Error; err != nil {
		return nil, newServiceError(opUpdateBundle, "store_failure", err)
	}

	s.logger.Info("bundle updated", zap.String("code", bundle.Code))

	return &bundle, nil
}

// FinalizeBundle stamps the bundle closed, defaulting the finalization time
// to the service clock. Finalizing an already finalized bundle is permitted.
func (s *Service) FinalizeBundle(ctx context.Context, code BundleCode, finalizedAtMillis *int64, filesCount *int64) (*Bundle, error) {
	finalizedAt := s.nowMillis()
	if finalizedAtMillis != nil {
		finalizedAt = *finalizedAtMillis
	}

	update := BundleUpdate{
		FinalizedAtMillis: &finalizedAt,
		FilesCount:        filesCount,
	}

	bundle, err := s.UpdateBundle(ctx, code, update)
	if err != nil {
		if errors.Is(err, ErrBundleNotFound) {
			return nil, newServiceError(opFinalizeBundle, "not_found", ErrBundleNotFound)
		}
		return nil, newServiceError(opFinalizeBundle, "update_failed", err)
	}

	s.logger.Info("bundle finalized",
		zap.String("code", bundle.Code),
		zap.Int64("finalized_at", finalizedAt))

	return bundle, nil
}
