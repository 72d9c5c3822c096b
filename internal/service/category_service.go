package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
)

type categoryReader interface {
	ListActive(ctx context.Context) ([]models.Category, error)
}

// CategoryService exposes the active category list for the referral
// form dropdown.
type CategoryService struct {
	repo   categoryReader
	logger *zap.Logger
}

// NewCategoryService constructs the service.
func NewCategoryService(repo categoryReader, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, logger: logger}
}

// ListActive returns active categories ordered by name.
func (s *CategoryService) ListActive(ctx context.Context) ([]models.Category, error) {
	categories, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}
