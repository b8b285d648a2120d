package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/absensi-enrollment-api/pkg/errors"
)

type studentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// StudentService exposes read access to the directory mirror. Student
// records are owned by the campus directory; this service never mutates them.
type StudentService struct {
	repo   studentLister
	logger *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentLister, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}
