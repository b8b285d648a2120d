package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/absensi-enrollment-api/pkg/errors"
)

const availabilityCachePattern = "availability:*"

type availableStudentLister interface {
	ListAvailable(ctx context.Context, search string, page, size int) ([]models.Student, int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// AvailabilityQuery narrows the addable-students listing.
type AvailabilityQuery struct {
	Search   string
	Page     int
	PageSize int
}

// AvailabilityService computes which students an administrator may still add
// to a class section: active directory entries with no active enrollment in
// any class. The listing is advisory for admin consoles; the enrollment
// transaction remains the authoritative guard. Results are cached per query
// and invalidated on every successful enroll or unenroll.
type AvailabilityService struct {
	students availableStudentLister
	classes  classReader
	cache    *CacheService
	logger   *zap.Logger
}

// NewAvailabilityService constructs AvailabilityService.
func NewAvailabilityService(students availableStudentLister, classes classReader, cache *CacheService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{students: students, classes: classes, cache: cache, logger: logger}
}

type availabilityPayload struct {
	Students []models.Student `json:"students"`
	Total    int              `json:"total"`
}

// ListAvailable returns students eligible to be added to the class.
func (s *AvailabilityService) ListAvailable(ctx context.Context, classID string, query AvailabilityQuery) ([]models.Student, *models.Pagination, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}

	key := cacheKeyAvailability(classID, query.Search, page, size)
	var cached availabilityPayload
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}
		return cached.Students, pagination, nil
	}

	students, total, err := s.students.ListAvailable(ctx, query.Search, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available students")
	}

	if err := s.cache.Set(ctx, key, availabilityPayload{Students: students, Total: total}, 0); err != nil {
		s.logger.Warn("availability cache write failed", zap.String("class_id", classID), zap.Error(err))
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// InvalidateCache drops every cached availability view. Called after each
// successful ledger mutation so stale listings never outlive a commit.
func (s *AvailabilityService) InvalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, availabilityCachePattern); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.Error(err))
	}
}

func cacheKeyAvailability(classID, search string, page, size int) string {
	return fmt.Sprintf("availability:%s:%s:%d:%d", classID, strings.ToLower(strings.TrimSpace(search)), page, size)
}
