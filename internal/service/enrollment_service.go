package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
	"github.com/noah-isme/absensi-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/absensi-enrollment-api/pkg/errors"
)

type enrollmentLedger interface {
	Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	Unenroll(ctx context.Context, id string) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type availabilityInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// EnrollStudentRequest describes the enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// EnrollmentService enforces the enrollment invariants: a student holds at
// most one active enrollment, and a class never exceeds its capacity. The
// atomic check-and-insert lives in the ledger repository; this service
// validates input, resolves the directory, and maps conflicts to API errors.
type EnrollmentService struct {
	ledger       enrollmentLedger
	students     studentReader
	availability availabilityInvalidator
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(ledger enrollmentLedger, students studentReader, availability availabilityInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{ledger: ledger, students: students, availability: availability, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Enroll registers a student to a class section. On success both invariants
// hold in the committed state; on any failure no row was created.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	enrollment, err := s.ledger.Enroll(ctx, req.StudentID, req.ClassID)
	if err != nil {
		return nil, s.mapEnrollError(err, req)
	}

	if s.availability != nil {
		s.availability.InvalidateCache(ctx)
	}
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID),
	)

	detail, err := s.ledger.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Unenroll marks an enrollment removed, freeing one capacity slot and the
// student's availability. Removing an unknown or already removed enrollment
// reports NotFound and changes nothing, so repeated calls converge.
func (s *EnrollmentService) Unenroll(ctx context.Context, id string) error {
	if err := s.ledger.Unenroll(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove enrollment")
	}
	if s.availability != nil {
		s.availability.InvalidateCache(ctx)
	}
	s.logger.Info("student unenrolled", zap.String("enrollment_id", id))
	return nil
}

// Occupancy reports a class's active enrollment count against capacity.
func (s *EnrollmentService) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	occupancy, err := s.ledger.Occupancy(ctx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrClassNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class occupancy")
	}
	return occupancy, nil
}

func (s *EnrollmentService) mapEnrollError(err error, req EnrollStudentRequest) error {
	switch {
	case errors.Is(err, repository.ErrClassNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	case errors.Is(err, repository.ErrClassNotActive):
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "class is not accepting enrollments")
	case errors.Is(err, repository.ErrStudentEnrolledHere):
		s.recordConflict(appErrors.ErrAlreadyEnrolledHere.Code, req)
		return appErrors.ErrAlreadyEnrolledHere
	case errors.Is(err, repository.ErrStudentEnrolledElsewhere):
		s.recordConflict(appErrors.ErrAlreadyEnrolledElsewhere.Code, req)
		return appErrors.ErrAlreadyEnrolledElsewhere
	case errors.Is(err, repository.ErrClassFull):
		s.recordConflict(appErrors.ErrClassFull.Code, req)
		return appErrors.ErrClassFull
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
}

func (s *EnrollmentService) recordConflict(code string, req EnrollStudentRequest) {
	s.metrics.RecordConflict(code)
	s.logger.Warn("enrollment rejected",
		zap.String("code", code),
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID),
	)
}
