package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

// Name of the partial unique index guarding the one-active-enrollment rule.
// Declared in migrations/0001_init.sql; the enroll transaction relies on it
// to close the cross-class race its per-class lock cannot see.
const activeStudentConstraint = "uq_enrollments_active_student"

// Sentinel errors surfaced by the enroll/unenroll transactions. The service
// layer maps them onto API error codes.
var (
	ErrClassNotFound            = errors.New("class not found")
	ErrClassNotActive           = errors.New("class is not active")
	ErrClassFull                = errors.New("class is full")
	ErrStudentEnrolledHere      = errors.New("student already enrolled in this class")
	ErrStudentEnrolledElsewhere = errors.New("student already enrolled in another class")
	ErrEnrollmentNotFound       = errors.New("enrollment not found")
)

// EnrollmentRepository is the ledger of record for enrollments. All writes
// to the enrollments table go through this type.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll atomically verifies both enrollment invariants and inserts a new
// active row. The class row is locked for the duration of the transaction so
// concurrent capacity decisions for the same class serialise; enrollments
// into unrelated classes proceed in parallel.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var class models.Class
	if err := tx.GetContext(ctx, &class,
		`SELECT id, course_id, name, max_students, status, academic_year, semester, created_at, updated_at
         FROM classes WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("lock class: %w", err)
	}
	if class.Status != models.ClassStatusActive {
		return nil, ErrClassNotActive
	}

	var current []models.Enrollment
	if err := tx.SelectContext(ctx, &current,
		`SELECT id, student_id, class_id, status, created_at, removed_at
         FROM enrollments WHERE student_id = $1 AND status = $2`,
		studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("check student enrollments: %w", err)
	}
	for _, e := range current {
		if e.ClassID == classID {
			return nil, ErrStudentEnrolledHere
		}
		return nil, ErrStudentEnrolledElsewhere
	}

	var occupied int
	if err := tx.GetContext(ctx, &occupied,
		`SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`,
		classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("count class enrollments: %w", err)
	}
	if occupied >= class.MaxStudents {
		return nil, ErrClassFull
	}

	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		StudentID: studentID,
		ClassID:   classID,
		Status:    models.EnrollmentStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, class_id, status, created_at, removed_at)
         VALUES (:id, :student_id, :class_id, :status, :created_at, :removed_at)`, enrollment); err != nil {
		if isActiveStudentViolation(err) {
			// A concurrent transaction gave the student an active
			// enrollment in another class between our check and insert.
			return nil, ErrStudentEnrolledElsewhere
		}
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isActiveStudentViolation(err) {
			return nil, ErrStudentEnrolledElsewhere
		}
		return nil, fmt.Errorf("commit enroll: %w", err)
	}
	commit = true
	return enrollment, nil
}

// Unenroll marks an active enrollment removed. It reports
// ErrEnrollmentNotFound for unknown or already removed ids, which makes the
// call idempotent: repeating it cannot change committed state.
func (r *EnrollmentRepository) Unenroll(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, removed_at = $3 WHERE id = $1 AND status = $4`,
		id, models.EnrollmentStatusRemoved, time.Now().UTC(), models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("unenroll: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unenroll rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

// List returns enrollment detail rows filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.status, e.created_at, e.removed_at,
        s.full_name AS student_name, s.nim AS student_nim, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, created_at, removed_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.created_at, e.removed_at,
        s.full_name AS student_name, s.nim AS student_nim, c.name AS class_name
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListActiveByStudent returns the student's active enrollments.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, created_at, removed_at
        FROM enrollments WHERE student_id = $1 AND status = $2`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// Occupancy derives a class's active enrollment count against its capacity.
func (r *EnrollmentRepository) Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error) {
	const query = `SELECT c.id AS class_id, c.max_students AS max,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = $2) AS enrolled
        FROM classes c WHERE c.id = $1`
	var occupancy models.ClassOccupancy
	if err := r.db.GetContext(ctx, &occupancy, query, classID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("class occupancy: %w", err)
	}
	return &occupancy, nil
}

func isActiveStudentViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == activeStudentConstraint
}
