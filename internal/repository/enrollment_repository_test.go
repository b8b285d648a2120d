package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func classRow(id string, maxStudents int, status models.ClassStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "course_id", "name", "max_students", "status", "academic_year", "semester", "created_at", "updated_at"}).
		AddRow(id, "course-1", "CS-101/A", maxStudents, status, "2025/2026", "1", now, now)
}

func TestEnrollmentRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
		WithArgs("class-1").
		WillReturnRows(classRow("class-1", 30, models.ClassStatusActive))
	mock.ExpectQuery(`FROM enrollments WHERE student_id = \$1 AND status = \$2`).
		WithArgs("stu-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "created_at", "removed_at"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE class_id = \$1 AND status = \$2`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollClassNotFound(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "name", "max_students", "status", "academic_year", "semester", "created_at", "updated_at"}))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "missing")
	require.ErrorIs(t, err, ErrClassNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollClassNotActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
		WithArgs("class-1").
		WillReturnRows(classRow("class-1", 30, models.ClassStatusCompleted))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrClassNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollAlreadyEnrolled(t *testing.T) {
	cases := []struct {
		name     string
		heldsIn  string
		expected error
	}{
		{name: "same class", heldsIn: "class-1", expected: ErrStudentEnrolledHere},
		{name: "other class", heldsIn: "class-2", expected: ErrStudentEnrolledElsewhere},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newEnrollmentRepoMock(t)
			defer cleanup()
			repo := NewEnrollmentRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
				WithArgs("class-1").
				WillReturnRows(classRow("class-1", 30, models.ClassStatusActive))
			mock.ExpectQuery(`FROM enrollments WHERE student_id = \$1 AND status = \$2`).
				WithArgs("stu-1", models.EnrollmentStatusActive).
				WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "created_at", "removed_at"}).
					AddRow("enr-1", "stu-1", tc.heldsIn, models.EnrollmentStatusActive, time.Now(), nil))
			mock.ExpectRollback()

			_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
			require.ErrorIs(t, err, tc.expected)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEnrollmentRepositoryEnrollClassFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
		WithArgs("class-1").
		WillReturnRows(classRow("class-1", 2, models.ClassStatusActive))
	mock.ExpectQuery(`FROM enrollments WHERE student_id = \$1 AND status = \$2`).
		WithArgs("stu-3", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "created_at", "removed_at"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE class_id = \$1 AND status = \$2`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-3", "class-1")
	require.ErrorIs(t, err, ErrClassFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM classes WHERE id = \$1 FOR UPDATE`).
		WithArgs("class-1").
		WillReturnRows(classRow("class-1", 30, models.ClassStatusActive))
	mock.ExpectQuery(`FROM enrollments WHERE student_id = \$1 AND status = \$2`).
		WithArgs("stu-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "created_at", "removed_at"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments WHERE class_id = \$1 AND status = \$2`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_enrollments_active_student"})
	mock.ExpectRollback()

	// A concurrent commit gave the student another active enrollment
	// between our check and insert; the low-level conflict must surface
	// as the domain error, not a generic failure.
	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrStudentEnrolledElsewhere)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenroll(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments SET status = \$2, removed_at = \$3 WHERE id = \$1 AND status = \$4`).
		WithArgs("enr-1", models.EnrollmentStatusRemoved, sqlmock.AnyArg(), models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Unenroll(context.Background(), "enr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollIdempotent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// Already removed or never existed: no row matches, nothing changes.
	mock.ExpectExec(`UPDATE enrollments SET status = \$2, removed_at = \$3 WHERE id = \$1 AND status = \$4`).
		WithArgs("enr-gone", models.EnrollmentStatusRemoved, sqlmock.AnyArg(), models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Unenroll(context.Background(), "enr-gone")
	require.ErrorIs(t, err, ErrEnrollmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryOccupancy(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`FROM classes c WHERE c.id = \$1`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "max", "enrolled"}).AddRow("class-1", 30, 29))

	occupancy, err := repo.Occupancy(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 29, occupancy.Enrolled)
	require.Equal(t, 30, occupancy.Max)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "created_at", "removed_at", "student_name", "student_nim", "class_name"}).
		AddRow("enr-1", "stu-1", "class-1", models.EnrollmentStatusActive, time.Now(), nil, "Dandi Pratama", "2110511001", "CS-101/A")
	mock.ExpectQuery(`FROM enrollments e`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments e`).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		ClassID: "class-1",
		Status:  models.EnrollmentStatusActive,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	require.Equal(t, "Dandi Pratama", enrollments[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
