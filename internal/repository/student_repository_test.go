package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "nim", "full_name", "program_study", "active", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "21105110"+id, "Student "+id, "Teknik Informatika", true, time.Now(), time.Now())
	}
	return rows
}

func TestStudentRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`LOWER\(full_name\) LIKE \$1 OR LOWER\(nim\) LIKE \$1`).
		WithArgs("%dandi%").
		WillReturnRows(studentRows("1"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students`).
		WithArgs("%dandi%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "Dandi"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, students, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListAvailable(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	// Eligibility is global: the subquery excludes students holding an
	// active enrollment in any class, not just the target one.
	mock.ExpectQuery(`NOT EXISTS \(\s*SELECT 1 FROM enrollments e WHERE e.student_id = s.id AND e.status = \$1\s*\)`).
		WithArgs(models.EnrollmentStatusActive).
		WillReturnRows(studentRows("1", "2"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students s`).
		WithArgs(models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	students, total, err := repo.ListAvailable(context.Background(), "", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, students, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListAvailableSearch(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`LOWER\(s.full_name\) LIKE \$2 OR LOWER\(s.nim\) LIKE \$2`).
		WithArgs(models.EnrollmentStatusActive, "%2110%").
		WillReturnRows(studentRows("1"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students s`).
		WithArgs(models.EnrollmentStatusActive, "%2110%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.ListAvailable(context.Background(), "2110", 1, 50)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, students, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
