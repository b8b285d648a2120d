package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/absensi-enrollment-api/internal/models"
)

// ClassRepository reads class sections. Sections are managed by the admin
// panel service; this API only consumes capacity and status.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, course_id, name, max_students, status, academic_year, semester, created_at, updated_at
        FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}
