package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. A removed enrollment never becomes active
// again; re-enrolling creates a new row.
const (
	EnrollmentStatusActive  EnrollmentStatus = "active"
	EnrollmentStatusRemoved EnrollmentStatus = "removed"
)

// Enrollment captures a student's membership in a class section. Rows are
// retained after removal as an audit trail.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	RemovedAt *time.Time       `db:"removed_at" json:"removed_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentNIM  string `db:"student_nim" json:"student_nim"`
	ClassName   string `db:"class_name" json:"class_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
