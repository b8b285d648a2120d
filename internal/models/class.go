package models

import "time"

// ClassStatus represents the lifecycle of a class section.
type ClassStatus string

// Possible class statuses. Only active sections accept enrollments.
const (
	ClassStatusActive    ClassStatus = "active"
	ClassStatusCompleted ClassStatus = "completed"
	ClassStatusCancelled ClassStatus = "cancelled"
)

// Class represents a course section administrators assign students to.
// The enrollment core reads MaxStudents and Status; section management
// itself lives in the admin panel service.
type Class struct {
	ID           string      `db:"id" json:"id"`
	CourseID     string      `db:"course_id" json:"course_id"`
	Name         string      `db:"name" json:"name"`
	MaxStudents  int         `db:"max_students" json:"max_students"`
	Status       ClassStatus `db:"status" json:"status"`
	AcademicYear string      `db:"academic_year" json:"academic_year"`
	Semester     string      `db:"semester" json:"semester"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassOccupancy summarises active enrollments against capacity.
type ClassOccupancy struct {
	ClassID  string `db:"class_id" json:"class_id"`
	Enrolled int    `db:"enrolled" json:"enrolled"`
	Max      int    `db:"max" json:"max"`
}
