package models

import "time"

// Student represents a learner row mirrored from the campus directory
// service. The enrollment API never writes to this table.
type Student struct {
	ID           string    `db:"id" json:"id"`
	NIM          string    `db:"nim" json:"nim"`
	FullName     string    `db:"full_name" json:"full_name"`
	ProgramStudy string    `db:"program_study" json:"program_study"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
