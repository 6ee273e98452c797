package models

import (
	"strings"
	"time"
)

// SBU identifies the strategic business unit an employee belongs to.
type SBU string

// Recognised business units.
const (
	SBUIT         SBU = "IT"
	SBUHR         SBU = "HR"
	SBUFinance    SBU = "Finance"
	SBUOperations SBU = "Operations"
	SBUSales      SBU = "Sales"
	SBUMarketing  SBU = "Marketing"
	SBUOther      SBU = "Other"
)

// ParseSBU maps a free-form import value onto the closed enum, defaulting to Other.
func ParseSBU(raw string) SBU {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IT":
		return SBUIT
	case "HR":
		return SBUHR
	case "FINANCE":
		return SBUFinance
	case "OPERATIONS":
		return SBUOperations
	case "SALES":
		return SBUSales
	case "MARKETING":
		return SBUMarketing
	default:
		return SBUOther
	}
}

// Student represents an employee eligible to take training courses.
type Student struct {
	ID              string    `db:"id" json:"id"`
	EmployeeID      string    `db:"employee_id" json:"employee_id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	SBU             SBU       `db:"sbu" json:"sbu"`
	Designation     *string   `db:"designation" json:"designation,omitempty"`
	ExperienceYears int       `db:"experience_years" json:"experience_years"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	SBU       SBU
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentHistory aggregates a student's enrollments with completion statistics.
// Withdrawn enrollments and approved enrollments that finished (completed or
// failed) count toward the rate; only completed ones count as complete.
type StudentHistory struct {
	Enrollments           []EnrollmentDetail `json:"enrollments"`
	OverallCompletionRate float64            `json:"overall_completion_rate"`
	TotalCoursesAssigned  int                `json:"total_courses_assigned"`
	CompletedCourses      int                `json:"completed_courses"`
}
