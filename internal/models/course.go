package models

import "time"

// Course represents a scheduled training batch with limited seats.
type Course struct {
	ID                   string     `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	BatchCode            string     `db:"batch_code" json:"batch_code"`
	Description          *string    `db:"description" json:"description,omitempty"`
	StartDate            time.Time  `db:"start_date" json:"start_date"`
	EndDate              *time.Time `db:"end_date" json:"end_date,omitempty"`
	SeatLimit            int        `db:"seat_limit" json:"seat_limit"`
	CurrentEnrolled      int        `db:"current_enrolled" json:"current_enrolled"`
	PrerequisiteCourseID *string    `db:"prerequisite_course_id" json:"prerequisite_course_id,omitempty"`
	Archived             bool       `db:"archived" json:"archived"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the remaining capacity, never negative.
func (c Course) AvailableSeats() int {
	if remaining := c.SeatLimit - c.CurrentEnrolled; remaining > 0 {
		return remaining
	}
	return 0
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Archived  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
