package repository

import "errors"

// Sentinel errors surfaced by transactional enrollment operations. Services
// translate these into API-facing typed errors.
var (
	ErrNoSeats         = errors.New("course has no available seats")
	ErrCourseDetached  = errors.New("enrollment has no attached course")
	ErrWrongStatus     = errors.New("enrollment is not in the expected status")
	ErrCourseNotFound  = errors.New("course not found")
	ErrStudentNotFound = errors.New("student not found")
)
