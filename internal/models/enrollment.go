package models

import (
	"strings"
	"time"
)

// EligibilityStatus is the automated verdict on whether a student may be
// considered for a course, independent of seat availability.
type EligibilityStatus string

// Possible eligibility verdicts.
const (
	EligibilityEligible               EligibilityStatus = "ELIGIBLE"
	EligibilityIneligiblePrerequisite EligibilityStatus = "INELIGIBLE_PREREQUISITE"
	EligibilityIneligibleDuplicate    EligibilityStatus = "INELIGIBLE_DUPLICATE"
	EligibilityIneligibleAnnualLimit  EligibilityStatus = "INELIGIBLE_ANNUAL_LIMIT"
)

// ApprovalStatus is the administrative decision state of an enrollment.
type ApprovalStatus string

// Approval workflow states. Pending -> Approved -> Withdrawn -> Approved;
// Pending -> Rejected is terminal.
const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalWithdrawn ApprovalStatus = "WITHDRAWN"
)

// CompletionStatus records the post-course outcome, orthogonal to approval.
type CompletionStatus string

// Possible completion outcomes.
const (
	CompletionNotStarted CompletionStatus = "NOT_STARTED"
	CompletionInProgress CompletionStatus = "IN_PROGRESS"
	CompletionCompleted  CompletionStatus = "COMPLETED"
	CompletionFailed     CompletionStatus = "FAILED"
)

// ParseCompletionStatus maps a free-form upload value onto the enum.
func ParseCompletionStatus(raw string) (CompletionStatus, bool) {
	switch CompletionStatus(normalizeStatus(raw)) {
	case CompletionNotStarted:
		return CompletionNotStarted, true
	case CompletionInProgress:
		return CompletionInProgress, true
	case CompletionCompleted:
		return CompletionCompleted, true
	case CompletionFailed:
		return CompletionFailed, true
	default:
		return "", false
	}
}

// Enrollment is the workflow entity linking a student to a course batch.
// The course reference is nullable: deleting a course detaches its
// enrollments, leaving the denormalized name/batch code snapshot behind.
type Enrollment struct {
	ID                   string            `db:"id" json:"id"`
	StudentID            string            `db:"student_id" json:"student_id"`
	CourseID             *string           `db:"course_id" json:"course_id,omitempty"`
	CourseName           *string           `db:"course_name" json:"course_name,omitempty"`
	BatchCode            *string           `db:"batch_code" json:"batch_code,omitempty"`
	EligibilityStatus    EligibilityStatus `db:"eligibility_status" json:"eligibility_status"`
	EligibilityReason    *string           `db:"eligibility_reason" json:"eligibility_reason,omitempty"`
	EligibilityCheckedAt *time.Time        `db:"eligibility_checked_at" json:"eligibility_checked_at,omitempty"`
	ApprovalStatus       ApprovalStatus    `db:"approval_status" json:"approval_status"`
	ApprovedBy           *string           `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt           *time.Time        `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason      *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	WithdrawalReason     *string           `db:"withdrawal_reason" json:"withdrawal_reason,omitempty"`
	WithdrawnBy          *string           `db:"withdrawn_by" json:"withdrawn_by,omitempty"`
	WithdrawnAt          *time.Time        `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	CompletionStatus     CompletionStatus  `db:"completion_status" json:"completion_status"`
	Score                *float64          `db:"score" json:"score,omitempty"`
	AttendancePercentage *float64          `db:"attendance_percentage" json:"attendance_percentage,omitempty"`
	TotalClasses         *int              `db:"total_classes" json:"total_classes,omitempty"`
	ClassesAttended      *int              `db:"classes_attended" json:"classes_attended,omitempty"`
	CompletionDate       *time.Time        `db:"completion_date" json:"completion_date,omitempty"`
	IncomingEnrollmentID *string           `db:"incoming_enrollment_id" json:"incoming_enrollment_id,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student context. The course
// name/batch code columns are coalesced with the snapshot so history
// stays readable after course deletion.
type EnrollmentDetail struct {
	Enrollment
	StudentName       string `db:"student_name" json:"student_name"`
	StudentEmail      string `db:"student_email" json:"student_email"`
	StudentEmployeeID string `db:"student_employee_id" json:"student_employee_id"`
	StudentSBU        SBU    `db:"student_sbu" json:"student_sbu"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CourseID          string
	StudentID         string
	EligibilityStatus EligibilityStatus
	ApprovalStatus    ApprovalStatus
	SBU               SBU
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

func normalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}
