package models

// ImportRecord is one normalized row of an enrollment import payload.
type ImportRecord struct {
	EmployeeID  string `json:"employee_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	SBU         string `json:"sbu"`
	Designation string `json:"designation"`
	CourseName  string `json:"course_name" validate:"required"`
	BatchCode   string `json:"batch_code" validate:"required"`
	Raw         string `json:"-"`
}

// ImportRowResult reports the outcome of a single import record.
type ImportRowResult struct {
	Row        int     `json:"row"`
	EmployeeID string  `json:"employee_id"`
	CourseName string  `json:"course_name"`
	BatchCode  string  `json:"batch_code"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
}

// Import row outcome labels.
const (
	ImportRowCreated  = "CREATED"
	ImportRowRejected = "REJECTED"
	ImportRowFailed   = "FAILED"
)

// ImportBatchResult summarizes a processed import batch.
type ImportBatchResult struct {
	TotalRows int               `json:"total_rows"`
	Created   int               `json:"created"`
	Rejected  int               `json:"rejected"`
	Failed    int               `json:"failed"`
	Rows      []ImportRowResult `json:"rows"`
}

// BulkItemError reports a per-item failure inside a bulk operation.
type BulkItemError struct {
	EnrollmentID string `json:"enrollment_id"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// CompletionRecord is one row of a completion results upload.
type CompletionRecord struct {
	EnrollmentID         string   `json:"enrollment_id"`
	CompletionStatus     string   `json:"completion_status"`
	Score                *float64 `json:"score,omitempty"`
	AttendancePercentage *float64 `json:"attendance_percentage,omitempty"`
	TotalClasses         *int     `json:"total_classes,omitempty"`
	ClassesAttended      *int     `json:"classes_attended,omitempty"`
	CompletionDate       *string  `json:"completion_date,omitempty"`
}

// BulkActionResult summarizes a bulk approve/reject call.
type BulkActionResult struct {
	Requested int             `json:"requested"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Errors    []BulkItemError `json:"errors,omitempty"`
}
