package models

import "time"

// IncomingEnrollment is an immutable audit record of one raw import row.
// Rows are written for every attempted record regardless of outcome and are
// only ever mutated to flip the processed flag.
type IncomingEnrollment struct {
	ID          string     `db:"id" json:"id"`
	EmployeeID  string     `db:"employee_id" json:"employee_id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email"`
	SBU         *string    `db:"sbu" json:"sbu,omitempty"`
	Designation *string    `db:"designation" json:"designation,omitempty"`
	CourseName  string     `db:"course_name" json:"course_name"`
	BatchCode   string     `db:"batch_code" json:"batch_code"`
	RawData     string     `db:"raw_data" json:"raw_data"`
	Processed   bool       `db:"processed" json:"processed"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submitted_at"`
}

// ImportSyncStatus summarises the audit trail for the imports dashboard.
type ImportSyncStatus struct {
	LastSubmittedAt   *time.Time `json:"last_submitted_at,omitempty"`
	PendingProcessing int        `json:"pending_processing"`
}
