package models

import "time"

// ReportSummaryFilter scopes the dashboard summary aggregation.
type ReportSummaryFilter struct {
	CourseID string
	SBU      SBU
	Year     int
}

// ReportSummary aggregates enrollment statistics for the dashboard.
type ReportSummary struct {
	TotalStudents        int                `json:"total_students"`
	TotalCourses         int                `json:"total_courses"`
	ActiveCourses        int                `json:"active_courses"`
	TotalEnrollments     int                `json:"total_enrollments"`
	PendingApprovals     int                `json:"pending_approvals"`
	ApprovedEnrollments  int                `json:"approved_enrollments"`
	CompletedEnrollments int                `json:"completed_enrollments"`
	CompletionRate       float64            `json:"completion_rate"`
	AvgApprovalHours     float64            `json:"avg_approval_hours"`
	EnrollmentsBySBU     []SBUEnrollment    `json:"enrollments_by_sbu"`
	SeatUtilization      []CourseOccupancy  `json:"seat_utilization"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// SBUEnrollment counts enrollments grouped by business unit.
type SBUEnrollment struct {
	SBU       SBU `db:"sbu" json:"sbu"`
	Total     int `db:"total" json:"total"`
	Approved  int `db:"approved" json:"approved"`
	Completed int `db:"completed" json:"completed"`
}

// CourseOccupancy reports per-course seat usage.
type CourseOccupancy struct {
	CourseID        string  `db:"course_id" json:"course_id"`
	CourseName      string  `db:"course_name" json:"course_name"`
	BatchCode       string  `db:"batch_code" json:"batch_code"`
	SeatLimit       int     `db:"seat_limit" json:"seat_limit"`
	CurrentEnrolled int     `db:"current_enrolled" json:"current_enrolled"`
	Utilization     float64 `db:"utilization" json:"utilization"`
}

// SystemMetrics represents system level metrics captured from instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
