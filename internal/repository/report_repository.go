package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

// ReportRepository persists report job metadata and runs the aggregate
// queries behind the dashboard summary.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report job row with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM report_jobs WHERE id = $1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// UpdateReportJobParams defines the mutable fields.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.ResultURL != nil {
		set = append(set, fmt.Sprintf("result_url = $%d", argPos))
		args = append(args, *params.ResultURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs (used for cold start recovery).
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM report_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

func appendCondition(clause, condition string) string {
	if clause == "" {
		return " WHERE " + condition
	}
	return clause + " AND " + condition
}

// Summary computes the aggregate dashboard figures. Filters narrow the
// enrollment-derived numbers; the student and course totals stay global.
func (r *ReportRepository) Summary(ctx context.Context, filter models.ReportSummaryFilter) (*models.ReportSummary, error) {
	summary := &models.ReportSummary{GeneratedAt: time.Now().UTC()}

	if err := r.db.GetContext(ctx, &summary.TotalStudents, "SELECT COUNT(*) FROM students"); err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if err := r.db.GetContext(ctx, &summary.TotalCourses, "SELECT COUNT(*) FROM courses"); err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}
	if err := r.db.GetContext(ctx, &summary.ActiveCourses, "SELECT COUNT(*) FROM courses WHERE archived = false"); err != nil {
		return nil, fmt.Errorf("count active courses: %w", err)
	}

	base := "FROM enrollments e LEFT JOIN students s ON s.id = e.student_id"
	var conditions []string
	var args []interface{}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SBU != "" {
		conditions = append(conditions, fmt.Sprintf("s.sbu = $%d", len(args)+1))
		args = append(args, filter.SBU)
	}
	if filter.Year > 0 {
		from := time.Date(filter.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		conditions = append(conditions, fmt.Sprintf("e.created_at >= $%d AND e.created_at < $%d", len(args)+1, len(args)+2))
		args = append(args, from, from.AddDate(1, 0, 0))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var counts struct {
		Total     int `db:"total"`
		Pending   int `db:"pending"`
		Approved  int `db:"approved"`
		Completed int `db:"completed"`
	}
	countQuery := fmt.Sprintf(`SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE e.approval_status = 'PENDING') AS pending,
        COUNT(*) FILTER (WHERE e.approval_status = 'APPROVED') AS approved,
        COUNT(*) FILTER (WHERE e.completion_status = 'COMPLETED') AS completed
        %s`, base+clause)
	if err := r.db.GetContext(ctx, &counts, countQuery, args...); err != nil {
		return nil, fmt.Errorf("aggregate enrollments: %w", err)
	}
	summary.TotalEnrollments = counts.Total
	summary.PendingApprovals = counts.Pending
	summary.ApprovedEnrollments = counts.Approved
	summary.CompletedEnrollments = counts.Completed
	if counts.Approved > 0 {
		summary.CompletionRate = float64(counts.Completed) / float64(counts.Approved) * 100
	}

	var avgHours sql.NullFloat64
	latencyQuery := fmt.Sprintf(`SELECT AVG(EXTRACT(EPOCH FROM (e.approved_at - e.created_at)) / 3600)
        %s%s`, base, appendCondition(clause, "e.approved_at IS NOT NULL"))
	if err := r.db.GetContext(ctx, &avgHours, latencyQuery, args...); err != nil {
		return nil, fmt.Errorf("approval latency: %w", err)
	}
	if avgHours.Valid {
		summary.AvgApprovalHours = avgHours.Float64
	}

	sbuQuery := fmt.Sprintf(`SELECT s.sbu, COUNT(*) AS total,
        COUNT(*) FILTER (WHERE e.approval_status = 'APPROVED') AS approved,
        COUNT(*) FILTER (WHERE e.completion_status = 'COMPLETED') AS completed
        %s GROUP BY s.sbu ORDER BY total DESC`, base+clause)
	if err := r.db.SelectContext(ctx, &summary.EnrollmentsBySBU, sbuQuery, args...); err != nil {
		return nil, fmt.Errorf("aggregate by sbu: %w", err)
	}

	// seat utilisation ignores the enrollment filters on purpose
	seatQuery := `SELECT c.id AS course_id, c.name AS course_name, c.batch_code, c.seat_limit, c.current_enrolled,
        CASE WHEN c.seat_limit > 0 THEN c.current_enrolled::float / c.seat_limit * 100 ELSE 0 END AS utilization
        FROM courses c WHERE c.archived = false ORDER BY utilization DESC LIMIT 20`
	if err := r.db.SelectContext(ctx, &summary.SeatUtilization, seatQuery); err != nil {
		return nil, fmt.Errorf("seat utilization: %w", err)
	}

	return summary, nil
}
