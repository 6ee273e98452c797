package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

// IncomingEnrollmentRepository persists the raw import audit trail.
type IncomingEnrollmentRepository struct {
	db *sqlx.DB
}

// NewIncomingEnrollmentRepository constructs the repository.
func NewIncomingEnrollmentRepository(db *sqlx.DB) *IncomingEnrollmentRepository {
	return &IncomingEnrollmentRepository{db: db}
}

// ApplyBatch writes the audit rows and the enrollments derived from them in
// a single transaction. Audit rows are written for every attempted record;
// enrollments only exist for rows that produced one.
func (r *IncomingEnrollmentRepository) ApplyBatch(ctx context.Context, audits []models.IncomingEnrollment, enrollments []models.Enrollment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import batch: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const auditInsert = `INSERT INTO incoming_enrollments (id, employee_id, name, email, sbu, designation, course_name, batch_code, raw_data, processed, processed_at, submitted_at)
        VALUES (:id, :employee_id, :name, :email, :sbu, :designation, :course_name, :batch_code, :raw_data, :processed, :processed_at, :submitted_at)`
	for i := range audits {
		if audits[i].ID == "" {
			audits[i].ID = uuid.NewString()
		}
		if audits[i].SubmittedAt.IsZero() {
			audits[i].SubmittedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, auditInsert, audits[i]); err != nil {
			return fmt.Errorf("insert incoming enrollment: %w", err)
		}
	}

	const enrollmentInsert = `INSERT INTO enrollments (id, student_id, course_id, course_name, batch_code,
        eligibility_status, eligibility_reason, eligibility_checked_at,
        approval_status, approved_by, approved_at, rejection_reason,
        withdrawal_reason, withdrawn_by, withdrawn_at,
        completion_status, score, attendance_percentage, total_classes, classes_attended, completion_date,
        incoming_enrollment_id, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :course_name, :batch_code,
        :eligibility_status, :eligibility_reason, :eligibility_checked_at,
        :approval_status, :approved_by, :approved_at, :rejection_reason,
        :withdrawal_reason, :withdrawn_by, :withdrawn_at,
        :completion_status, :score, :attendance_percentage, :total_classes, :classes_attended, :completion_date,
        :incoming_enrollment_id, :created_at, :updated_at)`
	for i := range enrollments {
		if enrollments[i].ID == "" {
			enrollments[i].ID = uuid.NewString()
		}
		if enrollments[i].CreatedAt.IsZero() {
			enrollments[i].CreatedAt = now
		}
		enrollments[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, enrollmentInsert, enrollments[i]); err != nil {
			return fmt.Errorf("insert imported enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import batch: %w", err)
	}
	commit = true
	return nil
}

// List returns audit rows, newest first.
func (r *IncomingEnrollmentRepository) List(ctx context.Context, page, pageSize int) ([]models.IncomingEnrollment, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT id, employee_id, name, email, sbu, designation, course_name, batch_code, raw_data, processed, processed_at, submitted_at
        FROM incoming_enrollments ORDER BY submitted_at DESC LIMIT %d OFFSET %d`, pageSize, offset)
	var rows []models.IncomingEnrollment
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, 0, fmt.Errorf("list incoming enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM incoming_enrollments"); err != nil {
		return nil, 0, fmt.Errorf("count incoming enrollments: %w", err)
	}
	return rows, total, nil
}

// SyncStatus summarises the audit trail.
func (r *IncomingEnrollmentRepository) SyncStatus(ctx context.Context) (*models.ImportSyncStatus, error) {
	var status models.ImportSyncStatus
	const query = `SELECT MAX(submitted_at) AS last_submitted_at,
        COUNT(*) FILTER (WHERE processed = false) AS pending_processing
        FROM incoming_enrollments`
	row := r.db.QueryRowxContext(ctx, query)
	if err := row.Scan(&status.LastSubmittedAt, &status.PendingProcessing); err != nil {
		return nil, fmt.Errorf("import sync status: %w", err)
	}
	return &status, nil
}
