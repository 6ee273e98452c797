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

// EnrollmentRepository handles persistence of enrollments, including the
// seat-accounting transactions that keep course counters in step with
// approval decisions.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.course_id, e.course_name, e.batch_code,
        e.eligibility_status, e.eligibility_reason, e.eligibility_checked_at,
        e.approval_status, e.approved_by, e.approved_at, e.rejection_reason,
        e.withdrawal_reason, e.withdrawn_by, e.withdrawn_at,
        e.completion_status, e.score, e.attendance_percentage, e.total_classes, e.classes_attended, e.completion_date,
        e.incoming_enrollment_id, e.created_at, e.updated_at`

const enrollmentDetailColumns = `e.id, e.student_id, e.course_id,
        COALESCE(c.name, e.course_name) AS course_name, COALESCE(c.batch_code, e.batch_code) AS batch_code,
        e.eligibility_status, e.eligibility_reason, e.eligibility_checked_at,
        e.approval_status, e.approved_by, e.approved_at, e.rejection_reason,
        e.withdrawal_reason, e.withdrawn_by, e.withdrawn_at,
        e.completion_status, e.score, e.attendance_percentage, e.total_classes, e.classes_attended, e.completion_date,
        e.incoming_enrollment_id, e.created_at, e.updated_at,
        s.name AS student_name, s.email AS student_email, s.employee_id AS student_employee_id, s.sbu AS student_sbu`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.EligibilityStatus != "" {
		conditions = append(conditions, fmt.Sprintf("e.eligibility_status = $%d", len(args)+1))
		args = append(args, filter.EligibilityStatus)
	}
	if filter.ApprovalStatus != "" {
		conditions = append(conditions, fmt.Sprintf("e.approval_status = $%d", len(args)+1))
		args = append(args, filter.ApprovalStatus)
	}
	if filter.SBU != "" {
		conditions = append(conditions, fmt.Sprintf("s.sbu = $%d", len(args)+1))
		args = append(args, filter.SBU)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"approved_at":  "e.approved_at",
		"student_name": "s.name",
		"course_name":  "course_name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentDetailColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`, enrollmentDetailColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns every enrollment for a student, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1
        ORDER BY e.created_at DESC`, enrollmentDetailColumns)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsActive reports whether the student already holds a pending or
// approved enrollment for the course, optionally excluding one enrollment.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND approval_status IN ($3, $4)`
	args := []interface{}{studentID, courseID, models.ApprovalPending, models.ApprovalApproved}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var exists int
	err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Exists reports whether the student holds any enrollment for the course,
// regardless of approval status. Imports use this to refuse re-importing a
// pair that already has history, rejected and withdrawn included.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// HasCompleted reports whether the student completed the given course in any batch.
func (r *EnrollmentRepository) HasCompleted(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND completion_status = $3 LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.CompletionCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completed enrollment: %w", err)
	}
	return true, nil
}

// CompletedCourseInYear returns the name of a course other than the given
// one that the student completed during the calendar year, if any.
func (r *EnrollmentRepository) CompletedCourseInYear(ctx context.Context, studentID string, year int, excludeCourseID string) (string, bool, error) {
	const query = `SELECT COALESCE(c.name, e.course_name, '') AS course_name
        FROM enrollments e
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.completion_status = $2
        AND e.completion_date >= $3 AND e.completion_date < $4
        AND (e.course_id IS NULL OR e.course_id <> $5)
        ORDER BY e.completion_date DESC LIMIT 1`
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	var courseName string
	err := r.db.GetContext(ctx, &courseName, query, studentID, models.CompletionCompleted, from, to, excludeCourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("check annual completion: %w", err)
	}
	return courseName, true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.ApprovalStatus == "" {
		enrollment.ApprovalStatus = models.ApprovalPending
	}
	if enrollment.CompletionStatus == "" {
		enrollment.CompletionStatus = models.CompletionNotStarted
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, course_name, batch_code,
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
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateEligibility stores a fresh eligibility verdict.
func (r *EnrollmentRepository) UpdateEligibility(ctx context.Context, id string, status models.EligibilityStatus, reason *string, checkedAt time.Time) error {
	const query = `UPDATE enrollments SET eligibility_status = $2, eligibility_reason = $3, eligibility_checked_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reason, checkedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update eligibility: %w", err)
	}
	return nil
}

// Approve moves an enrollment into the approved state and claims a seat.
// The course row is locked for the duration so the capacity check and the
// counter increment are atomic. from narrows the allowed current status.
func (r *EnrollmentRepository) Approve(ctx context.Context, id string, from models.ApprovalStatus, approvedBy string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve enrollment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	if err := approveInTx(ctx, tx, id, from, approvedBy, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve enrollment: %w", err)
	}
	commit = true
	return nil
}

// ApproveMany applies approvals for the provided IDs in a single
// transaction. Items that fail do not abort the batch; their errors are
// returned keyed by enrollment ID. The transaction commits whatever
// succeeded.
func (r *EnrollmentRepository) ApproveMany(ctx context.Context, ids []string, from models.ApprovalStatus, approvedBy string) (map[string]error, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk approve: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	failures := make(map[string]error)
	for i, id := range ids {
		sp := fmt.Sprintf("item_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("savepoint: %w", err)
		}
		if err := approveInTx(ctx, tx, id, from, approvedBy, now); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			failures[id] = err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk approve: %w", err)
	}
	commit = true
	return failures, nil
}

func approveInTx(ctx context.Context, tx *sqlx.Tx, id string, from models.ApprovalStatus, approvedBy string, now time.Time) error {
	var row struct {
		CourseID       *string               `db:"course_id"`
		ApprovalStatus models.ApprovalStatus `db:"approval_status"`
	}
	const find = `SELECT course_id, approval_status FROM enrollments WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, find, id); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if row.ApprovalStatus != from {
		return ErrWrongStatus
	}
	if row.CourseID == nil {
		return ErrCourseDetached
	}

	var course struct {
		SeatLimit       int `db:"seat_limit"`
		CurrentEnrolled int `db:"current_enrolled"`
	}
	const lockCourse = `SELECT seat_limit, current_enrolled FROM courses WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &course, lockCourse, *row.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return ErrCourseNotFound
		}
		return fmt.Errorf("lock course: %w", err)
	}
	if course.CurrentEnrolled >= course.SeatLimit {
		return ErrNoSeats
	}

	const update = `UPDATE enrollments SET approval_status = $2, approved_by = $3, approved_at = $4,
        withdrawal_reason = NULL, withdrawn_by = NULL, withdrawn_at = NULL, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, models.ApprovalApproved, approvedBy, now); err != nil {
		return fmt.Errorf("approve enrollment: %w", err)
	}
	const increment = `UPDATE courses SET current_enrolled = current_enrolled + 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, increment, *row.CourseID, now); err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}
	return nil
}

// CreateApproved inserts an enrollment and immediately claims a seat for it
// inside one transaction. Used by the manual creation path, which skips the
// pending step when a seat is free.
func (r *EnrollmentRepository) CreateApproved(ctx context.Context, enrollment *models.Enrollment, approvedBy string) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	enrollment.ApprovalStatus = models.ApprovalPending
	if enrollment.CompletionStatus == "" {
		enrollment.CompletionStatus = models.CompletionNotStarted
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create approved enrollment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const insert = `INSERT INTO enrollments (id, student_id, course_id, course_name, batch_code,
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
	if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err := approveInTx(ctx, tx, enrollment.ID, models.ApprovalPending, approvedBy, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create approved enrollment: %w", err)
	}
	commit = true
	enrollment.ApprovalStatus = models.ApprovalApproved
	enrollment.ApprovedBy = &approvedBy
	enrollment.ApprovedAt = &now
	return nil
}

// Reject marks a pending enrollment as rejected. Rejection never touches
// seat counters.
func (r *EnrollmentRepository) Reject(ctx context.Context, id, reason, rejectedBy string) error {
	now := time.Now().UTC()
	const query = `UPDATE enrollments SET approval_status = $2, rejection_reason = $3, approved_by = $4, updated_at = $5
        WHERE id = $1 AND approval_status = $6`
	result, err := r.db.ExecContext(ctx, query, id, models.ApprovalRejected, reason, rejectedBy, now, models.ApprovalPending)
	if err != nil {
		return fmt.Errorf("reject enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject enrollment: %w", err)
	}
	if affected == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return ErrWrongStatus
	}
	return nil
}

// RejectMany rejects the provided pending enrollments in one transaction,
// reporting per-item failures.
func (r *EnrollmentRepository) RejectMany(ctx context.Context, ids []string, reason, rejectedBy string) (map[string]error, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk reject: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	failures := make(map[string]error)
	const query = `UPDATE enrollments SET approval_status = $2, rejection_reason = $3, approved_by = $4, updated_at = $5
        WHERE id = $1 AND approval_status = $6`
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, query, id, models.ApprovalRejected, reason, rejectedBy, now, models.ApprovalPending)
		if err != nil {
			return nil, fmt.Errorf("reject enrollment: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reject enrollment: %w", err)
		}
		if affected == 0 {
			var status models.ApprovalStatus
			err := tx.GetContext(ctx, &status, `SELECT approval_status FROM enrollments WHERE id = $1`, id)
			switch {
			case err == sql.ErrNoRows:
				failures[id] = sql.ErrNoRows
			case err != nil:
				return nil, fmt.Errorf("inspect enrollment: %w", err)
			default:
				failures[id] = ErrWrongStatus
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk reject: %w", err)
	}
	commit = true
	return failures, nil
}

// Withdraw releases an approved enrollment's seat and records who withdrew
// it and why. The counter never drops below zero.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id, reason, withdrawnBy string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin withdraw enrollment: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	var row struct {
		CourseID       *string               `db:"course_id"`
		ApprovalStatus models.ApprovalStatus `db:"approval_status"`
	}
	const find = `SELECT course_id, approval_status FROM enrollments WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, find, id); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if row.ApprovalStatus != models.ApprovalApproved {
		return ErrWrongStatus
	}

	now := time.Now().UTC()
	const update = `UPDATE enrollments SET approval_status = $2, withdrawal_reason = $3, withdrawn_by = $4, withdrawn_at = $5, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, models.ApprovalWithdrawn, reason, withdrawnBy, now); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	if row.CourseID != nil {
		const decrement = `UPDATE courses SET current_enrolled = GREATEST(current_enrolled - 1, 0), updated_at = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, decrement, *row.CourseID, now); err != nil {
			return fmt.Errorf("release seat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit withdraw enrollment: %w", err)
	}
	commit = true
	return nil
}

// UpdateCompletion records a completion outcome. The completion date is
// only stamped the first time; later updates keep the original date.
func (r *EnrollmentRepository) UpdateCompletion(ctx context.Context, id string, status models.CompletionStatus, score, attendance *float64, totalClasses, classesAttended *int, completionDate *time.Time) error {
	const query = `UPDATE enrollments SET completion_status = $2, score = $3, attendance_percentage = $4,
        total_classes = $5, classes_attended = $6,
        completion_date = COALESCE(completion_date, $7), updated_at = $8 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, score, attendance, totalClasses, classesAttended, completionDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ValidateBulkIDs ensures all IDs exist returning the found set.
func (r *EnrollmentRepository) ValidateBulkIDs(ctx context.Context, enrollmentIDs []string) (map[string]bool, error) {
	if len(enrollmentIDs) == 0 {
		return map[string]bool{}, nil
	}
	const chunkSize = 100
	existing := make(map[string]bool, len(enrollmentIDs))
	for start := 0; start < len(enrollmentIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(enrollmentIDs) {
			end = len(enrollmentIDs)
		}
		chunk := enrollmentIDs[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query := fmt.Sprintf("SELECT id FROM enrollments WHERE id IN (%s)", strings.Join(placeholders, ","))
		rows, err := r.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("validate enrollments: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan enrollment id: %w", err)
			}
			existing[id] = true
		}
		rows.Close()
	}
	return existing, nil
}
