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

// CourseRepository manages persistence for course batches.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, name, batch_code, description, start_date, end_date, seat_limit, current_enrolled, prerequisite_course_id, archived, created_at, updated_at`

// List returns courses matching the provided filters.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := "FROM courses c"
	var conditions []string
	var args []interface{}

	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("c.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.batch_code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"batch_code": "c.batch_code",
		"start_date": "c.start_date",
		"created_at": "c.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "c.start_date"
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

	query := fmt.Sprintf(`SELECT c.id, c.name, c.batch_code, c.description, c.start_date, c.end_date, c.seat_limit, c.current_enrolled, c.prerequisite_course_id, c.archived, c.created_at, c.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, column, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByNameAndBatchCode resolves a course by the import natural key.
func (r *CourseRepository) FindByNameAndBatchCode(ctx context.Context, name, batchCode string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE LOWER(name) = LOWER($1) AND LOWER(batch_code) = LOWER($2)", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, name, batchCode); err != nil {
		return nil, err
	}
	return &course, nil
}

// ExistsByNameAndBatchCode checks batch code uniqueness within a course name.
func (r *CourseRepository) ExistsByNameAndBatchCode(ctx context.Context, name, batchCode, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE LOWER(name) = LOWER($1) AND LOWER(batch_code) = LOWER($2)"
	args := []interface{}{name, batchCode}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check batch code: %w", err)
	}
	return true, nil
}

// Create inserts a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, batch_code, description, start_date, end_date, seat_limit, current_enrolled, prerequisite_course_id, archived, created_at, updated_at)
        VALUES (:id, :name, :batch_code, :description, :start_date, :end_date, :seat_limit, :current_enrolled, :prerequisite_course_id, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies an existing course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, batch_code = :batch_code, description = :description, start_date = :start_date, end_date = :end_date, seat_limit = :seat_limit, prerequisite_course_id = :prerequisite_course_id, archived = :archived, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// DeleteDetaching removes a course after copying its name and batch code onto
// attached enrollments so history survives. Both steps run in one
// transaction.
func (r *CourseRepository) DeleteDetaching(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	const detach = `UPDATE enrollments SET course_name = c.name, batch_code = c.batch_code, course_id = NULL, updated_at = $2
        FROM courses c WHERE enrollments.course_id = $1 AND c.id = $1`
	if _, err := tx.ExecContext(ctx, detach, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("detach enrollments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	commit = true
	return nil
}

// ArchivePastEndDate flags ended courses as archived and returns the number affected.
func (r *CourseRepository) ArchivePastEndDate(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE courses SET archived = true, updated_at = $1 WHERE archived = false AND end_date IS NOT NULL AND end_date < $1`
	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("archive ended courses: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive ended courses: %w", err)
	}
	return affected, nil
}
