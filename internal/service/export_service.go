package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/pkg/export"
	"github.com/noah-isme/course-enroll-api/pkg/storage"
)

type exportEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type exportCourseReader interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
}

type exportStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type exportSummaryReader interface {
	Summary(ctx context.Context, filter models.ReportSummaryFilter) (*models.ReportSummary, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	enrollments exportEnrollmentReader
	courses     exportCourseReader
	students    exportStudentReader
	summaries   exportSummaryReader
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(enrollments exportEnrollmentReader, courses exportCourseReader, students exportStudentReader, summaries exportSummaryReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		enrollments: enrollments,
		courses:     courses,
		students:    students,
		summaries:   summaries,
		storage:     store,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate builds the dataset for a job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	if job.Params.CourseID != nil && *job.Params.CourseID != "" {
		scope = sanitizeFilename(*job.Params.CourseID)
	} else if job.Params.SBU != nil && *job.Params.SBU != "" {
		scope = sanitizeFilename(*job.Params.SBU)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeEnrollments:
		return s.buildEnrollmentDataset(ctx, job.Params)
	case models.ReportTypeCourses:
		return s.buildCourseDataset(ctx)
	case models.ReportTypeStudents:
		return s.buildStudentDataset(ctx, job.Params)
	case models.ReportTypeSummary:
		return s.buildSummaryDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildEnrollmentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.EnrollmentFilter{
		CourseID: deref(params.CourseID),
		SBU:      models.SBU(deref(params.SBU)),
		PageSize: 100,
	}
	rows := make([]map[string]string, 0)
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, e := range batch {
			rows = append(rows, map[string]string{
				"Employee ID":        e.StudentEmployeeID,
				"Student":            e.StudentName,
				"SBU":                string(e.StudentSBU),
				"Course":             deref(e.CourseName),
				"Batch":              deref(e.BatchCode),
				"Eligibility":        string(e.EligibilityStatus),
				"Approval Status":    string(e.ApprovalStatus),
				"Completion Status":  string(e.CompletionStatus),
				"Score":              formatFloat(e.Score),
				"Completion Date":    formatReportTime(e.CompletionDate),
				"Enrolled At":        e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(rows) >= total || len(batch) == 0 {
			break
		}
	}
	dataset := export.Dataset{
		Headers: []string{"Employee ID", "Student", "SBU", "Course", "Batch", "Eligibility", "Approval Status", "Completion Status", "Score", "Completion Date", "Enrolled At"},
		Rows:    rows,
	}
	return dataset, "Enrollment Report", nil
}

func (s *ExportService) buildCourseDataset(ctx context.Context) (export.Dataset, string, error) {
	rows := make([]map[string]string, 0)
	filter := models.CourseFilter{PageSize: 100}
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, c := range batch {
			rows = append(rows, map[string]string{
				"Course":           c.Name,
				"Batch":            c.BatchCode,
				"Start Date":       c.StartDate.Format("2006-01-02"),
				"End Date":         formatReportTime(c.EndDate),
				"Seat Limit":       fmt.Sprintf("%d", c.SeatLimit),
				"Enrolled":         fmt.Sprintf("%d", c.CurrentEnrolled),
				"Available Seats":  fmt.Sprintf("%d", c.AvailableSeats()),
				"Archived":         fmt.Sprintf("%t", c.Archived),
			})
		}
		if len(rows) >= total || len(batch) == 0 {
			break
		}
	}
	dataset := export.Dataset{
		Headers: []string{"Course", "Batch", "Start Date", "End Date", "Seat Limit", "Enrolled", "Available Seats", "Archived"},
		Rows:    rows,
	}
	return dataset, "Course Report", nil
}

func (s *ExportService) buildStudentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	rows := make([]map[string]string, 0)
	filter := models.StudentFilter{SBU: models.SBU(deref(params.SBU)), PageSize: 100}
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, st := range batch {
			rows = append(rows, map[string]string{
				"Employee ID": st.EmployeeID,
				"Name":        st.Name,
				"Email":       st.Email,
				"SBU":         string(st.SBU),
				"Designation": deref(st.Designation),
				"Experience":  fmt.Sprintf("%d", st.ExperienceYears),
			})
		}
		if len(rows) >= total || len(batch) == 0 {
			break
		}
	}
	dataset := export.Dataset{
		Headers: []string{"Employee ID", "Name", "Email", "SBU", "Designation", "Experience"},
		Rows:    rows,
	}
	return dataset, "Student Report", nil
}

func (s *ExportService) buildSummaryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.ReportSummaryFilter{
		CourseID: deref(params.CourseID),
		SBU:      models.SBU(deref(params.SBU)),
	}
	if params.Year != nil {
		filter.Year = *params.Year
	}
	summary, err := s.summaries.Summary(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := []map[string]string{
		{"Metric": "Total Students", "Value": fmt.Sprintf("%d", summary.TotalStudents)},
		{"Metric": "Total Courses", "Value": fmt.Sprintf("%d", summary.TotalCourses)},
		{"Metric": "Active Courses", "Value": fmt.Sprintf("%d", summary.ActiveCourses)},
		{"Metric": "Total Enrollments", "Value": fmt.Sprintf("%d", summary.TotalEnrollments)},
		{"Metric": "Pending Approvals", "Value": fmt.Sprintf("%d", summary.PendingApprovals)},
		{"Metric": "Approved Enrollments", "Value": fmt.Sprintf("%d", summary.ApprovedEnrollments)},
		{"Metric": "Completed Enrollments", "Value": fmt.Sprintf("%d", summary.CompletedEnrollments)},
		{"Metric": "Completion Rate (%)", "Value": fmt.Sprintf("%.2f", summary.CompletionRate)},
		{"Metric": "Avg Approval Time (hours)", "Value": fmt.Sprintf("%.2f", summary.AvgApprovalHours)},
	}
	for _, sbu := range summary.EnrollmentsBySBU {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("Enrollments %s", sbu.SBU),
			"Value":  fmt.Sprintf("%d", sbu.Total),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}
	return dataset, "Enrollment Summary Report", nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
