package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/internal/service"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
	"github.com/noah-isme/course-enroll-api/pkg/ingest"
	"github.com/noah-isme/course-enroll-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment workflow endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	maxFileSize int64
	maxRecords  int
}

// NewEnrollmentHandler constructs EnrollmentHandler. The size and record
// limits bound the completion results upload.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, maxFileSize int64, maxRecords int) *EnrollmentHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &EnrollmentHandler{enrollments: enrollments, maxFileSize: maxFileSize, maxRecords: maxRecords}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param student_id query string false "Filter by student"
// @Param approval_status query string false "Filter by approval state"
// @Param eligibility_status query string false "Filter by eligibility verdict"
// @Param sbu query string false "Filter by business unit"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.CourseID = c.Query("course_id")
	filter.StudentID = c.Query("student_id")
	filter.ApprovalStatus = models.ApprovalStatus(c.Query("approval_status"))
	filter.EligibilityStatus = models.EligibilityStatus(c.Query("eligibility_status"))
	if sbu := c.Query("sbu"); sbu != "" {
		filter.SBU = models.ParseSBU(sbu)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment detail
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Create godoc
// @Summary Create enrollment manually
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Approve godoc
// @Summary Approve a pending enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	enrollment, err := h.enrollments.Approve(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reject godoc
// @Summary Reject a pending enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.RejectEnrollmentRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	var req service.RejectEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Reject(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Withdraw godoc
// @Summary Withdraw an approved enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.WithdrawEnrollmentRequest true "Withdrawal reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/withdraw [post]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	var req service.WithdrawEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Withdraw(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reapprove godoc
// @Summary Reapprove a withdrawn enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reapprove [post]
func (h *EnrollmentHandler) Reapprove(c *gin.Context) {
	enrollment, err := h.enrollments.Reapprove(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// BulkApprove godoc
// @Summary Approve multiple enrollments
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkApproveRequest true "Enrollment IDs"
// @Success 200 {object} response.Envelope
// @Router /enrollments/bulk-approve [post]
func (h *EnrollmentHandler) BulkApprove(c *gin.Context) {
	var req service.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.ApproveMany(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecordCompletion godoc
// @Summary Record a completion outcome
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.CompletionUpdateRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/completion [put]
func (h *EnrollmentHandler) RecordCompletion(c *gin.Context) {
	var req service.CompletionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrollmentID = c.Param("id")
	enrollment, err := h.enrollments.RecordCompletion(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// RecordCompletions godoc
// @Summary Record completion outcomes in bulk
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkCompletionRequest true "Completion payloads"
// @Success 200 {object} response.Envelope
// @Router /enrollments/completions [put]
func (h *EnrollmentHandler) RecordCompletions(c *gin.Context) {
	var req service.BulkCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.RecordCompletions(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UploadCompletions godoc
// @Summary Record completion outcomes from a CSV file
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Router /enrollments/completions/upload [post]
func (h *EnrollmentHandler) UploadCompletions(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "missing file field"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "unable to read upload"))
		return
	}
	defer file.Close()

	records, err := ingest.ParseCompletionCSV(file, h.maxRecords)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	req := service.BulkCompletionRequest{Completions: make([]service.CompletionUpdateRequest, 0, len(records))}
	for _, record := range records {
		req.Completions = append(req.Completions, service.CompletionUpdateRequest{
			EnrollmentID:         record.EnrollmentID,
			CompletionStatus:     record.CompletionStatus,
			Score:                record.Score,
			AttendancePercentage: record.AttendancePercentage,
			TotalClasses:         record.TotalClasses,
			ClassesAttended:      record.ClassesAttended,
			CompletionDate:       record.CompletionDate,
		})
	}

	result, err := h.enrollments.RecordCompletions(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BulkReject godoc
// @Summary Reject multiple enrollments
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.BulkRejectRequest true "Enrollment IDs and reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/bulk-reject [post]
func (h *EnrollmentHandler) BulkReject(c *gin.Context) {
	var req service.BulkRejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.RejectMany(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
