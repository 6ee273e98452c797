package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
	"github.com/noah-isme/course-enroll-api/pkg/ingest"
	"github.com/noah-isme/course-enroll-api/pkg/response"
)

type importService interface {
	Process(ctx context.Context, records []models.ImportRecord) (*models.ImportBatchResult, error)
	ListAudit(ctx context.Context, page, pageSize int) ([]models.IncomingEnrollment, *models.Pagination, error)
	SyncStatus(ctx context.Context) (*models.ImportSyncStatus, error)
}

// ImportHandler exposes the CSV ingestion endpoints.
type ImportHandler struct {
	imports     importService
	maxFileSize int64
	maxRecords  int
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports importService, maxFileSize int64, maxRecords int) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &ImportHandler{imports: imports, maxFileSize: maxFileSize, maxRecords: maxRecords}
}

// Upload godoc
// @Summary Import enrollments from a CSV file
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Router /imports [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "missing file field"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "unable to read upload"))
		return
	}
	defer file.Close()

	records, err := ingest.ParseCSV(file, h.maxRecords)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.imports.Process(c.Request.Context(), records)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Audit godoc
// @Summary List the import audit trail
// @Tags Imports
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /imports/audit [get]
func (h *ImportHandler) Audit(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rows, pagination, err := h.imports.ListAudit(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// SyncStatus godoc
// @Summary Import pipeline sync status
// @Tags Imports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /imports/status [get]
func (h *ImportHandler) SyncStatus(c *gin.Context) {
	status, err := h.imports.SyncStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
