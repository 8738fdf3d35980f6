package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type rowImporter interface {
	ImportTeachers(ctx context.Context, req dto.TeacherImportRequest) (*models.KindResult, error)
	ImportStudents(ctx context.Context, req dto.StudentImportRequest) (*models.KindResult, error)
	ImportSubjects(ctx context.Context, req dto.SubjectImportRequest) (*models.KindResult, error)
}

type workbookJobs interface {
	Submit(ctx context.Context, r io.Reader, opts dto.WorkbookImportOptions) (*models.ImportReport, error)
	Get(ctx context.Context, id string) (*models.ImportReport, error)
	ReportCSV(ctx context.Context, id string) ([]byte, string, error)
}

// ImportHandler exposes bulk import endpoints.
type ImportHandler struct {
	rows      rowImporter
	workbooks workbookJobs
	maxUpload int64
}

// NewImportHandler constructs handler. maxUpload caps the workbook size in bytes.
func NewImportHandler(rows rowImporter, workbooks workbookJobs, maxUpload int64) *ImportHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &ImportHandler{rows: rows, workbooks: workbooks, maxUpload: maxUpload}
}

// ImportWorkbook godoc
// @Summary Import a roster workbook
// @Description Imports the teacher, student and subject sheets of an xlsx workbook in that order
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook (.xlsx)"
// @Param studentYear formData int false "Admission year applied to student rows"
// @Param studentGroup formData string false "Group label applied to student rows"
// @Param async query bool false "Run on the background worker"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /imports/workbook [post]
func (h *ImportHandler) ImportWorkbook(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	if header.Size > h.maxUpload {
		response.Error(c, appErrors.Clone(appErrors.ErrImportTooLarge, "workbook exceeds upload limit"))
		return
	}

	opts := dto.WorkbookImportOptions{
		Filename:     header.Filename,
		StudentGroup: strings.TrimSpace(c.PostForm("studentGroup")),
	}
	if raw := strings.TrimSpace(c.PostForm("studentYear")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "studentYear must be a number"))
			return
		}
		opts.StudentYear = year
	}
	async := c.Query("async")
	if async == "" {
		async = c.PostForm("async")
	}
	if async != "" {
		parsed, err := strconv.ParseBool(async)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "async must be a boolean"))
			return
		}
		opts.Async = parsed
	}
	if claims := claimsFromContext(c); claims != nil {
		opts.RequestedBy = claims.UserID
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrImportUnreadable.Code, appErrors.ErrImportUnreadable.Status, "failed to open upload"))
		return
	}
	defer file.Close()

	report, err := h.workbooks.Submit(c.Request.Context(), file, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	if opts.Async {
		response.Accepted(c, dto.ImportJobResponse{ID: report.ID, Status: report.Status})
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// ImportReport godoc
// @Summary Import report
// @Tags Imports
// @Produce json
// @Param id path string true "Import ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) ImportReport(c *gin.Context) {
	report, err := h.workbooks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// ImportReportCSV godoc
// @Summary Download row outcomes of an import
// @Tags Imports
// @Produce text/csv
// @Param id path string true "Import ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /imports/{id}/report.csv [get]
func (h *ImportHandler) ImportReportCSV(c *gin.Context) {
	body, filename, err := h.workbooks.ReportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "text/csv; charset=utf-8", filename, body)
}

// ImportTeachers godoc
// @Summary Import teachers
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.TeacherImportRequest true "Teacher rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/teachers [post]
func (h *ImportHandler) ImportTeachers(c *gin.Context) {
	var req dto.TeacherImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.rows.ImportTeachers(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ImportStudents godoc
// @Summary Import students
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.StudentImportRequest true "Student rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/students [post]
func (h *ImportHandler) ImportStudents(c *gin.Context) {
	var req dto.StudentImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.rows.ImportStudents(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ImportSubjects godoc
// @Summary Import subjects
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.SubjectImportRequest true "Subject rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/subjects [post]
func (h *ImportHandler) ImportSubjects(c *gin.Context) {
	var req dto.SubjectImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.rows.ImportSubjects(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
