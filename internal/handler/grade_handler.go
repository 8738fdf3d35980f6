package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type gradeEngine interface {
	UpsertGrades(ctx context.Context, subjectID string, req dto.GradeUpsertRequest) (*dto.GradeUpsertResult, error)
	GradeSheet(ctx context.Context, subjectID string) (*dto.GradeSheetResponse, error)
}

type gradeExporter interface {
	Export(ctx context.Context, subjectID string, format service.ExportFormat) (*service.ExportFile, error)
}

// GradeHandler exposes grade entry endpoints for one subject.
type GradeHandler struct {
	grades  gradeEngine
	exports gradeExporter
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeEngine, exports gradeExporter) *GradeHandler {
	return &GradeHandler{grades: grades, exports: exports}
}

// Sheet godoc
// @Summary Grade sheet of a subject
// @Tags Grades
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/grades [get]
func (h *GradeHandler) Sheet(c *gin.Context) {
	sheet, err := h.grades.GradeSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet)
}

// Upsert godoc
// @Summary Save grade edits
// @Description Creates enrollments for edits without enrollmentId and updates the others. Failed edits are listed in the result.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body dto.GradeUpsertRequest true "Grade edits"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/grades [put]
func (h *GradeHandler) Upsert(c *gin.Context) {
	var req dto.GradeUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.grades.UpsertGrades(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Export godoc
// @Summary Export grade sheet
// @Tags Grades
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Subject ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/grades/export [get]
func (h *GradeHandler) Export(c *gin.Context) {
	file, err := h.exports.Export(c.Request.Context(), c.Param("id"), service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Filename, file.Body)
}
