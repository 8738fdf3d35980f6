package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type subjectCatalog interface {
	List(ctx context.Context, filter models.SubjectFilter, claims *models.JWTClaims) ([]models.Subject, error)
}

// SubjectHandler handles subject endpoints.
type SubjectHandler struct {
	service subjectCatalog
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(svc subjectCatalog) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// List godoc
// @Summary List subjects
// @Description Admins see every subject, general users the subjects they teach
// @Tags Subjects
// @Produce json
// @Param year query int false "Academic year"
// @Param groupId query string false "Group ID"
// @Param search query string false "Name contains"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	filter := models.SubjectFilter{
		GroupID: c.Query("groupId"),
		Search:  strings.TrimSpace(c.Query("search")),
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "year must be a number"))
			return
		}
		filter.Year = year
	}

	subjects, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, map[string]interface{}{"count": len(subjects)})
}
