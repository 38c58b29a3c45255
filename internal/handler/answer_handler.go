package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/export"
	"github.com/noah-isme/applets-core/pkg/response"
)

var completionHeaders = []string{
	"answerId", "submitId", "appletHistoryId", "activityHistoryId", "flowHistoryId",
	"respondentId", "scheduledTime", "startTime", "endTime", "createdAt",
}

type answerService interface {
	Submit(ctx context.Context, principal models.Principal, req dto.SubmitAnswersRequest) (*dto.SubmitAnswersResult, error)
	Completions(ctx context.Context, principal models.Principal, appletID string, query dto.CompletionsQuery) ([]models.Completion, error)
	Delete(ctx context.Context, principal models.Principal, appletID, answerID string) error
}

// AnswerHandler exposes answer ingestion endpoints.
type AnswerHandler struct {
	service answerService
}

// NewAnswerHandler builds a new handler.
func NewAnswerHandler(service answerService) *AnswerHandler {
	return &AnswerHandler{service: service}
}

// Submit godoc
// @Summary Submit a group of answers
// @Description 201 on first insert, 200 when the submit id was already stored.
// @Tags Answers
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAnswersRequest true "Submission group"
// @Success 201 {object} response.SingleEnvelope
// @Success 200 {object} response.SingleEnvelope
// @Failure 400 {object} response.ErrorEnvelope
// @Failure 409 {object} response.ErrorEnvelope
// @Router /answers [post]
func (h *AnswerHandler) Submit(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.SubmitAnswersRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Submit(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.Single(c, status, result)
}

// Completions godoc
// @Summary List completed activities
// @Tags Answers
// @Produce json
// @Param id path string true "Applet ID"
// @Param fromDate query string true "Lower bound (YYYY-MM-DD or RFC3339)"
// @Param version query string false "Applet version"
// @Param format query string false "json (default) or csv"
// @Success 200 {object} response.MultiEnvelope
// @Router /answers/applet/{id}/completions [get]
func (h *AnswerHandler) Completions(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	from, err := parseDateParam(c.Query("fromDate"))
	if err != nil {
		response.Error(c, appErrors.WithPath(appErrors.ErrValidation, "fromDate must be a date", "fromDate"))
		return
	}
	query := dto.CompletionsQuery{FromDate: from}
	if version := strings.TrimSpace(c.Query("version")); version != "" {
		query.Version = &version
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
	if format != "json" && format != "csv" {
		response.Error(c, appErrors.WithPath(appErrors.ErrValidation, "format must be json or csv", "format"))
		return
	}
	completions, err := h.service.Completions(c.Request.Context(), principal, c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if format == "csv" {
		writeCompletionsCSV(c, c.Param("id"), completions)
		return
	}
	response.Multi(c, http.StatusOK, completions, len(completions))
}

func writeCompletionsCSV(c *gin.Context, appletID string, completions []models.Completion) {
	table := export.Table{Headers: completionHeaders, Rows: make([][]string, 0, len(completions))}
	for _, cpl := range completions {
		table.Rows = append(table.Rows, []string{
			cpl.AnswerID, cpl.SubmitID, cpl.AppletHistoryID, cpl.ActivityHistoryID, derefString(cpl.FlowHistoryID),
			cpl.RespondentID, formatTime(cpl.ScheduledTime), cpl.StartTime.UTC().Format(time.RFC3339),
			cpl.EndTime.UTC().Format(time.RFC3339), cpl.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "completions-"+appletID+".csv"))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, table); err != nil {
		_ = c.Error(err)
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Delete godoc
// @Summary Delete an answer
// @Tags Answers
// @Param id path string true "Applet ID"
// @Param answer_id path string true "Answer ID"
// @Success 204
// @Failure 403 {object} response.ErrorEnvelope
// @Router /answers/applet/{id}/{answer_id} [delete]
func (h *AnswerHandler) Delete(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal, c.Param("id"), c.Param("answer_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
