package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/applets-core/internal/models"
)

// SubmitAnswersRequest is one submission group.
type SubmitAnswersRequest struct {
	SubmitID        string                  `json:"submitId" validate:"required,uuid"`
	AppletID        string                  `json:"appletId" validate:"required,uuid"`
	Version         string                  `json:"version" validate:"required"`
	FlowID          *string                 `json:"flowId" validate:"omitempty,uuid"`
	SourceSubjectID *string                 `json:"sourceSubjectId" validate:"omitempty,uuid"`
	TargetSubjectID *string                 `json:"targetSubjectId" validate:"omitempty,uuid"`
	InputSubjectID  *string                 `json:"inputSubjectId" validate:"omitempty,uuid"`
	Client          models.ClientMeta       `json:"client"`
	Answers         []ActivityAnswerPayload `json:"answers" validate:"required,min=1,dive"`
}

// ActivityAnswerPayload is one answered activity. The optional group fields, when present,
// must repeat the values of the enclosing request.
type ActivityAnswerPayload struct {
	ActivityID       string          `json:"activityId" validate:"required,uuid"`
	SubmitID         *string         `json:"submitId,omitempty"`
	AppletID         *string         `json:"appletId,omitempty"`
	Version          *string         `json:"version,omitempty"`
	RespondentID     *string         `json:"respondentId,omitempty"`
	Answer           string          `json:"answer" validate:"required"`
	UserPublicKey    string          `json:"userPublicKey" validate:"required"`
	ItemIDs          []string        `json:"itemIds" validate:"dive,uuid"`
	Identifier       *string         `json:"identifier"`
	ScheduledTime    *time.Time      `json:"scheduledTime"`
	StartTime        time.Time       `json:"startTime" validate:"required"`
	EndTime          time.Time       `json:"endTime" validate:"required,gtefield=StartTime"`
	Events           json.RawMessage `json:"events"`
	IsAssessment     bool            `json:"isAssessment"`
	ReviewedAnswerID *string         `json:"reviewedAnswerId" validate:"omitempty,uuid"`
}

// SubmitAnswersResult reports the stored group.
type SubmitAnswersResult struct {
	Answer  *models.Answer `json:"answer"`
	Created bool           `json:"created"`
}

// CompletionsQuery mirrors the completion listing filters.
type CompletionsQuery struct {
	FromDate time.Time
	Version  *string
}
