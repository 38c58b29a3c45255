package dto

import (
	"encoding/json"

	"github.com/noah-isme/applets-core/internal/models"
)

// AppletPayload is the full applet submitted on create and update.
type AppletPayload struct {
	DisplayName     string                   `json:"displayName" validate:"required,max=100"`
	Description     models.LangText          `json:"description"`
	About           models.LangText          `json:"about"`
	Image           string                   `json:"image" validate:"max=256"`
	Watermark       string                   `json:"watermark" validate:"max=256"`
	Encryption      *models.AppletEncryption `json:"encryption" validate:"omitempty"`
	RetentionPeriod *int                     `json:"retentionPeriod" validate:"omitempty,gte=0"`
	RetentionType   *models.RetentionType    `json:"retentionType" validate:"omitempty,oneof=indefinitely days weeks months years"`
	Activities      []ActivityPayload        `json:"activities" validate:"required,min=1,dive"`
	Flows           []FlowPayload            `json:"activityFlows" validate:"dive"`
}

// ActivityPayload describes one activity. ID is set when editing an existing activity.
type ActivityPayload struct {
	ID                 *string                  `json:"id" validate:"omitempty,uuid"`
	Key                string                   `json:"key" validate:"required,uuid"`
	Name               string                   `json:"name" validate:"required,max=100"`
	Description        models.LangText          `json:"description"`
	SplashScreen       string                   `json:"splashScreen"`
	Image              string                   `json:"image"`
	ShowAllAtOnce      bool                     `json:"showAllAtOnce"`
	IsSkippable        bool                     `json:"isSkippable"`
	IsReviewable       bool                     `json:"isReviewable"`
	ResponseIsEditable bool                     `json:"responseIsEditable"`
	IsHidden           bool                     `json:"isHidden"`
	ScoresAndReports   *models.ScoresAndReports `json:"scoresAndReports"`
	SubscaleSetting    *models.SubscaleSetting  `json:"subscaleSetting"`
	Items              []ItemPayload            `json:"items" validate:"required,min=1,dive"`
}

// ItemPayload describes one question; values and config are decoded against ResponseType.
type ItemPayload struct {
	ID               *string                  `json:"id" validate:"omitempty,uuid"`
	Name             string                   `json:"name" validate:"required,max=100"`
	Question         models.LangText          `json:"question"`
	ResponseType     models.ResponseType      `json:"responseType" validate:"required"`
	ResponseValues   json.RawMessage          `json:"responseValues"`
	Config           json.RawMessage          `json:"config"`
	ConditionalLogic *models.ConditionalLogic `json:"conditionalLogic"`
	IsHidden         bool                     `json:"isHidden"`
	AllowEdit        bool                     `json:"allowEdit"`
}

// FlowPayload describes one flow.
type FlowPayload struct {
	ID             *string           `json:"id" validate:"omitempty,uuid"`
	Name           string            `json:"name" validate:"required,max=100"`
	Description    models.LangText   `json:"description"`
	IsSingleReport bool              `json:"isSingleReport"`
	HideBadge      bool              `json:"hideBadge"`
	IsHidden       bool              `json:"isHidden"`
	Items          []FlowItemPayload `json:"items" validate:"required,min=1,dive"`
}

// FlowItemPayload references an activity of the same payload by key.
type FlowItemPayload struct {
	ID          *string `json:"id" validate:"omitempty,uuid"`
	ActivityKey string  `json:"activityKey" validate:"required"`
}

// AppletResult is the saved applet and the change log of the edit.
type AppletResult struct {
	*models.AppletTree
	ChangeLog []string `json:"changeLog"`
}
