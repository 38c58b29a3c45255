package models

import (
	"database/sql/driver"
	"time"
)

// RetentionType enumerates answer retention policies.
type RetentionType string

const (
	RetentionIndefinitely RetentionType = "indefinitely"
	RetentionDays         RetentionType = "days"
	RetentionWeeks        RetentionType = "weeks"
	RetentionMonths       RetentionType = "months"
	RetentionYears        RetentionType = "years"
)

// AppletEncryption holds the applet's public Diffie-Hellman parameters.
// Byte slices are big-endian unsigned integers and travel as base64 in JSON.
type AppletEncryption struct {
	PublicKey []byte `json:"publicKey" validate:"required"`
	Prime     []byte `json:"prime" validate:"required"`
	Base      []byte `json:"base" validate:"required"`
	AccountID string `json:"accountId" validate:"required"`
}

// Value implements driver.Valuer.
func (e AppletEncryption) Value() (driver.Value, error) { return jsonColumn(e) }

// Scan implements sql.Scanner.
func (e *AppletEncryption) Scan(src interface{}) error { return scanJSONColumn(src, e) }

// Equal compares every parameter.
func (e *AppletEncryption) Equal(other *AppletEncryption) bool {
	if e == nil || other == nil {
		return e == other
	}
	return string(e.PublicKey) == string(other.PublicKey) &&
		string(e.Prime) == string(other.Prime) &&
		string(e.Base) == string(other.Base) &&
		e.AccountID == other.AccountID
}

// Applet is the live questionnaire container.
type Applet struct {
	ID              string            `db:"id" json:"id"`
	DisplayName     string            `db:"display_name" json:"displayName"`
	Description     LangText          `db:"description" json:"description"`
	About           LangText          `db:"about" json:"about"`
	Image           string            `db:"image" json:"image"`
	Watermark       string            `db:"watermark" json:"watermark"`
	Encryption      *AppletEncryption `db:"encryption" json:"encryption,omitempty"`
	RetentionPeriod *int              `db:"retention_period" json:"retentionPeriod,omitempty"`
	RetentionType   *RetentionType    `db:"retention_type" json:"retentionType,omitempty"`
	Version         string            `db:"version" json:"version"`
	PinnedAt        *time.Time        `db:"pinned_at" json:"pinnedAt,omitempty"`
	CreatorID       string            `db:"creator_id" json:"creatorId"`
	AuditColumns
}

// AppletPatch carries the columns an update may overwrite; nil fields are left untouched.
type AppletPatch struct {
	DisplayName     *string
	Description     LangText
	About           LangText
	Image           *string
	Watermark       *string
	Encryption      *AppletEncryption
	RetentionPeriod *int
	RetentionType   *RetentionType
	Version         *string
	PinnedAt        *time.Time
}

// Activity is an ordered child of an applet.
type Activity struct {
	ID                 string            `db:"id" json:"id"`
	AppletID           string            `db:"applet_id" json:"appletId"`
	Key                string            `db:"key" json:"key"`
	Name               string            `db:"name" json:"name"`
	Description        LangText          `db:"description" json:"description"`
	SplashScreen       string            `db:"splash_screen" json:"splashScreen"`
	Image              string            `db:"image" json:"image"`
	ShowAllAtOnce      bool              `db:"show_all_at_once" json:"showAllAtOnce"`
	IsSkippable        bool              `db:"is_skippable" json:"isSkippable"`
	IsReviewable       bool              `db:"is_reviewable" json:"isReviewable"`
	ResponseIsEditable bool              `db:"response_is_editable" json:"responseIsEditable"`
	IsHidden           bool              `db:"is_hidden" json:"isHidden"`
	ScoresAndReports   *ScoresAndReports `db:"scores_and_reports" json:"scoresAndReports,omitempty"`
	SubscaleSetting    *SubscaleSetting  `db:"subscale_setting" json:"subscaleSetting,omitempty"`
	Order              int               `db:"order" json:"order"`
	AuditColumns
}

// ActivityPatch carries updatable activity columns.
type ActivityPatch struct {
	Name               *string
	Description        LangText
	SplashScreen       *string
	Image              *string
	ShowAllAtOnce      *bool
	IsSkippable        *bool
	IsReviewable       *bool
	ResponseIsEditable *bool
	IsHidden           *bool
	ScoresAndReports   *ScoresAndReports
	SubscaleSetting    *SubscaleSetting
	ClearScores        bool
	ClearSubscales     bool
	Order              *int
}

// ActivityItem is one question of an activity.
type ActivityItem struct {
	ID               string            `db:"id" json:"id"`
	ActivityID       string            `db:"activity_id" json:"activityId"`
	Name             string            `db:"name" json:"name"`
	Question         LangText          `db:"question" json:"question"`
	ResponseType     ResponseType      `db:"response_type" json:"responseType"`
	ResponseValues   JSONB             `db:"response_values" json:"responseValues"`
	Config           JSONB             `db:"config" json:"config"`
	ConditionalLogic *ConditionalLogic `db:"conditional_logic" json:"conditionalLogic,omitempty"`
	IsHidden         bool              `db:"is_hidden" json:"isHidden"`
	AllowEdit        bool              `db:"allow_edit" json:"allowEdit"`
	Order            int               `db:"order" json:"order"`
	AuditColumns
}

// ActivityItemPatch carries updatable item columns.
type ActivityItemPatch struct {
	Name             *string
	Question         LangText
	ResponseType     *ResponseType
	ResponseValues   JSONB
	Config           JSONB
	ConditionalLogic *ConditionalLogic
	ClearConditional bool
	IsHidden         *bool
	AllowEdit        *bool
	Order            *int
}

// Flow is a sequenced walk through a subset of the applet's activities.
type Flow struct {
	ID             string   `db:"id" json:"id"`
	AppletID       string   `db:"applet_id" json:"appletId"`
	Name           string   `db:"name" json:"name"`
	Description    LangText `db:"description" json:"description"`
	IsSingleReport bool     `db:"is_single_report" json:"isSingleReport"`
	HideBadge      bool     `db:"hide_badge" json:"hideBadge"`
	IsHidden       bool     `db:"is_hidden" json:"isHidden"`
	Order          int      `db:"order" json:"order"`
	AuditColumns
}

// FlowPatch carries updatable flow columns.
type FlowPatch struct {
	Name           *string
	Description    LangText
	IsSingleReport *bool
	HideBadge      *bool
	IsHidden       *bool
	Order          *int
}

// FlowItem points a flow step at an activity.
type FlowItem struct {
	ID             string `db:"id" json:"id"`
	ActivityFlowID string `db:"activity_flow_id" json:"activityFlowId"`
	ActivityID     string `db:"activity_id" json:"activityId"`
	Order          int    `db:"order" json:"order"`
	AuditColumns
}

// ActivityNode is an activity with its ordered items.
type ActivityNode struct {
	Activity
	Items []ActivityItem `json:"items"`
}

// FlowNode is a flow with its ordered steps.
type FlowNode struct {
	Flow
	Items []FlowItem `json:"items"`
}

// AppletTree is the full current state of an applet.
type AppletTree struct {
	Applet
	Activities []ActivityNode `json:"activities"`
	Flows      []FlowNode     `json:"activityFlows"`
}

// ActivityByID returns the activity node with the given id.
func (t *AppletTree) ActivityByID(id string) *ActivityNode {
	for i := range t.Activities {
		if t.Activities[i].ID == id {
			return &t.Activities[i]
		}
	}
	return nil
}

// FlowByID returns the flow node with the given id.
func (t *AppletTree) FlowByID(id string) *FlowNode {
	for i := range t.Flows {
		if t.Flows[i].ID == id {
			return &t.Flows[i]
		}
	}
	return nil
}
