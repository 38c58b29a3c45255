package models

import "database/sql/driver"

// ReportType distinguishes score and section entries of a report.
type ReportType string

const (
	ReportScore   ReportType = "score"
	ReportSection ReportType = "section"
)

// ScoreCalculation is how item scores roll up into one report score.
type ScoreCalculation string

const (
	CalculationSum        ScoreCalculation = "sum"
	CalculationAverage    ScoreCalculation = "average"
	CalculationPercentage ScoreCalculation = "percentage"
)

// ScoreCondition references either an item of the same activity or another score by id.
type ScoreCondition struct {
	ItemName string           `json:"itemName" validate:"required"`
	Type     ConditionType    `json:"type" validate:"required"`
	Payload  ConditionPayload `json:"payload"`
}

// ScoreConditionalLogic is a named threshold of a score.
type ScoreConditionalLogic struct {
	ID         string           `json:"id" validate:"required"`
	Name       string           `json:"name" validate:"required"`
	FlagScore  bool             `json:"flagScore"`
	Message    string           `json:"message,omitempty"`
	Match      Match            `json:"match" validate:"oneof=all any"`
	Conditions []ScoreCondition `json:"conditions" validate:"required,min=1,dive"`
}

// Report is one score or section of an activity report.
type Report struct {
	Type             ReportType              `json:"type" validate:"oneof=score section"`
	ID               string                  `json:"id" validate:"required_if=Type score"`
	Name             string                  `json:"name" validate:"required"`
	Message          string                  `json:"message,omitempty"`
	ItemsPrint       []string                `json:"itemsPrint,omitempty"`
	ItemsScore       []string                `json:"itemsScore,omitempty"`
	Calculation      ScoreCalculation        `json:"calculationType,omitempty" validate:"omitempty,oneof=sum average percentage"`
	ConditionalLogic []ScoreConditionalLogic `json:"conditionalLogic,omitempty" validate:"dive"`
	SectionLogic     *ConditionalLogic       `json:"sectionConditionalLogic,omitempty"`
}

// ScoresAndReports configures per-activity scoring.
type ScoresAndReports struct {
	GenerateReport   bool     `json:"generateReport"`
	ShowScoreSummary bool     `json:"showScoreSummary"`
	Reports          []Report `json:"reports" validate:"dive"`
}

// Value implements driver.Valuer.
func (s ScoresAndReports) Value() (driver.Value, error) { return jsonColumn(s) }

// Scan implements sql.Scanner.
func (s *ScoresAndReports) Scan(src interface{}) error { return scanJSONColumn(src, s) }

// ScoreIDs lists the ids of every score report.
func (s *ScoresAndReports) ScoreIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	if s == nil {
		return ids
	}
	for _, r := range s.Reports {
		if r.Type == ReportScore {
			ids[r.ID] = struct{}{}
		}
	}
	return ids
}
