package models

import "database/sql/driver"

// SubscaleItemType says whether a subscale member is an item or a nested subscale.
type SubscaleItemType string

const (
	SubscaleMemberItem     SubscaleItemType = "item"
	SubscaleMemberSubscale SubscaleItemType = "subscale"
)

// SubscaleItem references an item or another subscale by name.
type SubscaleItem struct {
	Name string           `json:"name" validate:"required"`
	Type SubscaleItemType `json:"type" validate:"oneof=item subscale"`
}

// Subscale groups item scores.
type Subscale struct {
	Name    string           `json:"name" validate:"required"`
	Scoring ScoreCalculation `json:"scoring" validate:"oneof=sum average"`
	Items   []SubscaleItem   `json:"items" validate:"required,min=1,dive"`
}

// SubscaleSetting configures per-activity subscales.
type SubscaleSetting struct {
	CalculateTotalScore *ScoreCalculation `json:"calculateTotalScore,omitempty" validate:"omitempty,oneof=sum average"`
	Subscales           []Subscale        `json:"subscales" validate:"dive"`
}

// Value implements driver.Valuer.
func (s SubscaleSetting) Value() (driver.Value, error) { return jsonColumn(s) }

// Scan implements sql.Scanner.
func (s *SubscaleSetting) Scan(src interface{}) error { return scanJSONColumn(src, s) }
