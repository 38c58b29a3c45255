package models

import "database/sql/driver"

// ConditionType is the operator of one condition.
type ConditionType string

const (
	ConditionEqual             ConditionType = "EQUAL"
	ConditionNotEqual          ConditionType = "NOT_EQUAL"
	ConditionLessThan          ConditionType = "LESS_THAN"
	ConditionGreaterThan       ConditionType = "GREATER_THAN"
	ConditionBetween           ConditionType = "BETWEEN"
	ConditionOutsideOf         ConditionType = "OUTSIDE_OF"
	ConditionEqualToOption     ConditionType = "EQUAL_TO_OPTION"
	ConditionNotEqualToOption  ConditionType = "NOT_EQUAL_TO_OPTION"
	ConditionIncludesOption    ConditionType = "INCLUDES_OPTION"
	ConditionNotIncludesOption ConditionType = "NOT_INCLUDES_OPTION"
)

// IsOption reports whether the operator compares against an option of a select item.
func (c ConditionType) IsOption() bool {
	switch c {
	case ConditionEqualToOption, ConditionNotEqualToOption, ConditionIncludesOption, ConditionNotIncludesOption:
		return true
	}
	return false
}

// IsRange reports whether the operator takes a min/max pair.
func (c ConditionType) IsRange() bool {
	return c == ConditionBetween || c == ConditionOutsideOf
}

// Match combines the conditions of a logic block.
type Match string

const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// ConditionPayload carries the operands; which fields are set depends on the operator.
type ConditionPayload struct {
	OptionValue *string  `json:"optionValue,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	MinValue    *float64 `json:"minValue,omitempty"`
	MaxValue    *float64 `json:"maxValue,omitempty"`
}

// Condition tests one sibling item, referenced by name.
type Condition struct {
	ItemName string           `json:"itemName" validate:"required"`
	Type     ConditionType    `json:"type" validate:"required"`
	Payload  ConditionPayload `json:"payload"`
}

// ConditionalLogic is a flat list of conditions under one combinator.
type ConditionalLogic struct {
	Match      Match       `json:"match" validate:"oneof=all any"`
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
}

// Value implements driver.Valuer.
func (l ConditionalLogic) Value() (driver.Value, error) { return jsonColumn(l) }

// Scan implements sql.Scanner.
func (l *ConditionalLogic) Scan(src interface{}) error { return scanJSONColumn(src, l) }
