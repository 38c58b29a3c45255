package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AuditColumns are carried by every persisted row.
type AuditColumns struct {
	IsDeleted       bool       `db:"is_deleted" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
	MigratedDate    *time.Time `db:"migrated_date" json:"-"`
	MigratedUpdated *time.Time `db:"migrated_updated" json:"-"`
}

// IsMigrated reports whether the row was imported from the previous system.
func (a AuditColumns) IsMigrated() bool {
	return a.MigratedDate != nil
}

// Touch stamps created/updated times for a new row.
func (a *AuditColumns) Touch(now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// LangText is per-language text keyed by language code.
type LangText map[string]string

// Value implements driver.Valuer.
func (l LangText) Value() (driver.Value, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LangText) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*l = LangText{}
		return err
	}
	return json.Unmarshal(raw, l)
}

// JSONB is an opaque structured blob stored in a jsonb column.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if raw == nil {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], raw...)
	return nil
}

// MarshalJSON keeps the raw payload.
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON keeps the raw payload.
func (j *JSONB) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], data...)
	return nil
}

// jsonColumn marshals typed values into jsonb; nil pointers become NULL.
func jsonColumn(v interface{}) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func scanJSONColumn(src interface{}, dest interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}
