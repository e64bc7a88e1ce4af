package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Vector is a dense embedding stored as a JSON array in a text column.
// Implements sql.Scanner and driver.Valuer.
type Vector []float32

// Scan implements sql.Scanner.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}

	var data []byte
	switch val := value.(type) {
	case string:
		data = []byte(val)
	case []byte:
		data = val
	default:
		return fmt.Errorf("scan vector: unsupported type %T", value)
	}
	if len(data) == 0 {
		*v = nil
		return nil
	}

	var out []float32
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan vector: %w", err)
	}
	*v = out
	return nil
}

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Dim returns the vector dimensionality.
func (v Vector) Dim() int { return len(v) }
