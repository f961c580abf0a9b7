package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON is a schemaless column type for provider payloads and log details.
type JSON map[string]interface{}

// Value implements database writing.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements database reading.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, j)
	case string:
		return json.Unmarshal([]byte(data), j)
	default:
		return errors.New("unsupported json column type")
	}
}
