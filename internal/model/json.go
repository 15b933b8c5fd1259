package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a JSON object column
type JSONMap map[string]any

// Value implements the driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (m *JSONMap) Scan(value interface{}) error {
	parsed, err := ParseJSONMap(value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseJSONMap decodes a JSON object column as returned by any engine:
// drivers hand back text or bytes, the in-memory store keeps the map.
func ParseJSONMap(value any) (JSONMap, error) {
	switch v := value.(type) {
	case nil:
		return JSONMap{}, nil
	case JSONMap:
		return v, nil
	case map[string]any:
		return JSONMap(v), nil
	case string:
		return decodeJSONMap([]byte(v))
	case []byte:
		return decodeJSONMap(v)
	}
	return nil, fmt.Errorf("unsupported JSON column type %T", value)
}

func decodeJSONMap(b []byte) (JSONMap, error) {
	if len(b) == 0 {
		return JSONMap{}, nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode JSON column: %w", err)
	}
	return out, nil
}

// String returns key as a string, or "" when absent.
func (m JSONMap) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Clone returns a shallow copy of m.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
