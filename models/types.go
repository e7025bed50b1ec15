// Package models contains domain entities for the WhatsApp campaign service
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// scanString normalises driver values for string-backed enums
func scanString(value any, target string) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot scan %T into %s", value, target)
	}
}

func scanJSON(value any, dest any, target string) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into %s", value, target)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// StringList is a JSON encoded list of strings
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	bs, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (l *StringList) Scan(value any) error {
	var out []string
	if err := scanJSON(value, &out, "StringList"); err != nil {
		return err
	}
	*l = out
	return nil
}

// StringMap is a JSON encoded string to string map
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bs, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (m *StringMap) Scan(value any) error {
	out := map[string]string{}
	if err := scanJSON(value, &out, "StringMap"); err != nil {
		return err
	}
	*m = out
	return nil
}

// RawJSON keeps a JSON document verbatim
type RawJSON []byte

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	if !json.Valid(r) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	return string(r), nil
}

func (r *RawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case string:
		*r = append((*r)[:0], v...)
	case []byte:
		*r = append((*r)[:0], v...)
	default:
		return fmt.Errorf("cannot scan %T into RawJSON", value)
	}
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}
