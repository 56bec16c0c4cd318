package domain

import (
	"database/sql/driver"
	"fmt"
)

// scanEnum reads a string-ish column value and validates it against the
// closed set accepted by valid.
func scanEnum(src any, name string, valid func(string) bool) (string, error) {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return "", fmt.Errorf("%s: NULL is not a valid value", name)
	default:
		return "", fmt.Errorf("%s: unsupported column type %T", name, src)
	}
	if !valid(s) {
		return "", fmt.Errorf("%s: invalid value %q", name, s)
	}
	return s, nil
}

func enumValue(s, name string, valid func(string) bool) (driver.Value, error) {
	if !valid(s) {
		return nil, fmt.Errorf("%s: invalid value %q", name, s)
	}
	return s, nil
}
