package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Survey definitions are authored by hand and exported from several form
// builders, so scalar fields arrive as either strings or numbers and target
// lists as either a single string or an array. The types below normalise
// those shapes at decode time.

// FlexString is a string that also decodes from JSON numbers and booleans.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	v, err := looseString(b)
	if err != nil {
		return err
	}
	*s = FlexString(v)
	return nil
}

// StringList decodes from a single string or an array of strings/numbers.
// An empty string decodes to an empty list.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make(StringList, 0, len(items))
		for _, item := range items {
			v, err := looseString(item)
			if err != nil {
				return err
			}
			if v != "" {
				out = append(out, v)
			}
		}
		*l = out
		return nil
	}
	v, err := looseString(b)
	if err != nil {
		return err
	}
	if v == "" {
		*l = nil
		return nil
	}
	*l = StringList{v}
	return nil
}

// OptionalNumber is a numeric property that may be missing, null, an empty
// string, a number or a numeric string.
type OptionalNumber struct {
	Value float64
	Valid bool
}

// Num returns a set OptionalNumber.
func Num(v float64) OptionalNumber {
	return OptionalNumber{Value: v, Valid: true}
}

func (n *OptionalNumber) UnmarshalJSON(b []byte) error {
	v, err := looseString(b)
	if err != nil {
		return err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		*n = OptionalNumber{}
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", v)
	}
	*n = Num(f)
	return nil
}

func (n OptionalNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// IsZero lets `omitzero` drop unset numbers.
func (n OptionalNumber) IsZero() bool {
	return !n.Valid
}

// Int returns the value truncated to an int.
func (n OptionalNumber) Int() int {
	return int(n.Value)
}

func looseString(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if isNull(b) {
		return "", nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return "", err
		}
		return strconv.FormatBool(v), nil
	case '{', '[':
		return "", fmt.Errorf("expected scalar, got %s", truncate(b))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func isNull(b []byte) bool {
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func truncate(b []byte) string {
	if len(b) > 32 {
		return string(b[:32]) + "..."
	}
	return string(b)
}
