package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coercion converts loosely typed upstream values. Missing values become the
// zero value; values of the wrong type are parsed when possible and recorded
// as issues when not.
type Coercion struct {
	Issues []string
}

func (c *Coercion) Int64(field string, value any) int64 {
	f, ok := toFloat(value)
	if !ok {
		c.note(field, value)
		return 0
	}
	return int64(f)
}

func (c *Coercion) Int(field string, value any) int {
	return int(c.Int64(field, value))
}

func (c *Coercion) Float64(field string, value any) float64 {
	f, ok := toFloat(value)
	if !ok {
		c.note(field, value)
		return 0
	}
	return f
}

func (c *Coercion) String(field string, value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int, int64, int32, bool:
		return fmt.Sprint(typed)
	default:
		c.note(field, value)
		return ""
	}
}

func (c *Coercion) Bool(field string, value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			c.note(field, value)
			return false
		}
		return parsed
	default:
		f, ok := toFloat(value)
		if !ok {
			c.note(field, value)
			return false
		}
		return f != 0
	}
}

// Unix reads epoch seconds. Zero and missing values yield the zero time.
func (c *Coercion) Unix(field string, value any) time.Time {
	seconds := c.Int64(field, value)
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

func (c *Coercion) Valid() bool {
	return c == nil || len(c.Issues) == 0
}

func (c *Coercion) note(field string, value any) {
	if c == nil || value == nil {
		return
	}
	c.Issues = append(c.Issues, fmt.Sprintf("%s: unexpected value %v (%T)", field, value, value))
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case nil:
		return 0, true
	case float64:
		return finite(typed)
	case float32:
		return finite(float64(typed))
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case bool:
		if typed {
			return 1, true
		}
		return 0, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
