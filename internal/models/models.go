package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Record is a raw row as the record store and the realtime channel deliver it.
type Record map[string]interface{}

func (r Record) GetString(key string) string {
	if r == nil {
		return ""
	}
	val, ok := r[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (r Record) GetStringPtr(key string) *string {
	if r == nil {
		return nil
	}
	if val, ok := r[key]; !ok || val == nil {
		return nil
	}
	s := r.GetString(key)
	if s == "" {
		return nil
	}
	return &s
}

func (r Record) GetFloat(key string) float64 {
	if r == nil {
		return 0
	}
	val, ok := r[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func (r Record) GetTime(key string) time.Time {
	if r == nil {
		return time.Time{}
	}
	val, ok := r[key]
	if !ok {
		return time.Time{}
	}
	switch v := val.(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}
