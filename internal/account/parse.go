package account

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Bitfinex v2 answers with positional arrays; these helpers pull typed
// values out of a decoded []any without panicking on short or mixed rows.

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func floatAt(row []any, idx int) (float64, bool) {
	if idx < 0 || idx >= len(row) {
		return 0, false
	}
	return floatFromAny(row[idx])
}

func intAt(row []any, idx int) (int64, bool) {
	f, ok := floatAt(row, idx)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func stringAt(row []any, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	s, _ := row[idx].(string)
	return strings.TrimSpace(s)
}

func timeAt(row []any, idx int) time.Time {
	ms, ok := intAt(row, idx)
	if !ok || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
