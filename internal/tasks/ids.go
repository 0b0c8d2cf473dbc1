package tasks

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// normalizeID turns JSON numbers that hold integers into int64 so that ids
// compare and persist the same way whatever decoder produced them.
func normalizeID(v any) any {
	switch id := v.(type) {
	case nil, string, int64, bool:
		return id
	case int:
		return int64(id)
	case int32:
		return int64(id)
	case float64:
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return int64(id)
		}
		return id
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return n
		}
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// NormalizeID is the exported form used by storage layers.
func NormalizeID(v any) any {
	return normalizeID(v)
}

// stringify renders an identifier as text, keeping integral floats integral.
func stringify(v any) string {
	switch id := normalizeID(v).(type) {
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}
