package protocol

import "strconv"

// ParseCheckpoint extracts a replay/ack checkpoint from an inbound
// event's content (spec.md §4.2, §6): either {"last_event_id":
// "connA-42"}, whose connection id prefix is split off and returned
// separately, or a bare {"last_seq": 42}. ok is false if content
// carries neither field in a recognizable shape.
func ParseCheckpoint(content any) (connID string, seq uint64, ok bool) {
	m, isMap := content.(map[string]any)
	if !isMap {
		return "", 0, false
	}
	if raw, isStr := m["last_event_id"].(string); isStr && raw != "" {
		cid, s, parsed := splitEventID(raw)
		if !parsed {
			return "", 0, false
		}
		return cid, s, true
	}
	if n, isNum := asUint64(m["last_seq"]); isNum {
		return "", n, true
	}
	return "", 0, false
}

// splitEventID parses the "{connection_id}-{seq}" event id format.
// The connection id itself may contain hyphens (it's typically a
// UUID), so the sequence number is taken from after the last one.
func splitEventID(raw string) (connID string, seq uint64, ok bool) {
	idx := -1
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '-' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(raw)-1 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(raw[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return raw[:idx], n, true
}

// asUint64 coerces a JSON-decoded number (float64) or a plain uint64 to
// uint64.
func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
