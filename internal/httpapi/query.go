package httpapi

import "strconv"

// parseOptionalBool returns nil when raw is empty, matching a Filter field
// that should not constrain the query at all (§6 list filters are optional).
func parseOptionalBool(raw string) *bool {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func parseOptionalInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
