package explain

import "strings"

// MaskIdentifier hides the middle of an identifier so raw account ids never
// reach an external model. Short ids are left alone; they reveal nothing.
func MaskIdentifier(id string) string {
	if len(id) <= 4 {
		return id
	}
	return id[:2] + "***" + id[len(id)-2:]
}

func maskAll(ids []string) string {
	masked := make([]string, len(ids))
	for i, id := range ids {
		masked[i] = MaskIdentifier(id)
	}
	return "[" + strings.Join(masked, ", ") + "]"
}
