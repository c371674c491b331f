package owner

import (
	"slices"
	"strconv"
)

// ParseOptions scans content for "-name value" pairs. A value made of digits
// becomes an int unless name is listed in keepAsString. An option without a
// value is true.
func ParseOptions(content string, keepAsString ...string) map[string]any {
	pairs := map[string]any{}
	i, n := 0, len(content)
	for i < n {
		if content[i] != '-' || i+1 >= n || content[i+1] == ' ' {
			i++
			continue
		}

		i++
		start := i
		for i < n && content[i] != ' ' {
			i++
		}
		name := content[start:i]

		for i < n && content[i] == ' ' {
			i++
		}
		start = i
		for i < n && content[i] != '-' && content[i] != ' ' {
			i++
		}
		value := content[start:i]

		switch {
		case value == "":
			pairs[name] = true
		case isDigits(value) && !slices.Contains(keepAsString, name):
			if v, err := strconv.Atoi(value); err == nil {
				pairs[name] = v
			} else {
				pairs[name] = value
			}
		default:
			pairs[name] = value
		}
	}
	return pairs
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
