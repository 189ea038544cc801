package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 10

// Query is a parsed search command. Terms are matched as one substring.
type Query struct {
	RawInput string
	Terms    string
	Filters  map[string]string // exact, case-insensitive field matches
	Limit    int
}

// ParseQuery reads command-line style input.
// Example: /find boda quito --tipo fiesta --limit 5
func ParseQuery(input string) Query {
	query := Query{
		RawInput: input,
		Filters:  make(map[string]string),
		Limit:    DefaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Flags take the next word as value
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.ToLower(strings.TrimPrefix(part, "--"))
			val := parts[i+1]

			if key == "limit" {
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			} else {
				query.Filters[key] = val
			}
			i++
			continue
		}

		if i == 0 && strings.HasPrefix(part, "/") {
			continue
		}
		textTerms = append(textTerms, part)
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
