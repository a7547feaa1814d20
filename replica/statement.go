package replica

import (
	"strings"
	"unicode"
)

var modifyingKeywords = map[string]struct{}{
	"INSERT":  {},
	"UPDATE":  {},
	"DELETE":  {},
	"REPLACE": {},
	"MERGE":   {},
	"UPSERT":  {},
}

// IsWrite reports whether a statement passed to a fetch method must run on the primary:
// data-modifying statements (INSERT ... RETURNING, CTEs wrapping a write) and locking reads
// (FOR UPDATE, FOR SHARE, LOCK IN SHARE MODE).
func IsWrite(query string) bool {
	words := strings.FieldsFunc(strings.ToUpper(query), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if len(words) == 0 {
		return false
	}

	if _, ok := modifyingKeywords[words[0]]; ok {
		return true
	}
	if words[0] == "WITH" {
		for _, w := range words[1:] {
			if _, ok := modifyingKeywords[w]; ok {
				return true
			}
		}
	}
	for i := 0; i+1 < len(words); i++ {
		if words[i] == "FOR" && (words[i+1] == "UPDATE" || words[i+1] == "SHARE" || words[i+1] == "NO") {
			return true
		}
		if words[i] == "LOCK" && words[i+1] == "IN" {
			return true
		}
	}

	return false
}
