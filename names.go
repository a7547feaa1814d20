package database

import (
	"fmt"
	"strings"
)

// ValidateIdentifier checks a table or column name, optionally schema-qualified (schema.table).
// Only ASCII letters, digits and underscores are allowed in each part.
func ValidateIdentifier(name string) (string, error) {
	if name == "" {
		return "", ErrIdentifierRequired
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, name)
		}
	}

	return name, nil
}
