package domain

import (
	"regexp"
	"strings"
)

// IdentifierLength is the number of digits in a NIK.
const IdentifierLength = 16

var (
	identifierPattern   = regexp.MustCompile(`^[0-9]{16}$`)
	identifierDelimiter = regexp.MustCompile(`[\s,;]+`)
)

// Identifier is a 16-digit customer identity number (NIK).
type Identifier string

func (id Identifier) String() string { return string(id) }

func (id Identifier) IsValid() bool {
	return identifierPattern.MatchString(string(id))
}

// ParseIdentifiers extracts valid identifiers from free-text batch input.
// Order and duplicates are preserved; invalid tokens are dropped silently.
func ParseIdentifiers(raw string) []Identifier {
	tokens := identifierDelimiter.Split(raw, -1)

	identifiers := make([]Identifier, 0, len(tokens))
	for _, token := range tokens {
		id := Identifier(strings.TrimSpace(token))
		if id == "" || !id.IsValid() {
			continue
		}
		identifiers = append(identifiers, id)
	}
	return identifiers
}
