// Package idgen generates short, URL-safe identifiers for records and users.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// UserPrefix is prepended to generated user ids.
var UserPrefix = "u-"

// Alphabet defines the character set used for the random portion of the ID.
// Lowercase only, so ids survive case-folding storage engines.
var Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters generated (excluding any prefix).
var Length = 16

// RecordID returns an id for a record created without one.
func RecordID() (string, error) {
	return GenerateWithPrefix("")
}

// UserID returns an id for a user created without one.
func UserID() (string, error) {
	return GenerateWithPrefix(UserPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
