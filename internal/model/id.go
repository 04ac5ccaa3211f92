package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

type IDType string

const (
	IDTypeRun   IDType = "run"
	IDTypeEvent IDType = "evt"
)

var validIDTypes = map[IDType]bool{
	IDTypeRun:   true,
	IDTypeEvent: true,
}

var idRegex = regexp.MustCompile(`^(run|evt)_[0-9]{10}_[0-9a-f]{8}$`)

// slugRegex is the shape required of definition, phase skill, and gate ids.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}

	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return fmt.Sprintf("%s_%010d_%s", idType, timestamp, hex.EncodeToString(randomBytes)), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

// ValidSlug reports whether s is usable as an author-supplied identifier.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}
