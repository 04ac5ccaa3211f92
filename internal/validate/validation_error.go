// Package validate checks a loop definition for structural, referential,
// dependency, and semantic correctness before any run is started. All four
// passes always run; an author sees every defect at once.
package validate

import (
	"fmt"
	"strings"
)

// Pass identifies which validation pass produced an error.
type Pass string

const (
	PassSchema      Pass = "schema"
	PassReferential Pass = "referential"
	PassDependency  Pass = "dependency"
	PassSemantic    Pass = "semantic"
)

type ValidationError struct {
	Pass      Pass
	FieldPath string
	Message   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pass, e.FieldPath, e.Message)
}

type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(pass Pass, fieldPath, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Pass: pass, FieldPath: fieldPath, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s: %s: %s\n", e.Pass, e.FieldPath, e.Message)
	}
	return sb.String()
}
