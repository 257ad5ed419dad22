package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("invalid value")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrBusinessRule      = errors.New("business rule violated")
	// ErrRowsRejected is returned by Import when at least one row failed; the
	// report lists every row error and nothing was persisted.
	ErrRowsRejected = errors.New("import rejected")
)

// ValidationError reports a cell that could not be parsed.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ReferenceNotFoundError reports a class, instructor or studio that does not
// exist, with up to three similar known values.
type ReferenceNotFoundError struct {
	Kind        string
	Value       string
	Suggestions []string
}

func (e *ReferenceNotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Value)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean: " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

func (e *ReferenceNotFoundError) Unwrap() error {
	return ErrReferenceNotFound
}

type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

func (e *BusinessRuleError) Unwrap() error {
	return ErrBusinessRule
}

func ruleErr(rule, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}
