package contract

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrIntakeIncomplete = errors.New("intake is incomplete")
	ErrCatalogNotFound  = errors.New("provider catalog not found")
	ErrCatalogEmpty     = errors.New("provider catalog is empty")
	ErrCatalogLoad      = errors.New("provider catalog could not be loaded")
	ErrCallInitiation   = errors.New("call initiation failed")
	ErrStrategyReplan   = errors.New("strategy replan failed")
)

// IncompleteFieldsError reports required profile fields the intake has not
// collected yet. It matches ErrIntakeIncomplete.
type IncompleteFieldsError struct {
	Missing []string
}

func (e *IncompleteFieldsError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrIntakeIncomplete, strings.Join(e.Missing, ", "))
}

func (e *IncompleteFieldsError) Is(target error) bool {
	return target == ErrIntakeIncomplete
}
