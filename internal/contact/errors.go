package contact

import "errors"

// Validation errors (spec.md §7, "Validation" family).
var (
	ErrMaxFieldsReached  = errors.New("contact: card already has the maximum number of fields")
	ErrLabelTooLong      = errors.New("contact: field label exceeds 64 characters")
	ErrValueTooLong      = errors.New("contact: field value exceeds 512 characters")
	ErrDisplayNameTooLong = errors.New("contact: display name exceeds 100 characters")
	ErrFieldNotFound     = errors.New("contact: field not found")
)
