// Package contact implements ContactCard, the per-contact Contact
// record, and per-field visibility rules (spec.md §3, §4.5).
package contact

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// FieldType is the semantic type of a card field.
type FieldType int

const (
	FieldEmail FieldType = iota
	FieldPhone
	FieldWebsite
	FieldAddress
	FieldSocial
	FieldCustom
)

// MaxFields bounds a card at 25 fields (spec.md §3).
const MaxFields = 25

// MaxLabelLen and MaxValueLen bound a field's label and value.
const (
	MaxLabelLen       = 64
	MaxValueLen       = 512
	MaxDisplayNameLen = 100
)

// Field is one entry in a ContactCard.
type Field struct {
	ID    uuid.UUID
	Type  FieldType
	Label string
	Value string
}

// Card is an ordered list of fields plus a display name (spec.md §3).
type Card struct {
	DisplayName string
	Fields      []Field
}

// NewCard creates an empty card with the given display name.
func NewCard(displayName string) (*Card, error) {
	if len([]rune(displayName)) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Card{DisplayName: displayName}, nil
}

// AddField appends a new field, failing with ErrMaxFieldsReached once
// the card already holds MaxFields (spec.md §8 boundary behaviour).
func (c *Card) AddField(fieldType FieldType, label, value string) (Field, error) {
	if len(c.Fields) >= MaxFields {
		return Field{}, ErrMaxFieldsReached
	}
	if len([]rune(label)) > MaxLabelLen {
		return Field{}, ErrLabelTooLong
	}
	if len([]rune(value)) > MaxValueLen {
		return Field{}, ErrValueTooLong
	}
	f := Field{ID: uuid.New(), Type: fieldType, Label: label, Value: value}
	c.Fields = append(c.Fields, f)
	return f, nil
}

// RemoveField removes the field with the given id.
func (c *Card) RemoveField(id uuid.UUID) error {
	for i, f := range c.Fields {
		if f.ID == id {
			c.Fields = append(c.Fields[:i], c.Fields[i+1:]...)
			return nil
		}
	}
	return ErrFieldNotFound
}

// ModifyField replaces a field's label/value in place.
func (c *Card) ModifyField(id uuid.UUID, label, value string) error {
	if len([]rune(label)) > MaxLabelLen {
		return ErrLabelTooLong
	}
	if len([]rune(value)) > MaxValueLen {
		return ErrValueTooLong
	}
	for i, f := range c.Fields {
		if f.ID == id {
			c.Fields[i].Label = label
			c.Fields[i].Value = value
			return nil
		}
	}
	return ErrFieldNotFound
}

// RenameField updates only a field's label, leaving its value intact.
func (c *Card) RenameField(id uuid.UUID, newLabel string) error {
	if len([]rune(newLabel)) > MaxLabelLen {
		return ErrLabelTooLong
	}
	for i, f := range c.Fields {
		if f.ID == id {
			c.Fields[i].Label = newLabel
			return nil
		}
	}
	return ErrFieldNotFound
}

// SetFieldValue updates only a field's value, leaving its label intact.
func (c *Card) SetFieldValue(id uuid.UUID, newValue string) error {
	if len([]rune(newValue)) > MaxValueLen {
		return ErrValueTooLong
	}
	for i, f := range c.Fields {
		if f.ID == id {
			c.Fields[i].Value = newValue
			return nil
		}
	}
	return ErrFieldNotFound
}

// InsertField appends a field with an already-assigned id, used when
// applying a remotely computed delta so that the same field-id is
// preserved across devices (spec.md §4.7).
func (c *Card) InsertField(f Field) error {
	if len(c.Fields) >= MaxFields {
		return ErrMaxFieldsReached
	}
	if len([]rune(f.Label)) > MaxLabelLen {
		return ErrLabelTooLong
	}
	if len([]rune(f.Value)) > MaxValueLen {
		return ErrValueTooLong
	}
	c.Fields = append(c.Fields, f)
	return nil
}

// FieldByID looks up a field by id.
func (c *Card) FieldByID(id uuid.UUID) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// SetDisplayName updates the card's display name.
func (c *Card) SetDisplayName(name string) error {
	if len([]rune(name)) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	c.DisplayName = name
	return nil
}

// Clone returns a deep copy.
func (c *Card) Clone() *Card {
	fields := make([]Field, len(c.Fields))
	copy(fields, c.Fields)
	return &Card{DisplayName: c.DisplayName, Fields: fields}
}

// Equal reports whether two cards have matching display name and
// normalised field sets (spec.md §3: "Two cards are equal iff their
// normalised field sets and display name match").
func (c *Card) Equal(other *Card) bool {
	if c.DisplayName != other.DisplayName {
		return false
	}
	if len(c.Fields) != len(other.Fields) {
		return false
	}
	return fmt.Sprint(normalizedFields(c.Fields)) == fmt.Sprint(normalizedFields(other.Fields))
}

// normalizedFields sorts fields by ID for order-independent comparison.
func normalizedFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
