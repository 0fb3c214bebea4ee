package sync

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/vauchi/core/internal/contact"
)

// ChangeKind is the tag of a single field-level change (spec.md §4.7).
type ChangeKind int

const (
	Add ChangeKind = iota
	Remove
	Modify
	Rename
	SetDisplayName
)

// FieldChange is one entry of a CardDelta. Only the fields relevant to
// Kind are populated:
//   - Add: Field holds the new field in full.
//   - Remove: FieldID identifies the field to drop.
//   - Modify: FieldID and NewValue.
//   - Rename: FieldID and NewLabel.
//   - SetDisplayName: NewDisplayName only, FieldID is the zero UUID.
type FieldChange struct {
	Kind           ChangeKind
	FieldID        uuid.UUID
	Field          contact.Field
	NewValue       string
	NewLabel       string
	NewDisplayName string
}

// CardDelta is an ordered list of field-changes, stably sorted by
// (kind, field-id) so Compute is deterministic for a given (old, new)
// pair (spec.md §4.7).
type CardDelta []FieldChange

// Compute returns the deterministic delta that transforms old into
// new. Fields present in new but absent (by id) from old become Add;
// fields present in old but absent from new become Remove; fields
// present in both with a changed value become Modify, with a changed
// label become Rename (a field that changed in both respects yields
// both a Modify and a Rename entry); a changed display name becomes a
// single SetDisplayName entry.
func Compute(old, new *contact.Card) CardDelta {
	oldByID := make(map[uuid.UUID]contact.Field, len(old.Fields))
	for _, f := range old.Fields {
		oldByID[f.ID] = f
	}
	newByID := make(map[uuid.UUID]contact.Field, len(new.Fields))
	for _, f := range new.Fields {
		newByID[f.ID] = f
	}

	var delta CardDelta

	for _, f := range new.Fields {
		if _, ok := oldByID[f.ID]; !ok {
			delta = append(delta, FieldChange{Kind: Add, FieldID: f.ID, Field: f})
		}
	}
	for _, f := range old.Fields {
		if _, ok := newByID[f.ID]; !ok {
			delta = append(delta, FieldChange{Kind: Remove, FieldID: f.ID})
		}
	}
	for id, nf := range newByID {
		of, ok := oldByID[id]
		if !ok {
			continue
		}
		if of.Value != nf.Value {
			delta = append(delta, FieldChange{Kind: Modify, FieldID: id, NewValue: nf.Value})
		}
		if of.Label != nf.Label {
			delta = append(delta, FieldChange{Kind: Rename, FieldID: id, NewLabel: nf.Label})
		}
	}
	if old.DisplayName != new.DisplayName {
		delta = append(delta, FieldChange{Kind: SetDisplayName, NewDisplayName: new.DisplayName})
	}

	sort.Slice(delta, func(i, j int) bool {
		if delta[i].Kind != delta[j].Kind {
			return delta[i].Kind < delta[j].Kind
		}
		return delta[i].FieldID.String() < delta[j].FieldID.String()
	})

	return delta
}

// Apply mutates card in place according to delta, in order. It fails
// with ErrFieldNotFound if a Remove/Modify/Rename entry references an
// id absent from card. An Add whose field id is already present in
// card is skipped. Re-applying a delta to a card it was already
// applied to is not idempotent in general: a Remove then fails with
// ErrFieldNotFound. Callers that re-deliver an already applied delta
// must detect that via the pending-update queue, not this function.
func Apply(delta CardDelta, card *contact.Card) error {
	for _, change := range delta {
		var err error
		switch change.Kind {
		case Add:
			if _, ok := card.FieldByID(change.Field.ID); ok {
				continue
			}
			err = card.InsertField(change.Field)
		case Remove:
			err = card.RemoveField(change.FieldID)
		case Modify:
			err = card.SetFieldValue(change.FieldID, change.NewValue)
		case Rename:
			err = card.RenameField(change.FieldID, change.NewLabel)
		case SetDisplayName:
			err = card.SetDisplayName(change.NewDisplayName)
		}
		if errors.Is(err, contact.ErrFieldNotFound) {
			return fmt.Errorf("%w: field %s", ErrFieldNotFound, change.FieldID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
