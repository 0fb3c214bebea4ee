package contact

import "github.com/google/uuid"

// VisibilityMode is the kind of per-field visibility rule (spec.md §3).
type VisibilityMode int

const (
	// Everyone shares the field with every contact. This is the
	// default for any field with no stored rule.
	Everyone VisibilityMode = iota
	// Nobody withholds the field from every contact, including in the
	// initial card snapshot sent at exchange time.
	Nobody
	// Contacts shares the field only with the contact-ids in Allowed.
	Contacts
)

// VisibilityRule governs whether a single field is transmitted to a
// given contact. Rules are never transmitted themselves (spec.md §4.5:
// "visibility rules are local policy, never sent over the wire").
type VisibilityRule struct {
	Mode    VisibilityMode
	Allowed map[uuid.UUID]struct{} // only meaningful when Mode == Contacts
}

// AllowEveryone returns the default rule.
func AllowEveryone() VisibilityRule { return VisibilityRule{Mode: Everyone} }

// AllowNobody returns a rule that withholds a field from everyone.
func AllowNobody() VisibilityRule { return VisibilityRule{Mode: Nobody} }

// AllowContacts returns a rule scoped to the given contact-ids.
func AllowContacts(ids ...uuid.UUID) VisibilityRule {
	allowed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return VisibilityRule{Mode: Contacts, Allowed: allowed}
}

// Resolves reports whether the rule permits transmission to contactID.
func (r VisibilityRule) Resolves(contactID uuid.UUID) bool {
	switch r.Mode {
	case Everyone:
		return true
	case Nobody:
		return false
	case Contacts:
		_, ok := r.Allowed[contactID]
		return ok
	default:
		return false
	}
}

// RuleSet maps a field-id to its visibility rule. A field-id absent
// from the set defaults to Everyone (spec.md §3: "a field with no
// stored rule is visible to everyone").
type RuleSet map[uuid.UUID]VisibilityRule

// Rule returns the effective rule for a field, defaulting to Everyone.
func (rs RuleSet) Rule(fieldID uuid.UUID) VisibilityRule {
	if r, ok := rs[fieldID]; ok {
		return r
	}
	return AllowEveryone()
}

// Set stores (or clears, via AllowEveryone) the rule for a field.
func (rs RuleSet) Set(fieldID uuid.UUID, rule VisibilityRule) {
	if rule.Mode == Everyone {
		delete(rs, fieldID)
		return
	}
	rs[fieldID] = rule
}
