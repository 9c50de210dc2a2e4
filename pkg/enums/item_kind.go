package enums

import "fmt"

// ItemKind distinguishes items that ship from items delivered in-app.
type ItemKind string

const (
	ItemKindDigital  ItemKind = "digital"
	ItemKindPhysical ItemKind = "physical"
)

var validItemKinds = []ItemKind{
	ItemKindDigital,
	ItemKindPhysical,
}

// String implements fmt.Stringer.
func (k ItemKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ItemKind.
func (k ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// RequiresShipping reports whether the item needs a fulfillment record.
func (k ItemKind) RequiresShipping() bool {
	return k == ItemKindPhysical
}

// ParseItemKind converts raw input into an ItemKind.
func ParseItemKind(value string) (ItemKind, error) {
	for _, candidate := range validItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}
