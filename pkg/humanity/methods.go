package humanity

import (
	"slices"

	"github.com/aretw0/twin3/pkg/domain"
)

var defaultMethods = []domain.VerificationMethod{
	{ID: "passport", DisplayName: "Passport NFC", Weight: 0.25},
	{ID: "world_id", DisplayName: "World ID", Weight: 0.20},
	{ID: "phone", DisplayName: "Phone number", Weight: 0.16},
	{ID: "wallet", DisplayName: "Wallet history", Weight: 0.15},
	{ID: "email", DisplayName: "Email", Weight: 0.12},
	{ID: "social", DisplayName: "Social account", Weight: 0.12},
}

// DefaultMethods returns a copy of the built-in verification table.
// Weights sum to 1.0.
func DefaultMethods() []domain.VerificationMethod {
	return slices.Clone(defaultMethods)
}

// Known reports whether id names a method in table.
func Known(id string, table []domain.VerificationMethod) bool {
	return slices.ContainsFunc(table, func(m domain.VerificationMethod) bool {
		return m.ID == id
	})
}
