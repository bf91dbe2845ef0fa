package entity

import "time"

// Moderator is one user's grant on one provider. An admin grant implies
// every capability; otherwise the grant lists them explicitly.
type Moderator struct {
	ProviderID   string       `json:"provider_id"`
	UserID       string       `json:"user_id"`
	IsAdmin      bool         `json:"is_admin"`
	Capabilities []Capability `json:"capabilities"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Has reports whether the grant covers the capability
func (m *Moderator) Has(cap Capability) bool {
	if m == nil {
		return false
	}
	if m.IsAdmin {
		return true
	}
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
