package models

import (
	"strings"

	"github.com/lib/pq"
)

// User is a read-only view of the marketplace client account.
type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName joins first and last name, nil when both are blank.
func (u *User) DisplayName() *string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return nil
	}
	return &name
}

// Provider is a read-only view of the marketplace provider account.
type Provider struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	BusinessName string         `json:"business_name"`
	Categories   pq.StringArray `gorm:"type:text[]" json:"categories"`
}

// Profile returns the user's catalog entry, nil when there is nothing to show.
func (u *User) Profile() *Profile {
	name := u.DisplayName()
	if name == nil {
		return nil
	}
	return &Profile{Name: name}
}

// DisplayName is the business name, nil when blank.
func (p *Provider) DisplayName() *string {
	name := strings.TrimSpace(p.BusinessName)
	if name == "" {
		return nil
	}
	return &name
}

// Profile returns the provider's name and service categories.
func (p *Provider) Profile() *Profile {
	name := p.DisplayName()
	if name == nil && len(p.Categories) == 0 {
		return nil
	}
	return &Profile{Name: name, Categories: []string(p.Categories)}
}

// Profile is what the catalog knows about a chat counterpart.
type Profile struct {
	Name *string
	// Categories lists a provider's service categories; empty for users.
	Categories []string
}
