// Package catalog reads counterpart profiles from the marketplace's relational catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"marketchat/backend/internal/models"

	"gorm.io/gorm"
)

// Directory resolves profiles from the users and providers tables. Read only.
type Directory struct {
	DB *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{DB: db}
}

// Profile returns the provider's business name and categories or the user's
// full name, nil when the identity is unknown.
func (d *Directory) Profile(ctx context.Context, identity string, isProvider bool) (*models.Profile, error) {
	db := d.DB.WithContext(ctx)

	if isProvider {
		var p models.Provider
		err := db.Select("id", "business_name", "categories").Where("id = ?", identity).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("lookup provider %s: %w", identity, err)
		}
		return p.Profile(), nil
	}

	var u models.User
	err := db.Select("id", "first_name", "last_name").Where("id = ?", identity).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", identity, err)
	}
	return u.Profile(), nil
}

// Static is an in-memory catalog for the memory store driver and tests.
type Static struct {
	Users     map[string]string
	Providers map[string]string
	// Categories maps provider ids to their service categories.
	Categories map[string][]string
}

func (s Static) Profile(_ context.Context, identity string, isProvider bool) (*models.Profile, error) {
	if !isProvider {
		u := models.User{ID: identity, FirstName: s.Users[identity]}
		return u.Profile(), nil
	}
	p := models.Provider{ID: identity, BusinessName: s.Providers[identity], Categories: s.Categories[identity]}
	return p.Profile(), nil
}
