package models

// Identity is the verified caller behind a credential.
type Identity struct {
	ID         string `json:"id"`
	IsProvider bool   `json:"is_provider"`
}
