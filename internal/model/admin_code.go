package model

import "time"

// AdminSecretCode represents a row in the `admin_secret_codes` table.
// A code grants admin rights for one city and may be consumed once.
type AdminSecretCode struct {
	ID        uint64    `json:"id"`         // admin_secret_codes.id
	Code      string    `json:"code"`       // admin_secret_codes.code
	City      string    `json:"city"`       // admin_secret_codes.city
	IsUsed    bool      `json:"is_used"`    // admin_secret_codes.is_used
	CreatedAt time.Time `json:"created_at"` // admin_secret_codes.created_at
}

// SeedCode is a code/city pair inserted at bootstrap.
type SeedCode struct {
	Code string `yaml:"code" json:"code"`
	City string `yaml:"city" json:"city"`
}
