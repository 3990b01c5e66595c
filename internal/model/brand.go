package model

import "time"

// Brand is owned by one user inside one company. (user_id, name) is unique.
type Brand struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	Company   string    `db:"company" json:"company"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// BrandSummary is a brand plus the number of config definitions it owns.
type BrandSummary struct {
	Brand
	ConfigCount int `db:"config_count" json:"configCount"`
}
