package model

import (
	"encoding/json"
	"time"
)

// Document is an opaque key/value payload. The store never validates it.
type Document map[string]any

// Keys returns the top-level keys of d in no particular order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy of d. Nested maps and slices are not shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err == nil {
		var out Document
		if err = json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ConfigDefinition is the logical identity of a named config within a brand
// and company. (brand_id, name, company) is unique.
type ConfigDefinition struct {
	ID        string    `db:"id" json:"id"`
	BrandID   string    `db:"brand_id" json:"brandId"`
	Company   string    `db:"company" json:"company"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DefinitionSummary backs the builder sidebar. LatestVersion is 0 for a
// definition that has no versions yet.
type DefinitionSummary struct {
	ConfigDefinition
	LatestVersion int  `db:"latest_version" json:"latestVersion"`
	ActiveVersion *int `db:"active_version" json:"activeVersion,omitempty"`
}

// ConfigPayload is the mutable input of a new version.
type ConfigPayload struct {
	FormData    Document
	Layout      json.RawMessage
	Schema      json.RawMessage
	UISchema    json.RawMessage
	Description string
	CreatedBy   string
}

// ConfigVersion is an immutable snapshot. Name and Company are read through
// from the owning definition and are never written on the version row.
type ConfigVersion struct {
	ID           string          `db:"id" json:"id"`
	BrandID      string          `db:"brand_id" json:"brandId"`
	DefinitionID string          `db:"definition_id" json:"definitionId"`
	Name         string          `db:"name" json:"name"`
	Company      string          `db:"company" json:"company"`
	Version      int             `db:"version" json:"version"`
	FormData     Document        `db:"form_data" json:"formData"`
	Layout       json.RawMessage `db:"layout" json:"layout,omitempty"`
	Schema       json.RawMessage `db:"schema" json:"schema,omitempty"`
	UISchema     json.RawMessage `db:"ui_schema" json:"uiSchema,omitempty"`
	Description  string          `db:"description" json:"description"`
	CreatedBy    string          `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// Payload returns the version's content as a payload for copy-on-write.
func (v *ConfigVersion) Payload() ConfigPayload {
	return ConfigPayload{
		FormData:    v.FormData,
		Layout:      v.Layout,
		Schema:      v.Schema,
		UISchema:    v.UISchema,
		Description: v.Description,
	}
}

// ActiveVersionPointer marks the live version of a definition.
// (brand_id, definition_id, company) is unique.
type ActiveVersionPointer struct {
	ID             string    `db:"id" json:"id"`
	BrandID        string    `db:"brand_id" json:"brandId"`
	DefinitionID   string    `db:"definition_id" json:"definitionId"`
	DefinitionName string    `db:"definition_name" json:"definitionName"`
	Company        string    `db:"company" json:"company"`
	ActiveVersion  int       `db:"active_version" json:"activeVersion"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
