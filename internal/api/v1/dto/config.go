package dto

import (
	"encoding/json"

	"brandconfig/internal/model"
)

// ConfigCreateDTO creates a config, or the next version when the name exists.
type ConfigCreateDTO struct {
	Name        string          `json:"name" validate:"required,max=200"`
	FormData    model.Document  `json:"formData"`
	Layout      json.RawMessage `json:"layout,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	UISchema    json.RawMessage `json:"uiSchema,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
}

// ConfigUpdateDTO overrides fields of the base version. Omitted fields are
// carried over.
type ConfigUpdateDTO struct {
	FormData    model.Document  `json:"formData,omitempty"`
	Layout      json.RawMessage `json:"layout,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	UISchema    json.RawMessage `json:"uiSchema,omitempty"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// SetActiveVersionDTO selects the version to serve.
type SetActiveVersionDTO struct {
	Version int `json:"version" validate:"required,gt=0"`
}

// DefinitionRenameDTO renames a config definition.
type DefinitionRenameDTO struct {
	Name string `json:"name" validate:"required,max=200"`
}
