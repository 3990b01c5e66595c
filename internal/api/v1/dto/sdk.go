package dto

import (
	"time"

	"brandconfig/internal/model"
)

// SDKBrandDTO is a brand as seen by SDK clients.
type SDKBrandDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ConfigCount int    `json:"configCount"`
}

// SDKConfigSummaryDTO lists a config without its payload.
type SDKConfigSummaryDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LatestVersion int    `json:"latestVersion"`
	ActiveVersion *int   `json:"activeVersion,omitempty"`
}

// SDKConfigDTO is the value currently served for a config.
type SDKConfigDTO struct {
	Name      string         `json:"name"`
	Version   int            `json:"version"`
	FormData  model.Document `json:"formData"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SDKSchemaDTO exposes the JSON schemas stored with the served version.
type SDKSchemaDTO struct {
	Brand    string `json:"brand"`
	Config   string `json:"config"`
	Version  int    `json:"version"`
	Schema   any    `json:"schema,omitempty"`
	UISchema any    `json:"uiSchema,omitempty"`
}

type SDKIntrospectConfigDTO struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Keys    []string `json:"keys"`
}

type SDKIntrospectBrandDTO struct {
	ID      string                   `json:"id"`
	Name    string                   `json:"name"`
	Configs []SDKIntrospectConfigDTO `json:"configs"`
}
